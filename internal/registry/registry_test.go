package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monetary_core/internal/domain"
)

func TestMemory_RegisterAndGet(t *testing.T) {
	m := NewMemory()
	attrs := map[string]string{"region": "north"}

	require.NoError(t, m.Register(context.Background(), Agent{ID: 1000, Kind: domain.KindHousehold, Attributes: attrs}))
	attrs["region"] = "south"

	got, err := m.Get(context.Background(), 1000)
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, "north", got.Attributes["region"])

	err = m.Register(context.Background(), Agent{ID: 1000})
	assert.ErrorIs(t, err, domain.ErrDuplicateAgent)
}

func TestMemory_Unregister(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Register(context.Background(), Agent{ID: 1}))

	require.NoError(t, m.Unregister(context.Background(), 1))
	assert.False(t, m.Exists(context.Background(), 1))
	assert.ErrorIs(t, m.Unregister(context.Background(), 1), domain.ErrUnknownAgent)
}

func TestMemory_AgentStateAndDeactivate(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Register(context.Background(), Agent{ID: 5, Survival: 3}))
	require.NoError(t, m.SetSurvival(5, -1))

	state, err := m.AgentState(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentStateDTO{SchemaVersion: domain.AgentStateSchemaVersion, AgentID: 5, Survival: -1, Active: true}, state)

	require.NoError(t, m.Deactivate(context.Background(), 5, domain.ReasonStarved, 9))
	got, err := m.Get(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, domain.ReasonStarved, got.Reason)
	assert.Equal(t, int64(9), got.DeactivatedTick)

	assert.ErrorIs(t, m.Deactivate(context.Background(), 5, domain.ReasonStarved, 10), domain.ErrAgentInactive)
	_, err = m.AgentState(context.Background(), 6)
	assert.ErrorIs(t, err, domain.ErrUnknownAgent)
}

func TestMemory_List(t *testing.T) {
	m := NewMemory()
	for _, id := range []domain.AgentID{30, 10, 20} {
		require.NoError(t, m.Register(context.Background(), Agent{ID: id}))
	}

	agents := m.List(context.Background())
	require.Len(t, agents, 3)
	assert.Equal(t, domain.AgentID(10), agents[0].ID)
	assert.Equal(t, domain.AgentID(30), agents[2].ID)
}
