// Package registry is an in-memory agent registry. It also serves as the
// default agent-state reader and lifecycle manager for the harness.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"monetary_core/internal/domain"
)

type Agent struct {
	ID              domain.AgentID            `json:"id"`
	Kind            domain.AgentKind          `json:"kind"`
	Active          bool                      `json:"active"`
	Survival        float64                   `json:"survival"`
	RegisteredTick  int64                     `json:"registered_tick"`
	DeactivatedTick int64                     `json:"deactivated_tick,omitempty"`
	Reason          domain.DeactivationReason `json:"reason,omitempty"`
	Attributes      map[string]string         `json:"attributes,omitempty"`
}

type Memory struct {
	mu     sync.RWMutex
	agents map[domain.AgentID]*Agent
}

func NewMemory() *Memory {
	return &Memory{
		agents: make(map[domain.AgentID]*Agent),
	}
}

func (m *Memory) Register(ctx context.Context, agent Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.agents[agent.ID]; exists {
		return fmt.Errorf("%w: agent %d", domain.ErrDuplicateAgent, agent.ID)
	}

	a := agent
	a.Active = true
	if agent.Attributes != nil {
		a.Attributes = make(map[string]string, len(agent.Attributes))
		for k, v := range agent.Attributes {
			a.Attributes[k] = v
		}
	}
	m.agents[a.ID] = &a
	return nil
}

func (m *Memory) Unregister(ctx context.Context, id domain.AgentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.agents[id]; !exists {
		return fmt.Errorf("%w: agent %d", domain.ErrUnknownAgent, id)
	}
	delete(m.agents, id)
	return nil
}

func (m *Memory) Get(ctx context.Context, id domain.AgentID) (Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, exists := m.agents[id]
	if !exists {
		return Agent{}, fmt.Errorf("%w: agent %d", domain.ErrUnknownAgent, id)
	}
	return *a, nil
}

func (m *Memory) Exists(ctx context.Context, id domain.AgentID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.agents[id]
	return exists
}

// List returns agents in ascending ID order.
func (m *Memory) List(ctx context.Context) []Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Agent, 0, len(m.agents))
	for _, a := range m.agents {
		result = append(result, *a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (m *Memory) SetSurvival(id domain.AgentID, survival float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, exists := m.agents[id]
	if !exists {
		return fmt.Errorf("%w: agent %d", domain.ErrUnknownAgent, id)
	}
	a.Survival = survival
	return nil
}

func (m *Memory) AgentState(ctx context.Context, id domain.AgentID) (domain.AgentStateDTO, error) {
	a, err := m.Get(ctx, id)
	if err != nil {
		return domain.AgentStateDTO{}, err
	}

	return domain.AgentStateDTO{
		SchemaVersion: domain.AgentStateSchemaVersion,
		AgentID:       a.ID,
		Survival:      a.Survival,
		Active:        a.Active,
	}, nil
}

func (m *Memory) Deactivate(ctx context.Context, id domain.AgentID, reason domain.DeactivationReason, tick int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, exists := m.agents[id]
	if !exists {
		return fmt.Errorf("%w: agent %d", domain.ErrUnknownAgent, id)
	}
	if !a.Active {
		return fmt.Errorf("%w: agent %d", domain.ErrAgentInactive, id)
	}

	a.Active = false
	a.Reason = reason
	a.DeactivatedTick = tick
	return nil
}
