package domain

import "strconv"

type AgentID int64

func (id AgentID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

type AgentKind string

const (
	KindHousehold   AgentKind = "household"
	KindFirm        AgentKind = "firm"
	KindBank        AgentKind = "bank"
	KindGovernment  AgentKind = "government"
	KindCentralBank AgentKind = "central_bank"
	KindSystem      AgentKind = "system"
)

// HasOverdraft reports whether accounts of this kind may go below zero.
func (k AgentKind) HasOverdraft() bool {
	return k == KindBank || k == KindCentralBank
}

// IsIssuer reports whether balances of this kind sit outside the money supply.
func (k AgentKind) IsIssuer() bool {
	return k == KindCentralBank
}

func (k AgentKind) Valid() bool {
	switch k {
	case KindHousehold, KindFirm, KindBank, KindGovernment, KindCentralBank, KindSystem:
		return true
	}
	return false
}

type AgentRegistrationRequest struct {
	Kind        AgentKind         `json:"kind"`
	InitialCash int64             `json:"initial_cash"`
	Tick        int64             `json:"tick"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// AgentStateSchemaVersion is the current version of AgentStateDTO.
const AgentStateSchemaVersion = 1

// AgentStateDTO is the contract through which collaborators expose the
// non-financial agent state the settlement core needs to read.
type AgentStateDTO struct {
	SchemaVersion int     `json:"schema_version"`
	AgentID       AgentID `json:"agent_id"`
	Survival      float64 `json:"survival"`
	Active        bool    `json:"active"`
}

type DeactivationReason string

const (
	ReasonStarved  DeactivationReason = "starved"
	ReasonBankrupt DeactivationReason = "bankrupt"
	ReasonExited   DeactivationReason = "exited"
)
