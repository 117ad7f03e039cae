package domain

import "errors"

var (
	ErrUnknownAgent            = errors.New("unknown agent")
	ErrDuplicateAgent          = errors.New("agent already registered")
	ErrAgentInactive           = errors.New("agent inactive")
	ErrInvalidAmount           = errors.New("amount must be greater than zero")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrLoanNotFound            = errors.New("loan not found")
	ErrIllegalStateTransition  = errors.New("illegal loan state transition")
	ErrAgentRegistrationFailed = errors.New("agent registration failed")
	ErrRuleBlocked             = errors.New("blocked by bank rule")
	ErrInvalidTransaction      = errors.New("invalid transaction")
)

// Error kinds reported in TransactionResult.ErrorKind.
const (
	KindUnknownAgent           = "UNKNOWN_AGENT"
	KindDuplicateAgent         = "DUPLICATE_AGENT"
	KindAgentInactive          = "AGENT_INACTIVE"
	KindInvalidAmount          = "INVALID_AMOUNT"
	KindInsufficientFunds      = "INSUFFICIENT_FUNDS"
	KindLoanNotFound           = "LOAN_NOT_FOUND"
	KindIllegalStateTransition = "ILLEGAL_STATE_TRANSITION"
	KindRegistrationFailed     = "AGENT_REGISTRATION_FAILED"
	KindRuleBlocked            = "RULE_BLOCKED"
	KindInvalidTransaction     = "INVALID_TRANSACTION"
	KindInternal               = "INTERNAL"
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrAgentRegistrationFailed, KindRegistrationFailed},
	{ErrRuleBlocked, KindRuleBlocked},
	{ErrUnknownAgent, KindUnknownAgent},
	{ErrDuplicateAgent, KindDuplicateAgent},
	{ErrAgentInactive, KindAgentInactive},
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrLoanNotFound, KindLoanNotFound},
	{ErrIllegalStateTransition, KindIllegalStateTransition},
	{ErrInvalidTransaction, KindInvalidTransaction},
}

// ErrorKind maps an error chain to its stable code. Nil maps to "". Wrapping
// sentinels are listed first so they win over the cause they carry.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
