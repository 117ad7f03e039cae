package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type LoanState string

const (
	LoanOriginated LoanState = "originated"
	LoanActive     LoanState = "active"
	LoanRepaying   LoanState = "repaying"
	LoanClosed     LoanState = "closed"
	LoanDefaulted  LoanState = "defaulted"
	LoanVoided     LoanState = "voided"
)

var loanTransitions = map[LoanState][]LoanState{
	LoanOriginated: {LoanActive, LoanVoided},
	LoanActive:     {LoanRepaying, LoanDefaulted, LoanVoided},
	LoanRepaying:   {LoanRepaying, LoanClosed, LoanDefaulted},
}

// CanTransition reports whether the loan state machine allows from -> to.
func CanTransition(from, to LoanState) bool {
	for _, s := range loanTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s LoanState) Terminal() bool {
	return s == LoanClosed || s == LoanDefaulted || s == LoanVoided
}

type Loan struct {
	ID               string          `json:"id"`
	BorrowerID       AgentID         `json:"borrower_id"`
	Principal        int64           `json:"principal"`
	Outstanding      int64           `json:"outstanding"`
	Repaid           int64           `json:"repaid"`
	AnnualRate       decimal.Decimal `json:"annual_rate"`
	State            LoanState       `json:"state"`
	OriginationTick  int64           `json:"origination_tick"`
	DueTick          int64           `json:"due_tick"`
	CreatedDepositID string          `json:"created_deposit_id,omitempty"`
}

// Transition moves the loan to the next state or fails with ErrIllegalStateTransition.
func (l *Loan) Transition(to LoanState) error {
	if !CanTransition(l.State, to) {
		return fmt.Errorf("%w: loan %s %s -> %s", ErrIllegalStateTransition, l.ID, l.State, to)
	}
	if to == LoanVoided && l.Repaid > 0 {
		return fmt.Errorf("%w: loan %s already repaid %d", ErrIllegalStateTransition, l.ID, l.Repaid)
	}
	l.State = to
	return nil
}

type LoanTerms struct {
	AnnualRate decimal.Decimal
	TermTicks  int64
}
