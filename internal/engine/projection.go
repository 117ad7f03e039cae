package engine

import (
	"fmt"

	"monetary_core/internal/domain"
)

// projection is the validation-phase view of the state a transaction would
// produce. Nothing in it touches the ledger or the book.
type projection struct {
	engine   *Engine
	accounts map[domain.AgentID]*domain.Account
	deposits map[domain.AgentID]int64
	loans    map[string]*domain.Loan
}

// project walks the legs in commit order and fails on the first leg the
// current state could not honor.
func (e *Engine) project(tx domain.Transaction, order []int) error {
	p := &projection{
		engine:   e,
		accounts: make(map[domain.AgentID]*domain.Account),
		deposits: make(map[domain.AgentID]int64),
		loans:    make(map[string]*domain.Loan),
	}

	for _, idx := range order {
		if err := p.leg(tx.Legs[idx]); err != nil {
			return fmt.Errorf("leg %d: %w", idx, err)
		}
	}
	return nil
}

func (p *projection) account(id domain.AgentID) (*domain.Account, error) {
	if acc, ok := p.accounts[id]; ok {
		return acc, nil
	}

	acc, err := p.engine.ledger.Account(id)
	if err != nil {
		return nil, err
	}
	if !acc.Active {
		return nil, fmt.Errorf("%w: account %d", domain.ErrAgentInactive, id)
	}
	p.accounts[id] = &acc
	p.deposits[id] = p.engine.book.DepositTotal(id)
	return &acc, nil
}

func (p *projection) leg(leg domain.Leg) error {
	acc, err := p.account(leg.AgentID)
	if err != nil {
		return err
	}

	switch leg.Kind {
	case domain.LegDebit, domain.LegCredit:
		if acc.Kind.IsIssuer() {
			return fmt.Errorf("%w: central bank account %d moves only through issue and retire",
				domain.ErrInvalidTransaction, acc.AgentID)
		}
		if leg.Kind == domain.LegCredit {
			acc.Balance += leg.Amount
			return nil
		}
		return p.withdraw(acc, leg.Amount)

	case domain.LegOriginate:
		if acc.AgentID == p.engine.book.BankID() || acc.Kind.IsIssuer() {
			return fmt.Errorf("%w: agent %d cannot borrow from the bank", domain.ErrInvalidTransaction, acc.AgentID)
		}
		if _, err := p.account(p.engine.book.BankID()); err != nil {
			return fmt.Errorf("lending bank: %w", err)
		}
		acc.Balance += leg.Amount
		p.deposits[acc.AgentID] += leg.Amount
		return nil

	case domain.LegRepay:
		return p.repay(acc, leg)

	case domain.LegIssue, domain.LegRetire:
		return p.issuance(acc, leg)

	case domain.LegDeposit:
		if p.deposits[acc.AgentID]+leg.Amount > acc.Balance {
			return fmt.Errorf("%w: account %d has %d, deposits would be %d",
				domain.ErrInsufficientFunds, acc.AgentID, acc.Balance, p.deposits[acc.AgentID]+leg.Amount)
		}
		p.deposits[acc.AgentID] += leg.Amount
		return nil

	case domain.LegWithdraw:
		if held := p.deposits[acc.AgentID]; held < leg.Amount || acc.Balance < leg.Amount {
			return fmt.Errorf("%w: depositor %d holds %d against balance %d, withdrawing %d",
				domain.ErrInsufficientFunds, acc.AgentID, held, acc.Balance, leg.Amount)
		}
		p.deposits[acc.AgentID] -= leg.Amount
		return nil
	}

	return fmt.Errorf("%w: unknown leg kind %q", domain.ErrInvalidTransaction, leg.Kind)
}

func (p *projection) withdraw(acc *domain.Account, amount int64) error {
	if amount > acc.Balance && !acc.Kind.HasOverdraft() {
		return fmt.Errorf("%w: account %d has %d, needs %d",
			domain.ErrInsufficientFunds, acc.AgentID, acc.Balance, amount)
	}
	acc.Balance -= amount
	if covered := max(acc.Balance, 0); p.deposits[acc.AgentID] > covered {
		p.deposits[acc.AgentID] = covered
	}
	return nil
}

func (p *projection) repay(acc *domain.Account, leg domain.Leg) error {
	loan, ok := p.loans[leg.LoanID]
	if !ok {
		current, err := p.engine.book.CheckRepay(leg.LoanID, leg.Amount)
		if err != nil {
			return err
		}
		loan = &current
		p.loans[leg.LoanID] = loan
	}

	if loan.BorrowerID != acc.AgentID {
		return fmt.Errorf("%w: loan %s belongs to agent %d", domain.ErrInvalidTransaction, loan.ID, loan.BorrowerID)
	}
	if !domain.CanTransition(loan.State, domain.LoanRepaying) {
		return fmt.Errorf("%w: loan %s %s -> %s",
			domain.ErrIllegalStateTransition, loan.ID, loan.State, domain.LoanRepaying)
	}

	paid := min(leg.Amount, loan.Outstanding)
	p.deposits[acc.AgentID] -= min(paid, p.deposits[acc.AgentID])
	if err := p.withdraw(acc, paid); err != nil {
		return err
	}

	loan.Outstanding -= paid
	loan.State = domain.LoanRepaying
	if loan.Outstanding == 0 {
		loan.State = domain.LoanClosed
	}
	return nil
}

func (p *projection) issuance(acc *domain.Account, leg domain.Leg) error {
	if acc.Kind.IsIssuer() {
		return fmt.Errorf("%w: central bank cannot be its own counterparty", domain.ErrInvalidTransaction)
	}

	var cb *domain.Account
	if id := p.engine.book.CentralBankID(); id != 0 {
		var err error
		if cb, err = p.account(id); err != nil {
			return fmt.Errorf("central bank: %w", err)
		}
	}

	if leg.Kind == domain.LegIssue {
		acc.Balance += leg.Amount
		if cb != nil {
			cb.Balance -= leg.Amount
		}
		return nil
	}

	if err := p.withdraw(acc, leg.Amount); err != nil {
		return err
	}
	if cb != nil {
		cb.Balance += leg.Amount
	}
	return nil
}
