package credit

import (
	"errors"
	"fmt"
	"log/slog"

	"monetary_core/internal/domain"
)

func (b *Book) Originate(borrower domain.AgentID, principal int64) (string, error) {
	return b.OriginateWithTerms(borrower, principal, b.cfg.DefaultTerms)
}

// OriginateWithTerms credits the borrower with a fresh deposit, books the loan
// as Active and records the expansion. All three happen or none do.
func (b *Book) OriginateWithTerms(borrower domain.AgentID, principal int64, terms domain.LoanTerms) (string, error) {
	if principal <= 0 {
		return "", fmt.Errorf("%w: principal %d", domain.ErrInvalidAmount, principal)
	}
	if borrower == b.cfg.BankID || borrower == b.cfg.CentralBankID {
		return "", fmt.Errorf("%w: agent %d cannot borrow from the bank", domain.ErrInvalidTransaction, borrower)
	}

	j := b.ledger.Begin()
	defer j.Rollback()

	if err := b.ledger.Credit(borrower, principal); err != nil {
		return "", err
	}
	depositID := b.createDeposit(borrower, principal)

	tick := b.ledger.Tick()
	loan := &domain.Loan{
		BorrowerID:       borrower,
		Principal:        principal,
		Outstanding:      principal,
		AnnualRate:       terms.AnnualRate,
		State:            domain.LoanOriginated,
		OriginationTick:  tick,
		DueTick:          tick + terms.TermTicks,
		CreatedDepositID: depositID,
	}
	if err := loan.Transition(domain.LoanActive); err != nil {
		return "", err
	}

	b.mutate(func() {
		b.nextLoan++
		loan.ID = fmt.Sprintf("loan_%d", b.nextLoan)
		b.loans[loan.ID] = &loanEntry{seq: b.nextLoan, loan: loan}
	}, func() {
		delete(b.loans, loan.ID)
		b.nextLoan--
	})

	if err := b.ledger.RecordMonetaryExpansion(principal, domain.ReasonLoanOrigination); err != nil {
		return "", err
	}
	j.Commit()

	b.logger.Info("Loan originated",
		slog.String("loan_id", loan.ID),
		slog.Int64("borrower_id", int64(borrower)),
		slog.Int64("principal", principal),
		slog.String("deposit_id", depositID))
	return loan.ID, nil
}

// lookup returns the live entry for id. A loan that has left the live book
// yields ErrIllegalStateTransition rather than ErrLoanNotFound.
func (b *Book) lookup(id string) (*loanEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if e, ok := b.loans[id]; ok {
		return e, nil
	}
	if e, ok := b.archive[id]; ok {
		return nil, fmt.Errorf("%w: loan %s is %s", domain.ErrIllegalStateTransition, id, e.loan.State)
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrLoanNotFound, id)
}

// CheckRepay reports whether Repay(id, amount) could run against the loan's
// current state, without touching balances.
func (b *Book) CheckRepay(id string, amount int64) (domain.Loan, error) {
	if amount <= 0 {
		return domain.Loan{}, fmt.Errorf("%w: %d", domain.ErrInvalidAmount, amount)
	}
	e, err := b.lookup(id)
	if err != nil {
		return domain.Loan{}, err
	}

	b.mu.RLock()
	loan := *e.loan
	b.mu.RUnlock()

	if !domain.CanTransition(loan.State, domain.LoanRepaying) {
		return loan, fmt.Errorf("%w: loan %s %s -> %s",
			domain.ErrIllegalStateTransition, id, loan.State, domain.LoanRepaying)
	}
	return loan, nil
}

// Repay caps amount at the outstanding balance and returns what was repaid.
func (b *Book) Repay(id string, amount int64) (int64, error) {
	loan, err := b.CheckRepay(id, amount)
	if err != nil {
		return 0, err
	}
	paid := min(amount, loan.Outstanding)

	j := b.ledger.Begin()
	defer j.Rollback()

	if err := b.ledger.Debit(loan.BorrowerID, paid); err != nil {
		return 0, err
	}

	next := loan
	next.Outstanding -= paid
	next.Repaid += paid
	if err := next.Transition(domain.LoanRepaying); err != nil {
		return 0, err
	}
	if next.Outstanding == 0 {
		if err := next.Transition(domain.LoanClosed); err != nil {
			return 0, err
		}
	}
	b.replace(id, next)

	b.consumeDeposits(loan.BorrowerID, paid)

	if err := b.ledger.RecordMonetaryContraction(paid, domain.ReasonLoanRepayment); err != nil {
		return 0, err
	}
	j.Commit()

	b.logger.Info("Loan repaid",
		slog.String("loan_id", id),
		slog.Int64("amount", paid),
		slog.Int64("outstanding", next.Outstanding),
		slog.String("state", string(next.State)))
	return paid, nil
}

// Void reverses a loan and the deposit it created, before the funds were used.
// It reports false, with no side effects, when the loan is unknown, is past
// the point where voiding is legal, or the borrower can no longer cover the
// principal.
func (b *Book) Void(id string) bool {
	e, err := b.lookup(id)
	if err != nil {
		b.logger.Debug("Void skipped", slog.String("loan_id", id), slog.String("error", err.Error()))
		return false
	}

	b.mu.RLock()
	loan := *e.loan
	b.mu.RUnlock()

	next := loan
	if err := next.Transition(domain.LoanVoided); err != nil {
		b.logger.Warn("Void rejected", slog.String("loan_id", id), slog.String("error", err.Error()))
		return false
	}

	j := b.ledger.Begin()
	defer j.Rollback()

	if err := b.ledger.Debit(loan.BorrowerID, loan.Principal); err != nil {
		b.logger.Warn("Void rejected, borrower cannot cover principal",
			slog.String("loan_id", id),
			slog.Int64("borrower_id", int64(loan.BorrowerID)),
			slog.String("error", err.Error()))
		return false
	}

	if dep, ok := b.removeDeposit(loan.BorrowerID, loan.CreatedDepositID, loan.Principal); !ok {
		b.logger.Warn("No deposit matched voided loan",
			slog.String("loan_id", id),
			slog.String("deposit_id", loan.CreatedDepositID),
			slog.Int64("borrower_id", int64(loan.BorrowerID)))
	} else if dep.ID != loan.CreatedDepositID {
		b.logger.Warn("Voided loan matched deposit by amount",
			slog.String("loan_id", id),
			slog.String("deposit_id", dep.ID))
	}

	if err := b.trimDeposits(loan.BorrowerID); err != nil {
		b.logger.Error("Void deposit release failed", slog.String("loan_id", id), slog.String("error", err.Error()))
		return false
	}

	b.replace(id, next)

	if err := b.ledger.RecordMonetaryContraction(loan.Principal, domain.ReasonLoanVoid); err != nil {
		b.logger.Error("Void contraction failed", slog.String("loan_id", id), slog.String("error", err.Error()))
		return false
	}
	j.Commit()

	b.logger.Info("Loan voided", slog.String("loan_id", id), slog.Int64("principal", loan.Principal))
	return true
}

// WriteOff defaults the loan. The borrower keeps the funds; the bank absorbs
// the loss out of its reserves.
func (b *Book) WriteOff(id string) (int64, error) {
	e, err := b.lookup(id)
	if err != nil {
		return 0, err
	}

	b.mu.RLock()
	loan := *e.loan
	b.mu.RUnlock()

	next := loan
	if err := next.Transition(domain.LoanDefaulted); err != nil {
		return 0, err
	}
	lost := loan.Outstanding
	next.Outstanding = 0

	j := b.ledger.Begin()
	defer j.Rollback()

	if lost > 0 {
		if err := b.ledger.Debit(b.cfg.BankID, lost); err != nil {
			return 0, err
		}
	}
	b.replace(id, next)
	if lost > 0 {
		if err := b.ledger.RecordMonetaryContraction(lost, domain.ReasonLoanWriteOff); err != nil {
			return 0, err
		}
	}
	j.Commit()

	b.logger.Warn("Loan written off",
		slog.String("loan_id", id),
		slog.Int64("borrower_id", int64(loan.BorrowerID)),
		slog.Int64("amount", lost))
	return lost, nil
}

// replace swaps the live loan for next, moving it to the archive once terminal.
func (b *Book) replace(id string, next domain.Loan) {
	var prev domain.Loan
	var entry *loanEntry

	b.mutate(func() {
		entry = b.loans[id]
		prev = *entry.loan
		*entry.loan = next
		if next.State.Terminal() {
			delete(b.loans, id)
			b.archive[id] = entry
		}
	}, func() {
		*entry.loan = prev
		if next.State.Terminal() {
			delete(b.archive, id)
			b.loans[id] = entry
		}
	})
}

type EventType string

const (
	EventInterestPaid EventType = "interest_payment"
	EventDefault      EventType = "default"
)

type ServicingEvent struct {
	Type       EventType      `json:"type"`
	LoanID     string         `json:"loan_id"`
	BorrowerID domain.AgentID `json:"borrower_id"`
	Amount     int64          `json:"amount"`
	Tick       int64          `json:"tick"`
}

// ServiceLoans accrues one tick of interest on every live loan and collects it
// from the borrower. A borrower who cannot pay, or whose account has been
// deactivated, defaults.
func (b *Book) ServiceLoans(tick int64) []ServicingEvent {
	var events []ServicingEvent

	for _, loan := range b.Loans() {
		interest := b.interest(loan)
		if interest <= 0 {
			continue
		}

		err := b.collect(loan.BorrowerID, interest)
		if err == nil {
			events = append(events, ServicingEvent{
				Type:       EventInterestPaid,
				LoanID:     loan.ID,
				BorrowerID: loan.BorrowerID,
				Amount:     interest,
				Tick:       tick,
			})
			continue
		}
		if !errors.Is(err, domain.ErrInsufficientFunds) && !errors.Is(err, domain.ErrAgentInactive) {
			b.logger.Error("Interest collection failed",
				slog.String("loan_id", loan.ID),
				slog.String("error", err.Error()))
			continue
		}

		lost, err := b.WriteOff(loan.ID)
		if err != nil {
			b.logger.Error("Write-off failed", slog.String("loan_id", loan.ID), slog.String("error", err.Error()))
			continue
		}
		events = append(events, ServicingEvent{
			Type:       EventDefault,
			LoanID:     loan.ID,
			BorrowerID: loan.BorrowerID,
			Amount:     lost,
			Tick:       tick,
		})
	}

	return events
}

func (b *Book) collect(borrower domain.AgentID, interest int64) error {
	j := b.ledger.Begin()
	defer j.Rollback()

	if err := b.ledger.Debit(borrower, interest); err != nil {
		return err
	}
	if err := b.trimDeposits(borrower); err != nil {
		return err
	}
	if err := b.ledger.Credit(b.cfg.BankID, interest); err != nil {
		return err
	}
	j.Commit()
	return nil
}
