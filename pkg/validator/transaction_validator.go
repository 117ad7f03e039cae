package validator

import (
	"errors"
	"fmt"
	"regexp"

	"monetary_core/internal/domain"
)

// MaxLegAmount keeps projected balances far from int64 overflow.
const MaxLegAmount int64 = 1 << 50

var (
	ErrInvalidAmount        = errors.New("invalid leg amount")
	ErrInvalidLeg           = errors.New("invalid leg")
	ErrUnbalanced           = errors.New("debits and credits do not balance")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)

var knownTypes = map[domain.TransactionType]struct{}{
	domain.TypeTransfer:           {},
	domain.TypeGoodsPurchase:      {},
	domain.TypeWagePayment:        {},
	domain.TypeTaxPayment:         {},
	domain.TypeLoanRequest:        {},
	domain.TypeLoanFundedPurchase: {},
	domain.TypeLoanRepayment:      {},
	domain.TypeOMOPurchase:        {},
	domain.TypeOMOSale:            {},
	domain.TypeDeficitFinancing:   {},
	domain.TypeCustomerDeposit:    {},
	domain.TypeCustomerWithdrawal: {},
}

// TransactionValidator checks the shape of a transaction. It knows nothing
// about balances or loan state.
type TransactionValidator struct {
	idRegex *regexp.Regexp
	seen    map[string]struct{}
}

func NewTransactionValidator() *TransactionValidator {
	return &TransactionValidator{
		idRegex: regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`),
		seen:    make(map[string]struct{}),
	}
}

func (v *TransactionValidator) ValidateTransaction(tx domain.Transaction, currentTick int64) error {
	var errs []error

	if !v.idRegex.MatchString(tx.ID) {
		errs = append(errs, fmt.Errorf("malformed transaction id %q", tx.ID))
	}
	if _, ok := knownTypes[tx.Type]; !ok {
		errs = append(errs, fmt.Errorf("unknown transaction type %q", tx.Type))
	}
	if len(tx.Legs) == 0 {
		errs = append(errs, errors.New("transaction has no legs"))
	}
	if tx.Tick < 0 {
		errs = append(errs, fmt.Errorf("transaction tick %d is negative", tx.Tick))
	} else if tx.Tick > currentTick {
		errs = append(errs, fmt.Errorf("transaction tick %d is ahead of tick %d", tx.Tick, currentTick))
	}

	var debits, credits int64
	originations := 0
	for i, leg := range tx.Legs {
		if err := ValidateAmount(leg.Amount); err != nil {
			errs = append(errs, fmt.Errorf("leg %d: %w", i, err))
		}
		if err := validateLeg(leg); err != nil {
			errs = append(errs, fmt.Errorf("leg %d: %w", i, err))
		}
		switch leg.Kind {
		case domain.LegDebit:
			debits += leg.Amount
		case domain.LegCredit:
			credits += leg.Amount
		case domain.LegOriginate:
			originations++
		}
	}
	if debits != credits {
		errs = append(errs, fmt.Errorf("%w: %d != %d", ErrUnbalanced, debits, credits))
	}
	if originations > 1 {
		errs = append(errs, fmt.Errorf("%w: more than one originate leg", ErrInvalidLeg))
	}

	if _, ok := v.seen[tx.ID]; ok {
		return fmt.Errorf("%w: %w", domain.ErrInvalidTransaction, ErrDuplicateTransaction)
	}
	v.seen[tx.ID] = struct{}{}

	if len(errs) > 0 {
		return fmt.Errorf("%w: validation errors: %v", domain.ErrInvalidTransaction, errs)
	}

	return nil
}

func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > MaxLegAmount {
		return fmt.Errorf("%w: %d exceeds maximum %d", ErrInvalidAmount, amount, MaxLegAmount)
	}
	return nil
}

func validateLeg(leg domain.Leg) error {
	if leg.AgentID <= 0 {
		return fmt.Errorf("%w: missing agent", ErrInvalidLeg)
	}

	switch leg.Kind {
	case domain.LegDebit, domain.LegCredit, domain.LegOriginate, domain.LegDeposit, domain.LegWithdraw:
		return nil
	case domain.LegRepay:
		if leg.LoanID == "" {
			return fmt.Errorf("%w: repay leg without loan id", ErrInvalidLeg)
		}
		return nil
	case domain.LegIssue, domain.LegRetire:
		if leg.Reason == "" {
			return fmt.Errorf("%w: %s leg without reason", ErrInvalidLeg, leg.Kind)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidLeg, leg.Kind)
	}
}
