// Package credit holds the bank's loan book and deposit liabilities, and the
// central-bank issuance facility.
package credit

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"monetary_core/internal/domain"
	"monetary_core/internal/ledger"
)

type Config struct {
	BankID        domain.AgentID
	CentralBankID domain.AgentID
	DefaultTerms  domain.LoanTerms
	TicksPerYear  int64
	// DepositMatchTolerance is the penny distance within which Void accepts a
	// deposit whose amount merely resembles the loan principal.
	DepositMatchTolerance int64
}

func DefaultConfig(bankID domain.AgentID) Config {
	return Config{
		BankID: bankID,
		DefaultTerms: domain.LoanTerms{
			AnnualRate: decimal.NewFromFloat(0.07),
			TermTicks:  50,
		},
		TicksPerYear: 100,
	}
}

type loanEntry struct {
	seq  int64
	loan *domain.Loan
}

// Book keeps mutex-guarded maps next to the ledger. Every mutation is
// registered with the ledger journal so it rolls back with the balances.
// Book never holds its own lock while calling into the ledger.
type Book struct {
	mu       sync.RWMutex
	ledger   *ledger.Ledger
	cfg      Config
	logger   *slog.Logger
	loans    map[string]*loanEntry
	archive  map[string]*loanEntry
	deposits map[domain.AgentID][]domain.Deposit
	nextLoan int64
	nextDep  int64
}

func New(l *ledger.Ledger, cfg Config, logger *slog.Logger) *Book {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TicksPerYear <= 0 {
		cfg.TicksPerYear = 100
	}

	return &Book{
		ledger:   l,
		cfg:      cfg,
		logger:   logger,
		loans:    make(map[string]*loanEntry),
		archive:  make(map[string]*loanEntry),
		deposits: make(map[domain.AgentID][]domain.Deposit),
	}
}

func (b *Book) BankID() domain.AgentID {
	return b.cfg.BankID
}

func (b *Book) CentralBankID() domain.AgentID {
	return b.cfg.CentralBankID
}

// mutate runs do under the book lock and registers undo with the ledger journal.
func (b *Book) mutate(do, undo func()) {
	b.mu.Lock()
	do()
	b.mu.Unlock()

	b.ledger.OnRollback(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		undo()
	})
}

// Loan returns a copy of the loan, including closed, defaulted and voided
// loans that were moved out of the live book.
func (b *Book) Loan(id string) (domain.Loan, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if e, ok := b.loans[id]; ok {
		return *e.loan, nil
	}
	if e, ok := b.archive[id]; ok {
		return *e.loan, nil
	}
	return domain.Loan{}, fmt.Errorf("%w: %s", domain.ErrLoanNotFound, id)
}

// Contains reports whether id is a live loan.
func (b *Book) Contains(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.loans[id]
	return ok
}

func (b *Book) LoansFor(borrower domain.AgentID) []domain.Loan {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []domain.Loan
	for _, e := range b.liveLocked() {
		if e.loan.BorrowerID == borrower {
			result = append(result, *e.loan)
		}
	}
	return result
}

// Loans returns every live loan in origination order.
func (b *Book) Loans() []domain.Loan {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries := b.liveLocked()
	result := make([]domain.Loan, 0, len(entries))
	for _, e := range entries {
		result = append(result, *e.loan)
	}
	return result
}

func (b *Book) liveLocked() []*loanEntry {
	entries := make([]*loanEntry, 0, len(b.loans))
	for _, e := range b.loans {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	return entries
}

type DebtStatus struct {
	BorrowerID       domain.AgentID `json:"borrower_id"`
	TotalOutstanding int64          `json:"total_outstanding"`
	InterestPerTick  int64          `json:"interest_per_tick"`
	Loans            []domain.Loan  `json:"loans"`
}

func (b *Book) DebtStatus(borrower domain.AgentID) DebtStatus {
	status := DebtStatus{BorrowerID: borrower, Loans: b.LoansFor(borrower)}
	for _, loan := range status.Loans {
		status.TotalOutstanding += loan.Outstanding
		status.InterestPerTick += b.interest(loan)
	}
	return status
}

// Position consolidates the bank's balance sheet. Reserves come from the
// ledger; loan assets and deposit liabilities from the book.
func (b *Book) Position() (domain.BankPosition, error) {
	reserves, err := b.ledger.GetBalance(b.cfg.BankID)
	if err != nil {
		return domain.BankPosition{}, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	pos := domain.BankPosition{BankID: b.cfg.BankID, Reserves: reserves}
	for _, e := range b.loans {
		pos.LoanAssets += e.loan.Outstanding
	}
	for _, deps := range b.deposits {
		for _, d := range deps {
			pos.DepositLiabilities += d.Amount
		}
	}
	return pos, nil
}

// interest is one tick of accrual, rounded half-up to whole pennies.
func (b *Book) interest(loan domain.Loan) int64 {
	return decimal.NewFromInt(loan.Outstanding).
		Mul(loan.AnnualRate).
		Div(decimal.NewFromInt(b.cfg.TicksPerYear)).
		Round(0).
		IntPart()
}
