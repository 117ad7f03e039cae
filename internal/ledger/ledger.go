// Package ledger is the single source of truth for account balances and the
// money-supply counter.
package ledger

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"monetary_core/internal/domain"
)

type Ledger struct {
	mu       sync.RWMutex
	accounts map[domain.AgentID]*domain.Account
	supply   int64
	history  []domain.SupplyChange
	tick     int64
	journal  *Journal
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}

	return &Ledger{
		accounts: make(map[domain.AgentID]*domain.Account),
		logger:   logger,
	}
}

// Open creates an account. It does not touch the money supply; callers that
// inject initial cash must record the expansion themselves.
func (l *Ledger) Open(account domain.Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !account.Kind.Valid() {
		return fmt.Errorf("%w: unknown agent kind %q", domain.ErrInvalidTransaction, account.Kind)
	}
	if _, exists := l.accounts[account.AgentID]; exists {
		return fmt.Errorf("%w: account %d", domain.ErrDuplicateAgent, account.AgentID)
	}
	if account.Balance < 0 && !account.Kind.HasOverdraft() {
		return fmt.Errorf("%w: opening balance %d", domain.ErrInvalidAmount, account.Balance)
	}

	acc := account
	acc.Active = true
	acc.OpenedTick = l.tick
	l.accounts[acc.AgentID] = &acc

	id := acc.AgentID
	l.recordUndo(func() { delete(l.accounts, id) })
	return nil
}

func (l *Ledger) Deactivate(id domain.AgentID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, exists := l.accounts[id]
	if !exists {
		return fmt.Errorf("%w: account %d", domain.ErrUnknownAgent, id)
	}
	if !acc.Active {
		return fmt.Errorf("%w: account %d", domain.ErrAgentInactive, id)
	}

	acc.Active = false
	l.recordUndo(func() { acc.Active = true })
	return nil
}

func (l *Ledger) GetBalance(id domain.AgentID) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, exists := l.accounts[id]
	if !exists {
		return 0, fmt.Errorf("%w: account %d", domain.ErrUnknownAgent, id)
	}
	return acc.Balance, nil
}

func (l *Ledger) Account(id domain.AgentID) (domain.Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, exists := l.accounts[id]
	if !exists {
		return domain.Account{}, fmt.Errorf("%w: account %d", domain.ErrUnknownAgent, id)
	}
	return *acc, nil
}

func (l *Ledger) Exists(id domain.AgentID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, exists := l.accounts[id]
	return exists
}

// Accounts returns copies of every account in ascending AgentID order.
func (l *Ledger) Accounts() []domain.Account {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]domain.Account, 0, len(l.accounts))
	for _, acc := range l.accounts {
		result = append(result, *acc)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AgentID < result[j].AgentID
	})
	return result
}

func (l *Ledger) Credit(id domain.AgentID, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.mutable(id, amount)
	if err != nil {
		return err
	}

	acc.Balance += amount
	l.recordUndo(func() { acc.Balance -= amount })
	return nil
}

// Debit fails with ErrInsufficientFunds when amount exceeds the balance, unless
// the account kind carries overdraft privilege.
func (l *Ledger) Debit(id domain.AgentID, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.mutable(id, amount)
	if err != nil {
		return err
	}
	if amount > acc.Balance && !acc.Kind.HasOverdraft() {
		return fmt.Errorf("%w: account %d has %d, needs %d", domain.ErrInsufficientFunds, id, acc.Balance, amount)
	}

	acc.Balance -= amount
	l.recordUndo(func() { acc.Balance += amount })
	return nil
}

func (l *Ledger) mutable(id domain.AgentID, amount int64) (*domain.Account, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidAmount, amount)
	}
	acc, exists := l.accounts[id]
	if !exists {
		return nil, fmt.Errorf("%w: account %d", domain.ErrUnknownAgent, id)
	}
	if !acc.Active {
		return nil, fmt.Errorf("%w: account %d", domain.ErrAgentInactive, id)
	}
	return acc, nil
}

func (l *Ledger) RecordMonetaryExpansion(amount int64, reason domain.SupplyReason) error {
	return l.moveSupply(amount, reason)
}

func (l *Ledger) RecordMonetaryContraction(amount int64, reason domain.SupplyReason) error {
	return l.moveSupply(-amount, reason)
}

func (l *Ledger) moveSupply(delta int64, reason domain.SupplyReason) error {
	if delta == 0 || reason == "" {
		return fmt.Errorf("%w: supply change %d (%s)", domain.ErrInvalidAmount, delta, reason)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.supply += delta
	l.history = append(l.history, domain.SupplyChange{Tick: l.tick, Delta: delta, Reason: reason})
	n := len(l.history) - 1
	l.recordUndo(func() {
		l.supply -= delta
		l.history = l.history[:n]
	})

	l.logger.Debug("Money supply changed",
		slog.Int64("delta", delta),
		slog.String("reason", string(reason)),
		slog.Int64("money_supply", l.supply),
		slog.Int64("tick", l.tick))
	return nil
}

func (l *Ledger) MoneySupply() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply
}

func (l *Ledger) SupplyHistory() []domain.SupplyChange {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.SupplyChange(nil), l.history...)
}

func (l *Ledger) SetTick(tick int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tick = tick
}

func (l *Ledger) Tick() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tick
}
