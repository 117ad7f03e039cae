package credit

import (
	"fmt"
	"log/slog"

	"monetary_core/internal/domain"
)

// DepositFromCustomer books a liability against part of the depositor's
// balance. Total deposits may never exceed the balance they mirror.
func (b *Book) DepositFromCustomer(depositor domain.AgentID, amount int64) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: %d", domain.ErrInvalidAmount, amount)
	}
	balance, err := b.ledger.GetBalance(depositor)
	if err != nil {
		return "", err
	}
	if held := b.DepositTotal(depositor); held+amount > balance {
		return "", fmt.Errorf("%w: account %d has %d, deposits would be %d",
			domain.ErrInsufficientFunds, depositor, balance, held+amount)
	}

	return b.createDeposit(depositor, amount), nil
}

// WithdrawForCustomer releases deposits newest first. Both the deposits and
// the balance behind them must cover amount.
func (b *Book) WithdrawForCustomer(depositor domain.AgentID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidAmount, amount)
	}
	balance, err := b.ledger.GetBalance(depositor)
	if err != nil {
		return err
	}
	if held := b.DepositTotal(depositor); held < amount || balance < amount {
		return fmt.Errorf("%w: depositor %d holds %d against balance %d, withdrawing %d",
			domain.ErrInsufficientFunds, depositor, held, balance, amount)
	}

	b.consumeDeposits(depositor, amount)
	return nil
}

// Spend debits agent and releases whatever deposits the remaining balance no
// longer covers, as one step.
func (b *Book) Spend(agent domain.AgentID, amount int64) error {
	j := b.ledger.Begin()
	defer j.Rollback()

	if err := b.ledger.Debit(agent, amount); err != nil {
		return err
	}
	if err := b.trimDeposits(agent); err != nil {
		return err
	}
	j.Commit()
	return nil
}

// trimDeposits consumes deposits down to the agent's balance. Callers run it
// inside a journal right after debiting the agent.
func (b *Book) trimDeposits(agent domain.AgentID) error {
	balance, err := b.ledger.GetBalance(agent)
	if err != nil {
		return err
	}

	excess := b.DepositTotal(agent) - max(balance, 0)
	if excess <= 0 {
		return nil
	}
	b.consumeDeposits(agent, excess)

	b.logger.Debug("Deposits released by spending",
		slog.Int64("depositor_id", int64(agent)),
		slog.Int64("amount", excess))
	return nil
}

func (b *Book) DepositsFor(depositor domain.AgentID) []domain.Deposit {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]domain.Deposit(nil), b.deposits[depositor]...)
}

func (b *Book) DepositTotal(depositor domain.AgentID) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total int64
	for _, d := range b.deposits[depositor] {
		total += d.Amount
	}
	return total
}

func (b *Book) createDeposit(depositor domain.AgentID, amount int64) string {
	tick := b.ledger.Tick()

	var id string
	b.mutate(func() {
		b.nextDep++
		id = fmt.Sprintf("dep_%d", b.nextDep)
		b.deposits[depositor] = append(b.deposits[depositor], domain.Deposit{
			ID:          id,
			DepositorID: depositor,
			Amount:      amount,
			CreatedTick: tick,
		})
	}, func() {
		deps := b.deposits[depositor]
		b.setDepositsLocked(depositor, deps[:len(deps)-1])
		b.nextDep--
	})

	b.logger.Debug("Deposit created",
		slog.String("deposit_id", id),
		slog.Int64("depositor_id", int64(depositor)),
		slog.Int64("amount", amount))
	return id
}

// consumeDeposits reduces the depositor's deposits by up to amount, newest
// first, and returns how much was consumed.
func (b *Book) consumeDeposits(depositor domain.AgentID, amount int64) int64 {
	var consumed int64
	var prev []domain.Deposit

	b.mutate(func() {
		deps := b.deposits[depositor]
		prev = append([]domain.Deposit(nil), deps...)

		next := append([]domain.Deposit(nil), deps...)
		for i := len(next) - 1; i >= 0 && consumed < amount; i-- {
			take := min(next[i].Amount, amount-consumed)
			next[i].Amount -= take
			consumed += take
			if next[i].Amount == 0 {
				next = next[:i]
			}
		}
		b.setDepositsLocked(depositor, next)
	}, func() {
		b.setDepositsLocked(depositor, prev)
	})

	return consumed
}

// removeDeposit deletes the deposit with the given id, or failing that the
// newest deposit of depositor whose amount lies within tolerance of amount.
func (b *Book) removeDeposit(depositor domain.AgentID, id string, amount int64) (domain.Deposit, bool) {
	var removed domain.Deposit
	var found bool
	var prev []domain.Deposit

	b.mu.RLock()
	deps := b.deposits[depositor]
	idx := -1
	for i, d := range deps {
		if id != "" && d.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		for i := len(deps) - 1; i >= 0; i-- {
			diff := deps[i].Amount - amount
			if diff < 0 {
				diff = -diff
			}
			if diff <= b.cfg.DepositMatchTolerance {
				idx = i
				break
			}
		}
	}
	b.mu.RUnlock()

	if idx < 0 {
		return removed, false
	}

	b.mutate(func() {
		deps := b.deposits[depositor]
		prev = append([]domain.Deposit(nil), deps...)
		removed = deps[idx]
		found = true

		next := append([]domain.Deposit(nil), deps[:idx]...)
		next = append(next, deps[idx+1:]...)
		b.setDepositsLocked(depositor, next)
	}, func() {
		b.setDepositsLocked(depositor, prev)
	})

	return removed, found
}

func (b *Book) setDepositsLocked(depositor domain.AgentID, deps []domain.Deposit) {
	if len(deps) == 0 {
		delete(b.deposits, depositor)
		return
	}
	b.deposits[depositor] = deps
}
