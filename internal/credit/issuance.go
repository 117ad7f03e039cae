package credit

import (
	"fmt"
	"log/slog"

	"monetary_core/internal/domain"
)

// Issue creates money for agent on behalf of the central bank. The central
// bank's own account mirrors the issuance when one is configured.
func (b *Book) Issue(agent domain.AgentID, amount int64, reason domain.SupplyReason) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidAmount, amount)
	}

	j := b.ledger.Begin()
	defer j.Rollback()

	if b.cfg.CentralBankID != 0 {
		if err := b.ledger.Debit(b.cfg.CentralBankID, amount); err != nil {
			return err
		}
	}
	if err := b.ledger.Credit(agent, amount); err != nil {
		return err
	}
	if err := b.ledger.RecordMonetaryExpansion(amount, reason); err != nil {
		return err
	}
	j.Commit()

	b.logger.Info("Money issued",
		slog.Int64("agent_id", int64(agent)),
		slog.Int64("amount", amount),
		slog.String("reason", string(reason)))
	return nil
}

// Retire destroys money held by agent.
func (b *Book) Retire(agent domain.AgentID, amount int64, reason domain.SupplyReason) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidAmount, amount)
	}

	j := b.ledger.Begin()
	defer j.Rollback()

	if err := b.ledger.Debit(agent, amount); err != nil {
		return err
	}
	if err := b.trimDeposits(agent); err != nil {
		return err
	}
	if b.cfg.CentralBankID != 0 {
		if err := b.ledger.Credit(b.cfg.CentralBankID, amount); err != nil {
			return err
		}
	}
	if err := b.ledger.RecordMonetaryContraction(amount, reason); err != nil {
		return err
	}
	j.Commit()

	b.logger.Info("Money retired",
		slog.Int64("agent_id", int64(agent)),
		slog.Int64("amount", amount),
		slog.String("reason", string(reason)))
	return nil
}
