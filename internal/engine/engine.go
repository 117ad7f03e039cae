// Package engine applies transactions to the ledger and loan book with
// all-or-nothing semantics.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"monetary_core/internal/credit"
	"monetary_core/internal/domain"
	"monetary_core/internal/ledger"
	"monetary_core/internal/repository"
	"monetary_core/pkg/validator"
)

// CommitHook runs before every leg of the commit phase. A non-nil error
// aborts the transaction and rolls back the legs already applied.
type CommitHook interface {
	BeforeLeg(ctx context.Context, tx domain.Transaction, index int, leg domain.Leg) error
}

type CommitHookFunc func(ctx context.Context, tx domain.Transaction, index int, leg domain.Leg) error

func (f CommitHookFunc) BeforeLeg(ctx context.Context, tx domain.Transaction, index int, leg domain.Leg) error {
	return f(ctx, tx, index, leg)
}

// Recorder receives settlement telemetry. *metrics.MetricsCollector satisfies it.
type Recorder interface {
	RecordSettlement(txType string, duration time.Duration, success bool, errorKind string)
	RecordRollback()
}

type Engine struct {
	ledger    *ledger.Ledger
	book      *credit.Book
	validator *validator.TransactionValidator
	results   repository.ResultRepository
	hooks     []CommitHook
	recorder  Recorder
	mu        sync.Mutex
	logger    *slog.Logger
}

// New builds an engine. results may be nil, in which case no audit trail is kept.
func New(l *ledger.Ledger, book *credit.Book, results repository.ResultRepository, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		ledger:    l,
		book:      book,
		validator: validator.NewTransactionValidator(),
		results:   results,
		logger:    logger,
	}
}

func (e *Engine) Use(hook CommitHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = append(e.hooks, hook)
}

func (e *Engine) SetRecorder(r Recorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorder = r
}

// Apply settles tx. After it returns either every leg is visible or none is.
func (e *Engine) Apply(ctx context.Context, tx domain.Transaction) domain.TransactionResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	result := e.apply(ctx, tx)
	e.finish(ctx, tx, result, time.Since(start))
	return result
}

// ApplyBatch advances the ledger to tick and applies txs in the given order.
// Transactions left over when ctx is cancelled are rejected untouched.
func (e *Engine) ApplyBatch(ctx context.Context, tick int64, txs []domain.Transaction) []domain.TransactionResult {
	e.ledger.SetTick(tick)

	results := make([]domain.TransactionResult, 0, len(txs))
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			results = append(results, domain.Failed(tx.ID, err))
			continue
		}
		results = append(results, e.Apply(ctx, tx))
	}
	return results
}

func (e *Engine) apply(ctx context.Context, tx domain.Transaction) domain.TransactionResult {
	if err := e.validator.ValidateTransaction(tx, e.ledger.Tick()); err != nil {
		return domain.Failed(tx.ID, err)
	}

	order := commitOrder(tx.Legs)
	if err := e.project(tx, order); err != nil {
		return domain.Failed(tx.ID, err)
	}

	return e.commit(ctx, tx, order)
}

func (e *Engine) commit(ctx context.Context, tx domain.Transaction, order []int) domain.TransactionResult {
	result := domain.TransactionResult{TransactionID: tx.ID}

	j := e.ledger.Begin()
	defer j.Rollback()

	for _, idx := range order {
		leg := tx.Legs[idx]

		err := e.runHooks(ctx, tx, idx, leg)
		if err == nil {
			var settled int64
			settled, err = e.applyLeg(leg, &result)
			result.AmountProcessed += settled
		}
		if err != nil {
			j.Rollback()
			if e.recorder != nil {
				e.recorder.RecordRollback()
			}
			e.logger.WarnContext(ctx, "Commit rolled back",
				slog.String("transaction_id", tx.ID),
				slog.Int("leg", idx),
				slog.String("leg_kind", string(leg.Kind)),
				slog.Int64("agent_id", int64(leg.AgentID)),
				slog.String("error", err.Error()))
			return domain.Failed(tx.ID, err)
		}
	}

	j.Commit()
	result.Success = true
	return result
}

func (e *Engine) runHooks(ctx context.Context, tx domain.Transaction, idx int, leg domain.Leg) error {
	for _, h := range e.hooks {
		if err := h.BeforeLeg(ctx, tx, idx, leg); err != nil {
			return err
		}
	}
	return nil
}

// applyLeg books one leg and returns the value it settled. Credits settle
// nothing of their own: each one is the receiving side of a debit.
func (e *Engine) applyLeg(leg domain.Leg, result *domain.TransactionResult) (int64, error) {
	switch leg.Kind {
	case domain.LegDebit:
		return leg.Amount, e.book.Spend(leg.AgentID, leg.Amount)
	case domain.LegCredit:
		return 0, e.ledger.Credit(leg.AgentID, leg.Amount)
	case domain.LegOriginate:
		loanID, err := e.book.Originate(leg.AgentID, leg.Amount)
		if err != nil {
			return 0, err
		}
		result.LoanID = loanID
		return leg.Amount, nil
	case domain.LegRepay:
		// capped at the outstanding balance
		return e.book.Repay(leg.LoanID, leg.Amount)
	case domain.LegIssue:
		return leg.Amount, e.book.Issue(leg.AgentID, leg.Amount, leg.Reason)
	case domain.LegRetire:
		return leg.Amount, e.book.Retire(leg.AgentID, leg.Amount, leg.Reason)
	case domain.LegDeposit:
		_, err := e.book.DepositFromCustomer(leg.AgentID, leg.Amount)
		return leg.Amount, err
	case domain.LegWithdraw:
		return leg.Amount, e.book.WithdrawForCustomer(leg.AgentID, leg.Amount)
	}
	return 0, fmt.Errorf("%w: leg kind %q", domain.ErrInvalidTransaction, leg.Kind)
}

func (e *Engine) finish(ctx context.Context, tx domain.Transaction, result domain.TransactionResult, elapsed time.Duration) {
	if e.recorder != nil {
		e.recorder.RecordSettlement(string(tx.Type), elapsed, result.Success, result.ErrorKind)
	}

	if result.Success {
		e.logger.InfoContext(ctx, "Transaction settled",
			slog.String("transaction_id", tx.ID),
			slog.String("type", string(tx.Type)),
			slog.Int64("tick", tx.Tick),
			slog.Int64("amount_processed", result.AmountProcessed))
	} else {
		e.logger.WarnContext(ctx, "Transaction rejected",
			slog.String("transaction_id", tx.ID),
			slog.String("type", string(tx.Type)),
			slog.String("error_kind", result.ErrorKind),
			slog.String("error", result.ErrorMessage))
	}

	if e.results == nil || tx.ID == "" {
		return
	}
	record := &domain.SettlementRecord{
		Result: result,
		Type:   tx.Type,
		Tick:   tx.Tick,
		Agents: tx.Agents(),
	}
	if err := e.results.Save(ctx, record); errors.Is(err, repository.ErrDuplicate) {
		e.logger.DebugContext(ctx, "Settlement record already stored", slog.String("transaction_id", tx.ID))
	} else if err != nil {
		e.logger.ErrorContext(ctx, "Failed to save settlement record",
			slog.String("transaction_id", tx.ID),
			slog.String("error", err.Error()))
	}
}

// commitOrder returns leg indices sorted by principal agent, then leg index.
func commitOrder(legs []domain.Leg) []int {
	order := make([]int, len(legs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return legs[order[a]].AgentID < legs[order[b]].AgentID
	})
	return order
}
