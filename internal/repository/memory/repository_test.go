package memory

import (
	"context"
	"errors"
	"testing"

	"monetary_core/internal/domain"
	"monetary_core/internal/repository"
)

func record(txID string, tick int64, success bool, amount int64, agents ...domain.AgentID) *domain.SettlementRecord {
	return &domain.SettlementRecord{
		Result: domain.TransactionResult{
			Success:         success,
			TransactionID:   txID,
			AmountProcessed: amount,
		},
		Type:   domain.TypeTransfer,
		Tick:   tick,
		Agents: agents,
	}
}

func TestResultRepository_SaveAndGetByID(t *testing.T) {
	repo := NewResultRepository()
	rec := record("tx1", 1, true, 300, 1, 2)

	if err := repo.Save(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error on Save: %v", err)
	}
	got, err := repo.GetByID(context.Background(), "tx1")

	if err != nil {
		t.Fatalf("unexpected error on GetByID: %v", err)
	}
	if got.Result.AmountProcessed != 300 || !got.Result.Success {
		t.Errorf("expected record %+v, got %+v", rec, got)
	}
}

func TestResultRepository_SaveDuplicate(t *testing.T) {
	repo := NewResultRepository()
	_ = repo.Save(context.Background(), record("tx1", 1, true, 10, 1))

	err := repo.Save(context.Background(), record("tx1", 2, false, 0, 1))
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestResultRepository_GetByID_NotFound(t *testing.T) {
	repo := NewResultRepository()

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResultRepository_GetByAgent_NewestFirst(t *testing.T) {
	repo := NewResultRepository()
	_ = repo.Save(context.Background(), record("tx1", 1, true, 10, 1, 2))
	_ = repo.Save(context.Background(), record("tx2", 2, true, 20, 1))
	_ = repo.Save(context.Background(), record("tx3", 3, true, 30, 1))

	got, err := repo.GetByAgent(context.Background(), 1, 2, 0)
	if err != nil {
		t.Fatalf("unexpected error on GetByAgent: %v", err)
	}
	if len(got) != 2 || got[0].Result.TransactionID != "tx3" || got[1].Result.TransactionID != "tx2" {
		t.Errorf("expected [tx3 tx2], got %+v", got)
	}

	got, _ = repo.GetByAgent(context.Background(), 1, 10, 2)
	if len(got) != 1 || got[0].Result.TransactionID != "tx1" {
		t.Errorf("expected [tx1], got %+v", got)
	}

	got, _ = repo.GetByAgent(context.Background(), 1, 10, 5)
	if len(got) != 0 {
		t.Errorf("expected empty page, got %+v", got)
	}

	if _, err := repo.GetByAgent(context.Background(), 99, 10, 0); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown agent, got %v", err)
	}
}

func TestResultRepository_GetByTickAndFailed(t *testing.T) {
	repo := NewResultRepository()
	_ = repo.Save(context.Background(), record("tx1", 1, true, 10, 1))
	_ = repo.Save(context.Background(), record("tx2", 1, false, 0, 1))
	_ = repo.Save(context.Background(), record("tx3", 2, false, 0, 2))

	tick1, _ := repo.GetByTick(context.Background(), 1)
	if len(tick1) != 2 || tick1[0].Result.TransactionID != "tx1" {
		t.Errorf("expected tx1, tx2 in tick 1, got %+v", tick1)
	}

	failed, _ := repo.GetFailed(context.Background())
	if len(failed) != 2 || failed[0].Result.TransactionID != "tx2" || failed[1].Result.TransactionID != "tx3" {
		t.Errorf("expected tx2, tx3 failed, got %+v", failed)
	}
}

func TestResultRepository_GetTickVolume(t *testing.T) {
	repo := NewResultRepository()
	_ = repo.Save(context.Background(), record("tx1", 4, true, 50, 1))
	_ = repo.Save(context.Background(), record("tx2", 4, true, 30, 1))
	_ = repo.Save(context.Background(), record("tx3", 4, false, 0, 1))
	_ = repo.Save(context.Background(), record("tx4", 5, true, 99, 1))

	total, err := repo.GetTickVolume(context.Background(), 1, 4)

	if err != nil {
		t.Fatalf("unexpected error on GetTickVolume: %v", err)
	}
	if total != 80 {
		t.Errorf("expected total 80, got %d", total)
	}
}

func TestRuleRepository_OrderAndCopies(t *testing.T) {
	repo := NewRuleRepository()
	_ = repo.Save(context.Background(), &domain.Rule{ID: "b", Priority: 5, IsActive: true})
	_ = repo.Save(context.Background(), &domain.Rule{ID: "a", Priority: 5, IsActive: true})
	_ = repo.Save(context.Background(), &domain.Rule{ID: "c", Priority: 9, IsActive: true})
	_ = repo.Save(context.Background(), &domain.Rule{ID: "d", Priority: 1, IsActive: false})

	active, err := repo.GetActiveRules(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on GetActiveRules: %v", err)
	}
	if len(active) != 3 || active[0].ID != "c" || active[1].ID != "a" || active[2].ID != "b" {
		t.Fatalf("expected [c a b], got %+v", active)
	}

	active[0].Priority = 0
	got, _ := repo.GetByID(context.Background(), "c")
	if got.Priority != 9 {
		t.Errorf("expected stored rule to be unaffected, got priority %d", got.Priority)
	}
}

func TestRuleRepository_UpdateAndDeactivate(t *testing.T) {
	repo := NewRuleRepository()
	rule := &domain.Rule{ID: "r1", Priority: 1, IsActive: true}
	_ = repo.Save(context.Background(), rule)

	rule.Priority = 3
	if err := repo.Update(context.Background(), rule); err != nil {
		t.Fatalf("unexpected error on Update: %v", err)
	}
	if rule.Version != 2 {
		t.Errorf("expected version 2, got %d", rule.Version)
	}

	if err := repo.Deactivate(context.Background(), "r1"); err != nil {
		t.Fatalf("unexpected error on Deactivate: %v", err)
	}
	got, _ := repo.GetByID(context.Background(), "r1")
	if got.IsActive || got.Version != 3 {
		t.Errorf("expected inactive rule at version 3, got %+v", got)
	}

	inRange, _ := repo.GetByPriority(context.Background(), 0, 10)
	if len(inRange) != 0 {
		t.Errorf("expected no active rules in range, got %+v", inRange)
	}

	if err := repo.Update(context.Background(), &domain.Rule{ID: "missing"}); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
