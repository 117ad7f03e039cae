package repository

import (
	"context"
	"errors"

	"monetary_core/internal/domain"
)

// ResultRepository keeps the settlement audit trail. Records are append-only.
type ResultRepository interface {
	Save(ctx context.Context, record *domain.SettlementRecord) error
	GetByID(ctx context.Context, transactionID string) (*domain.SettlementRecord, error)
	GetByAgent(ctx context.Context, agentID domain.AgentID, limit, offset int) ([]*domain.SettlementRecord, error)
	GetByTick(ctx context.Context, tick int64) ([]*domain.SettlementRecord, error)
	GetFailed(ctx context.Context) ([]*domain.SettlementRecord, error)
	GetTickVolume(ctx context.Context, agentID domain.AgentID, tick int64) (int64, error)
}

type RuleRepository interface {
	Save(ctx context.Context, rule *domain.Rule) error
	GetByID(ctx context.Context, id string) (*domain.Rule, error)
	GetAll(ctx context.Context) ([]*domain.Rule, error)
	GetByType(ctx context.Context, ruleType domain.RuleType) ([]*domain.Rule, error)
	GetActiveRules(ctx context.Context) ([]*domain.Rule, error)
	Update(ctx context.Context, rule *domain.Rule) error
	Deactivate(ctx context.Context, id string) error
	GetByPriority(ctx context.Context, minPriority, maxPriority int) ([]*domain.Rule, error)
}

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
)
