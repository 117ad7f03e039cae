package memory

import (
	"context"
	"fmt"
	"sync"

	"monetary_core/internal/domain"
	"monetary_core/internal/repository"
)

type ResultRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.SettlementRecord
	order   []string
	index   map[domain.AgentID][]string
}

func NewResultRepository() *ResultRepository {
	return &ResultRepository{
		records: make(map[string]*domain.SettlementRecord),
		index:   make(map[domain.AgentID][]string),
	}
}

func (r *ResultRepository) Save(ctx context.Context, record *domain.SettlementRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := record.Result.TransactionID
	if _, exists := r.records[id]; exists {
		return fmt.Errorf("%w: transaction %s", repository.ErrDuplicate, id)
	}

	r.records[id] = record
	r.order = append(r.order, id)
	for _, agent := range record.Agents {
		r.index[agent] = append(r.index[agent], id)
	}

	return nil
}

func (r *ResultRepository) GetByID(ctx context.Context, transactionID string) (*domain.SettlementRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.records[transactionID]
	if !exists {
		return nil, fmt.Errorf("%w: transaction %s", repository.ErrNotFound, transactionID)
	}
	return record, nil
}

// GetByAgent pages through the agent's records, newest first.
func (r *ResultRepository) GetByAgent(ctx context.Context, agentID domain.AgentID, limit, offset int) ([]*domain.SettlementRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, exists := r.index[agentID]
	if !exists {
		return nil, fmt.Errorf("%w: agent %d", repository.ErrNotFound, agentID)
	}

	if offset >= len(ids) {
		return []*domain.SettlementRecord{}, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}

	result := make([]*domain.SettlementRecord, 0, end-offset)
	for i := offset; i < end; i++ {
		result = append(result, r.records[ids[len(ids)-1-i]])
	}

	return result, nil
}

func (r *ResultRepository) GetByTick(ctx context.Context, tick int64) ([]*domain.SettlementRecord, error) {
	return r.filter(func(rec *domain.SettlementRecord) bool { return rec.Tick == tick }), nil
}

func (r *ResultRepository) GetFailed(ctx context.Context) ([]*domain.SettlementRecord, error) {
	return r.filter(func(rec *domain.SettlementRecord) bool { return !rec.Result.Success }), nil
}

// GetTickVolume sums AmountProcessed over the agent's successful settlements in tick.
func (r *ResultRepository) GetTickVolume(ctx context.Context, agentID domain.AgentID, tick int64) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, id := range r.index[agentID] {
		rec := r.records[id]
		if rec.Tick == tick && rec.Result.Success {
			total += rec.Result.AmountProcessed
		}
	}

	return total, nil
}

// filter returns matching records in insertion order.
func (r *ResultRepository) filter(keep func(*domain.SettlementRecord) bool) []*domain.SettlementRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.SettlementRecord
	for _, id := range r.order {
		if rec := r.records[id]; keep(rec) {
			result = append(result, rec)
		}
	}
	return result
}
