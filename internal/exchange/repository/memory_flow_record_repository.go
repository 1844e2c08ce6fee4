package repository

import (
	"context"
	"sort"
	"sync"

	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
)

// InMemoryFlowRecordRepository is a process-local flow log used when no database is configured.
type InMemoryFlowRecordRepository struct {
	mu      sync.RWMutex
	records []*exchangeDomain.FlowRecord
}

// NewInMemoryFlowRecordRepository creates an empty in-memory flow log.
func NewInMemoryFlowRecordRepository() *InMemoryFlowRecordRepository {
	return &InMemoryFlowRecordRepository{}
}

func (r *InMemoryFlowRecordRepository) AppendRecord(ctx context.Context, record *exchangeDomain.FlowRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := *record

	r.mu.Lock()
	r.records = append(r.records, &stored)
	r.mu.Unlock()
	return nil
}

func (r *InMemoryFlowRecordRepository) QueryByParticipant(
	ctx context.Context,
	participant string,
	offset, limit int,
) ([]*exchangeDomain.FlowRecord, error) {
	return r.filter(ctx, offset, limit, func(rec *exchangeDomain.FlowRecord) bool {
		return rec.From == participant || rec.To == participant
	})
}

func (r *InMemoryFlowRecordRepository) QueryByThread(
	ctx context.Context,
	threadID string,
	offset, limit int,
) ([]*exchangeDomain.FlowRecord, error) {
	return r.filter(ctx, offset, limit, func(rec *exchangeDomain.FlowRecord) bool {
		return rec.ThreadID == threadID
	})
}

func (r *InMemoryFlowRecordRepository) filter(
	ctx context.Context,
	offset, limit int,
	match func(*exchangeDomain.FlowRecord) bool,
) ([]*exchangeDomain.FlowRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	out := make([]*exchangeDomain.FlowRecord, 0)
	for _, rec := range r.records {
		if match(rec) {
			c := *rec
			out = append(out, &c)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	if offset >= len(out) || limit <= 0 {
		return []*exchangeDomain.FlowRecord{}, nil
	}
	return out[offset:min(offset+limit, len(out))], nil
}
