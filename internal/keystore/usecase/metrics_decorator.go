package usecase

import (
	"context"
	"time"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
	"github.com/allisson/credx/internal/metrics"
)

// rotationManagerWithMetrics decorates RotationManager with metrics instrumentation.
type rotationManagerWithMetrics struct {
	next    RotationManager
	metrics metrics.BusinessMetrics
}

// NewRotationManagerWithMetrics wraps a RotationManager with metrics recording.
func NewRotationManagerWithMetrics(next RotationManager, m metrics.BusinessMetrics) RotationManager {
	return &rotationManagerWithMetrics{next: next, metrics: m}
}

func (r *rotationManagerWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.metrics.RecordOperation(ctx, "keystore", operation, status)
	r.metrics.RecordDuration(ctx, "keystore", operation, time.Since(start), status)
}

func (r *rotationManagerWithMetrics) Create(
	ctx context.Context,
	keyID string,
	keyType cryptoDomain.KeyType,
) (keystoreDomain.KeyRef, error) {
	start := time.Now()
	ref, err := r.next.Create(ctx, keyID, keyType)
	r.record(ctx, "key_create", start, err)
	return ref, err
}

func (r *rotationManagerWithMetrics) ShouldRotate(ctx context.Context, keyID string) (bool, error) {
	return r.next.ShouldRotate(ctx, keyID)
}

func (r *rotationManagerWithMetrics) BeginRotation(
	ctx context.Context,
	keyID string,
) (keystoreDomain.KeyRef, keystoreDomain.KeyRef, error) {
	start := time.Now()
	oldRef, newRef, err := r.next.BeginRotation(ctx, keyID)
	r.record(ctx, "key_rotation_begin", start, err)
	return oldRef, newRef, err
}

func (r *rotationManagerWithMetrics) CompleteRotation(ctx context.Context, keyID string) ([]keystoreDomain.KeyRef, error) {
	start := time.Now()
	refs, err := r.next.CompleteRotation(ctx, keyID)
	r.record(ctx, "key_rotation_complete", start, err)
	return refs, err
}

func (r *rotationManagerWithMetrics) Rotate(
	ctx context.Context,
	keyID string,
) (keystoreDomain.KeyRef, keystoreDomain.KeyRef, error) {
	start := time.Now()
	oldRef, newRef, err := r.next.Rotate(ctx, keyID)
	r.record(ctx, "key_rotate", start, err)
	return oldRef, newRef, err
}

func (r *rotationManagerWithMetrics) RecordUse(ref keystoreDomain.KeyRef) {
	r.next.RecordUse(ref)
}

func (r *rotationManagerWithMetrics) FlushUsage(ctx context.Context) error {
	return r.next.FlushUsage(ctx)
}
