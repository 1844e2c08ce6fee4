package usecase

import (
	"context"
	"time"

	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
	"github.com/allisson/credx/internal/metrics"
)

// exchangeUseCaseWithMetrics decorates ExchangeUseCase with metrics instrumentation.
type exchangeUseCaseWithMetrics struct {
	next    ExchangeUseCase
	metrics metrics.BusinessMetrics
}

// NewExchangeUseCaseWithMetrics wraps an ExchangeUseCase with metrics recording.
func NewExchangeUseCaseWithMetrics(next ExchangeUseCase, m metrics.BusinessMetrics) ExchangeUseCase {
	return &exchangeUseCaseWithMetrics{next: next, metrics: m}
}

func (e *exchangeUseCaseWithMetrics) record(
	ctx context.Context,
	op exchangeDomain.Operation,
	start time.Time,
	err error,
) {
	status := "success"
	if err != nil {
		status = "error"
	}
	e.metrics.RecordOperation(ctx, "exchange", op.MetricName(), status)
	e.metrics.RecordDuration(ctx, "exchange", op.MetricName(), time.Since(start), status)
}

func (e *exchangeUseCaseWithMetrics) OfferCredential(
	ctx context.Context,
	input *OfferInput,
) (*exchangeDomain.Result, error) {
	start := time.Now()
	result, err := e.next.OfferCredential(ctx, input)
	e.record(ctx, exchangeDomain.OfferCredential, start, err)
	return result, err
}

func (e *exchangeUseCaseWithMetrics) RequestCredential(
	ctx context.Context,
	input *StepInput,
) (*exchangeDomain.Result, error) {
	start := time.Now()
	result, err := e.next.RequestCredential(ctx, input)
	e.record(ctx, exchangeDomain.RequestCredential, start, err)
	return result, err
}

func (e *exchangeUseCaseWithMetrics) IssueCredential(
	ctx context.Context,
	input *StepInput,
) (*exchangeDomain.Result, error) {
	start := time.Now()
	result, err := e.next.IssueCredential(ctx, input)
	e.record(ctx, exchangeDomain.IssueCredential, start, err)
	return result, err
}

func (e *exchangeUseCaseWithMetrics) RequestProof(
	ctx context.Context,
	input *ProofRequestInput,
) (*exchangeDomain.Result, error) {
	start := time.Now()
	result, err := e.next.RequestProof(ctx, input)
	e.record(ctx, exchangeDomain.RequestProof, start, err)
	return result, err
}

func (e *exchangeUseCaseWithMetrics) PresentProof(
	ctx context.Context,
	input *StepInput,
) (*exchangeDomain.Result, error) {
	start := time.Now()
	result, err := e.next.PresentProof(ctx, input)
	e.record(ctx, exchangeDomain.PresentProof, start, err)
	return result, err
}

func (e *exchangeUseCaseWithMetrics) Flow(ctx context.Context, flowID string) (*exchangeDomain.ExchangeFlow, error) {
	return e.next.Flow(ctx, flowID)
}

func (e *exchangeUseCaseWithMetrics) FlowsByThread(
	ctx context.Context,
	threadID string,
) ([]*exchangeDomain.ExchangeFlow, error) {
	return e.next.FlowsByThread(ctx, threadID)
}

func (e *exchangeUseCaseWithMetrics) ChildFlows(
	ctx context.Context,
	parentThreadID string,
) ([]*exchangeDomain.ExchangeFlow, error) {
	return e.next.ChildFlows(ctx, parentThreadID)
}

func (e *exchangeUseCaseWithMetrics) ExpireStale(ctx context.Context, now time.Time) ([]string, error) {
	start := time.Now()
	expired, err := e.next.ExpireStale(ctx, now)
	status := "success"
	if err != nil {
		status = "error"
	}
	e.metrics.RecordOperation(ctx, "exchange", "flow_expire", status)
	e.metrics.RecordDuration(ctx, "exchange", "flow_expire", time.Since(start), status)
	return expired, err
}

func (e *exchangeUseCaseWithMetrics) Protocols(ctx context.Context) []exchangeDomain.ProtocolDescriptor {
	return e.next.Protocols(ctx)
}

func (e *exchangeUseCaseWithMetrics) History(
	ctx context.Context,
	threadID string,
	offset, limit int,
) ([]*exchangeDomain.FlowRecord, error) {
	return e.next.History(ctx, threadID, offset, limit)
}

func (e *exchangeUseCaseWithMetrics) ParticipantHistory(
	ctx context.Context,
	participant string,
	offset, limit int,
) ([]*exchangeDomain.FlowRecord, error) {
	return e.next.ParticipantHistory(ctx, participant, offset, limit)
}
