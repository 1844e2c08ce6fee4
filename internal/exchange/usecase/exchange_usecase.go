// Package usecase orchestrates credential exchange flows.
//
// The exchange use case is the single entry point for the five exchange
// operations. Every call goes through the same pipeline:
//
//  1. the input is validated and given a message id when it has none;
//  2. the protocol registry checks that the named protocol exists and declares
//     the operation, so capability failures surface before any flow is touched;
//  3. the correlator opens or advances the flow under that flow's lock;
//  4. inside the lock the protocol builds the wire message for the step.
//
// Steps run under the configured dispatch timeout. A step that hits its
// deadline leaves the flow untouched and fails with a TimeoutError; a step that
// completed is recorded under its message id, so retrying the same message id
// returns the recorded result instead of running the protocol again.
//
// Flows opened without an explicit expiry get one FlowTTL from now.
package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/credx/internal/errors"
	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
	exchangeService "github.com/allisson/credx/internal/exchange/service"
)

// Config holds the exchange use case settings.
type Config struct {
	DispatchTimeout time.Duration
	FlowTTL         time.Duration
}

type exchangeUseCase struct {
	registry   *exchangeService.Registry
	correlator *exchangeService.Correlator
	flowLog    exchangeService.FlowLog
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// NewExchangeUseCase creates an ExchangeUseCase. flowLog may be nil.
func NewExchangeUseCase(
	registry *exchangeService.Registry,
	correlator *exchangeService.Correlator,
	flowLog exchangeService.FlowLog,
	cfg Config,
	logger *slog.Logger,
) ExchangeUseCase {
	return &exchangeUseCase{
		registry:   registry,
		correlator: correlator,
		flowLog:    flowLog,
		cfg:        cfg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (u *exchangeUseCase) OfferCredential(
	ctx context.Context,
	input *OfferInput,
) (*exchangeDomain.Result, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	seed := &exchangeDomain.ExchangeFlow{
		Protocol:         input.Protocol,
		IssuerOrVerifier: input.Issuer,
		HolderOrProver:   input.Holder,
		ThreadID:         input.ThreadID,
		ParentThreadID:   input.ParentThreadID,
		Claims:           input.Claims,
		ExpiresAt:        u.expiry(input.ExpiresAt),
	}
	req := exchangeDomain.Request{
		MessageID: messageID(input.MessageID),
		Claims:    input.Claims,
		ExpiresAt: input.ExpiresAt,
	}
	return u.begin(ctx, exchangeDomain.OfferCredential, seed, req)
}

func (u *exchangeUseCase) RequestProof(
	ctx context.Context,
	input *ProofRequestInput,
) (*exchangeDomain.Result, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	seed := &exchangeDomain.ExchangeFlow{
		Protocol:         input.Protocol,
		IssuerOrVerifier: input.Verifier,
		HolderOrProver:   input.Prover,
		ThreadID:         input.ThreadID,
		ParentThreadID:   input.ParentThreadID,
		Query:            input.Query,
		ExpiresAt:        u.expiry(input.ExpiresAt),
	}
	req := exchangeDomain.Request{
		MessageID: messageID(input.MessageID),
		Query:     input.Query,
		ExpiresAt: input.ExpiresAt,
	}
	return u.begin(ctx, exchangeDomain.RequestProof, seed, req)
}

func (u *exchangeUseCase) RequestCredential(
	ctx context.Context,
	input *StepInput,
) (*exchangeDomain.Result, error) {
	return u.advance(ctx, exchangeDomain.RequestCredential, input)
}

func (u *exchangeUseCase) IssueCredential(
	ctx context.Context,
	input *StepInput,
) (*exchangeDomain.Result, error) {
	return u.advance(ctx, exchangeDomain.IssueCredential, input)
}

func (u *exchangeUseCase) PresentProof(
	ctx context.Context,
	input *StepInput,
) (*exchangeDomain.Result, error) {
	return u.advance(ctx, exchangeDomain.PresentProof, input)
}

func (u *exchangeUseCase) Flow(ctx context.Context, flowID string) (*exchangeDomain.ExchangeFlow, error) {
	if err := apperrors.CheckContext(ctx, "flow"); err != nil {
		return nil, err
	}
	return u.correlator.Flow(flowID)
}

func (u *exchangeUseCase) FlowsByThread(
	ctx context.Context,
	threadID string,
) ([]*exchangeDomain.ExchangeFlow, error) {
	if err := apperrors.CheckContext(ctx, "flows_by_thread"); err != nil {
		return nil, err
	}
	return u.correlator.FlowsByThread(threadID), nil
}

func (u *exchangeUseCase) ChildFlows(
	ctx context.Context,
	parentThreadID string,
) ([]*exchangeDomain.ExchangeFlow, error) {
	if err := apperrors.CheckContext(ctx, "child_flows"); err != nil {
		return nil, err
	}
	return u.correlator.ChildFlows(parentThreadID), nil
}

func (u *exchangeUseCase) ExpireStale(ctx context.Context, now time.Time) ([]string, error) {
	if err := apperrors.CheckContext(ctx, "expire_stale"); err != nil {
		return nil, err
	}
	expired := u.correlator.ExpireStale(ctx, now)
	if len(expired) > 0 && u.logger != nil {
		u.logger.Info("expired stale flows", slog.Int("count", len(expired)))
	}
	return expired, nil
}

func (u *exchangeUseCase) Protocols(context.Context) []exchangeDomain.ProtocolDescriptor {
	return u.registry.Descriptors()
}

func (u *exchangeUseCase) History(
	ctx context.Context,
	threadID string,
	offset, limit int,
) ([]*exchangeDomain.FlowRecord, error) {
	if u.flowLog == nil {
		return []*exchangeDomain.FlowRecord{}, nil
	}
	return u.flowLog.QueryByThread(ctx, threadID, offset, limit)
}

func (u *exchangeUseCase) ParticipantHistory(
	ctx context.Context,
	participant string,
	offset, limit int,
) ([]*exchangeDomain.FlowRecord, error) {
	if u.flowLog == nil {
		return []*exchangeDomain.FlowRecord{}, nil
	}
	return u.flowLog.QueryByParticipant(ctx, participant, offset, limit)
}

func (u *exchangeUseCase) begin(
	ctx context.Context,
	op exchangeDomain.Operation,
	seed *exchangeDomain.ExchangeFlow,
	req exchangeDomain.Request,
) (*exchangeDomain.Result, error) {
	if err := u.registry.Check(seed.Protocol, op); err != nil {
		return nil, err
	}

	ctx, cancel := u.withTimeout(ctx)
	defer cancel()

	result, err := u.correlator.Begin(ctx, op, seed, req.MessageID, u.step(seed.Protocol, op, req))
	return result, u.mapError(op, err)
}

func (u *exchangeUseCase) advance(
	ctx context.Context,
	op exchangeDomain.Operation,
	input *StepInput,
) (*exchangeDomain.Result, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if err := u.registry.Check(input.Protocol, op); err != nil {
		return nil, err
	}

	req := exchangeDomain.Request{
		MessageID:   messageID(input.MessageID),
		ReferenceID: input.ReferenceID,
		Attachment:  input.Attachment,
		Claims:      input.Claims,
		ExpiresAt:   input.ExpiresAt,
	}

	ctx, cancel := u.withTimeout(ctx)
	defer cancel()

	result, err := u.correlator.Advance(ctx, op, req.ReferenceID, req.MessageID, u.step(input.Protocol, op, req))
	return result, u.mapError(op, err)
}

// step dispatches one operation to the protocol with the flow snapshot the
// correlator hands over.
func (u *exchangeUseCase) step(
	name string,
	op exchangeDomain.Operation,
	req exchangeDomain.Request,
) exchangeService.StepFunc {
	return func(ctx context.Context, flow *exchangeDomain.ExchangeFlow) (*exchangeDomain.Response, error) {
		if flow.Protocol != name {
			return nil, apperrors.Wrapf(exchangeDomain.ErrMessageMismatch,
				"flow %s runs over %s, not %s", flow.FlowID, flow.Protocol, name)
		}

		req.Flow = flow
		req.ThreadID = flow.ThreadID
		req.ParentThreadID = flow.ParentThreadID
		req.From, req.To = flow.IssuerOrVerifier, flow.HolderOrProver
		if op == exchangeDomain.RequestCredential || op == exchangeDomain.PresentProof {
			req.From, req.To = req.To, req.From
		}
		return u.registry.Dispatch(ctx, name, op, &req)
	}
}

func (u *exchangeUseCase) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if u.cfg.DispatchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, u.cfg.DispatchTimeout)
}

// mapError turns a deadline hit anywhere in the step into a TimeoutError.
func (u *exchangeUseCase) mapError(op exchangeDomain.Operation, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = &apperrors.TimeoutError{Operation: op.MetricName()}
	}
	if u.logger != nil {
		u.logger.Debug("exchange step failed",
			slog.String("operation", string(op)),
			slog.Any("error", err),
		)
	}
	return err
}

func (u *exchangeUseCase) expiry(explicit *time.Time) *time.Time {
	if explicit != nil {
		t := *explicit
		return &t
	}
	if u.cfg.FlowTTL <= 0 {
		return nil
	}
	t := u.now().Add(u.cfg.FlowTTL)
	return &t
}

func messageID(id string) string {
	if id != "" {
		return id
	}
	return uuid.Must(uuid.NewV7()).String()
}
