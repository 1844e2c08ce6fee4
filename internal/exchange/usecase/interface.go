package usecase

import (
	"context"
	"time"

	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
)

// ExchangeUseCase runs credential issuance and proof flows over registered protocols.
type ExchangeUseCase interface {
	// OfferCredential opens an issuance flow.
	OfferCredential(ctx context.Context, input *OfferInput) (*exchangeDomain.Result, error)

	// RequestCredential answers the offer named by input.ReferenceID as the holder.
	RequestCredential(ctx context.Context, input *StepInput) (*exchangeDomain.Result, error)

	// IssueCredential answers the request named by input.ReferenceID as the issuer.
	IssueCredential(ctx context.Context, input *StepInput) (*exchangeDomain.Result, error)

	// RequestProof opens a proof flow.
	RequestProof(ctx context.Context, input *ProofRequestInput) (*exchangeDomain.Result, error)

	// PresentProof answers the proof request named by input.ReferenceID as the prover.
	PresentProof(ctx context.Context, input *StepInput) (*exchangeDomain.Result, error)

	Flow(ctx context.Context, flowID string) (*exchangeDomain.ExchangeFlow, error)
	FlowsByThread(ctx context.Context, threadID string) ([]*exchangeDomain.ExchangeFlow, error)
	ChildFlows(ctx context.Context, parentThreadID string) ([]*exchangeDomain.ExchangeFlow, error)

	// ExpireStale moves every live flow past its expiry to EXPIRED.
	ExpireStale(ctx context.Context, now time.Time) ([]string, error)

	// Protocols lists the registered protocols and their operations.
	Protocols(ctx context.Context) []exchangeDomain.ProtocolDescriptor

	// History returns a page of the flow log records of a thread, oldest first.
	History(ctx context.Context, threadID string, offset, limit int) ([]*exchangeDomain.FlowRecord, error)

	// ParticipantHistory returns a page of the flow log records sent or received by participant.
	ParticipantHistory(
		ctx context.Context,
		participant string,
		offset, limit int,
	) ([]*exchangeDomain.FlowRecord, error)
}
