// Package service holds the exchange machinery: the protocol registry, the flow
// correlator and the in-process protocol implementations.
package service

import (
	"context"

	envelopeDomain "github.com/allisson/credx/internal/envelope/domain"
	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
	identityDomain "github.com/allisson/credx/internal/identity/domain"
	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
)

// Protocol executes exchange operations in one wire format.
type Protocol interface {
	Execute(
		ctx context.Context,
		op exchangeDomain.Operation,
		req *exchangeDomain.Request,
	) (*exchangeDomain.Response, error)
}

// FlowLog is the append-only audit log of flow transitions. It may lag the correlator.
// Queries return records oldest first, windowed by offset and limit.
type FlowLog interface {
	AppendRecord(ctx context.Context, record *exchangeDomain.FlowRecord) error
	QueryByParticipant(
		ctx context.Context,
		participant string,
		offset, limit int,
	) ([]*exchangeDomain.FlowRecord, error)
	QueryByThread(ctx context.Context, threadID string, offset, limit int) ([]*exchangeDomain.FlowRecord, error)
}

// Packer builds and opens envelopes.
type Packer interface {
	Pack(
		ctx context.Context,
		msg *envelopeDomain.Message,
		sender envelopeDomain.Party,
		recipients []envelopeDomain.Party,
		opts envelopeDomain.Options,
	) (*envelopeDomain.Envelope, error)

	Unpack(
		ctx context.Context,
		env *envelopeDomain.Envelope,
		recipient envelopeDomain.Party,
	) (*envelopeDomain.Message, error)
}

// Signer signs with locally held keys and verifies with public keys.
type Signer interface {
	Sign(ctx context.Context, keyID string, payload []byte) ([]byte, error)
}

// Resolver resolves a party's static public key.
type Resolver interface {
	ResolveStaticPublicKey(ctx context.Context, party, keyID string) (*identityDomain.ResolvedKey, error)
}

// KeyLookup returns the active version of a local key, used to pin key versions in tokens.
type KeyLookup interface {
	Active(ctx context.Context, keyID string) (*keystoreDomain.KeyMaterial, error)
}
