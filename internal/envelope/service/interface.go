// Package service packs logical messages into authenticated-encryption envelopes
// (or signed plaintext envelopes) and unpacks them again.
package service

import (
	"context"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	envelopeDomain "github.com/allisson/credx/internal/envelope/domain"
	identityDomain "github.com/allisson/credx/internal/identity/domain"
	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
)

// Resolver resolves a party's static public key. keyID may carry an "@version" suffix.
type Resolver interface {
	ResolveStaticPublicKey(ctx context.Context, party, keyID string) (*identityDomain.ResolvedKey, error)
}

// Signer signs and verifies payloads for signed plaintext envelopes.
type Signer interface {
	Sign(ctx context.Context, keyID string, payload []byte) ([]byte, error)
	Verify(publicKey cryptoDomain.PublicKey, payload, signature []byte) (bool, error)
}

// KeyProvider exposes the local private keys. Satisfied by the key store.
type KeyProvider interface {
	Get(ctx context.Context, keyID string) (*keystoreDomain.KeyMaterial, error)
	GetVersion(ctx context.Context, keyID string, version int) (*keystoreDomain.KeyMaterial, error)
	Active(ctx context.Context, keyID string) (*keystoreDomain.KeyMaterial, error)
}

// UsageRecorder counts key uses for usage-based rotation.
type UsageRecorder interface {
	RecordUse(ref keystoreDomain.KeyRef)
}

// Packer converts messages to envelopes and back.
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
