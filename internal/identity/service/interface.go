// Package service provides identity collaborators: static public key resolvers
// (registered keys, did:key, locally held keys, chains and caches) and an Ed25519
// signer backed by the key store.
package service

import (
	"context"

	identityDomain "github.com/allisson/credx/internal/identity/domain"
	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
)

// Resolver resolves a party's static public key. keyID may carry an "@version" suffix.
type Resolver interface {
	ResolveStaticPublicKey(ctx context.Context, party, keyID string) (*identityDomain.ResolvedKey, error)
}

// KeyReader is the read side of the key store used by LocalResolver and KeyStoreSigner.
type KeyReader interface {
	GetVersion(ctx context.Context, keyID string, version int) (*keystoreDomain.KeyMaterial, error)
	Active(ctx context.Context, keyID string) (*keystoreDomain.KeyMaterial, error)
}
