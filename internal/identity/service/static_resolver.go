package service

import (
	"context"
	"sync"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	identityDomain "github.com/allisson/credx/internal/identity/domain"
	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
)

// StaticResolver serves public keys registered up front. It does not track versions.
type StaticResolver struct {
	mu   sync.RWMutex
	keys map[string]map[string]cryptoDomain.PublicKey
}

// NewStaticResolver creates an empty StaticResolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{keys: make(map[string]map[string]cryptoDomain.PublicKey)}
}

// Register makes pub resolvable as party/keyID.
func (r *StaticResolver) Register(party, keyID string, pub cryptoDomain.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.keys[party] == nil {
		r.keys[party] = make(map[string]cryptoDomain.PublicKey)
	}
	r.keys[party][keyID] = cryptoDomain.PublicKey{Type: pub.Type, Bytes: append([]byte(nil), pub.Bytes...)}
}

func (r *StaticResolver) ResolveStaticPublicKey(
	_ context.Context,
	party, keyID string,
) (*identityDomain.ResolvedKey, error) {
	ref, err := keystoreDomain.ParseKeyRef(keyID)
	if err != nil {
		return nil, &identityDomain.KeyNotResolvableError{Party: party, KeyID: keyID}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	pub, ok := r.keys[party][ref.KeyID]
	if !ok {
		return nil, &identityDomain.KeyNotResolvableError{Party: party, KeyID: keyID}
	}
	return &identityDomain.ResolvedKey{
		KeyID:     ref.KeyID,
		PublicKey: cryptoDomain.PublicKey{Type: pub.Type, Bytes: append([]byte(nil), pub.Bytes...)},
	}, nil
}
