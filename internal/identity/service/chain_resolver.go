package service

import (
	"context"

	"github.com/allisson/credx/internal/errors"
	identityDomain "github.com/allisson/credx/internal/identity/domain"
)

// ChainResolver asks each resolver in turn and returns the first answer.
type ChainResolver struct {
	resolvers []Resolver
}

// NewChainResolver creates a ChainResolver.
func NewChainResolver(resolvers ...Resolver) *ChainResolver {
	return &ChainResolver{resolvers: resolvers}
}

func (c *ChainResolver) ResolveStaticPublicKey(
	ctx context.Context,
	party, keyID string,
) (*identityDomain.ResolvedKey, error) {
	for _, r := range c.resolvers {
		key, err := r.ResolveStaticPublicKey(ctx, party, keyID)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, identityDomain.ErrKeyNotResolvable) {
			return nil, err
		}
	}
	return nil, &identityDomain.KeyNotResolvableError{Party: party, KeyID: keyID}
}
