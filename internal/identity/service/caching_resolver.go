package service

import (
	"context"
	"time"

	"github.com/bluele/gcache"

	identityDomain "github.com/allisson/credx/internal/identity/domain"
	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
)

// CachingResolver memoizes successful resolutions in an LRU cache with expiry.
// Only lookups pinned to a version ("keyID@v") are cached: an unversioned lookup
// follows the ACTIVE version, which changes on rotation. Failures are never cached.
type CachingResolver struct {
	next  Resolver
	cache gcache.Cache
}

// NewCachingResolver creates a CachingResolver holding up to size entries for ttl.
func NewCachingResolver(next Resolver, size int, ttl time.Duration) *CachingResolver {
	builder := gcache.New(size).LRU()
	if ttl > 0 {
		builder = builder.Expiration(ttl)
	}
	return &CachingResolver{next: next, cache: builder.Build()}
}

func (c *CachingResolver) ResolveStaticPublicKey(
	ctx context.Context,
	party, keyID string,
) (*identityDomain.ResolvedKey, error) {
	if ref, err := keystoreDomain.ParseKeyRef(keyID); err != nil || ref.Version == 0 {
		return c.next.ResolveStaticPublicKey(ctx, party, keyID)
	}

	cacheKey := party + "|" + keyID
	if v, err := c.cache.Get(cacheKey); err == nil {
		cached := v.(identityDomain.ResolvedKey)
		cached.PublicKey.Bytes = append([]byte(nil), cached.PublicKey.Bytes...)
		return &cached, nil
	}

	key, err := c.next.ResolveStaticPublicKey(ctx, party, keyID)
	if err != nil {
		return nil, err
	}

	stored := *key
	stored.PublicKey.Bytes = append([]byte(nil), key.PublicKey.Bytes...)
	_ = c.cache.Set(cacheKey, stored)
	return key, nil
}
