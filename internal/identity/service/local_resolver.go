package service

import (
	"context"
	"strings"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	identityDomain "github.com/allisson/credx/internal/identity/domain"
	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
)

// LocalResolver serves the public halves of keys held in the local key store.
//
// Key ids follow "<party>#<fragment>"; a key is only resolvable for the party that
// owns it. Unversioned lookups return the ACTIVE version so new envelopes never
// address an archived key.
type LocalResolver struct {
	keys KeyReader
}

// NewLocalResolver creates a LocalResolver.
func NewLocalResolver(keys KeyReader) *LocalResolver {
	return &LocalResolver{keys: keys}
}

func (r *LocalResolver) ResolveStaticPublicKey(
	ctx context.Context,
	party, keyID string,
) (*identityDomain.ResolvedKey, error) {
	ref, err := keystoreDomain.ParseKeyRef(keyID)
	if err != nil || !strings.HasPrefix(ref.KeyID, party+"#") {
		return nil, &identityDomain.KeyNotResolvableError{Party: party, KeyID: keyID}
	}

	var key *keystoreDomain.KeyMaterial
	if ref.Version > 0 {
		key, err = r.keys.GetVersion(ctx, ref.KeyID, ref.Version)
	} else {
		key, err = r.keys.Active(ctx, ref.KeyID)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &identityDomain.KeyNotResolvableError{Party: party, KeyID: keyID}
	}
	defer key.Zero()

	if len(key.Public) == 0 {
		return nil, &identityDomain.KeyNotResolvableError{Party: party, KeyID: keyID}
	}
	return &identityDomain.ResolvedKey{
		KeyID:     key.KeyID,
		Version:   key.Version,
		PublicKey: cryptoDomain.PublicKey{Type: key.Type, Bytes: key.Public},
	}, nil
}
