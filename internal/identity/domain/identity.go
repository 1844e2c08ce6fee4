// Package domain defines party identities and resolved public keys.
package domain

import (
	"fmt"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	"github.com/allisson/credx/internal/errors"
)

// DefaultKeyFragment is appended to a party identifier to name its default key.
const DefaultKeyFragment = "key-1"

// ResolvedKey is a static public key returned by a resolver. Version is zero when
// the resolver does not track versions.
type ResolvedKey struct {
	KeyID     string
	Version   int
	PublicKey cryptoDomain.PublicKey
}

// DefaultKeyID returns "<party>#<fragment>", the conventional key id of a party.
func DefaultKeyID(party, fragment string) string {
	if fragment == "" {
		fragment = DefaultKeyFragment
	}
	return party + "#" + fragment
}

var (
	// ErrKeyNotResolvable indicates no resolver knows the requested party key.
	ErrKeyNotResolvable = errors.Wrap(errors.ErrNotFound, "public key not resolvable")

	// ErrSignatureInvalid indicates a signature did not verify.
	ErrSignatureInvalid = errors.Wrap(errors.ErrUnauthorized, "invalid signature")
)

// KeyNotResolvableError names the party and key a resolver could not find.
type KeyNotResolvableError struct {
	Party string
	KeyID string
}

func (e *KeyNotResolvableError) Error() string {
	return fmt.Sprintf("public key not resolvable: party=%s key=%s", e.Party, e.KeyID)
}

// Unwrap exposes ErrKeyNotResolvable.
func (e *KeyNotResolvableError) Unwrap() error {
	return ErrKeyNotResolvable
}
