package service

import (
	"context"
	"crypto/ed25519"
	"fmt"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
)

// KeyStoreSigner signs with Ed25519 keys held in the key store.
type KeyStoreSigner struct {
	keys KeyReader
}

// NewKeyStoreSigner creates a KeyStoreSigner.
func NewKeyStoreSigner(keys KeyReader) *KeyStoreSigner {
	return &KeyStoreSigner{keys: keys}
}

// Sign signs payload with keyID ("id" for the active version or "id@version").
func (s *KeyStoreSigner) Sign(ctx context.Context, keyID string, payload []byte) ([]byte, error) {
	ref, err := keystoreDomain.ParseKeyRef(keyID)
	if err != nil {
		return nil, err
	}

	var key *keystoreDomain.KeyMaterial
	if ref.Version > 0 {
		key, err = s.keys.GetVersion(ctx, ref.KeyID, ref.Version)
	} else {
		key, err = s.keys.Active(ctx, ref.KeyID)
	}
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	if key.Type != cryptoDomain.Ed25519 || len(key.Private) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: %s cannot sign", cryptoDomain.ErrUnsupportedKeyType, key.Type)
	}
	if key.State == keystoreDomain.StateArchived {
		return nil, fmt.Errorf("%w: %s is archived", keystoreDomain.ErrInvalidStateTransition, key.Ref())
	}

	return ed25519.Sign(ed25519.PrivateKey(key.Private), payload), nil
}

// Verify checks an Ed25519 signature.
func (s *KeyStoreSigner) Verify(publicKey cryptoDomain.PublicKey, payload, signature []byte) (bool, error) {
	if publicKey.Type != cryptoDomain.Ed25519 || len(publicKey.Bytes) != ed25519.PublicKeySize {
		return false, cryptoDomain.ErrUnsupportedKeyType
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey.Bytes), payload, signature), nil
}
