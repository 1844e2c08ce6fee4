// Package service provides the key store's building blocks: the versioned on-disk
// format, CBOR key set codec, master key sources (Argon2id passphrase or KMS keeper)
// and atomic file writes.
package service

import (
	"context"
)

// MasterKeySource produces the 256-bit key that encrypts the key store file.
type MasterKeySource interface {
	// MasterKey returns the master key. Callers own the returned slice and must zero it.
	MasterKey(ctx context.Context) ([]byte, error)
}

// KMSKeeper is the subset of *secrets.Keeper used to wrap the master key.
type KMSKeeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}

// KMSService opens KMS keepers by URI.
type KMSService interface {
	OpenKeeper(ctx context.Context, keyURI string) (KMSKeeper, error)
}
