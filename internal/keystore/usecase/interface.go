package usecase

import (
	"context"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
)

// KeyStore defines the encrypted at-rest key store.
//
// Every method returns copies: callers may zero or mutate returned KeyMaterial
// without affecting the store.
type KeyStore interface {
	// Get returns the current version of keyID (the active one, or the latest if all are archived).
	Get(ctx context.Context, keyID string) (*keystoreDomain.KeyMaterial, error)

	// GetVersion returns one specific version, whatever its state.
	GetVersion(ctx context.Context, keyID string, version int) (*keystoreDomain.KeyMaterial, error)

	// Versions returns every version of keyID in ascending order.
	Versions(ctx context.Context, keyID string) ([]*keystoreDomain.KeyMaterial, error)

	// Active returns the highest ACTIVE version of keyID.
	Active(ctx context.Context, keyID string) (*keystoreDomain.KeyMaterial, error)

	// Put stores key under keyID. A zero Version is assigned the next version.
	Put(ctx context.Context, keyID string, key *keystoreDomain.KeyMaterial) (keystoreDomain.KeyRef, error)

	// Delete removes every version of keyID and reports whether it existed.
	Delete(ctx context.Context, keyID string) (bool, error)

	// List returns the sorted key ids.
	List(ctx context.Context) ([]string, error)

	// Update applies fn to a private copy of the key set and persists the result
	// atomically. Nothing is written when fn returns an error.
	Update(ctx context.Context, fn func(set *keystoreDomain.KeySet) error) error
}

// RotationManager defines key creation, rotation and usage tracking.
type RotationManager interface {
	// Create generates a new key of keyType under keyID as version 1 (or the next version).
	Create(ctx context.Context, keyID string, keyType cryptoDomain.KeyType) (keystoreDomain.KeyRef, error)

	// ShouldRotate applies the configured policy to the active version of keyID.
	ShouldRotate(ctx context.Context, keyID string) (bool, error)

	// BeginRotation moves the active version to ROTATING and stores an ACTIVE successor.
	BeginRotation(ctx context.Context, keyID string) (oldRef, newRef keystoreDomain.KeyRef, err error)

	// CompleteRotation archives every ROTATING version of keyID.
	CompleteRotation(ctx context.Context, keyID string) ([]keystoreDomain.KeyRef, error)

	// Rotate performs BeginRotation and CompleteRotation in one atomic store update.
	Rotate(ctx context.Context, keyID string) (oldRef, newRef keystoreDomain.KeyRef, err error)

	// RecordUse counts one use of ref for usage-based policies.
	RecordUse(ref keystoreDomain.KeyRef)

	// FlushUsage persists the uses recorded since the last store update.
	FlushUsage(ctx context.Context) error
}
