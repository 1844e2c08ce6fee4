package domain

import (
	"fmt"

	"github.com/allisson/credx/internal/errors"
)

// Key store error definitions.
var (
	// ErrKeyNotFound indicates no key (or key version) exists under the requested id.
	ErrKeyNotFound = errors.Wrap(errors.ErrNotFound, "key not found")

	// ErrInvalidKeyRef indicates a "keyId@version" string could not be parsed.
	ErrInvalidKeyRef = errors.Wrap(errors.ErrInvalidInput, "invalid key reference")

	// ErrInvalidKeyMaterial indicates a key is missing required fields.
	ErrInvalidKeyMaterial = errors.Wrap(errors.ErrInvalidInput, "invalid key material")

	// ErrInvalidStateTransition indicates a lifecycle move that would go backwards.
	ErrInvalidStateTransition = errors.Wrap(errors.ErrConflict, "invalid key state transition")

	// ErrKeyVersionExists indicates a put addressed a version that is already stored.
	// Existing versions change only through state transitions.
	ErrKeyVersionExists = errors.Wrap(errors.ErrConflict, "key version already exists")

	// ErrNoActiveKey indicates every version of the key is archived.
	ErrNoActiveKey = errors.Wrap(errors.ErrNotFound, "no active key version")

	// ErrKeyStoreCorrupted indicates the store file failed authentication or could not be decoded.
	// The store fails closed: no partial key set is ever returned.
	ErrKeyStoreCorrupted = errors.Wrap(errors.ErrUnauthorized, "key store corrupted")

	// ErrUnsupportedFormatVersion indicates the store file header carries an unknown version.
	ErrUnsupportedFormatVersion = errors.Wrap(errors.ErrInvalidInput, "unsupported key store format version")

	// ErrMasterKeyUnavailable indicates neither a passphrase nor a KMS key was configured.
	ErrMasterKeyUnavailable = errors.Wrap(errors.ErrUnavailable, "master key unavailable")
)

// InvalidTransitionError reports a refused lifecycle move.
type InvalidTransitionError struct {
	Ref  KeyRef
	From KeyState
	To   KeyState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid key state transition for %s: %s -> %s", e.Ref, e.From, e.To)
}

// Unwrap exposes ErrInvalidStateTransition.
func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

// IsNoActiveKey reports whether err means every version of a key is archived.
func IsNoActiveKey(err error) bool {
	return errors.Is(err, ErrNoActiveKey)
}
