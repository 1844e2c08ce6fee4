package domain

import (
	"fmt"

	"github.com/allisson/credx/internal/errors"
)

// Cryptographic failures. All of them fail closed: no partial plaintext or key bytes
// are ever returned alongside one of these errors, and none of them is retryable.
var (
	// ErrUnsupportedAlgorithm indicates the requested AEAD algorithm is not supported.
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrUnsupportedKeyType indicates the key type cannot be used for the requested operation.
	ErrUnsupportedKeyType = errors.Wrap(errors.ErrInvalidInput, "unsupported key type")

	// ErrInvalidKeySize indicates a symmetric key is not exactly 32 bytes.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrKeyAgreement indicates a key agreement could not be performed.
	ErrKeyAgreement = errors.Wrap(errors.ErrInvalidInput, "key agreement failed")

	// ErrAuthenticationFailed indicates an AEAD tag did not verify.
	//
	// Causes are deliberately not distinguished: wrong key, modified ciphertext,
	// modified nonce or tag, or modified associated data all map here.
	ErrAuthenticationFailed = errors.Wrap(errors.ErrUnauthorized, "authentication failed")

	// ErrUnwrapFailed indicates a wrapped key failed its integrity check.
	ErrUnwrapFailed = errors.Wrap(errors.ErrUnauthorized, "key unwrap failed")
)

// KeyAgreementError describes why a key agreement was refused.
// Reason never contains key bytes.
type KeyAgreementError struct {
	Reason string
}

func (e *KeyAgreementError) Error() string {
	return fmt.Sprintf("key agreement failed: %s", e.Reason)
}

// Is matches ErrKeyAgreement so callers can branch with errors.Is.
func (e *KeyAgreementError) Is(target error) bool {
	return target == ErrKeyAgreement
}

// Unwrap exposes the sentinel chain (ErrKeyAgreement -> ErrInvalidInput).
func (e *KeyAgreementError) Unwrap() error {
	return ErrKeyAgreement
}
