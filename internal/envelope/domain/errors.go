package domain

import (
	"fmt"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	"github.com/allisson/credx/internal/errors"
)

// Envelope error definitions.
var (
	// ErrEnvelopeMalformed indicates required fields are absent for the requested operation.
	ErrEnvelopeMalformed = errors.Wrap(errors.ErrInvalidInput, "envelope malformed")

	// ErrRecipientKeyNotFound indicates the envelope is not addressed to the key,
	// or the local key store lacks it.
	ErrRecipientKeyNotFound = errors.Wrap(errors.ErrNotFound, "recipient key not found")

	// ErrSenderKeyUnresolvable indicates the sender's static key could not be resolved.
	ErrSenderKeyUnresolvable = errors.Wrap(errors.ErrNotFound, "sender key unresolvable")

	// ErrEnvelopeExpired indicates expiresAt is in the past.
	ErrEnvelopeExpired = errors.Wrap(errors.ErrForbidden, "envelope expired")

	// ErrAuthenticationFailed is the crypto engine's authentication failure.
	ErrAuthenticationFailed = cryptoDomain.ErrAuthenticationFailed

	// ErrUnwrapFailed is the crypto engine's key unwrap failure.
	ErrUnwrapFailed = cryptoDomain.ErrUnwrapFailed
)

// MalformedError names the missing or invalid field.
type MalformedError struct {
	Field  string
	Reason string
}

func (e *MalformedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("envelope malformed: %s", e.Field)
	}
	return fmt.Sprintf("envelope malformed: %s: %s", e.Field, e.Reason)
}

func (e *MalformedError) Unwrap() error { return ErrEnvelopeMalformed }

// RecipientKeyNotFoundError names the recipient and key that could not be used.
type RecipientKeyNotFoundError struct {
	Recipient string
	KeyID     string
}

func (e *RecipientKeyNotFoundError) Error() string {
	return fmt.Sprintf("recipient key not found: recipient=%s key=%s", e.Recipient, e.KeyID)
}

func (e *RecipientKeyNotFoundError) Unwrap() error { return ErrRecipientKeyNotFound }

// SenderKeyUnresolvableError names the sender key that could not be resolved.
type SenderKeyUnresolvableError struct {
	Sender string
	KeyID  string
}

func (e *SenderKeyUnresolvableError) Error() string {
	return fmt.Sprintf("sender key unresolvable: sender=%s key=%s", e.Sender, e.KeyID)
}

func (e *SenderKeyUnresolvableError) Unwrap() error { return ErrSenderKeyUnresolvable }
