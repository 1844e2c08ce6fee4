// Package validation provides custom validation rules for the application.
package validation

import (
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/credx/internal/errors"
)

var (
	// partyIDRegex accepts DIDs and absolute URIs: a scheme, a colon and no whitespace.
	partyIDRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*:[^\s]+$`)

	// protocolNameRegex matches registry names such as "p2p-encrypted".
	protocolNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9.\-]*$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// PartyID validates a participant identifier (a DID or another absolute URI).
var PartyID = validation.NewStringRuleWithError(
	func(s string) bool {
		return partyIDRegex.MatchString(s)
	},
	validation.NewError("validation_party_id", "must be a DID or an absolute URI"),
)

// KeyID validates a key id. The '@' is reserved for version suffixes.
var KeyID = validation.NewStringRuleWithError(
	func(s string) bool {
		return s != "" && !strings.ContainsAny(s, "@ \t\r\n")
	},
	validation.NewError("validation_key_id", "must not contain '@' or whitespace"),
)

// ProtocolName validates a protocol registry name.
var ProtocolName = validation.NewStringRuleWithError(
	func(s string) bool {
		return protocolNameRegex.MatchString(s)
	},
	validation.NewError("validation_protocol_name", "must be lowercase letters, digits, '.' or '-'"),
)

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)
