package usecase

import (
	"time"

	validation "github.com/jellydator/validation"

	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
	customValidation "github.com/allisson/credx/internal/validation"
)

// OfferInput opens an issuance flow between Issuer and Holder.
type OfferInput struct {
	Protocol       string
	MessageID      string
	Issuer         exchangeDomain.Party
	Holder         exchangeDomain.Party
	Claims         map[string]any
	ThreadID       string
	ParentThreadID string
	ExpiresAt      *time.Time
}

// Validate checks the offer input.
func (i *OfferInput) Validate() error {
	errs := validation.Errors{
		"protocol":   validateProtocol(i.Protocol),
		"message_id": validateMessageID(i.MessageID),
		"claims":     validation.Validate(i.Claims, validation.Required),
		"thread_id":  validation.Validate(i.ThreadID, customValidation.NoWhitespace),
	}
	addParty(errs, "issuer", i.Issuer)
	addParty(errs, "holder", i.Holder)
	return customValidation.WrapValidationError(errs.Filter())
}

// ProofRequestInput opens a proof flow between Verifier and Prover.
type ProofRequestInput struct {
	Protocol       string
	MessageID      string
	Verifier       exchangeDomain.Party
	Prover         exchangeDomain.Party
	Query          map[string]any
	ThreadID       string
	ParentThreadID string
	ExpiresAt      *time.Time
}

// Validate checks the proof request input.
func (i *ProofRequestInput) Validate() error {
	errs := validation.Errors{
		"protocol":   validateProtocol(i.Protocol),
		"message_id": validateMessageID(i.MessageID),
		"thread_id":  validation.Validate(i.ThreadID, customValidation.NoWhitespace),
	}
	addParty(errs, "verifier", i.Verifier)
	addParty(errs, "prover", i.Prover)
	return customValidation.WrapValidationError(errs.Filter())
}

// StepInput advances the flow whose correlation id is ReferenceID. Attachment
// carries the previous message as received from the counterparty.
type StepInput struct {
	Protocol    string
	MessageID   string
	ReferenceID string
	Attachment  []byte
	Claims      map[string]any
	ExpiresAt   *time.Time
}

// Validate checks the step input.
func (i *StepInput) Validate() error {
	errs := validation.Errors{
		"protocol":     validateProtocol(i.Protocol),
		"message_id":   validateMessageID(i.MessageID),
		"reference_id": validation.Validate(i.ReferenceID, validation.Required, customValidation.NotBlank),
		"attachment":   validation.Validate(i.Attachment, validation.Required),
	}
	return customValidation.WrapValidationError(errs.Filter())
}

func validateProtocol(name string) error {
	return validation.Validate(name, validation.Required, customValidation.ProtocolName)
}

func validateMessageID(id string) error {
	return validation.Validate(id, customValidation.NoWhitespace, validation.Length(0, 255))
}

func addParty(errs validation.Errors, name string, party exchangeDomain.Party) {
	errs[name+"_id"] = validation.Validate(party.ID, validation.Required, customValidation.PartyID)
	errs[name+"_key_id"] = validation.Validate(party.KeyID, validation.Required, customValidation.KeyID)
}
