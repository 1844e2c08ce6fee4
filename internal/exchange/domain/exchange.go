package domain

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Request is the input of one exchange operation.
//
// MessageID doubles as the idempotency key: replaying a request with the same
// MessageID returns the recorded result instead of producing a new message.
// ReferenceID names the offer, request or proof request the step answers and is
// empty for OfferCredential and RequestProof.
type Request struct {
	MessageID      string
	ReferenceID    string
	From           Party
	To             Party
	ThreadID       string
	ParentThreadID string
	ExpiresAt      *time.Time
	Claims         map[string]any
	Query          map[string]any
	Attachment     []byte
	Flow           *ExchangeFlow
}

// Response is what a protocol implementation produced for one step.
type Response struct {
	MessageType string
	ContentType string
	Wire        []byte
	Claims      map[string]any
}

// Result is the outcome of an exchange operation as returned to callers.
type Result struct {
	Operation Operation
	Protocol  string
	FlowID    string
	MessageID string
	ThreadID  string
	State     FlowState
	Response
}

// Clone returns a deep copy of r.
func (r *Result) Clone() *Result {
	c := *r
	c.Wire = slices.Clone(r.Wire)
	c.Claims = maps.Clone(r.Claims)
	return &c
}

// FlowRecord is one entry of the append-only flow log.
type FlowRecord struct {
	ID        uuid.UUID
	FlowID    string
	ThreadID  string
	Protocol  string
	Operation Operation
	MessageID string
	State     FlowState
	From      string
	To        string
	CreatedAt time.Time
}
