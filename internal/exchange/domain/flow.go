package domain

import (
	"maps"
	"time"
)

// FlowKind distinguishes issuance flows from proof flows.
type FlowKind string

const (
	FlowKindIssuance FlowKind = "issuance"
	FlowKindProof    FlowKind = "proof"
)

// FlowState is the live state of an ExchangeFlow.
type FlowState string

const (
	StateOffered        FlowState = "OFFERED"
	StateRequested      FlowState = "REQUESTED"
	StateIssued         FlowState = "ISSUED"
	StateProofRequested FlowState = "PROOF_REQUESTED"
	StatePresented      FlowState = "PRESENTED"
	StateExpired        FlowState = "EXPIRED"
)

// Terminal reports whether no further transition can leave s.
func (s FlowState) Terminal() bool {
	return s == StateIssued || s == StatePresented || s == StateExpired
}

// CanTransitionTo reports whether next directly follows s. Any live state may expire.
func (s FlowState) CanTransitionTo(next FlowState) bool {
	if s.Terminal() {
		return false
	}
	if next == StateExpired {
		return true
	}
	switch s {
	case StateOffered:
		return next == StateRequested
	case StateRequested:
		return next == StateIssued
	case StateProofRequested:
		return next == StatePresented
	}
	return false
}

// InitialState returns the state a flow of this kind starts in.
func (k FlowKind) InitialState() FlowState {
	if k == FlowKindProof {
		return StateProofRequested
	}
	return StateOffered
}

// TargetState returns the state op moves a flow into.
func TargetState(op Operation) FlowState {
	switch op {
	case OfferCredential:
		return StateOffered
	case RequestCredential:
		return StateRequested
	case IssueCredential:
		return StateIssued
	case RequestProof:
		return StateProofRequested
	case PresentProof:
		return StatePresented
	}
	return ""
}

// Party is a participant identifier and the key id used on its behalf.
type Party struct {
	ID    string
	KeyID string
}

// ExchangeFlow correlates one issuance or one proof cycle.
//
// Only the correlator mutates a flow. Protocol implementations receive copies.
type ExchangeFlow struct {
	FlowID           string
	Kind             FlowKind
	State            FlowState
	Protocol         string
	OfferID          string
	RequestID        string
	IssueID          string
	ProofRequestID   string
	PresentationID   string
	IssuerOrVerifier Party
	HolderOrProver   Party
	ThreadID         string
	ParentThreadID   string
	Claims           map[string]any
	Query            map[string]any
	CreatedAt        time.Time
	LastTransitionAt time.Time
	ExpiresAt        *time.Time
}

// Clone returns a copy that shares no mutable state with f.
func (f *ExchangeFlow) Clone() *ExchangeFlow {
	c := *f
	c.Claims = maps.Clone(f.Claims)
	c.Query = maps.Clone(f.Query)
	if f.ExpiresAt != nil {
		t := *f.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// Expired reports whether a live flow has passed its expiry at now.
func (f *ExchangeFlow) Expired(now time.Time) bool {
	return !f.State.Terminal() && f.ExpiresAt != nil && !now.Before(*f.ExpiresAt)
}

// ReferenceFor returns the id a message performing op must reference.
func (f *ExchangeFlow) ReferenceFor(op Operation) string {
	switch op {
	case RequestCredential:
		return f.OfferID
	case IssueCredential:
		return f.RequestID
	case PresentProof:
		return f.ProofRequestID
	}
	return ""
}

// Record sets the correlation id produced by op.
func (f *ExchangeFlow) Record(op Operation, messageID string) {
	switch op {
	case OfferCredential:
		f.OfferID = messageID
	case RequestCredential:
		f.RequestID = messageID
	case IssueCredential:
		f.IssueID = messageID
	case RequestProof:
		f.ProofRequestID = messageID
	case PresentProof:
		f.PresentationID = messageID
	}
}

// Participants returns the parties of the flow.
func (f *ExchangeFlow) Participants() []string {
	return []string{f.IssuerOrVerifier.ID, f.HolderOrProver.ID}
}
