package domain

import (
	"fmt"
	"strings"

	"github.com/allisson/credx/internal/errors"
)

// Exchange error definitions.
var (
	// ErrProtocolNotRegistered indicates no implementation is registered under the name.
	ErrProtocolNotRegistered = errors.Wrap(errors.ErrNotFound, "protocol not registered")

	// ErrProtocolAlreadyRegistered indicates a second registration under the same name.
	ErrProtocolAlreadyRegistered = errors.Wrap(errors.ErrConflict, "protocol already registered")

	// ErrOperationNotSupported indicates the protocol does not declare the operation.
	ErrOperationNotSupported = errors.Wrap(errors.ErrInvalidInput, "operation not supported")

	// ErrOfferNotFound indicates a request referenced an unknown offer id.
	ErrOfferNotFound = errors.Wrap(errors.ErrNotFound, "offer not found")

	// ErrRequestNotFound indicates an issuance referenced an unknown request id.
	ErrRequestNotFound = errors.Wrap(errors.ErrNotFound, "request not found")

	// ErrProofRequestNotFound indicates a presentation referenced an unknown proof request id.
	ErrProofRequestNotFound = errors.Wrap(errors.ErrNotFound, "proof request not found")

	// ErrFlowNotFound indicates no flow exists under the id.
	ErrFlowNotFound = errors.Wrap(errors.ErrNotFound, "flow not found")

	// ErrFlowTerminal indicates the flow already reached a terminal state.
	ErrFlowTerminal = errors.Wrap(errors.ErrConflict, "flow already in terminal state")

	// ErrInvalidFlowTransition indicates a step arrived for a flow in the wrong state.
	ErrInvalidFlowTransition = errors.Wrap(errors.ErrConflict, "invalid flow transition")

	// ErrMessageMismatch indicates an attached wire message does not match the flow.
	ErrMessageMismatch = errors.Wrap(errors.ErrInvalidInput, "message does not match flow")

	// ErrInvalidGrant indicates a pre-authorized code, access token or proof did not verify.
	ErrInvalidGrant = errors.Wrap(errors.ErrUnauthorized, "invalid grant")

	// ErrPresentationRejected indicates a presentation failed the verifier's checks.
	ErrPresentationRejected = errors.Wrap(errors.ErrForbidden, "presentation rejected")
)

// ProtocolNotRegisteredError names the missing protocol and what is available.
type ProtocolNotRegisteredError struct {
	Name               string
	AvailableProtocols []string
}

func (e *ProtocolNotRegisteredError) Error() string {
	return fmt.Sprintf("protocol not registered: %s (available: %s)",
		e.Name, strings.Join(e.AvailableProtocols, ", "))
}

func (e *ProtocolNotRegisteredError) Unwrap() error { return ErrProtocolNotRegistered }

// OperationNotSupportedError names the refused operation and the protocol's declared set.
type OperationNotSupportedError struct {
	Name                string
	Operation           Operation
	SupportedOperations []Operation
}

func (e *OperationNotSupportedError) Error() string {
	ops := make([]string, len(e.SupportedOperations))
	for i, op := range e.SupportedOperations {
		ops[i] = string(op)
	}
	return fmt.Sprintf("operation %s not supported by %s (supported: %s)",
		e.Operation, e.Name, strings.Join(ops, ", "))
}

func (e *OperationNotSupportedError) Unwrap() error { return ErrOperationNotSupported }

// OfferNotFoundError names the unknown offer id.
type OfferNotFoundError struct {
	OfferID string
}

func (e *OfferNotFoundError) Error() string { return "offer not found: " + e.OfferID }

func (e *OfferNotFoundError) Unwrap() error { return ErrOfferNotFound }

// RequestNotFoundError names the unknown request id.
type RequestNotFoundError struct {
	RequestID string
}

func (e *RequestNotFoundError) Error() string { return "request not found: " + e.RequestID }

func (e *RequestNotFoundError) Unwrap() error { return ErrRequestNotFound }

// ProofRequestNotFoundError names the unknown proof request id.
type ProofRequestNotFoundError struct {
	ProofRequestID string
}

func (e *ProofRequestNotFoundError) Error() string {
	return "proof request not found: " + e.ProofRequestID
}

func (e *ProofRequestNotFoundError) Unwrap() error { return ErrProofRequestNotFound }

// FlowTerminalError reports a step against a flow that already finished.
type FlowTerminalError struct {
	FlowID string
	State  FlowState
}

func (e *FlowTerminalError) Error() string {
	return fmt.Sprintf("flow %s already in terminal state %s", e.FlowID, e.State)
}

func (e *FlowTerminalError) Unwrap() error { return ErrFlowTerminal }

// InvalidFlowTransitionError reports a step that does not follow the flow's current state.
type InvalidFlowTransitionError struct {
	FlowID string
	From   FlowState
	To     FlowState
}

func (e *InvalidFlowTransitionError) Error() string {
	return fmt.Sprintf("flow %s cannot move from %s to %s", e.FlowID, e.From, e.To)
}

func (e *InvalidFlowTransitionError) Unwrap() error { return ErrInvalidFlowTransition }

// NotFoundForOperation returns the structured not-found failure for a step
// referencing an unknown id.
func NotFoundForOperation(op Operation, referenceID string) error {
	switch op {
	case RequestCredential:
		return &OfferNotFoundError{OfferID: referenceID}
	case IssueCredential:
		return &RequestNotFoundError{RequestID: referenceID}
	case PresentProof:
		return &ProofRequestNotFoundError{ProofRequestID: referenceID}
	}
	return fmt.Errorf("%w: %s", ErrFlowNotFound, referenceID)
}
