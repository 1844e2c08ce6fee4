// Package domain defines the exchange model: operations, protocol descriptors,
// correlated issuance and proof flows, and the structured failures of each.
package domain

import (
	"slices"
	"sort"
)

// Operation is an exchange step a protocol may support.
type Operation string

const (
	OfferCredential   Operation = "OfferCredential"
	RequestCredential Operation = "RequestCredential"
	IssueCredential   Operation = "IssueCredential"
	RequestProof      Operation = "RequestProof"
	PresentProof      Operation = "PresentProof"
)

// AllOperations lists every operation in protocol order.
var AllOperations = []Operation{
	OfferCredential,
	RequestCredential,
	IssueCredential,
	RequestProof,
	PresentProof,
}

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	return slices.Contains(AllOperations, o)
}

// Kind returns the flow kind the operation belongs to.
func (o Operation) Kind() FlowKind {
	switch o {
	case RequestProof, PresentProof:
		return FlowKindProof
	default:
		return FlowKindIssuance
	}
}

// Starts reports whether the operation opens a new flow.
func (o Operation) Starts() bool {
	return o == OfferCredential || o == RequestProof
}

// MetricName returns the snake_case label used in metrics.
func (o Operation) MetricName() string {
	switch o {
	case OfferCredential:
		return "offer_credential"
	case RequestCredential:
		return "request_credential"
	case IssueCredential:
		return "issue_credential"
	case RequestProof:
		return "request_proof"
	case PresentProof:
		return "present_proof"
	default:
		return "unknown"
	}
}

// ProtocolDescriptor declares a protocol name and the operations it supports.
type ProtocolDescriptor struct {
	Name                string
	SupportedOperations []Operation
}

// Supports reports whether op is declared by the descriptor.
func (d ProtocolDescriptor) Supports(op Operation) bool {
	return slices.Contains(d.SupportedOperations, op)
}

// Operations returns a sorted copy of the supported operations.
func (d ProtocolDescriptor) Operations() []Operation {
	ops := slices.Clone(d.SupportedOperations)
	sort.Slice(ops, func(i, j int) bool {
		return slices.Index(AllOperations, ops[i]) < slices.Index(AllOperations, ops[j])
	})
	return ops
}
