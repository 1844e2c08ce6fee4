// Package dto provides the JSON shapes returned by the exchange read endpoints.
package dto

import (
	"slices"
	"time"

	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
)

// PartyResponse is one participant of a flow.
type PartyResponse struct {
	ID    string `json:"id"`
	KeyID string `json:"key_id"`
}

// FlowResponse represents an exchange flow. Claims and query values are omitted;
// only their keys are listed so the ops surface never echoes credential data.
type FlowResponse struct {
	FlowID           string        `json:"flow_id"`
	Kind             string        `json:"kind"`
	State            string        `json:"state"`
	Protocol         string        `json:"protocol"`
	OfferID          string        `json:"offer_id,omitempty"`
	RequestID        string        `json:"request_id,omitempty"`
	IssueID          string        `json:"issue_id,omitempty"`
	ProofRequestID   string        `json:"proof_request_id,omitempty"`
	PresentationID   string        `json:"presentation_id,omitempty"`
	IssuerOrVerifier PartyResponse `json:"issuer_or_verifier"`
	HolderOrProver   PartyResponse `json:"holder_or_prover"`
	ThreadID         string        `json:"thread_id"`
	ParentThreadID   string        `json:"parent_thread_id,omitempty"`
	ClaimNames       []string      `json:"claim_names,omitempty"`
	QueryNames       []string      `json:"query_names,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	LastTransitionAt time.Time     `json:"last_transition_at"`
	ExpiresAt        *time.Time    `json:"expires_at,omitempty"`
}

// FlowRecordResponse is one flow log entry.
type FlowRecordResponse struct {
	ID        string    `json:"id"`
	FlowID    string    `json:"flow_id"`
	ThreadID  string    `json:"thread_id"`
	Protocol  string    `json:"protocol"`
	Operation string    `json:"operation"`
	MessageID string    `json:"message_id"`
	State     string    `json:"state"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	CreatedAt time.Time `json:"created_at"`
}

// ProtocolResponse describes one registered protocol.
type ProtocolResponse struct {
	Name                string   `json:"name"`
	SupportedOperations []string `json:"supported_operations"`
}

// ListResponse wraps a page of items.
type ListResponse[T any] struct {
	Data []T `json:"data"`
}

// MapFlowToResponse converts a domain flow to its API response.
func MapFlowToResponse(flow *exchangeDomain.ExchangeFlow) FlowResponse {
	return FlowResponse{
		FlowID:           flow.FlowID,
		Kind:             string(flow.Kind),
		State:            string(flow.State),
		Protocol:         flow.Protocol,
		OfferID:          flow.OfferID,
		RequestID:        flow.RequestID,
		IssueID:          flow.IssueID,
		ProofRequestID:   flow.ProofRequestID,
		PresentationID:   flow.PresentationID,
		IssuerOrVerifier: PartyResponse{ID: flow.IssuerOrVerifier.ID, KeyID: flow.IssuerOrVerifier.KeyID},
		HolderOrProver:   PartyResponse{ID: flow.HolderOrProver.ID, KeyID: flow.HolderOrProver.KeyID},
		ThreadID:         flow.ThreadID,
		ParentThreadID:   flow.ParentThreadID,
		ClaimNames:       sortedKeys(flow.Claims),
		QueryNames:       sortedKeys(flow.Query),
		CreatedAt:        flow.CreatedAt,
		LastTransitionAt: flow.LastTransitionAt,
		ExpiresAt:        flow.ExpiresAt,
	}
}

// MapFlowsToResponse converts a list of flows.
func MapFlowsToResponse(flows []*exchangeDomain.ExchangeFlow) ListResponse[FlowResponse] {
	data := make([]FlowResponse, 0, len(flows))
	for _, flow := range flows {
		data = append(data, MapFlowToResponse(flow))
	}
	return ListResponse[FlowResponse]{Data: data}
}

// MapFlowRecordsToResponse converts a list of flow log records.
func MapFlowRecordsToResponse(records []*exchangeDomain.FlowRecord) ListResponse[FlowRecordResponse] {
	data := make([]FlowRecordResponse, 0, len(records))
	for _, r := range records {
		data = append(data, FlowRecordResponse{
			ID:        r.ID.String(),
			FlowID:    r.FlowID,
			ThreadID:  r.ThreadID,
			Protocol:  r.Protocol,
			Operation: string(r.Operation),
			MessageID: r.MessageID,
			State:     string(r.State),
			From:      r.From,
			To:        r.To,
			CreatedAt: r.CreatedAt,
		})
	}
	return ListResponse[FlowRecordResponse]{Data: data}
}

// MapProtocolsToResponse converts the registry's descriptors.
func MapProtocolsToResponse(descriptors []exchangeDomain.ProtocolDescriptor) ListResponse[ProtocolResponse] {
	data := make([]ProtocolResponse, 0, len(descriptors))
	for _, d := range descriptors {
		ops := make([]string, 0, len(d.SupportedOperations))
		for _, op := range d.Operations() {
			ops = append(ops, string(op))
		}
		data = append(data, ProtocolResponse{Name: d.Name, SupportedOperations: ops})
	}
	return ListResponse[ProtocolResponse]{Data: data}
}

func sortedKeys(m map[string]any) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
