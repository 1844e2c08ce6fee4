package service

import (
	"context"
	"encoding/json"
	"maps"
	"time"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	envelopeDomain "github.com/allisson/credx/internal/envelope/domain"
	apperrors "github.com/allisson/credx/internal/errors"
	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
)

// P2PProtocolName is the registry name of the encrypted peer-to-peer protocol.
const P2PProtocolName = "p2p-encrypted"

const (
	offerCredentialType     = "https://didcomm.org/issue-credential/3.0/offer-credential"
	requestCredentialType   = "https://didcomm.org/issue-credential/3.0/request-credential"
	issueCredentialType     = "https://didcomm.org/issue-credential/3.0/issue-credential"
	requestPresentationType = "https://didcomm.org/present-proof/3.0/request-presentation"
	presentationType        = "https://didcomm.org/present-proof/3.0/presentation"

	encryptedContentType = "application/didcomm-encrypted+json"
	signedContentType    = "application/didcomm-signed+json"
)

var credentialContext = []string{"https://www.w3.org/2018/credentials/v1"}

type offerBody struct {
	CredentialPreview map[string]any `json:"credential_preview"`
}

type requestBody struct {
	OfferID string `json:"offer_id"`
}

type issueBody struct {
	Credential Credential `json:"credential"`
}

// Credential is the credential document carried by p2p issuance messages.
type Credential struct {
	Context           []string       `json:"@context"`
	Type              []string       `json:"type"`
	Issuer            string         `json:"issuer"`
	IssuanceDate      time.Time      `json:"issuanceDate"`
	CredentialSubject map[string]any `json:"credentialSubject"`
}

type proofRequestBody struct {
	Query     map[string]any `json:"query,omitempty"`
	Challenge string         `json:"challenge"`
}

type presentationBody struct {
	Challenge string         `json:"challenge"`
	Holder    string         `json:"holder"`
	Claims    map[string]any `json:"claims"`
}

// P2PProtocol runs every exchange operation over authcrypt envelopes between
// the two flow parties. Each step opens the previous message as its receiver
// and answers with a new envelope.
type P2PProtocol struct {
	packer    Packer
	algorithm cryptoDomain.Algorithm
	secret    []byte
	now       func() time.Time
}

// NewP2PProtocol creates a P2PProtocol encrypting content with alg.
func NewP2PProtocol(packer Packer, alg cryptoDomain.Algorithm) *P2PProtocol {
	return &P2PProtocol{
		packer:    packer,
		algorithm: alg,
		secret:    newSecret(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Descriptor declares all five operations.
func (p *P2PProtocol) Descriptor() exchangeDomain.ProtocolDescriptor {
	return exchangeDomain.ProtocolDescriptor{
		Name:                P2PProtocolName,
		SupportedOperations: exchangeDomain.AllOperations,
	}
}

func (p *P2PProtocol) Execute(
	ctx context.Context,
	op exchangeDomain.Operation,
	req *exchangeDomain.Request,
) (*exchangeDomain.Response, error) {
	flow, err := requireFlow(req)
	if err != nil {
		return nil, err
	}

	switch op {
	case exchangeDomain.OfferCredential:
		return p.offer(ctx, req, flow)
	case exchangeDomain.RequestCredential:
		return p.request(ctx, req, flow)
	case exchangeDomain.IssueCredential:
		return p.issue(ctx, req, flow)
	case exchangeDomain.RequestProof:
		return p.requestProof(ctx, req, flow)
	case exchangeDomain.PresentProof:
		return p.presentProof(ctx, req, flow)
	}
	return nil, &exchangeDomain.OperationNotSupportedError{
		Name:                P2PProtocolName,
		Operation:           op,
		SupportedOperations: exchangeDomain.AllOperations,
	}
}

func (p *P2PProtocol) offer(
	ctx context.Context,
	req *exchangeDomain.Request,
	flow *exchangeDomain.ExchangeFlow,
) (*exchangeDomain.Response, error) {
	resp, err := p.send(ctx, req, flow, offerCredentialType, flow.IssuerOrVerifier, flow.HolderOrProver,
		offerBody{CredentialPreview: req.Claims})
	if err != nil {
		return nil, err
	}
	resp.Claims = maps.Clone(req.Claims)
	return resp, nil
}

func (p *P2PProtocol) request(
	ctx context.Context,
	req *exchangeDomain.Request,
	flow *exchangeDomain.ExchangeFlow,
) (*exchangeDomain.Response, error) {
	var offer offerBody
	if err := p.receive(ctx, req.Attachment, flow, offerCredentialType, flow.OfferID,
		flow.IssuerOrVerifier, flow.HolderOrProver, &offer); err != nil {
		return nil, err
	}

	resp, err := p.send(ctx, req, flow, requestCredentialType, flow.HolderOrProver, flow.IssuerOrVerifier,
		requestBody{OfferID: flow.OfferID})
	if err != nil {
		return nil, err
	}
	resp.Claims = offer.CredentialPreview
	return resp, nil
}

func (p *P2PProtocol) issue(
	ctx context.Context,
	req *exchangeDomain.Request,
	flow *exchangeDomain.ExchangeFlow,
) (*exchangeDomain.Response, error) {
	var request requestBody
	if err := p.receive(ctx, req.Attachment, flow, requestCredentialType, flow.RequestID,
		flow.HolderOrProver, flow.IssuerOrVerifier, &request); err != nil {
		return nil, err
	}
	if request.OfferID != flow.OfferID {
		return nil, mismatch("request references offer %s, flow offer is %s", request.OfferID, flow.OfferID)
	}

	claims := req.Claims
	if len(claims) == 0 {
		claims = flow.Claims
	}
	subject := maps.Clone(claims)
	if subject == nil {
		subject = make(map[string]any)
	}

	credential := Credential{
		Context:           credentialContext,
		Type:              []string{"VerifiableCredential"},
		Issuer:            flow.IssuerOrVerifier.ID,
		IssuanceDate:      p.now(),
		CredentialSubject: subject,
	}
	resp, err := p.send(ctx, req, flow, issueCredentialType, flow.IssuerOrVerifier, flow.HolderOrProver,
		issueBody{Credential: credential})
	if err != nil {
		return nil, err
	}
	resp.Claims = maps.Clone(claims)
	return resp, nil
}

func (p *P2PProtocol) requestProof(
	ctx context.Context,
	req *exchangeDomain.Request,
	flow *exchangeDomain.ExchangeFlow,
) (*exchangeDomain.Response, error) {
	return p.send(ctx, req, flow, requestPresentationType, flow.IssuerOrVerifier, flow.HolderOrProver,
		proofRequestBody{Query: req.Query, Challenge: deriveNonce(p.secret, "p2p-proof", flow)})
}

func (p *P2PProtocol) presentProof(
	ctx context.Context,
	req *exchangeDomain.Request,
	flow *exchangeDomain.ExchangeFlow,
) (*exchangeDomain.Response, error) {
	verifier, prover := flow.IssuerOrVerifier, flow.HolderOrProver

	var proofRequest proofRequestBody
	if err := p.receive(ctx, req.Attachment, flow, requestPresentationType, flow.ProofRequestID,
		verifier, prover, &proofRequest); err != nil {
		return nil, err
	}

	resp, err := p.send(ctx, req, flow, presentationType, prover, verifier, presentationBody{
		Challenge: proofRequest.Challenge,
		Holder:    prover.ID,
		Claims:    req.Claims,
	})
	if err != nil {
		return nil, err
	}

	var presentation presentationBody
	if err := p.receive(ctx, resp.Wire, flow, presentationType, req.MessageID, prover, verifier,
		&presentation); err != nil {
		return nil, err
	}
	if !nonceEqual(presentation.Challenge, deriveNonce(p.secret, "p2p-proof", flow)) {
		return nil, apperrors.Wrap(exchangeDomain.ErrPresentationRejected, "challenge mismatch")
	}
	resp.Claims = presentation.Claims
	return resp, nil
}

func (p *P2PProtocol) send(
	ctx context.Context,
	req *exchangeDomain.Request,
	flow *exchangeDomain.ExchangeFlow,
	messageType string,
	from, to exchangeDomain.Party,
	body any,
) (*exchangeDomain.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode message body")
	}

	msg := &envelopeDomain.Message{
		ID:             req.MessageID,
		Type:           messageType,
		ThreadID:       flow.ThreadID,
		ParentThreadID: flow.ParentThreadID,
		ExpiresAt:      req.ExpiresAt,
		Body:           data,
	}
	env, err := p.packer.Pack(ctx, msg, envelopeDomain.Party(from), []envelopeDomain.Party{envelopeDomain.Party(to)},
		envelopeDomain.Options{ContentAlgorithm: p.algorithm, Protocol: P2PProtocolName})
	if err != nil {
		return nil, err
	}

	wire, err := env.Marshal()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode envelope")
	}
	return &exchangeDomain.Response{
		MessageType: messageType,
		ContentType: encryptedContentType,
		Wire:        wire,
	}, nil
}

// receive opens wire as to and checks it is the expected message of this flow from from.
func (p *P2PProtocol) receive(
	ctx context.Context,
	wire []byte,
	flow *exchangeDomain.ExchangeFlow,
	messageType, messageID string,
	from, to exchangeDomain.Party,
	body any,
) error {
	if len(wire) == 0 {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "attachment is required")
	}
	env, err := envelopeDomain.UnmarshalEnvelope(wire)
	if err != nil {
		return err
	}

	msg, err := p.packer.Unpack(ctx, env, envelopeDomain.Party(to))
	if err != nil {
		return err
	}
	switch {
	case msg.Type != messageType:
		return mismatch("expected %s, got %s", messageType, msg.Type)
	case msg.ID != messageID:
		return mismatch("expected message %s, got %s", messageID, msg.ID)
	case msg.From != from.ID:
		return mismatch("message sent by %s, expected %s", msg.From, from.ID)
	case msg.ThreadID != flow.ThreadID:
		return mismatch("message belongs to thread %s", msg.ThreadID)
	}

	if err := json.Unmarshal(msg.Body, body); err != nil {
		return mismatch("invalid %s body", messageType)
	}
	return nil
}
