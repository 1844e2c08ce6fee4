package service

import (
	"context"
	"encoding/json"
	"maps"
	"slices"

	"github.com/mitchellh/mapstructure"

	envelopeDomain "github.com/allisson/credx/internal/envelope/domain"
	apperrors "github.com/allisson/credx/internal/errors"
	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
)

// WalletProtocolName is the registry name of the browser wallet protocol.
const WalletProtocolName = "browser-wallet"

const (
	queryByExample       = "QueryByExample"
	walletPresentation   = "https://w3id.org/vp/presentation"
	vpRequestContentType = "application/vp-request+json"
)

// QueryByExample is the credential query of a wallet presentation request.
type QueryByExample struct {
	Reason         string   `mapstructure:"reason" json:"reason,omitempty"`
	CredentialType []string `mapstructure:"credential_type" json:"credentialType,omitempty"`
	RequiredClaims []string `mapstructure:"required_claims" json:"requiredClaims"`
	TrustedIssuers []string `mapstructure:"trusted_issuers" json:"trustedIssuer,omitempty"`
}

type vpQuery struct {
	Type            string         `json:"type"`
	CredentialQuery QueryByExample `json:"credentialQuery"`
}

type vpRequest struct {
	Query     []vpQuery `json:"query"`
	Challenge string    `json:"challenge"`
	Domain    string    `json:"domain"`
}

type walletProof struct {
	Challenge string `json:"challenge"`
	Domain    string `json:"domain"`
}

type walletPresentationBody struct {
	Type                 []string         `json:"type"`
	Holder               string           `json:"holder"`
	VerifiableCredential []map[string]any `json:"verifiableCredential"`
	Proof                walletProof      `json:"proof"`
}

// WalletProtocol asks a browser wallet for a presentation with a
// QueryByExample request and accepts the answer as a signed plaintext envelope.
// The prover party's key id must name an Ed25519 signing key.
type WalletProtocol struct {
	packer Packer
	secret []byte
}

// NewWalletProtocol creates a WalletProtocol.
func NewWalletProtocol(packer Packer) *WalletProtocol {
	return &WalletProtocol{packer: packer, secret: newSecret()}
}

// Descriptor declares the proof operations only.
func (w *WalletProtocol) Descriptor() exchangeDomain.ProtocolDescriptor {
	return exchangeDomain.ProtocolDescriptor{
		Name:                WalletProtocolName,
		SupportedOperations: []exchangeDomain.Operation{exchangeDomain.RequestProof, exchangeDomain.PresentProof},
	}
}

func (w *WalletProtocol) Execute(
	ctx context.Context,
	op exchangeDomain.Operation,
	req *exchangeDomain.Request,
) (*exchangeDomain.Response, error) {
	flow, err := requireFlow(req)
	if err != nil {
		return nil, err
	}

	switch op {
	case exchangeDomain.RequestProof:
		return w.requestProof(req, flow)
	case exchangeDomain.PresentProof:
		return w.presentProof(ctx, req, flow)
	}
	return nil, &exchangeDomain.OperationNotSupportedError{
		Name:                WalletProtocolName,
		Operation:           op,
		SupportedOperations: w.Descriptor().SupportedOperations,
	}
}

// DecodeQuery decodes a loosely typed query map into a QueryByExample.
func DecodeQuery(query map[string]any) (*QueryByExample, error) {
	var q QueryByExample
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &q,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(query); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "invalid query: %v", err)
	}
	if len(q.RequiredClaims) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "invalid query: required_claims is empty")
	}
	return &q, nil
}

func (w *WalletProtocol) requestProof(
	req *exchangeDomain.Request,
	flow *exchangeDomain.ExchangeFlow,
) (*exchangeDomain.Response, error) {
	query, err := DecodeQuery(req.Query)
	if err != nil {
		return nil, err
	}

	wire, err := json.Marshal(vpRequest{
		Query:     []vpQuery{{Type: queryByExample, CredentialQuery: *query}},
		Challenge: deriveNonce(w.secret, "wallet-proof", flow),
		Domain:    flow.IssuerOrVerifier.ID,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode presentation request")
	}
	return &exchangeDomain.Response{
		MessageType: queryByExample,
		ContentType: vpRequestContentType,
		Wire:        wire,
	}, nil
}

func (w *WalletProtocol) presentProof(
	ctx context.Context,
	req *exchangeDomain.Request,
	flow *exchangeDomain.ExchangeFlow,
) (*exchangeDomain.Response, error) {
	verifier, prover := flow.IssuerOrVerifier, flow.HolderOrProver

	// Wallet side: answer the request it was shown.
	var request vpRequest
	if err := json.Unmarshal(req.Attachment, &request); err != nil || len(request.Query) == 0 {
		return nil, mismatch("attachment is not a presentation request")
	}
	if request.Domain != verifier.ID {
		return nil, mismatch("presentation request domain %s is not the verifier", request.Domain)
	}

	body, err := json.Marshal(walletPresentationBody{
		Type:                 []string{"VerifiablePresentation"},
		Holder:               prover.ID,
		VerifiableCredential: []map[string]any{{"credentialSubject": req.Claims}},
		Proof:                walletProof{Challenge: request.Challenge, Domain: request.Domain},
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode presentation")
	}

	env, err := w.packer.Pack(ctx, &envelopeDomain.Message{
		ID:       req.MessageID,
		Type:     walletPresentation,
		ThreadID: flow.ThreadID,
		Body:     body,
	}, envelopeDomain.Party(prover), []envelopeDomain.Party{envelopeDomain.Party(verifier)},
		envelopeDomain.Options{Plaintext: true, Protocol: WalletProtocolName, SigningKeyID: prover.KeyID})
	if err != nil {
		return nil, err
	}
	wire, err := env.Marshal()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode envelope")
	}

	// Verifier side: check the signature, the challenge and the requested claims.
	claims, err := w.verify(ctx, wire, flow)
	if err != nil {
		return nil, err
	}
	return &exchangeDomain.Response{
		MessageType: walletPresentation,
		ContentType: signedContentType,
		Wire:        wire,
		Claims:      claims,
	}, nil
}

func (w *WalletProtocol) verify(
	ctx context.Context,
	wire []byte,
	flow *exchangeDomain.ExchangeFlow,
) (map[string]any, error) {
	env, err := envelopeDomain.UnmarshalEnvelope(wire)
	if err != nil {
		return nil, err
	}
	msg, err := w.packer.Unpack(ctx, env, envelopeDomain.Party(flow.IssuerOrVerifier))
	if err != nil {
		return nil, err
	}
	if msg.From != flow.HolderOrProver.ID || msg.ThreadID != flow.ThreadID {
		return nil, mismatch("presentation does not belong to flow %s", flow.FlowID)
	}

	var presentation walletPresentationBody
	if err := json.Unmarshal(msg.Body, &presentation); err != nil || len(presentation.VerifiableCredential) == 0 {
		return nil, apperrors.Wrap(exchangeDomain.ErrPresentationRejected, "malformed presentation")
	}
	if !nonceEqual(presentation.Proof.Challenge, deriveNonce(w.secret, "wallet-proof", flow)) ||
		presentation.Proof.Domain != flow.IssuerOrVerifier.ID {
		return nil, apperrors.Wrap(exchangeDomain.ErrPresentationRejected, "challenge mismatch")
	}

	subject, _ := presentation.VerifiableCredential[0]["credentialSubject"].(map[string]any)
	query, err := DecodeQuery(flow.Query)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, claim := range query.RequiredClaims {
		if _, ok := subject[claim]; !ok {
			missing = append(missing, claim)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, apperrors.Wrapf(exchangeDomain.ErrPresentationRejected, "missing claims %v", missing)
	}
	return maps.Clone(subject), nil
}
