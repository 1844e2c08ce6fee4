package service

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	cryptoService "github.com/allisson/credx/internal/crypto/service"
	envelopeDomain "github.com/allisson/credx/internal/envelope/domain"
	envelopeService "github.com/allisson/credx/internal/envelope/service"
	apperrors "github.com/allisson/credx/internal/errors"
	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
	identityDomain "github.com/allisson/credx/internal/identity/domain"
	identityService "github.com/allisson/credx/internal/identity/service"
	keystoreService "github.com/allisson/credx/internal/keystore/service"
	keystoreUsecase "github.com/allisson/credx/internal/keystore/usecase"
)

type staticSource struct{}

func (staticSource) MasterKey(context.Context) ([]byte, error) {
	return make([]byte, 32), nil
}

type protocolFixture struct {
	store      *keystoreUsecase.FileKeyStore
	manager    *keystoreUsecase.RotationManagerUseCase
	resolver   Resolver
	signer     *identityService.KeyStoreSigner
	packer     *envelopeService.PackerService
	correlator *Correlator
}

func newProtocolFixture(t *testing.T) *protocolFixture {
	t.Helper()

	codec := keystoreService.NewKeySetCodec(cryptoService.NewAEADManager(), cryptoDomain.AESGCM)
	store, err := keystoreUsecase.NewFileKeyStore(
		context.Background(),
		filepath.Join(t.TempDir(), "keystore.bin"),
		staticSource{},
		codec,
		nil,
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	generator := cryptoService.NewKeyGenerator()
	resolver := identityService.NewLocalResolver(store)
	signer := identityService.NewKeyStoreSigner(store)
	packer := envelopeService.NewPacker(
		cryptoService.NewEngine(cryptoService.NewAEADManager()),
		generator,
		resolver,
		store,
		signer,
		nil,
	)

	return &protocolFixture{
		store:      store,
		manager:    keystoreUsecase.NewRotationManager(store, generator, nil, nil),
		resolver:   resolver,
		signer:     signer,
		packer:     packer,
		correlator: NewCorrelator(nil, nil),
	}
}

func (f *protocolFixture) party(t *testing.T, id string, keyType cryptoDomain.KeyType) exchangeDomain.Party {
	t.Helper()
	keyID := identityDomain.DefaultKeyID(id, "")
	_, err := f.manager.Create(context.Background(), keyID, keyType)
	require.NoError(t, err)
	return exchangeDomain.Party{ID: id, KeyID: keyID}
}

func (f *protocolFixture) step(p Protocol, op exchangeDomain.Operation, req exchangeDomain.Request) StepFunc {
	return func(ctx context.Context, flow *exchangeDomain.ExchangeFlow) (*exchangeDomain.Response, error) {
		req.Flow = flow
		return p.Execute(ctx, op, &req)
	}
}

func (f *protocolFixture) begin(
	t *testing.T,
	p Protocol,
	op exchangeDomain.Operation,
	seed *exchangeDomain.ExchangeFlow,
	req exchangeDomain.Request,
) *exchangeDomain.Result {
	t.Helper()
	result, err := f.correlator.Begin(context.Background(), op, seed, req.MessageID, f.step(p, op, req))
	require.NoError(t, err)
	return result
}

func (f *protocolFixture) advance(
	p Protocol,
	op exchangeDomain.Operation,
	req exchangeDomain.Request,
) (*exchangeDomain.Result, error) {
	return f.correlator.Advance(context.Background(), op, req.ReferenceID, req.MessageID, f.step(p, op, req))
}

func seedFlow(protocol string, issuer, holder exchangeDomain.Party) *exchangeDomain.ExchangeFlow {
	return &exchangeDomain.ExchangeFlow{
		Protocol:         protocol,
		IssuerOrVerifier: issuer,
		HolderOrProver:   holder,
	}
}

func TestP2PProtocol_Issuance(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t)
	issuer := f.party(t, "did:example:issuer", cryptoDomain.X25519)
	holder := f.party(t, "did:example:holder", cryptoDomain.X25519)
	p := NewP2PProtocol(f.packer, cryptoDomain.ChaCha20)

	seed := seedFlow(P2PProtocolName, issuer, holder)
	seed.Claims = map[string]any{"name": "Alice"}
	offer := f.begin(t, p, exchangeDomain.OfferCredential, seed, exchangeDomain.Request{
		MessageID: "offer-1",
		Claims:    map[string]any{"name": "Alice"},
	})
	assert.Equal(t, encryptedContentType, offer.ContentType)
	assert.NotContains(t, string(offer.Wire), "Alice")

	request, err := f.advance(p, exchangeDomain.RequestCredential, exchangeDomain.Request{
		MessageID:   "request-1",
		ReferenceID: "offer-1",
		Attachment:  offer.Wire,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Alice"}, request.Claims)

	issued, err := f.advance(p, exchangeDomain.IssueCredential, exchangeDomain.Request{
		MessageID:   "issue-1",
		ReferenceID: "request-1",
		Attachment:  request.Wire,
	})
	require.NoError(t, err)
	assert.Equal(t, exchangeDomain.StateIssued, issued.State)

	env, err := envelopeDomain.UnmarshalEnvelope(issued.Wire)
	require.NoError(t, err)
	msg, err := f.packer.Unpack(ctx, env, envelopeDomain.Party(holder))
	require.NoError(t, err)
	assert.Equal(t, issueCredentialType, msg.Type)
	assert.Equal(t, "offer-1", msg.ThreadID)

	var body issueBody
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, "did:example:issuer", body.Credential.Issuer)
	assert.Equal(t, map[string]any{"name": "Alice"}, body.Credential.CredentialSubject)
}

func TestP2PProtocol_Rejections(t *testing.T) {
	f := newProtocolFixture(t)
	issuer := f.party(t, "did:example:issuer", cryptoDomain.P256)
	holder := f.party(t, "did:example:holder", cryptoDomain.P256)
	p := NewP2PProtocol(f.packer, cryptoDomain.AESGCM)

	first := f.begin(t, p, exchangeDomain.OfferCredential, seedFlow(P2PProtocolName, issuer, holder),
		exchangeDomain.Request{MessageID: "offer-1", Claims: map[string]any{"name": "Alice"}})
	second := f.begin(t, p, exchangeDomain.OfferCredential, seedFlow(P2PProtocolName, issuer, holder),
		exchangeDomain.Request{MessageID: "offer-2", Claims: map[string]any{"name": "Bob"}})

	t.Run("TamperedOffer", func(t *testing.T) {
		env, err := envelopeDomain.UnmarshalEnvelope(first.Wire)
		require.NoError(t, err)
		env.Ciphertext[0] ^= 0x01
		wire, err := env.Marshal()
		require.NoError(t, err)

		_, err = f.advance(p, exchangeDomain.RequestCredential, exchangeDomain.Request{
			MessageID: "request-tampered", ReferenceID: "offer-1", Attachment: wire,
		})
		assert.ErrorIs(t, err, envelopeDomain.ErrAuthenticationFailed)

		flow, err := f.correlator.Flow(first.FlowID)
		require.NoError(t, err)
		assert.Equal(t, exchangeDomain.StateOffered, flow.State)
	})

	t.Run("OfferOfAnotherFlow", func(t *testing.T) {
		_, err := f.advance(p, exchangeDomain.RequestCredential, exchangeDomain.Request{
			MessageID: "request-crossed", ReferenceID: "offer-1", Attachment: second.Wire,
		})
		assert.ErrorIs(t, err, exchangeDomain.ErrMessageMismatch)
	})

	t.Run("MissingAttachment", func(t *testing.T) {
		_, err := f.advance(p, exchangeDomain.RequestCredential, exchangeDomain.Request{
			MessageID: "request-empty", ReferenceID: "offer-1",
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("NoFlow", func(t *testing.T) {
		_, err := p.Execute(context.Background(), exchangeDomain.OfferCredential, &exchangeDomain.Request{})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestP2PProtocol_Proof(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t)
	verifier := f.party(t, "did:example:verifier", cryptoDomain.X25519)
	prover := f.party(t, "did:example:prover", cryptoDomain.X25519)
	p := NewP2PProtocol(f.packer, cryptoDomain.AESGCM)

	requested := f.begin(t, p, exchangeDomain.RequestProof, seedFlow(P2PProtocolName, verifier, prover),
		exchangeDomain.Request{MessageID: "proof-request-1", Query: map[string]any{"required_claims": []any{"name"}}})

	env, err := envelopeDomain.UnmarshalEnvelope(requested.Wire)
	require.NoError(t, err)
	msg, err := f.packer.Unpack(ctx, env, envelopeDomain.Party(prover))
	require.NoError(t, err)
	var body proofRequestBody
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.NotEmpty(t, body.Challenge)

	presented, err := f.advance(p, exchangeDomain.PresentProof, exchangeDomain.Request{
		MessageID:   "presentation-1",
		ReferenceID: "proof-request-1",
		Attachment:  requested.Wire,
		Claims:      map[string]any{"name": "Alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, exchangeDomain.StatePresented, presented.State)
	assert.Equal(t, map[string]any{"name": "Alice"}, presented.Claims)
	assert.Equal(t, presentationType, presented.MessageType)
}

func TestWalletProtocol(t *testing.T) {
	ctx := context.Background()
	f := newProtocolFixture(t)
	verifier := f.party(t, "did:example:verifier", cryptoDomain.X25519)
	prover := f.party(t, "did:example:prover", cryptoDomain.Ed25519)
	w := NewWalletProtocol(f.packer)

	query := map[string]any{"reason": "age check", "required_claims": []any{"name", "birthdate"}}
	begin := func(t *testing.T, messageID string) *exchangeDomain.Result {
		seed := seedFlow(WalletProtocolName, verifier, prover)
		seed.Query = query
		return f.begin(t, w, exchangeDomain.RequestProof, seed,
			exchangeDomain.Request{MessageID: messageID, Query: query})
	}

	t.Run("Success", func(t *testing.T) {
		requested := begin(t, "qbe-1")
		assert.Equal(t, vpRequestContentType, requested.ContentType)

		var request vpRequest
		require.NoError(t, json.Unmarshal(requested.Wire, &request))
		require.Len(t, request.Query, 1)
		assert.Equal(t, queryByExample, request.Query[0].Type)
		assert.Equal(t, []string{"name", "birthdate"}, request.Query[0].CredentialQuery.RequiredClaims)
		assert.Equal(t, "did:example:verifier", request.Domain)

		presented, err := f.advance(w, exchangeDomain.PresentProof, exchangeDomain.Request{
			MessageID:   "vp-1",
			ReferenceID: "qbe-1",
			Attachment:  requested.Wire,
			Claims:      map[string]any{"name": "Alice", "birthdate": "1990-01-01"},
		})
		require.NoError(t, err)
		assert.Equal(t, "Alice", presented.Claims["name"])
		assert.Equal(t, signedContentType, presented.ContentType)

		env, err := envelopeDomain.UnmarshalEnvelope(presented.Wire)
		require.NoError(t, err)
		assert.False(t, env.Encrypted())
		assert.Equal(t, prover.KeyID+"@1", env.SignerKeyID)

		_, err = f.packer.Unpack(ctx, env, envelopeDomain.Party(verifier))
		assert.NoError(t, err)
	})

	t.Run("MissingClaims", func(t *testing.T) {
		requested := begin(t, "qbe-2")
		_, err := f.advance(w, exchangeDomain.PresentProof, exchangeDomain.Request{
			MessageID:   "vp-2",
			ReferenceID: "qbe-2",
			Attachment:  requested.Wire,
			Claims:      map[string]any{"name": "Alice"},
		})
		assert.ErrorIs(t, err, exchangeDomain.ErrPresentationRejected)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
		assert.Contains(t, err.Error(), "birthdate")
	})

	t.Run("ForeignChallenge", func(t *testing.T) {
		begin(t, "qbe-3")
		other := begin(t, "qbe-4")

		_, err := f.advance(w, exchangeDomain.PresentProof, exchangeDomain.Request{
			MessageID:   "vp-3",
			ReferenceID: "qbe-3",
			Attachment:  other.Wire,
			Claims:      map[string]any{"name": "Alice", "birthdate": "1990-01-01"},
		})
		assert.ErrorIs(t, err, exchangeDomain.ErrPresentationRejected)
	})

	t.Run("WrongDomain", func(t *testing.T) {
		requested := begin(t, "qbe-5")
		var request vpRequest
		require.NoError(t, json.Unmarshal(requested.Wire, &request))
		request.Domain = "did:example:phisher"
		wire, err := json.Marshal(request)
		require.NoError(t, err)

		_, err = f.advance(w, exchangeDomain.PresentProof, exchangeDomain.Request{
			MessageID: "vp-5", ReferenceID: "qbe-5", Attachment: wire,
		})
		assert.ErrorIs(t, err, exchangeDomain.ErrMessageMismatch)
	})

	t.Run("NonSigningProverKey", func(t *testing.T) {
		encryptingProver := f.party(t, "did:example:encrypting-prover", cryptoDomain.X25519)
		seed := seedFlow(WalletProtocolName, verifier, encryptingProver)
		seed.Query = query
		requested := f.begin(t, w, exchangeDomain.RequestProof, seed,
			exchangeDomain.Request{MessageID: "qbe-6", Query: query})

		_, err := f.advance(w, exchangeDomain.PresentProof, exchangeDomain.Request{
			MessageID:   "vp-6",
			ReferenceID: "qbe-6",
			Attachment:  requested.Wire,
			Claims:      map[string]any{"name": "Alice", "birthdate": "1990-01-01"},
		})
		assert.ErrorIs(t, err, cryptoDomain.ErrUnsupportedKeyType)
	})

	t.Run("UnsupportedOperation", func(t *testing.T) {
		_, err := w.Execute(ctx, exchangeDomain.OfferCredential, &exchangeDomain.Request{
			Flow: seedFlow(WalletProtocolName, verifier, prover),
		})
		assert.ErrorIs(t, err, exchangeDomain.ErrOperationNotSupported)
	})
}

func TestDecodeQuery(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		q, err := DecodeQuery(map[string]any{
			"reason":          "kyc",
			"credential_type": "IdentityCredential",
			"required_claims": []any{"name"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"IdentityCredential"}, q.CredentialType)
		assert.Equal(t, []string{"name"}, q.RequiredClaims)
	})

	t.Run("Error_UnknownField", func(t *testing.T) {
		_, err := DecodeQuery(map[string]any{"required_claims": []any{"name"}, "limit": 3})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_NoRequiredClaims", func(t *testing.T) {
		_, err := DecodeQuery(map[string]any{"reason": "kyc"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func newOIDCFixture(t *testing.T) (*protocolFixture, *OIDCProtocol, exchangeDomain.Party, exchangeDomain.Party) {
	t.Helper()
	f := newProtocolFixture(t)
	issuer := f.party(t, "did:example:issuer", cryptoDomain.Ed25519)
	holder := f.party(t, "did:example:holder", cryptoDomain.Ed25519)

	o, err := NewOIDCProtocol(OIDCConfig{IssuerURL: "https://issuer.example.com"}, f.signer, f.resolver, f.store)
	require.NoError(t, err)
	return f, o, issuer, holder
}

func TestOIDCProtocol_Issuance(t *testing.T) {
	ctx := context.Background()
	f, o, issuer, holder := newOIDCFixture(t)

	seed := seedFlow(OIDCProtocolName, issuer, holder)
	seed.Claims = map[string]any{"name": "Alice"}
	offer := f.begin(t, o, exchangeDomain.OfferCredential, seed, exchangeDomain.Request{MessageID: "offer-1"})
	assert.True(t, strings.HasPrefix(string(offer.Wire), "openid-credential-offer://?credential_offer="))

	u, err := url.Parse(string(offer.Wire))
	require.NoError(t, err)
	var decoded credentialOffer
	require.NoError(t, json.Unmarshal([]byte(u.Query().Get("credential_offer")), &decoded))
	assert.Equal(t, "https://issuer.example.com", decoded.CredentialIssuer)
	assert.NotEmpty(t, decoded.Grants[preAuthorizedCodeGrant].Code)

	request, err := f.advance(o, exchangeDomain.RequestCredential, exchangeDomain.Request{
		MessageID: "request-1", ReferenceID: "offer-1", Attachment: offer.Wire,
	})
	require.NoError(t, err)

	var credReq credentialRequest
	require.NoError(t, json.Unmarshal(request.Wire, &credReq))
	assert.Equal(t, credentialFormat, credReq.Format)
	assert.NotEmpty(t, credReq.AccessToken)

	issued, err := f.advance(o, exchangeDomain.IssueCredential, exchangeDomain.Request{
		MessageID: "issue-1", ReferenceID: "request-1", Attachment: request.Wire,
	})
	require.NoError(t, err)
	assert.Equal(t, "application/jwt", issued.ContentType)

	credential, err := ParseCredentialJWT(string(issued.Wire))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Alice"}, credential.CredentialSubject)
	assert.Equal(t, "did:example:issuer", credential.Issuer)

	t.Run("CredentialVerifiesWithIssuerKey", func(t *testing.T) {
		key, err := f.resolver.ResolveStaticPublicKey(ctx, issuer.ID, issuer.KeyID)
		require.NoError(t, err)

		token, err := jwt.Parse(string(issued.Wire), func(*jwt.Token) (any, error) {
			return ed25519.PublicKey(key.PublicKey.Bytes), nil
		}, jwt.WithValidMethods([]string{"EdDSA"}))
		require.NoError(t, err)
		assert.Equal(t, issuer.KeyID+"@1", token.Header["kid"])
	})
}

func TestOIDCProtocol_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("WrongCode", func(t *testing.T) {
		f, o, issuer, holder := newOIDCFixture(t)
		offer := f.begin(t, o, exchangeDomain.OfferCredential, seedFlow(OIDCProtocolName, issuer, holder),
			exchangeDomain.Request{MessageID: "offer-1"})

		forged := credentialOfferScheme + "?" + url.Values{"credential_offer": {
			`{"credential_issuer":"https://issuer.example.com","credential_configuration_ids":[],` +
				`"grants":{"` + preAuthorizedCodeGrant + `":{"pre-authorized_code":"guessed"}}}`,
		}}.Encode()
		_, err := f.advance(o, exchangeDomain.RequestCredential, exchangeDomain.Request{
			MessageID: "request-1", ReferenceID: "offer-1", Attachment: []byte(forged),
		})
		assert.ErrorIs(t, err, exchangeDomain.ErrInvalidGrant)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

		// the real code still works after a failed guess
		_, err = f.advance(o, exchangeDomain.RequestCredential, exchangeDomain.Request{
			MessageID: "request-2", ReferenceID: "offer-1", Attachment: offer.Wire,
		})
		assert.NoError(t, err)
	})

	t.Run("CodeIsSingleUse", func(t *testing.T) {
		f, o, issuer, holder := newOIDCFixture(t)
		offer := f.begin(t, o, exchangeDomain.OfferCredential, seedFlow(OIDCProtocolName, issuer, holder),
			exchangeDomain.Request{MessageID: "offer-1"})
		flow, err := f.correlator.Flow(offer.FlowID)
		require.NoError(t, err)

		req := &exchangeDomain.Request{MessageID: "request-1", Attachment: offer.Wire, Flow: flow}
		_, err = o.Execute(ctx, exchangeDomain.RequestCredential, req)
		require.NoError(t, err)

		req.MessageID = "request-2"
		_, err = o.Execute(ctx, exchangeDomain.RequestCredential, req)
		assert.ErrorIs(t, err, exchangeDomain.ErrInvalidGrant)
	})

	t.Run("FailedRequestKeepsCode", func(t *testing.T) {
		f := newProtocolFixture(t)
		issuer := f.party(t, "did:example:issuer", cryptoDomain.Ed25519)
		holder := exchangeDomain.Party{
			ID:    "did:example:holder",
			KeyID: identityDomain.DefaultKeyID("did:example:holder", ""),
		}
		o, err := NewOIDCProtocol(OIDCConfig{IssuerURL: "https://issuer.example.com"}, f.signer, f.resolver, f.store)
		require.NoError(t, err)

		offer := f.begin(t, o, exchangeDomain.OfferCredential, seedFlow(OIDCProtocolName, issuer, holder),
			exchangeDomain.Request{MessageID: "offer-1"})

		_, err = f.advance(o, exchangeDomain.RequestCredential, exchangeDomain.Request{
			MessageID: "request-1", ReferenceID: "offer-1", Attachment: offer.Wire,
		})
		require.Error(t, err)
		assert.NotErrorIs(t, err, exchangeDomain.ErrInvalidGrant)

		flow, err := f.correlator.Flow(offer.FlowID)
		require.NoError(t, err)
		assert.Equal(t, exchangeDomain.StateOffered, flow.State)

		_, err = f.manager.Create(ctx, holder.KeyID, cryptoDomain.Ed25519)
		require.NoError(t, err)

		request, err := f.advance(o, exchangeDomain.RequestCredential, exchangeDomain.Request{
			MessageID: "request-2", ReferenceID: "offer-1", Attachment: offer.Wire,
		})
		require.NoError(t, err)
		assert.Equal(t, credentialRequestType, request.MessageType)
	})

	t.Run("ForgedAccessToken", func(t *testing.T) {
		f, o, issuer, holder := newOIDCFixture(t)
		offer := f.begin(t, o, exchangeDomain.OfferCredential, seedFlow(OIDCProtocolName, issuer, holder),
			exchangeDomain.Request{MessageID: "offer-1"})
		request, err := f.advance(o, exchangeDomain.RequestCredential, exchangeDomain.Request{
			MessageID: "request-1", ReferenceID: "offer-1", Attachment: offer.Wire,
		})
		require.NoError(t, err)

		var credReq credentialRequest
		require.NoError(t, json.Unmarshal(request.Wire, &credReq))
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iss": "https://issuer.example.com",
			"aud": "https://issuer.example.com",
			"sub": holder.ID,
		}).SignedString([]byte("not-the-secret"))
		require.NoError(t, err)
		credReq.AccessToken = forged
		wire, err := json.Marshal(credReq)
		require.NoError(t, err)

		_, err = f.advance(o, exchangeDomain.IssueCredential, exchangeDomain.Request{
			MessageID: "issue-1", ReferenceID: "request-1", Attachment: wire,
		})
		assert.ErrorIs(t, err, exchangeDomain.ErrInvalidGrant)
	})

	t.Run("ProofFromAnotherHolder", func(t *testing.T) {
		f, o, issuer, holder := newOIDCFixture(t)
		mallory := f.party(t, "did:example:mallory", cryptoDomain.Ed25519)

		offer := f.begin(t, o, exchangeDomain.OfferCredential, seedFlow(OIDCProtocolName, issuer, holder),
			exchangeDomain.Request{MessageID: "offer-1"})
		request, err := f.advance(o, exchangeDomain.RequestCredential, exchangeDomain.Request{
			MessageID: "request-1", ReferenceID: "offer-1", Attachment: offer.Wire,
		})
		require.NoError(t, err)

		flow, err := f.correlator.Flow(offer.FlowID)
		require.NoError(t, err)
		proof, err := o.signJWT(ctx, mallory.KeyID, proofJWTType, &proofClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:   holder.ID,
				Audience: jwt.ClaimStrings{"https://issuer.example.com"},
			},
			Nonce: deriveNonce(o.nonceSecret, "c_nonce", flow),
		})
		require.NoError(t, err)

		var credReq credentialRequest
		require.NoError(t, json.Unmarshal(request.Wire, &credReq))
		credReq.Proof.JWT = proof
		wire, err := json.Marshal(credReq)
		require.NoError(t, err)

		_, err = f.advance(o, exchangeDomain.IssueCredential, exchangeDomain.Request{
			MessageID: "issue-1", ReferenceID: "request-1", Attachment: wire,
		})
		assert.ErrorIs(t, err, exchangeDomain.ErrInvalidGrant)
	})

	t.Run("ProofOperationsUnsupported", func(t *testing.T) {
		_, o, issuer, holder := newOIDCFixture(t)
		_, err := o.Execute(ctx, exchangeDomain.RequestProof, &exchangeDomain.Request{
			Flow: seedFlow(OIDCProtocolName, issuer, holder),
		})
		assert.ErrorIs(t, err, exchangeDomain.ErrOperationNotSupported)
	})

	t.Run("IssuerURLRequired", func(t *testing.T) {
		f := newProtocolFixture(t)
		_, err := NewOIDCProtocol(OIDCConfig{}, f.signer, f.resolver, f.store)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}
