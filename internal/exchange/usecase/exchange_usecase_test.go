package usecase_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	cryptoService "github.com/allisson/credx/internal/crypto/service"
	envelopeDomain "github.com/allisson/credx/internal/envelope/domain"
	envelopeService "github.com/allisson/credx/internal/envelope/service"
	apperrors "github.com/allisson/credx/internal/errors"
	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
	exchangeRepository "github.com/allisson/credx/internal/exchange/repository"
	exchangeService "github.com/allisson/credx/internal/exchange/service"
	serviceMocks "github.com/allisson/credx/internal/exchange/service/mocks"
	"github.com/allisson/credx/internal/exchange/usecase"
	identityDomain "github.com/allisson/credx/internal/identity/domain"
	identityService "github.com/allisson/credx/internal/identity/service"
	keystoreService "github.com/allisson/credx/internal/keystore/service"
	keystoreUsecase "github.com/allisson/credx/internal/keystore/usecase"
)

type staticSource struct{}

func (staticSource) MasterKey(context.Context) ([]byte, error) {
	return make([]byte, 32), nil
}

type exchangeFixture struct {
	uc       usecase.ExchangeUseCase
	registry *exchangeService.Registry
	packer   *envelopeService.PackerService
	manager  *keystoreUsecase.RotationManagerUseCase
	flowLog  *exchangeRepository.InMemoryFlowRecordRepository
}

func newExchangeFixture(t *testing.T, cfg usecase.Config) *exchangeFixture {
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

	registry := exchangeService.NewRegistry()
	p2p := exchangeService.NewP2PProtocol(packer, cryptoDomain.AESGCM)
	require.NoError(t, registry.Register(p2p.Descriptor(), p2p))
	wallet := exchangeService.NewWalletProtocol(packer)
	require.NoError(t, registry.Register(wallet.Descriptor(), wallet))
	oidc, err := exchangeService.NewOIDCProtocol(
		exchangeService.OIDCConfig{IssuerURL: "https://issuer.example.com"},
		signer,
		resolver,
		store,
	)
	require.NoError(t, err)
	require.NoError(t, registry.Register(oidc.Descriptor(), oidc))

	flowLog := exchangeRepository.NewInMemoryFlowRecordRepository()
	correlator := exchangeService.NewCorrelator(flowLog, nil)

	return &exchangeFixture{
		uc:       usecase.NewExchangeUseCase(registry, correlator, flowLog, cfg, nil),
		registry: registry,
		packer:   packer,
		manager:  keystoreUsecase.NewRotationManager(store, generator, nil, nil),
		flowLog:  flowLog,
	}
}

func (f *exchangeFixture) party(t *testing.T, id string, keyType cryptoDomain.KeyType) exchangeDomain.Party {
	t.Helper()
	keyID := identityDomain.DefaultKeyID(id, "")
	_, err := f.manager.Create(context.Background(), keyID, keyType)
	require.NoError(t, err)
	return exchangeDomain.Party{ID: id, KeyID: keyID}
}

func TestExchangeUseCase_P2PIssuance(t *testing.T) {
	ctx := context.Background()
	f := newExchangeFixture(t, usecase.Config{DispatchTimeout: 5 * time.Second})
	issuer := f.party(t, "did:example:issuer", cryptoDomain.X25519)
	holder := f.party(t, "did:example:holder", cryptoDomain.X25519)

	offer, err := f.uc.OfferCredential(ctx, &usecase.OfferInput{
		Protocol:  exchangeService.P2PProtocolName,
		MessageID: "offer-1",
		Issuer:    issuer,
		Holder:    holder,
		Claims:    map[string]any{"name": "Alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, exchangeDomain.StateOffered, offer.State)
	assert.Equal(t, "offer-1", offer.ThreadID)

	request, err := f.uc.RequestCredential(ctx, &usecase.StepInput{
		Protocol:    exchangeService.P2PProtocolName,
		MessageID:   "request-1",
		ReferenceID: "offer-1",
		Attachment:  offer.Wire,
	})
	require.NoError(t, err)
	assert.Equal(t, exchangeDomain.StateRequested, request.State)
	assert.Equal(t, offer.FlowID, request.FlowID)

	issued, err := f.uc.IssueCredential(ctx, &usecase.StepInput{
		Protocol:    exchangeService.P2PProtocolName,
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

	var body struct {
		Credential exchangeService.Credential `json:"credential"`
	}
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, map[string]any{"name": "Alice"}, body.Credential.CredentialSubject)

	flow, err := f.uc.Flow(ctx, offer.FlowID)
	require.NoError(t, err)
	assert.Equal(t, exchangeDomain.StateIssued, flow.State)
	assert.Equal(t, "offer-1", flow.OfferID)
	assert.Equal(t, "request-1", flow.RequestID)
	assert.Equal(t, "issue-1", flow.IssueID)

	t.Run("SecondIssueIsTerminal", func(t *testing.T) {
		_, err := f.uc.IssueCredential(ctx, &usecase.StepInput{
			Protocol:    exchangeService.P2PProtocolName,
			MessageID:   "issue-2",
			ReferenceID: "request-1",
			Attachment:  request.Wire,
		})
		var terminal *exchangeDomain.FlowTerminalError
		require.ErrorAs(t, err, &terminal)
		assert.Equal(t, exchangeDomain.StateIssued, terminal.State)
	})

	t.Run("ReplayReturnsRecordedResult", func(t *testing.T) {
		replayed, err := f.uc.IssueCredential(ctx, &usecase.StepInput{
			Protocol:    exchangeService.P2PProtocolName,
			MessageID:   "issue-1",
			ReferenceID: "request-1",
			Attachment:  request.Wire,
		})
		require.NoError(t, err)
		assert.Equal(t, issued.Wire, replayed.Wire)
	})

	t.Run("History", func(t *testing.T) {
		records, err := f.uc.History(ctx, "offer-1", 0, 50)
		require.NoError(t, err)
		require.Len(t, records, 3)

		ops := make([]exchangeDomain.Operation, 0, len(records))
		for _, r := range records {
			ops = append(ops, r.Operation)
		}
		assert.ElementsMatch(t, []exchangeDomain.Operation{
			exchangeDomain.OfferCredential,
			exchangeDomain.RequestCredential,
			exchangeDomain.IssueCredential,
		}, ops)

		sent, err := f.uc.ParticipantHistory(ctx, holder.ID, 0, 50)
		require.NoError(t, err)
		assert.Len(t, sent, 3)

		page, err := f.uc.History(ctx, "offer-1", 1, 1)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, records[1].ID, page[0].ID)
	})
}

func TestExchangeUseCase_TamperedAttachment(t *testing.T) {
	ctx := context.Background()
	f := newExchangeFixture(t, usecase.Config{})
	issuer := f.party(t, "did:example:issuer", cryptoDomain.P256)
	holder := f.party(t, "did:example:holder", cryptoDomain.P256)

	offer, err := f.uc.OfferCredential(ctx, &usecase.OfferInput{
		Protocol:  exchangeService.P2PProtocolName,
		MessageID: "offer-1",
		Issuer:    issuer,
		Holder:    holder,
		Claims:    map[string]any{"name": "Alice"},
	})
	require.NoError(t, err)

	env, err := envelopeDomain.UnmarshalEnvelope(offer.Wire)
	require.NoError(t, err)
	env.Ciphertext[0] ^= 0x01
	wire, err := env.Marshal()
	require.NoError(t, err)

	_, err = f.uc.RequestCredential(ctx, &usecase.StepInput{
		Protocol:    exchangeService.P2PProtocolName,
		MessageID:   "request-1",
		ReferenceID: "offer-1",
		Attachment:  wire,
	})
	assert.ErrorIs(t, err, envelopeDomain.ErrAuthenticationFailed)

	flow, err := f.uc.Flow(ctx, offer.FlowID)
	require.NoError(t, err)
	assert.Equal(t, exchangeDomain.StateOffered, flow.State)
}

func TestExchangeUseCase_Capabilities(t *testing.T) {
	ctx := context.Background()
	f := newExchangeFixture(t, usecase.Config{})
	issuer := f.party(t, "did:example:issuer", cryptoDomain.Ed25519)
	holder := f.party(t, "did:example:holder", cryptoDomain.Ed25519)

	t.Run("ProtocolNotRegistered", func(t *testing.T) {
		_, err := f.uc.OfferCredential(ctx, &usecase.OfferInput{
			Protocol: "oidc-issuance-v2",
			Issuer:   issuer,
			Holder:   holder,
			Claims:   map[string]any{"name": "Alice"},
		})
		var notRegistered *exchangeDomain.ProtocolNotRegisteredError
		require.ErrorAs(t, err, &notRegistered)
		assert.Equal(t, "oidc-issuance-v2", notRegistered.Name)
		assert.Equal(t, []string{"browser-wallet", "oidc-issuance", "p2p-encrypted"}, notRegistered.AvailableProtocols)
	})

	t.Run("OperationNotSupported", func(t *testing.T) {
		_, err := f.uc.RequestProof(ctx, &usecase.ProofRequestInput{
			Protocol: exchangeService.OIDCProtocolName,
			Verifier: issuer,
			Prover:   holder,
			Query:    map[string]any{"required_claims": []any{"name"}},
		})
		var unsupported *exchangeDomain.OperationNotSupportedError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, exchangeDomain.RequestProof, unsupported.Operation)
		assert.Equal(t, []exchangeDomain.Operation{
			exchangeDomain.OfferCredential,
			exchangeDomain.RequestCredential,
			exchangeDomain.IssueCredential,
		}, unsupported.SupportedOperations)
	})

	t.Run("ProtocolsListed", func(t *testing.T) {
		descriptors := f.uc.Protocols(ctx)
		require.Len(t, descriptors, 3)
		assert.Equal(t, "browser-wallet", descriptors[0].Name)
	})

	t.Run("StepOverAnotherProtocol", func(t *testing.T) {
		offer, err := f.uc.OfferCredential(ctx, &usecase.OfferInput{
			Protocol:  exchangeService.OIDCProtocolName,
			MessageID: "oidc-offer",
			Issuer:    issuer,
			Holder:    holder,
			Claims:    map[string]any{"name": "Alice"},
		})
		require.NoError(t, err)

		_, err = f.uc.RequestCredential(ctx, &usecase.StepInput{
			Protocol:    exchangeService.P2PProtocolName,
			MessageID:   "p2p-request",
			ReferenceID: "oidc-offer",
			Attachment:  offer.Wire,
		})
		assert.ErrorIs(t, err, exchangeDomain.ErrMessageMismatch)
	})
}

func TestExchangeUseCase_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newExchangeFixture(t, usecase.Config{})

	tests := []struct {
		name   string
		call   func(*usecase.StepInput) error
		target error
	}{
		{
			name: "RequestCredential",
			call: func(in *usecase.StepInput) error {
				_, err := f.uc.RequestCredential(ctx, in)
				return err
			},
			target: exchangeDomain.ErrOfferNotFound,
		},
		{
			name: "IssueCredential",
			call: func(in *usecase.StepInput) error {
				_, err := f.uc.IssueCredential(ctx, in)
				return err
			},
			target: exchangeDomain.ErrRequestNotFound,
		},
		{
			name: "PresentProof",
			call: func(in *usecase.StepInput) error {
				_, err := f.uc.PresentProof(ctx, in)
				return err
			},
			target: exchangeDomain.ErrProofRequestNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call(&usecase.StepInput{
				Protocol:    exchangeService.P2PProtocolName,
				ReferenceID: "missing",
				Attachment:  []byte("{}"),
			})
			assert.ErrorIs(t, err, tt.target)
			assert.ErrorIs(t, err, apperrors.ErrNotFound)
		})
	}

	t.Run("Flow", func(t *testing.T) {
		_, err := f.uc.Flow(ctx, "missing")
		assert.ErrorIs(t, err, exchangeDomain.ErrFlowNotFound)
	})
}

func TestExchangeUseCase_Validation(t *testing.T) {
	ctx := context.Background()
	f := newExchangeFixture(t, usecase.Config{})
	issuer := exchangeDomain.Party{ID: "did:example:issuer", KeyID: "did:example:issuer#key-1"}
	holder := exchangeDomain.Party{ID: "did:example:holder", KeyID: "did:example:holder#key-1"}

	tests := []struct {
		name  string
		input *usecase.OfferInput
		field string
	}{
		{
			name:  "MissingProtocol",
			input: &usecase.OfferInput{Issuer: issuer, Holder: holder, Claims: map[string]any{"a": 1}},
			field: "protocol",
		},
		{
			name: "MissingClaims",
			input: &usecase.OfferInput{
				Protocol: exchangeService.P2PProtocolName, Issuer: issuer, Holder: holder,
			},
			field: "claims",
		},
		{
			name: "InvalidIssuer",
			input: &usecase.OfferInput{
				Protocol: exchangeService.P2PProtocolName,
				Issuer:   exchangeDomain.Party{ID: "issuer", KeyID: "issuer#key-1"},
				Holder:   holder,
				Claims:   map[string]any{"a": 1},
			},
			field: "issuer_id",
		},
		{
			name: "VersionedKeyID",
			input: &usecase.OfferInput{
				Protocol: exchangeService.P2PProtocolName,
				Issuer:   exchangeDomain.Party{ID: issuer.ID, KeyID: issuer.KeyID + "@1"},
				Holder:   holder,
				Claims:   map[string]any{"a": 1},
			},
			field: "issuer_key_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.uc.OfferCredential(ctx, tt.input)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	t.Run("StepWithoutAttachment", func(t *testing.T) {
		_, err := f.uc.RequestCredential(ctx, &usecase.StepInput{
			Protocol:    exchangeService.P2PProtocolName,
			ReferenceID: "offer-1",
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		assert.Contains(t, err.Error(), "attachment")
	})
}

func TestExchangeUseCase_GeneratedMessageIDs(t *testing.T) {
	ctx := context.Background()
	f := newExchangeFixture(t, usecase.Config{})
	issuer := f.party(t, "did:example:issuer", cryptoDomain.X25519)
	holder := f.party(t, "did:example:holder", cryptoDomain.X25519)

	first, err := f.uc.OfferCredential(ctx, &usecase.OfferInput{
		Protocol: exchangeService.P2PProtocolName,
		Issuer:   issuer,
		Holder:   holder,
		Claims:   map[string]any{"name": "Alice"},
	})
	require.NoError(t, err)
	second, err := f.uc.OfferCredential(ctx, &usecase.OfferInput{
		Protocol: exchangeService.P2PProtocolName,
		Issuer:   issuer,
		Holder:   holder,
		Claims:   map[string]any{"name": "Alice"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, first.MessageID)
	assert.NotEqual(t, first.MessageID, second.MessageID)
	assert.NotEqual(t, first.FlowID, second.FlowID)
}

func TestExchangeUseCase_OIDCIssuance(t *testing.T) {
	ctx := context.Background()
	f := newExchangeFixture(t, usecase.Config{})
	issuer := f.party(t, "did:example:issuer", cryptoDomain.Ed25519)
	holder := f.party(t, "did:example:holder", cryptoDomain.Ed25519)

	offer, err := f.uc.OfferCredential(ctx, &usecase.OfferInput{
		Protocol:  exchangeService.OIDCProtocolName,
		MessageID: "offer-1",
		Issuer:    issuer,
		Holder:    holder,
		Claims:    map[string]any{"degree": "BSc"},
	})
	require.NoError(t, err)

	request, err := f.uc.RequestCredential(ctx, &usecase.StepInput{
		Protocol:    exchangeService.OIDCProtocolName,
		MessageID:   "request-1",
		ReferenceID: "offer-1",
		Attachment:  offer.Wire,
	})
	require.NoError(t, err)

	issued, err := f.uc.IssueCredential(ctx, &usecase.StepInput{
		Protocol:    exchangeService.OIDCProtocolName,
		MessageID:   "issue-1",
		ReferenceID: "request-1",
		Attachment:  request.Wire,
	})
	require.NoError(t, err)
	assert.Equal(t, exchangeDomain.StateIssued, issued.State)

	credential, err := exchangeService.ParseCredentialJWT(string(issued.Wire))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"degree": "BSc"}, credential.CredentialSubject)
	assert.Equal(t, issuer.ID, credential.Issuer)
}

func TestExchangeUseCase_WalletProof(t *testing.T) {
	ctx := context.Background()
	f := newExchangeFixture(t, usecase.Config{})
	verifier := f.party(t, "did:example:verifier", cryptoDomain.X25519)
	prover := f.party(t, "did:example:prover", cryptoDomain.Ed25519)

	requested, err := f.uc.RequestProof(ctx, &usecase.ProofRequestInput{
		Protocol:       exchangeService.WalletProtocolName,
		MessageID:      "qbe-1",
		Verifier:       verifier,
		Prover:         prover,
		Query:          map[string]any{"required_claims": []any{"name"}},
		ThreadID:       "kyc-child",
		ParentThreadID: "kyc",
	})
	require.NoError(t, err)
	assert.Equal(t, exchangeDomain.StateProofRequested, requested.State)
	assert.Equal(t, "kyc-child", requested.ThreadID)

	presented, err := f.uc.PresentProof(ctx, &usecase.StepInput{
		Protocol:    exchangeService.WalletProtocolName,
		MessageID:   "vp-1",
		ReferenceID: "qbe-1",
		Attachment:  requested.Wire,
		Claims:      map[string]any{"name": "Alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, exchangeDomain.StatePresented, presented.State)
	assert.Equal(t, "kyc-child", presented.ThreadID)

	children, err := f.uc.ChildFlows(ctx, "kyc")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, requested.FlowID, children[0].FlowID)

	byThread, err := f.uc.FlowsByThread(ctx, "kyc-child")
	require.NoError(t, err)
	require.Len(t, byThread, 1)
	assert.Equal(t, exchangeDomain.StatePresented, byThread[0].State)

	records, err := f.uc.ParticipantHistory(ctx, prover.ID, 0, 50)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestExchangeUseCase_ExpireStale(t *testing.T) {
	ctx := context.Background()
	f := newExchangeFixture(t, usecase.Config{FlowTTL: time.Hour})
	issuer := f.party(t, "did:example:issuer", cryptoDomain.X25519)
	holder := f.party(t, "did:example:holder", cryptoDomain.X25519)

	offer, err := f.uc.OfferCredential(ctx, &usecase.OfferInput{
		Protocol:  exchangeService.P2PProtocolName,
		MessageID: "offer-1",
		Issuer:    issuer,
		Holder:    holder,
		Claims:    map[string]any{"name": "Alice"},
	})
	require.NoError(t, err)

	flow, err := f.uc.Flow(ctx, offer.FlowID)
	require.NoError(t, err)
	require.NotNil(t, flow.ExpiresAt)

	expired, err := f.uc.ExpireStale(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, expired)

	expired, err = f.uc.ExpireStale(ctx, time.Now().UTC().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{offer.FlowID}, expired)

	flow, err = f.uc.Flow(ctx, offer.FlowID)
	require.NoError(t, err)
	assert.Equal(t, exchangeDomain.StateExpired, flow.State)

	_, err = f.uc.RequestCredential(ctx, &usecase.StepInput{
		Protocol:    exchangeService.P2PProtocolName,
		MessageID:   "request-1",
		ReferenceID: "offer-1",
		Attachment:  offer.Wire,
	})
	assert.ErrorIs(t, err, exchangeDomain.ErrFlowTerminal)
}

func TestExchangeUseCase_DispatchTimeout(t *testing.T) {
	ctx := context.Background()
	f := newExchangeFixture(t, usecase.Config{DispatchTimeout: 20 * time.Millisecond})

	slow := &serviceMocks.MockProtocol{}
	slow.On("Execute", mock.Anything, exchangeDomain.OfferCredential, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded).
		Once()
	require.NoError(t, f.registry.Register(exchangeDomain.ProtocolDescriptor{
		Name:                "slow-protocol",
		SupportedOperations: []exchangeDomain.Operation{exchangeDomain.OfferCredential},
	}, slow))

	_, err := f.uc.OfferCredential(ctx, &usecase.OfferInput{
		Protocol:  "slow-protocol",
		MessageID: "offer-1",
		Issuer:    exchangeDomain.Party{ID: "did:example:issuer", KeyID: "did:example:issuer#key-1"},
		Holder:    exchangeDomain.Party{ID: "did:example:holder", KeyID: "did:example:holder#key-1"},
		Claims:    map[string]any{"name": "Alice"},
	})
	assert.ErrorIs(t, err, apperrors.ErrTimeout)

	var timeout *apperrors.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "offer_credential", timeout.Operation)

	flows, err := f.uc.FlowsByThread(ctx, "offer-1")
	require.NoError(t, err)
	assert.Empty(t, flows)
	slow.AssertExpectations(t)
}

func TestExchangeUseCase_WithoutFlowLog(t *testing.T) {
	uc := usecase.NewExchangeUseCase(
		exchangeService.NewRegistry(),
		exchangeService.NewCorrelator(nil, nil),
		nil,
		usecase.Config{},
		nil,
	)

	records, err := uc.History(context.Background(), "thread", 0, 50)
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = uc.ParticipantHistory(context.Background(), "did:example:holder", 0, 50)
	require.NoError(t, err)
	assert.Empty(t, records)
}
