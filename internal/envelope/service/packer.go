package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	cryptoService "github.com/allisson/credx/internal/crypto/service"
	envelopeDomain "github.com/allisson/credx/internal/envelope/domain"
	apperrors "github.com/allisson/credx/internal/errors"
	identityDomain "github.com/allisson/credx/internal/identity/domain"
	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
)

// defaultProtocolInfo labels key derivation when no protocol name is given.
const defaultProtocolInfo = "authcrypt"

// PackerService implements Packer.
//
// One random content key encrypts the body once. For every recipient the sender
// runs the authenticated key agreement against that recipient's static key,
// derives a key-wrapping key and wraps the content key with it.
type PackerService struct {
	engine    cryptoService.Engine
	generator cryptoService.KeyGenerator
	resolver  Resolver
	keys      KeyProvider
	signer    Signer
	usage     UsageRecorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewPacker creates a PackerService. signer may be nil when plaintext envelopes are not used.
func NewPacker(
	engine cryptoService.Engine,
	generator cryptoService.KeyGenerator,
	resolver Resolver,
	keys KeyProvider,
	signer Signer,
	logger *slog.Logger,
) *PackerService {
	return &PackerService{
		engine:    engine,
		generator: generator,
		resolver:  resolver,
		keys:      keys,
		signer:    signer,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithUsageRecorder reports each sender key use to r.
func (p *PackerService) WithUsageRecorder(r UsageRecorder) *PackerService {
	p.usage = r
	return p
}

func (p *PackerService) Pack(
	ctx context.Context,
	msg *envelopeDomain.Message,
	sender envelopeDomain.Party,
	recipients []envelopeDomain.Party,
	opts envelopeDomain.Options,
) (*envelopeDomain.Envelope, error) {
	if err := apperrors.CheckContext(ctx, "pack"); err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, &envelopeDomain.MalformedError{Field: "message"}
	}
	if len(recipients) == 0 {
		return nil, &envelopeDomain.MalformedError{Field: "to", Reason: "at least one recipient is required"}
	}

	env := &envelopeDomain.Envelope{
		ID:             msg.ID,
		Type:           msg.Type,
		From:           sender.ID,
		CreatedAt:      p.now(),
		ExpiresAt:      msg.ExpiresAt,
		ThreadID:       msg.ThreadID,
		ParentThreadID: msg.ParentThreadID,
		Protocol:       opts.Protocol,
	}
	if env.ID == "" {
		env.ID = uuid.Must(uuid.NewV7()).String()
	}
	for _, r := range recipients {
		env.To = append(env.To, r.ID)
	}

	if opts.Plaintext {
		return p.packSigned(ctx, env, msg.Body, sender, opts)
	}
	return p.packEncrypted(ctx, env, msg.Body, sender, recipients, opts)
}

func (p *PackerService) packEncrypted(
	ctx context.Context,
	env *envelopeDomain.Envelope,
	body []byte,
	sender envelopeDomain.Party,
	recipients []envelopeDomain.Party,
	opts envelopeDomain.Options,
) (*envelopeDomain.Envelope, error) {
	senderKey, err := p.keys.Active(ctx, sender.KeyID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, &cryptoDomain.KeyAgreementError{Reason: "sender key " + sender.KeyID + " unavailable"}
		}
		return nil, apperrors.FromContext(err, "pack")
	}
	defer senderKey.Zero()

	if !senderKey.Type.CanAgree() {
		return nil, &cryptoDomain.KeyAgreementError{Reason: "sender key type " + string(senderKey.Type) + " cannot agree"}
	}

	ephemeral, err := p.generator.Generate(senderKey.Type)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(ephemeral.Private.Bytes)

	alg := opts.ContentAlgorithm
	if alg == "" {
		alg = cryptoDomain.AESGCM
	}

	env.SenderKeyID = senderKey.KeyID
	env.KeyVersion = senderKey.Version
	env.SenderPublicKey = senderKey.Public
	env.EphemeralPublicKey = ephemeral.Public.Bytes
	env.KeyType = senderKey.Type
	env.Algorithm = alg

	resolved, err := p.resolveRecipients(ctx, recipients)
	if err != nil {
		return nil, err
	}

	kids := make([]string, len(resolved))
	for i, rk := range resolved {
		kids[i] = rk.KeyID
	}
	salt := cryptoService.ContentKeySalt(kids, env.EphemeralPublicKey)

	cek, err := p.generator.Generate(cryptoDomain.Symmetric)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(cek.Private.Bytes)

	ciphertext, nonce, tag, err := p.engine.EncryptContent(body, cek.Private.Bytes, associatedData(env), alg)
	if err != nil {
		return nil, err
	}
	env.Ciphertext, env.Nonce, env.Tag = ciphertext, nonce, tag

	wraps := make([]envelopeDomain.RecipientKeyWrap, len(resolved))
	g, gctx := errgroup.WithContext(ctx)
	for i, rk := range resolved {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			wrapped, err := p.wrapFor(senderKey, &ephemeral, rk, salt, protocolInfo(env), cek.Private.Bytes)
			if err != nil {
				return err
			}
			wraps[i] = envelopeDomain.RecipientKeyWrap{
				Recipient:  recipients[i].ID,
				KeyID:      rk.KeyID,
				Version:    rk.Version,
				WrappedKey: wrapped,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.FromContext(err, "pack")
	}
	env.RecipientKeyWrap = wraps

	if p.usage != nil {
		p.usage.RecordUse(senderKey.Ref())
	}
	if p.logger != nil {
		p.logger.Debug("envelope packed",
			slog.String("envelope_id", env.ID),
			slog.String("sender_key", senderKey.Ref().String()),
			slog.Int("recipients", len(wraps)),
		)
	}
	return env, nil
}

func (p *PackerService) wrapFor(
	senderKey *keystoreDomain.KeyMaterial,
	ephemeral *cryptoDomain.KeyPair,
	rk *identityDomain.ResolvedKey,
	salt []byte,
	info string,
	cek []byte,
) ([]byte, error) {
	secret, err := p.engine.DeriveSharedSecret(cryptoService.AgreementParams{
		Local:           senderKey.PrivateKey(),
		Ephemeral:       &ephemeral.Private,
		SenderPublic:    senderKey.PublicKey(),
		RecipientPublic: rk.PublicKey,
		EphemeralPublic: ephemeral.Public,
	})
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(secret)

	keys, err := p.engine.DeriveContentKeys(secret, salt, info)
	if err != nil {
		return nil, err
	}
	defer keys.Zero()

	return p.engine.WrapKey(cek, keys.KeyWrappingKey)
}

func (p *PackerService) resolveRecipients(
	ctx context.Context,
	recipients []envelopeDomain.Party,
) ([]*identityDomain.ResolvedKey, error) {
	resolved := make([]*identityDomain.ResolvedKey, len(recipients))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range recipients {
		g.Go(func() error {
			rk, err := p.resolver.ResolveStaticPublicKey(gctx, r.ID, r.KeyID)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil && apperrors.Is(err, ctxErr) {
					return err
				}
				return &envelopeDomain.RecipientKeyNotFoundError{Recipient: r.ID, KeyID: r.KeyID}
			}
			if rk.KeyID == "" {
				rk.KeyID = r.KeyID
			}
			resolved[i] = rk
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.FromContext(err, "pack")
	}
	return resolved, nil
}

func (p *PackerService) packSigned(
	ctx context.Context,
	env *envelopeDomain.Envelope,
	body []byte,
	sender envelopeDomain.Party,
	opts envelopeDomain.Options,
) (*envelopeDomain.Envelope, error) {
	if p.signer == nil {
		return nil, fmt.Errorf("%w: no signer configured", apperrors.ErrUnavailable)
	}

	keyID := opts.SigningKeyID
	if keyID == "" {
		keyID = sender.KeyID
	}
	signingKey, err := p.keys.Active(ctx, keyID)
	if err != nil {
		return nil, apperrors.FromContext(err, "pack")
	}
	signingKey.Zero()

	env.SignerKeyID = signingKey.Ref().String()
	env.Payload = body

	signature, err := p.signer.Sign(ctx, env.SignerKeyID, signingInput(env))
	if err != nil {
		return nil, apperrors.FromContext(err, "pack")
	}
	env.Signature = signature

	if p.usage != nil {
		p.usage.RecordUse(signingKey.Ref())
	}
	return env, nil
}

func (p *PackerService) Unpack(
	ctx context.Context,
	env *envelopeDomain.Envelope,
	recipient envelopeDomain.Party,
) (*envelopeDomain.Message, error) {
	if err := apperrors.CheckContext(ctx, "unpack"); err != nil {
		return nil, err
	}
	if env == nil {
		return nil, &envelopeDomain.MalformedError{Field: "envelope"}
	}
	if env.ExpiresAt != nil && !p.now().Before(*env.ExpiresAt) {
		return nil, fmt.Errorf("%w: %s", envelopeDomain.ErrEnvelopeExpired, env.ID)
	}
	if !env.Addressed(recipient.ID) {
		return nil, &envelopeDomain.RecipientKeyNotFoundError{Recipient: recipient.ID, KeyID: recipient.KeyID}
	}

	if !env.Encrypted() {
		return p.unpackSigned(ctx, env)
	}
	return p.unpackEncrypted(ctx, env, recipient)
}

func (p *PackerService) unpackEncrypted(
	ctx context.Context,
	env *envelopeDomain.Envelope,
	recipient envelopeDomain.Party,
) (*envelopeDomain.Message, error) {
	if err := requireEncryptedFields(env); err != nil {
		return nil, err
	}

	ref, err := keystoreDomain.ParseKeyRef(recipient.KeyID)
	if err != nil {
		return nil, &envelopeDomain.RecipientKeyNotFoundError{Recipient: recipient.ID, KeyID: recipient.KeyID}
	}
	wrap := env.WrapFor(ref.KeyID)
	if wrap == nil {
		return nil, &envelopeDomain.RecipientKeyNotFoundError{Recipient: recipient.ID, KeyID: recipient.KeyID}
	}
	if ref.Version != 0 && ref.Version != wrap.Version {
		return nil, &envelopeDomain.RecipientKeyNotFoundError{Recipient: recipient.ID, KeyID: recipient.KeyID}
	}

	local, err := p.localKey(ctx, ref.KeyID, wrap.Version)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, &envelopeDomain.RecipientKeyNotFoundError{Recipient: recipient.ID, KeyID: recipient.KeyID}
		}
		return nil, apperrors.FromContext(err, "unpack")
	}
	defer local.Zero()

	if err := p.checkSenderKey(ctx, env); err != nil {
		return nil, err
	}

	secret, err := p.engine.DeriveSharedSecret(cryptoService.AgreementParams{
		Local:           local.PrivateKey(),
		SenderPublic:    cryptoDomain.PublicKey{Type: env.KeyType, Bytes: env.SenderPublicKey},
		RecipientPublic: local.PublicKey(),
		EphemeralPublic: cryptoDomain.PublicKey{Type: env.KeyType, Bytes: env.EphemeralPublicKey},
	})
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(secret)

	kids := make([]string, len(env.RecipientKeyWrap))
	for i, w := range env.RecipientKeyWrap {
		kids[i] = w.KeyID
	}
	keys, err := p.engine.DeriveContentKeys(secret, cryptoService.ContentKeySalt(kids, env.EphemeralPublicKey), protocolInfo(env))
	if err != nil {
		return nil, err
	}
	defer keys.Zero()

	cek, err := p.engine.UnwrapKey(wrap.WrappedKey, keys.KeyWrappingKey)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(cek)

	body, err := p.engine.DecryptContent(env.Ciphertext, env.Nonce, env.Tag, cek, associatedData(env), env.Algorithm)
	if err != nil {
		return nil, err
	}

	if p.logger != nil {
		p.logger.Debug("envelope unpacked",
			slog.String("envelope_id", env.ID),
			slog.String("recipient_key", keystoreDomain.KeyRef{KeyID: ref.KeyID, Version: wrap.Version}.String()),
		)
	}
	return messageFrom(env, body), nil
}

func (p *PackerService) unpackSigned(ctx context.Context, env *envelopeDomain.Envelope) (*envelopeDomain.Message, error) {
	if len(env.Signature) == 0 || env.SignerKeyID == "" {
		return nil, &envelopeDomain.MalformedError{Field: "signature"}
	}
	if p.signer == nil {
		return nil, fmt.Errorf("%w: no signer configured", apperrors.ErrUnavailable)
	}

	signerKey, err := p.resolver.ResolveStaticPublicKey(ctx, env.From, env.SignerKeyID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperrors.FromContext(ctxErr, "unpack")
		}
		return nil, &envelopeDomain.SenderKeyUnresolvableError{Sender: env.From, KeyID: env.SignerKeyID}
	}

	ok, err := p.signer.Verify(signerKey.PublicKey, signingInput(env), env.Signature)
	if err != nil || !ok {
		return nil, envelopeDomain.ErrAuthenticationFailed
	}
	return messageFrom(env, env.Payload), nil
}

// checkSenderKey resolves the sender's static key and requires it to match the key embedded in env.
func (p *PackerService) checkSenderKey(ctx context.Context, env *envelopeDomain.Envelope) error {
	keyID := env.SenderKeyID
	if env.KeyVersion > 0 {
		keyID = keystoreDomain.KeyRef{KeyID: env.SenderKeyID, Version: env.KeyVersion}.String()
	}

	resolved, err := p.resolver.ResolveStaticPublicKey(ctx, env.From, keyID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return apperrors.FromContext(ctxErr, "unpack")
		}
		return &envelopeDomain.SenderKeyUnresolvableError{Sender: env.From, KeyID: keyID}
	}
	if resolved.PublicKey.Type != env.KeyType ||
		subtle.ConstantTimeCompare(resolved.PublicKey.Bytes, env.SenderPublicKey) != 1 {
		return envelopeDomain.ErrAuthenticationFailed
	}
	return nil
}

func (p *PackerService) localKey(ctx context.Context, keyID string, version int) (*keystoreDomain.KeyMaterial, error) {
	if version > 0 {
		return p.keys.GetVersion(ctx, keyID, version)
	}
	return p.keys.Get(ctx, keyID)
}

func requireEncryptedFields(env *envelopeDomain.Envelope) error {
	switch {
	case len(env.RecipientKeyWrap) == 0:
		return &envelopeDomain.MalformedError{Field: "recipients"}
	case len(env.Nonce) == 0:
		return &envelopeDomain.MalformedError{Field: "iv"}
	case len(env.Tag) == 0:
		return &envelopeDomain.MalformedError{Field: "tag"}
	case len(env.EphemeralPublicKey) == 0:
		return &envelopeDomain.MalformedError{Field: "epk"}
	case env.SenderKeyID == "" || len(env.SenderPublicKey) == 0:
		return &envelopeDomain.MalformedError{Field: "skid"}
	}
	return nil
}

func protocolInfo(env *envelopeDomain.Envelope) string {
	if env.Protocol == "" {
		return defaultProtocolInfo
	}
	return env.Protocol
}

func messageFrom(env *envelopeDomain.Envelope, body []byte) *envelopeDomain.Message {
	return &envelopeDomain.Message{
		ID:             env.ID,
		Type:           env.Type,
		From:           env.From,
		To:             append([]string(nil), env.To...),
		ThreadID:       env.ThreadID,
		ParentThreadID: env.ParentThreadID,
		CreatedAt:      env.CreatedAt,
		ExpiresAt:      env.ExpiresAt,
		Body:           body,
	}
}
