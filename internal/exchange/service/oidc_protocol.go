package service

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"maps"
	"net/url"
	"time"

	"github.com/allisson/go-pwdhash"
	"github.com/bluele/gcache"
	"github.com/golang-jwt/jwt/v5"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	apperrors "github.com/allisson/credx/internal/errors"
	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
)

// OIDCProtocolName is the registry name of the OAuth based issuance protocol.
const OIDCProtocolName = "oidc-issuance"

const (
	preAuthorizedCodeGrant = "urn:ietf:params:oauth:grant-type:pre-authorized_code"
	credentialOfferScheme  = "openid-credential-offer://"
	proofJWTType           = "openid4vci-proof+jwt"
	credentialFormat       = "jwt_vc_json"

	credentialOfferType   = "openid-credential-offer"
	credentialRequestType = "openid-credential-request"
	credentialJWTType     = "jwt-vc"
)

type preAuthorizedGrant struct {
	Code string `json:"pre-authorized_code"`
}

type credentialOffer struct {
	CredentialIssuer           string                        `json:"credential_issuer"`
	CredentialConfigurationIDs []string                      `json:"credential_configuration_ids"`
	Grants                     map[string]preAuthorizedGrant `json:"grants"`
}

type credentialRequest struct {
	Format      string          `json:"format"`
	AccessToken string          `json:"access_token"`
	Proof       credentialProof `json:"proof"`
}

type credentialProof struct {
	ProofType string `json:"proof_type"`
	JWT       string `json:"jwt"`
}

type accessTokenClaims struct {
	jwt.RegisteredClaims
	OfferID string `json:"offer_id"`
	CNonce  string `json:"c_nonce"`
}

type proofClaims struct {
	jwt.RegisteredClaims
	Nonce string `json:"nonce"`
}

type credentialClaims struct {
	jwt.RegisteredClaims
	VC Credential `json:"vc"`
}

// OIDCConfig configures OIDCProtocol.
type OIDCConfig struct {
	IssuerURL      string
	AccessTokenTTL time.Duration
	GrantTTL       time.Duration
	MaxGrants      int
}

// OIDCProtocol issues credentials the OpenID4VCI way: the offer carries a
// pre-authorized code, the request trades it for an HS256 access token plus an
// EdDSA proof of possession by the holder, and issuance returns a JWT-VC.
// Both parties' key ids must name Ed25519 signing keys.
type OIDCProtocol struct {
	cfg         OIDCConfig
	signer      Signer
	resolver    Resolver
	keys        KeyLookup
	hasher      *pwdhash.PasswordHasher
	grants      gcache.Cache
	tokenSecret []byte
	nonceSecret []byte
	now         func() time.Time
}

// NewOIDCProtocol creates an OIDCProtocol.
func NewOIDCProtocol(cfg OIDCConfig, signer Signer, resolver Resolver, keys KeyLookup) (*OIDCProtocol, error) {
	if cfg.IssuerURL == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "issuer url is required")
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 5 * time.Minute
	}
	if cfg.GrantTTL <= 0 {
		cfg.GrantTTL = 24 * time.Hour
	}
	if cfg.MaxGrants <= 0 {
		cfg.MaxGrants = 10000
	}

	hasher, err := pwdhash.New(pwdhash.WithPolicy(pwdhash.PolicyInteractive))
	if err != nil {
		return nil, err
	}

	return &OIDCProtocol{
		cfg:         cfg,
		signer:      signer,
		resolver:    resolver,
		keys:        keys,
		hasher:      hasher,
		grants:      gcache.New(cfg.MaxGrants).LRU().Expiration(cfg.GrantTTL).Build(),
		tokenSecret: newSecret(),
		nonceSecret: newSecret(),
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Descriptor declares the issuance operations only.
func (o *OIDCProtocol) Descriptor() exchangeDomain.ProtocolDescriptor {
	return exchangeDomain.ProtocolDescriptor{
		Name: OIDCProtocolName,
		SupportedOperations: []exchangeDomain.Operation{
			exchangeDomain.OfferCredential,
			exchangeDomain.RequestCredential,
			exchangeDomain.IssueCredential,
		},
	}
}

func (o *OIDCProtocol) Execute(
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
		return o.offer(flow)
	case exchangeDomain.RequestCredential:
		return o.request(ctx, req, flow)
	case exchangeDomain.IssueCredential:
		return o.issue(ctx, req, flow)
	}
	return nil, &exchangeDomain.OperationNotSupportedError{
		Name:                OIDCProtocolName,
		Operation:           op,
		SupportedOperations: o.Descriptor().SupportedOperations,
	}
}

func (o *OIDCProtocol) offer(flow *exchangeDomain.ExchangeFlow) (*exchangeDomain.Response, error) {
	code, err := randomToken(32)
	if err != nil {
		return nil, err
	}
	hash, err := o.hasher.Hash([]byte(code))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to hash pre-authorized code")
	}
	if err := o.grants.Set(flow.OfferID, hash); err != nil {
		return nil, apperrors.Wrap(err, "failed to store grant")
	}

	offer, err := json.Marshal(credentialOffer{
		CredentialIssuer:           o.cfg.IssuerURL,
		CredentialConfigurationIDs: []string{"VerifiableCredential"},
		Grants:                     map[string]preAuthorizedGrant{preAuthorizedCodeGrant: {Code: code}},
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode credential offer")
	}

	uri := credentialOfferScheme + "?" + url.Values{"credential_offer": {string(offer)}}.Encode()
	return &exchangeDomain.Response{
		MessageType: credentialOfferType,
		ContentType: "text/uri-list",
		Wire:        []byte(uri),
		Claims:      maps.Clone(flow.Claims),
	}, nil
}

// request plays the holder: it redeems the pre-authorized code for an access
// token and proves possession of its key.
func (o *OIDCProtocol) request(
	ctx context.Context,
	req *exchangeDomain.Request,
	flow *exchangeDomain.ExchangeFlow,
) (*exchangeDomain.Response, error) {
	code, err := parseCredentialOffer(req.Attachment, o.cfg.IssuerURL)
	if err != nil {
		return nil, err
	}

	accessToken, err := o.redeem(flow, req.MessageID, code)
	if err != nil {
		return nil, err
	}

	proof, err := o.signJWT(ctx, flow.HolderOrProver.KeyID, proofJWTType, &proofClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   flow.HolderOrProver.ID,
			Audience: jwt.ClaimStrings{o.cfg.IssuerURL},
			IssuedAt: jwt.NewNumericDate(o.now()),
		},
		Nonce: deriveNonce(o.nonceSecret, "c_nonce", flow),
	})
	if err != nil {
		return nil, err
	}

	wire, err := json.Marshal(credentialRequest{
		Format:      credentialFormat,
		AccessToken: accessToken,
		Proof:       credentialProof{ProofType: "jwt", JWT: proof},
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode credential request")
	}

	// The code is consumed only once the request is fully built, so a failed
	// step can be retried with the same offer.
	if !o.grants.Remove(flow.OfferID) {
		return nil, apperrors.Wrap(exchangeDomain.ErrInvalidGrant, "pre-authorized code expired or already used")
	}
	return &exchangeDomain.Response{
		MessageType: credentialRequestType,
		ContentType: "application/json",
		Wire:        wire,
		Claims:      maps.Clone(flow.Claims),
	}, nil
}

// redeem is the token endpoint: it checks the pre-authorized code and mints an
// access token. The caller removes the grant once the token has been used.
func (o *OIDCProtocol) redeem(flow *exchangeDomain.ExchangeFlow, requestID, code string) (string, error) {
	stored, err := o.grants.Get(flow.OfferID)
	if err != nil {
		return "", apperrors.Wrap(exchangeDomain.ErrInvalidGrant, "pre-authorized code expired or already used")
	}
	ok, err := o.hasher.Verify([]byte(code), stored.(string))
	if err != nil || !ok {
		return "", apperrors.Wrap(exchangeDomain.ErrInvalidGrant, "pre-authorized code mismatch")
	}

	now := o.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &accessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    o.cfg.IssuerURL,
			Subject:   flow.HolderOrProver.ID,
			Audience:  jwt.ClaimStrings{o.cfg.IssuerURL},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(o.cfg.AccessTokenTTL)),
			ID:        requestID,
		},
		OfferID: flow.OfferID,
		CNonce:  deriveNonce(o.nonceSecret, "c_nonce", flow),
	})
	signed, err := token.SignedString(o.tokenSecret)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to sign access token")
	}
	return signed, nil
}

// issue plays the issuer: it checks the access token and the holder's proof,
// then signs the credential.
func (o *OIDCProtocol) issue(
	ctx context.Context,
	req *exchangeDomain.Request,
	flow *exchangeDomain.ExchangeFlow,
) (*exchangeDomain.Response, error) {
	var request credentialRequest
	if err := json.Unmarshal(req.Attachment, &request); err != nil {
		return nil, mismatch("attachment is not a credential request")
	}
	if request.Format != credentialFormat || request.Proof.ProofType != "jwt" {
		return nil, mismatch("unsupported credential request format %q", request.Format)
	}

	if err := o.verifyAccessToken(request.AccessToken, flow); err != nil {
		return nil, err
	}
	if err := o.verifyProof(ctx, request.Proof.JWT, flow); err != nil {
		return nil, err
	}

	claims := req.Claims
	if len(claims) == 0 {
		claims = flow.Claims
	}
	subject := maps.Clone(claims)
	if subject == nil {
		subject = make(map[string]any)
	}

	now := o.now()
	vc, err := o.signJWT(ctx, flow.IssuerOrVerifier.KeyID, "JWT", &credentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    flow.IssuerOrVerifier.ID,
			Subject:   flow.HolderOrProver.ID,
			ID:        "urn:uuid:" + req.MessageID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		VC: Credential{
			Context:           credentialContext,
			Type:              []string{"VerifiableCredential"},
			Issuer:            flow.IssuerOrVerifier.ID,
			IssuanceDate:      now,
			CredentialSubject: subject,
		},
	})
	if err != nil {
		return nil, err
	}

	return &exchangeDomain.Response{
		MessageType: credentialJWTType,
		ContentType: "application/jwt",
		Wire:        []byte(vc),
		Claims:      maps.Clone(claims),
	}, nil
}

func (o *OIDCProtocol) verifyAccessToken(raw string, flow *exchangeDomain.ExchangeFlow) error {
	var claims accessTokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return o.tokenSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(o.cfg.IssuerURL),
		jwt.WithAudience(o.cfg.IssuerURL),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(o.now),
	)
	if err != nil {
		return apperrors.Wrapf(exchangeDomain.ErrInvalidGrant, "access token: %v", err)
	}
	if claims.OfferID != flow.OfferID || claims.Subject != flow.HolderOrProver.ID || claims.ID != flow.RequestID {
		return apperrors.Wrap(exchangeDomain.ErrInvalidGrant, "access token was issued for another flow")
	}
	return nil
}

func (o *OIDCProtocol) verifyProof(ctx context.Context, raw string, flow *exchangeDomain.ExchangeFlow) error {
	holder := flow.HolderOrProver

	var claims proofClaims
	token, err := jwt.ParseWithClaims(raw, &claims,
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			key, err := o.resolver.ResolveStaticPublicKey(ctx, holder.ID, kid)
			if err != nil {
				return nil, err
			}
			if key.PublicKey.Type != cryptoDomain.Ed25519 {
				return nil, cryptoDomain.ErrUnsupportedKeyType
			}
			return ed25519.PublicKey(key.PublicKey.Bytes), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithAudience(o.cfg.IssuerURL),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(o.now),
	)
	if err != nil {
		return apperrors.Wrapf(exchangeDomain.ErrInvalidGrant, "proof: %v", err)
	}
	if typ, _ := token.Header["typ"].(string); typ != proofJWTType {
		return apperrors.Wrapf(exchangeDomain.ErrInvalidGrant, "proof: unexpected typ %q", typ)
	}
	if claims.Issuer != holder.ID || !nonceEqual(claims.Nonce, deriveNonce(o.nonceSecret, "c_nonce", flow)) {
		return apperrors.Wrap(exchangeDomain.ErrInvalidGrant, "proof does not match the holder or nonce")
	}
	return nil
}

// signJWT signs claims as an EdDSA JWT with the signing collaborator, naming the
// exact key version in the kid header.
func (o *OIDCProtocol) signJWT(ctx context.Context, keyID, typ string, claims jwt.Claims) (string, error) {
	key, err := o.keys.Active(ctx, keyID)
	if err != nil {
		return "", err
	}
	kid := key.Ref().String()
	key.Zero()

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = kid
	token.Header["typ"] = typ

	signingString, err := token.SigningString()
	if err != nil {
		return "", apperrors.Wrap(err, "failed to encode token")
	}
	signature, err := o.signer.Sign(ctx, kid, []byte(signingString))
	if err != nil {
		return "", err
	}
	return signingString + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}

func parseCredentialOffer(wire []byte, issuerURL string) (string, error) {
	u, err := url.Parse(string(wire))
	if err != nil || u.Scheme+"://" != credentialOfferScheme {
		return "", mismatch("attachment is not a credential offer uri")
	}

	var offer credentialOffer
	if err := json.Unmarshal([]byte(u.Query().Get("credential_offer")), &offer); err != nil {
		return "", mismatch("invalid credential offer")
	}
	if offer.CredentialIssuer != issuerURL {
		return "", mismatch("credential offer from unknown issuer %s", offer.CredentialIssuer)
	}
	grant, ok := offer.Grants[preAuthorizedCodeGrant]
	if !ok || grant.Code == "" {
		return "", mismatch("credential offer has no pre-authorized code")
	}
	return grant.Code, nil
}

// ParseCredentialJWT decodes the claims of an issued JWT-VC without verifying it.
func ParseCredentialJWT(raw string) (*Credential, error) {
	var claims credentialClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return nil, mismatch("invalid credential jwt: %v", err)
	}
	return &claims.VC, nil
}
