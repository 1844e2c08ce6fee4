package service

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	apperrors "github.com/allisson/credx/internal/errors"
	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
)

// randomToken returns n random bytes encoded as unpadded base64url.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", apperrors.Wrap(err, "failed to generate random token")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func newSecret() []byte {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return secret
}

// deriveNonce binds a challenge to a flow without storing it: the party that
// issued it can recompute it when the answer arrives.
func deriveNonce(secret []byte, label string, flow *exchangeDomain.ExchangeFlow) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(label))
	mac.Write([]byte{0})
	mac.Write([]byte(flow.FlowID))
	mac.Write([]byte{0})
	mac.Write([]byte(flow.ThreadID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func nonceEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

func requireFlow(req *exchangeDomain.Request) (*exchangeDomain.ExchangeFlow, error) {
	if req == nil || req.Flow == nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "request carries no flow")
	}
	return req.Flow, nil
}

func mismatch(format string, args ...any) error {
	return apperrors.Wrapf(exchangeDomain.ErrMessageMismatch, format, args...)
}
