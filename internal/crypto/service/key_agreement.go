package service

import (
	"bytes"
	"crypto/ecdh"

	"golang.org/x/crypto/curve25519"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
)

// agree runs a single Diffie-Hellman between priv and pub on the curve named by priv.Type.
// Malformed, off-curve and low-order public keys are rejected.
func agree(priv cryptoDomain.PrivateKey, pub cryptoDomain.PublicKey) ([]byte, error) {
	if len(priv.Bytes) == 0 {
		return nil, &cryptoDomain.KeyAgreementError{Reason: "local private key unavailable"}
	}
	if priv.Type != pub.Type {
		return nil, &cryptoDomain.KeyAgreementError{
			Reason: "curve mismatch: " + string(priv.Type) + " vs " + string(pub.Type),
		}
	}

	switch priv.Type {
	case cryptoDomain.X25519:
		if len(priv.Bytes) != curve25519.ScalarSize {
			return nil, &cryptoDomain.KeyAgreementError{Reason: "invalid x25519 private key"}
		}
		if len(pub.Bytes) != curve25519.PointSize {
			return nil, &cryptoDomain.KeyAgreementError{Reason: "x25519 public key not on curve"}
		}
		z, err := curve25519.X25519(priv.Bytes, pub.Bytes)
		if err != nil {
			return nil, &cryptoDomain.KeyAgreementError{Reason: "x25519 public key has low order"}
		}
		return z, nil

	case cryptoDomain.P256:
		curve := ecdh.P256()
		sk, err := curve.NewPrivateKey(priv.Bytes)
		if err != nil {
			return nil, &cryptoDomain.KeyAgreementError{Reason: "invalid p256 private key"}
		}
		pk, err := curve.NewPublicKey(pub.Bytes)
		if err != nil {
			return nil, &cryptoDomain.KeyAgreementError{Reason: "p256 public key not on curve"}
		}
		z, err := sk.ECDH(pk)
		if err != nil {
			return nil, &cryptoDomain.KeyAgreementError{Reason: "p256 agreement failed"}
		}
		return z, nil

	default:
		return nil, &cryptoDomain.KeyAgreementError{Reason: "key type " + string(priv.Type) + " cannot agree"}
	}
}

// deriveSharedSecret implements the 1PU-style combination Ze || Zs || senderPublic.
//
// Sender:    Ze = DH(ephemeral, recipientPublic), Zs = DH(senderStatic, recipientPublic)
// Recipient: Ze = DH(recipientStatic, ephemeralPublic), Zs = DH(recipientStatic, senderPublic)
func deriveSharedSecret(p AgreementParams) (cryptoDomain.SharedSecret, error) {
	keyType := p.Local.Type
	for _, pub := range []cryptoDomain.PublicKey{p.SenderPublic, p.RecipientPublic, p.EphemeralPublic} {
		if pub.Type != keyType {
			return nil, &cryptoDomain.KeyAgreementError{Reason: "public keys use different curves"}
		}
	}

	var ze, zs []byte
	var err error

	if p.Ephemeral != nil {
		if p.Ephemeral.Type != keyType {
			return nil, &cryptoDomain.KeyAgreementError{Reason: "ephemeral key uses a different curve"}
		}
		if ze, err = agree(*p.Ephemeral, p.RecipientPublic); err != nil {
			return nil, err
		}
		if zs, err = agree(p.Local, p.RecipientPublic); err != nil {
			cryptoDomain.Zero(ze)
			return nil, err
		}
	} else {
		if ze, err = agree(p.Local, p.EphemeralPublic); err != nil {
			return nil, err
		}
		if zs, err = agree(p.Local, p.SenderPublic); err != nil {
			cryptoDomain.Zero(ze)
			return nil, err
		}
	}
	defer cryptoDomain.ZeroAll(ze, zs)

	var buf bytes.Buffer
	buf.Grow(len(ze) + len(zs) + len(p.SenderPublic.Bytes))
	buf.Write(ze)
	buf.Write(zs)
	buf.Write(p.SenderPublic.Bytes)

	return cryptoDomain.SharedSecret(buf.Bytes()), nil
}
