package service

import (
	"context"
	"crypto/ecdh"
	"crypto/elliptic"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/multiformats/go-multibase"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	identityDomain "github.com/allisson/credx/internal/identity/domain"
	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
)

const didKeyPrefix = "did:key:"

// Multicodec public key codes used in did:key identifiers.
const (
	x25519PubMultiCodec  = 0xec
	ed25519PubMultiCodec = 0xed
	p256PubMultiCodec    = 0x1200
)

const p256CoordinateSize = 32

var errUnsupportedDIDKey = errors.New("unsupported did:key")

// DIDKeyResolver resolves did:key identifiers by decoding the key from the identifier itself.
type DIDKeyResolver struct{}

// NewDIDKeyResolver creates a DIDKeyResolver.
func NewDIDKeyResolver() *DIDKeyResolver {
	return &DIDKeyResolver{}
}

func (r *DIDKeyResolver) ResolveStaticPublicKey(
	_ context.Context,
	party, keyID string,
) (*identityDomain.ResolvedKey, error) {
	if !strings.HasPrefix(party, didKeyPrefix) {
		return nil, &identityDomain.KeyNotResolvableError{Party: party, KeyID: keyID}
	}
	ref, err := keystoreDomain.ParseKeyRef(keyID)
	if err != nil || !strings.HasPrefix(ref.KeyID, party+"#") {
		return nil, &identityDomain.KeyNotResolvableError{Party: party, KeyID: keyID}
	}

	pub, err := DecodeDIDKey(party)
	if err != nil {
		return nil, &identityDomain.KeyNotResolvableError{Party: party, KeyID: keyID}
	}
	return &identityDomain.ResolvedKey{KeyID: ref.KeyID, PublicKey: pub}, nil
}

// EncodeDIDKey returns the did:key identifier of pub and its conventional key id.
func EncodeDIDKey(pub cryptoDomain.PublicKey) (did, keyID string, err error) {
	var code uint64
	value := pub.Bytes

	switch pub.Type {
	case cryptoDomain.X25519:
		code = x25519PubMultiCodec
	case cryptoDomain.Ed25519:
		code = ed25519PubMultiCodec
	case cryptoDomain.P256:
		code = p256PubMultiCodec
		key, err := ecdh.P256().NewPublicKey(pub.Bytes)
		if err != nil {
			return "", "", fmt.Errorf("%w: invalid p256 point", errUnsupportedDIDKey)
		}
		value = compressP256(key.Bytes())
	default:
		return "", "", fmt.Errorf("%w: key type %s", errUnsupportedDIDKey, pub.Type)
	}

	buf := binary.AppendUvarint(nil, code)
	buf = append(buf, value...)

	fingerprint, err := multibase.Encode(multibase.Base58BTC, buf)
	if err != nil {
		return "", "", err
	}
	did = didKeyPrefix + fingerprint
	return did, did + "#" + fingerprint, nil
}

// DecodeDIDKey extracts the public key from a did:key identifier.
func DecodeDIDKey(did string) (cryptoDomain.PublicKey, error) {
	fingerprint := strings.TrimPrefix(did, didKeyPrefix)
	if fingerprint == did {
		return cryptoDomain.PublicKey{}, errUnsupportedDIDKey
	}

	encoding, data, err := multibase.Decode(fingerprint)
	if err != nil || encoding != multibase.Base58BTC {
		return cryptoDomain.PublicKey{}, fmt.Errorf("%w: not base58btc", errUnsupportedDIDKey)
	}

	code, n := binary.Uvarint(data)
	if n <= 0 {
		return cryptoDomain.PublicKey{}, fmt.Errorf("%w: bad multicodec", errUnsupportedDIDKey)
	}
	value := data[n:]

	switch code {
	case x25519PubMultiCodec:
		if len(value) != 32 {
			return cryptoDomain.PublicKey{}, fmt.Errorf("%w: bad x25519 key", errUnsupportedDIDKey)
		}
		return cryptoDomain.PublicKey{Type: cryptoDomain.X25519, Bytes: value}, nil
	case ed25519PubMultiCodec:
		if len(value) != 32 {
			return cryptoDomain.PublicKey{}, fmt.Errorf("%w: bad ed25519 key", errUnsupportedDIDKey)
		}
		return cryptoDomain.PublicKey{Type: cryptoDomain.Ed25519, Bytes: value}, nil
	case p256PubMultiCodec:
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), value)
		if x == nil {
			return cryptoDomain.PublicKey{}, fmt.Errorf("%w: bad p256 key", errUnsupportedDIDKey)
		}
		// ecdh takes the uncompressed SEC 1 encoding.
		point := make([]byte, 1+2*p256CoordinateSize)
		point[0] = 0x04
		x.FillBytes(point[1 : 1+p256CoordinateSize])
		y.FillBytes(point[1+p256CoordinateSize:])
		return cryptoDomain.PublicKey{Type: cryptoDomain.P256, Bytes: point}, nil
	default:
		return cryptoDomain.PublicKey{}, fmt.Errorf("%w: multicodec 0x%x", errUnsupportedDIDKey, code)
	}
}

// compressP256 turns an uncompressed SEC 1 point into its 33-byte compressed form.
func compressP256(uncompressed []byte) []byte {
	out := make([]byte, 1+p256CoordinateSize)
	out[0] = 0x02 | uncompressed[len(uncompressed)-1]&1
	copy(out[1:], uncompressed[1:1+p256CoordinateSize])
	return out
}
