package service

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
)

// KeyGeneratorService implements KeyGenerator with crypto/rand.
type KeyGeneratorService struct{}

// NewKeyGenerator creates a new KeyGeneratorService.
func NewKeyGenerator() *KeyGeneratorService {
	return &KeyGeneratorService{}
}

// Generate creates a new key pair of the given type.
//
// Ed25519 private keys are stored in their 64-byte expanded form (seed || public).
func (g *KeyGeneratorService) Generate(keyType cryptoDomain.KeyType) (cryptoDomain.KeyPair, error) {
	switch keyType {
	case cryptoDomain.X25519:
		priv := make([]byte, curve25519.ScalarSize)
		if _, err := rand.Read(priv); err != nil {
			return cryptoDomain.KeyPair{}, fmt.Errorf("failed to generate x25519 key: %w", err)
		}
		pub, err := curve25519.X25519(priv, curve25519.Basepoint)
		if err != nil {
			return cryptoDomain.KeyPair{}, fmt.Errorf("failed to compute x25519 public key: %w", err)
		}
		return pair(keyType, priv, pub), nil

	case cryptoDomain.P256:
		sk, err := ecdh.P256().GenerateKey(rand.Reader)
		if err != nil {
			return cryptoDomain.KeyPair{}, fmt.Errorf("failed to generate p256 key: %w", err)
		}
		return pair(keyType, sk.Bytes(), sk.PublicKey().Bytes()), nil

	case cryptoDomain.Ed25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return cryptoDomain.KeyPair{}, fmt.Errorf("failed to generate ed25519 key: %w", err)
		}
		return pair(keyType, priv, pub), nil

	case cryptoDomain.Symmetric:
		key := make([]byte, cryptoDomain.KeySize)
		if _, err := rand.Read(key); err != nil {
			return cryptoDomain.KeyPair{}, fmt.Errorf("failed to generate symmetric key: %w", err)
		}
		return cryptoDomain.KeyPair{Private: cryptoDomain.PrivateKey{Type: keyType, Bytes: key}}, nil

	default:
		return cryptoDomain.KeyPair{}, cryptoDomain.ErrUnsupportedKeyType
	}
}

// PublicKey recomputes the public half of private.
func (g *KeyGeneratorService) PublicKey(private cryptoDomain.PrivateKey) (cryptoDomain.PublicKey, error) {
	switch private.Type {
	case cryptoDomain.X25519:
		pub, err := curve25519.X25519(private.Bytes, curve25519.Basepoint)
		if err != nil {
			return cryptoDomain.PublicKey{}, cryptoDomain.ErrInvalidKeySize
		}
		return cryptoDomain.PublicKey{Type: private.Type, Bytes: pub}, nil

	case cryptoDomain.P256:
		sk, err := ecdh.P256().NewPrivateKey(private.Bytes)
		if err != nil {
			return cryptoDomain.PublicKey{}, cryptoDomain.ErrInvalidKeySize
		}
		return cryptoDomain.PublicKey{Type: private.Type, Bytes: sk.PublicKey().Bytes()}, nil

	case cryptoDomain.Ed25519:
		if len(private.Bytes) != ed25519.PrivateKeySize {
			return cryptoDomain.PublicKey{}, cryptoDomain.ErrInvalidKeySize
		}
		pub := ed25519.PrivateKey(private.Bytes).Public().(ed25519.PublicKey)
		return cryptoDomain.PublicKey{Type: private.Type, Bytes: []byte(pub)}, nil

	default:
		return cryptoDomain.PublicKey{}, cryptoDomain.ErrUnsupportedKeyType
	}
}

func pair(keyType cryptoDomain.KeyType, priv, pub []byte) cryptoDomain.KeyPair {
	return cryptoDomain.KeyPair{
		Private: cryptoDomain.PrivateKey{Type: keyType, Bytes: priv},
		Public:  cryptoDomain.PublicKey{Type: keyType, Bytes: pub},
	}
}
