// Package service implements the stateless crypto engine used by envelopes and the key store:
// authenticated key agreement (X25519, P-256), HKDF key derivation, AEAD content encryption
// (AES-256-GCM, ChaCha20-Poly1305) and RFC 3394 key wrapping.
package service

import (
	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD under a fresh random nonce.
	// The returned ciphertext carries the authentication tag appended.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt verifies and decrypts ciphertext. No plaintext is returned when the tag fails.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager defines the interface for creating AEAD cipher instances.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// AgreementParams carries the inputs of one authenticated key agreement.
//
// The sender sets Ephemeral to the per-message ephemeral private key and Local to its
// static private key. The recipient leaves Ephemeral nil and sets Local to its static
// private key. Both sides then obtain the same SharedSecret.
type AgreementParams struct {
	Local           cryptoDomain.PrivateKey
	Ephemeral       *cryptoDomain.PrivateKey
	SenderPublic    cryptoDomain.PublicKey
	RecipientPublic cryptoDomain.PublicKey
	EphemeralPublic cryptoDomain.PublicKey
}

// Engine is the pure crypto core. It holds no state and never suspends.
type Engine interface {
	// DeriveSharedSecret performs the two agreements of the authenticated variant and
	// returns Ze || Zs || sender static public key.
	DeriveSharedSecret(params AgreementParams) (cryptoDomain.SharedSecret, error)

	// DeriveContentKeys expands a shared secret into independent content-encryption
	// and key-wrapping keys using HKDF-SHA256 with two distinct info labels.
	DeriveContentKeys(secret cryptoDomain.SharedSecret, salt []byte, protocolInfo string) (cryptoDomain.ContentKeys, error)

	// EncryptContent encrypts plaintext under contentKey with a fresh random nonce.
	EncryptContent(
		plaintext, contentKey, aad []byte,
		alg cryptoDomain.Algorithm,
	) (ciphertext, nonce, tag []byte, err error)

	// DecryptContent verifies tag before returning any plaintext.
	DecryptContent(ciphertext, nonce, tag, contentKey, aad []byte, alg cryptoDomain.Algorithm) ([]byte, error)

	// WrapKey wraps contentKey under wrappingKey (RFC 3394, deterministic).
	WrapKey(contentKey, wrappingKey []byte) ([]byte, error)

	// UnwrapKey reverses WrapKey and fails with ErrUnwrapFailed on any integrity error.
	UnwrapKey(wrappedKey, wrappingKey []byte) ([]byte, error)
}

// KeyGenerator creates fresh key material for every supported key type.
type KeyGenerator interface {
	// Generate returns a new key pair. For Symmetric keys Public is empty.
	Generate(keyType cryptoDomain.KeyType) (cryptoDomain.KeyPair, error)

	// PublicKey recomputes the public half of a private key.
	PublicKey(private cryptoDomain.PrivateKey) (cryptoDomain.PublicKey, error)
}
