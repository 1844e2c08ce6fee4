package domain

// Algorithm represents the AEAD algorithm used for content encryption.
//
// Both algorithms use a 256-bit key, a 96-bit random nonce and a 128-bit
// authentication tag, so envelopes produced with either carry the same shape.
type Algorithm string

const (
	// AESGCM represents AES-256-GCM. Default for envelopes and the key store.
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 represents ChaCha20-Poly1305, preferred on hosts without AES-NI.
	ChaCha20 Algorithm = "chacha20-poly1305"
)

// KeyType identifies the kind of key material held by the key store.
type KeyType string

const (
	// X25519 keys are used for authenticated key agreement.
	X25519 KeyType = "x25519"

	// P256 keys are used for authenticated key agreement on NIST P-256.
	P256 KeyType = "p256"

	// Ed25519 keys are used for signatures (signed plaintext envelopes, proof tokens).
	Ed25519 KeyType = "ed25519"

	// Symmetric keys are raw 256-bit secrets.
	Symmetric KeyType = "symmetric"
)

// Sizes shared by every primitive of the engine.
const (
	KeySize   = 32
	NonceSize = 12
	TagSize   = 16
)

// CanAgree reports whether keys of this type can take part in key agreement.
func (t KeyType) CanAgree() bool {
	return t == X25519 || t == P256
}

// Valid reports whether t is a known key type.
func (t KeyType) Valid() bool {
	switch t {
	case X25519, P256, Ed25519, Symmetric:
		return true
	}
	return false
}

// Valid reports whether a is a supported AEAD algorithm.
func (a Algorithm) Valid() bool {
	return a == AESGCM || a == ChaCha20
}
