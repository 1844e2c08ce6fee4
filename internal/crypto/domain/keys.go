package domain

// PublicKey is the public half of an asymmetric key, encoded the way the
// curve's standard library encodes it (32 bytes for X25519 and Ed25519,
// 65-byte uncompressed point for P-256).
type PublicKey struct {
	Type  KeyType
	Bytes []byte
}

// PrivateKey is the private half of an asymmetric key or a raw symmetric key.
type PrivateKey struct {
	Type  KeyType
	Bytes []byte
}

// KeyPair groups a private key with its public half.
type KeyPair struct {
	Private PrivateKey
	Public  PublicKey
}

// SharedSecret is the combined output of an authenticated key agreement:
// Ze || Zs || sender static public key.
type SharedSecret []byte

// ContentKeys holds the two independent keys derived from one SharedSecret.
type ContentKeys struct {
	ContentEncryptionKey []byte
	KeyWrappingKey       []byte
}

// Zero clears both keys.
func (k *ContentKeys) Zero() {
	Zero(k.ContentEncryptionKey)
	Zero(k.KeyWrappingKey)
}
