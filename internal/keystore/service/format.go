package service

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	cryptoService "github.com/allisson/credx/internal/crypto/service"
	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
)

// FormatV1 is the only on-disk format version this build reads or writes.
//
// Layout (all integers big-endian):
//
//	uint32 version | uint32 nonceLen | nonce | ciphertext
//
// ciphertext is the AEAD seal of the CBOR-encoded record list, authenticated
// with the 4 version bytes as associated data.
const FormatV1 uint32 = 1

const headerSize = 8

// encMode keeps sub-second timestamps and produces canonical output.
var encMode = mustEncMode(cbor.EncOptions{Time: cbor.TimeRFC3339Nano, Sort: cbor.SortCanonical})

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// keySetPayload is the CBOR document sealed inside the file.
type keySetPayload struct {
	Records []keystoreDomain.EncryptedKeyRecord `cbor:"1,keyasint"`
}

// EncodeFile lays out a v1 file.
func EncodeFile(nonce, ciphertext []byte) []byte {
	out := make([]byte, headerSize+len(nonce)+len(ciphertext))
	binary.BigEndian.PutUint32(out[0:4], FormatV1)
	binary.BigEndian.PutUint32(out[4:8], uint32(len(nonce)))
	copy(out[headerSize:], nonce)
	copy(out[headerSize+len(nonce):], ciphertext)
	return out
}

// DecodeFile splits a file into nonce and ciphertext. Unknown versions are
// rejected before any other field is interpreted.
func DecodeFile(data []byte) (nonce, ciphertext []byte, err error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("%w: truncated header", keystoreDomain.ErrKeyStoreCorrupted)
	}
	if version := binary.BigEndian.Uint32(data[0:4]); version != FormatV1 {
		return nil, nil, fmt.Errorf("%w: %d", keystoreDomain.ErrUnsupportedFormatVersion, version)
	}
	if len(data) < headerSize {
		return nil, nil, fmt.Errorf("%w: truncated header", keystoreDomain.ErrKeyStoreCorrupted)
	}

	nonceLen := binary.BigEndian.Uint32(data[4:8])
	if uint64(nonceLen) > uint64(len(data)-headerSize) {
		return nil, nil, fmt.Errorf("%w: nonce length out of range", keystoreDomain.ErrKeyStoreCorrupted)
	}

	nonce = data[headerSize : headerSize+int(nonceLen)]
	ciphertext = data[headerSize+int(nonceLen):]
	return nonce, ciphertext, nil
}

func versionAAD() []byte {
	aad := make([]byte, 4)
	binary.BigEndian.PutUint32(aad, FormatV1)
	return aad
}

// KeySetCodec seals and opens whole key sets with a master key.
type KeySetCodec struct {
	aeadManager cryptoService.AEADManager
	alg         cryptoDomain.Algorithm
}

// NewKeySetCodec creates a codec using alg for both the records and the file envelope.
func NewKeySetCodec(aeadManager cryptoService.AEADManager, alg cryptoDomain.Algorithm) *KeySetCodec {
	if alg == "" {
		alg = cryptoDomain.AESGCM
	}
	return &KeySetCodec{aeadManager: aeadManager, alg: alg}
}

// Seal encrypts every key version into an EncryptedKeyRecord and then seals the
// record list into a v1 file.
func (c *KeySetCodec) Seal(set *keystoreDomain.KeySet, masterKey []byte) ([]byte, error) {
	cipher, err := c.aeadManager.CreateCipher(masterKey, c.alg)
	if err != nil {
		return nil, err
	}

	all := set.All()
	payload := keySetPayload{Records: make([]keystoreDomain.EncryptedKeyRecord, 0, len(all))}
	for _, key := range all {
		record, err := c.sealRecord(cipher, key)
		if err != nil {
			return nil, err
		}
		payload.Records = append(payload.Records, record)
	}

	plaintext, err := encMode.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode key set: %w", err)
	}

	ciphertext, nonce, err := cipher.Encrypt(plaintext, versionAAD())
	if err != nil {
		return nil, err
	}
	return EncodeFile(nonce, ciphertext), nil
}

func (c *KeySetCodec) sealRecord(
	cipher cryptoService.AEAD,
	key *keystoreDomain.KeyMaterial,
) (keystoreDomain.EncryptedKeyRecord, error) {
	plaintext, err := encMode.Marshal(key)
	if err != nil {
		return keystoreDomain.EncryptedKeyRecord{}, fmt.Errorf("failed to encode key %s: %w", key.Ref(), err)
	}
	defer cryptoDomain.Zero(plaintext)

	ciphertext, nonce, err := cipher.Encrypt(plaintext, []byte(key.Ref().String()))
	if err != nil {
		return keystoreDomain.EncryptedKeyRecord{}, err
	}

	return keystoreDomain.EncryptedKeyRecord{
		KeyID:        key.KeyID,
		Version:      key.Version,
		Ciphertext:   ciphertext,
		Nonce:        nonce,
		AlgorithmTag: c.alg,
	}, nil
}

// Open authenticates and decodes a file produced by Seal. Any failure yields
// ErrKeyStoreCorrupted or ErrUnsupportedFormatVersion and no key material.
func (c *KeySetCodec) Open(data, masterKey []byte) (*keystoreDomain.KeySet, error) {
	nonce, ciphertext, err := DecodeFile(data)
	if err != nil {
		return nil, err
	}

	cipher, err := c.aeadManager.CreateCipher(masterKey, c.alg)
	if err != nil {
		return nil, err
	}

	plaintext, err := cipher.Decrypt(ciphertext, nonce, versionAAD())
	if err != nil {
		return nil, keystoreDomain.ErrKeyStoreCorrupted
	}

	var payload keySetPayload
	if err := cbor.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("%w: undecodable key set", keystoreDomain.ErrKeyStoreCorrupted)
	}

	set := keystoreDomain.NewKeySet()
	for i := range payload.Records {
		key, err := c.OpenRecord(&payload.Records[i], masterKey)
		if err != nil {
			set.Zero()
			return nil, err
		}
		if err := set.Put(key); err != nil {
			set.Zero()
			return nil, fmt.Errorf("%w: %v", keystoreDomain.ErrKeyStoreCorrupted, err)
		}
	}
	return set, nil
}

// OpenRecord decrypts a single record and checks it decodes to the version it claims.
func (c *KeySetCodec) OpenRecord(
	record *keystoreDomain.EncryptedKeyRecord,
	masterKey []byte,
) (*keystoreDomain.KeyMaterial, error) {
	cipher, err := c.aeadManager.CreateCipher(masterKey, record.AlgorithmTag)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keystoreDomain.ErrKeyStoreCorrupted, err)
	}

	plaintext, err := cipher.Decrypt(record.Ciphertext, record.Nonce, []byte(record.Ref().String()))
	if err != nil {
		return nil, fmt.Errorf("%w: record %s", keystoreDomain.ErrKeyStoreCorrupted, record.Ref())
	}
	defer cryptoDomain.Zero(plaintext)

	var key keystoreDomain.KeyMaterial
	if err := cbor.Unmarshal(plaintext, &key); err != nil {
		return nil, fmt.Errorf("%w: record %s", keystoreDomain.ErrKeyStoreCorrupted, record.Ref())
	}
	if key.Ref() != record.Ref() {
		return nil, fmt.Errorf("%w: record %s", keystoreDomain.ErrKeyStoreCorrupted, record.Ref())
	}
	return &key, nil
}
