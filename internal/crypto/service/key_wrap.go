package service

import (
	"crypto/aes"

	josecipher "github.com/go-jose/go-jose/v3/cipher"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
)

// wrapKey applies RFC 3394 AES key wrap. Wrapping is deterministic, the output is
// 8 bytes longer than the input and carries the integrity check value.
func wrapKey(contentKey, wrappingKey []byte) ([]byte, error) {
	if len(wrappingKey) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}
	if len(contentKey) == 0 || len(contentKey)%8 != 0 {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	block, err := aes.NewCipher(wrappingKey)
	if err != nil {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	return josecipher.KeyWrap(block, contentKey)
}

func unwrapKey(wrappedKey, wrappingKey []byte) ([]byte, error) {
	if len(wrappingKey) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}
	if len(wrappedKey) < 24 || len(wrappedKey)%8 != 0 {
		return nil, cryptoDomain.ErrUnwrapFailed
	}

	block, err := aes.NewCipher(wrappingKey)
	if err != nil {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	key, err := josecipher.KeyUnwrap(block, wrappedKey)
	if err != nil {
		return nil, cryptoDomain.ErrUnwrapFailed
	}
	return key, nil
}
