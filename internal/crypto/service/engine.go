package service

import (
	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
)

// EngineService implements Engine on top of an AEADManager.
type EngineService struct {
	aeadManager AEADManager
}

// NewEngine creates a new EngineService.
func NewEngine(aeadManager AEADManager) *EngineService {
	return &EngineService{aeadManager: aeadManager}
}

// DeriveSharedSecret performs the authenticated key agreement.
func (e *EngineService) DeriveSharedSecret(params AgreementParams) (cryptoDomain.SharedSecret, error) {
	return deriveSharedSecret(params)
}

// DeriveContentKeys derives the content-encryption and key-wrapping keys.
func (e *EngineService) DeriveContentKeys(
	secret cryptoDomain.SharedSecret,
	salt []byte,
	protocolInfo string,
) (cryptoDomain.ContentKeys, error) {
	return deriveContentKeys(secret, salt, protocolInfo)
}

// EncryptContent seals plaintext and splits the 16-byte tag from the ciphertext.
func (e *EngineService) EncryptContent(
	plaintext, contentKey, aad []byte,
	alg cryptoDomain.Algorithm,
) (ciphertext, nonce, tag []byte, err error) {
	cipher, err := e.aeadManager.CreateCipher(contentKey, alg)
	if err != nil {
		return nil, nil, nil, err
	}

	sealed, nonce, err := cipher.Encrypt(plaintext, aad)
	if err != nil {
		return nil, nil, nil, err
	}

	split := len(sealed) - cryptoDomain.TagSize
	return sealed[:split:split], nonce, sealed[split:], nil
}

// DecryptContent rejoins ciphertext and tag and opens them. On a bad tag nothing
// but ErrAuthenticationFailed is returned.
func (e *EngineService) DecryptContent(
	ciphertext, nonce, tag, contentKey, aad []byte,
	alg cryptoDomain.Algorithm,
) ([]byte, error) {
	if len(tag) != cryptoDomain.TagSize || len(nonce) != cryptoDomain.NonceSize {
		return nil, cryptoDomain.ErrAuthenticationFailed
	}

	cipher, err := e.aeadManager.CreateCipher(contentKey, alg)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	return cipher.Decrypt(sealed, nonce, aad)
}

// WrapKey wraps contentKey under wrappingKey.
func (e *EngineService) WrapKey(contentKey, wrappingKey []byte) ([]byte, error) {
	return wrapKey(contentKey, wrappingKey)
}

// UnwrapKey unwraps a key produced by WrapKey.
func (e *EngineService) UnwrapKey(wrappedKey, wrappingKey []byte) ([]byte, error) {
	return unwrapKey(wrappedKey, wrappingKey)
}
