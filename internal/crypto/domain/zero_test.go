package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZero(t *testing.T) {
	t.Run("zero non-empty slice", func(t *testing.T) {
		b := []byte{1, 2, 3, 4, 5}
		Zero(b)
		assert.Equal(t, []byte{0, 0, 0, 0, 0}, b)
	})

	t.Run("zero nil slice", func(t *testing.T) {
		var b []byte
		assert.NotPanics(t, func() { Zero(b) })
	})
}

func TestZeroAll(t *testing.T) {
	a := []byte{1, 2}
	b := []byte{3}
	ZeroAll(a, nil, b)
	assert.Equal(t, []byte{0, 0}, a)
	assert.Equal(t, []byte{0}, b)
}

func TestContentKeysZero(t *testing.T) {
	keys := ContentKeys{ContentEncryptionKey: []byte{1, 2}, KeyWrappingKey: []byte{3, 4}}
	keys.Zero()
	assert.Equal(t, []byte{0, 0}, keys.ContentEncryptionKey)
	assert.Equal(t, []byte{0, 0}, keys.KeyWrappingKey)
}

func TestKeyType(t *testing.T) {
	assert.True(t, X25519.CanAgree())
	assert.True(t, P256.CanAgree())
	assert.False(t, Ed25519.CanAgree())
	assert.False(t, Symmetric.CanAgree())
	assert.True(t, Symmetric.Valid())
	assert.False(t, KeyType("rsa").Valid())
	assert.True(t, AESGCM.Valid())
	assert.False(t, Algorithm("des").Valid())
}

func TestKeyAgreementError(t *testing.T) {
	err := &KeyAgreementError{Reason: "public key not on curve"}
	assert.Equal(t, "key agreement failed: public key not on curve", err.Error())
	assert.ErrorIs(t, err, ErrKeyAgreement)
}
