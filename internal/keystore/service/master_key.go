package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/crypto/argon2"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
)

const saltSize = 16

// Argon2Params tunes the Argon2id derivation of the passphrase master key.
type Argon2Params struct {
	Time     uint32
	MemoryKB uint32
	Threads  uint8
}

// DefaultArgon2Params follows the RFC 9106 second recommended option.
var DefaultArgon2Params = Argon2Params{Time: 3, MemoryKB: 64 * 1024, Threads: 4}

// PassphraseSource derives the master key from a passphrase with Argon2id.
// The random salt is persisted at SaltPath on first use and reused afterwards.
type PassphraseSource struct {
	passphrase []byte
	saltPath   string
	params     Argon2Params
}

// NewPassphraseSource creates a PassphraseSource. The passphrase is copied.
func NewPassphraseSource(passphrase, saltPath string, params Argon2Params) *PassphraseSource {
	if params.Time == 0 {
		params = DefaultArgon2Params
	}
	return &PassphraseSource{
		passphrase: []byte(passphrase),
		saltPath:   saltPath,
		params:     params,
	}
}

// MasterKey loads or creates the salt and runs Argon2id.
func (p *PassphraseSource) MasterKey(ctx context.Context) ([]byte, error) {
	if len(p.passphrase) == 0 {
		return nil, fmt.Errorf("%w: empty passphrase", keystoreDomain.ErrMasterKeyUnavailable)
	}

	salt, err := loadOrCreate(p.saltPath, func() ([]byte, error) {
		salt := make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", err)
		}
		return salt, nil
	})
	if err != nil {
		return nil, err
	}
	if len(salt) != saltSize {
		return nil, fmt.Errorf("%w: invalid salt file", keystoreDomain.ErrKeyStoreCorrupted)
	}

	return argon2.IDKey(p.passphrase, salt, p.params.Time, p.params.MemoryKB, p.params.Threads, cryptoDomain.KeySize), nil
}

// KMSSource keeps a random master key wrapped by a KMS keeper at WrappedPath.
type KMSSource struct {
	keeper      KMSKeeper
	wrappedPath string
}

// NewKMSSource creates a KMSSource.
func NewKMSSource(keeper KMSKeeper, wrappedPath string) *KMSSource {
	return &KMSSource{keeper: keeper, wrappedPath: wrappedPath}
}

// MasterKey unwraps the stored master key, generating and wrapping one on first use.
func (k *KMSSource) MasterKey(ctx context.Context) ([]byte, error) {
	var fresh []byte
	wrapped, err := loadOrCreate(k.wrappedPath, func() ([]byte, error) {
		fresh = make([]byte, cryptoDomain.KeySize)
		if _, err := rand.Read(fresh); err != nil {
			return nil, fmt.Errorf("failed to generate master key: %w", err)
		}
		wrapped, err := k.keeper.Encrypt(ctx, fresh)
		if err != nil {
			return nil, fmt.Errorf("failed to wrap master key: %w", err)
		}
		return wrapped, nil
	})
	if err != nil {
		cryptoDomain.Zero(fresh)
		return nil, err
	}
	if fresh != nil {
		return fresh, nil
	}

	masterKey, err := k.keeper.Decrypt(ctx, wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap master key: %w", err)
	}
	if len(masterKey) != cryptoDomain.KeySize {
		cryptoDomain.Zero(masterKey)
		return nil, cryptoDomain.ErrInvalidKeySize
	}
	return masterKey, nil
}

// loadOrCreate reads path, or writes the output of create to it when absent.
func loadOrCreate(path string, create func() ([]byte, error)) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	data, err = create()
	if err != nil {
		return nil, err
	}
	if err := WriteFileAtomic(path, data, 0o600); err != nil {
		return nil, err
	}
	return data, nil
}
