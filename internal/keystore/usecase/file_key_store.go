package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
	keystoreService "github.com/allisson/credx/internal/keystore/service"
)

// FileKeyStore is a KeyStore persisted as a single encrypted file.
//
// Writes are serialized by the write lock and rewrite the whole file atomically.
// Reads share the read lock and observe either the pre- or post-write key set,
// never a torn one. The decrypted key set is cached after the first read and the
// cache is dropped on every write.
type FileKeyStore struct {
	path      string
	codec     *keystoreService.KeySetCodec
	masterKey []byte
	logger    *slog.Logger

	mu    sync.RWMutex
	cache atomic.Pointer[keystoreDomain.KeySet]
	group singleflight.Group
}

// NewFileKeyStore derives the master key from source and returns a store bound to path.
// The file is not read until the first operation.
func NewFileKeyStore(
	ctx context.Context,
	path string,
	source keystoreService.MasterKeySource,
	codec *keystoreService.KeySetCodec,
	logger *slog.Logger,
) (*FileKeyStore, error) {
	masterKey, err := source.MasterKey(ctx)
	if err != nil {
		return nil, err
	}
	if len(masterKey) != cryptoDomain.KeySize {
		cryptoDomain.Zero(masterKey)
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	return &FileKeyStore{
		path:      path,
		codec:     codec,
		masterKey: masterKey,
		logger:    logger,
	}, nil
}

// Close clears the master key and the cached key set.
func (s *FileKeyStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set := s.cache.Swap(nil); set != nil {
		set.Zero()
	}
	cryptoDomain.Zero(s.masterKey)
	return nil
}

// Check verifies the store file can be read and authenticated.
func (s *FileKeyStore) Check(ctx context.Context) error {
	return s.read(ctx, func(*keystoreDomain.KeySet) error { return nil })
}

func (s *FileKeyStore) Get(ctx context.Context, keyID string) (*keystoreDomain.KeyMaterial, error) {
	var out *keystoreDomain.KeyMaterial
	err := s.read(ctx, func(set *keystoreDomain.KeySet) error {
		key := set.Current(keyID)
		if key == nil {
			return fmt.Errorf("%w: %s", keystoreDomain.ErrKeyNotFound, keyID)
		}
		out = key.Clone()
		return nil
	})
	return out, err
}

func (s *FileKeyStore) GetVersion(ctx context.Context, keyID string, version int) (*keystoreDomain.KeyMaterial, error) {
	var out *keystoreDomain.KeyMaterial
	err := s.read(ctx, func(set *keystoreDomain.KeySet) error {
		key := set.Version(keyID, version)
		if key == nil {
			ref := keystoreDomain.KeyRef{KeyID: keyID, Version: version}
			return fmt.Errorf("%w: %s", keystoreDomain.ErrKeyNotFound, ref)
		}
		out = key.Clone()
		return nil
	})
	return out, err
}

func (s *FileKeyStore) Versions(ctx context.Context, keyID string) ([]*keystoreDomain.KeyMaterial, error) {
	var out []*keystoreDomain.KeyMaterial
	err := s.read(ctx, func(set *keystoreDomain.KeySet) error {
		versions := set.Versions(keyID)
		if len(versions) == 0 {
			return fmt.Errorf("%w: %s", keystoreDomain.ErrKeyNotFound, keyID)
		}
		out = make([]*keystoreDomain.KeyMaterial, len(versions))
		for i, v := range versions {
			out[i] = v.Clone()
		}
		return nil
	})
	return out, err
}

func (s *FileKeyStore) Active(ctx context.Context, keyID string) (*keystoreDomain.KeyMaterial, error) {
	var out *keystoreDomain.KeyMaterial
	err := s.read(ctx, func(set *keystoreDomain.KeySet) error {
		if len(set.Versions(keyID)) == 0 {
			return fmt.Errorf("%w: %s", keystoreDomain.ErrKeyNotFound, keyID)
		}
		key := set.Active(keyID)
		if key == nil {
			return fmt.Errorf("%w: %s", keystoreDomain.ErrNoActiveKey, keyID)
		}
		out = key.Clone()
		return nil
	})
	return out, err
}

func (s *FileKeyStore) List(ctx context.Context) ([]string, error) {
	var out []string
	err := s.read(ctx, func(set *keystoreDomain.KeySet) error {
		out = set.IDs()
		return nil
	})
	return out, err
}

func (s *FileKeyStore) Put(
	ctx context.Context,
	keyID string,
	key *keystoreDomain.KeyMaterial,
) (keystoreDomain.KeyRef, error) {
	var ref keystoreDomain.KeyRef
	err := s.Update(ctx, func(set *keystoreDomain.KeySet) error {
		stored := key.Clone()
		stored.KeyID = keyID
		if stored.State == "" {
			stored.State = keystoreDomain.StateActive
		}
		if err := set.Put(stored); err != nil {
			return err
		}
		ref = stored.Ref()
		return nil
	})
	return ref, err
}

func (s *FileKeyStore) Delete(ctx context.Context, keyID string) (bool, error) {
	var deleted bool
	err := s.Update(ctx, func(set *keystoreDomain.KeySet) error {
		deleted = set.Delete(keyID)
		return nil
	})
	return deleted, err
}

func (s *FileKeyStore) Update(ctx context.Context, fn func(set *keystoreDomain.KeySet) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.snapshot()
	if err != nil {
		return err
	}

	next := current.Clone()
	defer next.Zero()

	if err := fn(next); err != nil {
		return err
	}

	data, err := s.codec.Seal(next, s.masterKey)
	if err != nil {
		return err
	}
	if err := keystoreService.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return err
	}

	if old := s.cache.Swap(nil); old != nil {
		old.Zero()
	}

	if s.logger != nil {
		s.logger.Debug("key store written", slog.Int("versions", next.Len()))
	}
	return nil
}

// read runs fn against the cached key set under the shared lock.
func (s *FileKeyStore) read(ctx context.Context, fn func(set *keystoreDomain.KeySet) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	set, err := s.snapshot()
	if err != nil {
		return err
	}
	return fn(set)
}

// snapshot returns the cached key set, loading it once when concurrent readers miss.
// Callers must hold mu (shared or exclusive).
func (s *FileKeyStore) snapshot() (*keystoreDomain.KeySet, error) {
	if set := s.cache.Load(); set != nil {
		return set, nil
	}

	v, err, _ := s.group.Do("load", func() (any, error) {
		if set := s.cache.Load(); set != nil {
			return set, nil
		}
		set, err := s.load()
		if err != nil {
			return nil, err
		}
		s.cache.Store(set)
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*keystoreDomain.KeySet), nil
}

func (s *FileKeyStore) load() (*keystoreDomain.KeySet, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return keystoreDomain.NewKeySet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key store: %w", err)
	}

	set, err := s.codec.Open(data, s.masterKey)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("key store failed to open", slog.String("path", s.path), slog.Any("error", err))
		}
		return nil, err
	}
	return set, nil
}
