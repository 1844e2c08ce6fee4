package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	cryptoService "github.com/allisson/credx/internal/crypto/service"
	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
)

// RotationManagerUseCase implements RotationManager on top of a KeyStore.
//
// Old versions are never deleted and never re-encrypted: after a rotation they stay
// resolvable by keyId@version so envelopes produced under them can still be opened.
//
// Recorded uses are buffered in memory and written into KeyMaterial.UseCount by
// every store update the manager makes, and by FlushUsage.
type RotationManagerUseCase struct {
	store     KeyStore
	generator cryptoService.KeyGenerator
	policy    keystoreDomain.RotationPolicy
	logger    *slog.Logger
	now       func() time.Time

	mu   sync.Mutex
	uses map[keystoreDomain.KeyRef]int64
}

// NewRotationManager creates a RotationManagerUseCase. A nil policy never rotates.
func NewRotationManager(
	store KeyStore,
	generator cryptoService.KeyGenerator,
	policy keystoreDomain.RotationPolicy,
	logger *slog.Logger,
) *RotationManagerUseCase {
	if policy == nil {
		policy = keystoreDomain.NeverPolicy{}
	}
	return &RotationManagerUseCase{
		store:     store,
		generator: generator,
		policy:    policy,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		uses:      make(map[keystoreDomain.KeyRef]int64),
	}
}

func (m *RotationManagerUseCase) Create(
	ctx context.Context,
	keyID string,
	keyType cryptoDomain.KeyType,
) (keystoreDomain.KeyRef, error) {
	var ref keystoreDomain.KeyRef
	err := m.update(ctx, func(set *keystoreDomain.KeySet) error {
		if set.Active(keyID) != nil {
			return fmt.Errorf("%w: key %s already has an active version", keystoreDomain.ErrInvalidStateTransition, keyID)
		}
		key, err := m.generate(keyID, keyType, set.NextVersion(keyID))
		if err != nil {
			return err
		}
		if err := set.Put(key); err != nil {
			return err
		}
		ref = key.Ref()
		return nil
	})
	if err != nil {
		return keystoreDomain.KeyRef{}, err
	}

	m.log("key created", ref)
	return ref, nil
}

func (m *RotationManagerUseCase) ShouldRotate(ctx context.Context, keyID string) (bool, error) {
	key, err := m.store.Active(ctx, keyID)
	if err != nil {
		return false, err
	}
	defer key.Zero()

	return m.policy.ShouldRotate(m.metadata(key), m.now()), nil
}

func (m *RotationManagerUseCase) BeginRotation(
	ctx context.Context,
	keyID string,
) (oldRef, newRef keystoreDomain.KeyRef, err error) {
	err = m.update(ctx, func(set *keystoreDomain.KeySet) error {
		var err error
		oldRef, newRef, err = m.begin(set, keyID)
		return err
	})
	if err != nil {
		return keystoreDomain.KeyRef{}, keystoreDomain.KeyRef{}, err
	}

	m.log("key rotation started", newRef, slog.String("previous", oldRef.String()))
	return oldRef, newRef, nil
}

func (m *RotationManagerUseCase) CompleteRotation(ctx context.Context, keyID string) ([]keystoreDomain.KeyRef, error) {
	var archived []keystoreDomain.KeyRef
	err := m.update(ctx, func(set *keystoreDomain.KeySet) error {
		var err error
		archived, err = m.complete(set, keyID)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, ref := range archived {
		m.log("key archived", ref)
	}
	return archived, nil
}

func (m *RotationManagerUseCase) Rotate(
	ctx context.Context,
	keyID string,
) (oldRef, newRef keystoreDomain.KeyRef, err error) {
	err = m.update(ctx, func(set *keystoreDomain.KeySet) error {
		var err error
		if oldRef, newRef, err = m.begin(set, keyID); err != nil {
			return err
		}
		_, err = m.complete(set, keyID)
		return err
	})
	if err != nil {
		return keystoreDomain.KeyRef{}, keystoreDomain.KeyRef{}, err
	}

	m.log("key rotated", newRef, slog.String("archived", oldRef.String()))
	return oldRef, newRef, nil
}

func (m *RotationManagerUseCase) RecordUse(ref keystoreDomain.KeyRef) {
	m.mu.Lock()
	m.uses[ref]++
	m.mu.Unlock()
}

// FlushUsage writes the buffered use counts into the key store.
func (m *RotationManagerUseCase) FlushUsage(ctx context.Context) error {
	m.mu.Lock()
	empty := len(m.uses) == 0
	m.mu.Unlock()
	if empty {
		return nil
	}
	return m.update(ctx, func(*keystoreDomain.KeySet) error { return nil })
}

// UseCount returns the persisted and buffered uses of ref.
func (m *RotationManagerUseCase) UseCount(ctx context.Context, ref keystoreDomain.KeyRef) (int64, error) {
	key, err := m.store.GetVersion(ctx, ref.KeyID, ref.Version)
	if err != nil {
		return 0, err
	}
	defer key.Zero()
	return m.metadata(key).UseCount, nil
}

// update runs fn in a store update that also folds in the buffered uses. The
// buffer is only drained once the update has been written.
func (m *RotationManagerUseCase) update(ctx context.Context, fn func(set *keystoreDomain.KeySet) error) error {
	m.mu.Lock()
	pending := maps.Clone(m.uses)
	m.mu.Unlock()

	err := m.store.Update(ctx, func(set *keystoreDomain.KeySet) error {
		for ref, n := range pending {
			if k := set.Version(ref.KeyID, ref.Version); k != nil {
				k.UseCount += n
			}
		}
		return fn(set)
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	for ref, n := range pending {
		if m.uses[ref] -= n; m.uses[ref] <= 0 {
			delete(m.uses, ref)
		}
	}
	m.mu.Unlock()
	return nil
}

func (m *RotationManagerUseCase) begin(
	set *keystoreDomain.KeySet,
	keyID string,
) (oldRef, newRef keystoreDomain.KeyRef, err error) {
	if len(set.Versions(keyID)) == 0 {
		return oldRef, newRef, fmt.Errorf("%w: %s", keystoreDomain.ErrKeyNotFound, keyID)
	}
	current := set.Active(keyID)
	if current == nil {
		return oldRef, newRef, fmt.Errorf("%w: %s", keystoreDomain.ErrNoActiveKey, keyID)
	}

	successor, err := m.generate(keyID, current.Type, set.NextVersion(keyID))
	if err != nil {
		return oldRef, newRef, err
	}

	now := m.now()
	if err := set.Transition(current.Ref(), keystoreDomain.StateRotating, now); err != nil {
		return oldRef, newRef, err
	}
	if err := set.Put(successor); err != nil {
		return oldRef, newRef, err
	}
	return current.Ref(), successor.Ref(), nil
}

func (m *RotationManagerUseCase) complete(set *keystoreDomain.KeySet, keyID string) ([]keystoreDomain.KeyRef, error) {
	if len(set.Versions(keyID)) == 0 {
		return nil, fmt.Errorf("%w: %s", keystoreDomain.ErrKeyNotFound, keyID)
	}

	var archived []keystoreDomain.KeyRef
	now := m.now()
	for _, v := range set.Versions(keyID) {
		if v.State != keystoreDomain.StateRotating {
			continue
		}
		if err := set.Transition(v.Ref(), keystoreDomain.StateArchived, now); err != nil {
			return nil, err
		}
		archived = append(archived, v.Ref())
	}
	return archived, nil
}

func (m *RotationManagerUseCase) generate(
	keyID string,
	keyType cryptoDomain.KeyType,
	version int,
) (*keystoreDomain.KeyMaterial, error) {
	pair, err := m.generator.Generate(keyType)
	if err != nil {
		return nil, err
	}
	return &keystoreDomain.KeyMaterial{
		KeyID:     keyID,
		Version:   version,
		Type:      keyType,
		State:     keystoreDomain.StateActive,
		Private:   pair.Private.Bytes,
		Public:    pair.Public.Bytes,
		CreatedAt: m.now(),
	}, nil
}

func (m *RotationManagerUseCase) metadata(key *keystoreDomain.KeyMaterial) keystoreDomain.KeyMetadata {
	m.mu.Lock()
	pending := m.uses[key.Ref()]
	m.mu.Unlock()

	return keystoreDomain.KeyMetadata{
		Ref:       key.Ref(),
		State:     key.State,
		CreatedAt: key.CreatedAt,
		UseCount:  key.UseCount + pending,
	}
}

func (m *RotationManagerUseCase) log(msg string, ref keystoreDomain.KeyRef, attrs ...any) {
	if m.logger == nil {
		return
	}
	m.logger.Info(msg, append([]any{slog.String("key", ref.String())}, attrs...)...)
}
