// Package domain defines the key store's data model: versioned key material, its
// persisted encrypted form and the one-directional ACTIVE -> ROTATING -> ARCHIVED lifecycle.
package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
)

// KeyRef addresses one version of a key. Its string form is "keyId@version".
type KeyRef struct {
	KeyID   string
	Version int
}

// String returns the "keyId@version" form used in envelopes and logs.
func (r KeyRef) String() string {
	return r.KeyID + "@" + strconv.Itoa(r.Version)
}

// ParseKeyRef parses the form produced by KeyRef.String. A missing "@version"
// suffix yields Version 0, meaning "the current version".
func ParseKeyRef(s string) (KeyRef, error) {
	i := strings.LastIndex(s, "@")
	if i < 0 {
		if s == "" {
			return KeyRef{}, ErrInvalidKeyRef
		}
		return KeyRef{KeyID: s}, nil
	}

	version, err := strconv.Atoi(s[i+1:])
	if err != nil || version < 1 || i == 0 {
		return KeyRef{}, ErrInvalidKeyRef
	}
	return KeyRef{KeyID: s[:i], Version: version}, nil
}

// KeyMaterial is one version of a key as held in memory by the key store.
// Owned by the store; readers always receive a copy.
type KeyMaterial struct {
	KeyID     string               `cbor:"1,keyasint"`
	Version   int                  `cbor:"2,keyasint"`
	Type      cryptoDomain.KeyType `cbor:"3,keyasint"`
	State     KeyState             `cbor:"4,keyasint"`
	Private   []byte               `cbor:"5,keyasint"`
	Public    []byte               `cbor:"6,keyasint,omitempty"`
	CreatedAt time.Time            `cbor:"7,keyasint"`
	RotatedAt *time.Time           `cbor:"8,keyasint,omitempty"`
	// UseCount is the number of flushed uses; see RotationManager.FlushUsage.
	UseCount  int64                `cbor:"9,keyasint,omitempty"`
}

// Ref returns the KeyRef of this version.
func (k *KeyMaterial) Ref() KeyRef {
	return KeyRef{KeyID: k.KeyID, Version: k.Version}
}

// PrivateKey returns the private half for the crypto engine.
func (k *KeyMaterial) PrivateKey() cryptoDomain.PrivateKey {
	return cryptoDomain.PrivateKey{Type: k.Type, Bytes: k.Private}
}

// PublicKey returns the public half for the crypto engine.
func (k *KeyMaterial) PublicKey() cryptoDomain.PublicKey {
	return cryptoDomain.PublicKey{Type: k.Type, Bytes: k.Public}
}

// Clone returns a deep copy.
func (k *KeyMaterial) Clone() *KeyMaterial {
	c := *k
	c.Private = append([]byte(nil), k.Private...)
	if k.Public != nil {
		c.Public = append([]byte(nil), k.Public...)
	}
	if k.RotatedAt != nil {
		t := *k.RotatedAt
		c.RotatedAt = &t
	}
	return &c
}

// Zero clears the private bytes.
func (k *KeyMaterial) Zero() {
	cryptoDomain.Zero(k.Private)
}

// Validate checks the fields required before the key can be stored.
func (k *KeyMaterial) Validate() error {
	if k.KeyID == "" {
		return fmt.Errorf("%w: key id is required", ErrInvalidKeyMaterial)
	}
	if strings.Contains(k.KeyID, "@") {
		return fmt.Errorf("%w: key id must not contain '@'", ErrInvalidKeyMaterial)
	}
	if !k.Type.Valid() {
		return fmt.Errorf("%w: unknown key type %q", ErrInvalidKeyMaterial, k.Type)
	}
	if len(k.Private) == 0 {
		return fmt.Errorf("%w: key bytes are required", ErrInvalidKeyMaterial)
	}
	if !k.State.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidKeyMaterial, k.State)
	}
	return nil
}

// EncryptedKeyRecord is the persisted form of one KeyMaterial. Ciphertext is the
// AEAD seal of the CBOR-encoded KeyMaterial under the master key, with the
// record's KeyRef string as associated data.
type EncryptedKeyRecord struct {
	KeyID        string                 `cbor:"1,keyasint"`
	Version      int                    `cbor:"2,keyasint"`
	Ciphertext   []byte                 `cbor:"3,keyasint"`
	Nonce        []byte                 `cbor:"4,keyasint"`
	AlgorithmTag cryptoDomain.Algorithm `cbor:"5,keyasint"`
}

// Ref returns the KeyRef of the sealed version.
func (r *EncryptedKeyRecord) Ref() KeyRef {
	return KeyRef{KeyID: r.KeyID, Version: r.Version}
}

// KeySet is the full collection of key versions. It is the unit the store
// serializes, encrypts and writes on every mutation.
type KeySet struct {
	keys map[string][]*KeyMaterial
}

// NewKeySet creates an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{keys: make(map[string][]*KeyMaterial)}
}

// Clone returns a deep copy of the set.
func (s *KeySet) Clone() *KeySet {
	out := NewKeySet()
	for id, versions := range s.keys {
		cp := make([]*KeyMaterial, len(versions))
		for i, v := range versions {
			cp[i] = v.Clone()
		}
		out.keys[id] = cp
	}
	return out
}

// Zero clears every private key in the set.
func (s *KeySet) Zero() {
	for _, versions := range s.keys {
		for _, v := range versions {
			v.Zero()
		}
	}
}

// IDs returns the sorted key ids.
func (s *KeySet) IDs() []string {
	ids := make([]string, 0, len(s.keys))
	for id := range s.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns every version of every key, ordered by key id then version.
func (s *KeySet) All() []*KeyMaterial {
	var out []*KeyMaterial
	for _, id := range s.IDs() {
		out = append(out, s.keys[id]...)
	}
	return out
}

// Versions returns every version of keyID in ascending order.
func (s *KeySet) Versions(keyID string) []*KeyMaterial {
	return s.keys[keyID]
}

// Version returns one version or nil.
func (s *KeySet) Version(keyID string, version int) *KeyMaterial {
	for _, v := range s.keys[keyID] {
		if v.Version == version {
			return v
		}
	}
	return nil
}

// Latest returns the highest version of keyID or nil.
func (s *KeySet) Latest(keyID string) *KeyMaterial {
	versions := s.keys[keyID]
	if len(versions) == 0 {
		return nil
	}
	return versions[len(versions)-1]
}

// Active returns the highest ACTIVE version of keyID or nil.
func (s *KeySet) Active(keyID string) *KeyMaterial {
	versions := s.keys[keyID]
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].State == StateActive {
			return versions[i]
		}
	}
	return nil
}

// Current is the version returned for an unversioned lookup: the active
// version when there is one, the latest otherwise.
func (s *KeySet) Current(keyID string) *KeyMaterial {
	if k := s.Active(keyID); k != nil {
		return k
	}
	return s.Latest(keyID)
}

// NextVersion returns the version a new key under keyID would receive.
func (s *KeySet) NextVersion(keyID string) int {
	if k := s.Latest(keyID); k != nil {
		return k.Version + 1
	}
	return 1
}

// Put inserts one version. A zero Version is assigned NextVersion; a version that
// already exists is refused with ErrKeyVersionExists.
func (s *KeySet) Put(k *KeyMaterial) error {
	if k.Version == 0 {
		k.Version = s.NextVersion(k.KeyID)
	}
	if err := k.Validate(); err != nil {
		return err
	}

	versions := s.keys[k.KeyID]
	for _, v := range versions {
		if v.Version == k.Version {
			return fmt.Errorf("%w: %s", ErrKeyVersionExists, k.Ref())
		}
	}

	versions = append(versions, k)
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	s.keys[k.KeyID] = versions
	return nil
}

// Transition moves one version to a new state, enforcing the lifecycle.
func (s *KeySet) Transition(ref KeyRef, to KeyState, at time.Time) error {
	k := s.Version(ref.KeyID, ref.Version)
	if k == nil {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, ref)
	}
	if !k.State.CanTransitionTo(to) {
		return &InvalidTransitionError{Ref: ref, From: k.State, To: to}
	}

	k.State = to
	if to == StateRotating || to == StateArchived {
		if k.RotatedAt == nil {
			t := at
			k.RotatedAt = &t
		}
	}
	return nil
}

// Delete removes every version of keyID and reports whether any existed.
func (s *KeySet) Delete(keyID string) bool {
	versions, ok := s.keys[keyID]
	if !ok {
		return false
	}
	for _, v := range versions {
		v.Zero()
	}
	delete(s.keys, keyID)
	return true
}

// Len returns the number of stored versions.
func (s *KeySet) Len() int {
	n := 0
	for _, versions := range s.keys {
		n += len(versions)
	}
	return n
}
