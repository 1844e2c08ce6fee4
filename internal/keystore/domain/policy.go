package domain

import (
	"strings"
	"time"
)

// KeyMetadata is what a RotationPolicy sees about one key version.
type KeyMetadata struct {
	Ref       KeyRef
	State     KeyState
	CreatedAt time.Time
	UseCount  int64
}

// RotationPolicy decides whether a key version is due for rotation.
type RotationPolicy interface {
	Name() string
	ShouldRotate(meta KeyMetadata, now time.Time) bool
}

// AgePolicy triggers once a key is at least MaxAge old.
type AgePolicy struct {
	MaxAge time.Duration
}

func (p AgePolicy) Name() string { return "age" }

func (p AgePolicy) ShouldRotate(meta KeyMetadata, now time.Time) bool {
	return p.MaxAge > 0 && now.Sub(meta.CreatedAt) >= p.MaxAge
}

// UsagePolicy triggers once a key has been used at least MaxUses times.
// UseCount is the persisted count plus the uses recorded since the last flush.
type UsagePolicy struct {
	MaxUses int64
}

func (p UsagePolicy) Name() string { return "usage" }

func (p UsagePolicy) ShouldRotate(meta KeyMetadata, _ time.Time) bool {
	return p.MaxUses > 0 && meta.UseCount >= p.MaxUses
}

// CompositePolicy triggers when any of its policies triggers.
type CompositePolicy struct {
	Policies []RotationPolicy
}

func (p CompositePolicy) Name() string {
	names := make([]string, 0, len(p.Policies))
	for _, policy := range p.Policies {
		names = append(names, policy.Name())
	}
	return "any(" + strings.Join(names, ",") + ")"
}

func (p CompositePolicy) ShouldRotate(meta KeyMetadata, now time.Time) bool {
	for _, policy := range p.Policies {
		if policy.ShouldRotate(meta, now) {
			return true
		}
	}
	return false
}

// NeverPolicy never triggers. Used when no threshold is configured.
type NeverPolicy struct{}

func (NeverPolicy) Name() string { return "never" }

func (NeverPolicy) ShouldRotate(KeyMetadata, time.Time) bool { return false }
