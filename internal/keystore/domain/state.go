package domain

// KeyState is the lifecycle state of one key version.
//
// ACTIVE keys are used for new encryption and signing. ROTATING keys have a
// successor but are still valid for both directions. ARCHIVED keys are kept only
// to decrypt historical envelopes and are never selected for new encryption.
type KeyState string

const (
	StateActive   KeyState = "ACTIVE"
	StateRotating KeyState = "ROTATING"
	StateArchived KeyState = "ARCHIVED"
)

// Valid reports whether s is a known state.
func (s KeyState) Valid() bool {
	switch s {
	case StateActive, StateRotating, StateArchived:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle monotonic.
// ACTIVE may skip ROTATING and go straight to ARCHIVED.
func (s KeyState) CanTransitionTo(next KeyState) bool {
	switch s {
	case StateActive:
		return next == StateRotating || next == StateArchived
	case StateRotating:
		return next == StateArchived
	default:
		return false
	}
}

// UsableForEncryption reports whether new envelopes may be produced with this state.
func (s KeyState) UsableForEncryption() bool {
	return s == StateActive || s == StateRotating
}
