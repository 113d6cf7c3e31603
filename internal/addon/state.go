package addon

// State represents the lifecycle state of an addon record.
type State int

// Addon states.
const (
	// StateUnset - Record exists but nothing was attempted yet.
	StateUnset State = iota

	// StateNotLoaded - Definition known, module not mapped.
	StateNotLoaded

	// StateNotLoadedDuplicate - Another record already owns the signature.
	StateNotLoadedDuplicate

	// StateNotLoadedIncompatible - Entry point missing or definition invalid.
	StateNotLoadedIncompatible

	// StateNotLoadedIncompatibleCapability - Requested API version unsupported.
	StateNotLoadedIncompatibleCapability

	// StateLoaded - Mapped and hotloadable.
	StateLoaded

	// StateLoadedLocked - Mapped; can only be replaced across a restart.
	StateLoadedLocked
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnset:
		return "unset"
	case StateNotLoaded:
		return "not-loaded"
	case StateNotLoadedDuplicate:
		return "not-loaded-duplicate"
	case StateNotLoadedIncompatible:
		return "not-loaded-incompatible"
	case StateNotLoadedIncompatibleCapability:
		return "not-loaded-incompatible-capability"
	case StateLoaded:
		return "loaded"
	case StateLoadedLocked:
		return "loaded-locked"
	default:
		return "unknown"
	}
}

// IsLoaded returns true if the module is mapped.
func (s State) IsLoaded() bool {
	return s == StateLoaded || s == StateLoadedLocked
}

// IsRejected returns true for the states a failed load guard leaves behind.
func (s State) IsRejected() bool {
	switch s {
	case StateNotLoadedDuplicate, StateNotLoadedIncompatible, StateNotLoadedIncompatibleCapability:
		return true
	default:
		return false
	}
}
