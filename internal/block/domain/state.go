package domain

import (
	"fmt"
	"strings"
	"time"
)

// State is the block engine lifecycle state.
//
// Idle -> Staging -> Active -> Restoring -> Idle
type State uint8

const (
	// StateIdle means no block is in effect.
	StateIdle State = iota
	// StateStaging means a block is being written to the hosts file.
	StateStaging
	// StateActive means the block region is committed and the lock persisted.
	StateActive
	// StateRestoring means the region is being removed from the hosts file.
	StateRestoring
)

// String returns a stable string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStaging:
		return "staging"
	case StateActive:
		return "active"
	case StateRestoring:
		return "restoring"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// ParseState converts a string into a State (case-insensitive).
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "idle":
		return StateIdle, nil
	case "staging":
		return StateStaging, nil
	case "active":
		return StateActive, nil
	case "restoring":
		return StateRestoring, nil
	default:
		return 0, fmt.Errorf("unsupported State: %q", s)
	}
}

// Status is the snapshot pushed to the countdown display.
type Status struct {
	State       State
	Remaining   time.Duration // zero unless Active or Restoring
	Expiry      time.Time     // zero when Idle
	DomainCount int
}

// RemainingSeconds rounds Remaining up to whole seconds so a countdown never
// shows zero while the block is still in effect.
func (s Status) RemainingSeconds() int64 {
	if s.Remaining <= 0 {
		return 0
	}
	return int64((s.Remaining + time.Second - 1) / time.Second)
}

// IdleStatus returns the status reported when no block is active.
func IdleStatus() Status { return Status{State: StateIdle} }
