package domain

import (
	"fmt"
	"time"
)

// BlockSession describes one block episode from Start to successful restore.
//
// Expiry is absolute (UTC, no monotonic reading) so that it survives a process
// restart and is compared against the wall clock.
type BlockSession struct {
	StartedAt  time.Time
	Expiry     time.Time
	StagedPath string // staged copy of the hosts file; equals the system path under direct access
	Domains    DomainList
}

// NewBlockSession constructs a session starting at now and lasting d.
func NewBlockSession(domains DomainList, now time.Time, d time.Duration, stagedPath string) (BlockSession, error) {
	started := now.Round(0).UTC()
	s := BlockSession{
		StartedAt:  started,
		Expiry:     started.Add(d),
		StagedPath: stagedPath,
		Domains:    domains,
	}
	if err := s.Validate(); err != nil {
		return BlockSession{}, err
	}
	return s, nil
}

// Validate checks the session for required fields.
func (s BlockSession) Validate() error {
	if s.Expiry.IsZero() {
		return fmt.Errorf("%w: session expiry must be set", ErrValidation)
	}
	if !s.StartedAt.IsZero() && !s.Expiry.After(s.StartedAt) {
		return fmt.Errorf("%w: session expiry must be after its start", ErrValidation)
	}
	if s.Domains.Len() == 0 {
		return fmt.Errorf("%w: session has no domains", ErrValidation)
	}
	return nil
}

// Expired reports whether the session has reached its expiry at now.
func (s BlockSession) Expired(now time.Time) bool {
	return !now.Before(s.Expiry)
}

// Remaining returns the time left until expiry, never negative.
func (s BlockSession) Remaining(now time.Time) time.Duration {
	if s.Expired(now) {
		return 0
	}
	return s.Expiry.Sub(now)
}
