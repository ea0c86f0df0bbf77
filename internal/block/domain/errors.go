package domain

import "errors"

// Error taxonomy for the block lifecycle. Components wrap these with %w so
// callers can branch with errors.Is while still seeing the underlying cause.
var (
	// ErrValidation reports a bad request (duration, empty or invalid domain list).
	// No state changes when it is returned.
	ErrValidation = errors.New("invalid block request")

	// ErrAlreadyActive reports that a block session exists, either recorded in the
	// lock or detected as a region already present in the hosts file.
	ErrAlreadyActive = errors.New("a block is already active")

	// ErrPermission reports that the hosts file could not be committed for lack of
	// privilege, including a dismissed elevation prompt.
	ErrPermission = errors.New("insufficient privilege to modify the hosts file")

	// ErrCorruptRegion reports a start marker with no matching end marker (or the
	// reverse). The automatic restore path never guesses; manual repair is required.
	ErrCorruptRegion = errors.New("hosts file block region is corrupt, manual repair required")

	// ErrLockCorrupt reports an unreadable or unparsable persistent lock record.
	ErrLockCorrupt = errors.New("block lock record is corrupt")

	// ErrInconsistentState reports that the hosts file and the lock disagree, e.g. a
	// block region is present but no valid lock describes it.
	ErrInconsistentState = errors.New("hosts file and block lock disagree")

	// ErrHostsNotFound reports that the platform hosts file does not exist.
	ErrHostsNotFound = errors.New("hosts file not found")
)
