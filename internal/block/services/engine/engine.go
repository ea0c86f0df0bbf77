package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/haukened/restraint/internal/block/common/clock"
	"github.com/haukened/restraint/internal/block/common/log"
	"github.com/haukened/restraint/internal/block/domain"
)

const (
	// DefaultMaxDuration caps a block when Options.MaxDuration is zero.
	DefaultMaxDuration = 24 * time.Hour
	// DefaultRetryInterval spaces restore attempts after a failed one.
	DefaultRetryInterval = 30 * time.Second
	// DefaultTickInterval is the Run loop period.
	DefaultTickInterval = time.Second
)

// Engine owns the block lifecycle state machine:
//
//	Idle -> Staging -> Active -> Restoring -> Idle
//
// Every transition holds mu, so the expiry handler never runs concurrently with
// itself or with Start, and a second expiry fire after a restore is a no-op.
type Engine struct {
	mu            sync.Mutex
	hosts         HostsStore
	codec         RegionCodec
	lock          LockStore
	clock         clock.Clock
	logger        log.Logger
	maxDuration   time.Duration
	retryInterval time.Duration

	state       domain.State
	session     *domain.BlockSession
	nextAttempt time.Time
}

// Options configures an Engine. Hosts, Codec and Lock are required.
type Options struct {
	Hosts         HostsStore
	Codec         RegionCodec
	Lock          LockStore
	Clock         clock.Clock
	Logger        log.Logger
	MaxDuration   time.Duration
	RetryInterval time.Duration
}

// New returns an Idle engine. Call RecoverOnStartup before Start to pick up a
// session persisted by an earlier process.
func New(opts Options) (*Engine, error) {
	if opts.Hosts == nil || opts.Codec == nil || opts.Lock == nil {
		return nil, errors.New("engine requires hosts store, region codec and lock store")
	}
	e := &Engine{
		hosts:         opts.Hosts,
		codec:         opts.Codec,
		lock:          opts.Lock,
		clock:         opts.Clock,
		logger:        opts.Logger,
		maxDuration:   opts.MaxDuration,
		retryInterval: opts.RetryInterval,
		state:         domain.StateIdle,
	}
	if e.clock == nil {
		e.clock = &clock.RealClock{}
	}
	if e.logger == nil {
		e.logger = log.NewNoopLogger()
	}
	if e.maxDuration <= 0 {
		e.maxDuration = DefaultMaxDuration
	}
	if e.retryInterval <= 0 {
		e.retryInterval = DefaultRetryInterval
	}
	return e, nil
}

// Start applies a block of domains lasting d.
//
// The hosts commit happens before the lock is persisted. If persisting fails the
// original content is committed back, so a failed Start never leaves a region
// without a lock. Any failure leaves the engine Idle.
func (e *Engine) Start(ctx context.Context, domains domain.DomainList, d time.Duration) (domain.BlockSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != domain.StateIdle {
		return domain.BlockSession{}, fmt.Errorf("%w: engine is %s", domain.ErrAlreadyActive, e.state)
	}
	if d <= 0 {
		return domain.BlockSession{}, fmt.Errorf("%w: duration must be positive, got %s", domain.ErrValidation, d)
	}
	if d > e.maxDuration {
		return domain.BlockSession{}, fmt.Errorf("%w: duration %s exceeds maximum %s", domain.ErrValidation, d, e.maxDuration)
	}
	if domains.Len() == 0 {
		return domain.BlockSession{}, fmt.Errorf("%w: domain list is empty", domain.ErrValidation)
	}

	existing, ok, err := e.lock.Read()
	if err != nil {
		return domain.BlockSession{}, err
	}
	if ok {
		return domain.BlockSession{}, fmt.Errorf("%w: lock expires at %s", domain.ErrAlreadyActive, existing.Expiry.Format(time.RFC3339))
	}
	original, err := e.hosts.ReadAll(ctx)
	if err != nil {
		return domain.BlockSession{}, err
	}
	if e.codec.Contains(original) {
		return domain.BlockSession{}, fmt.Errorf("%w: hosts file already contains a block region", domain.ErrAlreadyActive)
	}

	e.state = domain.StateStaging
	sess, err := e.stageAndCommit(ctx, original, domains, d)
	if err != nil {
		e.state = domain.StateIdle
		return domain.BlockSession{}, err
	}
	e.state = domain.StateActive
	e.session = &sess
	e.nextAttempt = time.Time{}
	e.logger.Info(map[string]any{
		"domains":  domains.Len(),
		"duration": d.String(),
		"expiry":   sess.Expiry.Format(time.RFC3339),
	}, "block_started")
	return sess, nil
}

func (e *Engine) stageAndCommit(ctx context.Context, original string, domains domain.DomainList, d time.Duration) (domain.BlockSession, error) {
	staged, err := e.hosts.StageCopy(ctx)
	if err != nil {
		return domain.BlockSession{}, err
	}
	sess, err := domain.NewBlockSession(domains, e.clock.Now(), d, staged)
	if err != nil {
		e.discard()
		return domain.BlockSession{}, err
	}
	blocked := e.codec.Apply(original, e.codec.Encode(domains))
	if err := e.hosts.Commit(ctx, blocked); err != nil {
		e.logger.Warn(map[string]any{"error": err}, "block_commit_failed")
		e.discard()
		return domain.BlockSession{}, err
	}
	if err := e.lock.Write(sess); err != nil {
		err = fmt.Errorf("persist block lock: %w", err)
		if rbErr := e.hosts.Commit(context.WithoutCancel(ctx), original); rbErr != nil {
			e.logger.Error(map[string]any{"error": rbErr}, "block_rollback_failed")
			return domain.BlockSession{}, errors.Join(err, fmt.Errorf("%w: rollback failed: %w", domain.ErrInconsistentState, rbErr))
		}
		e.discard()
		e.logger.Warn(map[string]any{"error": err}, "block_rolled_back")
		return domain.BlockSession{}, err
	}
	return sess, nil
}

// OnExpiry removes the block region and clears the lock. It is a no-op unless
// the engine is Active, so repeated fires are harmless.
//
// A corrupt region returns domain.ErrCorruptRegion with the hosts file untouched
// and the engine still Active. A failed commit keeps the engine Active and
// defers the next automatic attempt by the retry interval.
func (e *Engine) OnExpiry(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != domain.StateActive {
		return nil
	}
	_, err := e.restoreLocked(ctx)
	return err
}

// ProcessExpiries restores the active session if it has expired and no retry
// backoff is pending.
func (e *Engine) ProcessExpiries(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != domain.StateActive || e.session == nil {
		return nil
	}
	now := e.clock.Now()
	if !e.session.Expired(now) || now.Before(e.nextAttempt) {
		return nil
	}
	_, err := e.restoreLocked(ctx)
	return err
}

// restoreLocked runs restore and moves the state machine. stripped reports
// whether a region was removed from the hosts file.
func (e *Engine) restoreLocked(ctx context.Context) (stripped bool, err error) {
	e.state = domain.StateRestoring
	stripped, err = e.restore(ctx)
	if err != nil {
		e.state = domain.StateActive
		e.nextAttempt = e.clock.Now().Add(e.retryInterval)
		if errors.Is(err, domain.ErrCorruptRegion) {
			e.logger.Error(map[string]any{"error": err}, "restore_refused_corrupt_region")
		} else {
			e.logger.Warn(map[string]any{"error": err, "retry_at": e.nextAttempt.Format(time.RFC3339)}, "restore_failed")
		}
		return false, err
	}
	e.state = domain.StateIdle
	e.session = nil
	e.nextAttempt = time.Time{}
	e.logger.Info(map[string]any{"region_removed": stripped}, "restore_completed")
	return stripped, nil
}

func (e *Engine) restore(ctx context.Context) (bool, error) {
	content, err := e.hosts.ReadAll(ctx)
	if err != nil {
		return false, err
	}
	cleaned, found, err := e.codec.Strip(content)
	if err != nil {
		return false, err
	}
	if found {
		if err := e.hosts.Commit(ctx, cleaned); err != nil {
			return false, err
		}
	} else {
		e.logger.Warn(nil, "restore_region_missing")
	}
	if err := e.lock.Clear(); err != nil {
		return false, fmt.Errorf("clear block lock: %w", err)
	}
	e.discard()
	return found, nil
}

// RecoverOnStartup reconciles the engine with the persisted lock and the hosts file.
//
//   - no lock and no region: Idle
//   - no lock but a region: Idle, domain.ErrInconsistentState (see Repair)
//   - lock with a future expiry: Active for the remaining time
//   - lock with a past expiry: restored immediately, as OnExpiry
//   - corrupt lock: cleared when the hosts file has no region, otherwise
//     domain.ErrInconsistentState and nothing is touched
//
// It may be called again later to resync with changes made by another process.
func (e *Engine) RecoverOnStartup(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok, err := e.lock.Read()
	if err != nil {
		if !errors.Is(err, domain.ErrLockCorrupt) {
			return err
		}
		return e.recoverCorruptLock(ctx, err)
	}
	if !ok {
		e.state = domain.StateIdle
		e.session = nil
		content, err := e.hosts.ReadAll(ctx)
		if err != nil {
			return err
		}
		if e.codec.Contains(content) {
			e.logger.Warn(nil, "recover_region_without_lock")
			return fmt.Errorf("%w: hosts file contains a block region but no lock exists", domain.ErrInconsistentState)
		}
		return nil
	}

	e.state = domain.StateActive
	e.session = &sess
	now := e.clock.Now()
	if sess.Expired(now) {
		e.logger.Info(map[string]any{"expiry": sess.Expiry.Format(time.RFC3339)}, "recover_expired_session")
		e.nextAttempt = time.Time{}
		_, err := e.restoreLocked(ctx)
		return err
	}
	e.logger.Info(map[string]any{
		"expiry":    sess.Expiry.Format(time.RFC3339),
		"remaining": sess.Remaining(now).Round(time.Second).String(),
	}, "recover_active_session")
	if content, err := e.hosts.ReadAll(ctx); err == nil && !e.codec.Contains(content) {
		e.logger.Warn(nil, "recover_region_missing")
	}
	return nil
}

func (e *Engine) recoverCorruptLock(ctx context.Context, lockErr error) error {
	e.logger.Error(map[string]any{"error": lockErr}, "recover_lock_corrupt")
	content, err := e.hosts.ReadAll(ctx)
	if err != nil {
		return errors.Join(lockErr, err)
	}
	if e.codec.Contains(content) {
		return fmt.Errorf("%w: %w", domain.ErrInconsistentState, lockErr)
	}
	if err := e.lock.Clear(); err != nil {
		return errors.Join(lockErr, err)
	}
	e.state = domain.StateIdle
	e.session = nil
	return nil
}

// Repair removes a complete block region that no valid lock accounts for, which
// is what a crash between the hosts commit and the lock write leaves behind.
// An expired lock is restored normally. An unexpired lock is refused with
// domain.ErrAlreadyActive and a corrupt region with domain.ErrCorruptRegion.
// removed reports whether a region was stripped.
func (e *Engine) Repair(ctx context.Context) (removed bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != domain.StateIdle {
		return false, fmt.Errorf("%w: engine is %s", domain.ErrAlreadyActive, e.state)
	}

	sess, ok, lockErr := e.lock.Read()
	if lockErr != nil && !errors.Is(lockErr, domain.ErrLockCorrupt) {
		return false, lockErr
	}
	if ok {
		if !sess.Expired(e.clock.Now()) {
			return false, fmt.Errorf("%w: lock expires at %s", domain.ErrAlreadyActive, sess.Expiry.Format(time.RFC3339))
		}
		e.state = domain.StateActive
		e.session = &sess
		return e.restoreLocked(ctx)
	}

	content, err := e.hosts.ReadAll(ctx)
	if err != nil {
		return false, err
	}
	cleaned, found, err := e.codec.Strip(content)
	if err != nil {
		return false, err
	}
	if found {
		if err := e.hosts.Commit(ctx, cleaned); err != nil {
			return false, err
		}
	}
	if lockErr != nil {
		if err := e.lock.Clear(); err != nil {
			return found, err
		}
	}
	e.discard()
	e.logger.Info(map[string]any{"region_removed": found, "lock_cleared": lockErr != nil}, "repair_completed")
	return found, nil
}

// Status returns a snapshot for the countdown display.
func (e *Engine) Status() domain.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil || e.state == domain.StateIdle {
		return domain.IdleStatus()
	}
	return domain.Status{
		State:       e.state,
		Remaining:   e.session.Remaining(e.clock.Now()),
		Expiry:      e.session.Expiry,
		DomainCount: e.session.Domains.Len(),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() domain.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Session returns the active session, if any.
func (e *Engine) Session() (domain.BlockSession, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return domain.BlockSession{}, false
	}
	return *e.session, true
}

// Run ticks every interval, processing expiries and publishing status to sink,
// until the engine is Idle or ctx is done. A corrupt region stops the loop with
// domain.ErrCorruptRegion; other restore failures are retried after the retry
// interval.
func (e *Engine) Run(ctx context.Context, interval time.Duration, sink StatusSink) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := e.ProcessExpiries(ctx); err != nil && errors.Is(err, domain.ErrCorruptRegion) {
			return err
		}
		status := e.Status()
		if sink != nil {
			sink.Publish(status)
		}
		if status.State == domain.StateIdle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) discard() {
	if err := e.hosts.Discard(); err != nil {
		e.logger.Warn(map[string]any{"error": err}, "staged_copy_discard_failed")
	}
}
