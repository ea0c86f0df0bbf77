package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/haukened/restraint/internal/block/common/log"
	"github.com/haukened/restraint/internal/block/domain"
	"github.com/haukened/restraint/internal/block/services/engine"
)

// Engine is the part of the block engine the background service drives.
type Engine interface {
	RecoverOnStartup(ctx context.Context) error
	Run(ctx context.Context, interval time.Duration, sink engine.StatusSink) error
	State() domain.State
}

// Guard keeps the service and a foreground restraint process from driving the
// engine at the same time.
type Guard interface {
	TryAcquire() (bool, error)
	Release() error
}

// Options configures a Daemon.
type Options struct {
	Engine       Engine
	Guard        Guard
	Logger       log.Logger
	PollInterval time.Duration
	TickInterval time.Duration
}

// Daemon polls for a persisted block and restores it at expiry. It is what makes
// a reboot or a killed foreground process unable to end a block early or leave
// the hosts file blocked forever.
type Daemon struct {
	engine Engine
	guard  Guard
	logger log.Logger
	poll   time.Duration
	tick   time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Daemon. Zero intervals fall back to 15s polling and 1s ticks.
func New(opts Options) *Daemon {
	d := &Daemon{
		engine: opts.Engine,
		guard:  opts.Guard,
		logger: opts.Logger,
		poll:   opts.PollInterval,
		tick:   opts.TickInterval,
	}
	if d.logger == nil {
		d.logger = log.NewNoopLogger()
	}
	if d.poll <= 0 {
		d.poll = 15 * time.Second
	}
	if d.tick <= 0 {
		d.tick = engine.DefaultTickInterval
	}
	return d
}

// Loop polls until ctx is done.
func (d *Daemon) Loop(ctx context.Context) error {
	d.logger.Info(map[string]any{"poll_interval": d.poll.String()}, "daemon_started")
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()
	for {
		d.PollOnce(ctx)
		select {
		case <-ctx.Done():
			d.logger.Info(nil, "daemon_stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce takes the guard if it is free, reconciles the engine with the lock
// and, if a block is active, runs it to expiry. It reports whether it managed
// a block.
func (d *Daemon) PollOnce(ctx context.Context) (managed bool) {
	ok, err := d.guard.TryAcquire()
	if err != nil {
		d.logger.Warn(map[string]any{"error": err}, "daemon_guard_failed")
		return false
	}
	if !ok {
		d.logger.Debug(nil, "daemon_guard_busy")
		return false
	}
	defer func() {
		if err := d.guard.Release(); err != nil {
			d.logger.Warn(map[string]any{"error": err}, "daemon_guard_release_failed")
		}
	}()

	if err := d.engine.RecoverOnStartup(ctx); err != nil {
		d.logReconcileError(err)
		// a corrupt region needs a hand edit; running would only hold the guard
		if errors.Is(err, domain.ErrCorruptRegion) || d.engine.State() != domain.StateActive {
			return false
		}
	}
	if d.engine.State() != domain.StateActive {
		return false
	}
	d.logger.Info(nil, "daemon_managing_block")
	err = d.engine.Run(ctx, d.tick, nil)
	switch {
	case err == nil:
		d.logger.Info(nil, "daemon_block_finished")
	case errors.Is(err, context.Canceled):
	default:
		d.logReconcileError(err)
	}
	return true
}

func (d *Daemon) logReconcileError(err error) {
	switch {
	case errors.Is(err, domain.ErrInconsistentState), errors.Is(err, domain.ErrCorruptRegion):
		d.logger.Error(map[string]any{"error": err}, "daemon_repair_required")
	default:
		d.logger.Warn(map[string]any{"error": err}, "daemon_reconcile_failed")
	}
}

// Start runs Loop in the background. Calling Start twice is a no-op.
func (d *Daemon) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		_ = d.Loop(ctx)
	}(d.done)
}

// Stop cancels the loop and waits up to timeout for it to exit.
func (d *Daemon) Stop(timeout time.Duration) error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("daemon did not stop in time")
	}
}
