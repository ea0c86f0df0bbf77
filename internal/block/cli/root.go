package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haukened/restraint/internal/block/common/log"
	"github.com/haukened/restraint/internal/block/config"
	"github.com/haukened/restraint/internal/block/domain"
	"github.com/haukened/restraint/internal/block/infra/guard"
	"github.com/haukened/restraint/internal/block/repos/blocklist"
	"github.com/haukened/restraint/internal/block/repos/hostsfile"
	"github.com/haukened/restraint/internal/block/repos/region"
	"github.com/haukened/restraint/internal/block/repos/session"
	"github.com/haukened/restraint/internal/block/services/engine"
)

// guardWait bounds how long a command waits for another restraint process.
const guardWait = 3 * time.Second

// Application holds the wired components the commands operate on.
type Application struct {
	Config    *config.AppConfig
	Engine    *engine.Engine
	Hosts     *hostsfile.Store
	Codec     *region.Codec
	Lock      *session.BoltStore
	Guard     *guard.Guard
	Blocklist *blocklist.FileSource
	Logger    log.Logger
}

// Builder constructs the Application from configuration.
type Builder func(cfg *config.AppConfig) (*Application, error)

// runtime carries state shared by the commands of one invocation.
type runtime struct {
	build Builder
	cfg   *config.AppConfig
	app   *Application
}

// NewRootCommand returns the restraint command tree.
func NewRootCommand(build Builder, version string) *cobra.Command {
	rt := &runtime{build: build}
	root := &cobra.Command{
		Use:           "restraint",
		Short:         "Block distracting websites via the hosts file until a timer runs out",
		Long:          "restraint adds a marked block of 0.0.0.0 entries to the system hosts file and removes it, byte for byte, when the chosen duration has elapsed. A running block cannot be cancelled.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if err := log.Configure(cfg.Env, cfg.LogLevel, cfg.LogFile); err != nil {
				return fmt.Errorf("logging configuration error: %w", err)
			}
			rt.cfg = cfg
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		newStartCommand(rt),
		newStatusCommand(rt),
		newRecoverCommand(rt),
		newRepairCommand(rt),
		newBlocklistCommand(rt),
		newServiceCommand(rt),
	)
	return root
}

func (rt *runtime) application() (*Application, error) {
	if rt.app != nil {
		return rt.app, nil
	}
	app, err := rt.build(rt.cfg)
	if err != nil {
		return nil, err
	}
	rt.app = app
	return app, nil
}

// withGuard runs fn while holding the single-instance guard.
func (rt *runtime) withGuard(ctx context.Context, fn func(app *Application) error) error {
	app, err := rt.application()
	if err != nil {
		return err
	}
	if err := app.Guard.Acquire(ctx, guardWait, 100*time.Millisecond); err != nil {
		return err
	}
	defer app.Guard.Release()
	return fn(app)
}

// hint appends the follow-up a user can take for errors that need one.
func hint(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInconsistentState):
		return fmt.Errorf("%w\nrun 'restraint repair' to remove a leftover block region", err)
	case errors.Is(err, domain.ErrCorruptRegion):
		return fmt.Errorf("%w\nedit the hosts file by hand to remove the lines between the restraint markers", err)
	case errors.Is(err, domain.ErrPermission):
		return fmt.Errorf("%w\nrun as administrator or set RESTRAINT_ELEVATE_COMMAND", err)
	}
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
