package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/haukened/restraint/internal/block/domain"
	"github.com/haukened/restraint/internal/block/gateways/display"
)

type startOptions struct {
	duration string
	steps    int
	domains  []string
	detach   bool
}

func newStartCommand(rt *runtime) *cobra.Command {
	opts := &startOptions{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a block",
		Long: "Start blocks every site in the blocklist (or given with --domain) for the chosen duration.\n" +
			"Without --detach the countdown is shown until the block ends; interrupting it does not end the block.",
		Example: "  restraint start --duration 45m\n  restraint start --steps 4 --domain reddit.com --domain news.ycombinator.com",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return hint(runStart(cmd.Context(), rt, opts, cmd.OutOrStdout()))
		},
	}
	cmd.Flags().StringVarP(&opts.duration, "duration", "d", "", "block duration, e.g. 45m, 1h30m, or plain minutes")
	cmd.Flags().IntVar(&opts.steps, "steps", 0, "block duration in 15 minute steps")
	cmd.Flags().StringSliceVar(&opts.domains, "domain", nil, "site to block instead of the blocklist (repeatable)")
	cmd.Flags().BoolVar(&opts.detach, "detach", false, "return immediately and leave the restore to the restraint service")
	cmd.MarkFlagsMutuallyExclusive("duration", "steps")
	return cmd
}

func (o *startOptions) resolveDuration() (time.Duration, error) {
	switch {
	case o.steps != 0:
		if o.steps < 0 {
			return 0, fmt.Errorf("%w: --steps must be positive", domain.ErrValidation)
		}
		return domain.StepsDuration(o.steps), nil
	case o.duration != "":
		return domain.ParseDuration(o.duration)
	default:
		return 0, fmt.Errorf("%w: a duration is required (--duration or --steps)", domain.ErrValidation)
	}
}

func runStart(ctx context.Context, rt *runtime, opts *startOptions, out io.Writer) error {
	d, err := opts.resolveDuration()
	if err != nil {
		return err
	}
	app, err := rt.application()
	if err != nil {
		return err
	}

	var list domain.DomainList
	if len(opts.domains) > 0 {
		if list, err = domain.NewDomainList(opts.domains); err != nil {
			return err
		}
	} else {
		created, err := app.Blocklist.EnsureDefault()
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(out, "Created a blocklist at %s, edit it to choose the sites to block.\n", app.Blocklist.Path())
		}
		if list, err = app.Blocklist.Load(); err != nil {
			return err
		}
	}
	if list.Len() == 0 {
		return fmt.Errorf("%w: no sites to block, add some with 'restraint blocklist add'", domain.ErrValidation)
	}

	if err := app.Guard.Acquire(ctx, guardWait, 100*time.Millisecond); err != nil {
		return err
	}
	defer app.Guard.Release()

	if err := app.Engine.RecoverOnStartup(ctx); err != nil {
		return err
	}
	sess, err := app.Engine.Start(ctx, list, d)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Blocking %d sites for %s, until %s.\n",
		list.Len(), domain.FormatDuration(d), sess.Expiry.Local().Format(time.DateTime))
	if opts.detach {
		fmt.Fprintln(out, "The restraint service restores the hosts file when the block ends.")
		return nil
	}

	err = app.Engine.Run(ctx, app.Config.TickInterval, display.NewConsole(out, isTerminal(out)))
	if errors.Is(err, context.Canceled) {
		fmt.Fprintf(out, "\nStopped watching. The block stays active until %s.\n", sess.Expiry.Local().Format(time.DateTime))
		return nil
	}
	return err
}
