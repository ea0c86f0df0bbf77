package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/haukened/restraint/internal/block/domain"
	"github.com/haukened/restraint/internal/block/gateways/display"
)

func newStatusCommand(rt *runtime) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current block without changing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := rt.application()
			if err != nil {
				return err
			}
			return printStatus(cmd, app, verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list the blocked sites")
	return cmd
}

func printStatus(cmd *cobra.Command, app *Application, verbose bool) error {
	out := cmd.OutOrStdout()
	sess, ok, err := app.Lock.Read()
	if err != nil {
		return hint(err)
	}
	content, readErr := app.Hosts.ReadAll(cmd.Context())
	regionPresent := readErr == nil && app.Codec.Contains(content)

	if !ok {
		fmt.Fprintln(out, display.Render(domain.IdleStatus()))
		if regionPresent {
			fmt.Fprintln(out, "Warning: the hosts file still contains a restraint block region. Run 'restraint repair'.")
		}
		return nil
	}
	now := time.Now()
	st := domain.Status{
		State:       domain.StateActive,
		Remaining:   sess.Remaining(now),
		Expiry:      sess.Expiry,
		DomainCount: sess.Domains.Len(),
	}
	fmt.Fprintln(out, display.Render(st))
	if sess.Expired(now) {
		fmt.Fprintln(out, "The block has expired and is waiting to be restored. Run 'restraint recover'.")
	}
	if readErr == nil && !regionPresent {
		fmt.Fprintln(out, "Warning: the block region is missing from the hosts file.")
	}
	if verbose {
		writeList(out, sess.Domains.Names())
	}
	return nil
}

func writeList(out io.Writer, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintln(out, "  "+strings.Join(names, "\n  "))
}

func newRecoverCommand(rt *runtime) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Restore an expired block, or resume watching an active one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			return hint(rt.withGuard(cmd.Context(), func(app *Application) error {
				if err := app.Engine.RecoverOnStartup(cmd.Context()); err != nil {
					return err
				}
				if app.Engine.State() != domain.StateActive || !wait {
					fmt.Fprintln(out, display.Render(app.Engine.Status()))
					return nil
				}
				return app.Engine.Run(cmd.Context(), app.Config.TickInterval, display.NewConsole(out, isTerminal(out)))
			}))
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "keep running until an active block ends")
	return cmd
}

func newRepairCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Remove a leftover block region that no active block accounts for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			return hint(rt.withGuard(cmd.Context(), func(app *Application) error {
				removed, err := app.Engine.Repair(cmd.Context())
				if err != nil {
					return err
				}
				if removed {
					fmt.Fprintln(out, "Removed the block region from the hosts file.")
				} else {
					fmt.Fprintln(out, "Nothing to repair.")
				}
				return nil
			}))
		},
	}
}
