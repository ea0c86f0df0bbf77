package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haukened/restraint/internal/block/services/daemon"
)

func newServiceCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the background service that restores expired blocks",
	}

	manager := func(app *Application) (*daemon.Manager, error) {
		d := daemon.New(daemon.Options{
			Engine:       app.Engine,
			Guard:        app.Guard,
			Logger:       app.Logger.Named("daemon"),
			PollInterval: app.Config.PollInterval,
			TickInterval: app.Config.TickInterval,
		})
		return daemon.NewManager(d, app.Config.Environ(), app.Logger)
	}

	control := func(use, short, done string, action func(*daemon.Manager) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				app, err := rt.application()
				if err != nil {
					return err
				}
				m, err := manager(app)
				if err != nil {
					return err
				}
				if err := action(m); err != nil {
					return fmt.Errorf("service %s: %w", use, err)
				}
				if done != "" {
					fmt.Fprintln(cmd.OutOrStdout(), done)
				}
				return nil
			},
		}
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := rt.application()
			if err != nil {
				return err
			}
			m, err := manager(app)
			if err != nil {
				return err
			}
			st, err := m.Status()
			if err != nil {
				return fmt.Errorf("service status: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", st, daemon.Platform())
			return nil
		},
	}

	cmd.AddCommand(
		control("install", "Install the service to run at boot", "Service installed.", (*daemon.Manager).Install),
		control("uninstall", "Remove the service", "Service uninstalled.", (*daemon.Manager).Uninstall),
		control("start", "Start the installed service", "Service started.", (*daemon.Manager).Start),
		control("stop", "Stop the service", "Service stopped.", (*daemon.Manager).Stop),
		control("run", "Run the service in the foreground (used by the service manager)", "", (*daemon.Manager).Run),
		status,
	)
	return cmd
}
