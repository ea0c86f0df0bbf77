package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBlocklistCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "blocklist",
		Aliases: []string{"list"},
		Short:   "Manage the list of sites to block",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the normalized sites in the blocklist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := rt.application()
			if err != nil {
				return err
			}
			list, err := app.Blocklist.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%d sites)\n", app.Blocklist.Path(), list.Len())
			writeList(out, list.Names())
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add <site>...",
		Short: "Add sites to the blocklist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rt.application()
			if err != nil {
				return err
			}
			for _, arg := range args {
				name, added, err := app.Blocklist.Add(arg)
				if err != nil {
					return err
				}
				if added {
					fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", name)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is already listed\n", name)
				}
			}
			return nil
		},
	}

	remove := &cobra.Command{
		Use:     "remove <site>...",
		Aliases: []string{"rm"},
		Short:   "Remove sites from the blocklist",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rt.application()
			if err != nil {
				return err
			}
			for _, arg := range args {
				removed, err := app.Blocklist.Remove(arg)
				if err != nil {
					return err
				}
				if removed {
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", arg)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is not listed\n", arg)
				}
			}
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the blocklist file if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := rt.application()
			if err != nil {
				return err
			}
			created, err := app.Blocklist.EnsureDefault()
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", app.Blocklist.Path())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", app.Blocklist.Path())
			}
			return nil
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the blocklist file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), rt.cfg.Blocklist)
			return nil
		},
	}

	cmd.AddCommand(show, add, remove, initCmd, path)
	return cmd
}
