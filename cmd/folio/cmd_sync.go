package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPullCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Make the content directory match the remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := openProject(cmd, g)
			if err != nil {
				return err
			}
			if err := p.requireRemote(); err != nil {
				return err
			}
			d, err := p.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			changes, err := d.Pull(ctx)
			if err != nil {
				return fmt.Errorf("pull: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(changes) == 0 {
				fmt.Fprintln(out, "already up to date")
				return nil
			}
			printChanges(out, changes)
			fmt.Fprintf(out, "pulled %d changes, now at %s\n", len(changes), d.Graph().Sha().Short())
			return nil
		},
	}
}

func newPushCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Make the remote match the content directory",
		Long: `Make the remote match the content directory. Push does not check what the
remote holds: files changed there since the last pull are overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := openProject(cmd, g)
			if err != nil {
				return err
			}
			if err := p.requireRemote(); err != nil {
				return err
			}
			d, err := p.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			changes, err := d.Push(ctx)
			if err != nil {
				return fmt.Errorf("push: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(changes) == 0 {
				fmt.Fprintln(out, "remote already up to date")
				return nil
			}
			printChanges(out, changes)
			fmt.Fprintf(out, "pushed %d changes\n", len(changes))
			return nil
		},
	}
}
