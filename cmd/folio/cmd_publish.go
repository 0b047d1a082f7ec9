package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/folio/pkg/db"
)

// newPhaseCmd builds publish, unpublish and archive, which share a shape:
// one id and an optional locale.
func newPhaseCmd(g *globalFlags, use, short, done string, apply func(*db.DB, context.Context, string, string) error) *cobra.Command {
	var locale string
	cmd := &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := openProject(cmd, g)
			if err != nil {
				return err
			}
			d, err := p.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := apply(d, ctx, args[0], locale); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", done, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&locale, "locale", "", "locale to change")
	return cmd
}

func newPublishCmd(g *globalFlags) *cobra.Command {
	return newPhaseCmd(g, "publish", "Publish the draft of an entry, or restore its archive", "published", (*db.DB).Publish)
}

func newUnpublishCmd(g *globalFlags) *cobra.Command {
	return newPhaseCmd(g, "unpublish", "Turn a published entry back into a draft", "unpublished", (*db.DB).Unpublish)
}

func newArchiveCmd(g *globalFlags) *cobra.Command {
	return newPhaseCmd(g, "archive", "Archive a published entry", "archived", (*db.DB).Archive)
}

func newDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete entries with their descendants",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := openProject(cmd, g)
			if err != nil {
				return err
			}
			d, err := p.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.Delete(ctx, args...); err != nil {
				return err
			}
			for _, id := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			return nil
		},
	}
}
