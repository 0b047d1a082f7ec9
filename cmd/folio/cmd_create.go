package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/folio/pkg/entry"
	"github.com/odvcencio/folio/pkg/txn"
)

func newCreateCmd(g *globalFlags) *cobra.Command {
	var (
		op     txn.CreateOp
		status string
		data   string
		sets   []string
	)
	cmd := &cobra.Command{
		Use:   "create TYPE TITLE",
		Short: "Create an entry, or a new locale or phase of an existing one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			op.Type, op.Title = args[0], args[1]
			if status != "" {
				s, err := entry.ParseStatus(status)
				if err != nil {
					return err
				}
				op.Status = s
			}
			fields, err := parseData(data, sets)
			if err != nil {
				return err
			}
			op.Data = fields

			p, err := openProject(cmd, g)
			if err != nil {
				return err
			}
			d, err := p.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			id, err := d.Create(ctx, &op)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, id)
			if n := d.Graph().ByID(id); n != nil {
				for _, r := range n.Rows() {
					fmt.Fprintf(out, "  %s %s\n", renderStatus(r.Status, len("published")), r.FilePath)
				}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&op.ID, "id", "", "entry id (default: generated)")
	f.StringVar(&op.Parent, "parent", "", "parent entry id")
	f.StringVar(&op.Workspace, "workspace", "", "workspace (default: the first one)")
	f.StringVar(&op.Root, "root", "", "root (default: the first one in the workspace)")
	f.StringVar(&op.Locale, "locale", "", "locale for internationalized roots")
	f.StringVar(&op.Path, "path", "", "url segment (default: derived from the title)")
	f.StringVar(&status, "status", "", "draft, published or archived (default: the parent's phase)")
	f.StringVar(&data, "data", "", "field values as a JSON object")
	f.StringArrayVar(&sets, "set", nil, "field value as key=value; repeatable")
	return cmd
}

func newUpdateCmd(g *globalFlags) *cobra.Command {
	var (
		op     txn.UpdateOp
		status string
		title  string
		path   string
		data   string
		sets   []string
		unsets []string
	)
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Edit the title, path or fields of an entry revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			op.ID = args[0]
			if status != "" {
				s, err := entry.ParseStatus(status)
				if err != nil {
					return err
				}
				op.Status = s
			}
			if cmd.Flags().Changed("title") {
				op.Title = &title
			}
			if cmd.Flags().Changed("path") {
				op.Path = &path
			}
			fields, err := parseData(data, sets)
			if err != nil {
				return err
			}
			for _, k := range unsets {
				fields[strings.TrimSpace(k)] = nil
			}
			op.Data = fields
			if op.Title == nil && op.Path == nil && len(op.Data) == 0 {
				return fmt.Errorf("nothing to update; pass --title, --path, --data, --set or --unset")
			}

			p, err := openProject(cmd, g)
			if err != nil {
				return err
			}
			d, err := p.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.Update(ctx, &op); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", op.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&op.Locale, "locale", "", "locale of the revision")
	f.StringVar(&status, "status", "", "phase of the revision (default: the active one)")
	f.StringVar(&title, "title", "", "new title")
	f.StringVar(&path, "path", "", "new url segment")
	f.StringVar(&data, "data", "", "field values as a JSON object")
	f.StringArrayVar(&sets, "set", nil, "field value as key=value; repeatable")
	f.StringArrayVar(&unsets, "unset", nil, "field to remove; repeatable")
	return cmd
}

func newMoveCmd(g *globalFlags) *cobra.Command {
	var op txn.MoveOp
	cmd := &cobra.Command{
		Use:   "move ID",
		Short: "Move an entry and its descendants to a new parent or position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			op.ID = args[0]
			p, err := openProject(cmd, g)
			if err != nil {
				return err
			}
			d, err := p.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.Move(ctx, &op); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "moved %s\n", op.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&op.Parent, "parent", "", "new parent id (default: top level)")
	f.StringVar(&op.After, "after", "", "sibling to place the entry after (default: first)")
	f.StringVar(&op.Root, "root", "", "root to move to within the same workspace")
	return cmd
}
