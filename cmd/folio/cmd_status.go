package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/odvcencio/folio/pkg/entry"
)

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the content tree, entry counts and remote state",
		Args:  cobra.NoArgs,
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

			out := cmd.OutOrStdout()
			gr := d.Graph()
			fmt.Fprintf(out, "content %s\n", p.cfg.ContentPath())
			fmt.Fprintf(out, "tree    %s\n", gr.Sha())
			fmt.Fprintf(out, "entries %d\n", gr.Len())

			byStatus := map[entry.Status]int{}
			byType := map[string]int{}
			for _, r := range gr.Rows() {
				byStatus[r.EffectiveStatus]++
				if r.Main {
					byType[r.Type]++
				}
			}
			for _, s := range []entry.Status{entry.Published, entry.Draft, entry.Archived} {
				if n := byStatus[s]; n > 0 {
					fmt.Fprintf(out, "  %s %d\n", renderStatus(s, len("published")), n)
				}
			}
			types := make([]string, 0, len(byType))
			for t := range byType {
				types = append(types, t)
			}
			sort.Strings(types)
			for _, t := range types {
				fmt.Fprintf(out, "  %s %d\n", mutedStyle.Render(t), byType[t])
			}

			switch {
			case p.cfg.Remote == "":
				fmt.Fprintln(out, mutedStyle.Render("no remote"))
			case p.client == nil:
				fmt.Fprintf(out, "remote  %s %s\n", p.cfg.Remote, mutedStyle.Render("(offline)"))
			default:
				remoteTree, err := p.client.GetTree(ctx)
				switch {
				case err != nil:
					p.logger.Debug("remote unreachable", "error", err)
					fmt.Fprintf(out, "remote  %s %s\n", p.cfg.Remote, removeStyle.Render("unreachable"))
				case remoteTree.Sha() == gr.Sha():
					fmt.Fprintf(out, "remote  %s %s\n", p.cfg.Remote, addStyle.Render("in sync"))
				default:
					fmt.Fprintf(out, "remote  %s %s\n", p.cfg.Remote, statusStyles[entry.Draft].Render("differs ("+remoteTree.Sha().Short()+")"))
				}
			}
			return nil
		},
	}
}
