package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/folio/pkg/diff"
	"github.com/odvcencio/folio/pkg/object"
	"github.com/odvcencio/folio/pkg/source"
	"github.com/odvcencio/folio/pkg/tree"
)

func newDiffCmd(g *globalFlags) *cobra.Command {
	var (
		lines bool
		push  bool
	)
	cmd := &cobra.Command{
		Use:   "diff [PATH...]",
		Short: "Show field changes between the content directory and the remote",
		Long: `Show what a pull would change in the content directory, entry by entry
and field by field. --push shows what a push would change on the remote
instead. Paths limit the output to files below them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := openProject(cmd, g)
			if err != nil {
				return err
			}
			if err := p.requireRemote(); err != nil {
				return err
			}
			var from, to source.Source = p.fs, p.client
			if push {
				from, to = to, from
			}
			diffs, err := diffSources(ctx, from, to, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(diffs) == 0 {
				fmt.Fprintln(out, "no differences")
				return nil
			}
			for _, d := range diffs {
				switch {
				case d.file != nil && lines:
					fmt.Fprint(out, diff.FormatLineDiff(d.file))
				case d.file != nil:
					fmt.Fprint(out, diff.FormatFieldDiff(d.file))
				default:
					fmt.Fprintf(out, "%s %s\n", d.marker, d.path)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&lines, "lines", false, "show changed values line by line")
	cmd.Flags().BoolVar(&push, "push", false, "compare in the push direction")
	return cmd
}

type pathDiff struct {
	path   string
	marker string
	// file is nil for files that are not entries.
	file *diff.FileDiff
}

// diffSources compares the trees of from and to and diffs every changed
// entry file. Blobs are fetched in one batch per side.
func diffSources(ctx context.Context, from, to source.Source, prefixes []string) ([]pathDiff, error) {
	fromTree, err := from.GetTree(ctx)
	if err != nil {
		return nil, err
	}
	toTree, err := to.GetTree(ctx)
	if err != nil {
		return nil, err
	}

	// Merge each path's delete and add into one before/after pair.
	type pair struct{ before, after object.Hash }
	var order []string
	pairs := map[string]*pair{}
	for _, c := range tree.Diff(fromTree, toTree) {
		if !underAny(c.Path, prefixes) {
			continue
		}
		pp, ok := pairs[c.Path]
		if !ok {
			pp = &pair{}
			if sha, found := fromTree.Get(c.Path); found {
				pp.before = sha
			}
			pairs[c.Path] = pp
			order = append(order, c.Path)
		}
		if c.Op == tree.OpAdd {
			pp.after = c.Sha
		}
	}

	beforeShas, afterShas := map[object.Hash]bool{}, map[object.Hash]bool{}
	for _, pp := range pairs {
		if pp.before != "" {
			beforeShas[pp.before] = true
		}
		if pp.after != "" {
			afterShas[pp.after] = true
		}
	}
	before, err := fetch(ctx, from, beforeShas)
	if err != nil {
		return nil, err
	}
	after, err := fetch(ctx, to, afterShas)
	if err != nil {
		return nil, err
	}

	out := make([]pathDiff, 0, len(order))
	for _, path := range order {
		pp := pairs[path]
		d := pathDiff{path: path, marker: "~"}
		switch {
		case pp.before == "":
			d.marker = "+"
		case pp.after == "":
			d.marker = "-"
		}
		if strings.HasSuffix(path, ".json") {
			if fd, err := diff.DiffFiles(path, before[pp.before], after[pp.after]); err == nil {
				d.file = fd
			}
		}
		out = append(out, d)
	}
	return out, nil
}

func fetch(ctx context.Context, src source.Source, want map[object.Hash]bool) (map[object.Hash][]byte, error) {
	out := make(map[object.Hash][]byte, len(want))
	if len(want) == 0 {
		return out, nil
	}
	shas := make([]object.Hash, 0, len(want))
	for sha := range want {
		shas = append(shas, sha)
	}
	blobs, err := src.GetBlobs(ctx, shas)
	if err != nil {
		return nil, err
	}
	for _, b := range blobs {
		out[b.Sha] = b.Data
	}
	return out, nil
}

func underAny(path string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		p = strings.Trim(p, "/")
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
