package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/jsonc"

	"github.com/odvcencio/folio/pkg/query"
)

type queryFlags struct {
	file      string
	types     []string
	search    string
	status    string
	locale    string
	workspace string
	root      string
	glob      string
	from      string
	edge      string
	take      int
	count     bool
	first     bool
	asJSON    bool
}

func newQueryCmd(g *globalFlags) *cobra.Command {
	var qf queryFlags
	cmd := &cobra.Command{
		Use:   "query [JSON]",
		Short: "Query entries",
		Long: `Query entries. The query is a JSON document (comments allowed), given as
the argument or read from --file ("-" for stdin); flags set or override
its fields. Results print as a table unless the query selects, counts or
--json is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q, err := buildQuery(cmd, &qf, args)
			if err != nil {
				return err
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

			out := cmd.OutOrStdout()
			if qf.asJSON || q.Count || q.First || len(q.Select) > 0 {
				res, err := d.Resolve(ctx, q)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			rows, err := d.Rows(ctx, q)
			if err != nil {
				return err
			}
			printRows(out, rows)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&qf.file, "file", "f", "", `read the query from a file ("-" for stdin)`)
	f.StringSliceVarP(&qf.types, "type", "t", nil, "entry types")
	f.StringVarP(&qf.search, "search", "s", "", "full-text search terms")
	f.StringVar(&qf.status, "status", "", "published, draft, archived, preferPublished, preferDraft or all")
	f.StringVar(&qf.locale, "locale", "", "locale")
	f.StringVar(&qf.workspace, "workspace", "", "workspace")
	f.StringVar(&qf.root, "root", "", "root")
	f.StringVar(&qf.glob, "path", "", "file path glob, e.g. main/pages/**/*.json")
	f.StringVar(&qf.from, "from", "", "source entry id for --edge")
	f.StringVar(&qf.edge, "edge", "", "children, parent, parents, siblings, next, previous or translations")
	f.IntVar(&qf.take, "take", 0, "maximum number of results")
	f.BoolVar(&qf.count, "count", false, "print the number of matches")
	f.BoolVar(&qf.first, "first", false, "print only the first match")
	f.BoolVar(&qf.asJSON, "json", false, "print results as JSON")
	return cmd
}

func buildQuery(cmd *cobra.Command, qf *queryFlags, args []string) (*query.Query, error) {
	var raw []byte
	switch {
	case len(args) > 0 && qf.file != "":
		return nil, fmt.Errorf("pass the query as an argument or --file, not both")
	case len(args) > 0:
		raw = []byte(args[0])
	case qf.file == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read query: %w", err)
		}
		raw = data
	case qf.file != "":
		data, err := os.ReadFile(qf.file)
		if err != nil {
			return nil, fmt.Errorf("read query: %w", err)
		}
		raw = data
	}

	q := &query.Query{}
	if strings.TrimSpace(string(raw)) != "" {
		decoded, err := query.Decode(jsonc.ToJSON(raw))
		if err != nil {
			return nil, err
		}
		q = decoded
	}

	flags := cmd.Flags()
	if flags.Changed("type") {
		q.Type = qf.types
	}
	if qf.search != "" {
		q.Search = strings.Fields(qf.search)
	}
	if qf.status != "" {
		q.Status = qf.status
	}
	if flags.Changed("locale") {
		q.Locale = query.Locale(qf.locale)
	}
	if qf.workspace != "" {
		q.Workspace = qf.workspace
	}
	if qf.root != "" {
		q.Root = qf.root
	}
	if qf.glob != "" {
		q.PathGlob = qf.glob
	}
	if qf.from != "" {
		q.From = qf.from
	}
	if qf.edge != "" {
		q.Edge = &query.Edge{Kind: query.EdgeKind(qf.edge)}
	}
	if qf.take > 0 {
		q.Take = qf.take
	}
	if qf.count {
		q.Count = true
	}
	if qf.first {
		q.First = true
	}
	return q, nil
}
