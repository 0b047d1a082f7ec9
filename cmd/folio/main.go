package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), err)
		os.Exit(1)
	}
}

// globalFlags are the persistent flags every command reads.
type globalFlags struct {
	config  string
	verbose bool
	offline bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "folio",
		Short:         "Structured content stored as git-addressed JSON files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.config, "config", "c", "", "config file (default: folio.toml, folio.yaml or folio.yml in the working directory)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log debug output to stderr")
	root.PersistentFlags().BoolVar(&g.offline, "offline", false, "ignore the configured remote")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newStatusCmd(g))
	root.AddCommand(newCreateCmd(g))
	root.AddCommand(newUpdateCmd(g))
	root.AddCommand(newMoveCmd(g))
	root.AddCommand(newPublishCmd(g))
	root.AddCommand(newUnpublishCmd(g))
	root.AddCommand(newArchiveCmd(g))
	root.AddCommand(newDeleteCmd(g))
	root.AddCommand(newQueryCmd(g))
	root.AddCommand(newPullCmd(g))
	root.AddCommand(newPushCmd(g))
	root.AddCommand(newDiffCmd(g))
	root.AddCommand(newServeCmd(g))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "folio 0.1.0-dev")
		},
	}
}
