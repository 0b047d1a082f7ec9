package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/odvcencio/folio/pkg/config"
	"github.com/odvcencio/folio/pkg/remote"
)

func newInitCmd() *cobra.Command {
	var (
		format    string
		remoteURL string
	)
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create a folio project with a default config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			var name string
			switch format {
			case "toml":
				name = config.DefaultFile
			case "yaml":
				name = "folio.yaml"
			default:
				return fmt.Errorf("unknown format %q (want toml or yaml)", format)
			}
			for _, existing := range configNames {
				if _, err := os.Stat(filepath.Join(abs, existing)); err == nil {
					return fmt.Errorf("%s already exists", filepath.Join(abs, existing))
				} else if !errors.Is(err, os.ErrNotExist) {
					return err
				}
			}

			cfg := config.Default()
			if remoteURL != "" {
				if _, err := remote.ParseEndpoint(remoteURL); err != nil {
					return err
				}
				cfg.Remote = remoteURL
			}
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}
			file := filepath.Join(abs, name)
			if err := config.Write(file, cfg); err != nil {
				return err
			}
			cfg, err = config.Load(file)
			if err != nil {
				return err
			}
			for _, dir := range []string{cfg.ContentPath(), cfg.StateDir()} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create directory: %w", err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "initialized folio project in %s\n", abs)
			fmt.Fprintf(cmd.OutOrStdout(), "  config:  %s\n  content: %s\n", file, cfg.ContentPath())
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "toml", "config format: toml or yaml")
	cmd.Flags().StringVar(&remoteURL, "remote", "", "remote server URL")
	return cmd
}
