package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/jsonc"

	"github.com/odvcencio/folio/pkg/config"
	"github.com/odvcencio/folio/pkg/db"
	"github.com/odvcencio/folio/pkg/remote"
	"github.com/odvcencio/folio/pkg/schema"
	"github.com/odvcencio/folio/pkg/source"
)

var configNames = []string{config.DefaultFile, "folio.yaml", "folio.yml"}

// project is an opened folio.toml with its content directory.
type project struct {
	cfg    *config.Config
	schema *schema.Schema
	fs     *source.FS
	client *remote.Client
	logger *slog.Logger
}

func newLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// findConfig returns path, or the first config file in the working
// directory.
func findConfig(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	for _, name := range configNames {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("no %s found in the working directory; run folio init", config.DefaultFile)
}

func openProject(cmd *cobra.Command, g *globalFlags) (*project, error) {
	path, err := findConfig(g.config)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	s, err := cfg.Schema()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd, g.verbose)
	fs, err := source.NewFS(cfg.ContentPath(), source.FSOptions{
		Ignore:    cfg.Ignore,
		CachePath: filepath.Join(cfg.StateDir(), "hashcache"),
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	p := &project{cfg: cfg, schema: s, fs: fs, logger: logger}
	if cfg.Remote != "" && !g.offline {
		if p.client, err = remote.NewClient(cfg.Remote); err != nil {
			return nil, fmt.Errorf("remote: %w", err)
		}
	}
	return p, nil
}

// openDB indexes the content directory. Writes go through the remote
// first when one is configured.
func (p *project) openDB(ctx context.Context) (*db.DB, error) {
	opts := db.Options{Logger: p.logger}
	if p.client != nil {
		opts.Remote = p.client
	}
	return db.Open(ctx, p.schema, p.fs, opts)
}

func (p *project) requireRemote() error {
	if p.client == nil {
		return errors.New("no remote configured; set remote in the config file")
	}
	return nil
}

// parseData merges a JSON object (comments and trailing commas allowed)
// with key=value assignments. Values that parse as JSON keep their type;
// anything else is a string.
func parseData(raw string, sets []string) (map[string]any, error) {
	data := map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal(jsonc.ToJSON([]byte(raw)), &data); err != nil {
			return nil, fmt.Errorf("--data: %w", err)
		}
	}
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("--set %q: want key=value", s)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		data[key] = v
	}
	return data, nil
}
