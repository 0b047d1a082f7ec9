// Package config loads project configuration from folio.toml or a YAML
// equivalent.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/odvcencio/folio/pkg/schema"
)

// DefaultFile is the config file name looked up by the CLI.
const DefaultFile = "folio.toml"

// Config is the on-disk project configuration.
type Config struct {
	ContentDir string      `toml:"content_dir" yaml:"content_dir"`
	Ignore     []string    `toml:"ignore,omitempty" yaml:"ignore,omitempty"`
	Remote     string      `toml:"remote,omitempty" yaml:"remote,omitempty"`
	Workspaces []Workspace `toml:"workspaces" yaml:"workspaces"`
	Types      []Type      `toml:"types" yaml:"types"`

	// path is the file the config was loaded from.
	path string
}

type Workspace struct {
	Name  string `toml:"name" yaml:"name"`
	Roots []Root `toml:"roots" yaml:"roots"`
}

type Root struct {
	Name string   `toml:"name" yaml:"name"`
	I18n []string `toml:"i18n,omitempty" yaml:"i18n,omitempty"`
}

type Type struct {
	Name   string  `toml:"name" yaml:"name"`
	Fields []Field `toml:"fields,omitempty" yaml:"fields,omitempty"`
}

type Field struct {
	Name       string `toml:"name" yaml:"name"`
	Kind       string `toml:"kind,omitempty" yaml:"kind,omitempty"`
	Searchable bool   `toml:"searchable,omitempty" yaml:"searchable,omitempty"`
}

// Load reads and validates the config at path. The format follows the file
// extension: .yaml and .yml are YAML, anything else TOML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if isYAML(path) {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("read config %s: unknown key %q", path, undecoded[0].String())
		}
	}
	cfg.path = path
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return &cfg, nil
}

// Write atomically writes cfg to path in the format its extension selects.
func Write(path string, cfg *Config) error {
	var buf bytes.Buffer
	if isYAML(path) {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("write config: marshal: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("write config: marshal: %w", err)
		}
	} else if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}

// Default returns the config `folio init` writes.
func Default() *Config {
	return &Config{
		ContentDir: "content",
		Ignore:     []string{"**/.DS_Store", "**/*.swp"},
		Workspaces: []Workspace{{
			Name:  "main",
			Roots: []Root{{Name: "pages"}},
		}},
		Types: []Type{{
			Name: "Page",
			Fields: []Field{
				{Name: "body", Kind: string(schema.KindMarkdown), Searchable: true},
			},
		}},
	}
}

// Validate checks the config without building a schema.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ContentDir) == "" {
		return errors.New("content_dir is required")
	}
	for _, pattern := range c.Ignore {
		if pattern == "" {
			return errors.New("ignore: empty pattern")
		}
	}
	if c.Remote != "" && !strings.HasPrefix(c.Remote, "http://") && !strings.HasPrefix(c.Remote, "https://") {
		return fmt.Errorf("remote %q: only http(s) remotes are supported", c.Remote)
	}
	_, err := c.Schema()
	return err
}

// Schema builds the registry described by the config.
func (c *Config) Schema() (*schema.Schema, error) {
	types := make([]*schema.Type, 0, len(c.Types))
	for _, t := range c.Types {
		st := &schema.Type{Name: t.Name}
		for _, f := range t.Fields {
			st.Fields = append(st.Fields, schema.Field{Name: f.Name, Kind: schema.FieldKind(f.Kind), Searchable: f.Searchable})
		}
		types = append(types, st)
	}
	workspaces := make([]*schema.Workspace, 0, len(c.Workspaces))
	for _, ws := range c.Workspaces {
		sw := &schema.Workspace{Name: ws.Name}
		for _, r := range ws.Roots {
			sw.Roots = append(sw.Roots, &schema.Root{Name: r.Name, Locales: append([]string(nil), r.I18n...)})
		}
		workspaces = append(workspaces, sw)
	}
	return schema.New(types, workspaces)
}

// ContentPath resolves ContentDir relative to the config file's directory.
func (c *Config) ContentPath() string {
	return c.resolve(c.ContentDir)
}

// StateDir is the directory for local caches next to the config file.
func (c *Config) StateDir() string {
	return c.resolve(".folio")
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string { return c.path }

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.path), p)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
