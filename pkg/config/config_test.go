package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sampleTOML = `
content_dir = "content"
ignore = ["**/.DS_Store"]
remote = "http://localhost:7373"

[[workspaces]]
name = "main"

  [[workspaces.roots]]
  name = "pages"
  i18n = ["en", "DE"]

  [[workspaces.roots]]
  name = "media"

[[types]]
name = "Page"

  [[types.fields]]
  name = "body"
  kind = "markdown"
  searchable = true
`

const sampleYAML = `
content_dir: content
ignore: ["**/.DS_Store"]
remote: http://localhost:7373
workspaces:
  - name: main
    roots:
      - name: pages
        i18n: [en, DE]
      - name: media
types:
  - name: Page
    fields:
      - name: body
        kind: markdown
        searchable: true
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadTOMLAndYAMLAgree(t *testing.T) {
	fromTOML, err := Load(writeFile(t, "folio.toml", sampleTOML))
	if err != nil {
		t.Fatalf("Load toml: %v", err)
	}
	fromYAML, err := Load(writeFile(t, "folio.yaml", sampleYAML))
	if err != nil {
		t.Fatalf("Load yaml: %v", err)
	}
	a, b := *fromTOML, *fromYAML
	a.path, b.path = "", ""
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("toml and yaml disagree:\n%+v\n%+v", a, b)
	}

	s, err := fromTOML.Schema()
	if err != nil {
		t.Fatal(err)
	}
	root, ok := s.Root("main", "pages")
	if !ok || !root.HasLocale("de") {
		t.Fatalf("pages root = %+v", root)
	}
	if got := fromTOML.ContentPath(); got != filepath.Join(filepath.Dir(fromTOML.Path()), "content") {
		t.Fatalf("ContentPath = %s", got)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := map[string]string{
		"unknown key":   "content_dir = \"c\"\nbogus = 1\n[[workspaces]]\nname = \"main\"\n",
		"no content":    "[[workspaces]]\nname = \"main\"\n",
		"reserved":      "content_dir = \"c\"\n[[workspaces]]\nname = \"main\"\n[[types]]\nname = \"Page\"\n[[types.fields]]\nname = \"id\"\n",
		"bad remote":    "content_dir = \"c\"\nremote = \"ftp://x\"\n[[workspaces]]\nname = \"main\"\n",
		"no workspaces": "content_dir = \"c\"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, "folio.toml", body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	for _, name := range []string{"folio.toml", "folio.yml"} {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), name)
			if err := Write(p, Default()); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got, err := Load(p)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			want := Default()
			got.path = ""
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("round trip mismatch:\n%+v\n%+v", got, want)
			}
			entries, _ := os.ReadDir(filepath.Dir(p))
			for _, e := range entries {
				if strings.HasPrefix(e.Name(), ".config-tmp-") {
					t.Fatalf("temp file left behind: %s", e.Name())
				}
			}
		})
	}
}
