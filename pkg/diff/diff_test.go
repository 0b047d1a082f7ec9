package diff

import (
	"strings"
	"testing"
)

// --- Entry files used across tests ---

const pageBase = `{
  "id": "home",
  "type": "Page",
  "title": "Home",
  "body": "# Welcome\nFirst line\nSecond line\n",
  "tags": ["a"],
  "alinea": {"index": "a0"}
}`

const pageEdited = `{
  "id": "home",
  "type": "Page",
  "title": "Start",
  "body": "# Welcome\nFirst line\nChanged line\n",
  "summary": "short",
  "alinea": {"index": "a0"}
}`

func TestDiffFilesFieldChanges(t *testing.T) {
	d, err := DiffFiles("main/pages/home.json", []byte(pageBase), []byte(pageEdited))
	if err != nil {
		t.Fatalf("DiffFiles: %v", err)
	}
	if got, want := describe(d.Changes), "~title ~body +summary -tags"; got != want {
		t.Fatalf("changes = %q, want %q", got, want)
	}
}

func TestDiffFilesUnchanged(t *testing.T) {
	// Key order and whitespace do not matter.
	reordered := `{"alinea": {"index": "a0"}, "tags": ["a"], "body": "# Welcome\nFirst line\nSecond line\n", "title": "Home", "type": "Page", "id": "home"}`
	d, err := DiffFiles("p.json", []byte(pageBase), []byte(reordered))
	if err != nil {
		t.Fatalf("DiffFiles: %v", err)
	}
	if len(d.Changes) != 0 {
		t.Fatalf("changes = %q, want none", describe(d.Changes))
	}
}

func TestDiffFilesNewAndDeletedFile(t *testing.T) {
	d, err := DiffFiles("p.json", nil, []byte(pageBase))
	if err != nil {
		t.Fatalf("DiffFiles: %v", err)
	}
	if got, want := describe(d.Changes), "+id +type +title +alinea.index +body +tags"; got != want {
		t.Fatalf("new file changes = %q, want %q", got, want)
	}
	d, err = DiffFiles("p.json", []byte(pageBase), nil)
	if err != nil {
		t.Fatalf("DiffFiles: %v", err)
	}
	for _, c := range d.Changes {
		if c.Type != Removed {
			t.Fatalf("deleted file change %q is not a removal", c.Key)
		}
	}
}

func TestDiffFilesRejectsCorruptEntry(t *testing.T) {
	if _, err := DiffFiles("p.json", []byte(`{"id": "x"}`), []byte(pageBase)); err == nil {
		t.Fatal("entry without a type accepted")
	}
}

func TestFormatFieldDiff(t *testing.T) {
	d, err := DiffFiles("main/pages/home.json", []byte(pageBase), []byte(pageEdited))
	if err != nil {
		t.Fatal(err)
	}
	out := FormatFieldDiff(d)
	for _, want := range []string{"main/pages/home.json:\n", "~ title", "(modified)", "+ summary", "(added)", "- tags", "(removed)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
	if FormatFieldDiff(&FileDiff{Path: "x"}) != "" {
		t.Fatal("empty diff should format to nothing")
	}
}

func TestFormatLineDiff(t *testing.T) {
	d, err := DiffFiles("home.json", []byte(pageBase), []byte(pageEdited))
	if err != nil {
		t.Fatal(err)
	}
	out := FormatLineDiff(d)
	for _, want := range []string{
		"--- a/home.json::body\n+++ b/home.json::body\n # Welcome\n First line\n-Second line\n+Changed line\n",
		"-Home\n+Start\n",
		"+++ b/home.json::summary\n+short\n",
		"--- a/home.json::tags\n-[\n-  \"a\"\n-]\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("line diff missing %q:\n%s", want, out)
		}
	}
}

func TestMyers(t *testing.T) {
	tests := []struct {
		a, b string
		want string
	}{
		{"", "", ""},
		{"", "x\ny\n", "+x +y"},
		{"x\ny\n", "", "-x -y"},
		{"a\nb\nc\n", "a\nb\nc\n", "=a =b =c"},
		{"a\nb\nc\n", "a\nc\nd\n", "=a -b =c +d"},
		{"a\nb\n", "b\na\n", "-a =b +a"},
	}
	for _, tt := range tests {
		var parts []string
		for _, l := range LineDiff(tt.a, tt.b) {
			parts = append(parts, string("=+-"[l.Type])+l.Content)
		}
		if got := strings.Join(parts, " "); got != tt.want {
			t.Errorf("LineDiff(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}

func describe(changes []FieldChange) string {
	parts := make([]string, len(changes))
	for i, c := range changes {
		parts[i] = string("+-~"[c.Type]) + c.Key
	}
	return strings.Join(parts, " ")
}
