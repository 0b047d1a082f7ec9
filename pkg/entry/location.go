package entry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/folio/pkg/schema"
)

var (
	ErrInvalidWorkspace = errors.New("invalid workspace")
	ErrInvalidRoot      = errors.New("invalid root")
	ErrInvalidLocale    = errors.New("invalid locale")
	ErrInvalidPath      = errors.New("invalid entry path")
)

// PathError reports a file path or location that does not fit the schema.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %q", e.Err, e.Path)
}

func (e *PathError) Unwrap() error { return e.Err }

const fileExt = ".json"

// Location is where one entry revision lives. File paths have the form
//
//	workspace/root[/locale]/ancestor.../path[.draft|.archived].json
//
// and the children of an entry live in the directory named after its file
// without the phase suffix and extension.
type Location struct {
	Workspace   string
	Root        string
	Locale      string
	ParentPaths []string
	Path        string
	Status      Status
}

// ParentDir is the directory holding the file.
func (l Location) ParentDir() string {
	segs := []string{l.Workspace, l.Root}
	if l.Locale != "" {
		segs = append(segs, l.Locale)
	}
	segs = append(segs, l.ParentPaths...)
	return strings.Join(segs, "/")
}

// FilePath is the full slash separated file path.
func (l Location) FilePath() string {
	return l.ParentDir() + "/" + l.Path + l.Status.Suffix() + fileExt
}

// ChildrenDir is the directory holding the files of child entries.
func (l Location) ChildrenDir() string {
	return l.ParentDir() + "/" + l.Path
}

// ChildPaths returns the ancestor paths a direct child of l carries.
func (l Location) ChildPaths() []string {
	out := make([]string, 0, len(l.ParentPaths)+1)
	out = append(out, l.ParentPaths...)
	return append(out, l.Path)
}

// URL is the public address of the entry. A top-level "index" entry is the
// root of its locale.
func (l Location) URL() string {
	var segs []string
	if l.Locale != "" {
		segs = append(segs, l.Locale)
	}
	segs = append(segs, l.ParentPaths...)
	if !(len(l.ParentPaths) == 0 && l.Path == "index") {
		segs = append(segs, l.Path)
	}
	return "/" + strings.Join(segs, "/")
}

// Validate checks l against s: the workspace and root must exist and the
// locale must be present exactly when the root is localized.
func (l Location) Validate(s *schema.Schema) error {
	ws, ok := s.Workspace(l.Workspace)
	if !ok {
		return &PathError{Path: l.Workspace, Err: ErrInvalidWorkspace}
	}
	root, ok := ws.Root(l.Root)
	if !ok {
		return &PathError{Path: l.Workspace + "/" + l.Root, Err: ErrInvalidRoot}
	}
	if err := checkLocale(root, l.Locale); err != nil {
		return err
	}
	for _, p := range l.ParentPaths {
		if err := ValidatePathSegment(p); err != nil {
			return err
		}
	}
	if err := ValidatePathSegment(l.Path); err != nil {
		return err
	}
	if _, err := ParseStatus(string(l.Status)); err != nil {
		return &PathError{Path: l.FilePath(), Err: fmt.Errorf("%w: %v", ErrInvalidPath, err)}
	}
	return nil
}

func checkLocale(root *schema.Root, locale string) error {
	switch {
	case root.I18n() && locale == "":
		return &PathError{Path: root.Name, Err: fmt.Errorf("%w: root %q requires a locale", ErrInvalidLocale, root.Name)}
	case !root.I18n() && locale != "":
		return &PathError{Path: locale, Err: fmt.Errorf("%w: root %q is not localized", ErrInvalidLocale, root.Name)}
	case root.I18n() && (!root.HasLocale(locale) || locale != strings.ToLower(locale)):
		return &PathError{Path: locale, Err: fmt.Errorf("%w: root %q does not declare %q", ErrInvalidLocale, root.Name, locale)}
	}
	return nil
}

// NormalizeLocale lower-cases a locale; locales are stored lower case.
func NormalizeLocale(locale string) string {
	return strings.ToLower(strings.TrimSpace(locale))
}

// ValidatePathSegment checks one url segment of an entry.
func ValidatePathSegment(p string) error {
	switch {
	case p == "", strings.ContainsAny(p, "/\\\x00"), strings.HasPrefix(p, "."):
		return &PathError{Path: p, Err: ErrInvalidPath}
	case strings.HasSuffix(p, Draft.Suffix()), strings.HasSuffix(p, Archived.Suffix()):
		return &PathError{Path: p, Err: fmt.Errorf("%w: segment ends in a phase suffix", ErrInvalidPath)}
	}
	return nil
}

// ParseFilePath is the inverse of Location.FilePath.
func ParseFilePath(s *schema.Schema, p string) (Location, error) {
	if !strings.HasSuffix(p, fileExt) {
		return Location{}, &PathError{Path: p, Err: fmt.Errorf("%w: not a %s file", ErrInvalidPath, fileExt)}
	}
	segs := strings.Split(p, "/")
	if len(segs) < 3 {
		return Location{}, &PathError{Path: p, Err: ErrInvalidPath}
	}
	ws, ok := s.Workspace(segs[0])
	if !ok {
		return Location{}, &PathError{Path: p, Err: ErrInvalidWorkspace}
	}
	root, ok := ws.Root(segs[1])
	if !ok {
		return Location{}, &PathError{Path: p, Err: ErrInvalidRoot}
	}
	loc := Location{Workspace: ws.Name, Root: root.Name}
	rest := segs[2:]
	if root.I18n() {
		if len(rest) < 2 {
			return Location{}, &PathError{Path: p, Err: fmt.Errorf("%w: root %q requires a locale directory", ErrInvalidLocale, root.Name)}
		}
		if !root.HasLocale(rest[0]) || rest[0] != strings.ToLower(rest[0]) {
			return Location{}, &PathError{Path: p, Err: fmt.Errorf("%w: %q", ErrInvalidLocale, rest[0])}
		}
		loc.Locale = rest[0]
		rest = rest[1:]
	}

	name := strings.TrimSuffix(rest[len(rest)-1], fileExt)
	loc.Status = Published
	for _, st := range []Status{Draft, Archived} {
		if strings.HasSuffix(name, st.Suffix()) {
			loc.Status = st
			name = strings.TrimSuffix(name, st.Suffix())
			break
		}
	}
	loc.Path = name
	if len(rest) > 1 {
		loc.ParentPaths = append([]string(nil), rest[:len(rest)-1]...)
	}
	for _, seg := range loc.ChildPaths() {
		if err := ValidatePathSegment(seg); err != nil {
			return Location{}, &PathError{Path: p, Err: ErrInvalidPath}
		}
	}
	return loc, nil
}
