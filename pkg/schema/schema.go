// Package schema is the registry of content types, workspaces and roots an
// entry graph is interpreted against.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

// FieldKind is the shape of one field value.
type FieldKind string

const (
	KindText      FieldKind = "text"
	KindMarkdown  FieldKind = "markdown"
	KindNumber    FieldKind = "number"
	KindBoolean   FieldKind = "boolean"
	KindReference FieldKind = "reference"
	KindList      FieldKind = "list"
	KindObject    FieldKind = "object"
	KindPath      FieldKind = "path"
)

func (k FieldKind) valid() bool {
	switch k {
	case KindText, KindMarkdown, KindNumber, KindBoolean, KindReference, KindList, KindObject, KindPath:
		return true
	}
	return false
}

// Reserved names cannot be declared as fields: they are stored at the top of
// every entry record.
var Reserved = []string{"id", "type", "title", "path", "alinea"}

// Field is one declared data field of a type.
type Field struct {
	Name       string
	Kind       FieldKind
	Searchable bool
}

// Type is a named document shape.
type Type struct {
	Name   string
	Fields []Field

	byName map[string]int
}

// Field looks up a declared field.
func (t *Type) Field(name string) (Field, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Field{}, false
	}
	return t.Fields[i], true
}

// Root is a top-level content tree inside a workspace. A root with locales
// stores every entry under a locale directory; one without stores none.
type Root struct {
	Name    string
	Locales []string
}

// I18n reports whether the root is localized.
func (r *Root) I18n() bool { return len(r.Locales) > 0 }

// HasLocale reports whether locale is declared, ignoring case.
func (r *Root) HasLocale(locale string) bool {
	for _, l := range r.Locales {
		if strings.EqualFold(l, locale) {
			return true
		}
	}
	return false
}

// Workspace groups roots.
type Workspace struct {
	Name  string
	Roots []*Root
}

// Root looks up a root by name.
func (w *Workspace) Root(name string) (*Root, bool) {
	for _, r := range w.Roots {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// Schema is immutable once built with New.
type Schema struct {
	types      []*Type
	byType     map[string]*Type
	workspaces []*Workspace
}

// New validates and indexes types and workspaces. Locales are stored in
// lower case.
func New(types []*Type, workspaces []*Workspace) (*Schema, error) {
	s := &Schema{byType: make(map[string]*Type, len(types))}
	reserved := make(map[string]struct{}, len(Reserved))
	for _, r := range Reserved {
		reserved[r] = struct{}{}
	}
	for _, t := range types {
		if t == nil || t.Name == "" {
			return nil, errors.New("schema: type name is required")
		}
		if _, dup := s.byType[t.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate type %q", t.Name)
		}
		t.byName = make(map[string]int, len(t.Fields))
		for i, f := range t.Fields {
			if f.Name == "" {
				return nil, fmt.Errorf("schema: type %q: field name is required", t.Name)
			}
			if _, ok := reserved[f.Name]; ok {
				return nil, fmt.Errorf("schema: type %q: field %q is reserved", t.Name, f.Name)
			}
			if _, dup := t.byName[f.Name]; dup {
				return nil, fmt.Errorf("schema: type %q: duplicate field %q", t.Name, f.Name)
			}
			if f.Kind == "" {
				t.Fields[i].Kind = KindText
			} else if !f.Kind.valid() {
				return nil, fmt.Errorf("schema: type %q: field %q has unknown kind %q", t.Name, f.Name, f.Kind)
			}
			t.byName[f.Name] = i
		}
		s.byType[t.Name] = t
		s.types = append(s.types, t)
	}

	seenWS := make(map[string]struct{}, len(workspaces))
	for _, ws := range workspaces {
		if ws == nil || ws.Name == "" || strings.Contains(ws.Name, "/") {
			return nil, errors.New("schema: workspace name is required and may not contain '/'")
		}
		if _, dup := seenWS[ws.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate workspace %q", ws.Name)
		}
		seenWS[ws.Name] = struct{}{}
		seenRoot := make(map[string]struct{}, len(ws.Roots))
		for _, r := range ws.Roots {
			if r == nil || r.Name == "" || strings.Contains(r.Name, "/") {
				return nil, fmt.Errorf("schema: workspace %q: root name is required and may not contain '/'", ws.Name)
			}
			if _, dup := seenRoot[r.Name]; dup {
				return nil, fmt.Errorf("schema: workspace %q: duplicate root %q", ws.Name, r.Name)
			}
			seenRoot[r.Name] = struct{}{}
			seenLocale := make(map[string]struct{}, len(r.Locales))
			for i, l := range r.Locales {
				l = strings.ToLower(strings.TrimSpace(l))
				if l == "" || strings.Contains(l, "/") {
					return nil, fmt.Errorf("schema: root %s/%s: invalid locale %q", ws.Name, r.Name, r.Locales[i])
				}
				if _, dup := seenLocale[l]; dup {
					return nil, fmt.Errorf("schema: root %s/%s: duplicate locale %q", ws.Name, r.Name, l)
				}
				seenLocale[l] = struct{}{}
				r.Locales[i] = l
			}
		}
		s.workspaces = append(s.workspaces, ws)
	}
	if len(s.workspaces) == 0 {
		return nil, errors.New("schema: at least one workspace is required")
	}
	return s, nil
}

// TypeOf looks up a type by name.
func (s *Schema) TypeOf(name string) (*Type, bool) {
	t, ok := s.byType[name]
	return t, ok
}

// Types returns every type in declaration order.
func (s *Schema) Types() []*Type { return s.types }

// Workspaces returns every workspace in declaration order.
func (s *Schema) Workspaces() []*Workspace { return s.workspaces }

// Workspace looks up a workspace by name.
func (s *Schema) Workspace(name string) (*Workspace, bool) {
	for _, ws := range s.workspaces {
		if ws.Name == name {
			return ws, true
		}
	}
	return nil, false
}

// Root looks up a root by workspace and root name.
func (s *Schema) Root(workspace, root string) (*Root, bool) {
	ws, ok := s.Workspace(workspace)
	if !ok {
		return nil, false
	}
	return ws.Root(root)
}

// Builtin names the attributes every entry has regardless of its type.
var Builtin = map[string]struct{}{
	"title": {}, "path": {},
	"_id": {}, "_type": {}, "_index": {}, "_i18nId": {}, "_locale": {}, "_status": {}, "_phase": {},
	"_workspace": {}, "_root": {}, "_parent": {}, "_path": {}, "_url": {}, "_filePath": {},
	"_active": {}, "_main": {}, "_level": {}, "_fileHash": {}, "_rowHash": {}, "_effectiveStatus": {},
}

// HasField reports whether name is readable on entries of typeName. An empty
// typeName accepts builtins and any field declared by some type.
func (s *Schema) HasField(typeName, name string) bool {
	if _, ok := Builtin[name]; ok {
		return true
	}
	if typeName == "" {
		for _, t := range s.types {
			if _, ok := t.byName[name]; ok {
				return true
			}
		}
		return false
	}
	t, ok := s.byType[typeName]
	if !ok {
		return false
	}
	_, ok = t.byName[name]
	return ok
}

// CheckData fails with an *Error for any key of data the type does not
// declare.
func (s *Schema) CheckData(typeName string, data map[string]any) error {
	t, ok := s.byType[typeName]
	if !ok {
		return &Error{Type: typeName}
	}
	for k := range data {
		if _, ok := t.byName[k]; !ok {
			return &Error{Type: typeName, Field: k}
		}
	}
	return nil
}

// ErrUnknown matches every *Error.
var ErrUnknown = errors.New("unknown schema element")

// Error reports a reference to a type or field the schema does not declare.
type Error struct {
	Type  string
	Field string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema: unknown type %q", e.Type)
	}
	if e.Type == "" {
		return fmt.Sprintf("schema: unknown field %q", e.Field)
	}
	return fmt.Sprintf("schema: type %q has no field %q", e.Type, e.Field)
}

func (e *Error) Is(target error) bool {
	return target == ErrUnknown
}
