// Package entry defines the on-disk entry record, its location rules and the
// small value types shared by the graph, query and transaction layers.
package entry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/tidwall/jsonc"

	"github.com/odvcencio/folio/pkg/object"
)

// MetaKey is the reserved record key holding Meta.
const MetaKey = "alinea"

// Meta is the bookkeeping stored alongside the content of a record.
type Meta struct {
	Index  string `json:"index"`
	Parent string `json:"parent,omitempty"`
	Locale string `json:"locale,omitempty"`
}

// Record is one decoded entry file.
type Record struct {
	ID    string
	Type  string
	Title string
	// Path is the url segment the entry wants. It can differ from the file
	// location while a renamed draft awaits publishing; empty means "the
	// file name".
	Path string
	Data map[string]any
	Meta Meta
}

// Decode parses an entry file. Comments and trailing commas are tolerated.
// Failures are *object.CorruptDataError values.
func Decode(data []byte) (*Record, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, corrupt(err)
	}
	rec := &Record{Data: make(map[string]any)}
	for key, value := range raw {
		var err error
		switch key {
		case "id":
			err = json.Unmarshal(value, &rec.ID)
		case "type":
			err = json.Unmarshal(value, &rec.Type)
		case "title":
			err = json.Unmarshal(value, &rec.Title)
		case "path":
			err = json.Unmarshal(value, &rec.Path)
		case MetaKey:
			err = json.Unmarshal(value, &rec.Meta)
		default:
			var v any
			err = json.Unmarshal(value, &v)
			rec.Data[key] = v
		}
		if err != nil {
			return nil, corrupt(fmt.Errorf("field %q: %w", key, err))
		}
	}
	switch {
	case rec.ID == "":
		return nil, corrupt(errors.New("missing id"))
	case rec.Type == "":
		return nil, corrupt(errors.New("missing type"))
	case rec.Meta.Index == "":
		return nil, corrupt(fmt.Errorf("missing %s.index", MetaKey))
	}
	if err := ValidateKey(rec.Meta.Index); err != nil {
		return nil, corrupt(err)
	}
	return rec, nil
}

// Encode renders r deterministically: fixed keys first, data keys sorted,
// metadata last, two-space indented with a trailing newline. Equal records
// always produce equal blobs.
func (r *Record) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, v any) error {
		enc, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %q: %w", key, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(enc)
		return nil
	}
	if err := write("id", r.ID); err != nil {
		return nil, err
	}
	if err := write("type", r.Type); err != nil {
		return nil, err
	}
	if err := write("title", r.Title); err != nil {
		return nil, err
	}
	if r.Path != "" {
		if err := write("path", r.Path); err != nil {
			return nil, err
		}
	}
	keys := make([]string, 0, len(r.Data))
	for k := range r.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch k {
		case "id", "type", "title", "path", MetaKey:
			return nil, fmt.Errorf("encode: data key %q is reserved", k)
		}
		if err := write(k, r.Data[k]); err != nil {
			return nil, err
		}
	}
	if err := write(MetaKey, r.Meta); err != nil {
		return nil, err
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	c := *r
	c.Data = cloneValue(r.Data).(map[string]any)
	return &c
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

func corrupt(err error) error {
	return &object.CorruptDataError{What: "entry", Err: err}
}
