package query

import (
	"fmt"
	"sort"
	"strings"
)

// Kind tags the variant an Expr holds.
type Kind string

const (
	KindField  Kind = "field"
	KindValue  Kind = "value"
	KindUnary  Kind = "unary"
	KindBinary Kind = "binary"
	KindRecord Kind = "record"
)

// Op is a unary or binary operator.
type Op string

const (
	OpNot    Op = "not"
	OpIsNull Op = "isNull"

	OpEq         Op = "eq"
	OpNe         Op = "ne"
	OpLt         Op = "lt"
	OpLe         Op = "le"
	OpGt         Op = "gt"
	OpGe         Op = "ge"
	OpAnd        Op = "and"
	OpOr         Op = "or"
	OpIn         Op = "in"
	OpContains   Op = "contains"
	OpStartsWith Op = "startsWith"
)

func (op Op) unary() bool { return op == OpNot || op == OpIsNull }

func (op Op) binary() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpAnd, OpOr, OpIn, OpContains, OpStartsWith:
		return true
	}
	return false
}

// Expr is a serializable expression over one entry row. Build it with the
// constructor functions; the zero Expr is invalid.
type Expr struct {
	Kind   Kind             `json:"kind"`
	Name   string           `json:"name,omitempty"`
	Value  any              `json:"value,omitempty"`
	Op     Op               `json:"op,omitempty"`
	A      *Expr            `json:"a,omitempty"`
	B      *Expr            `json:"b,omitempty"`
	Fields map[string]*Expr `json:"fields,omitempty"`
}

// Field reads a builtin attribute (title, _id, _status, ...) or a data field.
func Field(name string) *Expr { return &Expr{Kind: KindField, Name: name} }

// Value is a literal.
func Value(v any) *Expr { return &Expr{Kind: KindValue, Value: normalize(v)} }

// Record builds an object from named expressions.
func Record(fields map[string]*Expr) *Expr { return &Expr{Kind: KindRecord, Fields: fields} }

func unary(op Op, a *Expr) *Expr     { return &Expr{Kind: KindUnary, Op: op, A: a} }
func binary(op Op, a, b *Expr) *Expr { return &Expr{Kind: KindBinary, Op: op, A: a, B: b} }

func Not(a *Expr) *Expr           { return unary(OpNot, a) }
func IsNull(a *Expr) *Expr        { return unary(OpIsNull, a) }
func Eq(a, b *Expr) *Expr         { return binary(OpEq, a, b) }
func Ne(a, b *Expr) *Expr         { return binary(OpNe, a, b) }
func Lt(a, b *Expr) *Expr         { return binary(OpLt, a, b) }
func Le(a, b *Expr) *Expr         { return binary(OpLe, a, b) }
func Gt(a, b *Expr) *Expr         { return binary(OpGt, a, b) }
func Ge(a, b *Expr) *Expr         { return binary(OpGe, a, b) }
func In(a, b *Expr) *Expr         { return binary(OpIn, a, b) }
func Contains(a, b *Expr) *Expr   { return binary(OpContains, a, b) }
func StartsWith(a, b *Expr) *Expr { return binary(OpStartsWith, a, b) }

// And joins conditions; no conditions is true.
func And(conds ...*Expr) *Expr {
	if len(conds) == 0 {
		return Value(true)
	}
	out := conds[0]
	for _, c := range conds[1:] {
		out = binary(OpAnd, out, c)
	}
	return out
}

// Or joins conditions; no conditions is false.
func Or(conds ...*Expr) *Expr {
	if len(conds) == 0 {
		return Value(false)
	}
	out := conds[0]
	for _, c := range conds[1:] {
		out = binary(OpOr, out, c)
	}
	return out
}

// Is is shorthand for Eq(Field(name), Value(v)).
func Is(name string, v any) *Expr { return Eq(Field(name), Value(v)) }

// validate checks the shape of e and reports every field it reads.
func (e *Expr) validate(visit func(field string) error) error {
	if e == nil {
		return fmt.Errorf("query: nil expression")
	}
	switch e.Kind {
	case KindField:
		if e.Name == "" {
			return fmt.Errorf("query: field expression without a name")
		}
		return visit(e.Name)
	case KindValue:
		return nil
	case KindUnary:
		if !e.Op.unary() {
			return fmt.Errorf("query: unknown unary operator %q", e.Op)
		}
		return e.A.validate(visit)
	case KindBinary:
		if !e.Op.binary() {
			return fmt.Errorf("query: unknown binary operator %q", e.Op)
		}
		if err := e.A.validate(visit); err != nil {
			return err
		}
		return e.B.validate(visit)
	case KindRecord:
		for _, k := range sortedKeys(e.Fields) {
			if err := e.Fields[k].validate(visit); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("query: unknown expression kind %q", e.Kind)
}

// eval computes e against a row accessor.
func (e *Expr) eval(get func(string) any) any {
	switch e.Kind {
	case KindField:
		return get(e.Name)
	case KindValue:
		return e.Value
	case KindRecord:
		out := make(map[string]any, len(e.Fields))
		for k, f := range e.Fields {
			out[k] = f.eval(get)
		}
		return out
	case KindUnary:
		a := e.A.eval(get)
		if e.Op == OpIsNull {
			return a == nil
		}
		return !truthy(a)
	}

	switch e.Op {
	case OpAnd:
		return truthy(e.A.eval(get)) && truthy(e.B.eval(get))
	case OpOr:
		return truthy(e.A.eval(get)) || truthy(e.B.eval(get))
	}
	a, b := e.A.eval(get), e.B.eval(get)
	switch e.Op {
	case OpEq:
		return compare(a, b) == 0
	case OpNe:
		return compare(a, b) != 0
	case OpLt:
		return orderable(a, b) && compare(a, b) < 0
	case OpLe:
		return orderable(a, b) && compare(a, b) <= 0
	case OpGt:
		return orderable(a, b) && compare(a, b) > 0
	case OpGe:
		return orderable(a, b) && compare(a, b) >= 0
	case OpIn:
		list, _ := b.([]any)
		for _, v := range list {
			if compare(a, v) == 0 {
				return true
			}
		}
		return false
	case OpContains:
		switch x := a.(type) {
		case string:
			s, ok := b.(string)
			return ok && strings.Contains(x, s)
		case []any:
			for _, v := range x {
				if compare(v, b) == 0 {
					return true
				}
			}
		}
		return false
	case OpStartsWith:
		x, ok1 := a.(string)
		s, ok2 := b.(string)
		return ok1 && ok2 && strings.HasPrefix(x, s)
	}
	return nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	}
	return true
}

// normalize maps Go literals onto the JSON value space so that values built
// in code compare equal to values decoded from the wire.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case float32:
		return float64(x)
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	}
	return 4
}

func orderable(a, b any) bool {
	return a != nil && b != nil && rank(a) == rank(b) && rank(a) < 4
}

// compare orders values: null < booleans < numbers < strings < the rest.
func compare(a, b any) int {
	a, b = normalize(a), normalize(b)
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case string:
		return strings.Compare(x, b.(string))
	case nil:
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
