// Package remote defines the contract between the map engine and the data
// service it reads entities from.
package remote

import (
	"context"
	"fmt"
	"strings"
)

// Record is a raw record as returned by the data service, keyed by field name.
type Record = map[string]any

// Client fetches entity sets by type and filter.
type Client interface {
	FetchEntities(ctx context.Context, entityType string, fields []string, filter Filter) ([]Record, error)
}

// Op is a comparison operator in a filter condition.
type Op string

const (
	OpEq    Op = "="
	OpNe    Op = "!="
	OpIn    Op = "in"
	OpNotIn Op = "not in"
	OpLt    Op = "<"
	OpLte   Op = "<="
	OpGt    Op = ">"
	OpGte   Op = ">="
)

func (o Op) valid() bool {
	switch o {
	case OpEq, OpNe, OpIn, OpNotIn, OpLt, OpLte, OpGt, OpGte:
		return true
	}
	return false
}

// Multi reports whether the operator takes a list value.
func (o Op) Multi() bool {
	return o == OpIn || o == OpNotIn
}

// Condition is a single field comparison.
type Condition struct {
	Field string `json:"field" yaml:"field"`
	Op    Op     `json:"op" yaml:"op"`
	Value any    `json:"value" yaml:"value"`
}

// Filter is a conjunction of conditions. An empty filter matches everything.
type Filter []Condition

// Where starts a filter with one condition.
func Where(field string, op Op, value any) Filter {
	return Filter{{Field: field, Op: op, Value: value}}
}

// And returns a copy of f with one more condition.
func (f Filter) And(field string, op Op, value any) Filter {
	out := make(Filter, len(f), len(f)+1)
	copy(out, f)
	return append(out, Condition{Field: field, Op: op, Value: value})
}

// Validate checks every condition and returns a ValidationError for the
// first malformed one.
func (f Filter) Validate() error {
	for i, c := range f {
		if strings.TrimSpace(c.Field) == "" {
			return &ValidationError{Reason: fmt.Sprintf("condition %d: empty field", i)}
		}
		if !c.Op.valid() {
			return &ValidationError{Field: c.Field, Reason: fmt.Sprintf("unsupported operator %q", c.Op)}
		}
		if c.Op.Multi() {
			if _, ok := ListValues(c.Value); !ok {
				return &ValidationError{Field: c.Field, Reason: fmt.Sprintf("operator %q needs a list value", c.Op)}
			}
		} else if c.Value == nil {
			return &ValidationError{Field: c.Field, Reason: fmt.Sprintf("operator %q needs a value", c.Op)}
		}
	}
	return nil
}

// ListValues flattens the common slice types used for in / not in values.
func ListValues(v any) ([]any, bool) {
	switch vals := v.(type) {
	case []any:
		return vals, true
	case []string:
		out := make([]any, len(vals))
		for i, s := range vals {
			out[i] = s
		}
		return out, true
	case []int64:
		out := make([]any, len(vals))
		for i, n := range vals {
			out[i] = n
		}
		return out, true
	case []int:
		out := make([]any, len(vals))
		for i, n := range vals {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}
