package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/latch/internal/ir"
)

// ValidationError lists every problem found in a query.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid query: " + strings.Join(e.Problems, "; ")
}

// Validate checks table and column names, value types and predicate shape.
// Returns nil for a valid query, otherwise a *ValidationError listing every
// problem (does not fail-fast).
//
// Validate is a pure function with no side effects.
func Validate(query Query) error {
	v := &validator{}
	v.validateQuery(query)
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

type validator struct {
	table    Table
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addProblem("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		if query == nil {
			v.addProblem("nil query")
			return
		}
		v.validateSelect(*query)
	default:
		v.addProblem("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if _, ok := Columns[sel.From]; !ok {
		v.addProblem("unknown table %q", sel.From)
		return
	}
	v.table = sel.From

	for _, f := range sel.Fields {
		if _, ok := Lookup(sel.From, f); !ok {
			v.addProblem("unknown column %s.%s", sel.From, f)
		}
	}
	if sel.Limit < 0 {
		v.addProblem("limit must not be negative")
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.validateValue(pred.Field, pred.Value)
	case *Equals:
		v.validateValue(pred.Field, pred.Value)
	case In:
		v.validateIn(pred)
	case *In:
		v.validateIn(*pred)
	case Range:
		v.validateRange(pred)
	case *Range:
		v.validateRange(*pred)
	case And:
		v.validateAnd(pred)
	case *And:
		v.validateAnd(*pred)
	default:
		v.addProblem("unknown predicate type %T", p)
	}
}

func (v *validator) column(field string) (Column, bool) {
	c, ok := Lookup(v.table, field)
	if !ok {
		v.addProblem("unknown column %s.%s", v.table, field)
	}
	return c, ok
}

func (v *validator) validateValue(field string, value ir.IRValue) {
	c, ok := v.column(field)
	if !ok {
		return
	}
	switch value.(type) {
	case ir.IRString:
		if c.Kind != KindText {
			v.addProblem("column %s is an integer, got string", field)
		}
	case ir.IRInt:
		if c.Kind != KindInt {
			v.addProblem("column %s is text, got integer", field)
		}
	default:
		v.addProblem("column %s: unsupported value type %T", field, value)
	}
}

func (v *validator) validateIn(in In) {
	if len(in.Values) == 0 {
		v.addProblem("IN on %s needs at least one value", in.Field)
		return
	}
	for _, val := range in.Values {
		v.validateValue(in.Field, val)
	}
}

func (v *validator) validateRange(r Range) {
	c, ok := v.column(r.Field)
	if !ok {
		return
	}
	if c.Kind != KindInt {
		v.addProblem("range on text column %s", r.Field)
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		v.addProblem("range on %s is empty: %d > %d", r.Field, *r.Min, *r.Max)
	}
}

func (v *validator) validateAnd(and And) {
	for _, sub := range and.Predicates {
		v.validatePredicate(sub)
	}
}
