package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/latch/internal/ir"
	"github.com/roach88/latch/internal/queryir"
)

// SQLCompiler compiles trace queries to parameterized SQLite.
//
// Every query ends in the table's ORDER BY key, with text columns
// compared as COLLATE BINARY. Values are always parameters; only
// validated column and table names are written into the SQL.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile validates q and converts it to SQL plus parameters.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, err
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// Columns returns the column names q selects, in order. Callers scan rows
// against this list.
func Columns(q queryir.Select) []string {
	if len(q.Fields) > 0 {
		return q.Fields
	}
	cols := queryir.Columns[q.From]
	out := make([]string, len(cols))
	for i, col := range cols {
		out[i] = col.Name
	}
	return out
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(Columns(q), ", "), q.From)

	var params []any
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(filterSQL)
		params = filterParams
	}

	sb.WriteString(" ORDER BY ")
	sb.WriteString(stableOrderKey(q.From))

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		params = append(params, q.Limit)
	}

	return sb.String(), params, nil
}

// stableOrderKey returns the ORDER BY clause for a table.
func stableOrderKey(t queryir.Table) string {
	keys := queryir.OrderKeys[t]
	parts := make([]string, len(keys))
	for i, k := range keys {
		if col, _ := queryir.Lookup(t, k); col.Kind == queryir.KindText {
			parts[i] = k + " COLLATE BINARY ASC"
		} else {
			parts[i] = k + " ASC"
		}
	}
	return strings.Join(parts, ", ")
}

func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return compileEquals(pred)
	case *queryir.Equals:
		return compileEquals(*pred)
	case queryir.In:
		return compileIn(pred)
	case *queryir.In:
		return compileIn(*pred)
	case queryir.Range:
		return compileRange(pred)
	case *queryir.Range:
		return compileRange(*pred)
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileEquals(eq queryir.Equals) (string, []any, error) {
	param, err := irValueToParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("convert value: %w", err)
	}
	return eq.Field + " = ?", []any{param}, nil
}

func compileIn(in queryir.In) (string, []any, error) {
	params := make([]any, 0, len(in.Values))
	for _, v := range in.Values {
		param, err := irValueToParam(v)
		if err != nil {
			return "", nil, fmt.Errorf("convert value: %w", err)
		}
		params = append(params, param)
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(params)), ", ")
	return fmt.Sprintf("%s IN (%s)", in.Field, marks), params, nil
}

func compileRange(r queryir.Range) (string, []any, error) {
	switch {
	case r.Min != nil && r.Max != nil:
		return r.Field + " BETWEEN ? AND ?", []any{*r.Min, *r.Max}, nil
	case r.Min != nil:
		return r.Field + " >= ?", []any{*r.Min}, nil
	case r.Max != nil:
		return r.Field + " <= ?", []any{*r.Max}, nil
	default:
		return "1 = 1", nil, nil
	}
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	var sqlParts []string
	var allParams []any
	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		if _, nested := pred.(queryir.And); nested {
			sql = "(" + sql + ")"
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}

	return strings.Join(sqlParts, " AND "), allParams, nil
}

// irValueToParam converts an ir.IRValue to a Go native type for SQL parameter.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}
