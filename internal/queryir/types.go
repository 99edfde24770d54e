package queryir

import "github.com/roach88/latch/internal/ir"

// Query is a sealed query node.
type Query interface {
	queryNode()
}

// Predicate is a sealed filter node.
type Predicate interface {
	predicateNode()
}

// Table names a trace table.
type Table string

const (
	TableSessions    Table = "sessions"
	TableInputs      Table = "inputs"
	TableTransitions Table = "transitions"
)

// ColumnKind is the storage class of a column.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindInt
)

// Column describes one queryable column.
type Column struct {
	Name string
	Kind ColumnKind
}

// Columns lists the queryable columns of each table in select order.
var Columns = map[Table][]Column{
	TableSessions: {
		{"id", KindText},
		{"entity", KindText},
		{"ruleset_hash", KindText},
		{"engine_version", KindText},
		{"config_json", KindText},
	},
	TableInputs: {
		{"session_id", KindText},
		{"seq", KindInt},
		{"kind", KindText},
		{"label", KindText},
		{"confidence_bp", KindInt},
		{"ts_ms", KindInt},
		{"extras_json", KindText},
		{"payload_json", KindText},
	},
	TableTransitions: {
		{"id", KindText},
		{"session_id", KindText},
		{"seq", KindInt},
		{"cause", KindText},
		{"rule_id", KindText},
		{"from_state", KindText},
		{"to_state", KindText},
		{"ts_ms", KindInt},
	},
}

// OrderKeys is the mandatory ORDER BY of each table. Every key ends in a
// unique column so ties are impossible.
var OrderKeys = map[Table][]string{
	TableSessions:    {"id"},
	TableInputs:      {"session_id", "seq"},
	TableTransitions: {"session_id", "seq", "id"},
}

// Lookup returns a column of t by name.
func Lookup(t Table, name string) (Column, bool) {
	for _, c := range Columns[t] {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Select reads rows from one table.
//
//	Select{
//	  From:   TableTransitions,
//	  Filter: And{Predicates: []Predicate{
//	    Equals{Field: "session_id", Value: ir.IRString(id)},
//	    In{Field: "cause", Values: []ir.IRValue{ir.IRString("rule")}},
//	  }},
//	}
//
// An empty Fields list selects every column in Columns order.
// Limit 0 means no limit.
type Select struct {
	From   Table
	Fields []string
	Filter Predicate
	Limit  int
}

func (Select) queryNode() {}

// Equals matches rows where Field = Value.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// In matches rows where Field equals any of Values. Values must not be empty.
type In struct {
	Field  string
	Values []ir.IRValue
}

func (In) predicateNode() {}

// Range matches integer columns within [Min, Max]. A nil bound is open.
type Range struct {
	Field string
	Min   *int64
	Max   *int64
}

func (Range) predicateNode() {}

// And matches rows satisfying every predicate. Empty And matches all rows.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Where builds a conjunction, dropping nil predicates and unwrapping a
// single remaining predicate.
func Where(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return And{Predicates: out}
	}
}
