// Package queryir is the query intermediate representation for the trace
// store.
//
// Callers describe what they want from the recorded sessions, inputs and
// transitions as a small tree of Select and predicate nodes. Backends
// (querysql for SQLite) turn the tree into executable queries.
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed with marker methods. Only types in this
// package implement them, so backends can switch exhaustively:
//
//	switch p := pred.(type) {
//	case Equals:
//	case In:
//	case Range:
//	case And:
//	}
//
// The fragment is deliberately small:
//   - Select over one known table, explicit or default columns
//   - Equals, In, Range (inclusive, integer columns only) and And
//   - no joins, no OR, no aggregation
//
// Every field name is checked against the table's column list before a
// backend sees it; values are ir.IRValue literals and are always passed
// as parameters.
//
// ORDERING:
//
// Results are always ordered by a fixed per-table key that ends in the
// primary key, so two reads of the same data return the same rows in the
// same order.
package queryir
