// Package queryir is the query intermediate representation used by the
// local dataset backend.
//
// A reference fetch (target = id, extra filter, sort, page) is lowered
// into a Select and a Count over one resource. Backends compile these
// nodes; internal/querysql targets SQLite.
//
// Query and Predicate are sealed: only types in this package implement
// them, so backends can switch exhaustively.
//
//	switch p := pred.(type) {
//	case Equals:
//	case In:
//	case IsNull:
//	case And:
//	}
//
// Predicates compare record fields against ir.IRValue literals. Nested
// objects cannot be compared and are rejected while lowering.
package queryir
