package queryir

import "github.com/roach88/relq/internal/ir"

// Query is a sealed interface for query nodes.
type Query interface {
	queryNode()
}

// Predicate is a sealed interface for filter conditions.
type Predicate interface {
	predicateNode()
}

// Select reads one page of records of Resource.
type Select struct {
	Resource string
	Filter   Predicate
	OrderBy  []OrderTerm
	// Limit of 0 means no limit.
	Limit  int
	Offset int
}

func (Select) queryNode() {}

// Count counts the records of Resource matching Filter, ignoring pages.
type Count struct {
	Resource string
	Filter   Predicate
}

func (Count) queryNode() {}

// OrderTerm orders by a record field.
type OrderTerm struct {
	Field string
	Order ir.Order
}

// Equals matches records whose Field equals Value.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// In matches records whose Field equals any of Values.
// An empty list matches nothing.
type In struct {
	Field  string
	Values ir.IRArray
}

func (In) predicateNode() {}

// IsNull matches records whose Field is null or absent.
type IsNull struct {
	Field string
}

func (IsNull) predicateNode() {}

// And is a conjunction. An empty And matches everything.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
