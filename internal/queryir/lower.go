package queryir

import (
	"fmt"

	"github.com/roach88/relq/internal/ir"
)

// FromReference lowers a reference fetch into the page query and the count
// query that answer it.
//
// The filter is Target = ID conjoined with one predicate per filter key, in
// canonical key order. Ordering is the requested sort (if any) followed by
// idField so pages are stable.
func FromReference(resource string, p ir.ReferenceParams, idField string) (Select, Count, error) {
	if resource == "" {
		return Select{}, Count{}, fmt.Errorf("resource is required")
	}
	if p.Target == "" {
		return Select{}, Count{}, fmt.Errorf("target is required")
	}

	preds := []Predicate{Equals{Field: p.Target, Value: p.ID.Value()}}
	for _, field := range p.Filter.SortedKeys() {
		pred, err := fieldPredicate(field, p.Filter[field])
		if err != nil {
			return Select{}, Count{}, err
		}
		preds = append(preds, pred)
	}
	filter := And{Predicates: preds}

	var order []OrderTerm
	if p.Sort.Field != "" {
		dir := p.Sort.Order
		if dir == "" {
			dir = ir.OrderAsc
		}
		order = append(order, OrderTerm{Field: p.Sort.Field, Order: dir})
	}
	if p.Sort.Field != idField {
		order = append(order, OrderTerm{Field: idField, Order: ir.OrderAsc})
	}

	sel := Select{
		Resource: resource,
		Filter:   filter,
		OrderBy:  order,
		Limit:    p.Pagination.PerPage,
		Offset:   p.Pagination.Offset(),
	}
	if err := Validate(sel); err != nil {
		return Select{}, Count{}, err
	}
	return sel, Count{Resource: resource, Filter: filter}, nil
}

func fieldPredicate(field string, v ir.IRValue) (Predicate, error) {
	switch val := v.(type) {
	case ir.IRNull:
		return IsNull{Field: field}, nil
	case ir.IRArray:
		return In{Field: field, Values: val}, nil
	case ir.IRObject:
		return nil, fmt.Errorf("filter %q: nested objects are not supported", field)
	default:
		return Equals{Field: field, Value: v}, nil
	}
}
