package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/ir"
)

// Validate checks that a query can be compiled: field names are usable as
// JSON path labels, literals are scalars, and pages are not negative.
//
// Validate is a pure function with no side effects.
func Validate(q Query) error {
	switch query := q.(type) {
	case Select:
		return validateSelect(query)
	case *Select:
		return validateSelect(*query)
	case Count:
		return validateCount(query)
	case *Count:
		return validateCount(*query)
	case nil:
		return fmt.Errorf("nil query")
	default:
		return fmt.Errorf("unsupported query type: %T", q)
	}
}

func validateSelect(s Select) error {
	if s.Resource == "" {
		return fmt.Errorf("select: resource is required")
	}
	if s.Limit < 0 || s.Offset < 0 {
		return fmt.Errorf("select: limit and offset must not be negative")
	}
	for _, term := range s.OrderBy {
		if err := validateField(term.Field); err != nil {
			return fmt.Errorf("order by: %w", err)
		}
		if term.Order != ir.OrderAsc && term.Order != ir.OrderDesc {
			return fmt.Errorf("order by %q: invalid direction %q", term.Field, term.Order)
		}
	}
	return validatePredicate(s.Filter)
}

func validateCount(c Count) error {
	if c.Resource == "" {
		return fmt.Errorf("count: resource is required")
	}
	return validatePredicate(c.Filter)
}

func validatePredicate(p Predicate) error {
	switch pred := p.(type) {
	case nil:
		return nil
	case Equals:
		if err := validateField(pred.Field); err != nil {
			return err
		}
		return validateScalar(pred.Field, pred.Value)
	case In:
		if err := validateField(pred.Field); err != nil {
			return err
		}
		for _, v := range pred.Values {
			if err := validateScalar(pred.Field, v); err != nil {
				return err
			}
		}
		return nil
	case IsNull:
		return validateField(pred.Field)
	case And:
		for _, inner := range pred.Predicates {
			if err := validatePredicate(inner); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func validateField(field string) error {
	if field == "" {
		return fmt.Errorf("empty field name")
	}
	if strings.ContainsAny(field, "\"\x00") {
		return fmt.Errorf("field %q contains a quote or NUL", field)
	}
	return nil
}

func validateScalar(field string, v ir.IRValue) error {
	switch v.(type) {
	case ir.IRString, ir.IRInt, ir.IRBool:
		return nil
	case ir.IRNull:
		return fmt.Errorf("field %q: null cannot be compared with =, use IsNull", field)
	default:
		return fmt.Errorf("field %q: %T is not a scalar", field, v)
	}
}
