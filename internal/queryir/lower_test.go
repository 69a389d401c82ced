package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/ir"
)

func TestFromReference(t *testing.T) {
	p := ir.ReferenceParams{
		Target:     "post_id",
		ID:         ir.IntID(5),
		Pagination: ir.Pagination{Page: 2, PerPage: 10},
		Sort:       ir.Sort{Field: "created_at", Order: ir.OrderDesc},
		Filter: ir.Filter{
			"status":  ir.IRString("approved"),
			"deleted": ir.IRNull{},
			"lang":    ir.IRArray{ir.IRString("en"), ir.IRString("fr")},
		},
	}

	sel, count, err := FromReference("comments", p, "id")
	require.NoError(t, err)

	want := And{Predicates: []Predicate{
		Equals{Field: "post_id", Value: ir.IRInt(5)},
		IsNull{Field: "deleted"},
		In{Field: "lang", Values: ir.IRArray{ir.IRString("en"), ir.IRString("fr")}},
		Equals{Field: "status", Value: ir.IRString("approved")},
	}}
	assert.Equal(t, want, sel.Filter)
	assert.Equal(t, want, count.Filter)
	assert.Equal(t, "comments", count.Resource)

	assert.Equal(t, []OrderTerm{
		{Field: "created_at", Order: ir.OrderDesc},
		{Field: "id", Order: ir.OrderAsc},
	}, sel.OrderBy)
	assert.Equal(t, 10, sel.Limit)
	assert.Equal(t, 10, sel.Offset)
}

func TestFromReferenceSortByIDHasNoDuplicateTiebreak(t *testing.T) {
	p := ir.ReferenceParams{
		Target: "post_id",
		ID:     ir.IntID(1),
		Sort:   ir.Sort{Field: "id"},
	}
	sel, _, err := FromReference("comments", p, "id")
	require.NoError(t, err)
	assert.Equal(t, []OrderTerm{{Field: "id", Order: ir.OrderAsc}}, sel.OrderBy)
	assert.Equal(t, 0, sel.Limit, "perPage 0 means unbounded")
}

func TestFromReferenceRejects(t *testing.T) {
	base := ir.ReferenceParams{Target: "post_id", ID: ir.IntID(1)}

	_, _, err := FromReference("", base, "id")
	assert.Error(t, err)

	noTarget := base
	noTarget.Target = ""
	_, _, err = FromReference("comments", noTarget, "id")
	assert.Error(t, err)

	nested := base
	nested.Filter = ir.Filter{"author": ir.IRObject{"name": ir.IRString("x")}}
	_, _, err = FromReference("comments", nested, "id")
	assert.ErrorContains(t, err, "nested objects")

	nestedInArray := base
	nestedInArray.Filter = ir.Filter{"tags": ir.IRArray{ir.IRArray{}}}
	_, _, err = FromReference("comments", nestedInArray, "id")
	assert.ErrorContains(t, err, "not a scalar")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		query   Query
		wantErr string
	}{
		{"nil", nil, "nil query"},
		{"no resource", Select{}, "resource is required"},
		{"negative limit", Select{Resource: "r", Limit: -1}, "must not be negative"},
		{"bad order", Select{Resource: "r", OrderBy: []OrderTerm{{Field: "a", Order: "UP"}}}, "invalid direction"},
		{"quoted field", Select{Resource: "r", Filter: IsNull{Field: `a"b`}}, "contains a quote"},
		{"null equals", Count{Resource: "r", Filter: Equals{Field: "a", Value: ir.IRNull{}}}, "use IsNull"},
		{"empty field", Count{Resource: "r", Filter: And{Predicates: []Predicate{IsNull{}}}}, "empty field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorContains(t, Validate(tt.query), tt.wantErr)
		})
	}

	assert.NoError(t, Validate(&Select{Resource: "r", Filter: And{}}))
	assert.NoError(t, Validate(Count{Resource: "r", Filter: In{Field: "a", Values: ir.IRArray{ir.IRBool(true)}}}))
}
