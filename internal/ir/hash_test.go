package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func baseParams() ReferenceParams {
	return ReferenceParams{
		Target:     "post_id",
		ID:         IntID(5),
		Pagination: Pagination{Page: 1, PerPage: 10},
		Sort:       Sort{Field: "id", Order: OrderAsc},
		Filter:     Filter{"status": IRString("approved")},
	}
}

func TestDescriptorIDDeterminism(t *testing.T) {
	id1 := DescriptorID("comments", baseParams())
	id2 := DescriptorID("comments", baseParams())

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestDescriptorIDChangesWithInput(t *testing.T) {
	base := DescriptorID("comments", baseParams())

	mutations := map[string]func(p *ReferenceParams){
		"target":   func(p *ReferenceParams) { p.Target = "author_id" },
		"id":       func(p *ReferenceParams) { p.ID = IntID(6) },
		"id type":  func(p *ReferenceParams) { p.ID = StringID("5") },
		"page":     func(p *ReferenceParams) { p.Pagination.Page = 2 },
		"per page": func(p *ReferenceParams) { p.Pagination.PerPage = 25 },
		"sort":     func(p *ReferenceParams) { p.Sort.Field = "created_at" },
		"order":    func(p *ReferenceParams) { p.Sort.Order = OrderDesc },
		"filter":   func(p *ReferenceParams) { p.Filter = Filter{"status": IRString("pending")} },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			p := baseParams()
			mutate(&p)
			assert.NotEqual(t, base, DescriptorID("comments", p))
		})
	}

	assert.NotEqual(t, base, DescriptorID("reviews", baseParams()), "resource")
}

func TestDescriptorIDDefaultsOrder(t *testing.T) {
	withOrder := baseParams()
	withoutOrder := baseParams()
	withoutOrder.Sort.Order = ""

	assert.Equal(t, DescriptorID("comments", withOrder), DescriptorID("comments", withoutOrder))
}

func TestDescriptorIDNilFilterEqualsEmpty(t *testing.T) {
	a := baseParams()
	a.Filter = nil
	b := baseParams()
	b.Filter = Filter{}

	assert.Equal(t, DescriptorID("comments", a), DescriptorID("comments", b))
}
