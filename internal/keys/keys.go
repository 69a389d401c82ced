// Package keys derives the canonical identity of a one-to-many relation.
//
// A relation key names WHICH records satisfy "resource.target == id under
// filter", not which page of them: pagination and sort are excluded, so every
// page and sort order of one relation shares a single relation-cache slot.
// The descriptor id (see Descriptor) includes them and names one concrete
// transport call.
package keys

import (
	"github.com/roach88/relq/internal/ir"
)

// Key is a canonical relation key.
type Key string

// prefix tags keys so they can never collide with descriptor ids or other
// strings stored in the same maps or logs.
const prefix = "relation:"

// NameRelatedTo derives the canonical key for the records of resource whose
// target field equals id in the referencingResource relation, under filter.
//
// The key is the canonical JSON of all five inputs. Filter keys are sorted
// before stringifying, so permuting a filter's insertion order never changes
// the key, and any difference in an input always does. The function is total.
func NameRelatedTo(resource string, id ir.ID, referencingResource, target string, filter ir.Filter) Key {
	if filter == nil {
		filter = ir.Filter{}
	}
	obj := ir.IRObject{
		"resource":    ir.IRString(resource),
		"id":          id.Value(),
		"referencing": ir.IRString(referencingResource),
		"target":      ir.IRString(target),
		"filter":      filter,
	}
	return Key(prefix + string(ir.MarshalCanonical(obj)))
}

// ForQuery is NameRelatedTo applied to a query.
func ForQuery(q ir.ReferenceQuery) Key {
	return NameRelatedTo(q.Resource, q.ID, q.ReferencingResource, q.Target, q.Filter)
}

// Descriptor returns the fetch descriptor id of a query: the dedup key for
// in-flight transport calls.
func Descriptor(q ir.ReferenceQuery) string {
	return ir.DescriptorID(q.Resource, q.Params())
}
