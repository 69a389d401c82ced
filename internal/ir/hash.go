package ir

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for changing the derivation later.
const (
	DomainDescriptor = "relq/descriptor/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DescriptorObject is the canonical form of a fetch descriptor: everything
// that changes what the transport must return.
func DescriptorObject(resource string, p ReferenceParams) IRObject {
	filter := p.Filter
	if filter == nil {
		filter = IRObject{}
	}
	order := p.Sort.Order
	if order == "" && p.Sort.Field != "" {
		order = OrderAsc
	}
	return IRObject{
		"resource": IRString(resource),
		"target":   IRString(p.Target),
		"id":       p.ID.Value(),
		"pagination": IRObject{
			"page":     IRInt(p.Pagination.Page),
			"per_page": IRInt(p.Pagination.PerPage),
		},
		"sort": IRObject{
			"field": IRString(p.Sort.Field),
			"order": IRString(order),
		},
		"filter": filter,
	}
}

// DescriptorID computes the content-addressed id of a fetch descriptor.
// Two queries share a DescriptorID exactly when they would issue the same
// transport call, so it is the dedup key for in-flight requests.
func DescriptorID(resource string, p ReferenceParams) string {
	return hashWithDomain(DomainDescriptor, MarshalCanonical(DescriptorObject(resource, p)))
}
