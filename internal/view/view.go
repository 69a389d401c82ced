// Package view composes the caller-facing read of one relation page from
// the relation cache, the record store and the request state, and pushes
// recomposed views to subscribers when any of the three changes.
package view

import (
	"encoding/json"

	"github.com/roach88/relq/internal/ir"
)

// View is the composite read for one reference query.
//
// IDs and Total always come from a single cache entry version. Data holds
// the subset of IDs present in the record store.
type View struct {
	Data    map[ir.ID]ir.Record
	IDs     []ir.ID
	Total   *int
	Error   error
	Loading bool
	Loaded  bool
}

// Records returns the present records in IDs order.
func (v View) Records() []ir.Record {
	out := make([]ir.Record, 0, len(v.Data))
	for _, id := range v.IDs {
		if rec, ok := v.Data[id]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// Missing returns the IDs with no record in Data.
func (v View) Missing() []ir.ID {
	var out []ir.ID
	for _, id := range v.IDs {
		if _, ok := v.Data[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

type viewJSON struct {
	Data    map[ir.ID]ir.Record `json:"data"`
	IDs     []ir.ID             `json:"ids"`
	Total   *int                `json:"total"`
	Error   *string             `json:"error"`
	Loading bool                `json:"loading"`
	Loaded  bool                `json:"loaded"`
}

// MarshalJSON renders the error as its message, or null.
func (v View) MarshalJSON() ([]byte, error) {
	out := viewJSON{
		Data:    v.Data,
		IDs:     v.IDs,
		Total:   v.Total,
		Loading: v.Loading,
		Loaded:  v.Loaded,
	}
	if out.Data == nil {
		out.Data = map[ir.ID]ir.Record{}
	}
	if out.IDs == nil {
		out.IDs = []ir.ID{}
	}
	if v.Error != nil {
		msg := v.Error.Error()
		out.Error = &msg
	}
	return json.Marshal(out)
}
