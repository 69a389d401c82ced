package harness

import (
	"github.com/roach88/relq/internal/coordinator"
	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/view"
)

// OpNotify marks trace events recorded by watch callbacks.
const OpNotify = "notify"

// TraceEvent is one step outcome or watch notification.
type TraceEvent struct {
	// Step is the 1-based index of the step that caused the event.
	Step int `json:"step"`
	// Op is the step op, or OpNotify.
	Op string `json:"op"`
	// Query names the query, or the resource for upsert steps.
	Query string `json:"query"`
	// View is the observed view, nil for ops that observe none.
	View *ViewSnapshot `json:"view,omitempty"`
	// Status and Seq are the request state after the step.
	Status string `json:"status,omitempty"`
	Seq    int64  `json:"seq,omitempty"`
	// Note carries op-specific detail.
	Note string `json:"note,omitempty"`
}

// ViewSnapshot is a view reduced to comparable values.
type ViewSnapshot struct {
	IDs     []ir.ID             `json:"ids"`
	Total   *int                `json:"total"`
	Loading bool                `json:"loading"`
	Loaded  bool                `json:"loaded"`
	Error   string              `json:"error,omitempty"`
	Code    string              `json:"code,omitempty"`
	Data    map[ir.ID]ir.Record `json:"data"`
}

// Snapshot captures v.
func Snapshot(v view.View) *ViewSnapshot {
	s := &ViewSnapshot{
		IDs:     v.IDs,
		Total:   v.Total,
		Loading: v.Loading,
		Loaded:  v.Loaded,
		Data:    v.Data,
	}
	if s.IDs == nil {
		s.IDs = []ir.ID{}
	}
	if s.Data == nil {
		s.Data = map[ir.ID]ir.Record{}
	}
	if v.Error != nil {
		s.Error = v.Error.Error()
		s.Code = string(coordinator.CodeOf(v.Error))
	}
	return s
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds step outcomes and notifications in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds failed expectation and assertion messages.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
