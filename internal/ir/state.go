package ir

// Status is the request state of one fetch descriptor.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusLoaded
	StatusError
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// RequestState is the observable state of a fetch descriptor.
//
// Loaded means "settled at least once", independent of success, and is
// kept while a refetch of the same descriptor is loading. Err is set only
// in StatusError and cleared when a new attempt starts.
type RequestState struct {
	Status  Status
	Loading bool
	Loaded  bool
	Err     error
	// Seq is the logical settlement sequence of the last settle, 0 if none.
	Seq int64
}
