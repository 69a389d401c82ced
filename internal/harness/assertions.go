package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/relq/internal/coordinator"
	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/records"
	"github.com/roach88/relq/internal/view"
)

// AssertionError is a failed expectation or assertion.
type AssertionError struct {
	Type     string
	Subject  string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s", e.Type)
	if e.Subject != "" {
		fmt.Fprintf(&buf, " [%s]", e.Subject)
	}
	fmt.Fprintf(&buf, ": expected %s, got %s", e.Expected, e.Actual)
	return buf.String()
}

// compareView checks v against the fields set in want.
func compareView(name string, want *ExpectView, v view.View) []string {
	var errs []string
	fail := func(field, expected, actual string) {
		errs = append(errs, (&AssertionError{
			Type:     "view." + field,
			Subject:  name,
			Expected: expected,
			Actual:   actual,
		}).Error())
	}

	if want.IDs != nil && !slices.Equal(want.IDs, v.IDs) {
		fail("ids", formatIDs(want.IDs), formatIDs(v.IDs))
	}
	if want.Total != nil {
		switch {
		case v.Total == nil:
			fail("total", fmt.Sprint(*want.Total), "none")
		case *v.Total != *want.Total:
			fail("total", fmt.Sprint(*want.Total), fmt.Sprint(*v.Total))
		}
	}
	if want.NoTotal && v.Total != nil {
		fail("total", "none", fmt.Sprint(*v.Total))
	}
	if want.Loading != nil && *want.Loading != v.Loading {
		fail("loading", fmt.Sprint(*want.Loading), fmt.Sprint(v.Loading))
	}
	if want.Loaded != nil && *want.Loaded != v.Loaded {
		fail("loaded", fmt.Sprint(*want.Loaded), fmt.Sprint(v.Loaded))
	}
	if want.Records != nil && *want.Records != len(v.Records()) {
		fail("records", fmt.Sprint(*want.Records), fmt.Sprint(len(v.Records())))
	}
	switch want.Error {
	case "":
	case "none":
		if v.Error != nil {
			fail("error", "none", v.Error.Error())
		}
	default:
		if v.Error == nil {
			fail("error", want.Error, "none")
		} else if got := string(coordinator.CodeOf(v.Error)); got != want.Error {
			fail("error", want.Error, got)
		}
	}
	return errs
}

// evaluate runs the final assertions.
func (h *Harness) evaluate(ctx context.Context, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := h.evaluateOne(ctx, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func (h *Harness) evaluateOne(ctx context.Context, a Assertion) error {
	var got int
	switch a.Type {
	case AssertTransportCalls:
		got = h.transportCalls(a.Query)
	case AssertNotifications:
		h.mu.Lock()
		got = h.notified[a.Query]
		h.mu.Unlock()
	case AssertCacheEntries:
		got = h.coord.Cache().Len()
	case AssertRecords:
		counter, ok := h.records.(records.Counter)
		if !ok {
			return fmt.Errorf("records: record store cannot count")
		}
		n, err := counter.Count(ctx, a.Resource)
		if err != nil {
			return fmt.Errorf("records: %w", err)
		}
		got = n
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}

	if got != a.Count {
		subject := a.Query
		if subject == "" {
			subject = a.Resource
		}
		return &AssertionError{
			Type:     a.Type,
			Subject:  subject,
			Expected: fmt.Sprint(a.Count),
			Actual:   fmt.Sprint(got),
		}
	}
	return nil
}

// transportCalls counts calls, all of them or those of one query.
func (h *Harness) transportCalls(name string) int {
	calls := h.fetcher.Calls()
	if name == "" {
		return len(calls)
	}
	q := h.queries[name]
	desc := ir.DescriptorID(q.Resource, q.Params())
	n := 0
	for _, c := range calls {
		if c.Descriptor == desc {
			n++
		}
	}
	return n
}

func formatIDs(ids []ir.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		if id.IsInt() {
			parts[i] = id.String()
		} else {
			parts[i] = fmt.Sprintf("%q", id.String())
		}
	}
	return "[" + strings.Join(parts, ",") + "]"
}
