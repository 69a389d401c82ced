package harness

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/relq/internal/ir"
)

// Report renders a trace as canonical JSON, one event per line.
func Report(name string, result *Result) ([]byte, error) {
	var buf bytes.Buffer
	header := ir.IRObject{
		"scenario": ir.IRString(name),
		"pass":     ir.IRBool(result.Pass),
	}
	if len(result.Errors) > 0 {
		errs := make(ir.IRArray, len(result.Errors))
		for i, e := range result.Errors {
			errs[i] = ir.IRString(e)
		}
		header["errors"] = errs
	}
	buf.Write(ir.MarshalCanonical(header))
	buf.WriteByte('\n')

	for i, ev := range result.Trace {
		v, err := ev.value()
		if err != nil {
			return nil, fmt.Errorf("trace[%d]: %w", i, err)
		}
		buf.Write(ir.MarshalCanonical(v))
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// value converts the event for canonical serialization.
func (e TraceEvent) value() (ir.IRObject, error) {
	obj := ir.IRObject{
		"step":  ir.IRInt(e.Step),
		"op":    ir.IRString(e.Op),
		"query": ir.IRString(e.Query),
	}
	if e.Status != "" {
		obj["status"] = ir.IRString(e.Status)
		obj["seq"] = ir.IRInt(e.Seq)
	}
	if e.Note != "" {
		obj["note"] = ir.IRString(e.Note)
	}
	if e.View != nil {
		v, err := e.View.value()
		if err != nil {
			return nil, err
		}
		obj["view"] = v
	}
	return obj, nil
}

func (s *ViewSnapshot) value() (ir.IRObject, error) {
	ids := make(ir.IRArray, len(s.IDs))
	for i, id := range s.IDs {
		ids[i] = id.Value()
	}
	data := make(ir.IRObject, len(s.Data))
	for id, rec := range s.Data {
		v, err := ir.FromGo(rec)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		data[id.String()] = v
	}

	obj := ir.IRObject{
		"ids":     ids,
		"loading": ir.IRBool(s.Loading),
		"loaded":  ir.IRBool(s.Loaded),
		"data":    data,
	}
	if s.Total != nil {
		obj["total"] = ir.IRInt(*s.Total)
	} else {
		obj["total"] = ir.IRNull{}
	}
	if s.Error != "" {
		obj["error"] = ir.IRString(s.Error)
		obj["code"] = ir.IRString(s.Code)
	}
	return obj, nil
}

// RunWithGolden executes a scenario and compares its report against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	report, err := Report(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, report)
	return nil
}
