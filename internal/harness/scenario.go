package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/relq/internal/coordinator"
	"github.com/roach88/relq/internal/ir"
)

// Scenario is a scripted run against a coordinator.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Policy is the fetch policy. Empty means cache-and-network.
	Policy string `yaml:"policy,omitempty"`

	// RecordStore is "memory" (default) or "sqlite".
	RecordStore string `yaml:"record_store,omitempty"`

	// IDFields overrides identifier fields per resource.
	IDFields map[string]string `yaml:"id_fields,omitempty"`

	// Queries names the reference queries steps refer to.
	Queries map[string]QuerySpec `yaml:"queries"`

	// Dataset seeds the local backend answering release and fetch steps
	// that carry no explicit data.
	Dataset map[string][]ir.Record `yaml:"dataset,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions check the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// QuerySpec is a reference query as written in scenario files.
type QuerySpec struct {
	Resource    string         `yaml:"resource"`
	Target      string         `yaml:"target"`
	ID          ir.ID          `yaml:"id"`
	Referencing string         `yaml:"referencing,omitempty"`
	Page        int            `yaml:"page,omitempty"`
	PerPage     int            `yaml:"per_page,omitempty"`
	Sort        ir.Sort        `yaml:"sort,omitempty"`
	Filter      map[string]any `yaml:"filter,omitempty"`
}

// Query converts the spec into a reference query.
func (q QuerySpec) Query() (ir.ReferenceQuery, error) {
	filter, err := ir.NewFilter(q.Filter)
	if err != nil {
		return ir.ReferenceQuery{}, err
	}
	order, err := ir.ParseOrder(string(q.Sort.Order))
	if err != nil {
		return ir.ReferenceQuery{}, err
	}
	sort := q.Sort
	if sort.Field != "" {
		sort.Order = order
	}
	return ir.ReferenceQuery{
		Resource:            q.Resource,
		Target:              q.Target,
		ID:                  q.ID,
		Pagination:          ir.Pagination{Page: q.Page, PerPage: q.PerPage},
		Sort:                sort,
		Filter:              filter,
		ReferencingResource: q.Referencing,
	}, nil
}

// Step is one scenario action. Exactly one of the op fields is set.
type Step struct {
	Request string `yaml:"request,omitempty"`
	Fetch   string `yaml:"fetch,omitempty"`
	Release string `yaml:"release,omitempty"`
	Fail    string `yaml:"fail,omitempty"`
	Watch   string `yaml:"watch,omitempty"`
	Forget  string `yaml:"forget,omitempty"`
	Expect  string `yaml:"expect,omitempty"`
	Upsert  string `yaml:"upsert,omitempty"`

	// Data and Total answer a release. Without them the dataset answers.
	Data  []ir.Record `yaml:"data,omitempty"`
	Total *int        `yaml:"total,omitempty"`

	// Error and Temporary describe a fail.
	Error     string `yaml:"error,omitempty"`
	Temporary bool   `yaml:"temporary,omitempty"`

	// Records are written by an upsert step; Upsert names the resource.
	Records []ir.Record `yaml:"records,omitempty"`

	// View is compared by an expect step.
	View *ExpectView `yaml:"view,omitempty"`
}

// Step op names.
const (
	OpRequest = "request"
	OpFetch   = "fetch"
	OpRelease = "release"
	OpFail    = "fail"
	OpWatch   = "watch"
	OpForget  = "forget"
	OpExpect  = "expect"
	OpUpsert  = "upsert"
)

// Op returns the step's op and its argument.
func (s Step) Op() (op, arg string) {
	var ops [][2]string
	for _, c := range [][2]string{
		{OpRequest, s.Request},
		{OpFetch, s.Fetch},
		{OpRelease, s.Release},
		{OpFail, s.Fail},
		{OpWatch, s.Watch},
		{OpForget, s.Forget},
		{OpExpect, s.Expect},
		{OpUpsert, s.Upsert},
	} {
		if c[1] != "" {
			ops = append(ops, c)
		}
	}
	if len(ops) != 1 {
		return "", ""
	}
	return ops[0][0], ops[0][1]
}

// ExpectView is a subset match on a view: only set fields are checked.
type ExpectView struct {
	IDs     []ir.ID `yaml:"ids,omitempty"`
	Total   *int    `yaml:"total,omitempty"`
	Loading *bool   `yaml:"loading,omitempty"`
	Loaded  *bool   `yaml:"loaded,omitempty"`
	// Error is an error code, or "none" for no error.
	Error string `yaml:"error,omitempty"`
	// Records is the number of ids with a record in data.
	Records *int `yaml:"records,omitempty"`
	// NoTotal expects a nil total (no cache entry).
	NoTotal bool `yaml:"no_total,omitempty"`
}

// Assertion checks the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Query narrows transport_calls and notifications to one query.
	Query string `yaml:"query,omitempty"`

	// Resource is used by records.
	Resource string `yaml:"resource,omitempty"`

	// Count is the expected number.
	Count int `yaml:"count"`
}

// Assertion types.
const (
	AssertTransportCalls = "transport_calls"
	AssertNotifications  = "notifications"
	AssertCacheEntries   = "cache_entries"
	AssertRecords        = "records"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Queries) == 0 {
		return fmt.Errorf("queries map is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if _, err := coordinator.ParsePolicy(s.Policy); err != nil {
		return err
	}
	switch s.RecordStore {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("record_store must be memory or sqlite, got %q", s.RecordStore)
	}

	for name, q := range s.Queries {
		rq, err := q.Query()
		if err != nil {
			return fmt.Errorf("queries[%s]: %w", name, err)
		}
		if err := rq.Validate(); err != nil {
			return fmt.Errorf("queries[%s]: %w", name, err)
		}
	}

	for i, step := range s.Steps {
		op, arg := step.Op()
		if op == "" {
			return fmt.Errorf("steps[%d]: exactly one op is required", i)
		}
		if op == OpUpsert {
			if len(step.Records) == 0 {
				return fmt.Errorf("steps[%d]: upsert needs records", i)
			}
			continue
		}
		if _, ok := s.Queries[arg]; !ok {
			return fmt.Errorf("steps[%d]: unknown query %q", i, arg)
		}
		if op == OpExpect && step.View == nil {
			return fmt.Errorf("steps[%d]: expect needs a view", i)
		}
		if op == OpFail && step.Error == "" {
			return fmt.Errorf("steps[%d]: fail needs an error message", i)
		}
		if op != OpRelease && (step.Data != nil || step.Total != nil) {
			return fmt.Errorf("steps[%d]: data and total belong to release", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, s); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion, s *Scenario) error {
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	switch a.Type {
	case AssertTransportCalls, AssertNotifications:
		if a.Query != "" {
			if _, ok := s.Queries[a.Query]; !ok {
				return fmt.Errorf("assertions[%d]: unknown query %q", index, a.Query)
			}
		}
		if a.Type == AssertNotifications && a.Query == "" {
			return fmt.Errorf("assertions[%d]: query is required for notifications", index)
		}
	case AssertCacheEntries:
	case AssertRecords:
		if a.Resource == "" {
			return fmt.Errorf("assertions[%d]: resource is required for records", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
