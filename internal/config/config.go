// Package config loads relq configuration.
//
// Files are YAML. They are checked against an embedded CUE schema, which
// also supplies defaults and rejects unknown keys, then decoded into Config.
// Checks CUE cannot express (durations, endpoint presence) run afterwards.
package config

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Transport kinds.
const (
	TransportLocal = "local"
	TransportHTTP  = "http"
	TransportNATS  = "nats"
)

// Record store backends.
const (
	RecordsMemory = "memory"
	RecordsSQLite = "sqlite"
)

// Config is the full relq configuration.
type Config struct {
	Transport Transport         `json:"transport"`
	Store     Store             `json:"store"`
	Fetch     Fetch             `json:"fetch"`
	IDFields  map[string]string `json:"id_fields"`
	Metrics   Metrics           `json:"metrics"`
}

// Transport selects where fetches go.
type Transport struct {
	Kind          string `json:"kind"`
	Endpoint      string `json:"endpoint"`
	SubjectPrefix string `json:"subject_prefix"`
	Timeout       string `json:"timeout"`
	UserAgent     string `json:"user_agent"`

	// TimeoutDuration is Timeout parsed.
	TimeoutDuration time.Duration `json:"-"`
}

// Store selects the record store and the local dataset.
type Store struct {
	Records string `json:"records"`
	Path    string `json:"path"`
	Dataset string `json:"dataset"`
}

// Fetch tunes the coordinator.
type Fetch struct {
	Policy        string `json:"policy"`
	MaxConcurrent int    `json:"max_concurrent"`
	Timeout       string `json:"timeout"`
	Retry         Retry  `json:"retry"`

	TimeoutDuration time.Duration `json:"-"`
}

// Retry configures retrying of temporary transport errors.
// MaxAttempts 1 disables retries.
type Retry struct {
	MaxAttempts     int    `json:"max_attempts"`
	InitialInterval string `json:"initial_interval"`
	MaxInterval     string `json:"max_interval"`

	InitialDuration time.Duration `json:"-"`
	MaxDuration     time.Duration `json:"-"`
}

// Metrics configures the Prometheus endpoint. An empty Addr disables it.
type Metrics struct {
	Addr string `json:"addr"`
}

// Error is a configuration error at a field path.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return "config: " + e.Message
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Default returns the configuration of an empty file.
func Default() *Config {
	cfg, err := Parse(nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load reads and parses the file at path. An empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates YAML data against the schema and decodes it.
func Parse(data []byte) (*Config, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, formatCUEError(err)
	}
	if cfg.IDFields == nil {
		cfg.IDFields = map[string]string{}
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate re-runs the checks that follow schema validation, for callers
// that change fields after loading.
func (c *Config) Validate() error {
	return c.check()
}

// check parses durations and enforces cross-field rules.
func (c *Config) check() error {
	var err error
	durations := []struct {
		field string
		src   string
		dst   *time.Duration
	}{
		{"transport.timeout", c.Transport.Timeout, &c.Transport.TimeoutDuration},
		{"fetch.timeout", c.Fetch.Timeout, &c.Fetch.TimeoutDuration},
		{"fetch.retry.initial_interval", c.Fetch.Retry.InitialInterval, &c.Fetch.Retry.InitialDuration},
		{"fetch.retry.max_interval", c.Fetch.Retry.MaxInterval, &c.Fetch.Retry.MaxDuration},
	}
	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(d.src); err != nil {
			return &Error{Field: d.field, Message: fmt.Sprintf("invalid duration %q", d.src)}
		}
		if *d.dst < 0 {
			return &Error{Field: d.field, Message: "must not be negative"}
		}
	}

	switch c.Transport.Kind {
	case TransportHTTP:
		u, err := url.Parse(c.Transport.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &Error{Field: "transport.endpoint", Message: "http transport needs an http(s) URL"}
		}
	case TransportNATS:
		if c.Transport.Endpoint == "" {
			return &Error{Field: "transport.endpoint", Message: "nats transport needs a server URL"}
		}
	}
	return nil
}

// formatCUEError reports the first CUE error with its field path.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}
	first := errs[0]
	path := first.Path()
	if len(path) > 0 && strings.HasPrefix(path[0], "#") {
		path = path[1:]
	}
	format, args := first.Msg()
	return &Error{Field: strings.Join(path, "."), Message: fmt.Sprintf(format, args...)}
}
