package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/store"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Dataset string
	IDField string
}

// SeedResult reports a finished seed.
type SeedResult struct {
	Resource string `json:"resource"`
	Dataset  string `json:"dataset"`
	Records  int    `json:"records"`
}

func (r SeedResult) String() string {
	return fmt.Sprintf("Seeded %d %s record(s) into %s", r.Records, r.Resource, r.Dataset)
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed <resource> <file>",
		Short: "Load records into a local dataset",
		Long: `Load records of one resource into the SQLite dataset served by the local
transport and by relq serve.

The file holds an array of objects, as JSON (.json) or YAML (anything
else). Records are keyed by the resource's identifier field; seeding the
same identifier again replaces the record.

Example:
  relq seed comments ./comments.yaml --dataset ./dataset.db
  relq seed reviews ./reviews.json --id-field slug`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dataset, "dataset", "", "dataset database path (default store.dataset)")
	cmd.Flags().StringVar(&opts.IDField, "id-field", "", "identifier field (default id_fields[resource] or id)")

	return cmd
}

func runSeed(opts *SeedOptions, resource, path string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	dataset := opts.Dataset
	if dataset == "" {
		dataset = cfg.Store.Dataset
	}
	idField := opts.IDField
	if idField == "" {
		idField = ir.IDFields(cfg.IDFields).For(resource)
	}

	recs, err := readRecords(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read records", err)
	}

	st, err := store.Open(dataset)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open dataset", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	n, err := st.Seed(ctx, resource, idField, recs)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to seed dataset", err)
	}
	return newFormatter(opts.RootOptions, cmd).Success(SeedResult{Resource: resource, Dataset: dataset, Records: n})
}

// readRecords decodes a JSON or YAML array of records.
func readRecords(path string) ([]ir.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ir.DecodeRecords(data)
	}
	var recs []ir.Record
	if err := yaml.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return recs, nil
}
