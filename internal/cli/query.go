package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/relq/internal/coordinator"
	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/keys"
	"github.com/roach88/relq/internal/view"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Query     queryFlags
	Pages     int
	Transport string
	Endpoint  string
}

// PageResult is one settled page.
type PageResult struct {
	ID         ir.ID     `json:"id"`
	Page       int       `json:"page"`
	Key        string    `json:"key"`
	Descriptor string    `json:"descriptor"`
	View       view.View `json:"view"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Fetch relation pages through the cache",
		Long: `Fetch one or more pages of a relation through the cache and print the
composed views.

Every --id is fetched concurrently, bounded by fetch.max_concurrent.
Pages of one id are fetched in order and stop early at the last page.

Exit codes:
  0 - All pages settled without error
  1 - One or more pages settled with an error
  2 - Command error (bad flags, config, transport)

Examples:
  relq query -r comments -t post_id --id 1 --per-page 10 --page 1 --pages 3
  relq query -r comments -t post_id --id 1,2,3 --filter status=approved
  relq query -c relq.yaml --transport http --endpoint http://localhost:8080 -r comments -t post_id --id 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	opts.Query.bind(cmd)
	cmd.Flags().IntVar(&opts.Pages, "pages", 1, "number of consecutive pages to fetch per id")
	cmd.Flags().StringVar(&opts.Transport, "transport", "", "override transport.kind (local|http|nats)")
	cmd.Flags().StringVar(&opts.Endpoint, "endpoint", "", "override transport.endpoint")

	return cmd
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	queries, err := opts.Query.queries()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid query", err)
	}
	if opts.Pages < 1 {
		return NewExitError(ExitCommandError, "--pages must be at least 1")
	}
	if opts.Pages > 1 && opts.Query.PerPage == 0 {
		return NewExitError(ExitCommandError, "--pages needs --per-page")
	}
	if opts.Pages > 1 && opts.Query.Page == 0 {
		for i := range queries {
			queries[i].Pagination.Page = 1
		}
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Transport != "" {
		cfg.Transport.Kind = opts.Transport
	}
	if opts.Endpoint != "" {
		cfg.Transport.Endpoint = opts.Endpoint
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	fetcher, closeFetcher, err := buildFetcher(cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up transport", err)
	}
	recs, closeRecords, err := buildRecordStore(cfg)
	if err != nil {
		_ = closeFetcher()
		return WrapExitError(ExitCommandError, "failed to open record store", err)
	}
	defer func() {
		if err := closeAll(closeFetcher, closeRecords); err != nil {
			logger.Error("error closing stores", "error", err)
		}
	}()

	coord, err := buildCoordinator(cfg, fetcher, recs, logger, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	runDone := make(chan error, 1)
	go func() { runDone <- coord.Run(ctx) }()
	defer func() {
		cancel()
		<-runDone
	}()

	pages, err := fetchPages(ctx, coord, queries, opts.Pages, cfg.Fetch.MaxConcurrent)
	if err != nil {
		for _, f := range coord.InFlight() {
			logger.Warn("fetch still in flight",
				"fetch", f.Token,
				"resource", f.Resource,
				"key", string(f.Key),
				"since", f.Started)
		}
		return WrapExitError(ExitFailure, "query interrupted", err)
	}
	logCache(logger, coord)
	return outputPages(opts, cmd, pages)
}

// logCache reports the relation cache after a query at debug level.
func logCache(logger *slog.Logger, coord *coordinator.Coordinator) {
	cache := coord.Cache()
	stats := cache.Stats()
	logger.Debug("cache summary",
		"entries", cache.Len(),
		"hits", stats.Hits,
		"misses", stats.Misses,
		"puts", stats.Puts,
		"hit_ratio", stats.HitRatio())
	for _, key := range cache.Keys() {
		entry, _ := cache.Peek(key)
		logger.Debug("cache entry", "key", string(key), "ids", len(entry.IDs), "total", entry.Total, "version", entry.Version)
	}
}

// fetchPages fetches every query's pages, queries concurrently and pages
// in order. Pages of one query share a relation key, so fetching them one
// at a time keeps each page's view its own.
func fetchPages(ctx context.Context, coord *coordinator.Coordinator, queries []ir.ReferenceQuery, pages, limit int) ([]PageResult, error) {
	results := make([][]PageResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for i, q := range queries {
		g.Go(func() error {
			for n := 0; n < pages; n++ {
				pq := q
				pq.Pagination.Page = q.Pagination.Page + n
				v, err := coord.Fetch(gctx, pq)
				if err != nil {
					return err
				}
				results[i] = append(results[i], PageResult{
					ID:         pq.ID,
					Page:       pq.Pagination.Page,
					Key:        string(keys.ForQuery(pq)),
					Descriptor: keys.Descriptor(pq),
					View:       v,
				})
				if v.Error != nil || lastPage(pq.Pagination, v) {
					break
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []PageResult
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func lastPage(p ir.Pagination, v view.View) bool {
	if p.PerPage == 0 || v.Total == nil {
		return true
	}
	return p.Page*p.PerPage >= *v.Total
}

func outputPages(opts *QueryOptions, cmd *cobra.Command, pages []PageResult) error {
	failed := 0
	for _, p := range pages {
		if p.View.Error != nil {
			failed++
		}
	}

	f := newFormatter(opts.RootOptions, cmd)
	if opts.Format == "json" {
		if failed > 0 {
			if err := f.Partial(pages, ErrCodeFetchFailed, fmt.Sprintf("%d page(s) failed", failed)); err != nil {
				return err
			}
			return NewExitError(ExitFailure, fmt.Sprintf("%d page(s) failed", failed))
		}
		return f.Success(pages)
	}

	w := cmd.OutOrStdout()
	resource, target := opts.Query.Resource, opts.Query.Target
	for _, p := range pages {
		fmt.Fprintln(w, pageHeader(resource, target, p))
		for _, line := range pageLines(p.View) {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d page(s) failed", failed))
	}
	return nil
}

func pageHeader(resource, target string, p PageResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s=%s]", resource, target, p.ID)
	if p.Page > 0 {
		fmt.Fprintf(&b, " page %d", p.Page)
	}
	total := "?"
	if p.View.Total != nil {
		total = fmt.Sprint(*p.View.Total)
	}
	fmt.Fprintf(&b, ": %d of %s", len(p.View.IDs), total)
	if missing := len(p.View.Missing()); missing > 0 {
		fmt.Fprintf(&b, ", %d missing", missing)
	}
	if p.View.Error != nil {
		fmt.Fprintf(&b, " (error: %v)", p.View.Error)
	}
	return b.String()
}

// pageLines renders the page's records as canonical JSON in ids order.
func pageLines(v view.View) []string {
	lines := make([]string, 0, len(v.IDs))
	for _, id := range v.IDs {
		rec, ok := v.Data[id]
		if !ok {
			lines = append(lines, fmt.Sprintf("%s (missing)", id))
			continue
		}
		val, err := ir.FromGo(rec)
		if err != nil {
			lines = append(lines, fmt.Sprintf("%s (unrenderable: %v)", id, err))
			continue
		}
		lines = append(lines, string(ir.MarshalCanonical(val)))
	}
	return lines
}
