package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/keys"
)

// KeyOptions holds flags for the key command.
type KeyOptions struct {
	*RootOptions
	Query queryFlags
}

// KeyResult is the identity of one query.
type KeyResult struct {
	ID         ir.ID  `json:"id"`
	Key        string `json:"key"`
	Descriptor string `json:"descriptor"`
}

// NewKeyCommand creates the key command.
func NewKeyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "key",
		Short: "Print the relation key and descriptor id of a query",
		Long: `Print the canonical relation key and the fetch descriptor id of a query.

The key names the relation (resource, target, id, referencing resource and
filter) and is shared by every page and sort order. The descriptor id also
covers pagination and sort and names one transport call.

Example:
  relq key -r comments -t post_id --id 1 --referencing posts --filter status=approved`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKey(opts, cmd)
		},
	}
	opts.Query.bind(cmd)
	return cmd
}

func runKey(opts *KeyOptions, cmd *cobra.Command) error {
	queries, err := opts.Query.queries()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid query", err)
	}

	results := make([]KeyResult, len(queries))
	for i, q := range queries {
		results[i] = KeyResult{
			ID:         q.ID,
			Key:        string(keys.ForQuery(q)),
			Descriptor: keys.Descriptor(q),
		}
	}

	f := newFormatter(opts.RootOptions, cmd)
	if opts.Format == "json" {
		return f.Success(results)
	}
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("id:         %s\nkey:        %s\ndescriptor: %s", r.ID, r.Key, r.Descriptor)
	}
	return f.Success(strings.Join(blocks, "\n\n"))
}
