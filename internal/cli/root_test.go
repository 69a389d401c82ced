package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "relq", cmd.Use)
	assert.Contains(t, cmd.Long, "relation")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"query", "key", "seed", "serve", "test"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "command %s should exist", name)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	config := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, config)
	assert.Equal(t, "c", config.Shorthand)
}

func TestQueryFlags(t *testing.T) {
	cmd := NewRootCommand()
	query, _, err := cmd.Find([]string{"query"})
	require.NoError(t, err)

	for _, name := range []string{"resource", "target", "id", "referencing", "page", "per-page", "pages", "sort", "order", "filter", "filter-json", "transport", "endpoint"} {
		assert.NotNil(t, query.Flags().Lookup(name), "query --%s", name)
	}
	assert.Equal(t, "r", query.Flags().Lookup("resource").Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "--format", "xml", "key", "-r", "comments", "-t", "post_id", "--id", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestMissingConfigFile(t *testing.T) {
	_, _, err := execute(t, "--config", "/nonexistent/relq.yaml", "seed", "comments", "x.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestInvalidConfigFile(t *testing.T) {
	cfg := writeFile(t, t.TempDir(), "relq.yaml", "fetch:\n  policy: network-only\n")
	_, _, err := execute(t, "--config", cfg, "seed", "comments", "x.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "policy")
}
