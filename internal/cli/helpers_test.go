package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const commentsYAML = `
- {id: 10, post_id: 1, body: first}
- {id: 11, post_id: 1, body: second}
- {id: 12, post_id: 1, body: third}
- {id: 20, post_id: 2, body: other}
`

// seededConfig seeds a dataset of comments through the seed command and
// returns a config file pointing the local transport at it.
func seededConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dataset := filepath.Join(dir, "dataset.db")
	cfg := writeFile(t, dir, "relq.yaml", fmt.Sprintf("store:\n  dataset: %q\n", dataset))
	records := writeFile(t, dir, "comments.yaml", commentsYAML)

	_, _, err := execute(t, "--config", cfg, "seed", "comments", records)
	require.NoError(t, err)
	return cfg
}
