package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAppliesSchemaAndPragmas(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var mode string
	require.NoError(t, s.DB().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	version, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)

	for _, table := range []string{"records", "dataset"} {
		var name string
		err := s.DB().QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}

	var index string
	err = s.DB().QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'records_seq'`).Scan(&index)
	require.NoError(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relq.db")

	s1, err := Open(path)
	require.NoError(t, err)
	_, err = s1.Seed(context.Background(), "comments", "id", nil)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	version, err := s2.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpenInMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Seed(context.Background(), "comments", "id", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCloseNilDB(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}
