package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/relq/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// comment builds a dataset record for the comments resource.
func comment(id int64, postID int64, status string, created int64) ir.Record {
	return ir.Record{"id": id, "post_id": postID, "status": status, "created_at": created}
}
