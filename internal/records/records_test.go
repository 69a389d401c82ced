package records

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/ir"
)

func TestMemoryUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	err := m.UpsertMany(ctx, "comments", []ir.Record{
		{"id": int64(10), "body": "x"},
		{"id": int64(11), "body": "y"},
	})
	require.NoError(t, err)

	rec, ok, err := m.Get(ctx, "comments", ir.IntID(10))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", rec["body"])

	_, ok, err = m.Get(ctx, "comments", ir.IntID(12))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = m.Get(ctx, "posts", ir.IntID(10))
	require.NoError(t, err)
	assert.False(t, ok, "resources are separate namespaces")
}

func TestMemoryUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	require.NoError(t, m.UpsertMany(ctx, "comments", []ir.Record{{"id": int64(1), "body": "old"}}))
	require.NoError(t, m.UpsertMany(ctx, "comments", []ir.Record{{"id": int64(1), "body": "new"}}))

	rec, ok, err := m.Get(ctx, "comments", ir.IntID(1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", rec["body"])
	assert.Equal(t, 1, m.Len("comments"))
}

func TestMemoryGetManyPartial(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	require.NoError(t, m.UpsertMany(ctx, "comments", []ir.Record{{"id": int64(1)}, {"id": int64(3)}}))

	got, err := m.GetMany(ctx, "comments", []ir.ID{ir.IntID(1), ir.IntID(2), ir.IntID(3)})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, ir.IntID(1))
	assert.Contains(t, got, ir.IntID(3))
	assert.NotContains(t, got, ir.IntID(2))
}

func TestMemoryIDFields(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(ir.IDFields{"users": "uuid"})

	require.NoError(t, m.UpsertMany(ctx, "users", []ir.Record{{"uuid": "u-1", "name": "ada"}}))
	_, ok, err := m.Get(ctx, "users", ir.StringID("u-1"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryUpsertRejectsMissingID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	err := m.UpsertMany(ctx, "comments", []ir.Record{{"id": int64(1)}, {"body": "no id"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "comments[1]")
	assert.Equal(t, 0, m.Len("comments"), "batch is all-or-nothing")
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	in := ir.Record{"id": int64(1), "body": "x"}
	require.NoError(t, m.UpsertMany(ctx, "comments", []ir.Record{in}))

	in["body"] = "mutated"
	rec, _, _ := m.Get(ctx, "comments", ir.IntID(1))
	assert.Equal(t, "x", rec["body"])

	rec["body"] = "mutated again"
	again, _, _ := m.Get(ctx, "comments", ir.IntID(1))
	assert.Equal(t, "x", again["body"])
}

func TestMemoryOnChange(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	var gotResource string
	var gotIDs []ir.ID
	m.OnChange(func(resource string, ids []ir.ID) {
		gotResource = resource
		gotIDs = ids
	})

	require.NoError(t, m.UpsertMany(ctx, "comments", []ir.Record{{"id": int64(1)}, {"id": "a"}}))
	assert.Equal(t, "comments", gotResource)
	assert.Equal(t, []ir.ID{ir.IntID(1), ir.StringID("a")}, gotIDs)
}

func TestMemoryImplementsInterfaces(t *testing.T) {
	var _ Store = NewMemory(nil)
	var _ Observable = NewMemory(nil)
}

func TestMemoryCount(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	require.NoError(t, m.UpsertMany(ctx, "comments", []ir.Record{{"id": int64(1)}, {"id": int64(2)}}))

	n, err := m.Count(ctx, "comments")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = m.Count(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
