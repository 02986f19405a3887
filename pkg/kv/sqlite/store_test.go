package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, filepath.Join(t.TempDir(), "kv_test.db"))

	require.NoError(t, s.Set(ctx, "envelope", []byte(`{"schemaVersion":3}`)))

	data, ok, err := s.Get(ctx, "envelope")
	require.NoError(t, err)
	require.True(t, ok, "expected key to be found")
	assert.Equal(t, `{"schemaVersion":3}`, string(data))

	_, ok, err = s.Get(ctx, "other")
	require.NoError(t, err)
	assert.False(t, ok, "expected miss for unknown key")
}

func TestSetOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, filepath.Join(t.TempDir(), "kv_test.db"))

	require.NoError(t, s.Set(ctx, "k", []byte("one")))
	require.NoError(t, s.Set(ctx, "k", []byte("two")))

	data, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data), "last write wins")
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv_test.db")

	first, err := New(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "k", []byte("durable")))
	require.NoError(t, first.Close())

	second := newTestStore(t, path)
	data, ok, err := second.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "durable", string(data))
}
