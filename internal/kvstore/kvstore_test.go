package kvstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Read(ctx, "scope")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.WriteAtomic(ctx, "scope", []byte(`{"v":1}`)))
	value, err := s.Read(ctx, "scope")
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(value))

	// Overwrite wholesale.
	require.NoError(t, s.WriteAtomic(ctx, "scope", []byte(`{"v":2}`)))
	value, err = s.Read(ctx, "scope")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(value))

	// Delete, and delete again.
	require.NoError(t, s.Delete(ctx, "scope"))
	_, err = s.Read(ctx, "scope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Delete(ctx, "scope"))
}

func TestMemStore(t *testing.T) {
	testStore(t, NewMemStore())
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "meta"))
	require.NoError(t, err)
	testStore(t, s)
}

func TestSQLStore(t *testing.T) {
	s, err := NewSQLStore(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	defer s.Close()
	testStore(t, s)
}

func TestFileStore_NoTempLeftBehind(t *testing.T) {
	root := filepath.Join(t.TempDir(), "meta")
	s, err := NewFileStore(root)
	require.NoError(t, err)

	require.NoError(t, s.WriteAtomic(context.Background(), "bucket/key", []byte("data")))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), ".tmp")
	// Path-ish key characters are flattened to one file name.
	assert.Equal(t, "bucket_key.json", entries[0].Name())
}

func TestMemStore_ReadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.WriteAtomic(ctx, "k", []byte("abc")))

	value, err := s.Read(ctx, "k")
	require.NoError(t, err)
	value[0] = 'X'

	again, err := s.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}
