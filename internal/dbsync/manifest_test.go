package dbsync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namohq/dbsync/internal/kvstore"
)

func testManifest() *Manifest {
	return &Manifest{
		Bucket:             "bucket",
		Key:                "app.db",
		RemoteVersionID:    "v-123",
		RemoteETag:         "etag-1",
		RemoteSHA256:       "aa11",
		SizeBytes:          4096,
		RemoteLastModified: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		ContentSHA256:      "bb22",
		AppliedAt:          time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC),
	}
}

func TestManifestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	scope := Scope{Bucket: "bucket", Key: "app.db"}
	store := NewManifestStore(kvstore.NewMemStore())

	loaded, err := store.Load(ctx, scope)
	require.NoError(t, err)
	assert.Nil(t, loaded, "absent manifest means never synced")

	m := testManifest()
	require.NoError(t, store.Save(ctx, scope, m))

	loaded, err = store.Load(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)
}

func TestManifestStore_RoundTripBytesStable(t *testing.T) {
	ctx := context.Background()
	scope := Scope{Bucket: "bucket", Key: "app.db"}
	kv := kvstore.NewMemStore()
	store := NewManifestStore(kv)

	require.NoError(t, store.Save(ctx, scope, testManifest()))
	first, err := kv.Read(ctx, "manifest/bucket/app.db")
	require.NoError(t, err)

	// Load and re-save; the serialized form must not wobble.
	loaded, err := store.Load(ctx, scope)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, scope, loaded))

	second, err := kv.Read(ctx, "manifest/bucket/app.db")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestManifestStore_OverwritesWholesale(t *testing.T) {
	ctx := context.Background()
	scope := Scope{Bucket: "bucket", Key: "app.db"}
	store := NewManifestStore(kvstore.NewMemStore())

	require.NoError(t, store.Save(ctx, scope, testManifest()))

	next := testManifest()
	next.RemoteVersionID = "v-456"
	next.RemoteETag = ""
	require.NoError(t, store.Save(ctx, scope, next))

	loaded, err := store.Load(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, "v-456", loaded.RemoteVersionID)
	assert.Empty(t, loaded.RemoteETag, "stale fields must not survive a save")
}

func TestManifestStore_ScopesAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := NewManifestStore(kvstore.NewMemStore())

	a := Scope{Bucket: "b1", Key: "app.db"}
	b := Scope{Bucket: "b2", Key: "app.db"}

	require.NoError(t, store.Save(ctx, a, testManifest()))
	loaded, err := store.Load(ctx, b)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	require.NoError(t, store.Delete(ctx, a))
	loaded, err = store.Load(ctx, a)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestManifestStore_FileBacked(t *testing.T) {
	ctx := context.Background()
	scope := Scope{Bucket: "bucket", Key: "app.db"}

	kv, err := kvstore.NewFileStore(filepath.Join(t.TempDir(), "meta"))
	require.NoError(t, err)
	store := NewManifestStore(kv)

	m := testManifest()
	require.NoError(t, store.Save(ctx, scope, m))
	loaded, err := store.Load(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)
}
