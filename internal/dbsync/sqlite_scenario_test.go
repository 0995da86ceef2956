package dbsync

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namohq/dbsync/internal/db"
	"github.com/namohq/dbsync/internal/kvstore"
	"github.com/namohq/dbsync/internal/remote"
	"github.com/namohq/dbsync/internal/sqlitex"
)

func newNotesDB(t *testing.T, path string, rows int) {
	t.Helper()
	database, err := db.NewSqliteDB(db.WithPath(path), db.WithMaxOpenConns(1))
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec("CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL);")
	require.NoError(t, err)
	for i := 0; i < rows; i++ {
		_, err = database.Exec("INSERT INTO notes (body) VALUES (?);", "note")
		require.NoError(t, err)
	}
}

func addNote(t *testing.T, path, body string) {
	t.Helper()
	database, err := db.NewSqliteDB(db.WithPath(path), db.WithMaxOpenConns(1))
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec("INSERT INTO notes (body) VALUES (?);", body)
	require.NoError(t, err)
}

func countNotes(t *testing.T, path string) int {
	t.Helper()
	database, err := db.NewSqliteDB(db.WithPath(path), db.WithMaxOpenConns(1))
	require.NoError(t, err)
	defer database.Close()

	var n int
	require.NoError(t, database.Get(&n, "SELECT COUNT(*) FROM notes"))
	return n
}

func newEngineSyncer(client remote.Client, opts Options) *Syncer {
	engine := sqlitex.NewEngine()
	return NewSyncer(client, kvstore.NewMemStore(),
		NewVacuumSnapshotCreator(engine),
		NewBackupSnapshotApplier(engine, opts.KeepPrev, opts.BusyRetries, opts.BusyDelay),
		opts)
}

func TestVacuumSnapshotCreator(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	live := filepath.Join(tmp, "live.db")
	out := filepath.Join(tmp, "snap.db")
	newNotesDB(t, live, 12)

	snap, err := NewVacuumSnapshotCreator(sqlitex.NewEngine()).Create(ctx, live, out)
	require.NoError(t, err)

	assert.Equal(t, out, snap.Path)
	assert.NotEmpty(t, snap.SHA256)
	assert.Positive(t, snap.Size)
	assert.NoFileExists(t, out+".tmp")
	assert.Equal(t, 12, countNotes(t, out))
}

func TestVacuumSnapshotCreator_LiveMissing(t *testing.T) {
	tmp := t.TempDir()
	_, err := NewVacuumSnapshotCreator(sqlitex.NewEngine()).Create(context.Background(),
		filepath.Join(tmp, "absent.db"), filepath.Join(tmp, "snap.db"))
	require.Error(t, err)
}

func TestBackupSnapshotApplier_CreatesAndReplaces(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	snapshot := filepath.Join(tmp, "snap.db")
	live := filepath.Join(tmp, "live.db")
	newNotesDB(t, snapshot, 9)

	applier := NewBackupSnapshotApplier(sqlitex.NewEngine(), true, 1, 0)

	// Live missing: direct copy.
	require.NoError(t, applier.Apply(ctx, live, snapshot))
	assert.Equal(t, 9, countNotes(t, live))

	// Live present: online backup over the existing database.
	addNote(t, live, "local only")
	require.Equal(t, 10, countNotes(t, live))
	require.NoError(t, applier.Apply(ctx, live, snapshot))
	assert.Equal(t, 9, countNotes(t, live))
	assert.NoFileExists(t, live+".prev")
}

func TestSync_SQLiteEndToEnd(t *testing.T) {
	ctx := context.Background()
	client := remote.NewMemClient()
	scope := Scope{Bucket: "sync-bucket", Key: "databases/notes.db"}
	opts := testOptions()

	publisher := newEngineSyncer(client, opts)
	publisherLive := filepath.Join(t.TempDir(), "notes.db")
	newNotesDB(t, publisherLive, 5)

	res, err := publisher.Push(ctx, scope, publisherLive, false)
	require.NoError(t, err)
	require.Equal(t, OutcomePublished, res.Outcome)

	replica := newEngineSyncer(client, opts)
	replicaLive := filepath.Join(t.TempDir(), "notes.db")

	res, err = replica.Pull(ctx, scope, replicaLive, false)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, 5, countNotes(t, replicaLive))

	// Local edit the syncer didn't make.
	addNote(t, replicaLive, "replica only")

	res, err = replica.Pull(ctx, scope, replicaLive, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConflictLocalChanged, res.Outcome)
	assert.Equal(t, 6, countNotes(t, replicaLive))

	res, err = replica.Pull(ctx, scope, replicaLive, true)
	require.NoError(t, err)
	require.Equal(t, OutcomeReplaced, res.Outcome)
	assert.Equal(t, 5, countNotes(t, replicaLive))

	require.NotEmpty(t, res.BackupPath)
	assert.Equal(t, 6, countNotes(t, res.BackupPath), "backup must preserve the overwritten state")

	// Round again: replica publishes, the first node takes it back.
	addNote(t, replicaLive, "replica round two")
	res, err = replica.Push(ctx, scope, replicaLive, false)
	require.NoError(t, err)
	require.Equal(t, OutcomePublished, res.Outcome)

	res, err = publisher.Pull(ctx, scope, publisherLive, false)
	require.NoError(t, err)
	require.Equal(t, OutcomeReplaced, res.Outcome)
	assert.Equal(t, 6, countNotes(t, publisherLive))
}
