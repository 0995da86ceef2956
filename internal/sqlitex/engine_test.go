package sqlitex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namohq/dbsync/internal/db"
)

func newTestDB(t *testing.T, path string, rows int) {
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

func countNotes(t *testing.T, path string) int {
	t.Helper()
	database, err := db.NewSqliteDB(db.WithPath(path), db.WithMaxOpenConns(1))
	require.NoError(t, err)
	defer database.Close()

	var n int
	require.NoError(t, database.Get(&n, "SELECT COUNT(*) FROM notes"))
	return n
}

func TestVacuumInto_ProducesConsistentCopy(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	live := filepath.Join(tmp, "live.db")
	snap := filepath.Join(tmp, "snap.db")
	newTestDB(t, live, 10)

	engine := NewEngine()
	require.NoError(t, engine.CheckpointWAL(ctx, live))
	require.NoError(t, engine.VacuumInto(ctx, live, snap))

	assert.FileExists(t, snap)
	assert.Equal(t, 10, countNotes(t, snap))
	require.NoError(t, engine.IntegrityCheck(ctx, snap))
}

func TestBackupInto_ReplacesDestinationPages(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src.db")
	dst := filepath.Join(tmp, "dst.db")
	newTestDB(t, src, 7)
	newTestDB(t, dst, 2)

	engine := NewEngine()
	require.NoError(t, engine.BackupInto(ctx, src, dst))

	assert.Equal(t, 7, countNotes(t, dst))
	require.NoError(t, engine.IntegrityCheck(ctx, dst))
}

func TestIntegrityCheck_DetectsCorruption(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	live := filepath.Join(tmp, "live.db")
	newTestDB(t, live, 50)

	engine := NewEngine()
	require.NoError(t, engine.CheckpointWAL(ctx, live))

	// Stomp over a page in the middle of the file.
	f, err := os.OpenFile(live, os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteAt(make([]byte, 512), 4096+100)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = engine.IntegrityCheck(ctx, live)
	require.Error(t, err)

	var ierr *IntegrityError
	if assert.ErrorAs(t, err, &ierr) {
		assert.NotEmpty(t, ierr.Diagnostic)
	}
}

func TestVacuumInto_FailsWhenOutputExists(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	live := filepath.Join(tmp, "live.db")
	out := filepath.Join(tmp, "out.db")
	newTestDB(t, live, 1)
	require.NoError(t, os.WriteFile(out, []byte("occupied"), 0o644))

	err := NewEngine().VacuumInto(ctx, live, out)
	assert.Error(t, err)
}
