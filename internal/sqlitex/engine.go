// Package sqlitex wraps the SQLite primitives the sync protocol needs:
// WAL checkpointing, whole-database page copies, VACUUM INTO and
// integrity checks. It talks to the database through the ncruces
// low-level API rather than database/sql, because the online backup
// primitive is not reachable through a pooled connection.
package sqlitex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Engine is the embedded database engine contract consumed by snapshot
// creation and application.
type Engine interface {
	// CheckpointWAL flushes the write-ahead log of the database at
	// dbPath into the main file, so a subsequent copy needs no replay.
	CheckpointWAL(ctx context.Context, dbPath string) error

	// BackupInto copies all committed pages of the database at srcPath
	// over the database at dstPath using the engine's online backup,
	// leaving any open handles on dstPath coherent.
	BackupInto(ctx context.Context, srcPath, dstPath string) error

	// VacuumInto writes a compacted, transactionally consistent copy of
	// the database at dbPath to outPath. outPath must not exist.
	VacuumInto(ctx context.Context, dbPath, outPath string) error

	// IntegrityCheck runs PRAGMA integrity_check against dbPath and
	// returns an *IntegrityError when the result is not "ok".
	IntegrityCheck(ctx context.Context, dbPath string) error
}

// IntegrityError carries the engine's diagnostic rows from a failed
// integrity check.
type IntegrityError struct {
	DBPath     string
	Diagnostic string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("sqlitex: integrity check failed for %s: %s", e.DBPath, e.Diagnostic)
}

// IsBusy reports whether err is a transient busy/locked engine
// condition worth retrying.
func IsBusy(err error) bool {
	return errors.Is(err, sqlite3.BUSY) || errors.Is(err, sqlite3.LOCKED)
}

// SQLiteEngine is the Engine implementation over ncruces/go-sqlite3.
type SQLiteEngine struct{}

func NewEngine() *SQLiteEngine {
	return &SQLiteEngine{}
}

func (e *SQLiteEngine) CheckpointWAL(ctx context.Context, dbPath string) error {
	return e.withConn(ctx, dbPath, func(conn *sqlite3.Conn) error {
		if err := conn.Exec("PRAGMA wal_checkpoint(FULL);"); err != nil {
			return fmt.Errorf("sqlitex: checkpoint %s: %w", dbPath, err)
		}
		return nil
	})
}

func (e *SQLiteEngine) BackupInto(ctx context.Context, srcPath, dstPath string) error {
	return e.withConn(ctx, dstPath, func(conn *sqlite3.Conn) error {
		if err := conn.Restore("main", srcPath); err != nil {
			return fmt.Errorf("sqlitex: restore %s from %s: %w", dstPath, srcPath, err)
		}
		return nil
	})
}

func (e *SQLiteEngine) VacuumInto(ctx context.Context, dbPath, outPath string) error {
	return e.withConn(ctx, dbPath, func(conn *sqlite3.Conn) error {
		quoted := strings.ReplaceAll(outPath, "'", "''")
		if err := conn.Exec(fmt.Sprintf("VACUUM INTO '%s';", quoted)); err != nil {
			return fmt.Errorf("sqlitex: vacuum %s into %s: %w", dbPath, outPath, err)
		}
		return nil
	})
}

func (e *SQLiteEngine) IntegrityCheck(ctx context.Context, dbPath string) error {
	return e.withConn(ctx, dbPath, func(conn *sqlite3.Conn) error {
		stmt, _, err := conn.Prepare("PRAGMA integrity_check;")
		if err != nil {
			return fmt.Errorf("sqlitex: integrity check %s: %w", dbPath, err)
		}
		defer stmt.Close()

		var rows []string
		for stmt.Step() {
			rows = append(rows, stmt.ColumnText(0))
		}
		if err := stmt.Err(); err != nil {
			return fmt.Errorf("sqlitex: integrity check %s: %w", dbPath, err)
		}

		if len(rows) == 1 && strings.EqualFold(rows[0], "ok") {
			return nil
		}
		return &IntegrityError{DBPath: dbPath, Diagnostic: strings.Join(rows, "; ")}
	})
}

func (e *SQLiteEngine) withConn(ctx context.Context, dbPath string, fn func(*sqlite3.Conn) error) error {
	conn, err := sqlite3.Open(dbPath)
	if err != nil {
		return fmt.Errorf("sqlitex: open %s: %w", dbPath, err)
	}
	defer conn.Close()

	old := conn.SetInterrupt(ctx)
	defer conn.SetInterrupt(old)

	return fn(conn)
}
