package dbsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/namohq/dbsync/internal/sqlitex"
	"github.com/namohq/dbsync/internal/utils"
)

// SnapshotApplier installs a verified snapshot as the new content of
// the live database.
type SnapshotApplier interface {
	Apply(ctx context.Context, livePath, snapshotPath string) error
}

// BackupSnapshotApplier replaces the live database through the
// engine's online backup, keeping open handles and page caches
// coherent during the swap. The apply is followed by an integrity
// check; when a ".prev" copy was taken and the apply failed, the copy
// is restored best-effort before the error propagates.
type BackupSnapshotApplier struct {
	engine      sqlitex.Engine
	keepPrev    bool
	busyRetries int
	busyDelay   time.Duration
}

func NewBackupSnapshotApplier(engine sqlitex.Engine, keepPrev bool, busyRetries int, busyDelay time.Duration) *BackupSnapshotApplier {
	return &BackupSnapshotApplier{
		engine:      engine,
		keepPrev:    keepPrev,
		busyRetries: busyRetries,
		busyDelay:   busyDelay,
	}
}

func (a *BackupSnapshotApplier) Apply(ctx context.Context, livePath, snapshotPath string) error {
	if !utils.FileExists(snapshotPath) {
		return fmt.Errorf("apply: snapshot not found: %s", snapshotPath)
	}

	// First pull onto a fresh replica: no live handles exist yet, so
	// installing the snapshot file directly is safe.
	if !utils.FileExists(livePath) {
		if err := utils.CopyFile(snapshotPath, livePath); err != nil {
			return fmt.Errorf("apply: install %s: %w", livePath, err)
		}
		return a.engine.IntegrityCheck(ctx, livePath)
	}

	if err := a.withBusyRetry(ctx, func() error {
		return a.engine.CheckpointWAL(ctx, livePath)
	}); err != nil {
		return err
	}

	prevPath := ""
	if a.keepPrev {
		prevPath = livePath + ".prev"
		if err := utils.CopyFile(livePath, prevPath); err != nil {
			return fmt.Errorf("apply: prev copy: %w", err)
		}
	}

	err := a.withBusyRetry(ctx, func() error {
		return a.engine.BackupInto(ctx, snapshotPath, livePath)
	})
	if err == nil {
		err = a.engine.IntegrityCheck(ctx, livePath)
	}

	if err != nil && prevPath != "" {
		// Crash-safety backstop, not a guarantee; the pre-apply backup
		// taken by the orchestrator is the real recovery path.
		if rerr := utils.CopyFile(prevPath, livePath); rerr != nil {
			slog.Error("apply: rollback to prev copy failed", "path", prevPath, "error", rerr)
		}
	}
	if prevPath != "" {
		if rerr := utils.RemoveIfExists(prevPath); rerr != nil {
			slog.Warn("apply: could not remove prev copy", "path", prevPath, "error", rerr)
		}
	}

	return err
}

func (a *BackupSnapshotApplier) withBusyRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= a.busyRetries; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = fn(); err == nil || !sqlitex.IsBusy(err) {
			return err
		}
		slog.Debug("apply: engine busy, retrying", "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.busyDelay):
		}
	}
	return err
}
