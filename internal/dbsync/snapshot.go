package dbsync

import (
	"context"
	"fmt"
	"os"

	"github.com/namohq/dbsync/internal/sqlitex"
	"github.com/namohq/dbsync/internal/utils"
)

// SnapshotFile is a temporary, self-contained, consistent copy of the
// database, tagged with its own digest and size. It never outlives one
// sync call.
type SnapshotFile struct {
	Path   string
	Size   int64
	SHA256 string
}

// SnapshotCreator produces a point-in-time copy of a live database
// without blocking concurrent readers and writers.
type SnapshotCreator interface {
	Create(ctx context.Context, livePath, outPath string) (*SnapshotFile, error)
}

// VacuumSnapshotCreator builds snapshots with the engine's VACUUM INTO
// after a WAL checkpoint, so the copy needs no log replay. The copy is
// written to a temp sibling first and renamed into place.
type VacuumSnapshotCreator struct {
	engine sqlitex.Engine
}

func NewVacuumSnapshotCreator(engine sqlitex.Engine) *VacuumSnapshotCreator {
	return &VacuumSnapshotCreator{engine: engine}
}

func (c *VacuumSnapshotCreator) Create(ctx context.Context, livePath, outPath string) (*SnapshotFile, error) {
	if !utils.FileExists(livePath) {
		return nil, fmt.Errorf("snapshot: live database not found: %s", livePath)
	}
	if err := utils.EnsureParent(outPath); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	if err := c.engine.CheckpointWAL(ctx, livePath); err != nil {
		return nil, err
	}

	tmp := outPath + ".tmp"
	// VACUUM INTO refuses to overwrite; clear any leftover from a
	// previous crashed attempt.
	if err := utils.RemoveIfExists(tmp); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	if err := c.engine.VacuumInto(ctx, livePath, tmp); err != nil {
		os.Remove(tmp)
		return nil, err
	}

	digest, size, err := utils.FileSha256(tmp)
	if err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("snapshot: hash %s: %w", tmp, err)
	}

	if err := utils.AtomicRename(tmp, outPath); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	return &SnapshotFile{Path: outPath, Size: size, SHA256: digest}, nil
}
