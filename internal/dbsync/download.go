package dbsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/namohq/dbsync/internal/remote"
	"github.com/namohq/dbsync/internal/utils"
)

// SnapshotDownloader fetches one immutable remote version into a local
// file, verifying version identity, digest and length before exposing
// it. A failed download leaves no artifact behind.
type SnapshotDownloader struct {
	client remote.Client
}

func NewSnapshotDownloader(client remote.Client) *SnapshotDownloader {
	return &SnapshotDownloader{client: client}
}

// Download streams the addressed version to destPath. The bytes go to
// a ".tmp" sibling while a digest is computed incrementally; only after
// every verification passes is the temp renamed over destPath.
func (d *SnapshotDownloader) Download(ctx context.Context, key string, target *remote.Version, destPath string) (*SnapshotFile, error) {
	if err := utils.EnsureParent(destPath); err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}

	tmp := destPath + ".tmp"
	if err := utils.RemoveIfExists(tmp); err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}

	snap, err := d.downloadToTemp(ctx, key, target, tmp)
	if err != nil {
		os.Remove(tmp)
		return nil, err
	}

	if err := utils.AtomicRename(tmp, destPath); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("download: %w", err)
	}
	snap.Path = destPath
	return snap, nil
}

func (d *SnapshotDownloader) downloadToTemp(ctx context.Context, key string, target *remote.Version, tmp string) (*SnapshotFile, error) {
	body, served, err := d.client.GetVersion(ctx, key, target.VersionID)
	if err != nil {
		return nil, fmt.Errorf("download %s@%s: %w", key, target.VersionID, err)
	}
	defer body.Close()

	// The store must serve exactly the version addressed; anything
	// else means the object moved underneath us.
	if served.VersionID != target.VersionID {
		return nil, &IntegrityError{
			Reason: fmt.Sprintf("store served version %s, requested %s", served.VersionID, target.VersionID),
		}
	}

	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("download: create temp: %w", err)
	}

	hw := utils.NewHashingWriter(file)
	if _, err := copyWithContext(ctx, hw, body); err != nil {
		file.Close()
		return nil, fmt.Errorf("download %s@%s: %w", key, target.VersionID, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("download: sync temp: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("download: close temp: %w", err)
	}

	if target.Size > 0 && hw.Size() != target.Size {
		return nil, &IntegrityError{
			Reason: fmt.Sprintf("size mismatch: got %d bytes, recorded %d", hw.Size(), target.Size),
		}
	}

	expected := strings.ToLower(target.ContentSHA256)
	switch {
	case expected == "":
		// Version predates digest metadata; nothing to verify against.
		slog.Warn("download: no recorded digest, skipping content verification",
			"key", key, "version", target.VersionID)
	case hw.Sum() != expected:
		return nil, &IntegrityError{
			Reason: fmt.Sprintf("digest mismatch: got %s, recorded %s", hw.Sum(), expected),
		}
	}

	return &SnapshotFile{Size: hw.Size(), SHA256: hw.Sum()}, nil
}

// copyWithContext is io.Copy with a cancellation check per chunk.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 128*1024)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, werr
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return written, nil
			}
			return written, rerr
		}
	}
}
