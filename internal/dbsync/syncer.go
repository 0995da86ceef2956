package dbsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/namohq/dbsync/internal/kvstore"
	"github.com/namohq/dbsync/internal/remote"
	"github.com/namohq/dbsync/internal/utils"
)

// Options tune the orchestrator's retry policy and backup behavior.
type Options struct {
	// Retries is how many extra download+apply attempts are made after
	// an integrity failure. The download is repeated each time, since
	// the failure may stem from a corrupted transfer.
	Retries int

	// RetryDelay is the pause between integrity-failure attempts.
	RetryDelay time.Duration

	// BusyRetries/BusyDelay bound the engine busy/locked retry loop
	// inside the applier.
	BusyRetries int
	BusyDelay   time.Duration

	// BackupDir receives pre-overwrite backups. Defaults to the live
	// database's directory.
	BackupDir string

	// BackupNamer overrides the default backup file naming.
	BackupNamer func(BackupNameContext) string

	// KeepPrev enables the in-process ".prev" rollback copy during
	// apply.
	KeepPrev bool

	// CrossProcessLock guards the scope with a flock on a ".sync.lock"
	// file next to the live database, so two processes can't sync it
	// concurrently. The empty lock file stays behind after the sync:
	// unlinking it would let a third process lock a fresh inode while
	// another still holds the old one.
	CrossProcessLock bool
}

// DefaultOptions returns the retry policy used when none is given.
func DefaultOptions() Options {
	return Options{
		Retries:     2,
		RetryDelay:  500 * time.Millisecond,
		BusyRetries: 5,
		BusyDelay:   200 * time.Millisecond,
		KeepPrev:    true,
	}
}

// Syncer drives the pull and push protocols for any number of scopes.
// Within one process, at most one sync runs per scope at a time;
// different scopes proceed in parallel.
type Syncer struct {
	client     remote.Client
	manifests  *ManifestStore
	creator    SnapshotCreator
	applier    SnapshotApplier
	downloader *SnapshotDownloader
	opts       Options

	mu    sync.Mutex
	locks map[Scope]*sync.Mutex
}

func NewSyncer(client remote.Client, kv kvstore.Store, creator SnapshotCreator, applier SnapshotApplier, opts Options) *Syncer {
	return &Syncer{
		client:     client,
		manifests:  NewManifestStore(kv),
		creator:    creator,
		applier:    applier,
		downloader: NewSnapshotDownloader(client),
		opts:       opts,
		locks:      make(map[Scope]*sync.Mutex),
	}
}

// Manifests exposes the manifest store for status inspection.
func (s *Syncer) Manifests() *ManifestStore {
	return s.manifests
}

// Client exposes the store client for status inspection.
func (s *Syncer) Client() remote.Client {
	return s.client
}

// Pull replaces the local database at livePath with the remote tip of
// scope. Conflicts and the deleted-remote state come back as typed
// outcomes; the returned error is non-nil only on cancellation.
func (s *Syncer) Pull(ctx context.Context, scope Scope, livePath string, force bool) (*Result, error) {
	unlock, err := s.lockScope(ctx, scope, livePath)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err := s.pull(ctx, scope, livePath, force)
	return s.finish(ActionPull, res, force, err)
}

// Push publishes the local database at livePath as the new remote tip
// of scope.
func (s *Syncer) Push(ctx context.Context, scope Scope, livePath string, force bool) (*Result, error) {
	unlock, err := s.lockScope(ctx, scope, livePath)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err := s.push(ctx, scope, livePath, force)
	return s.finish(ActionPush, res, force, err)
}

// finish maps stray errors at the orchestrator boundary: cancellation
// propagates untranslated, everything else becomes a Failed outcome.
func (s *Syncer) finish(action Action, res *Result, force bool, err error) (*Result, error) {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		slog.Error("sync failed", "action", action, "error", err)
		return &Result{Action: action, Outcome: OutcomeFailed, Forced: force, Message: err.Error()}, nil
	}
	res.Action = action
	res.Forced = force
	return res, nil
}

func (s *Syncer) pull(ctx context.Context, scope Scope, livePath string, force bool) (*Result, error) {
	// 1. Resolve the remote tip.
	versions, err := s.client.ListVersions(ctx, scope.Key)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 || versions[0].IsDeleteMarker {
		return &Result{
			Outcome: OutcomeRemoteDeleted,
			Message: "remote object is deleted or has no versions",
		}, nil
	}
	tip := versions[0]

	manifest, err := s.manifests.Load(ctx, scope)
	if err != nil {
		return nil, err
	}

	// 2. Local drift check. Runs before the no-change short-circuit:
	// an out-of-band mutation must surface even when the remote tip
	// hasn't moved.
	liveExists := utils.FileExists(livePath)
	localDigest := ""
	if liveExists {
		localDigest, _, err = utils.FileSha256(livePath)
		if err != nil {
			return nil, err
		}
		drifted := manifest == nil || localDigest != manifest.ContentSHA256
		if drifted && !force {
			return &Result{
				Outcome:           OutcomeConflictLocalChanged,
				Message:           "local content differs from last applied; pass force to overwrite",
				LocalSHA256Before: localDigest,
			}, nil
		}
	}

	// 3. Already applied?
	if manifest != nil && manifest.RemoteVersionID == tip.VersionID && localDigest == manifest.ContentSHA256 {
		return &Result{Outcome: OutcomeNoChange, RemoteVersionBefore: tip.VersionID}, nil
	}

	// 4. Anti-rollback: refuse a tip older than the applied version.
	if manifest != nil && !force && s.isRollback(versions, tip, manifest) {
		return &Result{
			Outcome:             OutcomeConflictRollbackRejected,
			Message:             fmt.Sprintf("remote tip %s is older than applied version %s", tip.VersionID, manifest.RemoteVersionID),
			RemoteVersionBefore: tip.VersionID,
		}, nil
	}

	// Authoritative metadata: listing entries don't carry the digest.
	head, err := s.client.HeadVersion(ctx, scope.Key, tip.VersionID)
	if err != nil {
		return nil, err
	}

	// 5. Pre-overwrite backup, never clobbered.
	backupPath := ""
	if liveExists {
		nameCtx := BackupNameContext{
			Reason:      "pull-overwrite",
			ToVersion:   tip.VersionID,
			LocalSHA256: localDigest,
			Now:         time.Now(),
		}
		if manifest != nil {
			nameCtx.FromVersion = manifest.RemoteVersionID
			nameCtx.AppliedAt = manifest.AppliedAt
		}
		backupDir := s.opts.BackupDir
		if backupDir == "" {
			backupDir = filepath.Dir(livePath)
		}
		namer := s.opts.BackupNamer
		if namer == nil {
			namer = BackupName
		}
		backupPath = filepath.Join(backupDir, namer(nameCtx))
		if utils.FileExists(backupPath) {
			return &Result{
				Outcome:    OutcomeBackupAlreadyExists,
				Message:    "backup already exists: " + backupPath,
				BackupPath: backupPath,
			}, nil
		}
		if err := utils.CopyFile(livePath, backupPath); err != nil {
			return nil, fmt.Errorf("pre-overwrite backup: %w", err)
		}
	}

	// 6+7. Download and apply, retrying the whole sequence on
	// integrity failures.
	if err := s.downloadAndApply(ctx, scope, head, livePath); err != nil {
		return nil, err
	}

	// 8. Record what is now on disk.
	appliedDigest, _, err := utils.FileSha256(livePath)
	if err != nil {
		return nil, err
	}
	newManifest := &Manifest{
		Bucket:             scope.Bucket,
		Key:                scope.Key,
		RemoteVersionID:    head.VersionID,
		RemoteETag:         head.ETag,
		RemoteSHA256:       head.ContentSHA256,
		SizeBytes:          head.Size,
		RemoteLastModified: head.LastModified.UTC(),
		ContentSHA256:      appliedDigest,
		AppliedAt:          time.Now().UTC(),
	}
	if err := s.manifests.Save(ctx, scope, newManifest); err != nil {
		return nil, err
	}

	outcome := OutcomeCreated
	if liveExists {
		outcome = OutcomeReplaced
	}
	var beforeVersion string
	if manifest != nil {
		beforeVersion = manifest.RemoteVersionID
	}
	slog.Info("pull complete", "scope", scope.String(), "outcome", outcome, "version", head.VersionID)
	return &Result{
		Outcome:             outcome,
		LocalSHA256Before:   localDigest,
		LocalSHA256After:    appliedDigest,
		RemoteVersionBefore: beforeVersion,
		RemoteVersionAfter:  head.VersionID,
		BackupPath:          backupPath,
	}, nil
}

// isRollback decides whether tip is strictly older than the version the
// manifest says was applied. The store's own listing order is the rank
// oracle when the applied version is still listed; otherwise the
// last-modified timestamps decide.
func (s *Syncer) isRollback(versions []remote.Version, tip remote.Version, manifest *Manifest) bool {
	appliedRank := remote.VersionRank(versions, manifest.RemoteVersionID)
	tipRank := remote.VersionRank(versions, tip.VersionID)
	if appliedRank >= 0 {
		// Newest-first listing: a greater rank is an older version.
		return tipRank > appliedRank
	}
	return tip.LastModified.Before(manifest.RemoteLastModified)
}

func (s *Syncer) downloadAndApply(ctx context.Context, scope Scope, head *remote.Version, livePath string) error {
	var lastErr error
	for attempt := 0; attempt <= s.opts.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			slog.Warn("integrity failure, retrying download+apply",
				"scope", scope.String(), "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.opts.RetryDelay):
			}
		}

		lastErr = s.downloadAndApplyOnce(ctx, scope, head, livePath)
		if lastErr == nil {
			return nil
		}
		if !isIntegrityFailure(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (s *Syncer) downloadAndApplyOnce(ctx context.Context, scope Scope, head *remote.Version, livePath string) error {
	incoming := filepath.Join(filepath.Dir(livePath), fmt.Sprintf(".incoming-%s.db", uuid.NewString()))
	defer func() {
		if err := utils.RemoveIfExists(incoming); err != nil {
			slog.Warn("could not remove snapshot temp", "path", incoming, "error", err)
		}
	}()

	if _, err := s.downloader.Download(ctx, scope.Key, head, incoming); err != nil {
		return err
	}
	return s.applier.Apply(ctx, livePath, incoming)
}

func (s *Syncer) push(ctx context.Context, scope Scope, livePath string, force bool) (*Result, error) {
	if !utils.FileExists(livePath) {
		return nil, fmt.Errorf("live database not found: %s", livePath)
	}

	// 1+2. Anything new to publish?
	manifest, err := s.manifests.Load(ctx, scope)
	if err != nil {
		return nil, err
	}
	localDigest, _, err := utils.FileSha256(livePath)
	if err != nil {
		return nil, err
	}
	if manifest != nil && manifest.ContentSHA256 == localDigest {
		return &Result{Outcome: OutcomeNoChange, LocalSHA256Before: localDigest}, nil
	}

	// 3. Optimistic concurrency: our manifest must still name the
	// remote head, unless forced.
	var tipID string
	if !force {
		tip, err := remote.LatestVersion(ctx, s.client, scope.Key)
		switch {
		case errors.Is(err, remote.ErrNoVersions):
			if manifest != nil {
				return &Result{
					Outcome: OutcomeConflictRemoteHeadMismatch,
					Message: "remote has no head but a manifest exists; pass force to publish",
				}, nil
			}
			// First publish into an empty scope.
		case errors.Is(err, remote.ErrRemoteDeleted):
			return &Result{
				Outcome: OutcomeRemoteDeleted,
				Message: "remote object is deleted; pass force to publish over it",
			}, nil
		case err != nil:
			return nil, err
		default:
			tipID = tip.VersionID
			known := ""
			if manifest != nil {
				known = manifest.RemoteVersionID
			}
			if known != tipID {
				return &Result{
					Outcome:             OutcomeConflictRemoteHeadMismatch,
					Message:             fmt.Sprintf("remote head %s != last synced %s; pull first", tipID, known),
					RemoteVersionBefore: tipID,
					LocalSHA256Before:   localDigest,
				}, nil
			}
		}
	}

	// 4. Consistent snapshot of the live database.
	snapPath := filepath.Join(filepath.Dir(livePath), fmt.Sprintf(".snapshot-%s.db", uuid.NewString()))
	defer func() {
		if err := utils.RemoveIfExists(snapPath); err != nil {
			slog.Warn("could not remove snapshot temp", "path", snapPath, "error", err)
		}
	}()
	snap, err := s.creator.Create(ctx, livePath, snapPath)
	if err != nil {
		return nil, err
	}

	// 5. Upload with the digest as store-side metadata.
	file, err := os.Open(snap.Path)
	if err != nil {
		return nil, err
	}
	versionID, err := s.client.PutVersion(ctx, scope.Key, file, snap.Size, remote.PutMetadata{
		SHA256:    snap.SHA256,
		CreatedAt: time.Now().UTC(),
	})
	file.Close()
	if err != nil {
		return nil, err
	}

	// 6. Confirmation read: the write may return only a version id.
	head, err := s.client.HeadVersion(ctx, scope.Key, versionID)
	if err != nil {
		return nil, fmt.Errorf("confirm published version %s: %w", versionID, err)
	}

	// 7. Record the new head.
	newManifest := &Manifest{
		Bucket:             scope.Bucket,
		Key:                scope.Key,
		RemoteVersionID:    head.VersionID,
		RemoteETag:         head.ETag,
		RemoteSHA256:       snap.SHA256,
		SizeBytes:          head.Size,
		RemoteLastModified: head.LastModified.UTC(),
		ContentSHA256:      localDigest,
		AppliedAt:          time.Now().UTC(),
	}
	if err := s.manifests.Save(ctx, scope, newManifest); err != nil {
		return nil, err
	}

	slog.Info("push complete", "scope", scope.String(), "version", head.VersionID, "bytes", snap.Size)
	return &Result{
		Outcome:             OutcomePublished,
		LocalSHA256Before:   localDigest,
		LocalSHA256After:    localDigest,
		RemoteVersionBefore: tipID,
		RemoteVersionAfter:  head.VersionID,
	}, nil
}

// lockScope serializes syncs per scope within the process and, when
// configured, across processes via a lock file next to the live db.
func (s *Syncer) lockScope(ctx context.Context, scope Scope, livePath string) (func(), error) {
	s.mu.Lock()
	lock, ok := s.locks[scope]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[scope] = lock
	}
	s.mu.Unlock()

	lock.Lock()

	if !s.opts.CrossProcessLock {
		return lock.Unlock, nil
	}

	fileLock := flock.New(livePath + ".sync.lock")
	locked, err := fileLock.TryLockContext(ctx, 250*time.Millisecond)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if !locked {
		lock.Unlock()
		return nil, fmt.Errorf("scope %s is locked by another process", scope)
	}
	return func() {
		if err := fileLock.Unlock(); err != nil {
			slog.Warn("could not release scope lock file", "scope", scope.String(), "error", err)
		}
		lock.Unlock()
	}, nil
}
