package dbsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/namohq/dbsync/internal/kvstore"
)

// Scope names one (bucket, key) pair being synchronized. It is the
// unit of locking and of manifest identity.
type Scope struct {
	Bucket string
	Key    string
}

func (s Scope) String() string {
	return s.Bucket + "/" + s.Key
}

// Manifest is the only durable local record of sync history: the
// remote version last applied or published, and the live file's digest
// at that moment. It is written wholesale on every successful sync,
// never mutated field by field. Absence means "never synced".
type Manifest struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`

	// Remote identity of the version last applied/published.
	RemoteVersionID    string    `json:"remote_version_id"`
	RemoteETag         string    `json:"remote_etag"`
	RemoteSHA256       string    `json:"remote_sha256"`
	SizeBytes          int64     `json:"size_bytes"`
	RemoteLastModified time.Time `json:"remote_last_modified_utc"`

	// Digest of the live database file right after the sync, and when
	// it happened. Divergence from the live file later means drift.
	ContentSHA256 string    `json:"content_sha256"`
	AppliedAt     time.Time `json:"applied_at_utc"`
}

// ManifestStore persists one Manifest per scope in a key-value store
// with atomic-replace semantics.
type ManifestStore struct {
	kv kvstore.Store
}

func NewManifestStore(kv kvstore.Store) *ManifestStore {
	return &ManifestStore{kv: kv}
}

// Load returns the manifest for scope, or nil when none was ever
// written.
func (s *ManifestStore) Load(ctx context.Context, scope Scope) (*Manifest, error) {
	data, err := s.kv.Read(ctx, manifestKey(scope))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load manifest %s: %w", scope, err)
	}

	var m Manifest
	if err := jsonUnmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", scope, err)
	}
	return &m, nil
}

// Save replaces the manifest for scope wholesale.
func (s *ManifestStore) Save(ctx context.Context, scope Scope, m *Manifest) error {
	data, err := jsonMarshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest %s: %w", scope, err)
	}
	if err := s.kv.WriteAtomic(ctx, manifestKey(scope), data); err != nil {
		return fmt.Errorf("save manifest %s: %w", scope, err)
	}
	return nil
}

// Delete removes the manifest for scope. Used when a scope is reset.
func (s *ManifestStore) Delete(ctx context.Context, scope Scope) error {
	return s.kv.Delete(ctx, manifestKey(scope))
}

func manifestKey(scope Scope) string {
	return "manifest/" + scope.String()
}
