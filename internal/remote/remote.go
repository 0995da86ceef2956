package remote

import (
	"context"
	"errors"
	"io"
	"time"
)

// Custom metadata keys attached to every uploaded snapshot version.
// The store's own etag/checksum is not trusted as the content hash;
// these values are the integrity oracle.
const (
	MetaSha256    = "sha256"
	MetaCreatedAt = "created-at"
)

var (
	// ErrNoVersions means the key has no versions at all.
	ErrNoVersions = errors.New("remote: no versions for key")

	// ErrRemoteDeleted means the newest version of the key is a delete marker.
	ErrRemoteDeleted = errors.New("remote: key deleted")

	// ErrVersionNotFound means the addressed version id does not exist.
	ErrVersionNotFound = errors.New("remote: version not found")
)

// Version identifies one immutable revision of a remote object.
// VersionID is an opaque, store-assigned token. It is compared, never parsed.
type Version struct {
	VersionID      string
	ETag           string
	ContentSHA256  string // from custom metadata, may be empty on list results
	Size           int64
	LastModified   time.Time
	IsDeleteMarker bool
	IsLatest       bool
}

// PutMetadata is the custom metadata attached on upload.
// Both values are stored and returned verbatim.
type PutMetadata struct {
	SHA256    string
	CreatedAt time.Time
}

// Client is the versioned object store consumed by the sync protocol.
type Client interface {
	// ListVersions returns all versions of key, newest first, delete
	// markers included. Pagination is handled internally.
	ListVersions(ctx context.Context, key string) ([]Version, error)

	// HeadVersion returns the authoritative metadata of one version,
	// including the custom sha256/created-at metadata.
	HeadVersion(ctx context.Context, key, versionID string) (*Version, error)

	// GetVersion opens the byte stream of one version. The returned
	// Version reports the version id the store actually served.
	GetVersion(ctx context.Context, key, versionID string) (io.ReadCloser, *Version, error)

	// PutVersion uploads body as a new version of key and returns the
	// store-assigned version id. Stores may return only the id here;
	// use HeadVersion for the full record.
	PutVersion(ctx context.Context, key string, body io.Reader, size int64, meta PutMetadata) (string, error)
}

// LatestVersion resolves the tip of key: the newest non-delete-marker
// version. Returns ErrNoVersions or ErrRemoteDeleted accordingly.
func LatestVersion(ctx context.Context, c Client, key string) (*Version, error) {
	versions, err := c.ListVersions(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, ErrNoVersions
	}
	if versions[0].IsDeleteMarker {
		return nil, ErrRemoteDeleted
	}
	v := versions[0]
	return &v, nil
}

// VersionRank returns the position of versionID in a newest-first
// listing, or -1 when it is not listed. Lower rank means newer.
func VersionRank(versions []Version, versionID string) int {
	for i, v := range versions {
		if v.VersionID == versionID {
			return i
		}
	}
	return -1
}
