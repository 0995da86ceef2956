package remote

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memObject struct {
	version Version
	data    []byte
}

// MemClient is an in-memory versioned bucket. It is used by tests and by
// local compositions that don't talk to a real store. Versions are held
// newest-first, matching the listing order of a real store.
type MemClient struct {
	mu      sync.RWMutex
	objects map[string][]memObject // newest first
	clock   func() time.Time
}

func NewMemClient() *MemClient {
	return &MemClient{
		objects: make(map[string][]memObject),
		clock:   time.Now,
	}
}

// SetClock overrides the timestamp source. Test hook.
func (m *MemClient) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

func (m *MemClient) ListVersions(ctx context.Context, key string) ([]Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	objs := m.objects[key]
	out := make([]Version, 0, len(objs))
	for i, o := range objs {
		v := o.version
		v.IsLatest = i == 0
		out = append(out, v)
	}
	return out, nil
}

func (m *MemClient) HeadVersion(ctx context.Context, key, versionID string) (*Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	o := m.find(key, versionID)
	if o == nil {
		return nil, ErrVersionNotFound
	}
	v := o.version
	return &v, nil
}

func (m *MemClient) GetVersion(ctx context.Context, key, versionID string) (io.ReadCloser, *Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	o := m.find(key, versionID)
	if o == nil || o.version.IsDeleteMarker {
		return nil, nil, ErrVersionNotFound
	}
	v := o.version
	return io.NopCloser(bytes.NewReader(o.data)), &v, nil
}

func (m *MemClient) PutVersion(ctx context.Context, key string, body io.Reader, size int64, meta PutMetadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if size >= 0 && int64(len(data)) != size {
		return "", fmt.Errorf("remote: body size %d does not match declared size %d", len(data), size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sum := md5.Sum(data)
	v := Version{
		VersionID:     uuid.NewString(),
		ETag:          hex.EncodeToString(sum[:]),
		ContentSHA256: meta.SHA256,
		Size:          int64(len(data)),
		LastModified:  m.clock().UTC(),
	}
	m.objects[key] = append([]memObject{{version: v, data: data}}, m.objects[key]...)
	return v.VersionID, nil
}

// DeleteKey places a delete marker at the head of key, like an
// unversioned DELETE against a versioning-enabled bucket.
func (m *MemClient) DeleteKey(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := Version{
		VersionID:      uuid.NewString(),
		LastModified:   m.clock().UTC(),
		IsDeleteMarker: true,
	}
	m.objects[key] = append([]memObject{{version: v}}, m.objects[key]...)
	return v.VersionID
}

// DropVersion removes one version outright, as a lifecycle purge would.
func (m *MemClient) DropVersion(key, versionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	objs := m.objects[key]
	for i, o := range objs {
		if o.version.VersionID == versionID {
			m.objects[key] = append(objs[:i:i], objs[i+1:]...)
			return
		}
	}
}

// PromoteVersion reorders an existing version to the head of the
// listing. Simulates an eventually-consistent store presenting a stale
// tip.
func (m *MemClient) PromoteVersion(key, versionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	objs := m.objects[key]
	for i, o := range objs {
		if o.version.VersionID == versionID {
			rest := append(objs[:i:i], objs[i+1:]...)
			m.objects[key] = append([]memObject{o}, rest...)
			return
		}
	}
}

// VersionData returns the raw bytes of one stored version. Test hook.
func (m *MemClient) VersionData(key, versionID string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if o := m.find(key, versionID); o != nil {
		return append([]byte(nil), o.data...)
	}
	return nil
}

// CorruptVersion truncates the stored bytes of one version without
// touching its recorded metadata. Test hook for integrity failures.
func (m *MemClient) CorruptVersion(key, versionID string, keep int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	objs := m.objects[key]
	for i := range objs {
		if objs[i].version.VersionID == versionID {
			if keep < 0 || keep > len(objs[i].data) {
				keep = len(objs[i].data)
			}
			objs[i].data = objs[i].data[:keep]
			return
		}
	}
}

func (m *MemClient) find(key, versionID string) *memObject {
	for i := range m.objects[key] {
		if m.objects[key][i].version.VersionID == versionID {
			return &m.objects[key][i]
		}
	}
	return nil
}
