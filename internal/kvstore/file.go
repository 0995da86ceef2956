package kvstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/namohq/dbsync/internal/utils"
)

// FileStore keeps one file per key under a root directory.
// WriteAtomic goes through a temp sibling and a rename, so a crash
// mid-write leaves either the old value or the new one, never a mix.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := utils.EnsureDir(root); err != nil {
		return nil, fmt.Errorf("kvstore: create root %q: %w", root, err)
	}
	return &FileStore{root: root}, nil
}

func (f *FileStore) Read(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.pathFor(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: read %q: %w", key, err)
	}
	return data, nil
}

func (f *FileStore) WriteAtomic(_ context.Context, key string, value []byte) error {
	dst := f.pathFor(key)
	tmp := dst + ".tmp"

	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("kvstore: write %q: %w", key, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("kvstore: replace %q: %w", key, err)
	}
	return nil
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	err := os.Remove(f.pathFor(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("kvstore: delete %q: %w", key, err)
	}
	return nil
}

func (f *FileStore) pathFor(key string) string {
	// Keys may carry path-ish characters (bucket/key scopes); flatten
	// them so every key maps to a single file under root.
	safe := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(key)
	return filepath.Join(f.root, safe+".json")
}
