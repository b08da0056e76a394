package store

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/driftlock/depot/internal/compression"
)

// FS implements Store over an afero filesystem. Keys map directly to
// slash-separated paths under the filesystem root. Values are
// transparently compressed on disk and cached decompressed in memory.
type FS struct {
	fs    afero.Fs
	cache *LRUCache
	comp  *compression.Compressor
}

// NewFS creates a filesystem-backed store. A nil afero.Fs defaults to
// the OS filesystem rooted at ".depot".
func NewFS(afs afero.Fs, cacheSize int, comp *compression.Compressor) *FS {
	if afs == nil {
		afs = afero.NewBasePathFs(afero.NewOsFs(), ".depot")
	}
	if comp == nil {
		comp = compression.Disabled()
	}
	return &FS{
		fs:    afs,
		cache: NewLRUCache(cacheSize),
		comp:  comp,
	}
}

// NewMemory creates an in-memory store, mostly for tests and
// short-lived tooling.
func NewMemory() *FS {
	return NewFS(afero.NewMemMapFs(), 0, compression.Disabled())
}

func (s *FS) Get(ctx context.Context, key string) ([]byte, error) {
	if data, ok := s.cache.Get(key); ok {
		return data, nil
	}

	raw, err := afero.ReadFile(s.fs, keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	data, err := s.comp.Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", key, err)
	}

	s.cache.Add(key, data)
	return data, nil
}

func (s *FS) Put(ctx context.Context, key string, data []byte) error {
	compressed, err := s.comp.Compress(data)
	if err != nil {
		return fmt.Errorf("compress %s: %w", key, err)
	}

	p := keyPath(key)
	if dir := filepath.Dir(p); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(s.fs, p, compressed, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	s.cache.Add(key, data)
	return nil
}

func (s *FS) Has(ctx context.Context, key string) (bool, error) {
	if s.cache.Has(key) {
		return true, nil
	}
	fi, err := s.fs.Stat(keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !fi.IsDir(), nil
}

func (s *FS) Delete(ctx context.Context, key string) error {
	s.cache.Remove(key)
	if err := s.fs.Remove(keyPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *FS) Keys(ctx context.Context, prefix string) ([]string, error) {
	root := strings.TrimSuffix(keyPath(prefix), "/")
	if root == "" {
		root = "."
	}

	var keys []string
	err := afero.Walk(s.fs, root, func(p string, fi fs.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if fi.IsDir() {
			return nil
		}
		keys = append(keys, path.Clean(filepath.ToSlash(p)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return keys, nil
}

func keyPath(key string) string {
	return filepath.FromSlash(key)
}
