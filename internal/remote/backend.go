// Package remote mirrors the local annotation file to a single object in a
// shared store (S3, MinIO or a plain directory).
package remote

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hpungsan/anno/internal/fsutil"
)

// Backend is the minimal object-store surface the mirror needs.
type Backend interface {
	// Name identifies the backend in status messages and logs.
	Name() string

	// Stat reports whether the object exists.
	Stat(ctx context.Context, key string) (bool, error)

	// Get returns the full object contents.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put overwrites the object with data.
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// ObjectKey joins folder and name into a slash-separated key.
func ObjectKey(folder, name string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return path.Join(folder, name)
}

// DirBackend treats a directory as the container. Useful for a shared network
// drive and for running without credentials.
type DirBackend struct {
	Root string
}

// NewDirBackend returns a backend rooted at root. The directory must exist.
func NewDirBackend(root string) (*DirBackend, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("dir backend requires a bucket (root directory)")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	return &DirBackend{Root: root}, nil
}

func (b *DirBackend) Name() string { return "dir:" + b.Root }

func (b *DirBackend) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("empty object key")
	}
	return filepath.Join(b.Root, filepath.FromSlash(clean)), nil
}

func (b *DirBackend) Stat(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := b.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, fmt.Errorf("%s is a directory", p)
	}
	return true, nil
}

func (b *DirBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

func (b *DirBackend) Put(ctx context.Context, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := b.path(key)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(p, data, 0644)
}
