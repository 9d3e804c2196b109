// Package blobstore keeps published text artifacts on an afero filesystem and
// exposes them under a public base URL.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

const (
	filePermissions      = 0o644
	directoryPermissions = 0o755
)

var (
	// ErrInvalidPath indicates an empty path or one escaping the store root.
	ErrInvalidPath = errors.New("blobstore: invalid path")
	// ErrNotFound indicates that no blob exists at the requested path.
	ErrNotFound  = errors.New("blobstore: not found")
	errMissingFs = errors.New("blobstore: filesystem is required")
)

// Store writes text blobs and returns a URL from which they can be retrieved.
type Store interface {
	Put(ctx context.Context, blobPath, text string) (string, error)
	Get(ctx context.Context, blobPath string) (string, error)
}

// FileStore implements Store over an afero filesystem.
type FileStore struct {
	fs      afero.Fs
	baseURL string
}

// NewFileStore constructs a FileStore. baseURL prefixes the returned locations.
func NewFileStore(fs afero.Fs, baseURL string) (*FileStore, error) {
	if fs == nil {
		return nil, errMissingFs
	}
	return &FileStore{fs: fs, baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}, nil
}

// NewDirectoryStore roots a FileStore at a directory on the local disk.
func NewDirectoryStore(root, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(root, directoryPermissions); err != nil {
		return nil, fmt.Errorf("blobstore: create root: %w", err)
	}
	return NewFileStore(afero.NewBasePathFs(afero.NewOsFs(), root), baseURL)
}

// Put writes text at blobPath, replacing any previous content.
func (store *FileStore) Put(ctx context.Context, blobPath, text string) (string, error) {
	cleaned, err := CleanPath(blobPath)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := store.fs.MkdirAll(path.Dir(cleaned), directoryPermissions); err != nil {
		return "", fmt.Errorf("blobstore: create directory: %w", err)
	}
	if err := afero.WriteFile(store.fs, cleaned, []byte(text), filePermissions); err != nil {
		return "", fmt.Errorf("blobstore: write %s: %w", cleaned, err)
	}
	return store.URL(cleaned), nil
}

// Get reads the blob at blobPath.
func (store *FileStore) Get(ctx context.Context, blobPath string) (string, error) {
	cleaned, err := CleanPath(blobPath)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := afero.ReadFile(store.fs, cleaned)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, cleaned)
	}
	if err != nil {
		return "", fmt.Errorf("blobstore: read %s: %w", cleaned, err)
	}
	return string(data), nil
}

// URL returns the public location of a cleaned blob path.
func (store *FileStore) URL(cleaned string) string {
	segments := strings.Split(strings.TrimPrefix(cleaned, "/"), "/")
	for index, segment := range segments {
		segments[index] = url.PathEscape(segment)
	}
	return store.baseURL + "/" + strings.Join(segments, "/")
}

// CleanPath normalizes a slash-separated blob path and rejects traversal outside the root.
func CleanPath(blobPath string) (string, error) {
	trimmed := strings.TrimSpace(blobPath)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, blobPath)
		}
	}
	cleaned := path.Clean("/" + trimmed)
	if cleaned == "/" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, blobPath)
	}
	return cleaned, nil
}
