// Package storage contains the file persistence abstraction used by the
// upload pipeline and the account services. Keys are forward-slash relative
// paths under the backend's root (e.g. "profiles/alice-123.png"); a file's
// public URL is derived from its key, never from a backend-specific path.
package storage

import (
	"context"
	"io"
)

// PutObjectOptions define optional parameters for storing files.
// Size should be the exact number of bytes if known; set to -1 if unknown.
type PutObjectOptions struct {
	Size        int64
	ContentType string
}

// ObjectInfo contains basic information about a stored file.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// Storage persists validated upload content. Implementations must be safe
// for concurrent use.
type Storage interface {
	// Put stores content under the given key, creating parent directories or
	// prefixes as needed.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get retrieves stored content as a streaming reader alongside its info.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes the file under key. Deleting a missing key returns an
	// error satisfying errors.Is(err, fs.ErrNotExist) where the backend can
	// tell; callers treat cleanup deletions as best-effort.
	Delete(ctx context.Context, key string) error
}
