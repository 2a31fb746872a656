package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// diskStorage implements Storage on the local filesystem under a fixed root
// directory. This is the default backend: a file with key K is reachable at
// root/K, which is what makes public URLs a pure function of the key.
type diskStorage struct {
	root string
}

// NewDisk creates a disk-backed Storage rooted at root, creating the root
// and the fixed per-type subdirectories if missing.
func NewDisk(root string) (Storage, error) {
	if root == "" {
		return nil, fmt.Errorf("upload root is required")
	}
	for _, dir := range []string{"", "profiles", "documents", "images", "videos", "others"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create upload dir: %w", err)
		}
	}
	return &diskStorage{root: root}, nil
}

func (d *diskStorage) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key: %q", key)
	}
	return filepath.Join(d.root, clean), nil
}

// Put streams content into root/key. A failed or cancelled write never
// leaves a partial file behind.
func (d *diskStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	dst, err := d.path(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ObjectInfo{}, fmt.Errorf("create parent dir: %w", err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("create file: %w", err)
	}

	n, err := io.Copy(f, readerWithContext(ctx, r))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return ObjectInfo{}, fmt.Errorf("write file: %w", err)
	}

	ct := opt.ContentType
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(dst))
	}
	return ObjectInfo{Key: key, Size: n, ContentType: ct}, nil
}

// Get opens root/key for reading.
func (d *diskStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	src, err := d.path(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ObjectInfo{}, err
	}
	info := ObjectInfo{
		Key:         key,
		Size:        st.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(src)),
	}
	return f, info, nil
}

// Delete removes root/key. Missing files surface as fs.ErrNotExist so the
// caller can log and move on.
func (d *diskStorage) Delete(ctx context.Context, key string) error {
	dst, err := d.path(key)
	if err != nil {
		return err
	}
	return os.Remove(dst)
}

// readerWithContext aborts an io.Copy when ctx is cancelled, so an
// interrupted multipart upload stops writing promptly.
func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
