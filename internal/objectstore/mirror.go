package objectstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// Store is the object-store surface the mirror needs.
type Store interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
}

// Mirror uploads local files under their reference keys into one bucket.
// Objects whose size and ETag already match the local file are not re-sent.
type Mirror struct {
	Store  Store
	Bucket string
}

func (m *Mirror) Upload(ctx context.Context, key string, path string) error {
	if m == nil || m.Store == nil {
		return fmt.Errorf("mirror not initialized")
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	if m.current(ctx, key, info.Size(), hex.EncodeToString(h.Sum(nil))) {
		return nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind %s: %w", path, err)
	}
	if err := m.Store.Put(ctx, m.Bucket, key, f, info.Size(), contentType(path)); err != nil {
		return fmt.Errorf("put %s/%s: %w", m.Bucket, key, err)
	}
	return nil
}

// current reports whether the stored object already holds these bytes. Any
// Stat error, including not found, means the object must be uploaded.
func (m *Mirror) current(ctx context.Context, key string, size int64, md5hex string) bool {
	obj, err := m.Store.Stat(ctx, m.Bucket, key)
	if err != nil {
		return false
	}
	return obj.Size == size && strings.EqualFold(strings.Trim(obj.ETag, `"`), md5hex)
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
