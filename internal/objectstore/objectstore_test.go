package objectstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Endpoint:  "localhost:9000",
		AccessKey: "a",
		SecretKey: "b",
		Region:    "us-east-1",
		Bucket:    "render-references",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	invalid := valid
	invalid.Endpoint = "http://localhost:9000"
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for scheme in endpoint")
	}
	invalid = valid
	invalid.Bucket = " "
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for empty bucket")
	}
}

func TestConfigFromEnv_DisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("RENDERQA_MINIO_ENDPOINT", "")
	_, enabled, err := ConfigFromEnv()
	if err != nil || enabled {
		t.Fatalf("expected mirroring disabled, got enabled=%v err=%v", enabled, err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("RENDERQA_MINIO_ENDPOINT", "minio:9000")
	t.Setenv("RENDERQA_MINIO_ACCESS_KEY", "key")
	t.Setenv("RENDERQA_MINIO_SECRET_KEY", "secret")
	t.Setenv("RENDERQA_MINIO_USE_SSL", "true")
	t.Setenv("RENDERQA_MINIO_BUCKET", "")

	cfg, enabled, err := ConfigFromEnv()
	if err != nil || !enabled {
		t.Fatalf("ConfigFromEnv: enabled=%v err=%v", enabled, err)
	}
	if !cfg.UseSSL || cfg.Bucket != "render-references" || cfg.Region != "us-east-1" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("RENDERQA_MINIO_SECRET_KEY", "")
	if _, _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected missing secret key to be rejected")
	}
}

type memStore struct {
	objects map[string][]byte
	types   map[string]string
	etags   map[string]string
	puts    int
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}, etags: map[string]string{}}
}

func (m *memStore) Put(_ context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, body)
	if err != nil {
		return err
	}
	if n != size {
		return errors.New("size mismatch")
	}
	sum := md5.Sum(buf.Bytes())
	m.objects[bucket+"/"+key] = buf.Bytes()
	m.types[bucket+"/"+key] = contentType
	m.etags[bucket+"/"+key] = `"` + hex.EncodeToString(sum[:]) + `"`
	m.puts++
	return nil
}

func (m *memStore) Stat(_ context.Context, bucket, key string) (ObjectInfo, error) {
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return ObjectInfo{}, errors.New("object does not exist")
	}
	return ObjectInfo{Key: key, Size: int64(len(data)), ETag: m.etags[bucket+"/"+key]}, nil
}

func TestMirrorUpload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame_0001.png")
	if err := os.WriteFile(path, []byte("pixels"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := newMemStore()
	m := &Mirror{Store: store, Bucket: "refs"}

	if err := m.Upload(context.Background(), "demo/reference/frame_0001.png", path); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	key := "refs/demo/reference/frame_0001.png"
	if string(store.objects[key]) != "pixels" {
		t.Fatalf("object = %q", store.objects[key])
	}
	if store.types[key] != "image/png" {
		t.Fatalf("content type = %q", store.types[key])
	}

	err := m.Upload(context.Background(), "demo/reference/missing.png", filepath.Join(dir, "missing.png"))
	if err == nil || !strings.Contains(err.Error(), "missing.png") {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestMirrorUpload_SkipsUnchangedObjects(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame_0001.png")
	if err := os.WriteFile(path, []byte("pixels"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := newMemStore()
	m := &Mirror{Store: store, Bucket: "refs"}
	key := "demo/reference/frame_0001.png"

	for i := 0; i < 2; i++ {
		if err := m.Upload(context.Background(), key, path); err != nil {
			t.Fatalf("Upload %d: %v", i, err)
		}
	}
	if store.puts != 1 {
		t.Fatalf("unchanged file should be uploaded once, got %d puts", store.puts)
	}

	// Same size, different bytes: the ETag differs, so it is re-sent.
	if err := os.WriteFile(path, []byte("pixelz"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.Upload(context.Background(), key, path); err != nil {
		t.Fatalf("Upload changed: %v", err)
	}
	if store.puts != 2 || string(store.objects["refs/"+key]) != "pixelz" {
		t.Fatalf("changed file not re-uploaded: puts=%d object=%q", store.puts, store.objects["refs/"+key])
	}
}
