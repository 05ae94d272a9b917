package datapack

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"judgecore/internal/platform/storage"
)

// fakeStorage serves zstd-compressed blobs from an in-memory map and counts
// how many times GetObject was actually called, so tests can assert the
// local disk cache avoids redundant downloads.
type fakeStorage struct {
	objects map[string][]byte
	fetches int32
}

type readCloser struct {
	*bytes.Reader
}

func (readCloser) Close() error { return nil }

func (f *fakeStorage) GetObject(ctx context.Context, bucket, objectKey string) (storage.ObjectReader, error) {
	atomic.AddInt32(&f.fetches, 1)
	data, ok := f.objects[objectKey]
	if !ok {
		return nil, errors.New("object not found")
	}
	return readCloser{bytes.NewReader(data)}, nil
}

func (f *fakeStorage) CreateMultipartUpload(ctx context.Context, bucket, objectKey, contentType string) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeStorage) PresignUploadPart(ctx context.Context, bucket, objectKey, uploadID string, partNumber int, ttl time.Duration, contentType string) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeStorage) CompleteMultipartUpload(ctx context.Context, bucket, objectKey, uploadID string, parts []storage.CompletedPart) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeStorage) AbortMultipartUpload(ctx context.Context, bucket, objectKey, uploadID string) error {
	return errors.New("not implemented")
}

func (f *fakeStorage) StatObject(ctx context.Context, bucket, objectKey string) (storage.ObjectStat, error) {
	return storage.ObjectStat{}, errors.New("not implemented")
}

func compress(t *testing.T, plain string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("new zstd writer: %v", err)
	}
	if _, err := w.Write([]byte(plain)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func TestCache_Resolve_DownloadsAndCaches(t *testing.T) {
	store := &fakeStorage{objects: map[string][]byte{
		"tests/1/input": compress(t, "1 2\n"),
	}}
	c := New(Config{RootDir: t.TempDir(), Bucket: "judge-data"}, store)

	path, err := c.Resolve(context.Background(), "tests/1/input")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cached file: %v", err)
	}
	if string(content) != "1 2\n" {
		t.Fatalf("content = %q, want %q", content, "1 2\n")
	}

	if _, err := c.Resolve(context.Background(), "tests/1/input"); err != nil {
		t.Fatalf("resolve (cached): %v", err)
	}
	if got := atomic.LoadInt32(&store.fetches); got != 1 {
		t.Fatalf("fetches = %d, want 1 (second Resolve should hit local cache)", got)
	}
}

func TestCache_Resolve_MissingObject(t *testing.T) {
	store := &fakeStorage{objects: map[string][]byte{}}
	c := New(Config{RootDir: t.TempDir(), Bucket: "judge-data"}, store)

	if _, err := c.Resolve(context.Background(), "does-not-exist"); err == nil {
		t.Fatal("expected error for missing object, got nil")
	}
}

func TestCache_Resolve_EmptyKey(t *testing.T) {
	c := New(Config{RootDir: t.TempDir()}, nil)
	if _, err := c.Resolve(context.Background(), ""); err == nil {
		t.Fatal("expected validation error for empty key")
	}
}

func TestCache_Resolve_NoStorageConfigured(t *testing.T) {
	c := New(Config{RootDir: t.TempDir()}, nil)
	if _, err := c.Resolve(context.Background(), "some-key"); err == nil {
		t.Fatal("expected error when no object storage is configured")
	}
}

func TestCache_Resolve_EvictsOldestOverMaxEntries(t *testing.T) {
	store := &fakeStorage{objects: map[string][]byte{
		"a": compress(t, "aaa"),
		"b": compress(t, "bbb"),
		"c": compress(t, "ccc"),
	}}
	c := New(Config{RootDir: t.TempDir(), Bucket: "judge-data", MaxEntries: 2}, store)

	for _, key := range []string{"a", "b", "c"} {
		if _, err := c.Resolve(context.Background(), key); err != nil {
			t.Fatalf("resolve %q: %v", key, err)
		}
	}
	if len(c.entries) != 2 {
		t.Fatalf("entries = %d, want 2 after eviction", len(c.entries))
	}
	if _, ok := c.entries["a"]; ok {
		t.Fatal("oldest entry \"a\" should have been evicted")
	}
}
