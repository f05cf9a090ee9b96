package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() err=%v", err)
	}
	body := []byte("forest")
	if err := store.Put(ctx, "artifacts", "runs/abc/model.json.zst", bytes.NewReader(body), int64(len(body)), "application/zstd"); err != nil {
		t.Fatalf("Put() err=%v", err)
	}

	rc, info, err := store.Get(ctx, "artifacts", "runs/abc/model.json.zst")
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	defer func() { _ = rc.Close() }()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "forest" || info.Size != int64(len(body)) || info.ETag == "" {
		t.Fatalf("unexpected object %q info=%+v", got, info)
	}

	if err := store.Delete(ctx, "artifacts", "runs/abc/model.json.zst"); err != nil {
		t.Fatalf("Delete() err=%v", err)
	}
	if _, err := store.Stat(ctx, "artifacts", "runs/abc/model.json.zst"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestFileStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() err=%v", err)
	}
	err = store.Put(context.Background(), "artifacts", "../../etc/passwd", bytes.NewReader(nil), 0, "")
	if err == nil {
		t.Fatalf("expected escaping key to be rejected")
	}
	if _, err := store.Stat(context.Background(), "../x", "a"); err == nil {
		t.Fatalf("expected invalid bucket to be rejected")
	}
}

func TestFileStoreSizeMismatch(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() err=%v", err)
	}
	if err := store.Put(context.Background(), "artifacts", "a", bytes.NewReader([]byte("abc")), 10, ""); err == nil {
		t.Fatalf("expected size mismatch error")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Region: "us-east-1", Bucket: "artifacts"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
	cfg.Endpoint = "http://localhost:9000"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected scheme to be rejected")
	}
	if (Config{}).Enabled() {
		t.Fatalf("zero config must be disabled")
	}
}
