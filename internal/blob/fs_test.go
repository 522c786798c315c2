package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newFSStore(t *testing.T) *FilesystemStore {
	t.Helper()
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem store: %v", err)
	}
	return store
}

func TestFilesystemPutWritesSidecarMetadata(t *testing.T) {
	store := newFSStore(t)
	ctx := context.Background()
	info, err := store.Put(ctx, "reports/run-1/calibration.json", strings.NewReader(`{}`), PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"format": "json"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 2 {
		t.Fatalf("unexpected size %d", info.Size)
	}
	metaPath := filepath.Join(store.root, "reports", "run-1", "calibration.json.meta")
	if _, err := os.Stat(metaPath); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	head, err := store.Head(ctx, "reports/run-1/calibration.json")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.ContentType != "application/json" || head.Metadata["format"] != "json" {
		t.Fatalf("metadata not round-tripped: %+v", head)
	}
}

func TestFilesystemPutRejectsDuplicate(t *testing.T) {
	store := newFSStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", strings.NewReader("one"), PutOptions{}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	_, err := store.Put(ctx, "k", strings.NewReader("two"), PutOptions{})
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected already-exists error, got %v", err)
	}
	_, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	payload, _ := io.ReadAll(rc)
	if string(payload) != "one" {
		t.Fatalf("original payload overwritten: %q", payload)
	}
}

func TestFilesystemRejectsUnsafeKeys(t *testing.T) {
	store := newFSStore(t)
	ctx := context.Background()
	for _, key := range []string{"", "  ", "../escape", "a/../../b", "/etc/passwd"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Errorf("key %q should be rejected", key)
		}
	}
}

func TestFilesystemDelete(t *testing.T) {
	store := newFSStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, "a/b", strings.NewReader("x"), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	existed, err := store.Delete(ctx, "a/b")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	existed, err = store.Delete(ctx, "a/b")
	if err != nil || existed {
		t.Fatalf("second delete: existed=%v err=%v", existed, err)
	}
	if _, err := os.Stat(filepath.Join(store.root, "a", "b.meta")); !os.IsNotExist(err) {
		t.Fatal("sidecar should be removed with the blob")
	}
}

func TestFilesystemListSkipsSidecars(t *testing.T) {
	store := newFSStore(t)
	ctx := context.Background()
	for _, key := range []string{"reports/z", "reports/a", "other/q"} {
		if _, err := store.Put(ctx, key, strings.NewReader(key), PutOptions{ContentType: "text/plain"}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "reports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "reports/a" || infos[1].Key != "reports/z" {
		t.Fatalf("unexpected listing %+v", infos)
	}
	for _, info := range infos {
		if strings.HasSuffix(info.Key, ".meta") {
			t.Fatalf("sidecar leaked into listing: %s", info.Key)
		}
		if info.ContentType != "text/plain" {
			t.Fatalf("content type lost for %s", info.Key)
		}
	}
}

func TestFilesystemPresignURL(t *testing.T) {
	store := newFSStore(t)
	ctx := context.Background()
	if _, err := store.PresignURL(ctx, "missing", SignedURLOptions{}); err == nil {
		t.Fatal("expected error for missing key")
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("x"), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	url, err := store.PresignURL(ctx, "k", SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.HasPrefix(url, "file://") || !strings.HasSuffix(url, "/k") {
		t.Fatalf("unexpected url %q", url)
	}
}
