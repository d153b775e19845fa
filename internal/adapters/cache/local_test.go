package cache_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/memo/internal/adapters/cache"
	"go.trai.ch/memo/internal/core/domain"
)

func artifact(content string) domain.Artifact {
	data := []byte(content)
	return domain.Artifact{Digest: digest.FromBytes(data), Data: data}
}

func TestLocal_PutAndGet(t *testing.T) {
	store, err := cache.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	a := artifact("compiled object")
	if err := store.Put(a); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !store.Has(a.Digest) {
		t.Error("Has must report a stored digest")
	}

	got, err := store.Get(a.Digest)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != "compiled object" {
		t.Errorf("unexpected payload: %q", got.Data)
	}
}

func TestLocal_GetMissing(t *testing.T) {
	store, err := cache.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	_, err = store.Get(digest.FromString("never stored"))
	if !errors.Is(err, domain.ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestLocal_IndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store1, err := cache.NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	a := artifact("persisted")
	if err := store1.Put(a); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	store2, err := cache.NewLocal(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, err := store2.Get(a.Digest)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got.Digest != a.Digest {
		t.Errorf("expected %s, got %s", a.Digest, got.Digest)
	}
}

func TestLocal_CorruptObjectIsNotAHit(t *testing.T) {
	dir := t.TempDir()
	store, err := cache.NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	a := artifact("pristine")
	if err := store.Put(a); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Flip the payload on disk behind the store's back.
	objPath := filepath.Join(dir, "objects", a.Digest.Algorithm().String(), a.Digest.Encoded())
	if err := os.WriteFile(objPath, []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = store.Get(a.Digest)
	if !errors.Is(err, domain.ErrCASIntegrity) {
		t.Errorf("expected ErrCASIntegrity for tampered object, got %v", err)
	}
}

func TestLocal_PutRepairsCorruptObject(t *testing.T) {
	dir := t.TempDir()
	store, err := cache.NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	a := artifact("pristine")
	if err := store.Put(a); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	objPath := filepath.Join(dir, "objects", a.Digest.Algorithm().String(), a.Digest.Encoded())
	if err := os.WriteFile(objPath, []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Re-storing the pristine payload must overwrite the damaged object
	// instead of short-circuiting on the indexed digest.
	if err := store.Put(a); err != nil {
		t.Fatalf("repairing Put failed: %v", err)
	}

	got, err := store.Get(a.Digest)
	if err != nil {
		t.Fatalf("Get after repair failed: %v", err)
	}
	if string(got.Data) != "pristine" {
		t.Errorf("object not repaired, payload is %q", got.Data)
	}

	onDisk, err := os.ReadFile(objPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(onDisk) != "pristine" {
		t.Errorf("on-disk object not rewritten, contains %q", onDisk)
	}
}

func TestLocal_PutIdempotent(t *testing.T) {
	store, err := cache.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	a := artifact("same bytes")
	if err := store.Put(a); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}
	if err := store.Put(a); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	if _, err := store.Get(a.Digest); err != nil {
		t.Errorf("Get after double Put failed: %v", err)
	}
}

func TestLocal_GCByAge(t *testing.T) {
	store, err := cache.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	a := artifact("ancient")
	if err := store.Put(a); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Nothing is older than a week yet.
	removed, err := store.GC(7*24*time.Hour, 0)
	if err != nil {
		t.Fatalf("GC failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected no removals, got %d", removed)
	}

	// Everything is older than zero-plus-epsilon.
	time.Sleep(10 * time.Millisecond)
	removed, err = store.GC(time.Nanosecond, 0)
	if err != nil {
		t.Fatalf("GC failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removal, got %d", removed)
	}
	if store.Has(a.Digest) {
		t.Error("collected digest must not be reported present")
	}
	if _, err := store.Get(a.Digest); !errors.Is(err, domain.ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss after GC, got %v", err)
	}
}

func TestLocal_GCBySize(t *testing.T) {
	store, err := cache.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	first := artifact("oldest entry, should be evicted first")
	if err := store.Put(first); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	second := artifact("newest entry, should survive")
	if err := store.Put(second); err != nil {
		t.Fatal(err)
	}

	// Budget fits only the newer entry.
	removed, err := store.GC(0, int64(len(second.Data)))
	if err != nil {
		t.Fatalf("GC failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 eviction, got %d", removed)
	}
	if store.Has(first.Digest) {
		t.Error("oldest entry must be evicted first")
	}
	if !store.Has(second.Digest) {
		t.Error("newest entry must survive the size bound")
	}
}

func TestLocal_GCZeroBoundsDisable(t *testing.T) {
	store, err := cache.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	if err := store.Put(artifact("kept")); err != nil {
		t.Fatal(err)
	}

	removed, err := store.GC(0, 0)
	if err != nil {
		t.Fatalf("GC failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("disabled bounds must remove nothing, got %d", removed)
	}
}
