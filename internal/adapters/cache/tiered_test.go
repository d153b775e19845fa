package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/memo/internal/adapters/cache"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
)

// stubRemote is an in-memory ports.RemoteStore for observing tiered
// cache behavior without a network.
type stubRemote struct {
	mu      sync.Mutex
	objects map[digest.Digest][]byte
	getErr  error
	puts    chan digest.Digest
}

func newStubRemote() *stubRemote {
	return &stubRemote{
		objects: make(map[digest.Digest][]byte),
		puts:    make(chan digest.Digest, 16),
	}
}

func (s *stubRemote) Has(ctx context.Context, d digest.Digest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[d]
	return ok, nil
}

func (s *stubRemote) Get(ctx context.Context, d digest.Digest) (domain.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return domain.Artifact{}, s.getErr
	}
	data, ok := s.objects[d]
	if !ok {
		return domain.Artifact{}, domain.ErrCacheMiss
	}
	return domain.Artifact{Digest: d, Data: data}, nil
}

func (s *stubRemote) Put(ctx context.Context, a domain.Artifact) error {
	s.mu.Lock()
	s.objects[a.Digest] = a.Data
	s.mu.Unlock()
	s.puts <- a.Digest
	return nil
}

func (s *stubRemote) ReportAnalytics(ctx context.Context, summary domain.Summary) error {
	return nil
}

func newTiered(t *testing.T, remote ports.RemoteStore) (*cache.Tiered, ports.LocalStore) {
	t.Helper()
	local, err := cache.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	return cache.NewTiered(local, remote, nopLogger{}), local
}

func TestTiered_RemoteHitPromotedToLocal(t *testing.T) {
	remote := newStubRemote()
	a := artifact("only remote has this")
	remote.objects[a.Digest] = a.Data

	tiered, local := newTiered(t, remote)

	got, err := tiered.Get(context.Background(), a.Digest)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != "only remote has this" {
		t.Errorf("unexpected payload: %q", got.Data)
	}
	if !local.Has(a.Digest) {
		t.Error("remote hit must be promoted into the local store")
	}
}

func TestTiered_MissEverywhere(t *testing.T) {
	tiered, _ := newTiered(t, newStubRemote())
	_, err := tiered.Get(context.Background(), digest.FromString("nowhere"))
	if !errors.Is(err, domain.ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestTiered_NilRemote(t *testing.T) {
	tiered, _ := newTiered(t, nil)
	a := artifact("local only")
	if err := tiered.Put(context.Background(), a); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !tiered.Has(context.Background(), a.Digest) {
		t.Error("expected hit without remote tier")
	}
}

func TestTiered_RemoteFailureDegradesToMiss(t *testing.T) {
	remote := newStubRemote()
	remote.getErr = domain.ErrNetwork
	tiered, _ := newTiered(t, remote)

	_, err := tiered.Get(context.Background(), digest.FromString("unreachable"))
	if !errors.Is(err, domain.ErrCacheMiss) {
		t.Errorf("network trouble must degrade to a miss, got %v", err)
	}
}

func TestTiered_RequireRemoteSurfacesFailures(t *testing.T) {
	remote := newStubRemote()
	remote.getErr = domain.ErrNetwork
	tiered, _ := newTiered(t, remote)
	tiered.RequireRemote()

	_, err := tiered.Get(context.Background(), digest.FromString("unreachable"))
	if !errors.Is(err, domain.ErrNetwork) {
		t.Errorf("required remote failures must surface, got %v", err)
	}
	if errors.Is(err, domain.ErrCacheMiss) {
		t.Error("required remote failure must not look like a miss")
	}
}

func TestTiered_PutWritesLocalSyncRemoteAsync(t *testing.T) {
	remote := newStubRemote()
	tiered, local := newTiered(t, remote)

	a := artifact("written through")
	if err := tiered.Put(context.Background(), a); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !local.Has(a.Digest) {
		t.Error("local store must be written synchronously")
	}

	select {
	case d := <-remote.puts:
		if d != a.Digest {
			t.Errorf("unexpected remote upload: %s", d)
		}
	case <-time.After(2 * time.Second):
		t.Error("remote upload never happened")
	}
}

func TestTiered_PutRejectsMismatchedArtifact(t *testing.T) {
	tiered, local := newTiered(t, nil)

	bogus := domain.Artifact{Digest: digest.FromString("claimed"), Data: []byte("actual")}
	err := tiered.Put(context.Background(), bogus)
	if !errors.Is(err, domain.ErrCASIntegrity) {
		t.Fatalf("expected ErrCASIntegrity, got %v", err)
	}
	if local.Has(bogus.Digest) {
		t.Error("mismatched artifact must never be stored")
	}
}

func TestTiered_MaterializeProducesOnMiss(t *testing.T) {
	tiered, local := newTiered(t, nil)
	a := artifact("produced fresh")

	var calls atomic.Int64
	got, err := tiered.Materialize(context.Background(), a.Digest, func(ctx context.Context) (domain.Artifact, error) {
		calls.Add(1)
		return a, nil
	})
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if string(got.Data) != "produced fresh" {
		t.Errorf("unexpected payload: %q", got.Data)
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly one produce call, got %d", calls.Load())
	}
	if !local.Has(a.Digest) {
		t.Error("produced artifact must be committed to the local store")
	}
}

func TestTiered_MaterializeSkipsProduceOnHit(t *testing.T) {
	tiered, _ := newTiered(t, nil)
	a := artifact("already cached")
	if err := tiered.Put(context.Background(), a); err != nil {
		t.Fatal(err)
	}

	_, err := tiered.Materialize(context.Background(), a.Digest, func(ctx context.Context) (domain.Artifact, error) {
		t.Error("produce must not run on a cache hit")
		return domain.Artifact{}, nil
	})
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
}

func TestTiered_MaterializeSingleFlight(t *testing.T) {
	tiered, _ := newTiered(t, nil)
	a := artifact("expensive work")

	var calls atomic.Int64
	producer := func(ctx context.Context) (domain.Artifact, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return a, nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := tiered.Materialize(context.Background(), a.Digest, producer)
			if err != nil {
				t.Errorf("Materialize failed: %v", err)
				return
			}
			if got.Digest != a.Digest {
				t.Errorf("unexpected digest %s", got.Digest)
			}
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("concurrent callers must share one produce, got %d", calls.Load())
	}
}

func TestTiered_MaterializeRejectsCorruptProduce(t *testing.T) {
	tiered, local := newTiered(t, nil)
	bogus := domain.Artifact{Digest: digest.FromString("claimed"), Data: []byte("actual")}

	_, err := tiered.Materialize(context.Background(), digest.FromString("flight key"), func(ctx context.Context) (domain.Artifact, error) {
		return bogus, nil
	})
	if !errors.Is(err, domain.ErrCASIntegrity) {
		t.Fatalf("expected ErrCASIntegrity, got %v", err)
	}
	if local.Has(bogus.Digest) {
		t.Error("corrupt produce must never be committed")
	}
}

func TestTiered_MaterializeStoresUnderOwnDigest(t *testing.T) {
	tiered, local := newTiered(t, nil)
	key := digest.FromString("node digest, not content digest")
	out := artifact("runner output")

	got, err := tiered.Materialize(context.Background(), key, func(ctx context.Context) (domain.Artifact, error) {
		return out, nil
	})
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if got.Digest != out.Digest {
		t.Errorf("expected produced digest %s, got %s", out.Digest, got.Digest)
	}
	if !local.Has(out.Digest) {
		t.Error("produced artifact must be stored under its content digest")
	}
	if local.Has(key) {
		t.Error("the flight key itself must not appear in the store")
	}
}

func TestTiered_MaterializeCancelledNotCommitted(t *testing.T) {
	tiered, local := newTiered(t, nil)
	a := artifact("finished too late")

	ctx, cancel := context.WithCancel(context.Background())
	_, err := tiered.Materialize(ctx, a.Digest, func(ctx context.Context) (domain.Artifact, error) {
		cancel()
		return a, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if local.Has(a.Digest) {
		t.Error("work finished after cancellation must not be cached")
	}
}

func TestTiered_PrefetchWarmsLocal(t *testing.T) {
	remote := newStubRemote()
	a := artifact("warmed ahead of time")
	remote.objects[a.Digest] = a.Data

	tiered, local := newTiered(t, remote)
	tiered.Prefetch(context.Background(), []digest.Digest{a.Digest})

	deadline := time.Now().Add(2 * time.Second)
	for !local.Has(a.Digest) {
		if time.Now().After(deadline) {
			t.Fatal("prefetch never reached the local store")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
