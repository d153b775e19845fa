package cache_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/memo/internal/adapters/cache"
	"go.trai.ch/memo/internal/core/domain"
)

type nopLogger struct{}

func (nopLogger) Info(string) {}
func (nopLogger) Warn(string) {}
func (nopLogger) Error(error) {}

// fakeStore is a minimal in-memory remote cache speaking the wire
// contract, for exercising the client.
func fakeStore(t *testing.T) (*httptest.Server, map[digest.Digest][]byte) {
	t.Helper()
	objects := make(map[digest.Digest][]byte)

	mux := http.NewServeMux()
	mux.HandleFunc("/cache/{digest}", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(domain.CacheVersionHeader); got != domain.CacheProtocolVersion {
			t.Errorf("request missing version header, got %q", got)
		}
		w.Header().Set(domain.CacheVersionHeader, domain.CacheProtocolVersion)

		d, err := digest.Parse(r.PathValue("digest"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodHead:
			if _, ok := objects[d]; !ok {
				w.WriteHeader(http.StatusNotFound)
			}
		case http.MethodGet:
			data, ok := objects[d]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write(data)
		case http.MethodPut:
			data, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			objects[d] = data
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, objects
}

func TestRemote_HasAndGet(t *testing.T) {
	server, objects := fakeStore(t)
	a := artifact("remote payload")
	objects[a.Digest] = a.Data

	remote := cache.NewRemote(server.URL, nopLogger{})

	ok, err := remote.Has(context.Background(), a.Digest)
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if !ok {
		t.Error("expected Has to report the stored digest")
	}

	got, err := remote.Get(context.Background(), a.Digest)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != "remote payload" {
		t.Errorf("unexpected payload: %q", got.Data)
	}
}

func TestRemote_GetMiss(t *testing.T) {
	server, _ := fakeStore(t)
	remote := cache.NewRemote(server.URL, nopLogger{})

	_, err := remote.Get(context.Background(), digest.FromString("absent"))
	if !errors.Is(err, domain.ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss for 404, got %v", err)
	}
}

func TestRemote_GetRejectsMismatchedPayload(t *testing.T) {
	server, objects := fakeStore(t)
	// Server lies: stores garbage under a digest it does not match.
	d := digest.FromString("what the client asked for")
	objects[d] = []byte("something else entirely")

	remote := cache.NewRemote(server.URL, nopLogger{})
	_, err := remote.Get(context.Background(), d)
	if !errors.Is(err, domain.ErrCASIntegrity) {
		t.Errorf("expected ErrCASIntegrity, got %v", err)
	}
}

func TestRemote_PutAndSkipExisting(t *testing.T) {
	server, objects := fakeStore(t)
	remote := cache.NewRemote(server.URL, nopLogger{})

	a := artifact("uploaded")
	if err := remote.Put(context.Background(), a); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if string(objects[a.Digest]) != "uploaded" {
		t.Error("payload did not reach the store")
	}

	// Second Put must be a no-op; content under a digest never changes.
	if err := remote.Put(context.Background(), a); err != nil {
		t.Fatalf("repeat Put failed: %v", err)
	}
}

func TestRemote_VersionMismatchNotRetried(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set(domain.CacheVersionHeader, "999")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	remote := cache.NewRemote(server.URL, nopLogger{})
	_, err := remote.Has(context.Background(), digest.FromString("x"))
	if !errors.Is(err, domain.ErrRemoteVersion) {
		t.Fatalf("expected ErrRemoteVersion, got %v", err)
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("version mismatch must not be retried, saw %d requests", n)
	}
}

func TestRemote_RetriesServerErrors(t *testing.T) {
	var requests atomic.Int64
	payload := artifact("flaky")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(domain.CacheVersionHeader, domain.CacheProtocolVersion)
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(payload.Data)
	}))
	t.Cleanup(server.Close)

	remote := cache.NewRemote(server.URL, nopLogger{})
	got, err := remote.Get(context.Background(), payload.Digest)
	if err != nil {
		t.Fatalf("Get should succeed after retries: %v", err)
	}
	if string(got.Data) != "flaky" {
		t.Errorf("unexpected payload: %q", got.Data)
	}
	if n := requests.Load(); n != 3 {
		t.Errorf("expected 3 attempts, saw %d", n)
	}
}

func TestRemote_HungServerHitsDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Stall until the client gives up on the attempt.
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	remote := cache.NewRemote(server.URL, nopLogger{}).WithRequestTimeout(50 * time.Millisecond)

	start := time.Now()
	_, err := remote.Has(context.Background(), digest.FromString("x"))
	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("hung remote stalled the client for %v", elapsed)
	}
}

func TestRemote_ReportAnalytics(t *testing.T) {
	var body atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analytics" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		body.Store(string(data))
		w.Header().Set(domain.CacheVersionHeader, domain.CacheProtocolVersion)
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)

	remote := cache.NewRemote(server.URL, nopLogger{})
	summary := domain.Summary{DirtyNodes: 4, CacheHits: 2, RemoteHits: 1}
	if err := remote.ReportAnalytics(context.Background(), summary); err != nil {
		t.Fatalf("ReportAnalytics failed: %v", err)
	}

	got, _ := body.Load().(string)
	if got == "" {
		t.Fatal("no analytics payload received")
	}
	for _, want := range []string{`"dirty":4`, `"cached":3`} {
		if !strings.Contains(got, want) {
			t.Errorf("payload %s missing %s", got, want)
		}
	}
}
