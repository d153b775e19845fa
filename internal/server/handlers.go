package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/memo/internal/core/domain"
)

// maxUploadBytes bounds a single artifact upload.
const maxUploadBytes = 1 << 30

// versioned stamps the protocol version on every response and refuses
// clients speaking a different one before any handler runs.
func (s *Server) versioned(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(domain.CacheVersionHeader, domain.CacheProtocolVersion)
		if v := r.Header.Get(domain.CacheVersionHeader); v != "" && v != domain.CacheProtocolVersion {
			http.Error(w, fmt.Sprintf("unsupported cache protocol version %q", v), http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) pathDigest(w http.ResponseWriter, r *http.Request) (digest.Digest, bool) {
	d, err := digest.Parse(r.PathValue("digest"))
	if err != nil {
		http.Error(w, "invalid digest", http.StatusBadRequest)
		return "", false
	}
	return d, true
}

func (s *Server) handleHas(w http.ResponseWriter, r *http.Request) {
	d, ok := s.pathDigest(w, r)
	if !ok {
		return
	}
	if !s.store.Has(d) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	d, ok := s.pathDigest(w, r)
	if !ok {
		return
	}

	a, err := s.store.Get(d)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrCacheMiss):
		w.WriteHeader(http.StatusNotFound)
		return
	default:
		s.log.Error(err)
		http.Error(w, "store read failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(a.Data)))
	_, _ = w.Write(a.Data)
}

// handlePut accepts an upload only if the payload hashes to the digest it
// is addressed under. A mismatch leaves the store untouched.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	d, ok := s.pathDigest(w, r)
	if !ok {
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}

	a := domain.Artifact{Digest: d, Data: data}
	if err := a.Verify(); err != nil {
		s.log.Warn(fmt.Sprintf("rejecting upload for %s: %v", d, err))
		http.Error(w, "payload does not match digest", http.StatusBadRequest)
		return
	}

	if err := s.store.Put(a); err != nil {
		s.log.Error(err)
		http.Error(w, "store write failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	var report domain.AnalyticsReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, "invalid analytics payload", http.StatusBadRequest)
		return
	}
	s.log.Info(fmt.Sprintf("build reported: %d dirty, %d cached, %dms",
		report.Dirty, report.Cached, report.DurationMS))
	w.WriteHeader(http.StatusAccepted)
}
