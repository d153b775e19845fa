// Package cache implements the tiered content-addressed artifact cache:
// an in-process map, a persistent on-disk store and an optional remote
// HTTP store, consulted in that order.
package cache

import (
	"sync"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/memo/internal/core/domain"
)

// Memory is the in-process tier. It lives for one invocation and holds
// raw artifact bytes keyed by digest.
type Memory struct {
	mu      sync.RWMutex
	entries map[digest.Digest][]byte
}

// NewMemory creates an empty in-process tier.
func NewMemory() *Memory {
	return &Memory{entries: make(map[digest.Digest][]byte)}
}

// Has reports whether the digest is present.
func (m *Memory) Has(d digest.Digest) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[d]
	return ok
}

// Get returns the artifact, or false if absent.
func (m *Memory) Get(d digest.Digest) (domain.Artifact, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.entries[d]
	if !ok {
		return domain.Artifact{}, false
	}
	return domain.Artifact{Digest: d, Data: data}, true
}

// Put stores the artifact. The caller has already verified the payload
// against its digest.
func (m *Memory) Put(a domain.Artifact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[a.Digest] = a.Data
}
