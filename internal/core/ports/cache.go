package ports

import (
	"context"
	"time"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/memo/internal/core/domain"
)

// ArtifactCache is the tiered content-addressed cache consulted by the
// executor. Lookups check the in-process tier, then the local store, then
// the remote store, short-circuiting on the first hit; remote hits populate
// the faster tiers on the way back.
//
//go:generate go run go.uber.org/mock/mockgen -source=cache.go -destination=mocks/mock_cache.go -package=mocks
type ArtifactCache interface {
	// BindSession attaches the session whose counters the cache updates on
	// remote hits. Passing nil detaches.
	BindSession(s *domain.Session)

	// Has reports whether the digest is present at any tier.
	Has(ctx context.Context, d digest.Digest) bool

	// Get returns the artifact for the digest, or domain.ErrCacheMiss if it
	// is absent at every tier.
	Get(ctx context.Context, d digest.Digest) (domain.Artifact, error)

	// Put stores the artifact under its digest. The local tiers are written
	// synchronously; the remote tier is best effort and never fails the
	// build.
	Put(ctx context.Context, a domain.Artifact) error

	// Materialize returns the artifact stored under key, producing it at
	// most once per process: concurrent callers for the same key share one
	// lookup-or-produce flight. The key is the coordination handle (for the
	// executor, a node digest); produced payloads are verified against
	// their own digest and stored under it.
	Materialize(ctx context.Context, key digest.Digest, produce func(ctx context.Context) (domain.Artifact, error)) (domain.Artifact, error)

	// Prefetch warms the fast tiers for the given digests in the
	// background. It is an optimization only; failures are ignored.
	Prefetch(ctx context.Context, digests []digest.Digest)
}

// RemoteStore is the network tier behind the cache, speaking the
// HEAD/GET/PUT /cache/{digest} contract. Implementations classify failures
// as retryable or not; retry policy lives inside the implementation.
type RemoteStore interface {
	Has(ctx context.Context, d digest.Digest) (bool, error)
	Get(ctx context.Context, d digest.Digest) (domain.Artifact, error)
	Put(ctx context.Context, a domain.Artifact) error

	// ReportAnalytics uploads end-of-build counters. Best effort.
	ReportAnalytics(ctx context.Context, summary domain.Summary) error
}

// LocalStore is the persistent on-disk tier. It must tolerate concurrent
// readers and serialize writers per key.
type LocalStore interface {
	Has(d digest.Digest) bool
	Get(d digest.Digest) (domain.Artifact, error)
	Put(a domain.Artifact) error

	// GC removes entries older than maxAge and then evicts oldest-first
	// until the store fits in maxBytes. Zero values disable the respective
	// bound. This is the only way cache entries are ever destroyed.
	GC(maxAge time.Duration, maxBytes int64) (removed int, err error)
}
