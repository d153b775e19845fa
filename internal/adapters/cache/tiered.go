package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"golang.org/x/sync/singleflight"
)

// Tiered implements ports.ArtifactCache over the three tiers. Lookups walk
// memory, disk, remote and stop at the first hit; remote hits are promoted
// into the faster tiers on the way back. The remote tier is optional and
// by default best effort: its failures degrade to misses unless the cache
// was built with RequireRemote.
type Tiered struct {
	mem     *Memory
	local   ports.LocalStore
	remote  ports.RemoteStore
	log     ports.Logger
	require bool

	flights singleflight.Group
	session atomic.Pointer[domain.Session]
}

// RequireRemote makes remote failures fatal for lookups instead of
// degrading them to misses. Used when the remote tier is the source of
// truth and local reruns must not mask its unavailability.
func (t *Tiered) RequireRemote() *Tiered {
	t.require = true
	return t
}

// BindSession attaches the session whose remote-hit counters this cache
// updates. Passing nil detaches.
func (t *Tiered) BindSession(s *domain.Session) {
	t.session.Store(s)
}

// NewTiered assembles the cache. remote may be nil, which disables the
// network tier entirely.
func NewTiered(local ports.LocalStore, remote ports.RemoteStore, log ports.Logger) *Tiered {
	return &Tiered{
		mem:    NewMemory(),
		local:  local,
		remote: remote,
		log:    log,
	}
}

// Has reports whether the digest is present at any tier.
func (t *Tiered) Has(ctx context.Context, d digest.Digest) bool {
	if t.mem.Has(d) || t.local.Has(d) {
		return true
	}
	if t.remote == nil {
		return false
	}
	ok, err := t.remote.Has(ctx, d)
	if err != nil {
		t.log.Warn(fmt.Sprintf("remote cache lookup failed for %s: %v", d, err))
		return false
	}
	return ok
}

// Get returns the artifact for the digest, or domain.ErrCacheMiss if it is
// absent at every tier. Integrity failures surface as errors, never as
// hits, at every tier.
func (t *Tiered) Get(ctx context.Context, d digest.Digest) (domain.Artifact, error) {
	if a, ok := t.mem.Get(d); ok {
		return a, nil
	}

	a, err := t.local.Get(d)
	if err == nil {
		t.mem.Put(a)
		return a, nil
	}
	if !errors.Is(err, domain.ErrCacheMiss) {
		return domain.Artifact{}, err
	}

	if t.remote == nil {
		return domain.Artifact{}, err
	}

	a, err = t.remote.Get(ctx, d)
	if err != nil {
		if errors.Is(err, domain.ErrCASIntegrity) || errors.Is(err, domain.ErrCacheMiss) {
			return domain.Artifact{}, err
		}
		if t.require {
			return domain.Artifact{}, err
		}
		// Network trouble degrades to a miss so the build can rerun the
		// work instead of failing.
		t.log.Warn(fmt.Sprintf("remote cache fetch failed for %s: %v", d, err))
		return domain.Artifact{}, missWithCause(d, err)
	}

	if session := t.session.Load(); session != nil {
		session.RemoteHits.Add(1)
		session.BytesFetched.Add(int64(len(a.Data)))
	}
	if err := t.local.Put(a); err != nil {
		t.log.Warn(fmt.Sprintf("failed to promote %s to local cache: %v", d, err))
	}
	t.mem.Put(a)
	return a, nil
}

// missWithCause tags a degraded remote failure as a plain miss carrying
// the cause.
func missWithCause(d digest.Digest, cause error) error {
	return fmt.Errorf("%w for %s: %v", domain.ErrCacheMiss, d, cause)
}

// Put stores the artifact at the local tiers synchronously and uploads to
// the remote tier in the background. Remote upload failures are logged and
// never fail the build.
func (t *Tiered) Put(ctx context.Context, a domain.Artifact) error {
	if err := a.Verify(); err != nil {
		return err
	}

	t.mem.Put(a)
	if err := t.local.Put(a); err != nil {
		return err
	}

	if t.remote != nil {
		go func() {
			if err := t.remote.Put(context.WithoutCancel(ctx), a); err != nil {
				t.log.Warn(fmt.Sprintf("remote cache upload failed for %s: %v", a.Digest, err))
			}
		}()
	}
	return nil
}

// Materialize returns the artifact stored under key if any tier holds it,
// or runs produce exactly once per key across the process. The key is the
// coordination handle; a produced payload is verified against its own
// digest and stored under that digest, which need not equal the key.
// Nothing is committed once the context is cancelled.
func (t *Tiered) Materialize(ctx context.Context, key digest.Digest, produce func(ctx context.Context) (domain.Artifact, error)) (domain.Artifact, error) {
	v, err, _ := t.flights.Do(key.String(), func() (any, error) {
		a, err := t.Get(ctx, key)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, domain.ErrCacheMiss) {
			return nil, err
		}

		a, err = produce(ctx)
		if err != nil {
			return nil, err
		}
		if err := a.Verify(); err != nil {
			return nil, err
		}

		// Work finished after cancellation is discarded, not cached.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := t.Put(ctx, a); err != nil {
			return nil, err
		}
		return a, nil
	})
	if err != nil {
		return domain.Artifact{}, err
	}
	return v.(domain.Artifact), nil
}

// Prefetch warms the local tiers for the given digests in the background.
// It shares the per-digest flight group with Materialize so a prefetch in
// progress never duplicates a build's own fetch.
func (t *Tiered) Prefetch(ctx context.Context, digests []digest.Digest) {
	if t.remote == nil {
		return
	}
	for _, d := range digests {
		if t.mem.Has(d) || t.local.Has(d) {
			continue
		}
		go func() {
			_, _, _ = t.flights.Do(d.String(), func() (any, error) {
				a, err := t.remote.Get(ctx, d)
				if err != nil {
					return nil, err
				}
				if err := t.local.Put(a); err != nil {
					return nil, err
				}
				t.mem.Put(a)
				return a, nil
			})
		}()
	}
}
