package cache

import (
	"context"
	"os"

	"github.com/grindlemire/graft"
	"go.trai.ch/memo/internal/adapters/logger"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/memo/internal/paths"
)

// Environment overrides for cache wiring.
const (
	EnvCacheDir       = "MEMO_CACHE_DIR"
	EnvRemoteURL      = "MEMO_REMOTE_CACHE"
	EnvRemoteRequired = "MEMO_REMOTE_REQUIRED"
)

const (
	LocalNodeID  graft.ID = "adapter.cache.local"
	RemoteNodeID graft.ID = "adapter.cache.remote"
	NodeID       graft.ID = "adapter.cache.tiered"
)

func init() {
	graft.Register(graft.Node[ports.LocalStore]{
		ID:        LocalNodeID,
		Cacheable: true,
		Run: func(ctx context.Context) (ports.LocalStore, error) {
			dir := os.Getenv(EnvCacheDir)
			if dir == "" {
				dir = paths.Cache()
			}
			return NewLocal(dir)
		},
	})

	// The remote tier is optional: without MEMO_REMOTE_CACHE the node
	// yields a nil store and the tiered cache skips the network entirely.
	graft.Register(graft.Node[ports.RemoteStore]{
		ID:        RemoteNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID},
		Run: func(ctx context.Context) (ports.RemoteStore, error) {
			baseURL := os.Getenv(EnvRemoteURL)
			if baseURL == "" {
				return nil, nil
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewRemote(baseURL, log), nil
		},
	})

	graft.Register(graft.Node[ports.ArtifactCache]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{LocalNodeID, RemoteNodeID, logger.NodeID},
		Run: func(ctx context.Context) (ports.ArtifactCache, error) {
			local, err := graft.Dep[ports.LocalStore](ctx)
			if err != nil {
				return nil, err
			}
			remote, err := graft.Dep[ports.RemoteStore](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			tiered := NewTiered(local, remote, log)
			if remote != nil && os.Getenv(EnvRemoteRequired) != "" {
				tiered.RequireRemote()
			}
			return tiered, nil
		},
	})
}
