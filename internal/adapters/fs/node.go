package fs

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/memo/internal/core/ports"
)

const (
	WalkerNodeID        graft.ID = "adapter.fs.walker"
	StatCacheNodeID     graft.ID = "adapter.fs.stat_cache"
	FingerprinterNodeID graft.ID = "adapter.fs.fingerprinter"
)

func init() {
	graft.Register(graft.Node[*Walker]{
		ID:        WalkerNodeID,
		Cacheable: true,
		Run: func(ctx context.Context) (*Walker, error) {
			return NewWalker(), nil
		},
	})

	graft.Register(graft.Node[*StatCache]{
		ID:        StatCacheNodeID,
		Cacheable: true,
		Run: func(ctx context.Context) (*StatCache, error) {
			return NewStatCache(), nil
		},
	})

	graft.Register(graft.Node[ports.Fingerprinter]{
		ID:        FingerprinterNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{WalkerNodeID, StatCacheNodeID},
		Run: func(ctx context.Context) (ports.Fingerprinter, error) {
			walker, err := graft.Dep[*Walker](ctx)
			if err != nil {
				return nil, err
			}
			cache, err := graft.Dep[*StatCache](ctx)
			if err != nil {
				return nil, err
			}
			return NewFingerprinter(walker, cache), nil
		},
	})
}
