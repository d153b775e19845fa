package history

import (
	"context"
	"os"

	"github.com/grindlemire/graft"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/memo/internal/paths"
)

// EnvStateDir overrides the default history location.
const EnvStateDir = "MEMO_STATE_DIR"

const NodeID graft.ID = "adapter.history_store"

func init() {
	graft.Register(graft.Node[ports.HistoryStore]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(ctx context.Context) (ports.HistoryStore, error) {
			dir := os.Getenv(EnvStateDir)
			if dir == "" {
				dir = paths.History()
			}
			return NewStore(dir)
		},
	})
}
