package telemetry

import (
	"context"
	"os"

	"github.com/grindlemire/graft"
	"go.trai.ch/memo/internal/adapters/telemetry/progrock"
	"go.trai.ch/memo/internal/core/ports"
)

// EnvProgress opts in to live progress recording.
const EnvProgress = "MEMO_PROGRESS"

const NodeID graft.ID = "adapter.telemetry"

func init() {
	graft.Register(graft.Node[ports.Telemetry]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Telemetry, error) {
			if os.Getenv(EnvProgress) != "" {
				return progrock.New(), nil
			}
			return NewNoOp(), nil
		},
	})
}
