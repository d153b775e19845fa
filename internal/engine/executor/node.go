package executor

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/memo/internal/adapters/cache"
	"go.trai.ch/memo/internal/adapters/history"
	"go.trai.ch/memo/internal/adapters/logger"
	"go.trai.ch/memo/internal/adapters/runner"
	"go.trai.ch/memo/internal/adapters/telemetry"
	"go.trai.ch/memo/internal/core/ports"
)

const NodeID graft.ID = "engine.executor"

func init() {
	graft.Register(graft.Node[*Executor]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{cache.NodeID, runner.NodeID, history.NodeID, logger.NodeID, telemetry.NodeID},
		Run: func(ctx context.Context) (*Executor, error) {
			artifacts, err := graft.Dep[ports.ArtifactCache](ctx)
			if err != nil {
				return nil, err
			}
			run, err := graft.Dep[ports.Runner](ctx)
			if err != nil {
				return nil, err
			}
			hist, err := graft.Dep[ports.HistoryStore](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			tel, err := graft.Dep[ports.Telemetry](ctx)
			if err != nil {
				return nil, err
			}
			return New(artifacts, run, hist, log, tel), nil
		},
	})
}
