package ports

import (
	"context"

	"go.trai.ch/memo/internal/core/domain"
)

// ConfigLoader turns a declarative build description into graph nodes. It
// is the thin, format-specific edge of the system: AddNode calls are issued
// in an order where every input id already exists.
//
//go:generate go run go.uber.org/mock/mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads the build description from the given working directory and
	// returns the assembled graph. Source contexts are fingerprinted during
	// loading, so the returned nodes carry their context fingerprints.
	Load(ctx context.Context, cwd string) (*domain.Graph, error)
}
