package ports

import (
	"context"

	"go.trai.ch/memo/internal/core/domain"
)

// Runner executes one node's instruction outside the core. Implementations
// range from a local process to a sandboxed container; the core treats the
// capability as opaque and awaits its result.
//
// The env parameter carries environment variables in "KEY=VALUE" form.
// Runner failures surface as domain.ErrRunnerFailed wrapped errors.
//
//go:generate go run go.uber.org/mock/mockgen -source=runner.go -destination=mocks/mock_runner.go -package=mocks
type Runner interface {
	Run(ctx context.Context, instruction string, inputs []domain.Artifact, env []string) (domain.Artifact, error)
}
