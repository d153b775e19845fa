// Package telemetry provides the no-op telemetry adapter used when no
// recorder is attached.
package telemetry

import (
	"context"
	"io"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/memo/internal/core/ports"
)

// NoOp implements ports.Telemetry and records nothing.
type NoOp struct{}

// NewNoOp creates a no-op telemetry sink.
func NewNoOp() *NoOp {
	return &NoOp{}
}

// Vertex returns a vertex that discards everything.
func (*NoOp) Vertex(_ context.Context, _ digest.Digest, _ string) ports.Vertex {
	return noOpVertex{}
}

// Close does nothing.
func (*NoOp) Close() error { return nil }

type noOpVertex struct{}

func (noOpVertex) Stdout() io.Writer { return io.Discard }
func (noOpVertex) Stderr() io.Writer { return io.Discard }
func (noOpVertex) Cached()           {}
func (noOpVertex) Complete(error)    {}
