// Package progrock provides the progrock implementation of the telemetry
// adapter.
package progrock

import (
	"context"

	"github.com/opencontainers/go-digest"
	"github.com/vito/progrock"
	"go.trai.ch/memo/internal/core/ports"
)

// Recorder implements ports.Telemetry on a progrock tape: one vertex per
// dirty node, keyed by the node digest.
type Recorder struct {
	w   progrock.Writer
	rec *progrock.Recorder
}

// New creates a Recorder with a default tape.
func New() ports.Telemetry {
	return NewRecorder(progrock.NewTape())
}

// NewRecorder creates a Recorder with the given writer.
func NewRecorder(w progrock.Writer) *Recorder {
	return &Recorder{
		w:   w,
		rec: progrock.NewRecorder(w),
	}
}

// Vertex starts recording a node under its digest.
func (r *Recorder) Vertex(_ context.Context, d digest.Digest, name string) ports.Vertex {
	return &Vertex{vertex: r.rec.Vertex(d, name)}
}

// Close flushes the recording session.
func (r *Recorder) Close() error {
	if c, ok := r.w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
