package ports

import (
	"context"
	"io"

	"github.com/opencontainers/go-digest"
)

// Telemetry records build progress as one vertex per node.
type Telemetry interface {
	// Vertex starts recording a node identified by its digest.
	Vertex(ctx context.Context, d digest.Digest, name string) Vertex

	// Close flushes the recording session.
	Close() error
}

// Vertex is the recording handle for one node.
type Vertex interface {
	// Stdout returns a writer capturing the node's standard output.
	Stdout() io.Writer

	// Stderr returns a writer capturing the node's error output.
	Stderr() io.Writer

	// Cached marks the vertex as resolved from cache.
	Cached()

	// Complete marks the vertex as finished, with err nil on success.
	Complete(err error)
}

// vertexKey is the context key carrying the active vertex.
type vertexKey struct{}

// ContextWithVertex attaches a vertex to the context.
func ContextWithVertex(ctx context.Context, v Vertex) context.Context {
	return context.WithValue(ctx, vertexKey{}, v)
}

// VertexFromContext returns the active vertex, or nil.
func VertexFromContext(ctx context.Context) Vertex {
	v, _ := ctx.Value(vertexKey{}).(Vertex)
	return v
}
