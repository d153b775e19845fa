package domain

// VertexStatus is the lifecycle state of one node as reported to telemetry.
type VertexStatus string

const (
	// VertexStatusPending indicates the node is waiting for its level.
	VertexStatusPending VertexStatus = "pending"
	// VertexStatusRunning indicates the node is executing.
	VertexStatusRunning VertexStatus = "running"
	// VertexStatusCompleted indicates the node executed successfully.
	VertexStatusCompleted VertexStatus = "completed"
	// VertexStatusFailed indicates the node execution failed.
	VertexStatusFailed VertexStatus = "failed"
	// VertexStatusCached indicates the node was resolved from a cache tier.
	VertexStatusCached VertexStatus = "cached"
	// VertexStatusSkipped indicates the node was not run because an input
	// failed in keep-going mode.
	VertexStatusSkipped VertexStatus = "skipped"
)

// IsTerminal reports whether the status is a final state.
func (s VertexStatus) IsTerminal() bool {
	switch s {
	case VertexStatusCompleted, VertexStatusFailed, VertexStatusCached, VertexStatusSkipped:
		return true
	default:
		return false
	}
}
