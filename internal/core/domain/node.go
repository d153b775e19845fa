package domain

import (
	"github.com/opencontainers/go-digest"
)

// NodeID is the stable index of a node within the graph arena.
// IDs are never reused within a build session.
type NodeID int

// NodeKind tags how a node is produced and consumed.
type NodeKind string

const (
	// KindSource is a node whose content comes straight from the filesystem.
	KindSource NodeKind = "source"
	// KindDependency is an externally resolved dependency node.
	KindDependency NodeKind = "dependency"
	// KindBuild is a node produced by running an instruction.
	KindBuild NodeKind = "build"
	// KindArtifact is a terminal node exposing a finished artifact.
	KindArtifact NodeKind = "artifact"
)

// Node represents one build step in the arena.
//
// Nodes are immutable after construction except for the dirty flag and the
// memoized digest, both of which are owned by the graph they live in.
type Node struct {
	ID          NodeID   `json:"id"`
	Kind        NodeKind `json:"kind"`
	Name        string   `json:"name"`
	Inputs      []NodeID `json:"inputs,omitzero"`
	Instruction string   `json:"instruction,omitzero"`

	// ContextFingerprint is the digest of any external filesystem state the
	// node reads directly, independent of its parent nodes. Empty for nodes
	// that read nothing outside the graph.
	ContextFingerprint digest.Digest `json:"context_fingerprint,omitzero"`

	digest digest.Digest
	dirty  bool
}

// Digest returns the memoized node digest, or "" if it has not been
// computed yet. Use Graph.ComputeDigest to compute it.
func (n *Node) Digest() digest.Digest {
	return n.digest
}

// Dirty reports whether the node requires re-execution this session.
func (n *Node) Dirty() bool {
	return n.dirty
}

// Key returns the stable logical identity of the node, independent of its
// numeric id. The history store is keyed by this value so that records
// survive graph rebuilds that renumber nodes.
func (n *Node) Key() string {
	return string(n.Kind) + "\x00" + n.Name + "\x00" + n.Instruction
}
