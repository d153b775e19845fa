// Package domain contains the core domain models for the build graph.
package domain

import (
	"iter"
	"strconv"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/zerr"
)

// Graph is an acyclic arena of build nodes. Edges are id lists rather than
// owning references, so snapshots are cheap to clone and serialize.
type Graph struct {
	nodes  []Node
	levels [][]NodeID
}

// NewGraph creates a new empty Graph.
func NewGraph() *Graph {
	return &Graph{}
}

// AddNode appends a node to the arena and returns its id.
//
// Every input id must reference an existing node. Because ids are assigned
// in append order and edges may only point at already existing nodes, a new
// edge can never close a cycle; the bounds check below is the whole
// incremental acyclicity check.
func (g *Graph) AddNode(kind NodeKind, name string, inputs []NodeID, instruction string, contextFP digest.Digest) (NodeID, error) {
	id := NodeID(len(g.nodes))
	for _, in := range inputs {
		if in < 0 || in >= id {
			return 0, zerr.With(Tag(ErrUnknownInput, "node", name), "input_id", int(in))
		}
	}

	g.nodes = append(g.nodes, Node{
		ID:                 id,
		Kind:               kind,
		Name:               name,
		Inputs:             append([]NodeID(nil), inputs...),
		Instruction:        instruction,
		ContextFingerprint: contextFP,
	})
	g.levels = nil
	return id, nil
}

// Len returns the number of nodes in the arena.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (*Node, error) {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil, Tag(ErrUnknownInput, "input_id", int(id))
	}
	return &g.nodes[id], nil
}

// Nodes returns an iterator over all nodes in id order.
func (g *Graph) Nodes() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for i := range g.nodes {
			if !yield(&g.nodes[i]) {
				return
			}
		}
	}
}

// Levels groups node ids by dependency depth: level 0 holds nodes with no
// inputs, level k holds nodes whose deepest input sits at level k-1. Nodes
// within one level have no transitive dependency on each other and may run
// concurrently. The result is memoized and invalidated by AddNode.
func (g *Graph) Levels() [][]NodeID {
	if g.levels != nil {
		return g.levels
	}

	// Graphs built through AddNode have ids in topological order, but
	// restored snapshots only guarantee acyclicity, so depths are computed
	// in Kahn order rather than a single forward pass over ids.
	indegree := make([]int, len(g.nodes))
	dependents := make([][]NodeID, len(g.nodes))
	for i := range g.nodes {
		for _, in := range g.nodes[i].Inputs {
			indegree[i]++
			dependents[in] = append(dependents[in], NodeID(i))
		}
	}

	depth := make([]int, len(g.nodes))
	queue := make([]NodeID, 0, len(g.nodes))
	for i := range g.nodes {
		if indegree[i] == 0 {
			queue = append(queue, NodeID(i))
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range dependents[id] {
			if depth[id]+1 > depth[dep] {
				depth[dep] = depth[id] + 1
			}
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	maxDepth := 0
	for _, d := range depth {
		if d > maxDepth {
			maxDepth = d
		}
	}

	levels := make([][]NodeID, maxDepth+1)
	for i := range g.nodes {
		levels[depth[i]] = append(levels[depth[i]], NodeID(i))
	}
	g.levels = levels
	return levels
}

// Dependents returns the ids of nodes that list the given node as an input.
func (g *Graph) Dependents(id NodeID) []NodeID {
	var out []NodeID
	for i := range g.nodes {
		for _, in := range g.nodes[i].Inputs {
			if in == id {
				out = append(out, NodeID(i))
				break
			}
		}
	}
	return out
}

// Validate runs a full cycle check over the arena. Graphs built through
// AddNode are acyclic by construction; this exists for graphs restored from
// snapshots, where edge lists are taken on trust.
func (g *Graph) Validate() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make([]int, len(g.nodes))
	var path []NodeID

	var visit func(id NodeID) error
	visit = func(id NodeID) error {
		state[id] = visiting
		path = append(path, id)

		for _, in := range g.nodes[id].Inputs {
			if in < 0 || int(in) >= len(g.nodes) {
				return Tag(ErrUnknownInput, "input_id", int(in))
			}
			switch state[in] {
			case visiting:
				return g.buildCycleError(path, in)
			case unvisited:
				if err := visit(in); err != nil {
					return err
				}
			}
		}

		state[id] = done
		path = path[:len(path)-1]
		return nil
	}

	for i := range g.nodes {
		if state[i] == unvisited {
			if err := visit(NodeID(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildCycleError constructs an error carrying the cycle path as metadata.
func (g *Graph) buildCycleError(path []NodeID, to NodeID) error {
	start := 0
	for i, id := range path {
		if id == to {
			start = i
			break
		}
	}
	cycle := ""
	for _, id := range path[start:] {
		cycle += g.nodes[id].Name + " -> "
	}
	cycle += g.nodes[to].Name
	return Tag(ErrCycleDetected, "cycle", cycle)
}

// ComputeDigest computes and memoizes the digest of the given node:
//
//	H(inputs[0].digest ‖ … ‖ inputs[n].digest ‖ instruction ‖ context ‖ env)
//
// All input digests must already be computed, which holds when nodes are
// visited in topological (level) order. The result is a pure function of
// the node's declared inputs and local content, never of unrelated graph
// state; two nodes with equal digests are interchangeable for caching.
func (g *Graph) ComputeDigest(id NodeID, envFP digest.Digest) (digest.Digest, error) {
	node, err := g.Node(id)
	if err != nil {
		return "", err
	}
	if node.digest != "" {
		return node.digest, nil
	}

	digester := digest.SHA256.Digester()
	h := digester.Hash()
	for _, in := range node.Inputs {
		input := &g.nodes[in]
		if input.digest == "" {
			return "", zerr.With(zerr.With(zerr.New("input digest not yet computed"),
				"node", node.Name), "input_id", strconv.Itoa(int(in)))
		}
		_, _ = h.Write([]byte(input.digest))
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.Write([]byte(node.Instruction))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(node.ContextFingerprint))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(envFP))

	node.digest = digester.Digest()
	return node.digest, nil
}

// MarkDirty flags a node for re-execution.
func (g *Graph) MarkDirty(id NodeID) {
	if id >= 0 && int(id) < len(g.nodes) {
		g.nodes[id].dirty = true
	}
}

// Snapshot returns a copy of the arena suitable for serialization. Memoized
// digests and dirty flags are not part of the snapshot.
func (g *Graph) Snapshot() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	for i := range out {
		out[i].digest = ""
		out[i].dirty = false
		out[i].Inputs = append([]NodeID(nil), g.nodes[i].Inputs...)
	}
	return out
}

// Restore rebuilds a graph from a snapshot. The edge lists are validated
// with a full cycle check since they no longer carry the append-order
// guarantee.
func Restore(nodes []Node) (*Graph, error) {
	g := &Graph{nodes: append([]Node(nil), nodes...)}
	// Ids are arena positions; a snapshot that disagrees is renumbered.
	for i := range g.nodes {
		g.nodes[i].ID = NodeID(i)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
