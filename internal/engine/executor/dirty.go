package executor

import (
	"github.com/opencontainers/go-digest"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
)

// seedDirty walks the graph in level order, computes every node digest
// bottom-up and marks the nodes whose digest differs from the history
// record for their logical key, or that have no record at all. Because a
// node digest folds in all input digests transitively, input-driven
// dirtiness cascades through the digest comparison itself; no second walk
// is needed.
//
// The returned map carries the history record found per node, which is how
// clean nodes later find their artifact in the content-addressed store.
func seedDirty(graph *domain.Graph, history ports.HistoryStore, envFP digest.Digest, force bool) (map[domain.NodeID]*domain.Record, int64, error) {
	records := make(map[domain.NodeID]*domain.Record, graph.Len())
	var dirty int64

	for _, level := range graph.Levels() {
		for _, id := range level {
			d, err := graph.ComputeDigest(id, envFP)
			if err != nil {
				return nil, 0, err
			}
			node, err := graph.Node(id)
			if err != nil {
				return nil, 0, err
			}

			record, err := history.Get(node.Key())
			if err != nil {
				return nil, 0, err
			}
			records[id] = record

			if force || record == nil || record.Digest != d {
				graph.MarkDirty(id)
				dirty++
			}
		}
	}
	return records, dirty, nil
}
