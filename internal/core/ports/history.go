package ports

import "go.trai.ch/memo/internal/core/domain"

// HistoryStore remembers the digest each logical node had at the end of the
// previous session. The dirty seed set falls out of comparing fresh digests
// against these records.
//
//go:generate go run go.uber.org/mock/mockgen -source=history.go -destination=mocks/mock_history.go -package=mocks
type HistoryStore interface {
	// Get retrieves the record for a logical node key.
	// Returns nil, nil if the node has never been recorded.
	Get(key string) (*domain.Record, error)

	// Put stores the record.
	Put(record domain.Record) error
}
