// Package ports defines the core interfaces for the application.
package ports

import (
	"context"

	"github.com/opencontainers/go-digest"
)

// IgnoreRules filters paths out of fingerprinting. Matched paths must never
// influence a digest.
type IgnoreRules interface {
	// Ignored reports whether the given root-relative path is excluded.
	Ignored(rel string) bool
}

// Fingerprinter derives deterministic digests for filesystem state.
//
//go:generate go run go.uber.org/mock/mockgen -source=fingerprinter.go -destination=mocks/mock_fingerprinter.go -package=mocks
type Fingerprinter interface {
	// FingerprintPath digests a file or directory subtree. Directory entries
	// are visited in deterministic lexicographic order and entries matching
	// the ignore rules are skipped entirely. Unreadable paths fail with
	// domain.ErrFilesystem; no partial digest is returned.
	FingerprintPath(ctx context.Context, path string, rules IgnoreRules) (digest.Digest, error)

	// FingerprintBytes digests a raw payload.
	FingerprintBytes(data []byte) digest.Digest
}
