package domain

import (
	"github.com/opencontainers/go-digest"
	"go.trai.ch/zerr"
)

var (
	// ErrCycleDetected is returned when a cycle is detected in the build graph.
	ErrCycleDetected = zerr.New("cycle detected")

	// ErrUnknownInput is returned when a node references an input id that
	// does not exist in the arena.
	ErrUnknownInput = zerr.New("unknown input")

	// ErrFilesystem is returned when fingerprinting fails to read a path.
	// It is fatal for the node's whole subtree; no partial digest is produced.
	ErrFilesystem = zerr.New("filesystem error")

	// ErrCacheMiss signals that a digest is absent at every cache tier.
	// It is control flow, not a failure.
	ErrCacheMiss = zerr.New("cache miss")

	// ErrCASIntegrity is returned when an artifact's content digest does not
	// match the key it was requested or stored under. It is never retried and
	// never downgraded to a warning.
	ErrCASIntegrity = zerr.New("cas integrity failure")

	// ErrNetwork is returned for remote tier failures that exhausted their
	// retry budget or were not retryable to begin with.
	ErrNetwork = zerr.New("network error")

	// ErrRemoteVersion is returned when the remote store speaks an
	// incompatible protocol revision.
	ErrRemoteVersion = zerr.New("incompatible remote cache version")

	// ErrRunnerFailed is returned when the external runner fails to execute
	// a node's instruction.
	ErrRunnerFailed = zerr.New("runner failed")

	// ErrNodeSkipped marks a node that was not executed because one of its
	// inputs failed in keep-going mode.
	ErrNodeSkipped = zerr.New("node skipped")

	// ErrBuildExecutionFailed is the terminal error of a failed build
	// invocation; per-node causes are joined underneath it.
	ErrBuildExecutionFailed = zerr.New("build execution failed")
)

// Tag attaches metadata to a sentinel error without detaching it from the
// error chain. zerr.With on a bare *zerr.Error returns a copy of the value,
// so errors.Is would stop matching the sentinel itself; wrapping first keeps
// the sentinel as the cause. The empty wrap message leaves the rendered
// error text unchanged.
func Tag(sentinel error, key string, value any) error {
	return zerr.With(zerr.Wrap(sentinel, ""), key, value)
}

// IntegrityError builds an ErrCASIntegrity carrying the expected and actual
// digests plus the payload size as metadata.
func IntegrityError(expected, actual digest.Digest, size int) error {
	err := Tag(ErrCASIntegrity, "expected", expected.String())
	err = zerr.With(err, "actual", actual.String())
	return zerr.With(err, "size", size)
}

// Filesystem permissions for stores and state directories.
const (
	DirPerm  = 0o750
	FilePerm = 0o644
)
