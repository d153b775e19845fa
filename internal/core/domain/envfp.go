package domain

import (
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"
)

// EnvironmentFingerprint derives a deterministic digest of the execution
// environment a node runs in: platform plus whichever environment variables
// the build declares as significant. It folds into every node digest, so
// moving a cache between incompatible environments misses instead of
// reusing stale artifacts.
func EnvironmentFingerprint(goos, goarch string, env map[string]string) digest.Digest {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var builder strings.Builder
	builder.WriteString(goos)
	builder.WriteString("/")
	builder.WriteString(goarch)
	builder.WriteString(";")
	for _, k := range keys {
		builder.WriteString(k)
		builder.WriteString("=")
		builder.WriteString(env[k])
		builder.WriteString(";")
	}

	return digest.FromString(builder.String())
}
