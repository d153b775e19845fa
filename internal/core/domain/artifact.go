package domain

import (
	"time"

	"github.com/opencontainers/go-digest"
)

// Artifact is a produced payload addressed by the digest of its content.
type Artifact struct {
	Digest digest.Digest
	Data   []byte
}

// Verify recomputes the artifact's content digest and checks it against the
// addressed key. Any artifact crossing a trust boundary (remote fetch,
// remote upload, runner output) must pass this before being stored or
// returned.
func (a Artifact) Verify() error {
	actual := digest.FromBytes(a.Data)
	if actual != a.Digest {
		return IntegrityError(a.Digest, actual, len(a.Data))
	}
	return nil
}

// CacheEntry describes one artifact held by a persistent cache tier.
// Entries for the same digest are reconciled by digest equality only,
// never by timestamp.
type CacheEntry struct {
	Digest    digest.Digest `json:"digest"`
	Path      string        `json:"path"`
	Size      int64         `json:"size"`
	CreatedAt time.Time     `json:"created_at"`
}

// Record is what is remembered for a logical node from a previous build
// session, keyed by Node.Key: the node digest it resolved to, and the
// content digest of the artifact it produced. The second field is how a
// clean node finds its artifact in the content-addressed store.
type Record struct {
	Key        string        `json:"key"`
	Digest     digest.Digest `json:"digest"`
	Artifact   digest.Digest `json:"artifact,omitzero"`
	RecordedAt time.Time     `json:"recorded_at,omitzero"`
}
