package fs

import (
	"bytes"
	"io"
	"testing"
)

// stutteringReader returns at most a few bytes per call, never a full
// chunk, the way a pipe or network-backed file can.
type stutteringReader struct {
	r io.Reader
}

func (s stutteringReader) Read(p []byte) (int, error) {
	if len(p) > 3 {
		p = p[:3]
	}
	return s.r.Read(p)
}

func TestDigestChunks_ShortReadsDoNotShiftBoundaries(t *testing.T) {
	// Two full chunks plus a partial tail.
	data := append(bytes.Repeat([]byte("abcdefgh"), 2*chunkSize/8), []byte("tail")...)

	whole, err := digestChunks(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("digestChunks failed: %v", err)
	}

	stuttered, err := digestChunks(stutteringReader{r: bytes.NewReader(data)})
	if err != nil {
		t.Fatalf("digestChunks over short reads failed: %v", err)
	}

	if whole != stuttered {
		t.Errorf("identical content digested differently: %s vs %s", whole, stuttered)
	}
}
