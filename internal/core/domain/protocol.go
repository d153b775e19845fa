package domain

// CacheVersionHeader carries the cache protocol version on every remote
// cache request and response. Client and server refuse to talk across a
// version mismatch.
const CacheVersionHeader = "Memo-Cache-Version"

// CacheProtocolVersion is the wire version this build speaks.
const CacheProtocolVersion = "1"

// AnalyticsReport is the end-of-build payload posted to the remote store.
type AnalyticsReport struct {
	Dirty      int64 `json:"dirty"`
	Cached     int64 `json:"cached"`
	DurationMS int64 `json:"duration_ms"`
}

// AnalyticsFromSummary flattens a session summary into the wire payload.
func AnalyticsFromSummary(s Summary) AnalyticsReport {
	return AnalyticsReport{
		Dirty:      s.DirtyNodes,
		Cached:     s.CacheHits + s.RemoteHits,
		DurationMS: s.Duration.Milliseconds(),
	}
}
