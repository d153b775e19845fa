package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/opencontainers/go-digest"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/zerr"
)

// Retry budget for remote requests. Each attempt carries its own deadline
// so a hung remote degrades to a miss instead of stalling the build.
const (
	retryMax       = 3
	retryWaitMin   = 100 * time.Millisecond
	retryWaitMax   = 5 * time.Second
	requestTimeout = 30 * time.Second
)

// Remote implements ports.RemoteStore against the HTTP cache contract:
// HEAD/GET/PUT /cache/{digest} plus POST /analytics. Requests carry the
// protocol version header; a server answering with a different version is
// refused without retrying.
type Remote struct {
	baseURL string
	client  *retryablehttp.Client
	log     ports.Logger
}

// NewRemote creates a remote store client for the given base URL.
func NewRemote(baseURL string, log ports.Logger) *Remote {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = retryWaitMin
	client.RetryWaitMax = retryWaitMax
	client.Backoff = jitterBackoff
	client.CheckRetry = checkRetry
	client.HTTPClient.Timeout = requestTimeout
	client.Logger = nil

	return &Remote{
		baseURL: baseURL,
		client:  client,
		log:     log,
	}
}

// WithRequestTimeout overrides the per-attempt deadline.
func (r *Remote) WithRequestTimeout(d time.Duration) *Remote {
	r.client.HTTPClient.Timeout = d
	return r
}

// jitterBackoff doubles the wait per attempt, clamps it, and spreads
// concurrent clients by up to twenty percent either way.
func jitterBackoff(minWait, maxWait time.Duration, attemptNum int, resp *http.Response) time.Duration {
	sleep := retryablehttp.DefaultBackoff(minWait, maxWait, attemptNum, resp)
	//nolint:gosec // Jitter does not need a cryptographic source
	return time.Duration(float64(sleep) * (0.8 + 0.4*rand.Float64()))
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil {
		if v := resp.Header.Get(domain.CacheVersionHeader); v != "" && v != domain.CacheProtocolVersion {
			return false, domain.Tag(domain.ErrRemoteVersion, "server_version", v)
		}
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func (r *Remote) newRequest(ctx context.Context, method, url string, body []byte) (*retryablehttp.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to build remote cache request")
	}
	req.Header.Set(domain.CacheVersionHeader, domain.CacheProtocolVersion)
	return req, nil
}

func (r *Remote) cacheURL(d digest.Digest) string {
	return fmt.Sprintf("%s/cache/%s", r.baseURL, d.String())
}

// networkError classifies a transport failure. A protocol version mismatch
// detected mid-flight keeps its own identity.
func networkError(err error) error {
	if errors.Is(err, domain.ErrRemoteVersion) {
		return err
	}
	return domain.Tag(domain.ErrNetwork, "cause", err.Error())
}

// Has asks the remote store whether it holds the digest.
func (r *Remote) Has(ctx context.Context, d digest.Digest) (bool, error) {
	req, err := r.newRequest(ctx, http.MethodHead, r.cacheURL(d), nil)
	if err != nil {
		return false, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false, networkError(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, domain.Tag(domain.ErrNetwork, "status", resp.StatusCode)
	}
}

// Get downloads the artifact for the digest. The payload is streamed
// through a verifier for the requested digest; a mismatch discards the
// payload and returns ErrCASIntegrity.
func (r *Remote) Get(ctx context.Context, d digest.Digest) (domain.Artifact, error) {
	req, err := r.newRequest(ctx, http.MethodGet, r.cacheURL(d), nil)
	if err != nil {
		return domain.Artifact{}, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return domain.Artifact{}, networkError(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.Artifact{}, domain.Tag(domain.ErrCacheMiss, "digest", d.String())
	default:
		return domain.Artifact{}, domain.Tag(domain.ErrNetwork, "status", resp.StatusCode)
	}

	verifier := d.Verifier()
	data, err := io.ReadAll(io.TeeReader(resp.Body, verifier))
	if err != nil {
		return domain.Artifact{}, networkError(err)
	}
	if !verifier.Verified() {
		return domain.Artifact{}, domain.IntegrityError(d, digest.FromBytes(data), len(data))
	}

	return domain.Artifact{Digest: d, Data: data}, nil
}

// Put uploads the artifact. The upload is skipped when the remote already
// holds the digest; content under a digest never changes.
func (r *Remote) Put(ctx context.Context, a domain.Artifact) error {
	exists, err := r.Has(ctx, a.Digest)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	req, err := r.newRequest(ctx, http.MethodPut, r.cacheURL(a.Digest), a.Data)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := r.client.Do(req)
	if err != nil {
		return networkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Tag(domain.ErrNetwork, "status", resp.StatusCode)
	}
	return nil
}

// ReportAnalytics posts the end-of-build counters. Callers treat failures
// as best effort.
func (r *Remote) ReportAnalytics(ctx context.Context, summary domain.Summary) error {
	payload, err := json.Marshal(domain.AnalyticsFromSummary(summary))
	if err != nil {
		return zerr.Wrap(err, "failed to marshal analytics report")
	}

	req, err := r.newRequest(ctx, http.MethodPost, r.baseURL+"/analytics", payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return networkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Tag(domain.ErrNetwork, "status", resp.StatusCode)
	}
	return nil
}
