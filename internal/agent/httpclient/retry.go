package httpclient

import (
	"bytes"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/edgeupdate/agent/pkg/log"
)

// RetryConfig bounds the exponential backoff RetryTransport applies to
// retryable responses.
type RetryConfig struct {
	// MaxSteps is the maximum number of retry attempts after the
	// initial request.
	MaxSteps int
	// BaseDelay is the delay before the first retry; each subsequent
	// retry doubles it, capped at MaxDelay.
	BaseDelay time.Duration
	// MaxDelay caps both the computed backoff and any server-provided
	// Retry-After value.
	MaxDelay time.Duration
}

// DefaultRetryConfig matches the deployment service's documented
// rate-limit guidance: a handful of retries with a capped exponential
// backoff.
var DefaultRetryConfig = RetryConfig{
	MaxSteps:  4,
	BaseDelay: 500 * time.Millisecond,
	MaxDelay:  30 * time.Second,
}

// RetryTransport wraps an http.RoundTripper, retrying requests that
// fail with 429 or a 5xx status. It buffers the request body so it can
// be resent on each attempt; callers with very large bodies (artifact
// uploads, which this agent never performs) should not use it.
type RetryTransport struct {
	transport http.RoundTripper
	cfg       RetryConfig
	log       *log.PrefixLogger
}

// NewRetryTransport wraps transport (http.DefaultTransport if nil) with cfg.
func NewRetryTransport(transport http.RoundTripper, cfg RetryConfig, logger *log.PrefixLogger) *RetryTransport {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &RetryTransport{transport: transport, cfg: cfg, log: logger}
}

func (r *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
	}

	var resp *http.Response
	var err error

	for attempt := 0; attempt <= r.cfg.MaxSteps; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}
		if attempt > 0 && r.log != nil {
			r.log.Debugf("retry attempt %d/%d for %s %s", attempt, r.cfg.MaxSteps, req.Method, req.URL.Path)
		}

		resp, err = r.transport.RoundTrip(req)
		if err != nil {
			return nil, err
		}

		if !shouldRetry(resp.StatusCode) || attempt >= r.cfg.MaxSteps {
			return resp, nil
		}

		wait := r.backoff(attempt + 1)
		if retryAfter := parseRetryAfter(resp, r.cfg.MaxDelay); retryAfter > 0 {
			wait = retryAfter
		}
		resp.Body.Close()

		select {
		case <-time.After(wait):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}

	return resp, err
}

func (r *RetryTransport) backoff(attempt int) time.Duration {
	d := time.Duration(float64(r.cfg.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if r.cfg.MaxDelay > 0 && d > r.cfg.MaxDelay {
		return r.cfg.MaxDelay
	}
	return d
}

func shouldRetry(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= 500 && statusCode < 600)
}

func parseRetryAfter(resp *http.Response, maxDelay time.Duration) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}
	var d time.Duration
	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		d = time.Duration(seconds) * time.Second
	} else if t, err := http.ParseTime(retryAfter); err == nil {
		d = time.Until(t)
	}
	if d < 0 {
		return 0
	}
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}
