package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/edgeupdate/agent/pkg/log"
)

const defaultReadChunkSize = 32 * 1024

// DefaultClient is the default Client, backed by net/http. It resolves
// relative paths against host and streams response bodies through the
// EventCallback in defaultReadChunkSize pieces rather than buffering
// them whole, so the artifact parser never needs the full artifact in
// memory at once.
type DefaultClient struct {
	host       string
	httpClient *http.Client
}

// NewDefaultClient returns a DefaultClient resolving relative paths
// against host (e.g. "https://deployments.example.com").
func NewDefaultClient(host string, httpClient *http.Client) *DefaultClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &DefaultClient{host: host, httpClient: httpClient}
}

// NewDefaultClientWithRetry is NewDefaultClient with its transport
// wrapped in a RetryTransport, so 429/5xx responses from the
// deployment service are retried with backoff before Perform returns.
func NewDefaultClientWithRetry(host string, httpClient *http.Client, cfg RetryConfig, logger *log.PrefixLogger) *DefaultClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	cloned := *httpClient
	cloned.Transport = NewRetryTransport(httpClient.Transport, cfg, logger)
	return &DefaultClient{host: host, httpClient: &cloned}
}

func (c *DefaultClient) resolve(path string) (string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	if u.IsAbs() {
		return path, nil
	}
	base, err := url.Parse(c.host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", c.host, err)
	}
	return base.ResolveReference(u).String(), nil
}

func (c *DefaultClient) Perform(ctx context.Context, token, path, method string, body io.Reader, signatureHeader string, cb EventCallback) (int, error) {
	target, err := c.resolve(path)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if signatureHeader != "" {
		req.Header.Set("X-MEN-Signature", signatureHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		emit(ctx, cb, EventInfo{Event: Error, Err: err})
		return 0, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	emit(ctx, cb, EventInfo{Event: Connected})

	buf := make([]byte, defaultReadChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			emit(ctx, cb, EventInfo{Event: DataReceived, Data: chunk})
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			emit(ctx, cb, EventInfo{Event: Error, Err: readErr})
			return resp.StatusCode, fmt.Errorf("reading response body: %w", readErr)
		}
	}
	emit(ctx, cb, EventInfo{Event: Disconnected})

	return resp.StatusCode, nil
}

func (c *DefaultClient) DownloadArtifact(ctx context.Context, uri string, dl EventCallback) (int, error) {
	return c.Perform(ctx, "", uri, http.MethodGet, nil, "", dl)
}

func emit(ctx context.Context, cb EventCallback, info EventInfo) {
	if cb != nil {
		cb(ctx, info)
	}
}
