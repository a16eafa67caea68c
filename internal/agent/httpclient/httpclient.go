// Package httpclient defines the agent's HTTP transport collaborator
// (§6). Every request the agent makes — authentication, deployment
// polling, status/inventory publication, artifact download — goes
// through a single Perform call, so platform integrations can route
// all device traffic through one proxy, TLS config, or rate limiter.
package httpclient

//go:generate mockgen -source=httpclient.go -destination=mock_httpclient.go -package=httpclient

import (
	"context"
	"io"
)

// Event is delivered to an EventCallback as a response streams in.
type Event int

const (
	// Connected fires once the underlying transport has established
	// the connection, before any response body is available.
	Connected Event = iota
	// DataReceived fires for each chunk of response body read; Data
	// holds exactly that chunk, not the cumulative body.
	DataReceived
	// Disconnected fires once after the response body is fully
	// consumed or the connection closes, whichever happens first.
	Disconnected
	// Error fires if the request fails at any point; Err holds the cause.
	Error
)

// EventInfo is passed to an EventCallback on every invocation.
type EventInfo struct {
	Event Event
	Data  []byte
	Err   error
}

// EventCallback observes a request's lifecycle as it streams, so a
// caller (chiefly the artifact parser) can process a response body
// incrementally without buffering it in memory first.
type EventCallback func(ctx context.Context, info EventInfo)

// Client performs HTTP requests against the deployment service.
type Client interface {
	// Perform issues method against path. If path is an absolute URI it
	// is used as-is; otherwise it is resolved against the client's
	// configured host. token, if non-empty, is sent as a bearer
	// authorization header. body, if non-nil, is streamed as the
	// request body. signatureHeader, if non-empty, is sent as an
	// additional header carrying a detached signature over body (used
	// for authentication requests). cb, if non-nil, receives lifecycle
	// events as the response streams; Perform blocks until the
	// response is fully consumed. Perform returns the HTTP status code
	// on any response it received, even a non-2xx one. It returns an
	// error when no status code was obtained (DNS failure, connection
	// refused, context canceled), and also, alongside the status code,
	// when reading the response body fails.
	Perform(ctx context.Context, token, path, method string, body io.Reader, signatureHeader string, cb EventCallback) (statusCode int, err error)
}

// ArtifactDownloader downloads the artifact at uri, feeding its bytes
// to dl as they arrive. It is a thin convenience over Perform(GET) that
// wires dl as the event callback, for callers that don't need to
// customize the request.
type ArtifactDownloader interface {
	DownloadArtifact(ctx context.Context, uri string, dl EventCallback) (statusCode int, err error)
}
