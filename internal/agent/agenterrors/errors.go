// Package agenterrors defines the sentinel error kinds shared by the
// deployment client, artifact parser, and deployment state machine. Callers
// use errors.Is against these sentinels; wrapped context is attached with
// fmt.Errorf's %w.
package agenterrors

import "errors"

var (
	// ErrNoUpdate is returned when the deployment service reports 204 on a
	// next-deployment poll: not a failure, just nothing to do this tick.
	ErrNoUpdate = errors.New("no update available")

	// ErrMalformedResponse is returned when a 200 response body is missing
	// a field the caller requires.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrIntegrityFailure is returned on checksum or signature mismatch.
	ErrIntegrityFailure = errors.New("integrity failure")

	// ErrIncompatibleArtifact is returned when the device type is not in
	// the descriptor's compatible list.
	ErrIncompatibleArtifact = errors.New("incompatible artifact")

	// ErrUnsupported is returned for an unsupported artifact version,
	// an unregistered payload type, or an unrecognized HTTP status.
	ErrUnsupported = errors.New("unsupported")

	// ErrTransport is returned when the HTTP client reports a transport
	// failure (the Error event) rather than a completed response.
	ErrTransport = errors.New("transport error")

	// ErrOutOfMemory is returned when an artifact tar entry's declared
	// size exceeds the parser's configured maximum entry size.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrNotFound is returned by the storage collaborator on a missing
	// key; distinct from ErrFailure so callers can treat it specially.
	ErrNotFound = errors.New("not found")

	// ErrUnmetDependency is returned when an artifact's depends set is not
	// satisfied by the persisted provides set.
	ErrUnmetDependency = errors.New("unmet dependency")

	// ErrFailure is the generic bucket for anything else that aborts a
	// deployment.
	ErrFailure = errors.New("failure")

	// ErrIncompatibleProtocol is returned when the deployment service
	// reports a protocol version too far from this build's own.
	ErrIncompatibleProtocol = errors.New("incompatible protocol version")
)
