// Package client implements the deployment service protocol: it builds and
// sends authentication, next-deployment, status-publish, inventory, and
// artifact-download requests, and owns the session token for the agent
// process's lifetime.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/edgeupdate/agent/internal/agent/agenterrors"
	"github.com/edgeupdate/agent/internal/agent/cryptobackend"
	"github.com/edgeupdate/agent/internal/agent/httpclient"
	"github.com/edgeupdate/agent/internal/agent/httpstatus"
	"github.com/edgeupdate/agent/internal/agent/identity"
	"github.com/edgeupdate/agent/pkg/log"
	"github.com/edgeupdate/agent/pkg/version"
)

const (
	pathAuthRequests = "/api/devices/v1/authentication/auth_requests"
	pathNextV2       = "/api/devices/v2/deployments/device/deployments/next"
	pathNextV1       = "/api/devices/v1/deployments/device/deployments/next"
	pathInventory    = "/api/devices/v1/inventory/device/attributes"
)

func pathStatus(id string) string {
	return fmt.Sprintf("/api/devices/v1/deployments/device/deployments/%s/status", id)
}

// Config holds the client's construction-time, immutable settings.
type Config struct {
	DeviceType  string
	TenantToken string
}

// HTTPError is returned for any non-success response from the deployment
// service. It wraps agenterrors.ErrFailure so callers that only care about
// the error class can use errors.Is, while callers that need the status
// code (the deployment state machine's 401 re-authentication rule) can use
// errors.As.
type HTTPError struct {
	StatusCode int
	ServerMsg  string
}

func (e *HTTPError) Error() string {
	phrase, ok := httpstatus.Phrase(e.StatusCode)
	if !ok {
		phrase = "Unknown Status"
	}
	msg := e.ServerMsg
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Sprintf("[%d] %s: %s", e.StatusCode, phrase, msg)
}

func (e *HTTPError) Unwrap() error {
	return agenterrors.ErrFailure
}

// Descriptor is the outcome of a successful check-for-deployment call.
type Descriptor struct {
	ID                    string
	ArtifactName          string
	URI                   string
	DeviceTypesCompatible []string
}

// Client talks to the deployment service. It is not safe for concurrent
// use by more than one work unit at a time, matching the agent's
// single-threaded cooperative scheduling model.
type Client struct {
	cfg      Config
	http     httpclient.Client
	identity identity.Provider
	crypto   cryptobackend.Backend
	log      *log.PrefixLogger

	versionChecker *version.VersionCompatibilityChecker

	token string
}

// New returns a Client. httpClient, idProvider, and crypto are the §6
// external collaborators; logger may be nil.
func New(cfg Config, httpClient httpclient.Client, idProvider identity.Provider, crypto cryptobackend.Backend, logger *log.PrefixLogger) *Client {
	if logger == nil {
		logger = log.NewPrefixLogger("client")
	}
	return &Client{
		cfg:            cfg,
		http:           httpClient,
		identity:       idProvider,
		crypto:         crypto,
		log:            logger,
		versionChecker: version.NewVersionCompatibilityChecker(version.Get()),
	}
}

// IsAuthenticated reports whether the client currently holds a session
// token obtained from a prior successful Authenticate call.
func (c *Client) IsAuthenticated() bool {
	return c.token != ""
}

// ClearToken discards the current session token. Called by the deployment
// state machine when a request fails with 401, before it retries
// Authenticate and the failed call once.
func (c *Client) ClearToken() {
	c.token = ""
}

type authRequestBody struct {
	IDData      string `json:"id_data"`
	Pubkey      string `json:"pubkey"`
	TenantToken string `json:"tenant_token,omitempty"`
}

// Authenticate obtains a fresh session token from the deployment service,
// signing the request payload with the device's private key. On success
// the token is stored on the client and used as the bearer token on every
// subsequent request other than authentication itself.
func (c *Client) Authenticate(ctx context.Context) error {
	id, err := c.identity.GetIdentity(ctx)
	if err != nil {
		return fmt.Errorf("getting identity: %w", err)
	}
	idJSON, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encoding identity: %w", err)
	}
	pubPEM, err := c.crypto.PublicKeyPEM(ctx)
	if err != nil {
		return fmt.Errorf("reading public key: %w", err)
	}

	payload := authRequestBody{
		IDData:      string(idJSON),
		Pubkey:      string(pubPEM),
		TenantToken: c.cfg.TenantToken,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding auth request: %w", err)
	}

	sig, err := c.crypto.Sign(ctx, body)
	if err != nil {
		return fmt.Errorf("signing auth request: %w", err)
	}
	sigHeader := base64.StdEncoding.EncodeToString(sig)

	var respBody bytes.Buffer
	status, err := c.http.Perform(ctx, "", pathAuthRequests, http.MethodPost, bytes.NewReader(body), sigHeader, collectInto(&respBody))
	if err != nil {
		return fmt.Errorf("%w: %w", agenterrors.ErrTransport, err)
	}
	if status != http.StatusOK {
		httpErr := c.httpError(status, nil)
		c.log.WithField("status", status).Warnf("authentication failed: %s", httpErr)
		return httpErr
	}

	c.token = respBody.String()
	return nil
}

type nextDeploymentRequestV2 struct {
	DeviceProvides nextDeploymentDeviceProvides `json:"device_provides"`
}

type nextDeploymentDeviceProvides struct {
	DeviceType   string            `json:"device_type"`
	ArtifactName string            `json:"artifact_name"`
	Provides     map[string]string `json:"provides,omitempty"`
}

type nextDeploymentResponse struct {
	ID       string `json:"id"`
	Artifact struct {
		ArtifactName string `json:"artifact_name"`
		Source       struct {
			URI string `json:"uri"`
		} `json:"source"`
		DeviceTypesCompatible []string `json:"device_types_compatible"`
	} `json:"artifact"`
	// ServerVersion, when present, is the deployment service's own
	// protocol version, checked against this build's version before
	// the response is trusted.
	ServerVersion string `json:"server_version,omitempty"`
}

// CheckForDeployment polls for a next deployment. artifactName is the
// currently installed artifact; provides is the persisted provides set and
// is nil unless the provides/depends feature is enabled. It first attempts
// the v2 POST; on a 404 it falls back to the v1 GET, logging the fallback
// at debug level. A 204 from either endpoint returns agenterrors.ErrNoUpdate.
func (c *Client) CheckForDeployment(ctx context.Context, artifactName string, provides map[string]string) (*Descriptor, error) {
	reqBody := nextDeploymentRequestV2{DeviceProvides: nextDeploymentDeviceProvides{
		DeviceType:   c.cfg.DeviceType,
		ArtifactName: artifactName,
		Provides:     provides,
	}}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding next-deployment request: %w", err)
	}

	var respBody bytes.Buffer
	status, err := c.http.Perform(ctx, c.token, pathNextV2, http.MethodPost, bytes.NewReader(body), "", collectInto(&respBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", agenterrors.ErrTransport, err)
	}

	if status == http.StatusNotFound {
		c.log.Debugf("v2 next-deployment returned 404, falling back to v1")
		respBody.Reset()
		path := fmt.Sprintf("%s?artifact_name=%s&device_type=%s", pathNextV1, artifactName, c.cfg.DeviceType)
		status, err = c.http.Perform(ctx, c.token, path, http.MethodGet, nil, "", collectInto(&respBody))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", agenterrors.ErrTransport, err)
		}
	}

	switch {
	case status == http.StatusNoContent:
		return nil, agenterrors.ErrNoUpdate
	case status == http.StatusOK:
		var resp nextDeploymentResponse
		if err := json.Unmarshal(respBody.Bytes(), &resp); err != nil {
			return nil, fmt.Errorf("%w: %w", agenterrors.ErrMalformedResponse, err)
		}
		if resp.ID == "" || resp.Artifact.ArtifactName == "" || resp.Artifact.Source.URI == "" || resp.Artifact.DeviceTypesCompatible == nil {
			return nil, fmt.Errorf("%w: missing required field in deployment descriptor", agenterrors.ErrMalformedResponse)
		}
		if err := c.versionChecker.CheckCompatibility(&version.ServerVersion{Version: resp.ServerVersion}); err != nil {
			return nil, fmt.Errorf("%w: %w", agenterrors.ErrIncompatibleProtocol, err)
		}
		return &Descriptor{
			ID:                    resp.ID,
			ArtifactName:          resp.Artifact.ArtifactName,
			URI:                   resp.Artifact.Source.URI,
			DeviceTypesCompatible: resp.Artifact.DeviceTypesCompatible,
		}, nil
	default:
		httpErr := c.httpError(status, respBody.Bytes())
		c.log.WithField("status", status).Warnf("check for deployment failed: %s", httpErr)
		return nil, httpErr
	}
}

type statusRequestBody struct {
	Status string `json:"status"`
}

// PublishStatus reports a deployment status transition for the given
// deployment id. status must already be the lowercase wire form (see
// internal/agent/deploymentstatus).
func (c *Client) PublishStatus(ctx context.Context, id, status string) error {
	body, err := json.Marshal(statusRequestBody{Status: status})
	if err != nil {
		return fmt.Errorf("encoding status request: %w", err)
	}

	var respBody bytes.Buffer
	respStatus, err := c.http.Perform(ctx, c.token, pathStatus(id), http.MethodPut, bytes.NewReader(body), "", collectInto(&respBody))
	if err != nil {
		return fmt.Errorf("%w: %w", agenterrors.ErrTransport, err)
	}
	if respStatus != http.StatusNoContent {
		httpErr := c.httpError(respStatus, respBody.Bytes())
		c.log.WithField("status", respStatus).Warnf("publish status failed: %s", httpErr)
		return httpErr
	}
	return nil
}

// InventoryAttribute is a single (name, value) inventory attribute.
type InventoryAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PublishInventory reports the device's current inventory. artifactName
// and deviceType are always included as artifact_name, rootfs-image.version
// (which mirrors artifact_name), and device_type; extra carries whatever
// additional attributes the caller supplies.
func (c *Client) PublishInventory(ctx context.Context, artifactName, deviceType string, extra []InventoryAttribute) error {
	attrs := append([]InventoryAttribute{
		{Name: "artifact_name", Value: artifactName},
		{Name: "rootfs-image.version", Value: artifactName},
		{Name: "device_type", Value: deviceType},
	}, extra...)

	body, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encoding inventory request: %w", err)
	}

	var respBody bytes.Buffer
	status, err := c.http.Perform(ctx, c.token, pathInventory, http.MethodPut, bytes.NewReader(body), "", collectInto(&respBody))
	if err != nil {
		return fmt.Errorf("%w: %w", agenterrors.ErrTransport, err)
	}
	if status != http.StatusOK {
		httpErr := c.httpError(status, respBody.Bytes())
		c.log.WithField("status", status).Warnf("publish inventory failed: %s", httpErr)
		return httpErr
	}
	return nil
}

// DownloadArtifact streams the artifact at uri, which is pre-signed and so
// carries no session token, forwarding each received chunk to cb. cb is
// typically the artifact parser's event callback.
func (c *Client) DownloadArtifact(ctx context.Context, uri string, cb httpclient.EventCallback) (int, error) {
	status, err := c.http.DownloadArtifact(ctx, uri, cb)
	if err != nil {
		return status, fmt.Errorf("%w: %w", agenterrors.ErrTransport, err)
	}
	return status, nil
}

func (c *Client) httpError(status int, body []byte) *HTTPError {
	msg := ""
	if len(body) > 0 {
		var parsed struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &parsed); err == nil {
			msg = parsed.Error
		}
	}
	if status == http.StatusUnauthorized {
		c.token = ""
	}
	return &HTTPError{StatusCode: status, ServerMsg: msg}
}

// collectInto returns an httpclient.EventCallback that accumulates every
// DataReceived chunk into buf, in order.
func collectInto(buf *bytes.Buffer) httpclient.EventCallback {
	return func(_ context.Context, info httpclient.EventInfo) {
		if info.Event == httpclient.DataReceived {
			buf.Write(info.Data)
		}
	}
}
