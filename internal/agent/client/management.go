package client

import (
	"context"
	"time"

	"github.com/edgeupdate/agent/internal/agent/httpclient"
)

// RPCMetricsCallback receives the name of a deployment-service RPC, how
// long it took, and its error (nil on success). It is invoked once per
// call regardless of outcome, matching the timing-wrapper idiom the rest
// of the agent uses for its Prometheus counters and histograms.
type RPCMetricsCallback func(operation string, durationSeconds float64, err error)

// InstrumentedClient wraps a Client, timing every RPC and reporting it
// through an RPCMetricsCallback. Deployment components that need metrics
// depend on the Management interface rather than *Client directly, so
// tests can substitute a client with no metrics wiring at all.
type InstrumentedClient struct {
	client                 *Client
	rpcMetricsCallbackFunc RPCMetricsCallback
}

// Management is the subset of deployment-service operations the
// deployment state machine and scheduler depend on.
type Management interface {
	Authenticate(ctx context.Context) error
	IsAuthenticated() bool
	ClearToken()
	CheckForDeployment(ctx context.Context, artifactName string, provides map[string]string) (*Descriptor, error)
	PublishStatus(ctx context.Context, id, status string) error
	PublishInventory(ctx context.Context, artifactName, deviceType string, extra []InventoryAttribute) error
	DownloadArtifact(ctx context.Context, uri string, cb httpclient.EventCallback) (statusCode int, err error)
}

var _ Management = (*InstrumentedClient)(nil)

// NewInstrumentedClient wraps client, reporting RPC timings through cb.
// cb may be nil, in which case InstrumentedClient behaves like an
// uninstrumented pass-through.
func NewInstrumentedClient(client *Client, cb RPCMetricsCallback) *InstrumentedClient {
	return &InstrumentedClient{client: client, rpcMetricsCallbackFunc: cb}
}

// SetRPCMetricsCallback replaces the metrics callback.
func (m *InstrumentedClient) SetRPCMetricsCallback(cb RPCMetricsCallback) {
	m.rpcMetricsCallbackFunc = cb
}

func (m *InstrumentedClient) report(operation string, start time.Time, err error) {
	if m.rpcMetricsCallbackFunc != nil {
		m.rpcMetricsCallbackFunc(operation, time.Since(start).Seconds(), err)
	}
}

func (m *InstrumentedClient) Authenticate(ctx context.Context) error {
	start := time.Now()
	err := m.client.Authenticate(ctx)
	m.report("authenticate", start, err)
	return err
}

func (m *InstrumentedClient) IsAuthenticated() bool {
	return m.client.IsAuthenticated()
}

func (m *InstrumentedClient) ClearToken() {
	m.client.ClearToken()
}

func (m *InstrumentedClient) CheckForDeployment(ctx context.Context, artifactName string, provides map[string]string) (*Descriptor, error) {
	start := time.Now()
	descriptor, err := m.client.CheckForDeployment(ctx, artifactName, provides)
	m.report("check_for_deployment", start, err)
	return descriptor, err
}

func (m *InstrumentedClient) PublishStatus(ctx context.Context, id, status string) error {
	start := time.Now()
	err := m.client.PublishStatus(ctx, id, status)
	m.report("publish_status", start, err)
	return err
}

func (m *InstrumentedClient) PublishInventory(ctx context.Context, artifactName, deviceType string, extra []InventoryAttribute) error {
	start := time.Now()
	err := m.client.PublishInventory(ctx, artifactName, deviceType, extra)
	m.report("publish_inventory", start, err)
	return err
}

func (m *InstrumentedClient) DownloadArtifact(ctx context.Context, uri string, cb httpclient.EventCallback) (int, error) {
	start := time.Now()
	status, err := m.client.DownloadArtifact(ctx, uri, cb)
	m.report("download_artifact", start, err)
	return status, err
}
