// Package metrics wires agent-internal observability events into
// Prometheus collectors: RPC latency (fed by client.RPCMetricsCallback)
// and deployment outcome/throughput (fed by deployment.Metrics).
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edgeupdate/agent/internal/agent/deploymentstatus"
	"github.com/edgeupdate/agent/pkg/log"
)

const (
	labelResult    = "result"
	suffixDuration = "_duration"
	suffixSeconds  = "_duration_seconds"
	helpRPC        = "Deployment-service RPC latency in seconds"
)

var rpcOps = []string{
	"authenticate",
	"check_for_deployment",
	"publish_status",
	"publish_inventory",
	"download_artifact",
}

// RPCCollector records per-operation RPC latency, labeled by
// result=("success"|"error"). It plugs directly into
// client.InstrumentedClient via ObserveRPC, which matches the
// client.RPCMetricsCallback signature.
type RPCCollector struct {
	log    *log.PrefixLogger
	mu     sync.RWMutex
	histos map[string]*prometheus.HistogramVec
	opsSet map[string]struct{}
}

// NewRPCCollector pre-creates a histogram per known RPC operation so every
// series exists from the first scrape, rather than appearing only after
// that operation has run once.
func NewRPCCollector(l *log.PrefixLogger) *RPCCollector {
	opsSet := make(map[string]struct{}, len(rpcOps))
	for _, op := range rpcOps {
		opsSet[op] = struct{}{}
	}

	histos := make(map[string]*prometheus.HistogramVec, len(opsSet))
	for op := range opsSet {
		name := op + suffixSeconds
		hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    helpRPC,
			Buckets: prometheus.DefBuckets,
		}, []string{labelResult})

		_ = hv.WithLabelValues("success")
		_ = hv.WithLabelValues("error")

		histos[name] = hv
	}

	return &RPCCollector{log: l, histos: histos, opsSet: opsSet}
}

// ObserveRPC matches client.RPCMetricsCallback's signature. Wire it in with
// client.NewInstrumentedClient(raw, collector.ObserveRPC) or
// (*client.InstrumentedClient).SetRPCMetricsCallback.
func (c *RPCCollector) ObserveRPC(operation string, durationSeconds float64, err error) {
	op := canonicalizeOp(operation)
	if op == "" {
		return
	}

	c.mu.RLock()
	_, allowed := c.opsSet[op]
	hv := c.histos[op+suffixSeconds]
	c.mu.RUnlock()

	if !allowed || hv == nil {
		c.log.WithField("operation", operation).Errorf("unknown RPC metric operation")
		return
	}

	result := "success"
	if err != nil {
		result = "error"
	}
	hv.WithLabelValues(result).Observe(durationSeconds)
}

func (c *RPCCollector) Describe(ch chan<- *prometheus.Desc) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, hv := range c.histos {
		hv.Describe(ch)
	}
}

func (c *RPCCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, hv := range c.histos {
		hv.Collect(ch)
	}
}

// canonicalizeOp lowercases, trims, and strips optional suffixes, returning
// the canonical operation id.
func canonicalizeOp(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return ""
	}
	switch {
	case strings.HasSuffix(s, suffixSeconds):
		return strings.TrimSuffix(s, suffixSeconds)
	case strings.HasSuffix(s, suffixDuration):
		return strings.TrimSuffix(s, suffixDuration)
	default:
		return s
	}
}

// DeploymentCollector implements deployment.Metrics: a counter per terminal
// outcome, plus a counter and histogram for artifact download throughput.
type DeploymentCollector struct {
	outcomes        *prometheus.CounterVec
	downloadBytes   prometheus.Counter
	downloadSeconds prometheus.Histogram
}

// NewDeploymentCollector constructs a DeploymentCollector. The caller
// registers it with a prometheus.Registerer and passes it as
// deployment.Options.Metrics.
func NewDeploymentCollector() *DeploymentCollector {
	return &DeploymentCollector{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deployment_outcomes_total",
			Help: "Count of finished deployments by terminal status.",
		}, []string{"status"}),
		downloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "artifact_download_bytes_total",
			Help: "Total bytes received across all artifact downloads.",
		}),
		downloadSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "artifact_download_duration_seconds",
			Help:    "Full artifact download-and-parse duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// DeploymentOutcome implements deployment.Metrics.
func (c *DeploymentCollector) DeploymentOutcome(status deploymentstatus.Status) {
	c.outcomes.WithLabelValues(status.String()).Inc()
}

// ArtifactDownload implements deployment.Metrics.
func (c *DeploymentCollector) ArtifactDownload(bytes int64, duration time.Duration) {
	c.downloadBytes.Add(float64(bytes))
	c.downloadSeconds.Observe(duration.Seconds())
}

func (c *DeploymentCollector) Describe(ch chan<- *prometheus.Desc) {
	c.outcomes.Describe(ch)
	c.downloadBytes.Describe(ch)
	c.downloadSeconds.Describe(ch)
}

func (c *DeploymentCollector) Collect(ch chan<- prometheus.Metric) {
	c.outcomes.Collect(ch)
	c.downloadBytes.Collect(ch)
	c.downloadSeconds.Collect(ch)
}
