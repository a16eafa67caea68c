package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeupdate/agent/internal/agent/deploymentstatus"
	"github.com/edgeupdate/agent/pkg/log"
)

func TestRPCCollectorObserveKnownOperation(t *testing.T) {
	c := NewRPCCollector(log.NewPrefixLogger("metrics"))

	c.ObserveRPC("check_for_deployment", 0.25, nil)
	c.ObserveRPC("check_for_deployment", 1.0, errBoom)

	sampleCount := func(result string) float64 {
		m := &dto.Metric{}
		require.NoError(t, c.histos["check_for_deployment_duration_seconds"].WithLabelValues(result).(prometheus.Metric).Write(m))
		return float64(m.GetHistogram().GetSampleCount())
	}
	assert.Equal(t, float64(2), sampleCount("success")+sampleCount("error"))
}

func TestRPCCollectorIgnoresUnknownOperation(t *testing.T) {
	c := NewRPCCollector(log.NewPrefixLogger("metrics"))
	c.ObserveRPC("some_unregistered_op", 0.1, nil)
	assert.Len(t, c.histos, len(rpcOps))
}

func TestCanonicalizeOp(t *testing.T) {
	assert.Equal(t, "publish_status", canonicalizeOp("publish_status_duration_seconds"))
	assert.Equal(t, "publish_status", canonicalizeOp("publish_status_duration"))
	assert.Equal(t, "publish_status", canonicalizeOp("  Publish_Status  "))
	assert.Equal(t, "", canonicalizeOp(""))
}

func TestDeploymentCollectorRecordsOutcomeAndDownload(t *testing.T) {
	c := NewDeploymentCollector()

	c.DeploymentOutcome(deploymentstatus.Success)
	c.DeploymentOutcome(deploymentstatus.Failure)
	c.ArtifactDownload(1024, 2*time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.outcomes.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.outcomes.WithLabelValues("failure")))
	assert.Equal(t, float64(1024), testutil.ToFloat64(c.downloadBytes))
}

var errBoom = errors.New("boom")
