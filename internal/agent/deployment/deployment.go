// Package deployment implements the deployment state machine (§4.5): it
// orchestrates the full update flow — authenticate, poll, download,
// install, reboot, verify, report — and persists enough state across a
// reboot to resume a deployment already in flight when the agent process
// restarts.
package deployment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edgeupdate/agent/internal/agent/agenterrors"
	"github.com/edgeupdate/agent/internal/agent/artifact"
	"github.com/edgeupdate/agent/internal/agent/client"
	"github.com/edgeupdate/agent/internal/agent/cryptobackend"
	"github.com/edgeupdate/agent/internal/agent/deploymentstatus"
	"github.com/edgeupdate/agent/internal/agent/httpclient"
	"github.com/edgeupdate/agent/internal/agent/kv"
	"github.com/edgeupdate/agent/internal/agent/module"
	"github.com/edgeupdate/agent/internal/agent/platform"
	"github.com/edgeupdate/agent/internal/agent/store"
	"github.com/edgeupdate/agent/pkg/log"
)

// Metrics receives deployment outcome and artifact-download
// observability events. Nil disables metrics entirely; the agent wires
// internal/agent/metrics.DeploymentCollector as an implementation.
type Metrics interface {
	DeploymentOutcome(status deploymentstatus.Status)
	ArtifactDownload(bytes int64, duration time.Duration)
}

// State is one node of the deployment state machine.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StatePolling
	StateDownloading
	StateInstalling
	StateRebootRequested
	StatePostRebootVerifying
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StatePolling:
		return "POLLING"
	case StateDownloading:
		return "DOWNLOADING"
	case StateInstalling:
		return "INSTALLING"
	case StateRebootRequested:
		return "REBOOT_REQUESTED"
	case StatePostRebootVerifying:
		return "POST_REBOOT_VERIFYING"
	case StateCommitted:
		return "COMMITTED"
	default:
		return "UNKNOWN"
	}
}

// persistedState is the deployment record written to the store across
// DOWNLOADING, INSTALLING, and REBOOT_REQUESTED, and read back at the next
// boot to resume in POST_REBOOT_VERIFYING.
type persistedState struct {
	ID           string   `json:"id"`
	ArtifactName string   `json:"artifact_name"`
	LastStatus   string   `json:"last_status"`
	PayloadTypes []string `json:"payload_types"`
}

// Options configures a Machine.
type Options struct {
	DeviceType             string
	Client                 client.Management
	Modules                *module.Registry
	Store                  store.Store
	Platform               platform.Hooks
	Crypto                 cryptobackend.Backend
	ProvidesDependsEnabled bool
	FullParseArtifact      bool
	MaxArtifactEntrySize   int64
	Metrics                Metrics
	Log                    *log.PrefixLogger
}

// Machine drives one device's deployment lifecycle. It is not safe for
// concurrent use: the agent's cooperative scheduler (C6) guarantees at
// most one work unit, and therefore at most one Machine method, runs at a
// time.
type Machine struct {
	opts Options
	log  *log.PrefixLogger

	state        State
	artifactName string
	current      *persistedState
	corrID       string
}

// logger returns the machine's logger tagged with the current poll
// cycle's correlation id, so every log line from a single Poll or
// ResumeAfterReboot call can be grepped together.
func (m *Machine) logger() *log.PrefixLogger {
	if m.corrID == "" {
		return m.log
	}
	return m.log.WithField("correlation_id", m.corrID)
}

// New constructs a Machine and loads any persisted artifact name and
// in-flight deployment record. If a deployment record is found, the
// Machine starts in StatePostRebootVerifying so the caller knows to call
// ResumeAfterReboot before anything else.
func New(ctx context.Context, opts Options) (*Machine, error) {
	logger := opts.Log
	if logger == nil {
		logger = log.NewPrefixLogger("deployment")
	}
	m := &Machine{opts: opts, log: logger, state: StateUnauthenticated}

	if name, err := opts.Store.Get(ctx, store.KeyArtifactName); err == nil {
		m.artifactName = string(name)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading artifact name: %w", err)
	}

	raw, err := opts.Store.Get(ctx, store.KeyDeploymentData)
	switch {
	case err == nil:
		var p persistedState
		if jsonErr := json.Unmarshal(raw, &p); jsonErr != nil {
			return nil, fmt.Errorf("decoding persisted deployment data: %w", jsonErr)
		}
		m.current = &p
		m.state = StatePostRebootVerifying
	case errors.Is(err, store.ErrNotFound):
		// No in-flight deployment; nothing to resume.
	default:
		return nil, fmt.Errorf("loading deployment data: %w", err)
	}

	return m, nil
}

// State returns the machine's current state.
func (m *Machine) State() State { return m.state }

// ArtifactName returns the currently installed artifact name, as last
// persisted.
func (m *Machine) ArtifactName() string { return m.artifactName }

// Authenticate runs the UNAUTHENTICATED → AUTHENTICATED transition.
func (m *Machine) Authenticate(ctx context.Context) error {
	if err := m.opts.Client.Authenticate(ctx); err != nil {
		m.opts.Platform.AuthenticationFailure(ctx, err)
		return err
	}
	m.state = StateAuthenticated
	m.opts.Platform.AuthenticationSuccess(ctx)
	return nil
}

// withReauth runs fn once. If fn fails with a 401 (an *client.HTTPError
// with StatusCode 401), the token is cleared, a fresh authentication is
// attempted, and fn is retried exactly once, per §4.5's re-authentication
// rule.
func (m *Machine) withReauth(ctx context.Context, fn func() error) error {
	err := fn()
	if !isUnauthorized(err) {
		return err
	}

	m.opts.Client.ClearToken()
	if authErr := m.Authenticate(ctx); authErr != nil {
		return authErr
	}
	return fn()
}

func isUnauthorized(err error) bool {
	var httpErr *client.HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == 401
}

// ResumeAfterReboot runs POST_REBOOT_VERIFYING: it commits every payload
// type that was part of the in-flight deployment, rolling back on
// failure if any payload's module supports it. It must be called before
// Poll when New reported StatePostRebootVerifying.
//
// If the persisted record's last published status is already terminal,
// a prior run reached finishDeployment and published it, then crashed
// before the record was cleared. Resuming re-commits nothing and
// re-publishes nothing in that case — it only finishes clearing the
// record, so no status is ever reported twice for the same deployment id.
func (m *Machine) ResumeAfterReboot(ctx context.Context) error {
	if m.state != StatePostRebootVerifying || m.current == nil {
		return nil
	}
	m.corrID = uuid.NewString()

	if status, ok := deploymentstatus.Parse(m.current.LastStatus); ok && status.Terminal() {
		m.logger().Debugf("deployment already reached terminal status %s before reboot, finishing cleanup only", status)
		next := StateAuthenticated
		if status == deploymentstatus.Success {
			m.artifactName = m.current.ArtifactName
			if err := m.opts.Store.Set(ctx, store.KeyArtifactName, []byte(m.artifactName)); err != nil {
				return fmt.Errorf("persisting artifact name: %w", err)
			}
			next = StateCommitted
		}
		m.state = next
		return m.clearCurrent(ctx)
	}

	var commitErr error
	for _, typeName := range m.current.PayloadTypes {
		if err := m.opts.Modules.ArtifactCommit(ctx, typeName); err != nil {
			commitErr = err
			break
		}
	}

	if commitErr == nil {
		m.artifactName = m.current.ArtifactName
		if err := m.opts.Store.Set(ctx, store.KeyArtifactName, []byte(m.artifactName)); err != nil {
			return fmt.Errorf("persisting artifact name: %w", err)
		}
		return m.finishDeployment(ctx, deploymentstatus.Success, StateCommitted)
	}

	m.logger().WithError(commitErr).Warnf("artifact commit failed, attempting rollback")
	for _, typeName := range m.current.PayloadTypes {
		mod, ok := m.opts.Modules.Get(typeName)
		if ok && mod.SupportsRollback {
			if err := m.opts.Modules.ArtifactRollback(ctx, typeName); err != nil {
				m.logger().WithError(err).Errorf("rollback failed for %s", typeName)
			}
		}
	}
	return m.finishDeployment(ctx, deploymentstatus.Failure, StateAuthenticated)
}

// Poll runs the update work unit: ensure authenticated, check for a
// deployment, and if one is found, drive it through DOWNLOADING and
// INSTALLING (and into REBOOT_REQUESTED, if a module requires it) before
// returning. It returns agenterrors.ErrNoUpdate when there is nothing to
// do, which the scheduler treats as a non-error outcome.
func (m *Machine) Poll(ctx context.Context) error {
	m.corrID = uuid.NewString()
	if !m.opts.Client.IsAuthenticated() {
		if err := m.Authenticate(ctx); err != nil {
			return err
		}
	}
	m.state = StatePolling

	var provides map[string]string
	if m.opts.ProvidesDependsEnabled {
		raw, err := m.opts.Store.Get(ctx, store.KeyProvides)
		switch {
		case err == nil:
			list, decErr := kv.Decode(string(raw))
			if decErr != nil {
				return fmt.Errorf("decoding persisted provides: %w", decErr)
			}
			provides = make(map[string]string, list.Len())
			for _, p := range list.Pairs() {
				provides[p.Key] = p.Value
			}
		case errors.Is(err, store.ErrNotFound):
			// No provides persisted yet.
		default:
			return fmt.Errorf("loading persisted provides: %w", err)
		}
	}

	var descriptor *client.Descriptor
	err := m.withReauth(ctx, func() error {
		d, cfdErr := m.opts.Client.CheckForDeployment(ctx, m.artifactName, provides)
		descriptor = d
		return cfdErr
	})
	if errors.Is(err, agenterrors.ErrNoUpdate) {
		m.state = StateAuthenticated
		return err
	}
	if err != nil {
		return m.fail(ctx, "", err)
	}

	return m.runDeployment(ctx, descriptor, provides)
}

func (m *Machine) runDeployment(ctx context.Context, d *client.Descriptor, provides map[string]string) error {
	if d.ArtifactName == m.artifactName {
		if err := m.publishStatus(ctx, d.ID, deploymentstatus.AlreadyInstalled); err != nil {
			m.logger().WithError(err).Warnf("publishing already-installed status")
		}
		if m.opts.Metrics != nil {
			m.opts.Metrics.DeploymentOutcome(deploymentstatus.AlreadyInstalled)
		}
		m.state = StateAuthenticated
		return nil
	}

	m.state = StateDownloading
	m.current = &persistedState{ID: d.ID, ArtifactName: d.ArtifactName, LastStatus: deploymentstatus.Downloading.String()}
	if err := m.persistCurrent(ctx); err != nil {
		return err
	}
	if err := m.publishStatus(ctx, d.ID, deploymentstatus.Downloading); err != nil {
		return m.fail(ctx, d.ID, err)
	}

	parserOpts := artifact.Options{
		DeviceType:             m.opts.DeviceType,
		DeviceTypesCompatible:  d.DeviceTypesCompatible,
		MaxEntrySize:           m.opts.MaxArtifactEntrySize,
		Crypto:                 m.opts.Crypto,
		Modules:                m.opts.Modules,
		ProvidesDependsEnabled: m.opts.ProvidesDependsEnabled,
		PersistedProvides:      provides,
		FullParseArtifact:      m.opts.FullParseArtifact,
	}
	parser := artifact.NewParser(ctx, parserOpts)

	start := time.Now()
	var bytesReceived int64
	parserCB := parser.EventCallback()
	cb := func(ctx context.Context, info httpclient.EventInfo) {
		bytesReceived += int64(len(info.Data))
		parserCB(ctx, info)
	}
	_, downloadErr := m.opts.Client.DownloadArtifact(ctx, d.URI, cb)
	parseErr := parser.Wait(ctx)
	if m.opts.Metrics != nil {
		m.opts.Metrics.ArtifactDownload(bytesReceived, time.Since(start))
	}
	if downloadErr != nil {
		return m.fail(ctx, d.ID, downloadErr)
	}
	if parseErr != nil {
		return m.fail(ctx, d.ID, parseErr)
	}

	header := parser.Header()
	if header != nil {
		m.current.PayloadTypes = header.Payloads
	}
	if err := m.persistCurrent(ctx); err != nil {
		return err
	}

	return m.install(ctx, d.ID)
}

func (m *Machine) install(ctx context.Context, deploymentID string) error {
	m.state = StateInstalling
	if err := m.publishStatus(ctx, deploymentID, deploymentstatus.Installing); err != nil {
		return m.fail(ctx, deploymentID, err)
	}

	needsReboot := false
	for _, typeName := range m.current.PayloadTypes {
		if err := m.opts.Modules.ArtifactInstall(ctx, typeName); err != nil {
			return m.fail(ctx, deploymentID, err)
		}
		if mod, ok := m.opts.Modules.Get(typeName); ok && mod.NeedsReboot {
			needsReboot = true
		}
	}

	if !needsReboot {
		for _, typeName := range m.current.PayloadTypes {
			if err := m.opts.Modules.ArtifactCommit(ctx, typeName); err != nil {
				return m.fail(ctx, deploymentID, err)
			}
		}
		m.artifactName = m.current.ArtifactName
		if err := m.opts.Store.Set(ctx, store.KeyArtifactName, []byte(m.artifactName)); err != nil {
			return fmt.Errorf("persisting artifact name: %w", err)
		}
		return m.finishDeployment(ctx, deploymentstatus.Success, StateCommitted)
	}

	m.state = StateRebootRequested
	if err := m.publishStatus(ctx, deploymentID, deploymentstatus.Rebooting); err != nil {
		return m.fail(ctx, deploymentID, err)
	}
	if err := m.persistCurrent(ctx); err != nil {
		return err
	}
	if err := m.opts.Platform.Restart(ctx); err != nil {
		return m.fail(ctx, deploymentID, fmt.Errorf("%w: requesting restart: %w", agenterrors.ErrFailure, err))
	}
	return nil
}

func (m *Machine) fail(ctx context.Context, deploymentID string, cause error) error {
	m.logger().WithError(cause).Errorf("deployment failed")
	if m.current != nil {
		for _, typeName := range m.current.PayloadTypes {
			if err := m.opts.Modules.ArtifactFailure(ctx, typeName); err != nil {
				m.logger().WithError(err).Warnf("artifact_failure callback failed for %s", typeName)
			}
		}
	}
	id := deploymentID
	if id == "" && m.current != nil {
		id = m.current.ID
	}
	if id != "" {
		if err := m.publishStatus(ctx, id, deploymentstatus.Failure); err != nil {
			m.logger().WithError(err).Warnf("publishing failure status")
		}
		if err := m.persistCurrent(ctx); err != nil {
			m.logger().WithError(err).Warnf("persisting failure status before clearing")
		}
	}
	if m.opts.Metrics != nil {
		m.opts.Metrics.DeploymentOutcome(deploymentstatus.Failure)
	}
	m.state = StateAuthenticated
	if err := m.clearCurrent(ctx); err != nil {
		return err
	}
	return cause
}

// finishDeployment publishes a terminal status and clears the in-flight
// deployment record. If current already recorded this exact status as
// its last published one, publishing is skipped: that can only happen
// if the agent crashed after a prior publish but before the record was
// cleared, and re-publishing would report the same status twice for the
// same deployment id (§8's no-double-report invariant).
func (m *Machine) finishDeployment(ctx context.Context, status deploymentstatus.Status, next State) error {
	id := ""
	alreadyPublished := false
	if m.current != nil {
		id = m.current.ID
		alreadyPublished = m.current.LastStatus == status.String()
	}
	if alreadyPublished {
		m.logger().Debugf("status %s already published for deployment %s, skipping re-publish", status, id)
	} else {
		if err := m.publishStatus(ctx, id, status); err != nil {
			m.logger().WithError(err).Warnf("publishing terminal status %s", status)
		}
		if err := m.persistCurrent(ctx); err != nil {
			m.logger().WithError(err).Warnf("persisting terminal status before clearing")
		}
	}
	if m.opts.Metrics != nil {
		m.opts.Metrics.DeploymentOutcome(status)
	}
	m.state = next
	return m.clearCurrent(ctx)
}

func (m *Machine) publishStatus(ctx context.Context, deploymentID string, status deploymentstatus.Status) error {
	statusStr := status.String()
	err := m.withReauth(ctx, func() error {
		return m.opts.Client.PublishStatus(ctx, deploymentID, statusStr)
	})
	if hookErr := m.opts.Platform.DeploymentStatus(ctx, deploymentID, statusStr); hookErr != nil {
		m.logger().WithError(hookErr).Warnf("platform deployment_status hook failed")
	}
	if m.current != nil {
		m.current.LastStatus = statusStr
	}
	return err
}

func (m *Machine) persistCurrent(ctx context.Context) error {
	if m.current == nil {
		return nil
	}
	raw, err := json.Marshal(m.current)
	if err != nil {
		return fmt.Errorf("encoding deployment data: %w", err)
	}
	if err := m.opts.Store.Set(ctx, store.KeyDeploymentData, raw); err != nil {
		return fmt.Errorf("persisting deployment data: %w", err)
	}
	return nil
}

func (m *Machine) clearCurrent(ctx context.Context) error {
	m.current = nil
	if err := m.opts.Store.Delete(ctx, store.KeyDeploymentData); err != nil {
		return fmt.Errorf("clearing deployment data: %w", err)
	}
	return nil
}
