// Package agent wires every collaborator package into a runnable
// device agent: identity, crypto, persisted state, the deployment
// service client, the update-module registry, the deployment state
// machine, platform hooks, metrics, and the cooperative scheduler that
// drives it all.
package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edgeupdate/agent/internal/agent/client"
	"github.com/edgeupdate/agent/internal/agent/config"
	"github.com/edgeupdate/agent/internal/agent/cryptobackend"
	"github.com/edgeupdate/agent/internal/agent/deployment"
	"github.com/edgeupdate/agent/internal/agent/httpclient"
	"github.com/edgeupdate/agent/internal/agent/identity"
	"github.com/edgeupdate/agent/internal/agent/metrics"
	"github.com/edgeupdate/agent/internal/agent/module"
	"github.com/edgeupdate/agent/internal/agent/platform"
	"github.com/edgeupdate/agent/internal/agent/scheduler"
	"github.com/edgeupdate/agent/internal/agent/store"
	"github.com/edgeupdate/agent/pkg/executer"
	"github.com/edgeupdate/agent/pkg/log"
)

const (
	unitAuthenticate = "authenticate"
	unitUpdate       = "update"
	unitInventory    = "inventory"

	deviceKeyFile  = "device-key.pem"
	stagingDirName = "staging"
)

// DeviceAgent owns every long-lived collaborator and runs the agent's
// cooperative scheduler until its context is canceled.
type DeviceAgent struct {
	log        *log.PrefixLogger
	config     *config.Config
	configFile string

	machine   *deployment.Machine
	scheduler *scheduler.Scheduler
	registry  prometheus.Registerer
}

// New constructs a DeviceAgent from cfg, wiring every collaborator the
// way Run will need them. configFile is retained only for diagnostics
// (e.g. logging which file produced this configuration); reloading on
// SIGHUP is not implemented.
func New(logger *log.PrefixLogger, cfg *config.Config, configFile string) *DeviceAgent {
	if logger == nil {
		logger = log.NewPrefixLogger("agent")
	}
	return &DeviceAgent{log: logger, config: cfg, configFile: configFile}
}

// Run builds every collaborator and blocks running the scheduler until
// ctx is done. It returns an error only for a setup failure; the
// scheduler itself runs until canceled and has no failure return.
func (a *DeviceAgent) Run(ctx context.Context) error {
	if err := os.MkdirAll(a.config.DataDir, 0700); err != nil {
		return fmt.Errorf("creating data dir %s: %w", a.config.DataDir, err)
	}
	stagingDir := filepath.Join(a.config.DataDir, stagingDirName)
	if err := os.MkdirAll(stagingDir, 0700); err != nil {
		return fmt.Errorf("creating staging dir %s: %w", stagingDir, err)
	}

	st, err := store.NewFileStore(a.config.DataDir)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}

	crypto, err := cryptobackend.NewSoftware(filepath.Join(a.config.DataDir, deviceKeyFile))
	if err != nil {
		return fmt.Errorf("opening device key: %w", err)
	}
	if a.config.Recommission {
		if err := crypto.GenerateKeys(ctx); err != nil {
			return fmt.Errorf("recommissioning device key: %w", err)
		}
	} else if _, pubErr := crypto.PublicKeyPEM(ctx); pubErr != nil {
		if err := crypto.GenerateKeys(ctx); err != nil {
			return fmt.Errorf("generating device key: %w", err)
		}
	}

	idProvider, err := a.identityProvider()
	if err != nil {
		return fmt.Errorf("building identity provider: %w", err)
	}

	rpcCollector := metrics.NewRPCCollector(a.log.WithField("component", "metrics"))
	deploymentCollector := metrics.NewDeploymentCollector()
	reg := prometheus.NewRegistry()
	if err := reg.Register(rpcCollector); err != nil {
		return fmt.Errorf("registering rpc metrics: %w", err)
	}
	if err := reg.Register(deploymentCollector); err != nil {
		return fmt.Errorf("registering deployment metrics: %w", err)
	}
	a.registry = reg

	httpClient := httpclient.NewDefaultClientWithRetry(a.config.ServerURL, nil, httpclient.DefaultRetryConfig, a.log.WithField("component", "http"))
	rawClient := client.New(client.Config{
		DeviceType:  a.config.DeviceType,
		TenantToken: a.config.TenantToken,
	}, httpClient, idProvider, crypto, a.log.WithField("component", "client"))
	mgmt := client.NewInstrumentedClient(rawClient, rpcCollector.ObserveRPC)

	exec := executer.NewCommonExecuter()
	registry := module.NewRegistry(exec, stagingDir, a.log.WithField("component", "module"))
	for _, m := range a.config.Modules {
		if err := registry.Register(&module.Module{
			TypeName:         m.TypeName,
			ExecutablePath:   m.ExecutablePath,
			NeedsReboot:      m.NeedsReboot,
			SupportsRollback: m.SupportsRollback,
		}); err != nil {
			return fmt.Errorf("registering module %q: %w", m.TypeName, err)
		}
	}

	hooks := platform.NewLinux(exec, a.log.WithField("component", "platform"))

	machine, err := deployment.New(ctx, deployment.Options{
		DeviceType:             a.config.DeviceType,
		Client:                 mgmt,
		Modules:                registry,
		Store:                  st,
		Platform:               hooks,
		Crypto:                 crypto,
		ProvidesDependsEnabled: a.config.ProvidesDependsEnabled,
		FullParseArtifact:      a.config.FullParseArtifact,
		Metrics:                deploymentCollector,
		Log:                    a.log.WithField("component", "deployment"),
	})
	if err != nil {
		return fmt.Errorf("initializing deployment state machine: %w", err)
	}
	a.machine = machine

	sched := scheduler.New(hooks, a.log.WithField("component", "scheduler"))
	a.scheduler = sched

	if machine.State() == deployment.StatePostRebootVerifying {
		if err := machine.ResumeAfterReboot(ctx); err != nil {
			a.log.WithError(err).Errorf("resuming deployment after reboot")
		}
	}

	sched.Register(unitAuthenticate, a.config.AuthPollInterval.Duration(), func(ctx context.Context) error {
		if mgmt.IsAuthenticated() {
			return nil
		}
		return mgmt.Authenticate(ctx)
	})
	sched.Register(unitUpdate, a.config.UpdatePollInterval.Duration(), machine.Poll)
	if !a.config.InventoryDisabled() {
		sched.Register(unitInventory, a.config.InventoryPollInterval.Duration(), func(ctx context.Context) error {
			return mgmt.PublishInventory(ctx, machine.ArtifactName(), a.config.DeviceType, nil)
		})
	}

	a.log.Infof("agent starting: device_type=%s server=%s", a.config.DeviceType, a.config.ServerURL)
	sched.Run(ctx)
	return nil
}

// Registry exposes the agent's Prometheus registry, e.g. to serve it
// over an HTTP /metrics endpoint. It is nil until Run has started.
func (a *DeviceAgent) Registry() prometheus.Registerer {
	return a.registry
}

// identityProvider builds the configured identity.Provider, falling
// back to reading /etc/machine-id when IdentityValue is left unset.
func (a *DeviceAgent) identityProvider() (identity.Provider, error) {
	value := a.config.IdentityValue
	if value == "" {
		b, err := os.ReadFile(config.DefaultMachineIDPath)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", config.DefaultMachineIDPath, err)
		}
		value = strings.TrimSpace(string(b))
	}
	return identity.NewStatic(a.config.IdentityName, value)
}
