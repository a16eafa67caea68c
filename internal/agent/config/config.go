// Package config defines the agent's on-disk configuration: the
// deployment service endpoint, device type, and the poll intervals for
// each of the agent's periodic work units.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/edgeupdate/agent/internal/util"
)

const (
	// DefaultAuthPollInterval is how often the agent attempts to
	// (re-)authenticate when it does not hold a valid session token.
	DefaultAuthPollInterval = util.Duration(5 * time.Minute)
	// DefaultUpdatePollInterval is how often the agent polls the
	// deployment service for a new deployment.
	DefaultUpdatePollInterval = util.Duration(30 * time.Minute)
	// MinPollInterval is the smallest positive poll interval accepted;
	// anything smaller is rejected rather than silently hammering the
	// deployment service.
	MinPollInterval = util.Duration(1 * time.Second)
	// DefaultConfigDir is the default directory holding the agent's
	// configuration file and drop-in overrides.
	DefaultConfigDir = "/etc/edgeupdate"
	// DefaultConfigFile is the default path to the agent's configuration file.
	DefaultConfigFile = DefaultConfigDir + "/config.yaml"
	// DefaultDataDir is the default directory holding the agent's
	// persisted state (keys, deployment data, artifact cache).
	DefaultDataDir = "/var/lib/edgeupdate"
	// DefaultIdentityName is the attribute name used when IdentityName
	// is left unset.
	DefaultIdentityName = "machine-id"
	// DefaultMachineIDPath is read for IdentityValue when IdentityValue
	// is left unset.
	DefaultMachineIDPath = "/etc/machine-id"
)

// Config is the agent's static configuration, loaded once at startup
// from a YAML file on disk, plus any *.yaml/*.yml drop-ins under a
// conf.d subdirectory next to it. Poll intervals are parsed with
// util.ExtendedParseDuration, so "1h", "30m", "1d" are all valid. A
// negative interval disables the corresponding periodic work unit; it
// can still be triggered explicitly, but the scheduler never fires it
// on a timer.
type Config struct {
	// ConfigDir is the directory the configuration file and its
	// conf.d drop-ins were loaded from.
	ConfigDir string `json:"-"`
	// DataDir is the directory where persisted agent state lives.
	DataDir string `json:"-"`

	// DeviceType identifies the hardware/platform variant this agent
	// runs on. Artifacts whose deployment descriptor does not list this
	// device type as compatible are rejected before any data is written.
	DeviceType string `json:"deviceType,omitempty"`

	// ServerURL is the base URL of the deployment service, e.g.
	// "https://deployments.example.com".
	ServerURL string `json:"serverURL,omitempty"`

	// TenantToken is an optional token presented during authentication
	// for multi-tenant deployment services.
	TenantToken string `json:"tenantToken,omitempty"`

	// IdentityName is the attribute name the deployment service uses to
	// address this device (e.g. "machine-id", "serial-number").
	IdentityName string `json:"identityName,omitempty"`

	// IdentityValue is the device-specific identity string. If empty,
	// the agent falls back to reading /etc/machine-id.
	IdentityValue string `json:"identityValue,omitempty"`

	// AuthPollInterval controls how often the agent attempts to
	// (re-)authenticate when it does not hold a valid session token.
	AuthPollInterval util.Duration `json:"authPollInterval,omitempty"`

	// UpdatePollInterval controls how often the agent polls the
	// deployment service for a new deployment.
	UpdatePollInterval util.Duration `json:"updatePollInterval,omitempty"`

	// InventoryPollInterval controls how often the agent publishes its
	// inventory attributes (artifact_name, rootfs-image.version,
	// device_type).
	InventoryPollInterval util.Duration `json:"inventoryPollInterval,omitempty"`

	// InventoryEnabled gates the optional inventory reporting feature at
	// runtime. Independent of ProvidesDependsEnabled: a device can
	// publish its inventory to the deployment service without ever
	// checking an incoming artifact's depends, or vice versa.
	InventoryEnabled bool `json:"inventoryEnabled,omitempty"`

	// ProvidesDependsEnabled gates the optional artifact
	// depends-against-persisted-provides check at runtime, independent
	// of InventoryEnabled.
	ProvidesDependsEnabled bool `json:"providesDependsEnabled,omitempty"`

	// FullParseArtifact makes the artifact parser also keep the raw
	// per-payload headers/* files from header.tar, beyond the minimum
	// header-info it always parses.
	FullParseArtifact bool `json:"fullParseArtifact,omitempty"`

	// Recommission, when true, instructs the agent to discard any
	// persisted identity and re-enroll with the deployment service on
	// next start, instead of resuming with its existing device key.
	Recommission bool `json:"recommission,omitempty"`

	// LogLevel is the level of logging: "panic", "fatal", "error",
	// "warn"/"warning", "info", "debug", or "trace"; the agent refuses
	// to start with any other value.
	LogLevel string `json:"logLevel,omitempty"`

	// Modules declares the update modules to register at startup. Unlike
	// Mender's modules.d directory convention, NeedsReboot and
	// SupportsRollback aren't discoverable from an executable alone, so
	// they're declared here rather than inferred by scanning a directory.
	Modules []ModuleConfig `json:"modules,omitempty"`
}

// ModuleConfig declares one update module to register with
// module.Registry at startup.
type ModuleConfig struct {
	// TypeName is the payload type this module handles, e.g. "rootfs-image".
	TypeName string `json:"typeName"`
	// ExecutablePath is the path to the module's executable.
	ExecutablePath string `json:"executablePath"`
	// NeedsReboot marks this module's ArtifactInstall as requiring a
	// reboot before ArtifactCommit can run.
	NeedsReboot bool `json:"needsReboot,omitempty"`
	// SupportsRollback marks this module as able to undo a failed
	// ArtifactCommit via ArtifactRollback.
	SupportsRollback bool `json:"supportsRollback,omitempty"`
}

// NewDefault returns a Config with all defaults filled in and no
// device-specific fields set.
func NewDefault() *Config {
	return &Config{
		ConfigDir:          DefaultConfigDir,
		DataDir:            DefaultDataDir,
		AuthPollInterval:   DefaultAuthPollInterval,
		UpdatePollInterval: DefaultUpdatePollInterval,
		LogLevel:           "info",
		IdentityName:       DefaultIdentityName,
	}
}

// ParseConfigFile reads cfgFile and unmarshals it onto cfg, overwriting
// only the fields present in the file.
func (cfg *Config) ParseConfigFile(cfgFile string) error {
	contents, err := os.ReadFile(cfgFile)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return fmt.Errorf("unmarshalling config file: %w", err)
	}
	return nil
}

var yamlFileRE = regexp.MustCompile(`^.*\.ya?ml$`)

// LoadWithOverrides loads configFile, then applies any *.yaml/*.yml
// drop-ins found in a conf.d subdirectory next to it, in lexical
// filename order (so "02-x.yaml" overrides "01-x.yaml").
func (cfg *Config) LoadWithOverrides(configFile string) error {
	if err := cfg.ParseConfigFile(configFile); err != nil {
		return err
	}

	confSubdir := filepath.Join(filepath.Dir(configFile), "conf.d")
	entries, err := os.ReadDir(confSubdir)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg.complete()
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !yamlFileRE.MatchString(entry.Name()) {
			continue
		}
		overridePath := filepath.Join(confSubdir, entry.Name())
		contents, err := os.ReadFile(overridePath)
		if err != nil {
			return fmt.Errorf("reading override config %s: %w", overridePath, err)
		}
		override := &Config{}
		if err := yaml.Unmarshal(contents, override); err != nil {
			return fmt.Errorf("unmarshalling override config %s: %w", overridePath, err)
		}
		mergeConfigs(cfg, override)
	}

	if err := cfg.complete(); err != nil {
		return err
	}
	return cfg.Validate()
}

// complete fills in any zero-valued poll intervals with defaults.
func (cfg *Config) complete() error {
	if cfg.AuthPollInterval == 0 {
		cfg.AuthPollInterval = DefaultAuthPollInterval
	}
	if cfg.UpdatePollInterval == 0 {
		cfg.UpdatePollInterval = DefaultUpdatePollInterval
	}
	if cfg.IdentityName == "" {
		cfg.IdentityName = DefaultIdentityName
	}
	return nil
}

func mergeConfigs(base, override *Config) {
	overrideIfNotEmpty(&base.DeviceType, override.DeviceType)
	overrideIfNotEmpty(&base.ServerURL, override.ServerURL)
	overrideIfNotEmpty(&base.TenantToken, override.TenantToken)
	overrideIfNotEmpty(&base.IdentityName, override.IdentityName)
	overrideIfNotEmpty(&base.IdentityValue, override.IdentityValue)
	overrideIfNotEmpty(&base.AuthPollInterval, override.AuthPollInterval)
	overrideIfNotEmpty(&base.UpdatePollInterval, override.UpdatePollInterval)
	overrideIfNotEmpty(&base.InventoryPollInterval, override.InventoryPollInterval)
	overrideIfNotEmpty(&base.LogLevel, override.LogLevel)
	if override.InventoryEnabled {
		base.InventoryEnabled = true
	}
	if override.ProvidesDependsEnabled {
		base.ProvidesDependsEnabled = true
	}
	if override.FullParseArtifact {
		base.FullParseArtifact = true
	}
	if override.Recommission {
		base.Recommission = true
	}
	if len(override.Modules) > 0 {
		base.Modules = override.Modules
	}
}

// overrideIfNotEmpty replaces dst with src only if src is not the zero value.
func overrideIfNotEmpty[T comparable](dst *T, src T) {
	var empty T
	if src != empty {
		*dst = src
	}
}

// Validate checks that the configuration is internally consistent and
// can be used to start the agent.
func (cfg *Config) Validate() error {
	if cfg.DeviceType == "" {
		return fmt.Errorf("deviceType is required")
	}
	if cfg.ServerURL == "" {
		return fmt.Errorf("serverURL is required")
	}
	u, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return fmt.Errorf("serverURL %q: %w", cfg.ServerURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("serverURL %q: unsupported scheme %q", cfg.ServerURL, u.Scheme)
	}
	if cfg.AuthPollInterval > 0 && cfg.AuthPollInterval < MinPollInterval {
		return fmt.Errorf("authPollInterval must be at least %s, have %s", MinPollInterval, cfg.AuthPollInterval)
	}
	if cfg.UpdatePollInterval > 0 && cfg.UpdatePollInterval < MinPollInterval {
		return fmt.Errorf("updatePollInterval must be at least %s, have %s", MinPollInterval, cfg.UpdatePollInterval)
	}
	seen := make(map[string]bool, len(cfg.Modules))
	for _, m := range cfg.Modules {
		if m.TypeName == "" {
			return fmt.Errorf("modules: typeName is required")
		}
		if m.ExecutablePath == "" {
			return fmt.Errorf("modules: module %q has no executablePath", m.TypeName)
		}
		if seen[m.TypeName] {
			return fmt.Errorf("modules: duplicate typeName %q", m.TypeName)
		}
		seen[m.TypeName] = true
	}
	return nil
}

// InventoryDisabled reports whether inventory publication should never
// be scheduled, either because the feature is off or because the
// interval is non-positive.
func (cfg *Config) InventoryDisabled() bool {
	return !cfg.InventoryEnabled || cfg.InventoryPollInterval <= 0
}

// Load reads configFile and any conf.d drop-ins into a fresh Config
// seeded with defaults.
func Load(configFile string) (*Config, error) {
	cfg := NewDefault()
	if err := cfg.LoadWithOverrides(configFile); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) String() string {
	contents, err := json.Marshal(cfg)
	if err != nil {
		return "<error>"
	}
	return string(contents)
}

// StringSanitized is like String but redacts fields that should never
// land in a log line: the tenant token and the device's identity value.
func (cfg *Config) StringSanitized() string {
	sanitized := *cfg
	if sanitized.TenantToken != "" {
		sanitized.TenantToken = "<redacted>"
	}
	if sanitized.IdentityValue != "" {
		sanitized.IdentityValue = "<redacted>"
	}
	return sanitized.String()
}
