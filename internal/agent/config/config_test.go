package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgeupdate/agent/internal/util"
)

var yamlConfig = `deviceType: raspberrypi4-64
serverURL: https://deployments.example.com
authPollInterval: 1m
updatePollInterval: 10m`

func TestParseConfigFile(t *testing.T) {
	require := require.New(t)

	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(os.WriteFile(filePath, []byte(yamlConfig), 0600))

	cfg := NewDefault()
	require.NoError(cfg.ParseConfigFile(filePath))

	require.Equal("raspberrypi4-64", cfg.DeviceType)
	require.Equal("https://deployments.example.com", cfg.ServerURL)
	require.Equal("1m0s", cfg.AuthPollInterval.String())
	require.Equal("10m0s", cfg.UpdatePollInterval.String())

	// defaults not overwritten by absence from the file
	require.Equal(DefaultConfigDir, cfg.ConfigDir)
	require.Equal(DefaultDataDir, cfg.DataDir)
	require.Equal("info", cfg.LogLevel)
}

func TestParseConfigFileNoFile(t *testing.T) {
	cfg := NewDefault()
	err := cfg.ParseConfigFile(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err)
}

func TestValidateRequiresDeviceTypeAndServerURL(t *testing.T) {
	cfg := NewDefault()
	require.Error(t, cfg.Validate())

	cfg.DeviceType = "dev-A"
	require.Error(t, cfg.Validate())

	cfg.ServerURL = "not a url with spaces and no scheme"
	require.Error(t, cfg.Validate())

	cfg.ServerURL = "https://deployments.example.com"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsTooSmallPollIntervals(t *testing.T) {
	cfg := NewDefault()
	cfg.DeviceType = "dev-A"
	cfg.ServerURL = "https://deployments.example.com"
	cfg.AuthPollInterval = util.Duration(1)
	require.Error(t, cfg.Validate())
}

func TestLoadWithOverridesAppliesConfD(t *testing.T) {
	require := require.New(t)
	tmpDir := t.TempDir()

	configFile := filepath.Join(tmpDir, "config.yaml")
	require.NoError(os.WriteFile(configFile, []byte(yamlConfig), 0600))

	confD := filepath.Join(tmpDir, "conf.d")
	require.NoError(os.MkdirAll(confD, 0755))
	require.NoError(os.WriteFile(filepath.Join(confD, "01-inventory.yaml"), []byte("inventoryEnabled: true\ninventoryPollInterval: 1h\n"), 0600))
	require.NoError(os.WriteFile(filepath.Join(confD, "02-override.yaml"), []byte("updatePollInterval: 5m\n"), 0600))

	cfg := NewDefault()
	require.NoError(cfg.LoadWithOverrides(configFile))

	require.True(cfg.InventoryEnabled)
	require.Equal("1h0m0s", cfg.InventoryPollInterval.String())
	require.Equal("5m0s", cfg.UpdatePollInterval.String())
	require.False(cfg.InventoryDisabled())
}

func TestInventoryDisabledByDefault(t *testing.T) {
	cfg := NewDefault()
	require.True(t, cfg.InventoryDisabled())
}

func TestInventoryAndProvidesDependsAreIndependentFlags(t *testing.T) {
	cfg := NewDefault()
	cfg.ProvidesDependsEnabled = true
	require.False(t, cfg.InventoryEnabled)
	require.True(t, cfg.InventoryDisabled())

	cfg = NewDefault()
	cfg.InventoryEnabled = true
	require.False(t, cfg.ProvidesDependsEnabled)
}

func TestLoadWithOverridesAppliesProvidesDependsIndependentlyOfInventory(t *testing.T) {
	require := require.New(t)
	tmpDir := t.TempDir()

	configFile := filepath.Join(tmpDir, "config.yaml")
	require.NoError(os.WriteFile(configFile, []byte(yamlConfig), 0600))

	confD := filepath.Join(tmpDir, "conf.d")
	require.NoError(os.MkdirAll(confD, 0755))
	require.NoError(os.WriteFile(filepath.Join(confD, "01-depends.yaml"), []byte("providesDependsEnabled: true\n"), 0600))

	cfg := NewDefault()
	require.NoError(cfg.LoadWithOverrides(configFile))

	require.True(cfg.ProvidesDependsEnabled)
	require.False(cfg.InventoryEnabled)
}

func TestValidateRejectsBadModuleConfig(t *testing.T) {
	base := func() *Config {
		cfg := NewDefault()
		cfg.DeviceType = "dev-A"
		cfg.ServerURL = "https://deployments.example.com"
		return cfg
	}

	cfg := base()
	cfg.Modules = []ModuleConfig{{ExecutablePath: "/mods/rootfs-image"}}
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Modules = []ModuleConfig{{TypeName: "rootfs-image"}}
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Modules = []ModuleConfig{
		{TypeName: "rootfs-image", ExecutablePath: "/mods/a"},
		{TypeName: "rootfs-image", ExecutablePath: "/mods/b"},
	}
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Modules = []ModuleConfig{{TypeName: "rootfs-image", ExecutablePath: "/mods/a", NeedsReboot: true}}
	require.NoError(t, cfg.Validate())
}

func TestNewDefaultSetsIdentityName(t *testing.T) {
	cfg := NewDefault()
	require.Equal(t, DefaultIdentityName, cfg.IdentityName)
}

func TestStringSanitizedRedactsSecrets(t *testing.T) {
	cfg := NewDefault()
	cfg.DeviceType = "dev-A"
	cfg.ServerURL = "https://deployments.example.com"
	cfg.TenantToken = "super-secret-token"
	cfg.IdentityValue = "device-serial-12345"

	out := cfg.StringSanitized()
	require.NotContains(t, out, "super-secret-token")
	require.NotContains(t, out, "device-serial-12345")
	require.Contains(t, out, "dev-A")

	// String() (unsanitized) still carries the real values.
	require.Contains(t, cfg.String(), "super-secret-token")
}

func TestLoadWithOverridesReplacesModuleList(t *testing.T) {
	require := require.New(t)
	tmpDir := t.TempDir()

	configFile := filepath.Join(tmpDir, "config.yaml")
	require.NoError(os.WriteFile(configFile, []byte(yamlConfig+"\nmodules:\n  - typeName: rootfs-image\n    executablePath: /mods/rootfs-image\n"), 0600))

	confD := filepath.Join(tmpDir, "conf.d")
	require.NoError(os.MkdirAll(confD, 0755))
	require.NoError(os.WriteFile(filepath.Join(confD, "01-modules.yaml"), []byte("modules:\n  - typeName: app\n    executablePath: /mods/app\n"), 0600))

	cfg := NewDefault()
	require.NoError(cfg.LoadWithOverrides(configFile))

	require.Equal([]ModuleConfig{{TypeName: "app", ExecutablePath: "/mods/app"}}, cfg.Modules)
}
