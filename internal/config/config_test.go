package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/energymon/internal/config"
	"codeberg.org/mutker/energymon/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validTOML = `
log_level = "warning"

[scheduler]
tick = "500ms"

[carbon]
enabled = true
token = "co2-token"
zones = ["DE", "FR"]

[cloud_meter]
enabled = true
url = "https://shelly.example/device/status"
token = "shelly-token"
cadence = "2s"

[[cloud_meter.devices]]
id = "abc123"
location = "Kitchen"

[[cloud_meter.devices]]
id = "def456"
location = "Garage"

[modbus]
enabled = true
port = "/dev/ttyUSB1"
slave = 7

[influx]
enabled = true
url = "http://influx:8086"
org = "home"
bucket = "energy"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "energymon.toml", validTOML)

	cfg, err := config.Load([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, "warning", cfg.LogLevel)
	assert.Equal(t, 500*time.Millisecond, cfg.Scheduler.Tick)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.PollTimeout, "default kept")

	assert.Equal(t, []string{"DE", "FR"}, cfg.Carbon.Zones)
	assert.Equal(t, time.Hour, cfg.Carbon.Cadence)

	require.Len(t, cfg.CloudMeter.Devices, 2)
	assert.Equal(t, config.Device{ID: "def456", Location: "Garage"}, cfg.CloudMeter.Devices[1])
	assert.Equal(t, 2*time.Second, cfg.CloudMeter.Cadence)

	assert.Equal(t, "/dev/ttyUSB1", cfg.Modbus.Port)
	assert.Equal(t, 7, cfg.Modbus.Slave)
	assert.Equal(t, 19200, cfg.Modbus.BaudRate)
	assert.Equal(t, "E", cfg.Modbus.Parity)
	assert.Equal(t, "Laboratory", cfg.Modbus.Location)

	assert.Empty(t, cfg.LogFile.Path)
	assert.Equal(t, 10, cfg.LogFile.MaxSizeMB)

	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Retry.Initial)
	assert.False(t, cfg.Once)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "energymon.yaml", `
modbus:
  enabled: true
  location: Workshop
store:
  enabled: true
  path: /tmp/points.db
`)

	cfg, err := config.Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, "Workshop", cfg.Modbus.Location)
	assert.True(t, cfg.Store.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	path := writeConfig(t, "energymon.toml", validTOML)
	t.Setenv("ENERGYMON_CONFIG", path)
	t.Setenv("ENERGYMON_MODBUS_SLAVE", "9")
	t.Setenv("ENERGYMON_INFLUX_TOKEN", "from-env")

	cfg, err := config.Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Modbus.Slave)
	assert.Equal(t, "from-env", cfg.Influx.Token)
}

func TestFlagsOverride(t *testing.T) {
	path := writeConfig(t, "energymon.toml", validTOML)

	cfg, err := config.Load([]string{"--config", path, "--log-level", "debug", "--once", "--dry-run"})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Once)
	assert.True(t, cfg.DryRun)
}

func TestEffectiveLogLevel(t *testing.T) {
	cfg := &config.Config{LogLevel: "error"}
	assert.Equal(t, "error", cfg.EffectiveLogLevel())

	cfg.Verbose = true
	assert.Equal(t, "info", cfg.EffectiveLogLevel())

	cfg.Debug = true
	assert.Equal(t, "debug", cfg.EffectiveLogLevel())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load([]string{"--config", filepath.Join(t.TempDir(), "nope.toml")})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	path := writeConfig(t, "energymon.toml", "This is not a valid TOML file\n")

	_, err := config.Load([]string{"--config", path})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, "energymon.toml", validTOML+"\n")

	_, err := config.Load([]string{"--config", path, "--log-level", "loud"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestUnknownFlag(t *testing.T) {
	_, err := config.Load([]string{"--fanspeed", "80"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrBindFlags))
}

func TestValidateReportsEveryField(t *testing.T) {
	path := writeConfig(t, "energymon.toml", `
[carbon]
enabled = true
url = "not a url"
zones = []

[modbus]
enabled = true
slave = 300
parity = "X"
cadence = "100ms"
`)

	_, err := config.Load([]string{"--config", path})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidConfig))

	fields := map[string]bool{}
	for _, ve := range config.Errors(err) {
		fields[ve.Field()] = true
	}
	for _, f := range []string{
		"carbon.url", "carbon.token", "carbon.zones",
		"modbus.slave", "modbus.parity", "modbus.cadence", "sinks",
	} {
		assert.True(t, fields[f], "expected a validation error for %s", f)
	}
}

func TestValidateRequiresSource(t *testing.T) {
	path := writeConfig(t, "energymon.toml", "log_level = \"info\"\n")

	_, err := config.Load([]string{"--config", path, "--dry-run"})
	require.Error(t, err)

	errs := config.Errors(err)
	require.Len(t, errs, 1)
	assert.Equal(t, "sources", errs[0].Field())
	assert.Equal(t, "at least one source must be enabled", errs[0].Reason())
}
