package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/energymon/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	PIDFile   string          `mapstructure:"pid_file"`
	LogFile   LogFileConfig   `mapstructure:"log_file"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Retry     RetryConfig     `mapstructure:"retry"`

	Carbon     CarbonConfig     `mapstructure:"carbon"`
	CloudMeter CloudMeterConfig `mapstructure:"cloud_meter"`
	Inverter   InverterConfig   `mapstructure:"inverter"`
	Modbus     ModbusConfig     `mapstructure:"modbus"`

	Influx  InfluxConfig  `mapstructure:"influx"`
	Store   StoreConfig   `mapstructure:"store"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Command line only
	ConfigFile string `mapstructure:"-"`
	Debug      bool   `mapstructure:"-"`
	Verbose    bool   `mapstructure:"-"`
	Once       bool   `mapstructure:"-"`
	DryRun     bool   `mapstructure:"-"`
}

// LogFileConfig enables a rotating JSON log file next to console output.
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type SchedulerConfig struct {
	Tick          time.Duration `mapstructure:"tick"`
	PollTimeout   time.Duration `mapstructure:"poll_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

type RetryConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Initial  time.Duration `mapstructure:"initial"`
	Max      time.Duration `mapstructure:"max"`
}

type CarbonConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Zones   []string      `mapstructure:"zones"`
	Cadence time.Duration `mapstructure:"cadence"`
}

type CloudMeterConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Devices []Device      `mapstructure:"devices"`
	Cadence time.Duration `mapstructure:"cadence"`
}

type Device struct {
	ID       string `mapstructure:"id"`
	Location string `mapstructure:"location"`
}

type InverterConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Location string        `mapstructure:"location"`
	Cadence  time.Duration `mapstructure:"cadence"`
}

type ModbusConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	DataBits    int           `mapstructure:"data_bits"`
	Parity      string        `mapstructure:"parity"`
	StopBits    int           `mapstructure:"stop_bits"`
	Slave       int           `mapstructure:"slave"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Location    string        `mapstructure:"location"`
	Cadence     time.Duration `mapstructure:"cadence"`
	RegisterMap string        `mapstructure:"register_map"`
}

type InfluxConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Org     string `mapstructure:"org"`
	Bucket  string `mapstructure:"bucket"`
}

type StoreConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	BackupDir string `mapstructure:"backup_dir"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// Load reads the configuration from, in increasing precedence, built-in
// defaults, the config file, ENERGYMON_* environment variables and the
// command line.
func Load(args []string) (*Config, error) {
	errFactory := errors.New()

	fs := pflag.NewFlagSet("energymon", pflag.ContinueOnError)
	configFile := fs.String("config", "", "Path to the configuration file")
	fs.String("log-level", string(DefaultLogLevel), "Log level (debug, info, warning, error)")
	debug := fs.Bool("debug", false, "Enable debug logging")
	verbose := fs.Bool("verbose", false, "Enable verbose logging")
	once := fs.Bool("once", false, "Poll every source once, write the batch and exit")
	dryRun := fs.Bool("dry-run", false, "Log points instead of writing them to sinks")

	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlag("log_level", fs.Lookup("log-level")); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	path := *configFile
	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath("/etc")
		v.AddConfigPath("$HOME/.config/energymon")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	cfg.ConfigFile = v.ConfigFileUsed()
	cfg.Debug = *debug
	cfg.Verbose = *verbose
	cfg.Once = *once
	cfg.DryRun = *dryRun

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// EffectiveLogLevel applies --debug and --verbose over the configured level.
func (c *Config) EffectiveLogLevel() string {
	switch {
	case c.Debug:
		return string(LogLevelDebug)
	case c.Verbose:
		return string(LogLevelInfo)
	default:
		return c.LogLevel
	}
}

// Validate checks the whole configuration and reports every problem found.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	var v validator
	if c.LogFile.Path != "" {
		v.check(c.LogFile.MaxSizeMB > 0, "log_file.max_size_mb", c.LogFile.MaxSizeMB, "must be positive")
		v.check(c.LogFile.MaxBackups >= 0, "log_file.max_backups", c.LogFile.MaxBackups, "must not be negative")
		v.check(c.LogFile.MaxAgeDays >= 0, "log_file.max_age_days", c.LogFile.MaxAgeDays, "must not be negative")
	}
	c.validateScheduler(&v)
	c.validateSources(&v)
	c.validateSinks(&v)

	if len(v.errs) == 0 {
		return nil
	}

	return errFactory.Wrap(errors.ErrInvalidConfig, errors.Join(v.errs...))
}

// Errors returns the individual validation errors inside err.
func Errors(err error) []ValidationError {
	var out []ValidationError

	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if ve, ok := err.(ValidationError); ok {
			out = append(out, ve)
			return
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				walk(e)
			}
			return
		}
		walk(errors.Unwrap(err))
	}
	walk(err)

	return out
}

type validator struct {
	errs []error
}

func (v *validator) check(ok bool, field string, value interface{}, reason string) {
	if !ok {
		v.errs = append(v.errs, &validationError{field: field, value: value, reason: reason})
	}
}

func (v *validator) url(field, value string) {
	u, err := url.ParseRequestURI(value)
	v.check(err == nil && u.Host != "", field, value, "must be an absolute URL")
}

func (v *validator) required(field, value string) {
	v.check(strings.TrimSpace(value) != "", field, value, "is required")
}

func (c *Config) validateScheduler(v *validator) {
	s := c.Scheduler
	v.check(s.Tick > 0, "scheduler.tick", s.Tick, "must be positive")
	v.check(s.PollTimeout > 0, "scheduler.poll_timeout", s.PollTimeout, "must be positive")
	v.check(s.WriteTimeout > 0, "scheduler.write_timeout", s.WriteTimeout, "must be positive")
	v.check(s.ShutdownGrace >= 0, "scheduler.shutdown_grace", s.ShutdownGrace, "must not be negative")

	r := c.Retry
	v.check(r.Attempts >= 1, "retry.attempts", r.Attempts, "must be at least 1")
	v.check(r.Initial > 0, "retry.initial", r.Initial, "must be positive")
	v.check(r.Max >= r.Initial, "retry.max", r.Max, "must not be below retry.initial")
}

func (c *Config) cadence(v *validator, field string, d time.Duration) {
	v.check(d >= c.Scheduler.Tick, field, d, "must not be shorter than scheduler.tick")
}

func (c *Config) validateSources(v *validator) {
	v.check(c.Carbon.Enabled || c.CloudMeter.Enabled || c.Inverter.Enabled || c.Modbus.Enabled,
		"sources", nil, "at least one source must be enabled")

	if cc := c.Carbon; cc.Enabled {
		v.url("carbon.url", cc.URL)
		v.required("carbon.token", cc.Token)
		v.check(len(cc.Zones) > 0, "carbon.zones", cc.Zones, "at least one zone is required")
		for _, z := range cc.Zones {
			v.required("carbon.zones", z)
		}
		c.cadence(v, "carbon.cadence", cc.Cadence)
	}

	if cm := c.CloudMeter; cm.Enabled {
		v.url("cloud_meter.url", cm.URL)
		v.required("cloud_meter.token", cm.Token)
		v.check(len(cm.Devices) > 0, "cloud_meter.devices", cm.Devices, "at least one device is required")
		seen := map[string]bool{}
		for _, d := range cm.Devices {
			v.required("cloud_meter.devices.id", d.ID)
			v.required("cloud_meter.devices.location", d.Location)
			v.check(!seen[d.Location], "cloud_meter.devices.location", d.Location, "must be unique")
			seen[d.Location] = true
		}
		c.cadence(v, "cloud_meter.cadence", cm.Cadence)
	}

	if inv := c.Inverter; inv.Enabled {
		v.url("inverter.url", inv.URL)
		v.required("inverter.username", inv.Username)
		v.required("inverter.password", inv.Password)
		v.required("inverter.location", inv.Location)
		c.cadence(v, "inverter.cadence", inv.Cadence)
	}

	if m := c.Modbus; m.Enabled {
		v.required("modbus.port", m.Port)
		v.check(m.BaudRate > 0, "modbus.baud_rate", m.BaudRate, "must be positive")
		v.check(m.DataBits == 7 || m.DataBits == 8, "modbus.data_bits", m.DataBits, "must be 7 or 8")
		v.check(m.Parity == "N" || m.Parity == "E" || m.Parity == "O", "modbus.parity", m.Parity, "must be N, E or O")
		v.check(m.StopBits == 1 || m.StopBits == 2, "modbus.stop_bits", m.StopBits, "must be 1 or 2")
		v.check(m.Slave >= 1 && m.Slave <= 247, "modbus.slave", m.Slave, "must be between 1 and 247")
		v.check(m.Timeout > 0, "modbus.timeout", m.Timeout, "must be positive")
		v.required("modbus.location", m.Location)
		c.cadence(v, "modbus.cadence", m.Cadence)
	}
}

func (c *Config) validateSinks(v *validator) {
	if !c.DryRun {
		v.check(c.Influx.Enabled || c.Store.Enabled, "sinks", nil, "enable influx or store, or run with --dry-run")
	}

	if in := c.Influx; in.Enabled {
		v.url("influx.url", in.URL)
		v.required("influx.org", in.Org)
		v.required("influx.bucket", in.Bucket)
	}

	if c.Store.Enabled {
		v.required("store.path", c.Store.Path)
	}

	if c.Metrics.Enabled {
		v.required("metrics.listen", c.Metrics.Listen)
	}
}
