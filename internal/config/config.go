package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/boostctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultInterval     = 1000
	DefaultHelper       = "su"
	DefaultLogLevel     = string(LogLevelInfo)
	DefaultMetricsDB    = "/var/lib/boostctl/metrics.db"
	DefaultBatchSize    = 10
	DefaultBatchTimeout = 30
	defaultEnvPrefix    = "BOOSTCTL"
	defaultConfigName   = "boostctl"
	defaultConfigDir    = "/etc"
	configFileEnvSuffix = "_CONFIG"
	maxCoreIndex        = 63
)

type Config struct {
	Interval       int    `mapstructure:"interval"`
	Helper         string `mapstructure:"helper"`
	CPU            int    `mapstructure:"cpu"`
	ThermalZone    int    `mapstructure:"thermal_zone"`
	CommandTimeout int    `mapstructure:"command_timeout"`
	StopOnFailure  bool   `mapstructure:"stop_on_failure"`
	LogLevel       string `mapstructure:"log_level"`
	Metrics        bool   `mapstructure:"metrics"`
	MetricsDB      string `mapstructure:"metrics_db"`
	BatchSize      int    `mapstructure:"batch_size"`
	BatchTimeout   int    `mapstructure:"batch_timeout"`

	// Args holds the positional arguments left after flag parsing.
	Args []string `mapstructure:"-"`
}

// PollInterval returns the configured poll interval as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Interval) * time.Millisecond
}

// Timeout returns the per-command timeout, zero when disabled
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.CommandTimeout) * time.Millisecond
}

// Validate checks value ranges and returns the first violation found
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}

	if strings.TrimSpace(c.Helper) == "" {
		return errFactory.New(errors.ErrInvalidHelper)
	}

	if c.CPU < 0 || c.CPU > maxCoreIndex {
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("cpu index out of range: %d", c.CPU))
	}

	if c.ThermalZone < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("thermal zone out of range: %d", c.ThermalZone))
	}

	if c.CommandTimeout < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("command timeout must not be negative: %d", c.CommandTimeout))
	}

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.Metrics && c.MetricsDB == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "metrics enabled without metrics_db")
	}

	return nil
}

func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}
	if !o.argsSet {
		o.args = os.Args[1:]
	}

	v := viper.New()
	setDefaults(v)

	// Define flags
	fs := newFlagSet()
	if err := fs.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrParseFlags, err)
	}

	for key, name := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	// Load configuration from file
	configPath := o.configPath
	if configPath == "" {
		configPath = os.Getenv(o.envPrefix + configFileEnvSuffix)
	}
	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	// Unmarshal the configuration
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	cfg.Args = fs.Args()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("helper", DefaultHelper)
	v.SetDefault("cpu", 0)
	v.SetDefault("thermal_zone", 0)
	v.SetDefault("command_timeout", 0)
	v.SetDefault("stop_on_failure", false)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("metrics", false)
	v.SetDefault("metrics_db", DefaultMetricsDB)
	v.SetDefault("batch_size", DefaultBatchSize)
	v.SetDefault("batch_timeout", DefaultBatchTimeout)
}

// flagKeys maps config keys to their flag names
var flagKeys = map[string]string{
	"interval":        "interval",
	"helper":          "helper",
	"cpu":             "cpu",
	"thermal_zone":    "thermal-zone",
	"command_timeout": "command-timeout",
	"stop_on_failure": "stop-on-failure",
	"log_level":       "log-level",
	"metrics":         "metrics",
	"metrics_db":      "metrics-db",
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("boostctl", pflag.ContinueOnError)
	fs.Int("interval", DefaultInterval, "Interval between readings in milliseconds")
	fs.String("helper", DefaultHelper, "Elevation helper used to run privileged commands")
	fs.Int("cpu", 0, "CPU core whose current frequency is reported")
	fs.Int("thermal-zone", 0, "Thermal zone whose temperature is reported")
	fs.Int("command-timeout", 0, "Per-command timeout in milliseconds, 0 disables it")
	fs.Bool("stop-on-failure", false, "Skip the remaining mode commands after a failure")
	fs.String("log-level", DefaultLogLevel, "Log level: debug, info, warning or error")
	fs.Bool("metrics", false, "Record readings and mode changes to SQLite")
	fs.String("metrics-db", DefaultMetricsDB, "Path to the metrics database")
	fs.SetInterspersed(true)

	// Errors are returned to the caller, which prints its own usage.
	fs.Usage = func() {}
	fs.SetOutput(io.Discard)

	return fs
}

// FlagUsages returns the help text for every flag Load accepts.
func FlagUsages() string {
	return newFlagSet().FlagUsages()
}

func readConfigFile(v *viper.Viper, path string) error {
	errFactory := errors.New()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err).WithMessage("Failed to read config file")
		}

		return nil
	}

	v.SetConfigName(defaultConfigName)
	v.SetConfigType("toml")
	v.AddConfigPath(defaultConfigDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errFactory.Wrap(errors.ErrReadConfig, err).WithMessage("Failed to read config file")
		}
	}

	return nil
}
