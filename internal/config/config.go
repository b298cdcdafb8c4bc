package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/lkdisplay/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultRefreshDelay = 500
	DefaultSendDelay    = 500
	DefaultLocalPort    = 8890
	DefaultEnvPrefix    = "LKDISPLAY"

	configName    = "config"
	configSection = "config"
	maxPort       = 65535
)

// Config is the read-only configuration consumed by the daemon. Delays are
// in milliseconds.
type Config struct {
	RefreshDelay  int       `mapstructure:"refresh_delay"`
	SendDelay     int       `mapstructure:"send_delay"`
	IsLog         bool      `mapstructure:"is_log"`
	LogPath       string    `mapstructure:"log_path"`
	Debug         bool      `mapstructure:"debug"`
	IsUDP         bool      `mapstructure:"is_udp"`
	LocalPort     int       `mapstructure:"local_port"`
	UDPFormat     UDPFormat `mapstructure:"udp_format"`
	SampleTimeout int       `mapstructure:"sample_timeout"`
	MetricsAddr   string    `mapstructure:"metrics_addr"`
	PIDFile       string    `mapstructure:"pid_file"`

	// One-shot diagnostic modes, flags only.
	Scan bool `mapstructure:"-"`
	Test bool `mapstructure:"-"`
}

// alternates lists the spellings accepted for a key besides its canonical
// name. They cover the INI files written by earlier releases.
var alternates = map[string][]string{
	"refresh_delay": {"fefresh_delay"},
	"is_log":        {"islog"},
	"log_path":      {"logpath"},
	"is_udp":        {"isudp"},
	"local_port":    {"localport"},
}

var defaults = map[string]any{
	"refresh_delay":  DefaultRefreshDelay,
	"send_delay":     DefaultSendDelay,
	"is_log":         true,
	"log_path":       "",
	"debug":          false,
	"is_udp":         false,
	"local_port":     DefaultLocalPort,
	"udp_format":     string(UDPFormatJSON),
	"sample_timeout": 0,
	"metrics_addr":   "",
	"pid_file":       filepath.Join(os.TempDir(), "lkdisplay.pid"),
}

// flagKeys maps command line flag names to configuration keys
var flagKeys = map[string]string{
	"refresh-delay":  "refresh_delay",
	"send-delay":     "send_delay",
	"log":            "is_log",
	"log-path":       "log_path",
	"debug":          "debug",
	"udp":            "is_udp",
	"udp-port":       "local_port",
	"udp-format":     "udp_format",
	"sample-timeout": "sample_timeout",
	"metrics-addr":   "metrics_addr",
	"pid-file":       "pid_file",
}

// Load builds the configuration from defaults, the config file, the
// environment and the given command line arguments (without the program
// name), in increasing order of precedence.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	configPath := o.configPath
	if path, _ := fs.GetString("config"); path != "" {
		configPath = path
	}
	if configPath == "" {
		configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	cfg.Scan, _ = fs.GetBool("scan")
	cfg.Test, _ = fs.GetBool("test")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("lkdisplay", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "Configuration file path")
	fs.BoolP("debug", "d", false, "Enable debug logging")
	fs.Int("refresh-delay", DefaultRefreshDelay, "Sensor sampling interval in milliseconds")
	fs.Int("send-delay", DefaultSendDelay, "Display update interval in milliseconds")
	fs.Bool("log", true, "Write a log file when --log-path is set")
	fs.String("log-path", "", "Log file path")
	fs.Bool("udp", false, "Mirror telemetry over UDP to 127.0.0.1")
	fs.Int("udp-port", DefaultLocalPort, "UDP destination port")
	fs.String("udp-format", string(UDPFormatJSON), "UDP payload format (json, cbor)")
	fs.Int("sample-timeout", 0, "Upper bound for one sensor sample in milliseconds (0 = refresh delay)")
	fs.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.String("pid-file", defaults["pid_file"].(string), "PID file path")
	fs.Bool("scan", false, "List supported displays and exit")
	fs.Bool("test", false, "Send one synthetic packet to the display and exit")

	return fs
}

func readConfigFile(v *viper.Viper, path string) error {
	errFactory := errors.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath("/etc/lkdisplay")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "lkdisplay"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	promoteLegacyKeys(v)

	return nil
}

// promoteLegacyKeys makes keys found in a [config] section or under an
// alternate spelling visible under their canonical name. They are installed
// as defaults so environment and flags still take precedence.
func promoteLegacyKeys(v *viper.Viper) {
	for key := range defaults {
		if v.InConfig(key) {
			continue
		}

		names := append([]string{key}, alternates[key]...)
		for _, name := range names {
			if name != key && v.InConfig(name) {
				v.SetDefault(key, v.Get(name))
				break
			}
			if section := configSection + "." + name; v.InConfig(section) {
				v.SetDefault(key, v.Get(section))
				break
			}
		}
	}
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.RefreshDelay <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, struct {
			Key   string
			Value int
		}{"refresh_delay", c.RefreshDelay})
	}

	if c.SendDelay <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, struct {
			Key   string
			Value int
		}{"send_delay", c.SendDelay})
	}

	if c.SampleTimeout < 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, struct {
			Key   string
			Value int
		}{"sample_timeout", c.SampleTimeout})
	}

	if c.IsUDP && (c.LocalPort <= 0 || c.LocalPort > maxPort) {
		return errFactory.WithData(errors.ErrInvalidPort, c.LocalPort)
	}

	if !c.UDPFormat.IsValid() {
		return errFactory.WithData(errors.ErrInvalidFormat, c.UDPFormat)
	}

	return nil
}

// RefreshInterval returns the sensor sampling cadence
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshDelay) * time.Millisecond
}

// SendInterval returns the display transmit cadence
func (c *Config) SendInterval() time.Duration {
	return time.Duration(c.SendDelay) * time.Millisecond
}

// SampleBudget returns the upper bound for a single aggregation pass
func (c *Config) SampleBudget() time.Duration {
	if c.SampleTimeout > 0 {
		return time.Duration(c.SampleTimeout) * time.Millisecond
	}

	return c.RefreshInterval()
}

// LogFile returns the log file path, or "" when file logging is off
func (c *Config) LogFile() string {
	if !c.IsLog {
		return ""
	}

	return c.LogPath
}
