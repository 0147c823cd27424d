package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/librescoot/powerled-service/internal/fsm"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownSource = errors.New("unknown event source")
	ErrUnknownSink   = errors.New("unknown indicator output")
)

// Event sources
const (
	SourceRedis  = "redis"
	SourceUPower = "upower"
	SourceSysfs  = "sysfs"
)

// Indicator outputs
const (
	SinkGPIO  = "gpio"
	SinkRedis = "redis"
	SinkLog   = "log"
)

type Config struct {
	ConfigFile  string `yaml:"-"`
	ShowVersion bool   `yaml:"-"`

	RedisHost string `yaml:"redis-host"`
	RedisPort int    `yaml:"redis-port"`

	Source         string `yaml:"source"`
	Sinks          string `yaml:"sinks"`
	ScreenOnPolicy string `yaml:"screen-on-policy"`
	PublishState   bool   `yaml:"publish-state"`
	DryRun         bool   `yaml:"dry-run"`

	GPIOChip        string `yaml:"gpio-chip"`
	GreenLEDOffset  int    `yaml:"green-led-offset"`
	OrangeLEDOffset int    `yaml:"orange-led-offset"`

	SysfsRoot    string        `yaml:"sysfs-root"`
	PollInterval time.Duration `yaml:"poll-interval"`

	PowerKey     string `yaml:"power-key"`
	PowerField   string `yaml:"power-field"`
	BatteryKey   string `yaml:"battery-key"`
	BatteryField string `yaml:"battery-field"`
	ScreenKey    string `yaml:"screen-key"`
	ScreenField  string `yaml:"screen-field"`
	IndicatorKey string `yaml:"indicator-key"`
	StateKey     string `yaml:"state-key"`
}

func New() *Config {
	return &Config{
		RedisHost:       "localhost",
		RedisPort:       6379,
		Source:          SourceRedis,
		Sinks:           SinkGPIO,
		ScreenOnPolicy:  string(fsm.PolicyRearm),
		PublishState:    true,
		DryRun:          false,
		GPIOChip:        "gpiochip0",
		GreenLEDOffset:  82, // GPIO 2:18
		OrangeLEDOffset: 83, // GPIO 2:19
		SysfsRoot:       "/sys",
		PollInterval:    time.Second,
		PowerKey:        "power-supply",
		PowerField:      "online",
		BatteryKey:      "battery:0",
		BatteryField:    "charge-status",
		ScreenKey:       "dashboard",
		ScreenField:     "backlight",
		IndicatorKey:    "power-led",
		StateKey:        "power-led:state",
	}
}

func (c *Config) flagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("powerled", flag.ContinueOnError)

	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "Path to a YAML configuration file")
	fs.BoolVar(&c.ShowVersion, "version", c.ShowVersion, "Print version and exit")

	fs.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis host")
	fs.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")

	fs.StringVar(&c.Source, "source", c.Source,
		"Event source (redis, upower, sysfs)")
	fs.StringVar(&c.Sinks, "sinks", c.Sinks,
		"Comma separated indicator outputs (gpio, redis, log)")
	fs.StringVar(&c.ScreenOnPolicy, "screen-on-policy", c.ScreenOnPolicy,
		"Behaviour on screen-on (rearm: re-assert on next screen-off, continuous: keep tracking battery)")
	fs.BoolVar(&c.PublishState, "publish-state", c.PublishState,
		"Publish the indicator state to Redis")
	fs.BoolVar(&c.DryRun, "dry-run", c.DryRun,
		"Dry run (don't touch GPIO lines)")

	fs.StringVar(&c.GPIOChip, "gpio-chip", c.GPIOChip, "GPIO chip of the indicator LEDs")
	fs.IntVar(&c.GreenLEDOffset, "green-led-offset", c.GreenLEDOffset, "GPIO line offset of the green LED")
	fs.IntVar(&c.OrangeLEDOffset, "orange-led-offset", c.OrangeLEDOffset, "GPIO line offset of the orange LED")

	fs.StringVar(&c.SysfsRoot, "sysfs-root", c.SysfsRoot, "sysfs mount point (power_supply and backlight classes)")
	fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "sysfs polling interval")

	fs.StringVar(&c.PowerKey, "power-key", c.PowerKey, "Redis hash holding the power supply state")
	fs.StringVar(&c.PowerField, "power-field", c.PowerField, "Field of the power supply state")
	fs.StringVar(&c.BatteryKey, "battery-key", c.BatteryKey, "Redis hash holding the battery status")
	fs.StringVar(&c.BatteryField, "battery-field", c.BatteryField, "Field of the battery charge status")
	fs.StringVar(&c.ScreenKey, "screen-key", c.ScreenKey, "Redis hash holding the screen state")
	fs.StringVar(&c.ScreenField, "screen-field", c.ScreenField, "Field of the screen state")
	fs.StringVar(&c.IndicatorKey, "indicator-key", c.IndicatorKey, "Redis hash the redis output mirrors the LED color and pattern to")
	fs.StringVar(&c.StateKey, "state-key", c.StateKey, "Redis hash the indicator state machine state is published to")

	return fs
}

// Parse applies, in increasing precedence, the configuration file named
// by -config, environment overrides and command line flags.
func (c *Config) Parse(args []string) error {
	if err := c.flagSet().Parse(args); err != nil {
		return err
	}

	if c.ConfigFile != "" {
		if err := c.LoadFile(c.ConfigFile); err != nil {
			return err
		}
	}

	if err := c.ApplyEnvOverrides(); err != nil {
		return err
	}

	// Parse again so explicit flags win over file and environment
	if err := c.flagSet().Parse(args); err != nil {
		return err
	}

	return c.Validate()
}

// LoadFile reads a YAML configuration file on top of the current values.
// Keys missing from the file keep their value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}

// ApplyEnvOverrides updates c from environment variables.
// Recognized variables:
//   - POWERLED_REDIS_HOST overrides RedisHost
//   - POWERLED_REDIS_PORT overrides RedisPort
//   - POWERLED_SOURCE overrides Source
func (c *Config) ApplyEnvOverrides() error {
	if host := os.Getenv("POWERLED_REDIS_HOST"); host != "" {
		c.RedisHost = host
	}
	if port := os.Getenv("POWERLED_REDIS_PORT"); port != "" {
		value, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid POWERLED_REDIS_PORT %q: %w", port, err)
		}
		c.RedisPort = value
	}
	if source := os.Getenv("POWERLED_SOURCE"); source != "" {
		c.Source = source
	}
	return nil
}

// Validate rejects unknown sources, outputs and policies
func (c *Config) Validate() error {
	switch c.Source {
	case SourceRedis, SourceUPower, SourceSysfs:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSource, c.Source)
	}

	sinks := c.SinkList()
	if len(sinks) == 0 {
		return fmt.Errorf("%w: no output configured", ErrUnknownSink)
	}
	for _, sink := range sinks {
		switch sink {
		case SinkGPIO, SinkRedis, SinkLog:
		default:
			return fmt.Errorf("%w: %q", ErrUnknownSink, sink)
		}
	}

	if _, err := fsm.ParsePolicy(c.ScreenOnPolicy); err != nil {
		return err
	}

	if c.RedisPort <= 0 || c.RedisPort > 65535 {
		return fmt.Errorf("invalid Redis port: %d", c.RedisPort)
	}

	if c.PublishState && c.StateKey == c.IndicatorKey {
		return fmt.Errorf("state key %q must differ from the indicator key", c.StateKey)
	}

	if c.Source == SourceSysfs && c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval: %v", c.PollInterval)
	}

	return nil
}

// SinkList returns the configured outputs without duplicates
func (c *Config) SinkList() []string {
	var sinks []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(c.Sinks, ",") {
		sink := strings.ToLower(strings.TrimSpace(part))
		if sink == "" || seen[sink] {
			continue
		}
		seen[sink] = true
		sinks = append(sinks, sink)
	}
	return sinks
}

// NeedsRedis reports whether any configured component talks to Redis
func (c *Config) NeedsRedis() bool {
	if c.Source == SourceRedis || c.PublishState {
		return true
	}
	for _, sink := range c.SinkList() {
		if sink == SinkRedis {
			return true
		}
	}
	return false
}
