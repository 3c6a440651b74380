package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/luhtfiimanal/go-sc64"
	"github.com/luhtfiimanal/go-sc64/internal/config/parsers"
	"github.com/luhtfiimanal/go-sc64/internal/logging"
)

// EnvPrefix marks environment overrides. A double underscore separates
// sections, so SC64_LOG__LEVEL sets log.level.
const EnvPrefix = "SC64_"

type Configuration struct {
	Device  DeviceConfig   `koanf:"device"`
	Link    LinkConfig     `koanf:"link"`
	Server  ServerConfig   `koanf:"server"`
	Log     logging.Config `koanf:"log"`
	Metrics MetricsConfig  `koanf:"metrics"`
}

type DeviceConfig struct {
	Port     string `koanf:"port"`
	Remote   string `koanf:"remote"`
	BaudRate int    `koanf:"baudrate"`
}

type LinkConfig struct {
	ReadTimeout   time.Duration `koanf:"readtimeout"`
	WriteTimeout  time.Duration `koanf:"writetimeout"`
	PollInterval  time.Duration `koanf:"pollinterval"`
	ResetInterval time.Duration `koanf:"resetinterval"`
	ResetRetries  int           `koanf:"resetretries"`
}

type ServerConfig struct {
	Address   string        `koanf:"address"`
	KeepAlive time.Duration `koanf:"keepalive"`
}

type MetricsConfig struct {
	Address string `koanf:"address"`
}

// Options converts the link settings into sc64 options.
func (c LinkConfig) Options() []sc64.Option {
	return []sc64.Option{
		sc64.WithReadTimeout(c.ReadTimeout),
		sc64.WithWriteTimeout(c.WriteTimeout),
		sc64.WithPollInterval(c.PollInterval),
		sc64.WithReset(c.ResetInterval, c.ResetRetries),
	}
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"device.baudrate":    sc64.DefaultBaudRate,
		"link.readtimeout":   sc64.DefaultReadTimeout,
		"link.writetimeout":  sc64.DefaultWriteTimeout,
		"link.pollinterval":  sc64.DefaultPollInterval,
		"link.resetinterval": sc64.DefaultResetInterval,
		"link.resetretries":  sc64.DefaultResetRetries,
		"server.address":     "0.0.0.0:9064",
		"server.keepalive":   time.Second,
		"log.level":          "info",
		"log.timestamp":      true,
	}
}

// Load layers defaults, the config file (YAML, or TOML by extension) and
// SC64_ environment variables, in that order. A missing file is not an
// error.
func Load(configFile string) (Configuration, error) {
	var conf Configuration
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return conf, fmt.Errorf("loading defaults: %w", err)
	}

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			if err := k.Load(file.Provider(configFile), parserFor(configFile)); err != nil {
				return conf, fmt.Errorf("error loading config from file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return conf, fmt.Errorf("error loading config from file: %w", err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(s string, v string) (string, interface{}) {
		key := strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
		return key, strings.TrimSpace(v)
	}), nil); err != nil {
		return conf, fmt.Errorf("error loading config from environment: %w", err)
	}

	if err := k.UnmarshalWithConf("", &conf, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return conf, fmt.Errorf("cannot unmarshal config: %w", err)
	}

	if conf.Device.Port != "" && conf.Device.Remote != "" {
		return conf, errors.New("device.port and device.remote are mutually exclusive")
	}
	if conf.Link.ResetRetries < 0 {
		return conf, errors.New("link.resetretries must not be negative")
	}

	return conf, nil
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return parsers.Parser()
	default:
		return yaml.Parser()
	}
}
