package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DeviceConfig is the profile of one scoring device.
type DeviceConfig struct {
	ServerURL       string `koanf:"server_url"`
	DeviceRole      string `koanf:"device_role"`
	BoutID          string `koanf:"bout_id"`
	QueuePath       string `koanf:"queue_path"`
	ProbeIntervalMS int    `koanf:"probe_interval_ms"`
	RetentionHours  int    `koanf:"retention_hours"`
	MaxRetries      int    `koanf:"max_retries"`
	SubmitTimeoutMS int    `koanf:"submit_timeout_ms"`
	Live            bool   `koanf:"live"`
}

func defaultDevice() DeviceConfig {
	return DeviceConfig{
		ServerURL:       "http://localhost:8080",
		QueuePath:       "cageside-queue.db",
		ProbeIntervalMS: 3000,
		RetentionHours:  24,
		MaxRetries:      5,
		SubmitTimeoutMS: 5000,
	}
}

func (c DeviceConfig) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalMS) * time.Millisecond
}

func (c DeviceConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

func (c DeviceConfig) SubmitTimeout() time.Duration {
	return time.Duration(c.SubmitTimeoutMS) * time.Millisecond
}

// LoadDevice layers defaults, the YAML profile at path (or CAGESIDE_CONFIG)
// and CAGESIDE_-prefixed environment variables, in that order.
func LoadDevice(path string) (DeviceConfig, error) {
	k := koanf.New(".")
	if path == "" {
		path = os.Getenv("CAGESIDE_CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return DeviceConfig{}, err
		}
	}
	envProvider := env.Provider("CAGESIDE_", ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), "cageside_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return DeviceConfig{}, err
	}

	cfg := defaultDevice()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return DeviceConfig{}, err
	}
	if cfg.ServerURL == "" {
		return DeviceConfig{}, errors.New("server_url must not be empty")
	}
	if cfg.DeviceRole == "" {
		return DeviceConfig{}, errors.New("device_role must not be empty")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return cfg, nil
}
