package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/benmeehan/varal-bridge/internal/constants"
	"github.com/benmeehan/varal-bridge/pkg/file"
)

// ErrMissingBotToken is returned when no Telegram bot token is configured.
var ErrMissingBotToken = errors.New("TELEGRAM_BOT_TOKEN is required")

// Config represents the bridge configuration. Values come from an optional
// YAML file and are overridden by environment variables.
type Config struct {
	Telegram struct {
		Token string `yaml:"token" env:"TELEGRAM_BOT_TOKEN"` // Bot API credential
	} `yaml:"telegram"`

	MQTT struct {
		URL           string `yaml:"url" env:"MQTT_URL"`                   // Broker URL
		Topic         string `yaml:"topic" env:"MQTT_TOPIC"`               // Shared command/status topic
		ClientID      string `yaml:"client_id" env:"MQTT_CLIENT_ID"`       // Client ID prefix, a UUID is appended
		ReconnectMs   int    `yaml:"reconnect_ms" env:"MQTT_RECONNECT_MS"` // Delay between connection attempts
		CACertificate string `yaml:"ca_certificate" env:"MQTT_CA_CERT"`    // Optional CA bundle for TLS brokers
	} `yaml:"mqtt"`

	Relay struct {
		MotionIntervalMs int `yaml:"motion_interval_ms" env:"MOTION_INTERVAL_MS"` // Minimum gap between motion commands per chat
		StatusTimeoutMs  int `yaml:"status_timeout_ms" env:"STATUS_TIMEOUT_MS"`   // How long to wait for a status report
		Workers          int `yaml:"workers" env:"WORKERS"`                       // Concurrent chat request handlers
		SweepIntervalMs  int `yaml:"sweep_interval_ms" env:"RATE_LIMIT_SWEEP_MS"` // Rate-limit eviction period, negative disables
	} `yaml:"relay"`

	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL"` // zerolog level name
		File  string `yaml:"file" env:"LOG_FILE"`   // Optional rotating log file
	} `yaml:"log"`
}

// LoadConfig reads filename if it exists, applies environment overrides and
// defaults, and validates the result.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config

	if filename != "" {
		exists, err := fileClient.IsFileExists(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if exists {
			if err := fileClient.ReadYamlFile(filename, &config); err != nil {
				return nil, err
			}
		}
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.MQTT.URL == "" {
		c.MQTT.URL = constants.DefaultBrokerURL
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = constants.DefaultTopic
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = constants.DefaultClientIDPrefix
	}
	if c.MQTT.ReconnectMs <= 0 {
		c.MQTT.ReconnectMs = constants.DefaultReconnectMs
	}
	if c.Relay.MotionIntervalMs <= 0 {
		c.Relay.MotionIntervalMs = constants.DefaultMotionIntervalMs
	}
	if c.Relay.StatusTimeoutMs <= 0 {
		c.Relay.StatusTimeoutMs = constants.DefaultStatusTimeoutMs
	}
	if c.Relay.Workers <= 0 {
		c.Relay.Workers = constants.DefaultWorkers
	}
	if c.Relay.SweepIntervalMs == 0 {
		c.Relay.SweepIntervalMs = constants.DefaultSweepIntervalMs
	}
	if c.Log.Level == "" {
		c.Log.Level = constants.DefaultLogLevel
	}
}

// Validate checks the settings the bridge cannot start without.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return ErrMissingBotToken
	}
	return nil
}

// MotionInterval is the minimum gap between motion commands per chat.
func (c *Config) MotionInterval() time.Duration {
	return time.Duration(c.Relay.MotionIntervalMs) * time.Millisecond
}

// StatusTimeout is how long a request waits for a status report.
func (c *Config) StatusTimeout() time.Duration {
	return time.Duration(c.Relay.StatusTimeoutMs) * time.Millisecond
}

// ReconnectInterval is the delay between broker connection attempts.
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.MQTT.ReconnectMs) * time.Millisecond
}

// SweepInterval is the rate-limit eviction period; zero means disabled.
func (c *Config) SweepInterval() time.Duration {
	if c.Relay.SweepIntervalMs < 0 {
		return 0
	}
	return time.Duration(c.Relay.SweepIntervalMs) * time.Millisecond
}

// SweepAge is how long a rate-limit entry may sit idle before eviction.
func (c *Config) SweepAge() time.Duration {
	return c.MotionInterval() * constants.SweepAgeFactor
}
