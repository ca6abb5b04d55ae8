package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"smartcrest/forward"
	"smartcrest/indicator"
	"smartcrest/metrics"
	"smartcrest/mqtt"
	"smartcrest/reader"
)

// Config is the main configuration structure for smartcrest.
type Config struct {
	// URL template; {} is replaced by the hex card identifier
	Endpoint string `yaml:"endpoint"`

	// API settings for the endpoint
	API forward.Config `yaml:"api"`

	// Reader configuration
	Reader reader.Config `yaml:"reader"`

	// MQTT connection settings
	MQTT mqtt.Config `yaml:"mqtt"`

	// Indicator configuration
	Indicator indicator.Config `yaml:"indicator"`

	// Prometheus endpoint
	Metrics metrics.Config `yaml:"metrics"`

	// General settings
	ClientID string `yaml:"client_id"`
	LogLevel string `yaml:"log_level"`
}

// LoadConfig reads and validates the YAML config at path.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.ClientID == "" {
		if host, err := os.Hostname(); err == nil {
			c.ClientID = host
		} else {
			c.ClientID = "smartcrest"
		}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Reader.Type == "" {
		c.Reader.Type = "pcsc"
	}
}

func (c *Config) validate() error {
	if err := forward.ValidateEndpoint(c.Endpoint); err != nil {
		return err
	}
	if _, err := c.Reader.CommandBytes(); err != nil {
		return err
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
