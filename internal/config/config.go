// Package config loads the host daemon's own configuration: which bus
// driver to open, where the datastore lives, how the HTTP/WebSocket
// telemetry server binds, and logging/capture options. This is distinct
// from internal/ecuconfig, which models the ECU's own validated,
// checksummed NVRAM-style settings record.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"candiag/internal/bus"
)

// Config is the top-level host daemon configuration, loaded from a single
// YAML file.
type Config struct {
	Bus struct {
		Type     string `yaml:"type"`
		Address  string `yaml:"address"`
		BaudRate int    `yaml:"baudRate"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"bus"`

	Diagnostics struct {
		ECUID         uint32 `yaml:"ecuId"`
		RequestMS     int    `yaml:"requestIntervalMs"`
		MaxPending    int    `yaml:"maxPending"`
	} `yaml:"diagnostics"`

	Logging struct {
		Directory string `yaml:"directory"`
		Sequence  bool   `yaml:"sequence"`
		Checksum  bool   `yaml:"checksum"`
	} `yaml:"logging"`

	Capture struct {
		Enabled   bool   `yaml:"enabled"`
		Directory string `yaml:"directory"`
	} `yaml:"capture"`

	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Datastore struct {
		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
		InfluxDB struct {
			URL    string `yaml:"url"`
			Org    string `yaml:"org"`
			Bucket string `yaml:"bucket"`
			Token  string `yaml:"token"`
		} `yaml:"influxdb"`
	} `yaml:"datastore"`
}

// Load reads and parses the YAML config file at filename.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", filename, err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", filename, err)
	}
	return &c, nil
}

// BusConfig builds the internal/bus driver configuration this host config
// describes.
func (c *Config) BusConfig() bus.Config {
	return bus.Config{
		Type:     c.Bus.Type,
		Address:  c.Bus.Address,
		BaudRate: c.Bus.BaudRate,
		Debug:    c.Bus.Debug,
	}
}

// Default returns a Config with the same conservative defaults the daemon
// would otherwise fall back to when no file is supplied.
func Default() Config {
	var c Config
	c.Bus.Type = "socketcan"
	c.Bus.Address = "can0"
	c.Diagnostics.ECUID = 1
	c.Diagnostics.RequestMS = 50
	c.Diagnostics.MaxPending = 16
	c.Logging.Directory = "."
	c.Server.Host = "0.0.0.0"
	c.Server.Port = 8080
	return c
}
