// Package config loads agent connection settings from TOML.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/agentwire/logging"
	"github.com/vinayprograms/agentwire/telemetry"
	"github.com/vinayprograms/agentwire/transport"
)

// Config is the full configuration file.
type Config struct {
	// Transport selects the backend: "stdio", "http", or "websocket".
	Transport string `toml:"transport"`

	// RequestTimeout bounds each request. Zero disables the timeout.
	RequestTimeout duration `toml:"request_timeout"`

	// MaxFrameSize limits inbound frame size in bytes. Zero uses the default.
	MaxFrameSize int `toml:"max_frame_size"`

	Agent     AgentConfig     `toml:"agent"`
	HTTP      HTTPConfig      `toml:"http"`
	WebSocket WebSocketConfig `toml:"websocket"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// AgentConfig describes the subprocess for the stdio transport.
type AgentConfig struct {
	Command string            `toml:"command"`
	Args    []string          `toml:"args"`
	Dir     string            `toml:"dir"`
	Env     map[string]string `toml:"env"`
}

// HTTPConfig describes the remote endpoint for the HTTP transport.
type HTTPConfig struct {
	BaseURL string            `toml:"base_url"`
	Headers map[string]string `toml:"headers"`
}

// WebSocketConfig describes the endpoint for the WebSocket transport.
type WebSocketConfig struct {
	URL          string   `toml:"url"`
	PingInterval duration `toml:"ping_interval"`
}

// LoggingConfig controls diagnostic output.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// TelemetryConfig controls event export.
type TelemetryConfig struct {
	Protocol string `toml:"protocol"` // http, file, noop
	Endpoint string `toml:"endpoint"`
}

// duration lets TOML carry values like "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Transport: "stdio",
		Logging:   LoggingConfig{Level: "info"},
		Telemetry: TelemetryConfig{Protocol: "noop"},
	}
}

// Load reads and validates a TOML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected transport has what it needs.
func (c *Config) Validate() error {
	switch c.Transport {
	case "stdio":
		if c.Agent.Command == "" {
			return fmt.Errorf("stdio transport requires agent.command")
		}
	case "http":
		if c.HTTP.BaseURL == "" {
			return fmt.Errorf("http transport requires http.base_url")
		}
	case "websocket":
		if c.WebSocket.URL == "" {
			return fmt.Errorf("websocket transport requires websocket.url")
		}
	default:
		return fmt.Errorf("unknown transport %q (expected stdio, http, or websocket)", c.Transport)
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}

	switch c.Telemetry.Protocol {
	case "", "noop", "file", "http":
	default:
		return fmt.Errorf("unknown telemetry protocol %q", c.Telemetry.Protocol)
	}
	return nil
}

// Logger builds a logger at the configured level.
func (c *Config) Logger() *logging.Logger {
	log := logging.New()
	switch c.Logging.Level {
	case "debug":
		log.SetLevel(logging.LevelDebug)
	case "warn":
		log.SetLevel(logging.LevelWarn)
	case "error":
		log.SetLevel(logging.LevelError)
	default:
		log.SetLevel(logging.LevelInfo)
	}
	return log
}

// BuildClient assembles a client for the configured transport.
func (c *Config) BuildClient() (*transport.Client, error) {
	log := c.Logger()

	exp, err := telemetry.NewExporter(c.Telemetry.Protocol, c.Telemetry.Endpoint)
	if err != nil {
		return nil, err
	}

	base := transport.DefaultConfig()
	base.RequestTimeout = c.RequestTimeout.Duration
	if c.MaxFrameSize > 0 {
		base.MaxFrameSize = c.MaxFrameSize
	}
	base.Logger = log

	opts := []transport.ClientOption{
		transport.WithLogger(log),
		transport.WithTelemetry(exp),
	}

	switch c.Transport {
	case "stdio":
		return transport.NewStdioClient(transport.StdioConfig{
			Config:  base,
			Command: c.Agent.Command,
			Args:    c.Agent.Args,
			Dir:     c.Agent.Dir,
			Env:     c.Agent.Env,
		}, opts...), nil
	case "http":
		return transport.NewHTTPClient(transport.HTTPConfig{
			Config:  base,
			BaseURL: c.HTTP.BaseURL,
			Headers: c.HTTP.Headers,
		}, opts...), nil
	case "websocket":
		wcfg := transport.DefaultWebSocketConfig(c.WebSocket.URL)
		wcfg.Config = base
		if c.WebSocket.PingInterval.Duration > 0 {
			wcfg.PingInterval = c.WebSocket.PingInterval.Duration
		}
		return transport.NewWebSocketClient(wcfg, opts...), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", c.Transport)
	}
}
