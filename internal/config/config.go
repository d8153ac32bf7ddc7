package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tidwall/jsonc"
)

// EnvPrefix namespaces every environment override
const EnvPrefix = "READINGROOM_"

// Duration is a time.Duration that reads "30s" style strings from both
// environment variables and the config file
type Duration time.Duration

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText renders the duration the way UnmarshalText reads it
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator.
// Each section maps onto one component's constructor options.
type Config struct {
	HTTP      HTTPConfig      `json:"http" envPrefix:"HTTP_"`
	WebSocket WebSocketConfig `json:"websocket" envPrefix:"WEBSOCKET_"`
	Session   SessionConfig   `json:"session" envPrefix:"SESSION_"`
	Cache     CacheConfig     `json:"cache" envPrefix:"CACHE_"`
	Provider  ProviderConfig  `json:"provider" envPrefix:"PROVIDER_"`
	RateLimit RateLimitConfig `json:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Activity  ActivityConfig  `json:"activity" envPrefix:"ACTIVITY_"`
	Log       LogConfig       `json:"log" envPrefix:"LOG_"`
}

type HTTPConfig struct {
	Host            string   `json:"host" env:"HOST"`
	Port            int      `json:"port" env:"PORT"`
	ReadTimeout     Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout Duration `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string `json:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// FUNCTIONAL DISCOVERY: WebSocket configuration optimized for classroom scenarios
type WebSocketConfig struct {
	PingInterval    Duration `json:"ping_interval" env:"PING_INTERVAL"`
	ReadTimeout     Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
	BufferSize      int      `json:"buffer_size" env:"BUFFER_SIZE"`
	MaxMessageBytes int64    `json:"max_message_bytes" env:"MAX_MESSAGE_BYTES"`
}

type SessionConfig struct {
	TTL           Duration `json:"ttl" env:"TTL"`
	SweepInterval Duration `json:"sweep_interval" env:"SWEEP_INTERVAL"`
}

type CacheConfig struct {
	SynthesisSize   int `json:"synthesis_size" env:"SYNTHESIS_SIZE"`
	TranslationSize int `json:"translation_size" env:"TRANSLATION_SIZE"`
}

// ProviderConfig selects the outbound gateway. An empty URL runs the built-in stub.
type ProviderConfig struct {
	GatewayURL       string   `json:"gateway_url" env:"GATEWAY_URL"`
	Timeout          Duration `json:"timeout" env:"TIMEOUT"`
	SynthesisTimeout Duration `json:"synthesis_timeout" env:"SYNTHESIS_TIMEOUT"`
}

type RateLimitConfig struct {
	PerMinute       int      `json:"per_minute" env:"PER_MINUTE"`
	Burst           int      `json:"burst" env:"BURST"`
	CleanupInterval Duration `json:"cleanup_interval" env:"CLEANUP_INTERVAL"`
}

type ActivityConfig struct {
	Enabled   bool   `json:"enabled" env:"ENABLED"`
	Path      string `json:"path" env:"PATH"`
	QueueSize int    `json:"queue_size" env:"QUEUE_SIZE"`
}

type LogConfig struct {
	Level  string `json:"level" env:"LEVEL"`
	Format string `json:"format" env:"FORMAT"`
}

// FUNCTIONAL DISCOVERY: Production-ready defaults based on classroom requirements
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(90 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		WebSocket: WebSocketConfig{
			PingInterval:    Duration(30 * time.Second),
			ReadTimeout:     Duration(60 * time.Second),
			WriteTimeout:    Duration(10 * time.Second),
			BufferSize:      100,
			MaxMessageBytes: 512 * 1024,
		},
		Session: SessionConfig{
			TTL:           Duration(3 * time.Hour),
			SweepInterval: Duration(5 * time.Minute),
		},
		Cache: CacheConfig{
			SynthesisSize:   500,
			TranslationSize: 1000,
		},
		Provider: ProviderConfig{
			Timeout:          Duration(30 * time.Second),
			SynthesisTimeout: Duration(60 * time.Second),
		},
		RateLimit: RateLimitConfig{
			PerMinute:       100,
			Burst:           20,
			CleanupInterval: Duration(time.Minute),
		},
		Activity: ActivityConfig{
			Enabled:   true,
			Path:      "./data/readingroom.db",
			QueueSize: 256,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate rejects settings that would fail at runtime
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(c.HTTP.Host != "", "http.host cannot be empty")
	// 0 picks a free port
	check(c.HTTP.Port >= 0 && c.HTTP.Port <= 65535, "http.port must be between 0 and 65535")
	check(c.HTTP.ReadTimeout > 0, "http.read_timeout must be positive")
	check(c.HTTP.WriteTimeout > 0, "http.write_timeout must be positive")
	check(c.HTTP.ShutdownTimeout > 0, "http.shutdown_timeout must be positive")

	check(c.WebSocket.PingInterval > 0, "websocket.ping_interval must be positive")
	check(c.WebSocket.ReadTimeout > c.WebSocket.PingInterval, "websocket.read_timeout must exceed ping_interval")
	check(c.WebSocket.WriteTimeout > 0, "websocket.write_timeout must be positive")
	check(c.WebSocket.BufferSize > 0, "websocket.buffer_size must be positive")
	check(c.WebSocket.MaxMessageBytes > 0, "websocket.max_message_bytes must be positive")

	check(c.Session.TTL > 0, "session.ttl must be positive")
	check(c.Session.SweepInterval > 0, "session.sweep_interval must be positive")

	check(c.Cache.SynthesisSize > 0, "cache.synthesis_size must be positive")
	check(c.Cache.TranslationSize > 0, "cache.translation_size must be positive")

	check(c.Provider.Timeout > 0, "provider.timeout must be positive")
	check(c.Provider.SynthesisTimeout > 0, "provider.synthesis_timeout must be positive")
	if c.Provider.GatewayURL != "" {
		check(strings.HasPrefix(c.Provider.GatewayURL, "http://") || strings.HasPrefix(c.Provider.GatewayURL, "https://"),
			"provider.gateway_url must be an http(s) URL")
	}

	check(c.RateLimit.PerMinute > 0, "rate_limit.per_minute must be positive")
	check(c.RateLimit.Burst > 0, "rate_limit.burst must be positive")
	check(c.RateLimit.CleanupInterval > 0, "rate_limit.cleanup_interval must be positive")

	if c.Activity.Enabled {
		check(c.Activity.Path != "", "activity.path cannot be empty when enabled")
		check(c.Activity.QueueSize > 0, "activity.queue_size must be positive")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of json, console", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Address returns host:port for the HTTP listener
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// ApplyEnv overlays READINGROOM_* environment variables onto c.
// Unset variables leave the current value in place.
func (c *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// ApplyFile overlays a JSON config file onto c. Comments and trailing commas are
// allowed; keys absent from the file leave the current value in place.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	dec := json.NewDecoder(strings.NewReader(string(jsonc.ToJSON(data))))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Load builds the runtime configuration.
// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment > defaults
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
