// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/fanout-gateway/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig        `toml:"server"`
	Upstream  UpstreamConfig      `toml:"upstream"`
	Log       LogConfig           `toml:"log"`
	Metrics   MetricsConfig       `toml:"metrics"`
	Upstreams []UpstreamDef       `toml:"upstreams"`
	Routes    map[string][]string `toml:"routes"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8080); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// UpstreamConfig holds outbound connection settings shared by every target.
type UpstreamConfig struct {
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds"`
	ReadTimeoutSeconds    int    `toml:"read_timeout_seconds"`
	DefaultScheme         string `toml:"default_scheme"`
	IdleConnections       int    `toml:"idle_connections"`
	FanoutWarnThreshold   int    `toml:"fanout_warn_threshold"`
}

// UpstreamDef declares one backend service the gateway may fan out to.
// Routes reference upstreams by name; an upstream referenced by several
// routes is still one backend with one transport handle.
type UpstreamDef struct {
	Name string `toml:"name"`
	Host string `toml:"host"`
	Port int    `toml:"port"`
	Path string `toml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/fanout-gateway/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0-65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.ConnectTimeoutSeconds < 0 {
		return fmt.Errorf("upstream.connect_timeout_seconds must be non-negative; got %d", c.Upstream.ConnectTimeoutSeconds)
	}
	if c.Upstream.ReadTimeoutSeconds < 0 {
		return fmt.Errorf("upstream.read_timeout_seconds must be non-negative; got %d", c.Upstream.ReadTimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Upstream.FanoutWarnThreshold < 0 {
		return fmt.Errorf("upstream.fanout_warn_threshold must be non-negative; got %d", c.Upstream.FanoutWarnThreshold)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Outbound scheme.
	switch c.Upstream.DefaultScheme {
	case "http", "https", "":
		// valid
	default:
		return fmt.Errorf("upstream.default_scheme must be http or https; got %q", c.Upstream.DefaultScheme)
	}

	if err := c.validateUpstreams(); err != nil {
		return err
	}
	if err := c.validateRoutes(); err != nil {
		return err
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/api", "/healthz", "/gateway/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// validateUpstreams checks the [[upstreams]] declarations.
func (c *Config) validateUpstreams() error {
	if len(c.Upstreams) == 0 {
		return fmt.Errorf("at least one [[upstreams]] entry is required")
	}
	seen := make(map[string]bool, len(c.Upstreams))
	for i, u := range c.Upstreams {
		if u.Name == "" {
			return fmt.Errorf("upstreams[%d]: name is required", i)
		}
		if seen[u.Name] {
			return fmt.Errorf("upstreams: duplicate name %q", u.Name)
		}
		seen[u.Name] = true
		if u.Host == "" {
			return fmt.Errorf("upstream %q: host is required", u.Name)
		}
		if u.Port < 1 || u.Port > 65535 {
			return fmt.Errorf("upstream %q: port must be 1-65535; got %d", u.Name, u.Port)
		}
		if u.Path != "" && u.Path[0] != '/' {
			return fmt.Errorf("upstream %q: path must start with '/'; got %q", u.Name, u.Path)
		}
	}
	return nil
}

// validateRoutes checks that every route names at least one declared
// upstream and names each at most once (aggregate entries are keyed by
// upstream name, so a duplicate would collapse).
func (c *Config) validateRoutes() error {
	if len(c.Routes) == 0 {
		return fmt.Errorf("at least one route is required")
	}
	declared := make(map[string]bool, len(c.Upstreams))
	for _, u := range c.Upstreams {
		declared[u.Name] = true
	}
	for key, names := range c.Routes {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("routes: empty route key")
		}
		if len(names) == 0 {
			return fmt.Errorf("route %q: target list must not be empty", key)
		}
		used := make(map[string]bool, len(names))
		for _, name := range names {
			if !declared[name] {
				return fmt.Errorf("route %q references unknown upstream %q", key, name)
			}
			if used[name] {
				return fmt.Errorf("route %q names upstream %q more than once", key, name)
			}
			used[name] = true
		}
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, timeouts, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key. Setting port=0
// in the config file therefore results in the default port (8080).
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Upstream.ConnectTimeoutSeconds == 0 {
		c.Upstream.ConnectTimeoutSeconds = 30
	}
	if c.Upstream.ReadTimeoutSeconds == 0 {
		c.Upstream.ReadTimeoutSeconds = 30
	}
	if c.Upstream.DefaultScheme == "" {
		c.Upstream.DefaultScheme = "http"
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Upstream.FanoutWarnThreshold == 0 {
		c.Upstream.FanoutWarnThreshold = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
