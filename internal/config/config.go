// Package config loads volki configuration using Viper, from a YAML file,
// VOLKI_ prefixed environment variables and command-line flags.
//
// Every key has a default registered through SetDefaults, so environment
// overrides apply even when no file is present. Load validates the result
// and fails fast on the first invalid value; ValidateConfigWithDetails
// reports every problem with suggestions.
package config

import (
	"fmt"
	"net"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/volki/internal/http11"
	"github.com/conneroisu/volki/internal/router"
	"github.com/conneroisu/volki/internal/scanner"
	"github.com/conneroisu/volki/internal/server"
)

// EnvPrefix is the prefix of environment overrides, e.g. VOLKI_SERVER_PORT.
const EnvPrefix = "VOLKI"

// FileName is the config file looked up in the working directory.
const FileName = ".volki"

type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server" json:"server"`
	Security SecurityConfig `mapstructure:"security" yaml:"security" json:"security"`
	Routes   RoutesConfig   `mapstructure:"routes" yaml:"routes" json:"routes"`
	TLS      TLSConfig      `mapstructure:"tls" yaml:"tls" json:"tls"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging" json:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host" json:"host"`
	Port            int           `mapstructure:"port" yaml:"port" json:"port"`
	Workers         int           `mapstructure:"workers" yaml:"workers" json:"workers"`
	Root            string        `mapstructure:"root" yaml:"root" json:"root"`
	PublicDir       string        `mapstructure:"public_dir" yaml:"public_dir" json:"public_dir"`
	// ShutdownTimeout bounds the drain of open connections on shutdown.
	// Zero means security.keep_alive_timeout.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// PublicPath returns the static file directory, resolved against Root.
func (s ServerConfig) PublicPath() string {
	if filepath.IsAbs(s.PublicDir) {
		return s.PublicDir
	}
	return filepath.Join(s.Root, s.PublicDir)
}

type SecurityConfig struct {
	MaxHeaderSize       int              `mapstructure:"max_header_size" yaml:"max_header_size" json:"max_header_size"`
	MaxBodySize         int64            `mapstructure:"max_body_size" yaml:"max_body_size" json:"max_body_size"`
	MaxURILength        int              `mapstructure:"max_uri_length" yaml:"max_uri_length" json:"max_uri_length"`
	ReadTimeout         time.Duration    `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout        time.Duration    `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	KeepAliveTimeout    time.Duration    `mapstructure:"keep_alive_timeout" yaml:"keep_alive_timeout" json:"keep_alive_timeout"`
	HandshakeTimeout    time.Duration    `mapstructure:"handshake_timeout" yaml:"handshake_timeout" json:"handshake_timeout"`
	MaxConnections      int              `mapstructure:"max_connections" yaml:"max_connections" json:"max_connections"`
	MaxConnectionsPerIP int              `mapstructure:"max_connections_per_ip" yaml:"max_connections_per_ip" json:"max_connections_per_ip"`
	GlobalRateLimit     *RateLimitConfig `mapstructure:"global_rate_limit" yaml:"global_rate_limit,omitempty" json:"global_rate_limit,omitempty"`
}

// RateLimitConfig admits Requests per Window for each client.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests" yaml:"requests" json:"requests"`
	Window   time.Duration `mapstructure:"window" yaml:"window" json:"window"`
}

// Limits returns the parser limits and the connection budget.
func (s SecurityConfig) Limits() (http11.Limits, server.Budget) {
	limits := http11.Limits{
		MaxHeaderSize: s.MaxHeaderSize,
		MaxBodySize:   s.MaxBodySize,
		MaxURILength:  s.MaxURILength,
	}
	budget := server.Budget{
		ReadTimeout:         s.ReadTimeout,
		WriteTimeout:        s.WriteTimeout,
		KeepAliveTimeout:    s.KeepAliveTimeout,
		HandshakeTimeout:    s.HandshakeTimeout,
		MaxConnections:      s.MaxConnections,
		MaxConnectionsPerIP: s.MaxConnectionsPerIP,
	}
	return limits, budget
}

// RateLimit returns the global rate limit, or nil when none is set.
func (s SecurityConfig) RateLimit() *router.RateLimit {
	if s.GlobalRateLimit == nil || s.GlobalRateLimit.Requests == 0 {
		return nil
	}
	return &router.RateLimit{
		Requests: s.GlobalRateLimit.Requests,
		Window:   s.GlobalRateLimit.Window,
	}
}

type RoutesConfig struct {
	Extension string `mapstructure:"extension" yaml:"extension" json:"extension"`
	PagesDir  string `mapstructure:"pages_dir" yaml:"pages_dir" json:"pages_dir"`
	APIDir    string `mapstructure:"api_dir" yaml:"api_dir" json:"api_dir"`
}

// ScannerOptions returns the discovery options for these routes.
func (r RoutesConfig) ScannerOptions() scanner.Options {
	return scanner.Options{
		Extension: r.Extension,
		PagesDir:  r.PagesDir,
		APIDir:    r.APIDir,
	}
}

type TLSConfig struct {
	CertFile string `mapstructure:"cert_file" yaml:"cert_file" json:"cert_file"`
	KeyFile  string `mapstructure:"key_file" yaml:"key_file" json:"key_file"`
}

// Enabled reports whether TLS termination is configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Address   string `mapstructure:"address" yaml:"address" json:"address"`
	Namespace string `mapstructure:"namespace" yaml:"namespace" json:"namespace"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.workers", runtime.NumCPU())
	v.SetDefault("server.root", ".")
	v.SetDefault("server.public_dir", "public")
	v.SetDefault("server.shutdown_timeout", time.Duration(0))

	limits := http11.DefaultLimits()
	budget := server.DefaultBudget()
	v.SetDefault("security.max_header_size", limits.MaxHeaderSize)
	v.SetDefault("security.max_body_size", limits.MaxBodySize)
	v.SetDefault("security.max_uri_length", limits.MaxURILength)
	v.SetDefault("security.read_timeout", budget.ReadTimeout)
	v.SetDefault("security.write_timeout", budget.WriteTimeout)
	v.SetDefault("security.keep_alive_timeout", budget.KeepAliveTimeout)
	v.SetDefault("security.handshake_timeout", budget.HandshakeTimeout)
	v.SetDefault("security.max_connections", budget.MaxConnections)
	v.SetDefault("security.max_connections_per_ip", budget.MaxConnectionsPerIP)

	v.SetDefault("routes.extension", scanner.DefaultExtension)
	v.SetDefault("routes.pages_dir", scanner.DefaultPagesDir)
	v.SetDefault("routes.api_dir", scanner.DefaultAPIDir)

	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", "127.0.0.1:9090")
	v.SetDefault("metrics.namespace", "volki")
}

// Default returns the configuration with every default applied.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadFrom(v)
	if err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	config, err := Decode(v)
	if err != nil {
		return nil, err
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Decode unmarshals v with defaults applied and without validation.
func Decode(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.Server.Workers <= 0 {
		config.Server.Workers = runtime.NumCPU()
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = config.Security.KeepAliveTimeout
	}
	if config.Routes.Extension != "" && !strings.HasPrefix(config.Routes.Extension, ".") {
		config.Routes.Extension = "." + config.Routes.Extension
	}
	config.Logging.Level = strings.ToLower(config.Logging.Level)
	config.Logging.Format = strings.ToLower(config.Logging.Format)

	return &config, nil
}

// validateConfig returns the first validation error, if any.
func validateConfig(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if result.HasErrors() {
		err := result.Errors[0]
		return &err
	}
	return nil
}

// validatePath validates a directory path below the project root.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if filepath.IsAbs(cleanPath) {
		return fmt.Errorf("path should be relative: %s", path)
	}

	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	if err := checkDangerousChars(cleanPath, pathDangerousChars); err != nil {
		return err
	}

	return nil
}

var (
	pathDangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\x00"}
	hostDangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", " "}
)

func checkDangerousChars(s string, chars []string) error {
	for _, char := range chars {
		if strings.Contains(s, char) {
			return fmt.Errorf("contains dangerous character: %q", char)
		}
	}
	return nil
}
