package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/conneroisu/volki/internal/logging"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		writeIssues(&builder, vr.Errors)
		builder.WriteString("\n")
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		writeIssues(&builder, vr.Warnings)
	}

	return builder.String()
}

func writeIssues(builder *strings.Builder, issues []ValidationError) {
	for _, issue := range issues {
		builder.WriteString(fmt.Sprintf("  - %s: %s\n", issue.Field, issue.Message))
		for _, suggestion := range issue.Suggestions {
			builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
		}
	}
}

func (vr *ValidationResult) addError(field string, value interface{}, message string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, message string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateServerConfigDetails(&config.Server, result)
	validateSecurityConfigDetails(&config.Security, result)
	validateRoutesConfigDetails(&config.Routes, result)
	validateTLSConfigDetails(&config.TLS, &config.Server, result)
	validateLoggingConfigDetails(&config.Logging, result)
	validateMetricsConfigDetails(&config.Metrics, &config.Server, result)

	result.Valid = !result.HasErrors()

	return result
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	// Port 0 lets the system assign one.
	if config.Port < 0 || config.Port > 65535 {
		result.addError("server.port", config.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Use a port between 1024-65535 for non-privileged access",
			"Port 0 allows the system to assign an available port",
		)
	} else if config.Port > 0 && config.Port < 1024 {
		result.addWarning("server.port", config.Port,
			fmt.Sprintf("port %d is privileged and may require elevated permissions", config.Port),
			"Consider using a port above 1024 for development",
		)
	}

	if config.Host == "" {
		result.addError("server.host", config.Host, "host cannot be empty",
			"Use '127.0.0.1' for local development",
			"Use '0.0.0.0' to bind to all interfaces",
		)
	} else if err := validateHostname(config.Host); err != nil {
		result.addError("server.host", config.Host, err.Error(),
			"Use '127.0.0.1' for local development",
			"Use a valid IP address or hostname",
		)
	}

	if config.Workers < 0 {
		result.addError("server.workers", config.Workers, "workers cannot be negative",
			"Leave unset to use one accept loop per CPU",
		)
	}

	if config.Root == "" {
		result.addError("server.root", config.Root, "root cannot be empty",
			"Use '.' to serve the current directory",
		)
	} else if err := checkDangerousChars(config.Root, pathDangerousChars); err != nil {
		result.addError("server.root", config.Root, err.Error())
	}

	if err := validatePath(config.PublicDir); err != nil {
		result.addError("server.public_dir", config.PublicDir, err.Error(),
			"Use a directory below the root such as 'public'",
			"Avoid parent directory references (..)",
		)
	}

	if config.ShutdownTimeout < 0 {
		result.addError("server.shutdown_timeout", config.ShutdownTimeout, "shutdown timeout cannot be negative")
	}
}

func validateSecurityConfigDetails(config *SecurityConfig, result *ValidationResult) {
	if config.MaxHeaderSize <= 0 {
		result.addError("security.max_header_size", config.MaxHeaderSize, "max header size must be positive",
			"The default is 8192 bytes",
		)
	}
	if config.MaxBodySize <= 0 {
		result.addError("security.max_body_size", config.MaxBodySize, "max body size must be positive",
			"The default is 10485760 bytes (10 MiB)",
		)
	}
	if config.MaxURILength <= 0 {
		result.addError("security.max_uri_length", config.MaxURILength, "max URI length must be positive",
			"The default is 8192 bytes",
		)
	}

	timeouts := []struct {
		field string
		value interface{}
		ok    bool
	}{
		{"security.read_timeout", config.ReadTimeout, config.ReadTimeout > 0},
		{"security.write_timeout", config.WriteTimeout, config.WriteTimeout > 0},
		{"security.keep_alive_timeout", config.KeepAliveTimeout, config.KeepAliveTimeout > 0},
		{"security.handshake_timeout", config.HandshakeTimeout, config.HandshakeTimeout > 0},
	}
	for _, t := range timeouts {
		if !t.ok {
			result.addError(t.field, t.value, "timeout must be positive",
				"Use a duration such as '30s'",
			)
		}
	}

	if config.MaxConnections < 0 {
		result.addError("security.max_connections", config.MaxConnections, "max connections cannot be negative",
			"Use 0 to disable the limit",
		)
	}
	if config.MaxConnectionsPerIP < 0 {
		result.addError("security.max_connections_per_ip", config.MaxConnectionsPerIP, "max connections per IP cannot be negative",
			"Use 0 to disable the limit",
		)
	}
	if config.MaxConnections > 0 && config.MaxConnectionsPerIP > config.MaxConnections {
		result.addWarning("security.max_connections_per_ip", config.MaxConnectionsPerIP,
			"per-IP limit exceeds the global connection limit and never applies",
		)
	}
	if config.MaxConnections == 0 {
		result.addWarning("security.max_connections", config.MaxConnections,
			"connection count is unbounded",
			"Set a limit to bound memory and file descriptors",
		)
	}

	if rl := config.GlobalRateLimit; rl != nil {
		if rl.Requests < 0 {
			result.addError("security.global_rate_limit.requests", rl.Requests, "requests cannot be negative")
		}
		if rl.Requests > 0 && rl.Window <= 0 {
			result.addError("security.global_rate_limit.window", rl.Window, "window must be positive",
				"Use a duration such as '1m'",
			)
		}
	}
}

var extensionRe = regexp.MustCompile(`^\.[A-Za-z0-9_-]+$`)

func validateRoutesConfigDetails(config *RoutesConfig, result *ValidationResult) {
	if !extensionRe.MatchString(config.Extension) {
		result.addError("routes.extension", config.Extension, "extension must be a dot followed by letters, digits, '-' or '_'",
			"The default is '.volki'",
		)
	}

	if err := validatePath(config.PagesDir); err != nil {
		result.addError("routes.pages_dir", config.PagesDir, err.Error(),
			"Use a directory below the root such as 'pages'",
		)
	}
	if err := validatePath(config.APIDir); err != nil {
		result.addError("routes.api_dir", config.APIDir, err.Error(),
			"Use a directory below the root such as 'api'",
		)
	}

	if config.PagesDir != "" && config.PagesDir == config.APIDir {
		result.addError("routes.api_dir", config.APIDir, "pages and API directories must differ")
	}
}

func validateTLSConfigDetails(config *TLSConfig, server *ServerConfig, result *ValidationResult) {
	if (config.CertFile == "") != (config.KeyFile == "") {
		result.addError("tls", config, "cert_file and key_file must be set together",
			"Set both files to enable TLS, or neither to serve plain HTTP",
		)
		return
	}

	if !config.Enabled() && !isLoopback(server.Host) {
		result.addWarning("server.host", server.Host, "serving plain HTTP on a non-loopback address",
			"Configure tls.cert_file and tls.key_file",
		)
	}
}

func validateLoggingConfigDetails(config *LoggingConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.addError("logging.level", config.Level, err.Error(),
			"Use one of: debug, info, warn, error",
		)
	}

	switch config.Format {
	case "", "text", "json":
	default:
		result.addError("logging.format", config.Format, fmt.Sprintf("unknown log format %q", config.Format),
			"Use 'text' or 'json'",
		)
	}
}

func validateMetricsConfigDetails(config *MetricsConfig, server *ServerConfig, result *ValidationResult) {
	if !config.Enabled {
		return
	}

	host, port, err := net.SplitHostPort(config.Address)
	if err != nil {
		result.addError("metrics.address", config.Address, err.Error(),
			"Use host:port, e.g. '127.0.0.1:9090'",
		)
		return
	}
	if port != "0" && config.Address == server.Addr() {
		result.addError("metrics.address", config.Address, "metrics listener conflicts with the server address")
	}
	if !isLoopback(host) {
		result.addWarning("metrics.address", config.Address, "metrics are exposed on a non-loopback address")
	}
}

// Helper validation functions

var hostnameRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	if err := checkDangerousChars(host, hostDangerousChars); err != nil {
		return err
	}

	if net.ParseIP(host) != nil {
		return nil
	}

	if !hostnameRe.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
