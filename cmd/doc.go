// Package cmd provides the command-line interface for volki.
//
// # Available Commands
//
//   - serve: discover routes under a root and serve them
//   - routes: print the discovered route table, optionally on every change
//   - config show: print the effective configuration
//   - config validate: report configuration errors and warnings
//   - version: print build information
//
// # Command Examples
//
//	// Serve ./site on port 8080 with metrics
//	volki serve ./site -p 8080 --metrics
//
//	// Route table as JSON
//	volki routes -o json
//
//	// Fail CI on configuration warnings
//	volki config validate --strict
//
// # Configuration Integration
//
// Configuration is resolved per invocation in order of precedence:
//
//  1. Command-line flags (highest priority)
//  2. Environment variables (VOLKI_SERVER_PORT, VOLKI_LOGGING_LEVEL, ...)
//  3. Configuration file: --config, else VOLKI_CONFIG_FILE, else .volki.yml
//  4. Default values (lowest priority)
package cmd
