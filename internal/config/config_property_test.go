//go:build property
// +build property

package config

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestConfigurationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("port validity follows the port range", prop.ForAll(
		func(port int) bool {
			cfg := Default()
			cfg.Server.Port = port

			valid := port >= 0 && port <= 65535
			return ValidateConfigWithDetails(cfg).Valid == valid
		},
		gen.IntRange(-1000, 70000),
	))

	properties.Property("Limits carries every security value", prop.ForAll(
		func(header, uri int, body int64, readMs int) bool {
			cfg := Default()
			cfg.Security.MaxHeaderSize = header
			cfg.Security.MaxURILength = uri
			cfg.Security.MaxBodySize = body
			cfg.Security.ReadTimeout = time.Duration(readMs) * time.Millisecond

			limits, budget := cfg.Security.Limits()
			return limits.MaxHeaderSize == header &&
				limits.MaxURILength == uri &&
				limits.MaxBodySize == body &&
				budget.ReadTimeout == cfg.Security.ReadTimeout &&
				budget.WriteTimeout == cfg.Security.WriteTimeout
		},
		gen.IntRange(1, 1<<20),
		gen.IntRange(1, 1<<16),
		gen.Int64Range(1, 1<<30),
		gen.IntRange(1, 60000),
	))

	properties.Property("non-positive limits are rejected", prop.ForAll(
		func(n int) bool {
			cfg := Default()
			cfg.Security.MaxHeaderSize = n
			return !ValidateConfigWithDetails(cfg).Valid
		},
		gen.IntRange(-1000, 0),
	))

	properties.Property("TLS files must be set together", prop.ForAll(
		func(cert, key bool) bool {
			cfg := Default()
			if cert {
				cfg.TLS.CertFile = "cert.pem"
			}
			if key {
				cfg.TLS.KeyFile = "key.pem"
			}
			return ValidateConfigWithDetails(cfg).Valid == (cert == key)
		},
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
