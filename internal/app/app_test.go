package app

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/volki/internal/config"
	"github.com/conneroisu/volki/internal/errors"
	"github.com/conneroisu/volki/internal/http11"
	"github.com/conneroisu/volki/internal/logging"
	"github.com/conneroisu/volki/internal/router"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func project(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "pages/index.volki", "<h1>home</h1>")
	writeFile(t, root, "pages/users/[id].volki", "<p>user {{id}}</p>")
	writeFile(t, root, "api/health.volki", "")
	writeFile(t, root, "api/items/[id].volki", "")
	writeFile(t, root, "public/style.css", "body{}")

	cfg := config.Default()
	cfg.Server.Root = root
	cfg.Server.Port = 0
	cfg.Server.Workers = 2
	cfg.Server.ShutdownTimeout = 2 * time.Second
	return cfg
}

func TestNewDiscoversAndRegisters(t *testing.T) {
	cfg := project(t)

	a, err := New(context.Background(), cfg, Options{Logger: logging.NewNopLogger()})
	require.NoError(t, err)

	assert.Len(t, a.Routes, 4)
	// Pages register GET and HEAD as one route; each API file registers
	// one route per method.
	assert.Equal(t, 2+2*6, a.Router.Len())
	assert.Nil(t, a.Metrics)
}

func TestNewReportsConflicts(t *testing.T) {
	cfg := project(t)
	writeFile(t, cfg.Server.Root, "pages/users/[name].volki", "dup")

	_, err := New(context.Background(), cfg, Options{Logger: logging.NewNopLogger()})
	require.Error(t, err)
	assert.Equal(t, errors.KindBadPattern, errors.KindOf(err))
	assert.Contains(t, err.Error(), "[id].volki")
	assert.Contains(t, err.Error(), "[name].volki")
}

func TestNewMissingTLSFiles(t *testing.T) {
	cfg := project(t)
	cfg.TLS.CertFile = "cert.pem"
	cfg.TLS.KeyFile = "key.pem"

	_, err := New(context.Background(), cfg, Options{Logger: logging.NewNopLogger()})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info(context.Background(), "hidden")
	logger.Warn(context.Background(), nil, "shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = NewLogger(config.LoggingConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
}

func get(t *testing.T, url string) (int, string, http.Header) {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body), resp.Header
}

func TestRunServesAndShutsDown(t *testing.T) {
	cfg := project(t)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Address = "127.0.0.1:0"

	bindings := router.Bindings{
		"api/health.volki": {
			API: map[http11.Method]router.APIHandler{
				http11.MethodGet: func(*http11.Request) (*http11.Response, error) {
					return http11.OK().Text("ok"), nil
				},
			},
		},
	}

	a, err := New(context.Background(), cfg, Options{Bindings: bindings, Logger: logging.NewNopLogger()})
	require.NoError(t, err)
	require.NotNil(t, a.Metrics)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.Server.Addr() != nil }, 2*time.Second, 5*time.Millisecond)
	base := "http://" + a.Server.Addr().String()

	status, body, header := get(t, base+"/")
	assert.Equal(t, 200, status)
	assert.Contains(t, body, "<h1>home</h1>")
	assert.True(t, strings.HasPrefix(header.Get("Server"), "volki"))

	status, body, _ = get(t, base+"/users/%3Cb%3E")
	assert.Equal(t, 200, status)
	assert.Contains(t, body, "user &lt;b&gt;")

	status, body, _ = get(t, base+"/api/health")
	assert.Equal(t, 200, status)
	assert.Equal(t, "ok", body)

	status, _, _ = get(t, base+"/api/items/7")
	assert.Equal(t, 501, status)

	status, body, header = get(t, base+"/style.css")
	assert.Equal(t, 200, status)
	assert.Equal(t, "body{}", body)
	assert.Contains(t, header.Get("Content-Type"), "text/css")

	status, _, _ = get(t, base+"/missing")
	assert.Equal(t, 404, status)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunDrainsWithinKeepAliveTimeout(t *testing.T) {
	cfg := project(t)
	cfg.Server.ShutdownTimeout = 0
	cfg.Security.ReadTimeout = 5 * time.Second
	cfg.Security.KeepAliveTimeout = 300 * time.Millisecond

	a, err := New(context.Background(), cfg, Options{Logger: logging.NewNopLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.Server.Addr() != nil }, 2*time.Second, 5*time.Millisecond)

	// A request stalled after its request line holds the connection busy.
	conn, err := net.Dial("tcp", a.Server.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = io.WriteString(conn, "GET / HTTP/1.1\r\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return a.Server.ActiveConnections() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
	case <-time.After(4 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
