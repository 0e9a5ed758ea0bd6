package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// syncBuffer is a bytes.Buffer safe for a command writing from another
// goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMain(m *testing.M) {
	os.Unsetenv("VOLKI_CONFIG_FILE")
	os.Exit(m.Run())
}

func executeContext(t *testing.T, ctx context.Context, out *syncBuffer, args ...string) error {
	t.Helper()

	root := NewRootCommand()
	root.SetOut(out)
	root.SetErr(&syncBuffer{})
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &syncBuffer{}
	err := executeContext(t, context.Background(), out, args...)
	return out.String(), err
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func project(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "pages/index.volki", "<h1>home</h1>")
	writeFile(t, root, "pages/users/[id].volki", "<p>{{id}}</p>")
	writeFile(t, root, "api/items/[id].volki", "")
	return root
}

func TestRoutesTable(t *testing.T) {
	root := project(t)

	out, err := execute(t, "routes", root)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"KIND", "PATTERN", "METHODS", "FILE"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"PAGE", "/", "GET,HEAD", "pages/index.volki"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"PAGE", "/users/[id]", "GET,HEAD", "pages/users/[id].volki"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"API", "/api/items/[id]", "GET,POST,PUT,DELETE,PATCH,OPTIONS", "api/items/[id].volki"}, strings.Fields(lines[3]))
}

func TestRoutesEmpty(t *testing.T) {
	out, err := execute(t, "routes", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No routes found.")
}

func TestRoutesJSON(t *testing.T) {
	out, err := execute(t, "routes", project(t), "-o", "json")
	require.NoError(t, err)

	var routes []RouteInfo
	require.NoError(t, json.Unmarshal([]byte(out), &routes))
	require.Len(t, routes, 3)
	assert.Equal(t, "page", routes[0].Kind)
	assert.Equal(t, "/users/[id]", routes[1].Pattern)
	assert.Equal(t, "api", routes[2].Kind)
	assert.Len(t, routes[2].Methods, 6)
}

func TestRoutesYAML(t *testing.T) {
	out, err := execute(t, "routes", project(t), "--output", "YAML")
	require.NoError(t, err)

	var routes []RouteInfo
	require.NoError(t, yaml.Unmarshal([]byte(out), &routes))
	require.Len(t, routes, 3)
	assert.Equal(t, "pages/index.volki", routes[0].File)
}

func TestRoutesInvalidFormat(t *testing.T) {
	_, err := execute(t, "routes", project(t), "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRoutesConflict(t *testing.T) {
	root := project(t)
	writeFile(t, root, "pages/users/[name].volki", "dup")

	_, err := execute(t, "routes", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[name].volki")
}

func TestRoutesWatch(t *testing.T) {
	root := project(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- executeContext(t, ctx, out, "routes", root, "--watch") }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "/users/[id]")
	}, 3*time.Second, 10*time.Millisecond)
	// Let the watcher register before changing files.
	time.Sleep(100 * time.Millisecond)

	writeFile(t, root, "pages/about.volki", "about")
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "/about")
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, out.String(), "change(s) detected")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("routes --watch did not stop")
	}
}

func TestConfigShow(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "volki.yml")
	require.NoError(t, os.WriteFile(file, []byte("server:\n  port: 8088\n"), 0o644))

	out, err := execute(t, "config", "show", "--config", file, "-o", "json")
	require.NoError(t, err)

	var cfg struct {
		Server struct {
			Port int    `json:"port"`
			Host string `json:"host"`
		} `json:"server"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestConfigShowEnvironmentOverride(t *testing.T) {
	t.Setenv("VOLKI_SERVER_PORT", "9099")

	out, err := execute(t, "config", "show")
	require.NoError(t, err)

	var cfg map[string]map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 9099, cfg["server"]["port"])
}

func TestConfigShowMissingFile(t *testing.T) {
	_, err := execute(t, "config", "show", "--config", filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		strict  bool
		wantErr bool
		want    string
	}{
		{"valid", "server:\n  port: 8080\n", false, false, "Configuration is valid."},
		{"invalid port", "server:\n  port: 70000\n", false, true, "server.port"},
		{"warning", "server:\n  port: 80\n", false, false, "with 1 warnings"},
		{"strict warning", "server:\n  port: 80\n", true, true, "server.port"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := filepath.Join(dir, strings.Repeat("c", i+1)+".yml")
			require.NoError(t, os.WriteFile(file, []byte(tt.content), 0o644))

			args := []string{"config", "validate", "--config", file}
			if tt.strict {
				args = append(args, "--strict")
			}
			out, err := execute(t, args...)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "volki "))
	assert.Contains(t, out, "Go: ")

	out, err = execute(t, "version", "--short")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))

	out, err = execute(t, "version", "-o", "json")
	require.NoError(t, err)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")
}

func TestServeStartsAndStops(t *testing.T) {
	root := project(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- executeContext(t, ctx, out, "serve", root, "--port", "0", "--shutdown-timeout", "1s")
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Serving")
	}, 3*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "(8 routes)")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.Contains(t, out.String(), "Server stopped")
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	_, err := execute(t, "serve", project(t), "--port", "70000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateFormatWithSuggestion(t *testing.T) {
	formats := []string{"table", "json", "yaml"}

	assert.NoError(t, ValidateFormatWithSuggestion("json", formats))
	assert.NoError(t, ValidateFormatWithSuggestion("TABLE", formats))

	err := ValidateFormatWithSuggestion("jsno", formats)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "json"`)

	err = ValidateFormatWithSuggestion("csv", formats)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("yaml", "yaml"))
	assert.Equal(t, 2, levenshtein("jsno", "json"))
	assert.Equal(t, 2, levenshtein("xml", "yaml"))
	assert.Equal(t, 4, levenshtein("", "json"))
}
