package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/hastewatch/internal/status"
	"github.com/agentstation/hastewatch/pkg/lifecycle"
	"github.com/agentstation/hastewatch/pkg/modulemap"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	isolate(t)
	nop := zerolog.Nop()
	app, err := New("1.0.0", "abc123", "2026-01-01", "test",
		WithConfig(&Config{
			IndexesFile: filepath.Join(t.TempDir(), "missing.yaml"),
			LogFormat:   "json",
			LogOutput:   "stderr",
			LogLevel:    "error",
		}),
		WithLogger(&nop),
	)
	require.NoError(t, err)
	return app
}

// run executes args against a fresh root command and returns stdout.
func run(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := app.createRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestApp_New(t *testing.T) {
	app := newTestApp(t)

	assert.Equal(t, "1.0.0", app.Version())
	assert.Equal(t, "abc123", app.Commit())
	assert.Equal(t, "2026-01-01", app.Date())
	assert.Equal(t, "test", app.BuiltBy())
	assert.NotNil(t, app.Logger())
	assert.NotNil(t, app.Config())
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, newTestApp(t), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hastewatch 1.0.0")
	assert.Contains(t, out, "commit:   abc123")
}

func startStatus(t *testing.T, state status.StateFunc) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := status.Listen(ctx, status.Config{Host: "127.0.0.1", Port: 0}, state, nil)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		srv.Close()
		<-done
	})
	return srv.Addr().String()
}

func TestStatusCommand(t *testing.T) {
	addr := startStatus(t, func() lifecycle.State { return lifecycle.Ready })

	out, err := run(t, newTestApp(t), "status", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "ready\n", out)
}

func TestStatusCommandWait(t *testing.T) {
	var ready atomic.Bool
	addr := startStatus(t, func() lifecycle.State {
		if ready.Load() {
			return lifecycle.Ready
		}
		return lifecycle.Updating
	})
	time.AfterFunc(200*time.Millisecond, func() { ready.Store(true) })

	out, err := run(t, newTestApp(t), "status", "--addr", addr, "--wait", "5s")
	require.NoError(t, err)
	assert.Equal(t, "ready\n", out)
}

func TestStatusCommandWaitTimesOut(t *testing.T) {
	addr := startStatus(t, func() lifecycle.State { return lifecycle.Starting })

	out, err := run(t, newTestApp(t), "status", "--addr", addr, "--wait", "300ms")
	require.NoError(t, err)
	assert.Equal(t, "starting\n", out)
}

func TestStatusCommandNoServer(t *testing.T) {
	_, err := run(t, newTestApp(t), "status", "--addr", "127.0.0.1:1")
	require.Error(t, err)
}

func TestStatusAddrFromConfig(t *testing.T) {
	app := newTestApp(t)
	app.config.Host = "10.0.0.1"
	app.config.Port = 7001
	assert.Equal(t, "10.0.0.1:7001", app.statusAddr())

	app.config.Host = ""
	app.config.Port = 0
	assert.Equal(t, "127.0.0.1:5622", app.statusAddr())
}

func TestBuildCommand(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "lib", "Foo.js"), []byte("/**\n * @providesModule Foo\n */\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("docs"), 0o644))

	indexes := filepath.Join(dir, "hastewatch.yaml")
	require.NoError(t, os.WriteFile(indexes, []byte(strings.Join([]string{
		"indexes:",
		"  - name: web",
		"    roots: [src]",
		"    cache_file: cache/web.map",
		"",
	}, "\n")), 0o644))

	out, err := run(t, newTestApp(t), "build", "--indexes", indexes)
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(out), "resources")
	assert.Contains(t, out, "web")

	m, _, err := modulemap.ReadFile(filepath.Join(dir, "cache", "web.map"))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
	r, ok := m.Lookup(filepath.Join(root, "lib", "Foo.js"))
	require.True(t, ok)
	assert.Equal(t, "Foo", r.ID)
}

func TestBuildCommandSkipDirs(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "gen-out"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Foo.js"), []byte("/** @providesModule Foo */"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "gen-out", "Gen.js"), []byte("/** @providesModule Gen */"), 0o644))

	indexes := filepath.Join(dir, "hastewatch.yaml")
	require.NoError(t, os.WriteFile(indexes, []byte(strings.Join([]string{
		"skip_dirs: [\"gen-*\"]",
		"indexes:",
		"  - roots: [src]",
		"    cache_file: web.map",
		"",
	}, "\n")), 0o644))

	_, err := run(t, newTestApp(t), "build", "--indexes", indexes)
	require.NoError(t, err)

	m, _, err := modulemap.ReadFile(filepath.Join(dir, "web.map"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Foo"}, m.IDs())
}

func TestBuildCommandMissingIndexes(t *testing.T) {
	_, err := run(t, newTestApp(t), "build")
	require.Error(t, err)
}

func TestSetupCommandAppliesChangedFlags(t *testing.T) {
	app := newTestApp(t)
	app.config.Port = 7001

	_, err := run(t, app, "version", "--host", "0.0.0.0", "--max-processes", "2")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", app.config.Host)
	assert.Equal(t, 2, app.config.MaxProcesses)
	assert.Equal(t, 7001, app.config.Port, "unset flags keep the loaded value")
}

func TestShutdownWithoutServer(t *testing.T) {
	require.NoError(t, newTestApp(t).Shutdown(context.Background()))
}
