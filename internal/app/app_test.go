package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"rosterbot/internal/config"
	"rosterbot/internal/message"
	"rosterbot/internal/models"
	"rosterbot/internal/plugin"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir:      dir,
		DBDriver:     "sqlite",
		Transport:    config.TransportConsole,
		FuzzyCutoff:  0.75,
		Admins:       []string{"+1 555 000 9999"},
		CommandsFile: filepath.Join(dir, "commands.yaml"),
	}
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func writeOverlay(t *testing.T, cfg *config.Config, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(cfg.CommandsFile, []byte(body), 0o644))
}

func TestNew(t *testing.T) {
	cfg := testConfig(t)
	a := newApp(t, cfg)

	for _, name := range []string{"register", "edit", "delete", "help", "reload"} {
		_, ok := a.Registry.Resolve(name)
		assert.True(t, ok, name)
	}
	assert.Equal(t, models.RoleAdmin, a.Authorize("+15550009999"))
	assert.Equal(t, models.RoleUser, a.Authorize("+15550000001"))

	reply, ok := a.Bot.Handle(context.Background(), message.Envelope{Sender: "+15550000001", Body: "register Jane Doe", Timestamp: 1})
	require.True(t, ok)
	assert.Contains(t, reply.Text, "Welcome, Jane Doe")
	assert.FileExists(t, cfg.DatabasePath())
}

func TestNew_Overlay(t *testing.T) {
	cfg := testConfig(t)
	writeOverlay(t, cfg, "disabled: [skills]\naliases:\n  register: [enlist]\n")
	a := newApp(t, cfg)

	_, ok := a.Registry.Resolve("skills")
	assert.False(t, ok)
	name, ok := a.Registry.Canonical("enlist")
	require.True(t, ok)
	assert.Equal(t, "register", name)
	_, ok = a.Registry.Resolve("sign up")
	assert.True(t, ok, "built-in aliases survive the overlay")
}

func TestNew_DuplicateAliasIsFatal(t *testing.T) {
	cfg := testConfig(t)
	writeOverlay(t, cfg, "aliases:\n  register: [delete]\n")

	_, err := New(cfg, zerolog.Nop())
	var dup *plugin.DuplicateAliasError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "delete", dup.Alias)
}

func TestReload(t *testing.T) {
	cfg := testConfig(t)
	a := newApp(t, cfg)
	ctx := context.Background()

	require.NoError(t, a.Registry.Disable("whoami"))
	require.NoError(t, a.Reload(ctx))
	_, ok := a.Registry.Resolve("whoami")
	assert.True(t, ok, "reload starts from a clean registry")

	writeOverlay(t, cfg, "disabled: [whoami]\n")
	require.NoError(t, a.Reload(ctx))
	_, ok = a.Registry.Resolve("whoami")
	assert.False(t, ok)

	// a broken overlay keeps the previous one
	writeOverlay(t, cfg, "aliases:\n  edit: [register]\n")
	var dup *plugin.DuplicateAliasError
	require.ErrorAs(t, a.Reload(ctx), &dup)
	_, ok = a.Registry.Resolve("whoami")
	assert.False(t, ok)
	name, ok := a.Registry.Canonical("register")
	require.True(t, ok)
	assert.Equal(t, "register", name)
}

func TestReload_AdminCommand(t *testing.T) {
	cfg := testConfig(t)
	a := newApp(t, cfg)
	writeOverlay(t, cfg, "disabled: [available]\n")

	reply, ok := a.Bot.Handle(context.Background(), message.Envelope{Sender: "+15550009999", Body: "reload"})
	require.True(t, ok)
	assert.Contains(t, reply.Text, "Reloaded")
	_, found := a.Registry.Resolve("available")
	assert.False(t, found)

	reply, ok = a.Bot.Handle(context.Background(), message.Envelope{Sender: "+15550000001", Body: "reload"})
	require.True(t, ok)
	assert.Equal(t, "You don't have permission to use that command.", reply.Text)
}

func TestWatchOverlay(t *testing.T) {
	cfg := testConfig(t)
	a := newApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.WatchOverlay(ctx) }()

	// the watcher may not be subscribed yet, so keep rewriting until it reacts
	require.Eventually(t, func() bool {
		writeOverlay(t, cfg, "disabled: [help]\n")
		_, ok := a.Registry.Resolve("help")
		return !ok
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchOverlay_NoFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.CommandsFile = ""
	a := newApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, a.WatchOverlay(ctx))
}
