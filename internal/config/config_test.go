package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, TransportWhatsApp, cfg.Transport)
	assert.Equal(t, 0.75, cfg.FuzzyCutoff)
	assert.Empty(t, cfg.Admins)
	assert.Equal(t, filepath.Join("data", "rosterbot.db"), cfg.DatabasePath())
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("ROSTERBOT_DATA_DIR", "/var/lib/rosterbot")
	t.Setenv("ROSTERBOT_TRANSPORT", "Console")
	t.Setenv("ROSTERBOT_ADMINS", "+15550000001,+15550000002")
	t.Setenv("ROSTERBOT_PREFIXES", "@roster,!")
	t.Setenv("ROSTERBOT_FUZZY_CUTOFF", "0.8")
	t.Setenv("ROSTERBOT_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, TransportConsole, cfg.Transport)
	assert.Equal(t, []string{"+15550000001", "+15550000002"}, cfg.Admins)
	assert.Equal(t, []string{"@roster", "!"}, cfg.Prefixes)
	assert.Equal(t, 0.8, cfg.FuzzyCutoff)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
}

func TestLoadConfig_Invalid(t *testing.T) {
	for key, value := range map[string]string{
		"ROSTERBOT_TRANSPORT":    "telegram",
		"ROSTERBOT_DB_DRIVER":    "postgres",
		"ROSTERBOT_FUZZY_CUTOFF": "1.5",
		"ROSTERBOT_LOG_LEVEL":    "loud",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadOverlay(t *testing.T) {
	o, err := LoadOverlay("")
	require.NoError(t, err)
	assert.Empty(t, o.Disabled)

	o, err = LoadOverlay(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, o.Aliases)

	path := filepath.Join(t.TempDir(), "commands.yaml")
	require.NoError(t, os.WriteFile(path, []byte("disabled: [skills]\naliases:\n  register: [enlist, volunteer]\n"), 0o644))
	o, err = LoadOverlay(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"skills"}, o.Disabled)
	assert.Equal(t, map[string][]string{"register": {"enlist", "volunteer"}}, o.Aliases)

	require.NoError(t, os.WriteFile(path, []byte("disabled: {"), 0o644))
	_, err = LoadOverlay(path)
	assert.Error(t, err)
}
