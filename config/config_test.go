package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv(EnvConfigFile, "")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, defaultBaseURL, cfg.BaseURL)
	assert.Equal(t, defaultTimeout, cfg.Timeout)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: http://cinema.local/api
showtime: "42"
timeout: 5s
log_level: debug
combos:
  - id: popcorn
    name: Popcorn
    price: "30000"
`), 0o644))
	t.Setenv("SEAT_CONSOLE_SHOWTIME", "43")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "http://cinema.local/api", cfg.BaseURL)
	assert.Equal(t, "43", cfg.ShowtimeID)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	require.Len(t, cfg.Combos, 1)
	assert.Equal(t, "popcorn", cfg.Combos[0].ID)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SEAT_CONSOLE_BASE_URL=http://dotenv.local\n"), 0o644))
	t.Setenv(EnvConfigFile, "")
	// Registered so the variable godotenv sets is removed after the test.
	t.Setenv("SEAT_CONSOLE_BASE_URL", "")
	require.NoError(t, os.Unsetenv("SEAT_CONSOLE_BASE_URL"))

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "http://dotenv.local", cfg.BaseURL)
}

func TestLoad_Errors(t *testing.T) {
	chdirTemp(t)

	_, err := Load("does-not-exist.yaml")
	assert.ErrorContains(t, err, "config.Load")

	t.Setenv(EnvConfigFile, "")
	t.Setenv("SEAT_CONSOLE_TIMEOUT", "soon")
	_, err = Load("")
	assert.ErrorContains(t, err, "SEAT_CONSOLE_TIMEOUT")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.BaseURL = "not a url"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Timeout = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Combos = []Combo{{Name: "no id"}}
	assert.Error(t, cfg.Validate())
}
