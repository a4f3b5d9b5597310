package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("targets: [/dev/sg3]\nled:\n  confirm_delay: 250ms\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"/dev/sg3"}, cfg.Targets)
	assert.Equal(t, 4, cfg.Discovery.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.Discovery.CommandTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.LED.ConfirmDelay)
	assert.Equal(t, 1, cfg.LED.Retries())
	assert.Equal(t, 5*time.Second, cfg.LED.ConfirmTimeout)
	assert.Equal(t, 30*time.Second, cfg.LED.LocateDuration)
	assert.Equal(t, "0.0.0.0:9945", cfg.Exporter.Listen)
	assert.Equal(t, 20*time.Second, cfg.Exporter.ScrapeTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Audit.DBPath)
}

func TestParseZeroRetriesKept(t *testing.T) {
	cfg, err := Parse([]byte("led:\n  confirm_retries: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.LED.Retries())
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"discovery:\n  concurrency: -1\n":     "discovery.concurrency",
		"discovery:\n  command_timeout: -1s\n": "discovery.command_timeout",
		"led:\n  confirm_retries: -2\n":       "led.confirm_retries",
		"exporter:\n  listen: nocolon\n":      "exporter.listen",
		"exporter:\n  listen: ':99999'\n":     "invalid port",
		"logging:\n  level: loud\n":           "logging.level",
	}
	for doc, want := range cases {
		_, err := Parse([]byte(doc))
		require.Error(t, err, doc)
		assert.Contains(t, err.Error(), want, doc)
	}

	_, err := Parse([]byte("targets: {"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("exporter:\n  listen: 127.0.0.1:9100\naudit:\n  db_path: /var/lib/jbod/audit.db\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, "127.0.0.1:9100", cfg.Exporter.Listen)
	assert.Equal(t, "/var/lib/jbod/audit.db", cfg.Audit.DBPath)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())
	if _, err := os.Stat("/etc/jbod/config.yaml"); err == nil {
		t.Skip("system configuration present")
	}

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Path)
	assert.Equal(t, Default(), cfg)
}

func TestDefaultIsACopy(t *testing.T) {
	a := Default()
	*a.LED.ConfirmRetries = 5
	assert.Equal(t, 1, Default().LED.Retries())
}

// chdir changes the working directory for the duration of the test,
// standing in for testing.T.Chdir on toolchains older than Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
