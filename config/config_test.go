package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikz/localrmsd/align"
	"github.com/tikz/localrmsd/pdb"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Window)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, pdb.DefaultRCSBURL, cfg.RCSBURL)
	assert.Equal(t, "localrmsd.db", cfg.DBPath)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, align.AskCaller, cfg.Policy())
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestPriority(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "localrmsd.yaml")
	require.NoError(t, os.WriteFile(file, []byte("window: 7\nworkers: 3\nlog_level: debug\nhttp_timeout: 5s\n"), 0o644))

	t.Setenv("LOCALRMSD_WORKERS", "6")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("window", 5, "")
	fs.String("on-incompatible", "ask", "")
	fs.Bool("plot", false, "")
	require.NoError(t, fs.Parse([]string{"--on-incompatible=continue"}))

	v := New()
	require.NoError(t, BindFlags(v, fs))

	cfg, err := Load(v, file)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Window, "file beats an unset flag default")
	assert.Equal(t, 6, cfg.Workers, "environment beats file")
	assert.Equal(t, align.Continue, cfg.Policy(), "set flag beats everything")
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	bad := *cfg
	bad.Window = 0
	bad.Workers = -1
	bad.OnIncompatible = "maybe"
	bad.LogLevel = "loud"

	err = bad.Validate()
	require.Error(t, err)
	for _, s := range []string{"window", "workers", "on_incompatible", "log_level"} {
		assert.Contains(t, err.Error(), s)
	}

	t.Setenv("LOCALRMSD_WINDOW", "0")
	_, err = Load(New(), "")
	assert.Error(t, err)
}

func TestMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
