package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/rw/internal/testutil"
)

func TestReadFiles_MergesInOrder(t *testing.T) {
	dir := t.TempDir()
	base := testutil.WriteFile(t, dir, "base.yaml", `
rw:
  address: 127.0.0.1
  port: 8080
rw.plugins:
  rw.www: true
`)
	local := testutil.WriteFile(t, dir, "local.toml", `
[rw]
port = 9000

[db]
url = "sqlite://"
`)
	extra := testutil.WriteFile(t, dir, "extra.json", `{"rw": {"debug": true}}`)

	settings, err := ReadFiles(base, local, extra)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", settings.String("rw", "address", ""))
	port, ok := settings.Get("rw", "port")
	require.True(t, ok)
	assert.EqualValues(t, 9000, port)
	assert.True(t, settings.Bool("rw", "debug", false))
	assert.True(t, settings.Bool("rw.plugins", "rw.www", false))
	assert.Equal(t, "sqlite://", settings.String("db", "url", ""))
	assert.Equal(t, []string{"db", "rw", "rw.plugins"}, settings.Categories())
}

func TestReadFiles_Errors(t *testing.T) {
	dir := t.TempDir()

	flat := testutil.WriteFile(t, dir, "flat.yaml", "debug: true\n")
	_, err := ReadFiles(flat)
	assert.ErrorIs(t, err, ErrInvalidCategory)

	ini := testutil.WriteFile(t, dir, "app.ini", "[rw]\n")
	_, err = ReadFiles(ini)
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	broken := testutil.WriteFile(t, dir, "broken.json", "{")
	_, err = ReadFiles(broken)
	assert.Error(t, err)

	_, err = ReadFiles(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyEnv(t *testing.T) {
	settings := Settings{
		"rw":         {"port": 8080, "debug": false, "address": "localhost", "ratio": 0.5},
		"rw.plugins": {"rw.www": true},
	}
	err := ApplyEnv(settings, "app", []string{
		"APP_RW__PORT=9090",
		"APP_RW__DEBUG=true",
		"APP_RW__ADDRESS=0.0.0.0",
		"APP_RW__RATIO=1.5",
		"APP_RW_PLUGINS__EXTRA=yes",
		"APP_NEW__KEY=value",
		"APP_NOSEPARATOR=x",
		"OTHER_RW__PORT=1",
		"garbage",
	})
	require.NoError(t, err)

	assert.Equal(t, 9090, settings["rw"]["port"])
	assert.Equal(t, true, settings["rw"]["debug"])
	assert.Equal(t, "0.0.0.0", settings["rw"]["address"])
	assert.Equal(t, 1.5, settings["rw"]["ratio"])
	assert.Equal(t, "yes", settings["rw.plugins"]["extra"])
	assert.Equal(t, "value", settings["new"]["key"])

	err = ApplyEnv(settings, "APP", []string{"APP_RW__PORT=eighty"})
	assert.ErrorIs(t, err, ErrInvalidEnvValue)
}

func TestSettings_Clone(t *testing.T) {
	s := Settings{"rw": {"port": 1}}
	c := s.Clone()
	c.Set("rw", "port", 2)
	c.Set("other", "x", true)
	assert.Equal(t, 1, s["rw"]["port"])
	assert.Nil(t, s.Category("other"))
	assert.Equal(t, 2, c["rw"]["port"])
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "app.yaml", "rw:\n  port: 1\n")

	changes := make(chan Settings, 16)
	w, err := NewWatcher([]string{path}, func(s Settings, err error) {
		if err != nil {
			return
		}
		select {
		case changes <- s:
		default:
		}
	}, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	testutil.WriteFile(t, dir, "unrelated.yaml", "x: {}\n")
	testutil.WriteFile(t, dir, "app.yaml", "rw:\n  port: 2\n")

	// a rewrite may be seen half-written first
	timeout := time.After(5 * time.Second)
	for seen := false; !seen; {
		select {
		case s := <-changes:
			port, _ := s.Get("rw", "port")
			seen = port == 2
		case <-timeout:
			t.Fatal("no change delivered")
		}
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestNewWatcher_NoFiles(t *testing.T) {
	_, err := NewWatcher(nil, func(Settings, error) {}, nil)
	assert.ErrorIs(t, err, ErrNoFilesToWatch)
}
