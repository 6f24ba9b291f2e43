package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CORSSERVE_HOST",
	"CORSSERVE_PORT",
	"CORSSERVE_ROOT",
	"CORSSERVE_DEBUG",
	"CORSSERVE_SHUTDOWN_TIMEOUT",
}

// clearEnv unsets every CORSSERVE_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		k := k // per-iteration copy (go directive < 1.22)
		if v, ok := os.LookupEnv(k); ok {
			t.Cleanup(func() { os.Setenv(k, v) })
		} else {
			t.Cleanup(func() { os.Unsetenv(k) })
		}
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, wd, cfg.Root)
	assert.False(t, cfg.Debug)
	assert.Equal(t, 10*time.Second, cfg.GetShutdownTimeout())
	assert.Equal(t, ":8000", cfg.Addr())
	assert.Equal(t, "0.0.0.0", cfg.DisplayHost())
}

func TestLoadPositionalPort(t *testing.T) {
	clearEnv(t)

	cfg, err := Load([]string{"9000"})
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
}

func TestLoadFlags(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load([]string{
		"-host", "127.0.0.1",
		"-port", "8123",
		"-dir", dir,
		"-debug",
		"-shutdown-timeout", "3s",
	})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 8123, cfg.Port)
	assert.Equal(t, dir, cfg.Root)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 3*time.Second, cfg.GetShutdownTimeout())
	assert.Equal(t, "127.0.0.1:8123", cfg.Addr())
}

func TestPositionalPortOverridesFlag(t *testing.T) {
	clearEnv(t)

	cfg, err := Load([]string{"-port", "8123", "9001"})
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Port)
}

func TestEnvironmentBelowFlags(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	os.Setenv("CORSSERVE_PORT", "7000")
	os.Setenv("CORSSERVE_ROOT", dir)
	os.Setenv("CORSSERVE_DEBUG", "true")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, dir, cfg.Root)
	assert.True(t, cfg.Debug)

	cfg, err = Load([]string{"-port", "7001"})
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Port)
}

func TestEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, "serve.env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"CORSSERVE_PORT=6000\nCORSSERVE_HOST=localhost\n"), 0o644))
	os.Setenv("CORSSERVE_PORT", "6001")

	cfg, err := Load([]string{"-env", envFile})
	require.NoError(t, err)
	assert.Equal(t, 6001, cfg.Port)
	assert.Equal(t, "localhost", cfg.Host)

	cfg, err = Load([]string{"-env=" + envFile, "6002"})
	require.NoError(t, err)
	assert.Equal(t, 6002, cfg.Port)
}

func TestMissingExplicitEnvFile(t *testing.T) {
	clearEnv(t)

	_, err := Load([]string{"-env", filepath.Join(t.TempDir(), "nope.env")})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestInvalidPorts(t *testing.T) {
	clearEnv(t)

	for _, args := range [][]string{
		{"http"},
		{"70000"},
		{"-port", "-1"},
	} {
		_, err := Load(args)
		assert.ErrorIs(t, err, ErrInvalidPort, "args %v", args)
	}

	os.Setenv("CORSSERVE_PORT", "eighty")
	_, err := Load(nil)
	assert.ErrorIs(t, err, ErrInvalidPort)
}

func TestInvalidRoot(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o644))

	_, err := Load([]string{"-dir", file})
	assert.ErrorIs(t, err, ErrInvalidRoot)

	_, err = Load([]string{"-dir", filepath.Join(dir, "missing")})
	assert.ErrorIs(t, err, ErrInvalidRoot)
}

func TestInvalidShutdownTimeout(t *testing.T) {
	clearEnv(t)

	_, err := Load([]string{"-shutdown-timeout", "soon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shutdown_timeout")
}

func TestTooManyArguments(t *testing.T) {
	clearEnv(t)

	_, err := Load([]string{"8000", "extra"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected arguments")
}

// chdir switches the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestMalformedDefaultEnvFileIsIgnored(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultEnvFile), []byte("FOO\nBAR=1\n"), 0o644))
	chdir(t, dir)

	cfg, err := Load(nil)
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, wd, cfg.Root)

	cfg, err = Load([]string{"9000"})
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
}

func TestDefaultEnvFileApplied(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultEnvFile), []byte("CORSSERVE_PORT=6100\n"), 0o644))
	chdir(t, dir)

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 6100, cfg.Port)
}

func TestMalformedExplicitEnvFile(t *testing.T) {
	clearEnv(t)
	envFile := filepath.Join(t.TempDir(), "bad.env")
	require.NoError(t, os.WriteFile(envFile, []byte("FOO\nBAR=1\n"), 0o644))

	_, err := Load([]string{"-env", envFile})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load env file")
}
