package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.ListenAddr)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_RejectsUnrecognizedChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chains:\n  999:\n    endpoints: [\"http://x\"]\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsChainWithNoEndpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chains:\n  1:\n    endpoints: []\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_ValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chains:\n  1:\n    endpoints: [\"http://mainnet\"]\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	ch, ok := cfg.ChainByID(1)
	require.True(t, ok)
	require.Equal(t, []string{"http://mainnet"}, ch.Endpoints)
}

func TestLoad_EnvOverridesClassifierEndpoint(t *testing.T) {
	t.Setenv("CLASSIFIER_ENDPOINT", "http://override")
	t.Setenv("CLASSIFIER_ENABLED", "1")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "http://override", cfg.Classifier.Endpoint)
	require.True(t, cfg.Classifier.Enabled)
}
