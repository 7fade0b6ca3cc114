package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 30.0, cfg.Fingerprint.ExpiryDays)
	assert.Equal(t, 50, cfg.Fingerprint.MaxEntries)
	assert.Equal(t, 100, cfg.Fingerprint.AlertThreshold)
	assert.Equal(t, 30, cfg.Fingerprint.MergeThreshold)
	assert.Equal(t, "bolt", cfg.Storage.Backend)
	assert.Equal(t, "datedDomHashes", cfg.Storage.Key)
	assert.Equal(t, 30*time.Second, cfg.Alert.DedupWindow)
	assert.Equal(t, "host", cfg.Fetch.Sanitization)
	assert.Equal(t, 10, cfg.Fetch.Concurrency)
	assert.Equal(t, 0, cfg.Fetch.CrawlDepth)
	assert.Equal(t, 50, cfg.Fetch.CrawlMaxPages)
	assert.Equal(t, time.Hour, cfg.Cleanup.Interval)
}

const sample = `
fingerprint:
  alert_threshold: 80
  merge_threshold: 20
domains:
  enterprise:
    - "*.corp.example"
    - sso.example.com
  ignored:
    - cdn.example.net
storage:
  backend: memory
alert:
  server: https://alerts.corp.example
  dedup_window: 1m
cleanup:
  interval: 15m
`

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "phishcatch.yaml"), []byte(sample), 0644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.Fingerprint.AlertThreshold)
	assert.Equal(t, 20, cfg.Fingerprint.MergeThreshold)
	assert.Equal(t, []string{"*.corp.example", "sso.example.com"}, cfg.Domains.Enterprise)
	assert.Equal(t, []string{"cdn.example.net"}, cfg.Domains.Ignored)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "https://alerts.corp.example", cfg.Alert.Server)
	assert.Equal(t, time.Minute, cfg.Alert.DedupWindow)
	assert.Equal(t, 15*time.Minute, cfg.Cleanup.Interval)

	byFile, err := LoadConfig(filepath.Join(dir, "phishcatch.yaml"))
	require.NoError(t, err)
	assert.Equal(t, cfg, byFile)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PHISHCATCH_FINGERPRINT_ALERT_THRESHOLD", "42")
	t.Setenv("PHISHCATCH_STORAGE_BACKEND", "memory")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Fingerprint.AlertThreshold)
	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	bad := "storage:\n  backend: etcd\nfetch:\n  sanitization: full\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "phishcatch.yaml"), []byte(bad), 0644))

	_, err := LoadConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")
	assert.Contains(t, err.Error(), "fetch.sanitization")
}

func TestMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "phishcatch.yaml"), []byte("fingerprint: [unclosed"), 0644))
	_, err := LoadConfig(dir)
	assert.Error(t, err)
}
