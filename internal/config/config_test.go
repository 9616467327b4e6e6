package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithEnv(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv("BUCKET_NAME", "council-docs")
	t.Setenv("MASTODON_API_BASE_URL", "https://masto.example")
	t.Setenv("MASTODON_ACCESS_TOKEN", "tok")
	t.Setenv("BLUESKY_USERNAME", "bot.example")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, SourceS3, cfg.Source.Kind)
	assert.Equal(t, "council-docs", cfg.Source.Bucket)
	assert.Equal(t, "cache.json", cfg.State.Key)
	assert.Equal(t, 1, cfg.Run.Concurrency)
	assert.Equal(t, 3, cfg.Run.MaxAttempts)
	assert.Equal(t, 1500, cfg.Run.MaxNew)
	assert.True(t, cfg.Mastodon.Enabled())
	assert.False(t, cfg.Bluesky.Enabled(), "app password missing")
	assert.False(t, cfg.Twitter.Enabled())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logLevel: debug
source:
  bucket: from-file
  prefix: pdfs/
run:
  concurrency: 4
  publishTimeout: 45s
compose:
  limits:
    mastodon: 400
`), 0o600))

	t.Setenv("BUCKET_NAME", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "from-env", cfg.Source.Bucket)
	assert.Equal(t, "pdfs/", cfg.Source.Prefix)
	assert.Equal(t, 4, cfg.Run.Concurrency)
	assert.Equal(t, 45*time.Second, cfg.Run.PublishTimeout)
	assert.Equal(t, 3, cfg.Run.MaxAttempts, "unset keys keep defaults")
	assert.Equal(t, 400, cfg.Compose.Limits["mastodon"])
}

func TestLoadWebSourceInferred(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv("BUCKET_NAME", "")
	t.Setenv("DOCUMENT_INDEX_URL", "https://example.org/documents")

	_, err := Load("")
	require.Error(t, err, "web source without somewhere to keep the ledger")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("state:\n  localPath: cache.json\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SourceWeb, cfg.Source.Kind)
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  concurrency: 0\n  maxAttempts: 0\n"), 0o600))
	t.Setenv("BUCKET_NAME", "b")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency")
	assert.Contains(t, err.Error(), "maxAttempts")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadOverridesApplyBeforeValidation(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv("BUCKET_NAME", "")
	t.Setenv("DOCUMENT_INDEX_URL", "https://example.org/documents")

	cfg, err := Load("", func(c *Config) { c.State.LocalPath = "cache.json" })
	require.NoError(t, err)
	assert.Equal(t, "cache.json", cfg.State.LocalPath)
}
