package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Scheduler.MaxConcurrent)
	assert.Equal(t, 5*time.Minute, cfg.GetWaitTimeout())
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.GetBaseDelay())
	assert.Equal(t, 60*time.Second, cfg.GetMaxDelay())
	assert.False(t, cfg.Logging.DebugMode)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm:
  provider: gemini
  model: gemini-2.5-flash
scheduler:
  max_concurrent: 7
  wait_timeout: 30s
retry:
  max_retries: 2
  base_delay: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	assert.Equal(t, 7, cfg.Scheduler.MaxConcurrent)
	assert.Equal(t, 30*time.Second, cfg.GetWaitTimeout())
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.GetBaseDelay())
	// Untouched sections keep defaults.
	assert.Equal(t, 60*time.Second, cfg.GetMaxDelay())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: openai\n  api_key: from-file\n"), 0644))

	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("FINSIGHT_MODEL", "gemini-2.5-pro")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestParseDuration_BadValuesFallBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scheduler.WaitTimeout = "banana"
	assert.Equal(t, 5*time.Minute, cfg.GetWaitTimeout())

	cfg.Retry.MaxDelay = "-3s"
	assert.Equal(t, 60*time.Second, cfg.GetMaxDelay())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Scheduler.MaxConcurrent = 9
	require.NoError(t, cfg.Save(path))

	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Scheduler.MaxConcurrent)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  max_concurrent: 1\n"), 0644))

	var reloaded atomic.Value
	w := NewWatcher(path, func(cfg *Config) {
		reloaded.Store(cfg.Scheduler.MaxConcurrent)
	})
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  max_concurrent: 6\n"), 0644))

	require.Eventually(t, func() bool {
		v := reloaded.Load()
		return v != nil && v.(int) == 6
	}, 3*time.Second, 20*time.Millisecond, "watcher did not deliver the reloaded config")
}
