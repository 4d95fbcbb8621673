package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	path := writeConfig(t, `
dialogue:
  registry_path: ./configs/domain.yaml
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Dialogue.MaxFollowUpTimes)
	assert.Equal(t, 0.6, cfg.Dialogue.SlotConfirmThreshold)
	assert.Equal(t, 0.7, cfg.Dialogue.IntentConfirmThreshold)
	assert.Equal(t, 10, cfg.Dialogue.HistorySize)
	assert.Equal(t, 24*time.Hour, cfg.Dialogue.SessionTTL)
	assert.Equal(t, time.Hour, cfg.Dialogue.SweepInterval)
	assert.Equal(t, 30*time.Second, cfg.Dialogue.LockTTL)
	assert.Equal(t, "memory", cfg.Dialogue.SessionStore)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, 8080, cfg.App.HTTPPort)
}

func TestLoadFromFile_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "sk-test")
	path := writeConfig(t, `
llm:
  api_key: ${TEST_LLM_KEY}
dialogue:
  registry_path: ./domain.yaml
  session_ttl: 2h
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 2*time.Hour, cfg.Dialogue.SessionTTL)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing registry path",
			body: "dialogue:\n  form_source: registry\n",
			want: "registry_path",
		},
		{
			name: "redis store without address",
			body: "dialogue:\n  registry_path: x.yaml\n  session_store: redis\n",
			want: "redis.address",
		},
		{
			name: "threshold out of range",
			body: "dialogue:\n  registry_path: x.yaml\n  slot_confirm_threshold: 1.5\n",
			want: "slot_confirm_threshold",
		},
		{
			name: "camunda without broker",
			body: "camunda:\n  enabled: true\ndialogue:\n  registry_path: x.yaml\n",
			want: "broker_address",
		},
		{
			name: "unknown form source",
			body: "dialogue:\n  form_source: mongo\n",
			want: "form_source",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGetWorkerConfig_Fallback(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{
		"dialogue-turn": {Enabled: false, MaxJobsActive: 2},
	}}

	assert.False(t, IsWorkerEnabled(cfg, "dialogue-turn"))
	assert.Equal(t, 2, GetWorkerConfig(cfg, "dialogue-turn").MaxJobsActive)
	assert.True(t, IsWorkerEnabled(cfg, "other"))
	assert.Equal(t, 5, GetWorkerConfig(cfg, "other").MaxJobsActive)
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
}
