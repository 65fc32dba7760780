package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_call_agent/internal/realtime"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Same(t, cfg, GetConfig())

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, realtime.DefaultURL, cfg.Realtime.URL)
	assert.Equal(t, 10*time.Second, cfg.Realtime.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.Realtime.ToolTimeout)
	assert.Equal(t, 5, cfg.Realtime.Reconnect.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Realtime.Reconnect.BaseDelay)
	assert.Equal(t, 8*time.Second, cfg.Realtime.Reconnect.MaxDelay)

	assert.Equal(t, 1000, cfg.Dialog.MaxInputLength)
	assert.Equal(t, 0.3, cfg.Dialog.LowConfidenceThreshold)
	assert.Equal(t, 0.5, cfg.Dialog.ClarificationThreshold)
	assert.Equal(t, 3, cfg.Dialog.MaxClarifications)
	assert.Equal(t, 7.0, cfg.Dialog.QualifiedScore)
	assert.Equal(t, 5, cfg.Dialog.SentimentWindow)

	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 1024, cfg.WebSocket.ReadBufferSize)
}

func TestLoadExample(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)

	assert.True(t, cfg.Realtime.Enabled)
	assert.Equal(t, "sk-from-env", cfg.Realtime.APIKey)
	assert.Equal(t, 20*time.Second, cfg.Realtime.PingInterval)
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr())
	assert.Equal(t, 2*time.Hour, cfg.Redis.TTL)

	rc := cfg.Realtime.ClientConfig()
	assert.Equal(t, "sk-from-env", rc.APIKey)
	assert.Equal(t, 300*time.Millisecond, rc.TurnDetection.PrefixPadding)
	assert.Equal(t, realtime.DefaultReconnectPolicy(), rc.Reconnect)

	dc := cfg.Dialog.EngineConfig()
	assert.Equal(t, 3, dc.MaxClarifications)
	assert.Equal(t, 2, dc.MaxObjections)
}

func TestParseValidation(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	tests := []struct {
		name string
		yaml string
		err  error
	}{
		{"端口越界", "server:\n  port: 70000\n", ErrInvalidPort},
		{"缺少API密钥", "realtime:\n  enabled: true\n", ErrEmptyAPIKey},
		{"VAD阈值", "realtime:\n  enabled: true\n  api_key: k\n  vad:\n    threshold: 1.5\n", ErrInvalidVAD},
		{"重连间隔", "realtime:\n  enabled: true\n  api_key: k\n  reconnect:\n    base_delay: 10s\n    max_delay: 1s\n", ErrInvalidReconnect},
		{"阈值倒置", "dialog:\n  low_confidence_threshold: 0.6\n  clarification_threshold: 0.4\n", ErrInvalidThreshold},
		{"追问上限", "dialog:\n  max_clarifications: -1\n", ErrInvalidClarifications},
		{"合格分数", "dialog:\n  qualified_score: 12\n", ErrInvalidQualifiedScore},
		{"心跳", "websocket:\n  ping_period: 90s\n  pong_wait: 60s\n", ErrInvalidPongWait},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse([]byte("server: [:"))
	assert.Error(t, err)
}
