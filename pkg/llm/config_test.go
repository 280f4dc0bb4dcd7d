package llm

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ═══════════════════════════════════════════════════════════════════════════
// DefaultConfig 测试
// ═══════════════════════════════════════════════════════════════════════════

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("LLM_API_KEY", "fallback-key")

	cfg := DefaultConfig()
	assert.Equal(t, ProviderTypeOpenRouter, cfg.Type)
	assert.Equal(t, "fallback-key", cfg.APIKey)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.BaseURL)
	assert.Equal(t, 120*time.Second, cfg.Timeout)
	assert.Equal(t, DefaultBatchConfig(), cfg.Batch)

	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")
	gemini := DefaultConfig(ProviderTypeGemini)
	assert.Equal(t, "google-key", gemini.APIKey)
	assert.Equal(t, "gemini-2.5-flash", gemini.Model)
}

// ═══════════════════════════════════════════════════════════════════════════
// 配置文件加载测试
// ═══════════════════════════════════════════════════════════════════════════

func TestLoadConfigFromBytes(t *testing.T) {
	t.Run("YAML", func(t *testing.T) {
		data := []byte(`
type: anthropic
api-key: sk-ant-test
model: claude-sonnet-4-5
timeout: 2m
strict-stream: true
headers:
  X-Trace: abc
batch:
  poll-interval: 30s
  endpoint: /v1/messages
`)
		cfg, err := LoadConfigFromBytes(data, ".yaml")
		require.NoError(t, err)

		assert.Equal(t, ProviderTypeAnthropic, cfg.Type)
		assert.Equal(t, "sk-ant-test", cfg.APIKey)
		assert.Equal(t, "claude-sonnet-4-5", cfg.Model)
		assert.Equal(t, "https://api.anthropic.com/v1", cfg.BaseURL, "未设置时使用类型默认值")
		assert.Equal(t, 2*time.Minute, cfg.Timeout)
		assert.True(t, cfg.StrictStream)
		assert.Equal(t, "abc", cfg.Headers["X-Trace"])
		assert.Equal(t, 30*time.Second, cfg.Batch.PollInterval)
		assert.Equal(t, 24*time.Hour, cfg.Batch.MaxWait)
		assert.Equal(t, "/v1/messages", cfg.Batch.Endpoint)
	})

	t.Run("JSON", func(t *testing.T) {
		cfg, err := LoadConfigFromBytes([]byte(`{"type":"openai","api-key":"sk-json","base-url":"http://localhost:8080/v1"}`), "json")
		require.NoError(t, err)

		assert.Equal(t, ProviderTypeOpenAI, cfg.Type)
		assert.Equal(t, "sk-json", cfg.APIKey)
		assert.Equal(t, "http://localhost:8080/v1", cfg.BaseURL)
		assert.Equal(t, "gpt-4o-mini", cfg.Model)
	})

	t.Run("api-key 从环境变量探测", func(t *testing.T) {
		t.Setenv("DEEPSEEK_API_KEY", "env-key")
		cfg, err := LoadConfigFromBytes([]byte("type: deepseek\n"), "yml")
		require.NoError(t, err)
		assert.Equal(t, "env-key", cfg.APIKey)
	})

	t.Run("不支持的格式", func(t *testing.T) {
		_, err := LoadConfigFromBytes([]byte("x = 1"), "toml")
		assert.True(t, IsConfigError(err))
		assert.Contains(t, err.Error(), "unsupported format: toml")
	})

	t.Run("非法 YAML", func(t *testing.T) {
		_, err := LoadConfigFromBytes([]byte("type: [unclosed"), "yaml")
		assert.True(t, IsConfigError(err))
	})
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("type: ollama\nmodel: qwen3\n"), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, ProviderTypeOllama, cfg.Type)
	assert.Equal(t, "qwen3", cfg.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.BaseURL)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, IsConfigError(err))
}

// ═══════════════════════════════════════════════════════════════════════════
// ProviderType 测试
// ═══════════════════════════════════════════════════════════════════════════

func TestProviderType_Protocol(t *testing.T) {
	tests := []struct {
		ptype ProviderType
		want  Protocol
	}{
		{ProviderTypeOpenAI, ProtocolOpenAI},
		{ProviderTypeOpenRouter, ProtocolOpenAI},
		{ProviderTypeOllama, ProtocolOpenAI},
		{ProviderTypeLocalMock, ProtocolOpenAI},
		{ProviderTypeAnthropic, ProtocolAnthropic},
		{ProviderTypeGemini, ProtocolGemini},
		{"unknown", ""},
	}
	for _, tt := range tests {
		if got := tt.ptype.Protocol(); got != tt.want {
			t.Errorf("%s.Protocol() = %q, want %q", tt.ptype, got, tt.want)
		}
	}
}

func TestProviderType_EnvAPIKeys(t *testing.T) {
	assert.Equal(t, []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "LLM_API_KEY"}, ProviderTypeGemini.EnvAPIKeys())
	assert.Equal(t, []string{"LLM_API_KEY"}, ProviderTypeOllama.EnvAPIKeys())
	assert.False(t, ProviderTypeAnthropic.IsOpenAICompatible())
	assert.True(t, ProviderTypeMoonshot.IsOpenAICompatible())
}
