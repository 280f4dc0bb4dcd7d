package llm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ═══════════════════════════════════════════════════════════════════════════
// Provider 配置
// ═══════════════════════════════════════════════════════════════════════════

// Config Provider 创建配置
//
// 用于通过统一工厂函数创建不同厂商的流式客户端与批量编排器。
//
// 基本用法：
//
//	cfg := &llm.Config{
//	    Type:   llm.ProviderTypeAnthropic,
//	    APIKey: "sk-ant-xxx",
//	    Model:  "claude-sonnet-4-5",
//	}
//
// 配置文件（YAML）：
//
//	type: openai
//	model: gpt-4o-mini
//	timeout: 2m
//	strict-stream: false
//	batch:
//	  poll-interval: 30s
//	  max-wait: 24h
//	  completion-window: 24h
//	  endpoint: /v1/chat/completions
type Config struct {
	// Provider 类型（默认 OpenRouter）
	Type ProviderType `yaml:"type" json:"type"`

	// APIKey（Ollama 除外，其他 Provider 必需）
	APIKey string `yaml:"api-key" json:"api-key"`

	// 可选字段（有默认值）
	Model   string `yaml:"model" json:"model"`
	BaseURL string `yaml:"base-url" json:"base-url"`

	// 网络配置
	Timeout time.Duration     `yaml:"timeout" json:"timeout"`
	Headers map[string]string `yaml:"headers" json:"headers"`

	// StrictStream 流中的厂商 error 帧视为终止（默认忽略）
	StrictStream bool `yaml:"strict-stream" json:"strict-stream"`

	// 批量任务配置
	Batch BatchConfig `yaml:"batch" json:"batch"`
}

// BatchConfig 批量任务配置
type BatchConfig struct {
	// PollInterval 轮询间隔（默认 10s）
	PollInterval time.Duration `yaml:"poll-interval" json:"poll-interval"`

	// MaxWait 等待完成的总时长（默认 24h）
	MaxWait time.Duration `yaml:"max-wait" json:"max-wait"`

	// CompletionWindow 厂商完成窗口（OpenAI 仅支持 "24h"）
	CompletionWindow string `yaml:"completion-window" json:"completion-window"`

	// Endpoint 子请求目标端点（OpenAI JSONL 的 url 字段）
	Endpoint string `yaml:"endpoint" json:"endpoint"`
}

// DefaultConfig 返回默认的 Provider 配置
// 不指定类型时默认使用 OpenRouter
func DefaultConfig(types ...ProviderType) Config {
	t := ProviderTypeOpenRouter
	if len(types) > 0 {
		t = types[0]
	}
	return Config{
		Type:    t,
		APIKey:  t.GetEnvAPIKey(),
		BaseURL: t.DefaultBaseURL(),
		Model:   t.DefaultModel(),
		Timeout: 120 * time.Second,
		Batch:   DefaultBatchConfig(),
	}
}

// DefaultBatchConfig 返回默认批量配置
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		PollInterval:     10 * time.Second,
		MaxWait:          24 * time.Hour,
		CompletionWindow: "24h",
		Endpoint:         "/v1/chat/completions",
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 配置文件加载
// ═══════════════════════════════════════════════════════════════════════════

// LoadConfigFile 从文件加载配置
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigError("read config file", err)
	}

	return LoadConfigFromBytes(data, filepath.Ext(path))
}

// LoadConfigFromBytes 从字节数据加载配置
//
// 未填写的字段使用 DefaultConfig 的值，api-key 为空时从环境变量探测。
func LoadConfigFromBytes(data []byte, format string) (*Config, error) {
	var fileCfg Config

	// 规范化格式字符串（支持 ".yaml" 或 "yaml"）
	format = strings.TrimPrefix(strings.ToLower(format), ".")

	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, NewConfigError("parse YAML", err)
		}
	case "json":
		if err := json.Unmarshal(data, &fileCfg); err != nil {
			return nil, NewConfigError("parse JSON", err)
		}
	default:
		return nil, NewConfigError(fmt.Sprintf("unsupported format: %s (expected yaml, yml, or json)", format), nil)
	}

	cfg := DefaultConfig()
	if fileCfg.Type != "" {
		cfg = DefaultConfig(fileCfg.Type)
	}
	mergeConfig(&cfg, &fileCfg)
	return &cfg, nil
}

// mergeConfig 用非零字段覆盖默认值
func mergeConfig(dst, src *Config) {
	if src.APIKey != "" {
		dst.APIKey = src.APIKey
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.BaseURL != "" {
		dst.BaseURL = src.BaseURL
	}
	if src.Timeout > 0 {
		dst.Timeout = src.Timeout
	}
	if len(src.Headers) > 0 {
		dst.Headers = src.Headers
	}
	dst.StrictStream = src.StrictStream

	if src.Batch.PollInterval > 0 {
		dst.Batch.PollInterval = src.Batch.PollInterval
	}
	if src.Batch.MaxWait > 0 {
		dst.Batch.MaxWait = src.Batch.MaxWait
	}
	if src.Batch.CompletionWindow != "" {
		dst.Batch.CompletionWindow = src.Batch.CompletionWindow
	}
	if src.Batch.Endpoint != "" {
		dst.Batch.Endpoint = src.Batch.Endpoint
	}
}
