package openai

import (
	"context"
	"iter"
	"log/slog"
	"maps"
	"time"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/core"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/protocol/openai"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/stream"
)

// ═══════════════════════════════════════════════════════════════════════════
// 配置和客户端
// ═══════════════════════════════════════════════════════════════════════════

const (
	defaultBaseURL          = "https://api.openai.com/v1"
	defaultModel            = "gpt-4o-mini"
	defaultEndpoint         = "/v1/chat/completions"
	defaultCompletionWindow = "24h"
)

// Config 客户端配置
type Config struct {
	// Name Provider 名称（openai、openrouter、deepseek 等），默认 openai
	//
	// 用于错误信息；ollama 不要求 APIKey。
	Name string

	// APIKey API 密钥（ollama 以外必需）
	APIKey string

	// BaseURL API 基础地址，默认 https://api.openai.com/v1
	BaseURL string

	// Model 默认模型名称
	Model string

	// Timeout 请求超时时间，默认 120 秒
	Timeout time.Duration

	// Headers 额外的请求头
	Headers map[string]string

	// BatchEndpoint 批量子请求目标端点，默认 /v1/chat/completions
	BatchEndpoint string

	// CompletionWindow 批量完成窗口，默认 24h
	CompletionWindow string

	// StrictStream 流中的 error 帧视为终止
	StrictStream bool

	// Logger 日志，nil 表示丢弃
	Logger *slog.Logger
}

// Client OpenAI 兼容的 LLM 客户端
//
// 实现 [llm.Provider]（Chat Completions 流）与 [batch.Backend]（Batch API）。
//
// 架构设计：
//   - 嵌入 core.BaseClient 复用 HTTP 与错误映射
//   - 线协议解码由 protocol/openai 的 Decoder 完成（块合成）
//   - 请求体由调用方构建，客户端只补充 model、stream 与 stream_options
type Client struct {
	*core.BaseClient

	config *Config
	logger *slog.Logger
}

// New 创建新的 OpenAI 客户端
//
// 参数 config 必须包含 APIKey（ollama 除外）。如果 BaseURL 为空，默认使用 OpenAI 官方地址。
func New(config *Config) (*Client, error) {
	baseClient, err := core.NewBaseClient(config)
	if err != nil {
		return nil, err
	}

	finalConfig := *config
	finalConfig.BaseURL, finalConfig.Model, finalConfig.Timeout = config.GetDefaults()
	if finalConfig.BatchEndpoint == "" {
		finalConfig.BatchEndpoint = defaultEndpoint
	}
	if finalConfig.CompletionWindow == "" {
		finalConfig.CompletionWindow = defaultCompletionWindow
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		BaseClient: baseClient,
		config:     &finalConfig,
		logger:     logger,
	}, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Provider 接口实现
// ═══════════════════════════════════════════════════════════════════════════

// Stream 流式完成
//
// 实现 [llm.Provider] 接口。request 为 Chat Completions 请求体：
//   - 缺少 model 时使用配置的默认模型
//   - stream 置为 true，并默认开启 stream_options.include_usage 以获得用量
//   - Reasoning 模型会移除其不支持的采样参数（见 [AdaptRequest]）
func (c *Client) Stream(ctx context.Context, request map[string]any) (iter.Seq[*llm.Event], error) {
	req := maps.Clone(request)
	if req == nil {
		req = map[string]any{}
	}
	if _, ok := req["model"]; !ok {
		req["model"] = c.config.Model
	}
	req["stream"] = true
	if _, ok := req["stream_options"]; !ok {
		req["stream_options"] = map[string]any{"include_usage": true}
	}
	if err := AdaptRequest(req); err != nil {
		return nil, err
	}

	body, err := c.OpenStream(ctx, "/chat/completions", req)
	if err != nil {
		return nil, err
	}

	return stream.Run(ctx, body, openai.NewDecoder(),
		stream.WithStrict(c.config.StrictStream),
		stream.WithLogger(c.logger),
	), nil
}

// Close 关闭客户端
//
// 实现 [llm.Provider] 接口。当前实现为空操作，HTTP 客户端无需显式关闭。
func (c *Client) Close() error {
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// core.ProviderConfig 接口实现
// ═══════════════════════════════════════════════════════════════════════════

// Validate 验证配置
func (c *Config) Validate() error {
	if c == nil {
		return llm.NewConfigError("config is required", nil)
	}
	if c.APIKey == "" && c.Name != string(llm.ProviderTypeOllama) {
		return llm.NewConfigError("API key is required", nil)
	}
	return nil
}

// GetDefaults 获取默认值
func (c *Config) GetDefaults() (string, string, time.Duration) {
	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	model := c.Model
	if model == "" {
		model = defaultModel
	}

	return baseURL, model, core.GetDefaultTimeout(c.Timeout)
}

// BuildHeaders 构建请求头
func (c *Config) BuildHeaders() map[string]string {
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	if c.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.APIKey
	}
	maps.Copy(headers, c.Headers)
	return headers
}

// ProviderName 返回 Provider 名称
func (c *Config) ProviderName() string {
	if c.Name != "" {
		return c.Name
	}
	return "openai"
}

// 确保实现了接口
var (
	_ llm.Provider        = (*Client)(nil)
	_ core.ProviderConfig = (*Config)(nil)
)
