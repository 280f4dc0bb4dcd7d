package anthropic

import (
	"context"
	"iter"
	"log/slog"
	"maps"
	"time"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/core"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/protocol/anthropic"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/stream"
)

// ═══════════════════════════════════════════════════════════════════════════
// 配置和客户端
// ═══════════════════════════════════════════════════════════════════════════

const (
	defaultBaseURL = "https://api.anthropic.com/v1"
	defaultModel   = "claude-3-5-haiku-latest"
	defaultVersion = "2023-06-01"
)

// Config 客户端配置
type Config struct {
	// APIKey API 密钥（必需）
	APIKey string

	// BaseURL API 基础地址，默认 https://api.anthropic.com/v1
	BaseURL string

	// Model 默认模型名称，默认 claude-3-5-haiku-latest
	Model string

	// Timeout 请求超时时间，默认 120 秒
	Timeout time.Duration

	// Headers 额外的请求头
	Headers map[string]string

	// AnthropicVersion API 版本，默认 2023-06-01
	AnthropicVersion string

	// StrictStream 流中的 error 帧视为终止
	StrictStream bool

	// Logger 日志，nil 表示丢弃
	Logger *slog.Logger
}

// Client Anthropic Claude API 客户端
//
// 实现 [llm.Provider]（流式 Messages API）与 [batch.Backend]（Message Batches API）。
//
// 架构设计：
//   - 嵌入 core.BaseClient 复用 HTTP 与错误映射
//   - 线协议解码由 protocol/anthropic 的 Decoder 完成
//   - 请求体由调用方构建，客户端只补充 model 与 stream 字段
type Client struct {
	*core.BaseClient

	config *Config
	logger *slog.Logger
}

// New 创建新的 Anthropic 客户端
//
// 参数 config 必须包含 APIKey。
func New(config *Config) (*Client, error) {
	baseClient, err := core.NewBaseClient(config)
	if err != nil {
		return nil, err
	}

	// 保存处理后的配置
	finalConfig := *config
	finalConfig.BaseURL, finalConfig.Model, finalConfig.Timeout = config.GetDefaults()
	if finalConfig.AnthropicVersion == "" {
		finalConfig.AnthropicVersion = defaultVersion
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
// 实现 [llm.Provider] 接口。request 为 Messages API 请求体，
// 缺少 model 时使用配置的默认模型；stream 字段总是被置为 true。
func (c *Client) Stream(ctx context.Context, request map[string]any) (iter.Seq[*llm.Event], error) {
	req := maps.Clone(request)
	if req == nil {
		req = map[string]any{}
	}
	if _, ok := req["model"]; !ok {
		req["model"] = c.config.Model
	}
	req["stream"] = true

	body, err := c.OpenStream(ctx, "/messages", req)
	if err != nil {
		return nil, err
	}

	return stream.Run(ctx, body, anthropic.NewDecoder(),
		stream.WithStrict(c.config.StrictStream),
		stream.WithLogger(c.logger),
	), nil
}

// Close 关闭客户端
//
// 实现 [llm.Provider] 接口。当前实现为空操作。
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
	if c.APIKey == "" {
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
// Anthropic 使用 X-Api-Key 而不是 Authorization
func (c *Config) BuildHeaders() map[string]string {
	version := c.AnthropicVersion
	if version == "" {
		version = defaultVersion
	}

	headers := map[string]string{
		"X-Api-Key":         c.APIKey,
		"anthropic-version": version,
		"Content-Type":      "application/json",
	}
	maps.Copy(headers, c.Headers)
	return headers
}

// ProviderName 返回 Provider 名称
func (c *Config) ProviderName() string {
	return "anthropic"
}

// 确保实现了接口
var (
	_ llm.Provider        = (*Client)(nil)
	_ core.ProviderConfig = (*Config)(nil)
)
