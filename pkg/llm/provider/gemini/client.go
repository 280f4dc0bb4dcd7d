package gemini

import (
	"context"
	"iter"
	"log/slog"
	"maps"
	"net/url"
	"strings"
	"time"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/core"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/protocol/gemini"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/stream"
)

// ═══════════════════════════════════════════════════════════════════════════
// 常量定义
// ═══════════════════════════════════════════════════════════════════════════

const (
	// DefaultBaseURL Gemini API 默认地址
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel 默认模型
	DefaultModel = ModelGemini25Flash
)

// 模型常量
const (
	ModelGemini25Pro       = "gemini-2.5-pro"
	ModelGemini25Flash     = "gemini-2.5-flash"
	ModelGemini25FlashLite = "gemini-2.5-flash-lite"
	ModelGemini20Flash     = "gemini-2.0-flash"
)

// ═══════════════════════════════════════════════════════════════════════════
// 配置和客户端
// ═══════════════════════════════════════════════════════════════════════════

// Config 客户端配置
type Config struct {
	// APIKey Gemini API 密钥（必需）
	APIKey string

	// BaseURL API 基础地址，默认 https://generativelanguage.googleapis.com/v1beta
	BaseURL string

	// Model 默认模型名称
	Model string

	// Timeout 请求超时时间，默认 120 秒
	Timeout time.Duration

	// Headers 额外的请求头
	Headers map[string]string

	// Thinking 配置（Gemini 2.5 系列）
	EnableThinking bool  // 请求未指定 thinkingConfig 时注入 includeThoughts
	ThinkingBudget int32 // thinking tokens 预算，0 表示动态

	// StrictStream 流中的 error 帧视为终止
	StrictStream bool

	// Logger 日志，nil 表示丢弃
	Logger *slog.Logger
}

// Client Gemini LLM 客户端
//
// 实现 [llm.Provider]（streamGenerateContent）与 [batch.Backend]（batchGenerateContent）。
//
// 架构设计：
//   - 嵌入 core.BaseClient 复用 HTTP 与错误映射
//   - 模型出现在 URL 路径中，请求体中的 model 字段会被移除
//   - 线协议解码由 protocol/gemini 的 Decoder 完成（块合成）
type Client struct {
	*core.BaseClient

	config *Config
	logger *slog.Logger
}

// New 创建新的 Gemini 客户端
//
// 参数 config 必须包含 APIKey。
func New(config *Config) (*Client, error) {
	baseClient, err := core.NewBaseClient(config)
	if err != nil {
		return nil, err
	}

	finalConfig := *config
	finalConfig.BaseURL, finalConfig.Model, finalConfig.Timeout = config.GetDefaults()

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
// 实现 [llm.Provider] 接口。request 为 GenerateContentRequest，可额外携带
// model 字段选择模型（发送前移除）。
func (c *Client) Stream(ctx context.Context, request map[string]any) (iter.Seq[*llm.Event], error) {
	req := maps.Clone(request)
	if req == nil {
		req = map[string]any{}
	}
	model := c.takeModel(req)
	c.applyThinking(req, model)

	body, err := c.OpenStream(ctx, modelPath(model)+":streamGenerateContent?alt=sse", req)
	if err != nil {
		return nil, err
	}

	return stream.Run(ctx, body, gemini.NewDecoder(),
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
		return llm.NewConfigError("API key is required for Gemini API backend", nil)
	}
	return nil
}

// GetDefaults 获取默认值
func (c *Config) GetDefaults() (string, string, time.Duration) {
	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := c.Model
	if model == "" {
		model = DefaultModel
	}

	return baseURL, model, core.GetDefaultTimeout(c.Timeout)
}

// BuildHeaders 构建请求头
// API key 通过 x-goog-api-key 传递，不出现在 URL 中
func (c *Config) BuildHeaders() map[string]string {
	headers := map[string]string{
		"Content-Type":   "application/json",
		"x-goog-api-key": c.APIKey,
	}
	maps.Copy(headers, c.Headers)
	return headers
}

// ProviderName 返回 Provider 名称
func (c *Config) ProviderName() string {
	return "gemini"
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求构建
// ═══════════════════════════════════════════════════════════════════════════

// takeModel 取出并移除请求中的 model 字段
func (c *Client) takeModel(req map[string]any) string {
	model, _ := req["model"].(string)
	delete(req, "model")
	if model == "" {
		model = c.config.Model
	}
	return model
}

// applyThinking 请求未显式配置时注入 thinkingConfig
func (c *Client) applyThinking(req map[string]any, model string) {
	if !c.config.EnableThinking || !supportsThinking(model) {
		return
	}

	genConfig, _ := req["generationConfig"].(map[string]any)
	genConfig = maps.Clone(genConfig)
	if genConfig == nil {
		genConfig = map[string]any{}
	}
	if _, ok := genConfig["thinkingConfig"]; ok {
		return
	}

	thinkingConfig := map[string]any{"includeThoughts": true}
	if c.config.ThinkingBudget > 0 {
		thinkingConfig["thinkingBudget"] = c.config.ThinkingBudget
	}
	genConfig["thinkingConfig"] = thinkingConfig
	req["generationConfig"] = genConfig
}

// downloadURL 由 BaseURL 推导文件下载地址
//
//	https://host/v1beta + files/abc → https://host/download/v1beta/files/abc:download?alt=media
func (c *Client) downloadURL(file string) string {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "/" + file + ":download?alt=media"
	}
	version := strings.Trim(u.Path, "/")
	if i := strings.LastIndexByte(version, '/'); i >= 0 {
		version = version[i+1:]
	}
	u.Path = "/download/" + version + "/" + file + ":download"
	u.RawQuery = "alt=media"
	return u.String()
}

// ═══════════════════════════════════════════════════════════════════════════
// 辅助函数
// ═══════════════════════════════════════════════════════════════════════════

// modelPath 模型资源路径，兼容 "models/xxx" 形式
func modelPath(model string) string {
	return "/models/" + strings.TrimPrefix(model, "models/")
}

// supportsThinking 检查模型是否支持 thinking 能力
func supportsThinking(model string) bool {
	model = strings.TrimPrefix(model, "models/")
	return strings.HasPrefix(model, ModelGemini25Pro) ||
		(strings.HasPrefix(model, ModelGemini25Flash) && !strings.HasPrefix(model, ModelGemini25FlashLite))
}

// 确保 Client 实现了接口
var (
	_ llm.Provider        = (*Client)(nil)
	_ core.ProviderConfig = (*Config)(nil)
)
