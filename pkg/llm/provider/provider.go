// Package provider 提供 LLM Provider 的统一工厂
//
// 使用方式：
//
//	p, err := provider.New(&llm.Config{
//	    Type:   llm.ProviderTypeOpenAI,
//	    APIKey: "sk-xxx",
//	    Model:  "gpt-4o-mini",
//	})
//
//	events, err := p.Stream(ctx, request)       // 流式
//	job, err := p.Batches.Create(ctx, batchReq) // 批量
//
//	// 本地 Mock（无需配置）
//	p := provider.LocalMock()
package provider

import (
	"log/slog"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/batch"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/provider/anthropic"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/provider/gemini"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/provider/localmock"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/provider/openai"
)

// ═══════════════════════════════════════════════════════════════════════════
// Provider
// ═══════════════════════════════════════════════════════════════════════════

// client 厂商客户端同时实现流式与批量接口
type client interface {
	llm.Provider
	batch.Backend
}

// Provider 解析后的厂商能力
//
// 嵌入 [llm.Provider]，可直接调用 Stream / Close。
type Provider struct {
	llm.Provider

	// Type 解析后的 Provider 类型
	Type llm.ProviderType

	// Batches 绑定该厂商的批量编排器
	Batches *batch.Orchestrator

	// Batch 批量默认参数（来自配置）
	Batch llm.BatchConfig
}

// Option 工厂选项
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger 设置日志，传递给客户端与批量编排器
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 工厂函数
// ═══════════════════════════════════════════════════════════════════════════

// New 创建 Provider
//
// 不指定 Type 时默认使用 OpenRouter；OpenAI 兼容的厂商共用 openai 客户端。
func New(cfg *llm.Config, opts ...Option) (*Provider, error) {
	if cfg == nil {
		return nil, llm.NewConfigError("config is required", nil)
	}

	o := &options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(o)
	}

	providerType := cfg.Type
	if providerType == "" {
		providerType = llm.ProviderTypeOpenRouter
	}

	var (
		c   client
		err error
	)
	switch {
	case providerType == llm.ProviderTypeLocalMock:
		c = localmock.New(localmock.WithLogger(o.logger))
	case providerType.IsOpenAICompatible():
		c, err = newOpenAI(cfg, providerType, o.logger)
	case providerType == llm.ProviderTypeAnthropic:
		c, err = newAnthropic(cfg, o.logger)
	case providerType == llm.ProviderTypeGemini:
		c, err = newGemini(cfg, o.logger)
	default:
		return nil, llm.NewConfigError("unsupported provider type: "+string(providerType), nil)
	}
	if err != nil {
		return nil, err
	}

	return &Provider{
		Provider: c,
		Type:     providerType,
		Batches:  batch.NewOrchestrator(c, batch.WithLogger(o.logger)),
		Batch:    withBatchDefaults(cfg.Batch),
	}, nil
}

// withBatchDefaults 为未设置的批量参数填充默认值
func withBatchDefaults(bc llm.BatchConfig) llm.BatchConfig {
	def := llm.DefaultBatchConfig()
	if bc.PollInterval <= 0 {
		bc.PollInterval = def.PollInterval
	}
	if bc.MaxWait <= 0 {
		bc.MaxWait = def.MaxWait
	}
	if bc.CompletionWindow == "" {
		bc.CompletionWindow = def.CompletionWindow
	}
	if bc.Endpoint == "" {
		bc.Endpoint = def.Endpoint
	}
	return bc
}

// apiKey 配置中的 APIKey，缺省时从环境变量读取
func apiKey(cfg *llm.Config, ptype llm.ProviderType) string {
	if cfg.APIKey != "" {
		return cfg.APIKey
	}
	return ptype.GetEnvAPIKey()
}

// baseURL 配置中的 BaseURL，缺省时使用类型默认值
func baseURL(cfg *llm.Config, ptype llm.ProviderType) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	return ptype.DefaultBaseURL()
}

// model 配置中的 Model，缺省时使用类型默认值
func model(cfg *llm.Config, ptype llm.ProviderType) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return ptype.DefaultModel()
}

// newOpenAI 创建 OpenAI 兼容 Provider
func newOpenAI(cfg *llm.Config, ptype llm.ProviderType, logger *slog.Logger) (client, error) {
	return openai.New(&openai.Config{
		Name:             string(ptype),
		APIKey:           apiKey(cfg, ptype),
		BaseURL:          baseURL(cfg, ptype),
		Model:            model(cfg, ptype),
		Timeout:          cfg.Timeout,
		Headers:          cfg.Headers,
		BatchEndpoint:    cfg.Batch.Endpoint,
		CompletionWindow: cfg.Batch.CompletionWindow,
		StrictStream:     cfg.StrictStream,
		Logger:           logger,
	})
}

// newAnthropic 创建 Anthropic Provider
func newAnthropic(cfg *llm.Config, logger *slog.Logger) (client, error) {
	ptype := llm.ProviderTypeAnthropic
	return anthropic.New(&anthropic.Config{
		APIKey:       apiKey(cfg, ptype),
		BaseURL:      baseURL(cfg, ptype),
		Model:        model(cfg, ptype),
		Timeout:      cfg.Timeout,
		Headers:      cfg.Headers,
		StrictStream: cfg.StrictStream,
		Logger:       logger,
	})
}

// newGemini 创建 Gemini Provider
func newGemini(cfg *llm.Config, logger *slog.Logger) (client, error) {
	ptype := llm.ProviderTypeGemini
	return gemini.New(&gemini.Config{
		APIKey:       apiKey(cfg, ptype),
		BaseURL:      baseURL(cfg, ptype),
		Model:        model(cfg, ptype),
		Timeout:      cfg.Timeout,
		Headers:      cfg.Headers,
		StrictStream: cfg.StrictStream,
		Logger:       logger,
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// 便捷函数
// ═══════════════════════════════════════════════════════════════════════════

// LocalMock 创建 LocalMock Provider（用于测试）
func LocalMock(opts ...localmock.Option) *Provider {
	c := localmock.New(opts...)
	return &Provider{
		Provider: c,
		Type:     llm.ProviderTypeLocalMock,
		Batches:  batch.NewOrchestrator(c),
		Batch:    llm.DefaultBatchConfig(),
	}
}

// Must 创建 Provider，失败时 panic
func Must(cfg *llm.Config, opts ...Option) *Provider {
	p, err := New(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// Default 使用默认配置创建 Provider
// 不指定类型时默认使用 OpenRouter，从对应环境变量读取 APIKey
func Default(types ...llm.ProviderType) (*Provider, error) {
	cfg := llm.DefaultConfig(types...)
	return New(&cfg)
}
