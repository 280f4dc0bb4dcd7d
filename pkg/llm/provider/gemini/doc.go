// Package gemini 实现 Google Gemini LLM Provider
//
// 流式使用 streamGenerateContent?alt=sse，批量使用 Batch Mode（batchGenerateContent）。
//
// # 基础使用
//
//	provider, err := gemini.New(&gemini.Config{
//	    APIKey: "your-api-key",
//	    Model:  gemini.ModelGemini25Flash,
//	})
//
//	events, err := provider.Stream(ctx, map[string]any{
//	    "contents": []any{map[string]any{"role": "user", "parts": []any{map[string]any{"text": "hi"}}}},
//	})
//
// 请求体中的 model 字段用于选择模型，发送前会被移除。
//
// # Thinking 模式
//
// Gemini 2.5 系列支持 thinking 能力，请求未显式配置 thinkingConfig 时注入：
//
//	provider, err := gemini.New(&gemini.Config{
//	    APIKey:         "your-api-key",
//	    EnableThinking: true,
//	    ThinkingBudget: 24576,
//	})
//
// thought 部分解码为 reasoning 区块，thoughtSignature 保留在区块签名中。
//
// # 批量任务
//
// 任务 ID 为资源名 "batches/xxx"。结果或内联在 Operation.response.inlinedResponses 中，
// 或写入 responsesFile，由 /download 端点读取。结果行以 metadata.key / key 关联请求。
package gemini
