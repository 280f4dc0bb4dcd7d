package llm

import (
	"context"
	"iter"
)

// ═══════════════════════════════════════════════════════════════════════════
// Provider 接口
// ═══════════════════════════════════════════════════════════════════════════

// Provider LLM 流式提供者接口
//
// request 是调用方已构建好的厂商请求体（请求构建不在本库范围内），
// 实现负责设置流式标志、建立连接并返回规范化事件序列。
type Provider interface {
	// Stream 流式完成
	//
	// 返回的序列只能遍历一次，最后一个事件总是 EventTypeDone。
	// 调用方可随时 break，底层连接会被释放。
	Stream(ctx context.Context, request map[string]any) (iter.Seq[*Event], error)

	// Close 关闭连接
	Close() error
}

// ═══════════════════════════════════════════════════════════════════════════
// 用量
// ═══════════════════════════════════════════════════════════════════════════

// Usage Token 使用量
//
// 流式过程中各计数只增不减；Finalize 后 TotalTokens = CompletionTokens + PromptTokens。
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	CacheReadTokens  int64 `json:"cache_read_tokens,omitempty"`  // Prompt Caching 命中
	CacheWriteTokens int64 `json:"cache_write_tokens,omitempty"` // Prompt Caching 写入
	ReasoningTokens  int64 `json:"reasoning_tokens,omitempty"`   // 推理 tokens (o1/o3, Gemini thoughts 等)
}

// Finalize 计算总量
func (u *Usage) Finalize() {
	u.TotalTokens = u.CompletionTokens + u.PromptTokens
}

// ═══════════════════════════════════════════════════════════════════════════
// 完成原因
// ═══════════════════════════════════════════════════════════════════════════

// FinishReason 规范化完成原因（封闭枚举）
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonContentFilter FinishReason = "content_filter"
	FinishReasonError         FinishReason = "error"
	FinishReasonUnknown       FinishReason = "unknown"
)

// ParseFinishReason 解析规范化完成原因字符串，未知值返回 FinishReasonUnknown
func ParseFinishReason(s string) FinishReason {
	switch r := FinishReason(s); r {
	case FinishReasonStop, FinishReasonLength, FinishReasonToolCalls,
		FinishReasonContentFilter, FinishReasonError:
		return r
	default:
		return FinishReasonUnknown
	}
}

// String 返回字符串表示
func (r FinishReason) String() string {
	return string(r)
}

// StreamTerminal 流终止记录
//
// 每个流恰好产生一个，且总是最后一个事件。
type StreamTerminal struct {
	FinishReason FinishReason `json:"finish_reason"`
	Usage        Usage        `json:"usage"`

	// Err 传输层读错误或 strict 模式下的厂商错误帧
	Err error `json:"-"`

	// Cancelled 调用方取消了 context
	Cancelled bool `json:"cancelled,omitempty"`
}
