package stream

import (
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// 解码器接口
// ═══════════════════════════════════════════════════════════════════════════

// Decoder 厂商流解码器
//
// 把一个 SSE 帧翻译为零到多个 [VendorEvent]。
//
// 约定：
//   - 每个流使用一个新的 Decoder 实例，解码器不跨流保存状态
//   - 内容块索引原样透传（厂商没有块概念时由解码器合成，且不复用）
//   - 帧无法解析时返回错误，调用方跳过该帧继续读取
//   - 解码器不重试、不做 I/O
type Decoder interface {
	// Decode 解码单个帧
	Decode(frame core.Frame) ([]VendorEvent, error)

	// FinishReasons 厂商完成原因到规范值的映射表
	FinishReasons() FinishReasonTable
}

// Flusher 可选接口：流在没有 message_stop 的情况下 EOF 时，
// Run 调用 Flush 取回解码器尚未上报的事件（例如延迟上报的用量）。
//
// 不应返回 EventMessageStop 或 EventError。
type Flusher interface {
	Flush() []VendorEvent
}

// ═══════════════════════════════════════════════════════════════════════════
// 厂商事件
// ═══════════════════════════════════════════════════════════════════════════

// VendorEvent 解码后的厂商事件
//
// 只有与 Kind 对应的字段有值：
//   - EventContentBlockStart: Index + Block
//   - EventContentBlockDelta: Index + Delta
//   - EventContentBlockStop:  Index
//   - EventMessageStart:      Usage（可选）
//   - EventMessageDelta:      Usage（可选）+ StopReason（可选）
//   - EventError:             Error
type VendorEvent struct {
	Kind       EventKind
	Index      int
	Block      *BlockStart
	Delta      *BlockDelta
	Usage      *UsageUpdate
	StopReason string
	Error      *FrameError
}

// BlockStart 内容块开始
type BlockStart struct {
	Kind BlockKind

	// ID / Name 工具调用标识（BlockToolUse）
	ID   string
	Name string

	// Text 块开始时已携带的初始文本（通常为空）
	Text string

	// Data redacted_thinking 的不透明数据
	Data string
}

// BlockDelta 内容块增量
type BlockDelta struct {
	Kind DeltaKind

	// Text 文本或推理片段（DeltaText / DeltaThinking）
	Text string

	// PartialJSON 工具参数片段（DeltaInputJSON）
	PartialJSON string

	// Signature 推理签名（DeltaSignature）
	Signature string

	// Citation 引用（DeltaCitation）
	Citation *llm.Citation
}

// UsageUpdate 用量增量
//
// 组装器把每个字段累加到运行中的用量上，
// 解码器负责只上报本事件新增的部分。
type UsageUpdate struct {
	PromptTokens     int64
	CompletionTokens int64
	CacheReadTokens  int64
	CacheWriteTokens int64
	ReasoningTokens  int64
}

// FrameError 流中的厂商错误帧
type FrameError struct {
	Type    string
	Message string
}

// Error 实现 error 接口
func (e *FrameError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return e.Type + ": " + e.Message
}

// ═══════════════════════════════════════════════════════════════════════════
// 完成原因映射
// ═══════════════════════════════════════════════════════════════════════════

// FinishReasonTable 厂商完成原因 → 规范完成原因
type FinishReasonTable map[string]llm.FinishReason

// Resolve 查表，未收录的值返回 FinishReasonUnknown
func (t FinishReasonTable) Resolve(vendor string) llm.FinishReason {
	if r, ok := t[vendor]; ok {
		return r
	}
	return llm.FinishReasonUnknown
}
