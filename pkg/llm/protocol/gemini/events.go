package gemini

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/core"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/stream"
)

// ═══════════════════════════════════════════════════════════════════════════
// Gemini SSE 解码器
// ═══════════════════════════════════════════════════════════════════════════

// Decoder Gemini streamGenerateContent?alt=sse 解码器
//
// 实现 [stream.Decoder]。Gemini 流式格式：
//   - 每个 data 行是一个完整的 GenerateContentResponse
//   - 数据结构：candidates[0].content.parts[]
//   - 无显式 [DONE] 终止信号，通过 finishReason 判断
//
// 块合成规则：
//   - 连续的文本 part 归入同一个文本块，thought: true 的 part 归入推理块，
//     两者切换时关闭前一个块
//   - 每个 functionCall part 是一个完整的工具块（start、一次参数增量、stop）
//   - finishReason 到达时关闭打开的块，发出携带最终 usageMetadata 的
//     message_delta，随后 message_stop
//
// usageMetadata 在每个块中都是累计值，因此只在结束时上报一次；
// 没有 finishReason 就 EOF 时由 [Decoder.Flush] 补报。
//
// 有状态：每个流创建一个新实例。
type Decoder struct {
	started   bool
	finished  bool
	nextIndex int
	open      int // 打开的文本/推理块索引，-1 表示无
	openKind  stream.BlockKind
	usage     gjson.Result
}

// NewDecoder 创建 Gemini 解码器
func NewDecoder() *Decoder {
	return &Decoder{open: -1}
}

// errMalformed 帧不是合法 JSON
var errMalformed = errors.New("gemini: malformed chunk")

// Decode 解码单个帧
func (d *Decoder) Decode(frame core.Frame) ([]stream.VendorEvent, error) {
	if !gjson.Valid(frame.Data) {
		return nil, errMalformed
	}
	chunk := gjson.Parse(frame.Data)

	if errObj := chunk.Get("error"); errObj.IsObject() {
		return []stream.VendorEvent{{
			Kind: stream.EventError,
			Error: &stream.FrameError{
				Type:    errObj.Get("status").String(),
				Message: errObj.Get("message").String(),
			},
		}}, nil
	}

	var out []stream.VendorEvent
	if !d.started {
		d.started = true
		out = append(out, stream.VendorEvent{Kind: stream.EventMessageStart})
	}
	if u := chunk.Get("usageMetadata"); u.IsObject() {
		d.usage = u
	}

	candidate := chunk.Get("candidates.0")
	for _, p := range candidate.Get("content.parts").Array() {
		out = append(out, d.part(p)...)
	}

	// 提示词被拦截时没有 candidates
	reason := candidate.Get("finishReason").String()
	if reason == "" {
		reason = chunk.Get("promptFeedback.blockReason").String()
	}
	if reason != "" {
		d.finished = true
		out = append(out, d.closeOpen()...)
		out = append(out,
			stream.VendorEvent{Kind: stream.EventMessageDelta, StopReason: reason, Usage: d.usageUpdate()},
			stream.VendorEvent{Kind: stream.EventMessageStop},
		)
	}

	return out, nil
}

// Flush 实现 [stream.Flusher]
//
// 流被截断时关闭打开的块，并上报最近一次 usageMetadata。
// 已经结束的流返回 nil。
func (d *Decoder) Flush() []stream.VendorEvent {
	if d.finished {
		return nil
	}
	d.finished = true
	out := d.closeOpen()
	if u := d.usageUpdate(); u != nil {
		out = append(out, stream.VendorEvent{Kind: stream.EventMessageDelta, Usage: u})
	}
	return out
}

// FinishReasons 实现 [stream.Decoder]
func (d *Decoder) FinishReasons() stream.FinishReasonTable {
	return finishReasons
}

// ═══════════════════════════════════════════════════════════════════════════
// Part 处理
// ═══════════════════════════════════════════════════════════════════════════

func (d *Decoder) part(p gjson.Result) []stream.VendorEvent {
	var out []stream.VendorEvent

	if fc := p.Get("functionCall"); fc.IsObject() {
		out = append(out, d.closeOpen()...)

		index := d.nextIndex
		d.nextIndex++

		id := fc.Get("id").String()
		if id == "" {
			id = fmt.Sprintf("call_%d", index)
		}
		args := fc.Get("args").Raw
		if args == "" {
			args = "{}"
		}
		return append(out,
			stream.VendorEvent{
				Kind:  stream.EventContentBlockStart,
				Index: index,
				Block: &stream.BlockStart{Kind: stream.BlockToolUse, ID: id, Name: fc.Get("name").String()},
			},
			stream.VendorEvent{
				Kind:  stream.EventContentBlockDelta,
				Index: index,
				Delta: &stream.BlockDelta{Kind: stream.DeltaInputJSON, PartialJSON: args},
			},
			stream.VendorEvent{Kind: stream.EventContentBlockStop, Index: index},
		)
	}

	text := p.Get("text")
	if !text.Exists() {
		return nil
	}

	kind, deltaKind := stream.BlockText, stream.DeltaText
	if p.Get("thought").Bool() {
		kind, deltaKind = stream.BlockThinking, stream.DeltaThinking
	}

	if d.open >= 0 && d.openKind != kind {
		out = append(out, d.closeOpen()...)
	}
	if d.open < 0 {
		d.open, d.openKind = d.nextIndex, kind
		d.nextIndex++
		out = append(out, stream.VendorEvent{
			Kind:  stream.EventContentBlockStart,
			Index: d.open,
			Block: &stream.BlockStart{Kind: kind},
		})
	}

	if s := text.String(); s != "" {
		out = append(out, stream.VendorEvent{
			Kind:  stream.EventContentBlockDelta,
			Index: d.open,
			Delta: &stream.BlockDelta{Kind: deltaKind, Text: s},
		})
	}
	if sig := p.Get("thoughtSignature").String(); sig != "" && kind == stream.BlockThinking {
		out = append(out, stream.VendorEvent{
			Kind:  stream.EventContentBlockDelta,
			Index: d.open,
			Delta: &stream.BlockDelta{Kind: stream.DeltaSignature, Signature: sig},
		})
	}
	return out
}

func (d *Decoder) closeOpen() []stream.VendorEvent {
	if d.open < 0 {
		return nil
	}
	index := d.open
	d.open = -1
	return []stream.VendorEvent{{Kind: stream.EventContentBlockStop, Index: index}}
}

// usageUpdate 最近一次 usageMetadata → 用量增量
//
// completion = candidatesTokenCount + thoughtsTokenCount，
// 与 Gemini totalTokenCount 的口径一致。
func (d *Decoder) usageUpdate() *stream.UsageUpdate {
	if !d.usage.Exists() {
		return nil
	}
	thoughts := d.usage.Get("thoughtsTokenCount").Int()
	return &stream.UsageUpdate{
		PromptTokens:     d.usage.Get("promptTokenCount").Int(),
		CompletionTokens: d.usage.Get("candidatesTokenCount").Int() + thoughts,
		CacheReadTokens:  d.usage.Get("cachedContentTokenCount").Int(),
		ReasoningTokens:  thoughts,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 完成原因
// ═══════════════════════════════════════════════════════════════════════════

// finishReasons Gemini finishReason / blockReason 映射
var finishReasons = stream.FinishReasonTable{
	"STOP":                    llm.FinishReasonStop,
	"MAX_TOKENS":              llm.FinishReasonLength,
	"SAFETY":                  llm.FinishReasonContentFilter,
	"RECITATION":              llm.FinishReasonContentFilter,
	"BLOCKLIST":               llm.FinishReasonContentFilter,
	"PROHIBITED_CONTENT":      llm.FinishReasonContentFilter,
	"SPII":                    llm.FinishReasonContentFilter,
	"IMAGE_SAFETY":            llm.FinishReasonContentFilter,
	"MALFORMED_FUNCTION_CALL": llm.FinishReasonError,
}

// 确保 Decoder 实现了 stream.Decoder 接口
var (
	_ stream.Decoder = (*Decoder)(nil)
	_ stream.Flusher = (*Decoder)(nil)
)
