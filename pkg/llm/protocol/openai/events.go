package openai

import (
	"errors"
	"slices"

	"github.com/tidwall/gjson"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/core"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/stream"
)

// ═══════════════════════════════════════════════════════════════════════════
// OpenAI SSE 解码器
// ═══════════════════════════════════════════════════════════════════════════

// Decoder OpenAI Chat Completions 流解码器
//
// 实现 [stream.Decoder]。OpenAI 流没有块框架：
//   - 无显式事件类型，所有信息都在 data["choices"][0].delta 中
//   - 使用 data: [DONE] 作为终止信号
//   - 工具调用以 tool_calls[].index 区分
//
// 解码器为每段内容合成一个块（文本、reasoning_content、每个工具调用），
// 块索引从 0 开始按出现顺序分配、不复用；finish_reason 到达时关闭所有打开的块。
// stream_options.include_usage 的用量块映射为携带用量的 message_delta。
//
// 有状态：每个流创建一个新实例。
//
// OpenAI 流式格式（兼容 DeepSeek / OpenRouter / Moonshot 等）：
//
//	data: {"choices":[{"delta":{"content":"Hello"},"finish_reason":null}]}
//	data: {"choices":[{"delta":{},"finish_reason":"stop"}]}
//	data: {"choices":[],"usage":{"prompt_tokens":9,"completion_tokens":12}}
//	data: [DONE]
type Decoder struct {
	started   bool
	nextIndex int
	text      int         // 打开的文本块索引，-1 表示无
	reasoning int         // 打开的推理块索引，-1 表示无
	tools     map[int]int // tool_calls[].index → 块索引
	open      []int
}

// NewDecoder 创建 OpenAI 解码器
func NewDecoder() *Decoder {
	return &Decoder{
		text:      -1,
		reasoning: -1,
		tools:     make(map[int]int),
	}
}

// errMalformed 帧不是合法 JSON
var errMalformed = errors.New("openai: malformed chunk")

// Decode 解码单个帧
func (d *Decoder) Decode(frame core.Frame) ([]stream.VendorEvent, error) {
	if frame.Data == "[DONE]" {
		return append(d.closeAll(), stream.VendorEvent{Kind: stream.EventMessageStop}), nil
	}
	if !gjson.Valid(frame.Data) {
		return nil, errMalformed
	}
	chunk := gjson.Parse(frame.Data)

	if errObj := chunk.Get("error"); errObj.IsObject() {
		return []stream.VendorEvent{{
			Kind: stream.EventError,
			Error: &stream.FrameError{
				Type:    core.FirstString([]byte(errObj.Raw), "type", "code"),
				Message: errObj.Get("message").String(),
			},
		}}, nil
	}

	var out []stream.VendorEvent
	if !d.started {
		d.started = true
		out = append(out, stream.VendorEvent{Kind: stream.EventMessageStart})
	}

	choice := chunk.Get("choices.0")
	delta := choice.Get("delta")

	// 推理内容 (DeepSeek R1 reasoning_content, OpenRouter reasoning)
	if r := core.FirstString([]byte(delta.Raw), "reasoning_content", "reasoning"); r != "" {
		out = append(out, d.ensureReasoning()...)
		out = append(out, stream.VendorEvent{
			Kind:  stream.EventContentBlockDelta,
			Index: d.reasoning,
			Delta: &stream.BlockDelta{Kind: stream.DeltaThinking, Text: r},
		})
	}

	// 文本内容
	if content := delta.Get("content").String(); content != "" {
		out = append(out, d.ensureText()...)
		out = append(out, stream.VendorEvent{
			Kind:  stream.EventContentBlockDelta,
			Index: d.text,
			Delta: &stream.BlockDelta{Kind: stream.DeltaText, Text: content},
		})
	}

	// 工具调用
	for _, tc := range delta.Get("tool_calls").Array() {
		out = append(out, d.toolCall(tc)...)
	}

	// 完成原因：关闭所有块
	if reason := choice.Get("finish_reason").String(); reason != "" {
		out = append(out, d.closeAll()...)
		out = append(out, stream.VendorEvent{Kind: stream.EventMessageDelta, StopReason: reason})
	}

	// include_usage 用量块（choices 为空）
	if usage := chunk.Get("usage"); usage.IsObject() {
		out = append(out, stream.VendorEvent{
			Kind: stream.EventMessageDelta,
			Usage: &stream.UsageUpdate{
				PromptTokens:     usage.Get("prompt_tokens").Int(),
				CompletionTokens: usage.Get("completion_tokens").Int(),
				CacheReadTokens:  usage.Get("prompt_tokens_details.cached_tokens").Int(),
				ReasoningTokens:  usage.Get("completion_tokens_details.reasoning_tokens").Int(),
			},
		})
	}

	return out, nil
}

// FinishReasons 实现 [stream.Decoder]
func (d *Decoder) FinishReasons() stream.FinishReasonTable {
	return finishReasons
}

// ═══════════════════════════════════════════════════════════════════════════
// 块合成
// ═══════════════════════════════════════════════════════════════════════════

func (d *Decoder) openBlock(start *stream.BlockStart) (int, stream.VendorEvent) {
	index := d.nextIndex
	d.nextIndex++
	d.open = append(d.open, index)
	return index, stream.VendorEvent{Kind: stream.EventContentBlockStart, Index: index, Block: start}
}

func (d *Decoder) closeBlock(index int) []stream.VendorEvent {
	i := slices.Index(d.open, index)
	if i < 0 {
		return nil
	}
	d.open = slices.Delete(d.open, i, i+1)
	return []stream.VendorEvent{{Kind: stream.EventContentBlockStop, Index: index}}
}

func (d *Decoder) closeAll() []stream.VendorEvent {
	var out []stream.VendorEvent
	for _, index := range slices.Clone(d.open) {
		out = append(out, d.closeBlock(index)...)
	}
	d.text, d.reasoning = -1, -1
	return out
}

// ensureReasoning 需要时打开推理块
func (d *Decoder) ensureReasoning() []stream.VendorEvent {
	if d.reasoning >= 0 {
		return nil
	}
	index, ev := d.openBlock(&stream.BlockStart{Kind: stream.BlockThinking})
	d.reasoning = index
	return []stream.VendorEvent{ev}
}

// ensureText 需要时打开文本块；推理在正文开始时结束
func (d *Decoder) ensureText() []stream.VendorEvent {
	if d.text >= 0 {
		return nil
	}
	var out []stream.VendorEvent
	if d.reasoning >= 0 {
		out = d.closeBlock(d.reasoning)
		d.reasoning = -1
	}
	index, ev := d.openBlock(&stream.BlockStart{Kind: stream.BlockText})
	d.text = index
	return append(out, ev)
}

// toolCall 处理单个 tool_calls[] 片段
func (d *Decoder) toolCall(tc gjson.Result) []stream.VendorEvent {
	var out []stream.VendorEvent

	vendorIndex := int(tc.Get("index").Int())
	index, ok := d.tools[vendorIndex]
	if !ok {
		var ev stream.VendorEvent
		index, ev = d.openBlock(&stream.BlockStart{
			Kind: stream.BlockToolUse,
			ID:   tc.Get("id").String(),
			Name: tc.Get("function.name").String(),
		})
		d.tools[vendorIndex] = index
		out = append(out, ev)
	}

	if args := tc.Get("function.arguments").String(); args != "" {
		out = append(out, stream.VendorEvent{
			Kind:  stream.EventContentBlockDelta,
			Index: index,
			Delta: &stream.BlockDelta{Kind: stream.DeltaInputJSON, PartialJSON: args},
		})
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// 完成原因
// ═══════════════════════════════════════════════════════════════════════════

// finishReasons OpenAI finish_reason 映射
var finishReasons = stream.FinishReasonTable{
	"stop":           llm.FinishReasonStop,
	"length":         llm.FinishReasonLength,
	"tool_calls":     llm.FinishReasonToolCalls,
	"function_call":  llm.FinishReasonToolCalls,
	"content_filter": llm.FinishReasonContentFilter,
}

// 确保 Decoder 实现了 stream.Decoder 接口
var _ stream.Decoder = (*Decoder)(nil)
