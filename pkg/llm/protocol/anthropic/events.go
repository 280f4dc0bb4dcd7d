package anthropic

import (
	"errors"

	"github.com/tidwall/gjson"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/core"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/stream"
)

// ═══════════════════════════════════════════════════════════════════════════
// Anthropic SSE 解码器
// ═══════════════════════════════════════════════════════════════════════════

// Decoder Anthropic Messages 流解码器
//
// 实现 [stream.Decoder]。Anthropic 的线上事件与规范事件一一对应：
//   - message_start:        消息开始（携带 input / cache tokens）
//   - content_block_start:  内容块开始（text / tool_use / thinking / redacted_thinking）
//   - content_block_delta:  内容块增量（text / input_json / thinking / signature / citations）
//   - content_block_stop:   内容块结束
//   - message_delta:        stop_reason + output_tokens
//   - message_stop:         消息结束
//   - ping / error:         心跳 / 错误帧
//
// 事件类型优先取 "event:" 行，缺失时取 data 中的 "type" 字段。
// Decoder 本身无状态，但仍应每个流创建一个。
type Decoder struct{}

// NewDecoder 创建 Anthropic 解码器
func NewDecoder() *Decoder {
	return &Decoder{}
}

// errMalformed 帧不是合法 JSON
var errMalformed = errors.New("anthropic: malformed event payload")

// Decode 解码单个帧
func (d *Decoder) Decode(frame core.Frame) ([]stream.VendorEvent, error) {
	if !gjson.Valid(frame.Data) {
		return nil, errMalformed
	}
	data := gjson.Parse(frame.Data)

	tag := frame.Event
	if tag == "" {
		tag = data.Get("type").String()
	}
	kind := stream.ParseEventKind(tag)
	index := int(data.Get("index").Int())

	switch kind {
	case stream.EventMessageStart:
		usage := data.Get("message.usage")
		return []stream.VendorEvent{{
			Kind: kind,
			Usage: &stream.UsageUpdate{
				PromptTokens:     usage.Get("input_tokens").Int(),
				CacheReadTokens:  usage.Get("cache_read_input_tokens").Int(),
				CacheWriteTokens: usage.Get("cache_creation_input_tokens").Int(),
			},
		}}, nil

	case stream.EventContentBlockStart:
		block := data.Get("content_block")
		return []stream.VendorEvent{{
			Kind:  kind,
			Index: index,
			Block: &stream.BlockStart{
				Kind: stream.ParseBlockKind(block.Get("type").String()),
				ID:   block.Get("id").String(),
				Name: block.Get("name").String(),
				Text: block.Get("text").String(),
				Data: block.Get("data").String(),
			},
		}}, nil

	case stream.EventContentBlockDelta:
		return []stream.VendorEvent{{
			Kind:  kind,
			Index: index,
			Delta: parseDelta(data.Get("delta")),
		}}, nil

	case stream.EventContentBlockStop:
		return []stream.VendorEvent{{Kind: kind, Index: index}}, nil

	case stream.EventMessageDelta:
		// output_tokens 是本消息的输出量；input_tokens 已在 message_start 计入
		return []stream.VendorEvent{{
			Kind:       kind,
			StopReason: data.Get("delta.stop_reason").String(),
			Usage: &stream.UsageUpdate{
				CompletionTokens: data.Get("usage.output_tokens").Int(),
			},
		}}, nil

	case stream.EventError:
		return []stream.VendorEvent{{
			Kind: kind,
			Error: &stream.FrameError{
				Type:    data.Get("error.type").String(),
				Message: data.Get("error.message").String(),
			},
		}}, nil

	default:
		// message_stop / ping / unknown
		return []stream.VendorEvent{{Kind: kind}}, nil
	}
}

// FinishReasons 实现 [stream.Decoder]
func (d *Decoder) FinishReasons() stream.FinishReasonTable {
	return finishReasons
}

// parseDelta 解析 content_block_delta.delta
func parseDelta(delta gjson.Result) *stream.BlockDelta {
	kind := stream.ParseDeltaKind(delta.Get("type").String())
	out := &stream.BlockDelta{Kind: kind}

	switch kind {
	case stream.DeltaText:
		out.Text = delta.Get("text").String()
	case stream.DeltaThinking:
		out.Text = delta.Get("thinking").String()
	case stream.DeltaInputJSON:
		out.PartialJSON = delta.Get("partial_json").String()
	case stream.DeltaSignature:
		out.Signature = delta.Get("signature").String()
	case stream.DeltaCitation:
		c := parseCitation(delta.Get("citation"))
		out.Citation = &c
	}
	return out
}

// parseCitation 统一 char_location / page_location / content_block_location /
// web_search_result_location 等引用格式
func parseCitation(c gjson.Result) llm.Citation {
	start := c.Get("start_char_index")
	end := c.Get("end_char_index")
	if !start.Exists() {
		start = c.Get("start_page_number")
		end = c.Get("end_page_number")
	}
	if !start.Exists() {
		start = c.Get("start_block_index")
		end = c.Get("end_block_index")
	}

	return llm.Citation{
		Type:          c.Get("type").String(),
		CitedText:     c.Get("cited_text").String(),
		DocumentIndex: int(c.Get("document_index").Int()),
		DocumentTitle: c.Get("document_title").String(),
		URL:           c.Get("url").String(),
		Title:         c.Get("title").String(),
		StartIndex:    int(start.Int()),
		EndIndex:      int(end.Int()),
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 完成原因
// ═══════════════════════════════════════════════════════════════════════════

// finishReasons Anthropic stop_reason 映射
//
//   - end_turn / stop_sequence / pause_turn -> stop
//   - max_tokens                            -> length
//   - tool_use                              -> tool_calls
//   - refusal                               -> content_filter
var finishReasons = stream.FinishReasonTable{
	"end_turn":      llm.FinishReasonStop,
	"stop_sequence": llm.FinishReasonStop,
	"pause_turn":    llm.FinishReasonStop,
	"max_tokens":    llm.FinishReasonLength,
	"tool_use":      llm.FinishReasonToolCalls,
	"refusal":       llm.FinishReasonContentFilter,
}

// 确保 Decoder 实现了 stream.Decoder 接口
var _ stream.Decoder = (*Decoder)(nil)
