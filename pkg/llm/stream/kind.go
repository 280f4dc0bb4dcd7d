package stream

// ═══════════════════════════════════════════════════════════════════════════
// 厂商事件类型（封闭枚举）
// ═══════════════════════════════════════════════════════════════════════════

// EventKind 厂商流事件类型
//
// 取值沿用 Anthropic 的线上标签；其他厂商的解码器合成同样的事件序列。
// 无法识别的标签一律映射为 EventUnknown，组装器对其不做任何处理。
type EventKind string

const (
	EventMessageStart      EventKind = "message_start"
	EventMessageStop       EventKind = "message_stop"
	EventMessageDelta      EventKind = "message_delta"
	EventContentBlockStart EventKind = "content_block_start"
	EventContentBlockDelta EventKind = "content_block_delta"
	EventContentBlockStop  EventKind = "content_block_stop"
	EventPing              EventKind = "ping"
	EventError             EventKind = "error"
	EventUnknown           EventKind = "unknown"
)

// ParseEventKind 将线上事件标签映射为 EventKind
func ParseEventKind(tag string) EventKind {
	switch k := EventKind(tag); k {
	case EventMessageStart, EventMessageStop, EventMessageDelta,
		EventContentBlockStart, EventContentBlockDelta, EventContentBlockStop,
		EventPing, EventError:
		return k
	default:
		return EventUnknown
	}
}

// String 返回字符串表示
func (k EventKind) String() string {
	return string(k)
}

// ═══════════════════════════════════════════════════════════════════════════
// 内容块与增量类型
// ═══════════════════════════════════════════════════════════════════════════

// BlockKind 内容块类型
type BlockKind string

const (
	BlockText             BlockKind = "text"
	BlockToolUse          BlockKind = "tool_use"
	BlockThinking         BlockKind = "thinking"
	BlockRedactedThinking BlockKind = "redacted_thinking"
	BlockUnknown          BlockKind = "unknown"
)

// ParseBlockKind 将线上内容块类型映射为 BlockKind
//
// server_tool_use 与 tool_use 一样按工具调用累积。
func ParseBlockKind(tag string) BlockKind {
	switch tag {
	case "text":
		return BlockText
	case "tool_use", "server_tool_use":
		return BlockToolUse
	case "thinking":
		return BlockThinking
	case "redacted_thinking":
		return BlockRedactedThinking
	default:
		return BlockUnknown
	}
}

// DeltaKind 内容块增量类型
type DeltaKind string

const (
	DeltaText      DeltaKind = "text_delta"
	DeltaInputJSON DeltaKind = "input_json_delta"
	DeltaThinking  DeltaKind = "thinking_delta"
	DeltaSignature DeltaKind = "signature_delta"
	DeltaCitation  DeltaKind = "citations_delta"
	DeltaUnknown   DeltaKind = "unknown"
)

// ParseDeltaKind 将线上增量类型映射为 DeltaKind
func ParseDeltaKind(tag string) DeltaKind {
	switch k := DeltaKind(tag); k {
	case DeltaText, DeltaInputJSON, DeltaThinking, DeltaSignature, DeltaCitation:
		return k
	default:
		return DeltaUnknown
	}
}
