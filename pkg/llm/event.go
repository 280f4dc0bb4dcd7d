package llm

// ═══════════════════════════════════════════════════════════════════════════
// 事件类型 - 统一的流式事件系统
// ═══════════════════════════════════════════════════════════════════════════

// EventType 事件类型
type EventType string

const (
	EventTypeText      EventType = "text"       // 文本增量
	EventTypeReasoning EventType = "reasoning"  // 推理过程（累计文本 / redacted 签名）
	EventTypeCitation  EventType = "citation"   // 引用（可能早于所属文本块结束）
	EventTypeToolCall  EventType = "tool_call"  // 完整工具调用（块结束时发出，最后一次为准）
	EventTypeBlockDone EventType = "block_done" // 推理块完成（非最终结果）
	EventTypeFinalize  EventType = "finalize"   // 完整组装的消息
	EventTypeDone      EventType = "done"       // 终止事件（完成原因 + 用量）
)

// Event 统一事件结构
//
// 事件按产生顺序交付，顺序有意义。
//
// 使用示例：
//
//	events, err := provider.Stream(ctx, request)
//	if err != nil {
//	    return err
//	}
//	for event := range events {
//	    switch event.Type {
//	    case llm.EventTypeText:
//	        fmt.Print(event.Delta.Text)
//	    case llm.EventTypeToolCall:
//	        fmt.Printf("[Tool: %s]\n", event.Delta.ToolCalls[0].Name)
//	    case llm.EventTypeFinalize:
//	        msg = event.Message
//	    case llm.EventTypeDone:
//	        fmt.Printf("\nDone! Reason: %s\n", event.Terminal.FinishReason)
//	    }
//	}
type Event struct {
	Type  EventType `json:"type"`
	Index int       `json:"index"`

	// Delta 文本 / 推理 / 引用 / 工具调用增量
	Delta *ChatDelta `json:"delta,omitempty"`

	// Block 已完成的内容块（EventTypeBlockDone）
	Block ContentBlock `json:"block,omitempty"`

	// Final 仅 EventTypeFinalize 为 true；block_done 事件显式标记为 false，
	// 调用方不应将其当作最终答案。
	Final bool `json:"final"`

	// Message 完整消息（EventTypeFinalize），替换调用方自行拼接的临时结果
	Message *ChatMessage `json:"message,omitempty"`

	// Terminal 终止记录（EventTypeDone）
	Terminal *StreamTerminal `json:"terminal,omitempty"`
}

// Text 获取文本增量（便捷方法）
func (e *Event) Text() string {
	if e.Delta == nil {
		return ""
	}
	return e.Delta.Text
}

// IsTerminal 是否为终止事件
func (e *Event) IsTerminal() bool {
	return e.Type == EventTypeDone
}

// ═══════════════════════════════════════════════════════════════════════════
// 事件相关类型
// ═══════════════════════════════════════════════════════════════════════════

// ChatDelta 单个流式增量
//
// 可选文本片段、零到多个工具调用、可选推理片段、零到多个引用。
type ChatDelta struct {
	Text      string          `json:"text,omitempty"`
	ToolCalls []ToolCall      `json:"tool_calls,omitempty"`
	Reasoning *ReasoningDelta `json:"reasoning,omitempty"`
	Citations []Citation      `json:"citations,omitempty"`
}

// ReasoningDelta 推理内容增量
//
// Text 为该推理块到目前为止的累计文本；Redacted 为 true 时
// Signature 携带 redacted_thinking 的不透明数据。
type ReasoningDelta struct {
	Text      string `json:"text,omitempty"`
	Signature string `json:"signature,omitempty"`
	Redacted  bool   `json:"redacted,omitempty"`
}
