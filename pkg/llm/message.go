package llm

import (
	"encoding/json"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// 角色定义
// ═══════════════════════════════════════════════════════════════════════════

// Role 消息角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ═══════════════════════════════════════════════════════════════════════════
// 规范化消息
// ═══════════════════════════════════════════════════════════════════════════

// ChatMessage 规范化的助手消息
//
// 由流式组装器（或批量结果解析）构建，与厂商无关：
//   - Text: 所有文本块按顺序拼接的完整文本
//   - Parts: 有序内容块（TextBlock | ReasoningBlock | ToolCall）
//   - ToolCalls: 按块索引登记的工具调用
//   - Usage: 运行中的用量快照
//
// 流结束后消息被冻结，调用方不应再修改。
type ChatMessage struct {
	Role      Role           `json:"role"`
	Text      string         `json:"text,omitempty"`
	Parts     []ContentBlock `json:"parts,omitempty"`
	ToolCalls []*ToolCall    `json:"tool_calls,omitempty"`
	Usage     Usage          `json:"usage"`
}

// GetText 获取消息文本内容
func (m *ChatMessage) GetText() string {
	if m.Text != "" {
		return m.Text
	}
	var sb strings.Builder
	for _, part := range m.Parts {
		if tb, ok := part.(*TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String()
}

// GetToolCalls 获取消息中的工具调用
func (m *ChatMessage) GetToolCalls() []*ToolCall {
	return m.ToolCalls
}

// HasToolCalls 检查消息是否包含工具调用
func (m *ChatMessage) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Reasoning 拼接所有推理块的文本
func (m *ChatMessage) Reasoning() string {
	var sb strings.Builder
	for _, part := range m.Parts {
		if rb, ok := part.(*ReasoningBlock); ok {
			sb.WriteString(rb.Text)
		}
	}
	return sb.String()
}

// Citations 获取所有文本块上的引用
func (m *ChatMessage) Citations() []Citation {
	var out []Citation
	for _, part := range m.Parts {
		if tb, ok := part.(*TextBlock); ok {
			out = append(out, tb.Citations...)
		}
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// 内容块类型
// ═══════════════════════════════════════════════════════════════════════════

// ContentBlock 内容块接口
type ContentBlock interface {
	BlockType() string
}

// TextBlock 文本块（可附带引用）
type TextBlock struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
}

// BlockType 实现 ContentBlock 接口
func (b *TextBlock) BlockType() string { return "text" }

// ReasoningBlock 思考/推理内容块
//
// 用于存储模型的思考过程，支持：
//   - Anthropic Claude 的 extended thinking（含签名与 redacted_thinking）
//   - Gemini 2.5 系列的 thought parts
//   - DeepSeek R1 的 reasoning_content
//
// Redacted 保存 redacted_thinking 块的不透明数据，原样回传给厂商即可。
type ReasoningBlock struct {
	Text      string   `json:"text,omitempty"`
	Signature string   `json:"signature,omitempty"`
	Redacted  []string `json:"redacted,omitempty"`
}

// BlockType 实现 ContentBlock 接口
func (b *ReasoningBlock) BlockType() string { return "reasoning" }

// ═══════════════════════════════════════════════════════════════════════════
// 工具调用
// ═══════════════════════════════════════════════════════════════════════════

// ToolCall 工具调用（实现 ContentBlock 接口）
//
// Arguments 是厂商流式推送的原始 JSON 文本，块结束后冻结。
// 它可能是被截断或无效的 JSON（例如 max_tokens 截断），按原样交付，
// 由调用方决定如何解析或修复。
type ToolCall struct {
	Index     int    `json:"index"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// BlockType 实现 ContentBlock 接口
func (tc *ToolCall) BlockType() string { return "tool_use" }

// ValidJSON 检查参数是否为合法 JSON
func (tc *ToolCall) ValidJSON() bool {
	if tc.Arguments == "" {
		return false
	}
	return json.Valid([]byte(tc.Arguments))
}

// Input 解析参数为对象
//
// 空参数视为空对象；非法 JSON 返回 ResponseError。
func (tc *ToolCall) Input() (map[string]any, error) {
	if strings.TrimSpace(tc.Arguments) == "" {
		return map[string]any{}, nil
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
		return nil, NewResponseError("tool_call.arguments", err)
	}
	return input, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 引用
// ═══════════════════════════════════════════════════════════════════════════

// Citation 文本引用
//
// 统一 Anthropic 的 char_location/page_location/web_search_result_location
// 等引用格式，未使用的字段保持零值。
type Citation struct {
	Type          string `json:"type"`
	CitedText     string `json:"cited_text,omitempty"`
	DocumentIndex int    `json:"document_index,omitempty"`
	DocumentTitle string `json:"document_title,omitempty"`
	URL           string `json:"url,omitempty"`
	Title         string `json:"title,omitempty"`
	StartIndex    int    `json:"start_index,omitempty"`
	EndIndex      int    `json:"end_index,omitempty"`
}
