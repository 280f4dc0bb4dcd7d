package anthropic

import (
	"github.com/tidwall/gjson"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// ParseMessage - 完整响应 → 规范消息
// ═══════════════════════════════════════════════════════════════════════════

// ParseMessage 解析 Anthropic Messages API 的完整响应
//
// 用于批量结果中 result.message 的转换。
//
// Anthropic 响应格式：
//
//	{
//	  "content": [
//	    {"type": "thinking", "thinking": "...", "signature": "..."},
//	    {"type": "text", "text": "...", "citations": [...]},
//	    {"type": "tool_use", "id": "toolu_xxx", "name": "get_weather", "input": {...}}
//	  ],
//	  "stop_reason": "tool_use",
//	  "usage": {"input_tokens": 10, "output_tokens": 20}
//	}
//
// ⚠️ 关键差异：tool_use.input 是对象，这里保留其原始 JSON 文本作为 Arguments。
func ParseMessage(body []byte) (*llm.ChatMessage, llm.FinishReason, error) {
	if !gjson.ValidBytes(body) {
		return nil, llm.FinishReasonUnknown, llm.NewResponseError("message", errMalformed)
	}
	resp := gjson.ParseBytes(body)

	msg := &llm.ChatMessage{Role: llm.RoleAssistant}
	var redacted []string

	for i, block := range resp.Get("content").Array() {
		switch block.Get("type").String() {
		case "text":
			tb := &llm.TextBlock{Text: block.Get("text").String()}
			for _, c := range block.Get("citations").Array() {
				tb.Citations = append(tb.Citations, parseCitation(c))
			}
			msg.Text += tb.Text
			msg.Parts = append(msg.Parts, tb)

		case "thinking":
			msg.Parts = append(msg.Parts, &llm.ReasoningBlock{
				Text:      block.Get("thinking").String(),
				Signature: block.Get("signature").String(),
				Redacted:  redacted,
			})
			redacted = nil

		case "redacted_thinking":
			redacted = append(redacted, block.Get("data").String())

		case "tool_use", "server_tool_use":
			args := block.Get("input").Raw
			if args == "" {
				args = "{}"
			}
			tc := &llm.ToolCall{
				Index:     i,
				ID:        block.Get("id").String(),
				Name:      block.Get("name").String(),
				Arguments: args,
			}
			msg.Parts = append(msg.Parts, tc)
			msg.ToolCalls = append(msg.ToolCalls, tc)
		}
	}
	if len(redacted) > 0 {
		msg.Parts = append(msg.Parts, &llm.ReasoningBlock{Redacted: redacted})
	}

	// Anthropic 不返回 total_tokens，由 Finalize 计算
	usage := resp.Get("usage")
	msg.Usage = llm.Usage{
		PromptTokens:     usage.Get("input_tokens").Int(),
		CompletionTokens: usage.Get("output_tokens").Int(),
		CacheReadTokens:  usage.Get("cache_read_input_tokens").Int(),
		CacheWriteTokens: usage.Get("cache_creation_input_tokens").Int(),
	}
	msg.Usage.Finalize()

	return msg, finishReasons.Resolve(resp.Get("stop_reason").String()), nil
}
