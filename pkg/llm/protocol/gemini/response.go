package gemini

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
)

// ParseMessage 解析 Gemini generateContent 的完整响应
//
// 用于批量结果中 response 的转换。
//
// Gemini 格式：
//
//	{
//	  "candidates": [{
//	    "content": {"role": "model", "parts": [
//	      {"text": "...", "thought": true, "thoughtSignature": "..."},
//	      {"text": "..."},
//	      {"functionCall": {"name": "...", "args": {...}}}
//	    ]},
//	    "finishReason": "STOP"
//	  }],
//	  "usageMetadata": {"promptTokenCount": 10, "candidatesTokenCount": 20, "thoughtsTokenCount": 5}
//	}
//
// ⚠️ 关键差异：functionCall.args 是 JSON 对象，保存为其原始文本。
func ParseMessage(body []byte) (*llm.ChatMessage, llm.FinishReason, error) {
	if !gjson.ValidBytes(body) {
		return nil, llm.FinishReasonUnknown, llm.NewResponseError("response", errMalformed)
	}
	resp := gjson.ParseBytes(body)
	candidate := resp.Get("candidates.0")

	msg := &llm.ChatMessage{Role: llm.RoleAssistant}

	var reasoning *llm.ReasoningBlock
	var text *llm.TextBlock
	for _, p := range candidate.Get("content.parts").Array() {
		if fc := p.Get("functionCall"); fc.IsObject() {
			reasoning, text = nil, nil
			call := &llm.ToolCall{
				Index:     len(msg.Parts),
				ID:        fc.Get("id").String(),
				Name:      fc.Get("name").String(),
				Arguments: fc.Get("args").Raw,
			}
			if call.ID == "" {
				call.ID = fmt.Sprintf("call_%d", len(msg.ToolCalls))
			}
			if call.Arguments == "" {
				call.Arguments = "{}"
			}
			msg.Parts = append(msg.Parts, call)
			msg.ToolCalls = append(msg.ToolCalls, call)
			continue
		}

		if !p.Get("text").Exists() {
			continue
		}
		if p.Get("thought").Bool() {
			// 连续的 thought part 合并为一个推理块
			if reasoning == nil {
				reasoning = &llm.ReasoningBlock{}
				msg.Parts = append(msg.Parts, reasoning)
			}
			text = nil
			reasoning.Text += p.Get("text").String()
			if sig := p.Get("thoughtSignature").String(); sig != "" {
				reasoning.Signature = sig
			}
			continue
		}

		if text == nil {
			text = &llm.TextBlock{}
			msg.Parts = append(msg.Parts, text)
		}
		reasoning = nil
		text.Text += p.Get("text").String()
		msg.Text += p.Get("text").String()
	}

	usage := resp.Get("usageMetadata")
	thoughts := usage.Get("thoughtsTokenCount").Int()
	msg.Usage = llm.Usage{
		PromptTokens:     usage.Get("promptTokenCount").Int(),
		CompletionTokens: usage.Get("candidatesTokenCount").Int() + thoughts,
		CacheReadTokens:  usage.Get("cachedContentTokenCount").Int(),
		ReasoningTokens:  thoughts,
	}
	msg.Usage.Finalize()

	reason := candidate.Get("finishReason").String()
	if reason == "" {
		reason = resp.Get("promptFeedback.blockReason").String()
	}
	return msg, finishReasons.Resolve(reason), nil
}
