package openai

import (
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/core"
)

// ParseMessage 解析 OpenAI Chat Completions 的完整响应
//
// 用于批量结果中 response.body 的转换。
//
// OpenAI 格式：
//
//	{
//	  "choices": [{
//	    "message": {
//	      "role": "assistant",
//	      "content": "...",
//	      "reasoning_content": "...",
//	      "tool_calls": [{"id": "call_xxx", "type": "function", "function": {"name": "...", "arguments": "{...}"}}]
//	    },
//	    "finish_reason": "tool_calls"
//	  }],
//	  "usage": {"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30}
//	}
//
// ⚠️ 关键差异：function.arguments 已是 JSON 字符串，原样保留。
func ParseMessage(body []byte) (*llm.ChatMessage, llm.FinishReason, error) {
	if !gjson.ValidBytes(body) {
		return nil, llm.FinishReasonUnknown, llm.NewResponseError("message", errMalformed)
	}
	resp := gjson.ParseBytes(body)
	choice := resp.Get("choices.0")
	message := choice.Get("message")

	msg := &llm.ChatMessage{Role: llm.RoleAssistant}

	if r := core.FirstString([]byte(message.Raw), "reasoning_content", "reasoning"); r != "" {
		msg.Parts = append(msg.Parts, &llm.ReasoningBlock{Text: r})
	}

	if content := message.Get("content").String(); content != "" {
		msg.Text = content
		msg.Parts = append(msg.Parts, &llm.TextBlock{Text: content})
	}

	for i, tc := range message.Get("tool_calls").Array() {
		call := &llm.ToolCall{
			Index:     len(msg.Parts),
			ID:        tc.Get("id").String(),
			Name:      tc.Get("function.name").String(),
			Arguments: tc.Get("function.arguments").String(),
		}
		if call.ID == "" {
			call.ID = "call_" + strconv.Itoa(i)
		}
		msg.Parts = append(msg.Parts, call)
		msg.ToolCalls = append(msg.ToolCalls, call)
	}

	usage := resp.Get("usage")
	msg.Usage = llm.Usage{
		PromptTokens:     usage.Get("prompt_tokens").Int(),
		CompletionTokens: usage.Get("completion_tokens").Int(),
		CacheReadTokens:  usage.Get("prompt_tokens_details.cached_tokens").Int(),
		ReasoningTokens:  usage.Get("completion_tokens_details.reasoning_tokens").Int(),
	}
	msg.Usage.Finalize()

	return msg, finishReasons.Resolve(choice.Get("finish_reason").String()), nil
}
