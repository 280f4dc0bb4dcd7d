package openai

import (
	"strings"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// Reasoning 模型适配
// ═══════════════════════════════════════════════════════════════════════════

// reasoningModelPrefixes Reasoning 模型前缀列表
// 这些模型有特殊要求：temperature 必须为 1，不支持 top_p
var reasoningModelPrefixes = []string{
	// OpenAI Reasoning 模型
	"o1",
	"o3",
	"o4",
	"gpt-5",
	// DeepSeek Reasoning 模型
	"deepseek-reasoner",
	"deepseek-r1",
}

// IsReasoningModel 判断是否为 Reasoning 模型
//
// Reasoning 模型 (如 o1, o3, DeepSeek R1) 有特殊的 API 限制：
//   - temperature 必须为 1
//   - 不支持 top_p 参数
//   - 支持 reasoning_effort 参数
func IsReasoningModel(model string) bool {
	modelLower := strings.ToLower(model)
	// OpenRouter 形式："openai/o3-mini"
	if i := strings.LastIndexByte(modelLower, '/'); i >= 0 {
		modelLower = modelLower[i+1:]
	}
	for _, prefix := range reasoningModelPrefixes {
		if strings.HasPrefix(modelLower, prefix) {
			return true
		}
	}
	return false
}

// ReasoningEffort Reasoning 力度级别
type ReasoningEffort string

const (
	ReasoningEffortMinimal ReasoningEffort = "minimal"
	ReasoningEffortLow     ReasoningEffort = "low"
	ReasoningEffortMedium  ReasoningEffort = "medium"
	ReasoningEffortHigh    ReasoningEffort = "high"
)

// IsValidReasoningEffort 验证 Reasoning 力度是否有效
func IsValidReasoningEffort(effort string) bool {
	switch ReasoningEffort(effort) {
	case ReasoningEffortMinimal, ReasoningEffortLow, ReasoningEffortMedium, ReasoningEffortHigh:
		return true
	default:
		return effort == ""
	}
}

// AdaptRequest 按模型类型调整请求体（原地修改）
//
// Reasoning 模型：temperature 置为 1，移除 top_p。
// reasoning_effort 取值非法时返回 ValidationError，不发出请求。
func AdaptRequest(req map[string]any) error {
	if effort, ok := req["reasoning_effort"].(string); ok && !IsValidReasoningEffort(effort) {
		return llm.NewValidationError("reasoning_effort", effort, "expected minimal, low, medium or high")
	}

	model, _ := req["model"].(string)
	if !IsReasoningModel(model) {
		return nil
	}
	if _, ok := req["temperature"]; ok {
		req["temperature"] = 1.0
	}
	delete(req, "top_p")
	return nil
}
