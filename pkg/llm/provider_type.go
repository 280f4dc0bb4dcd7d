package llm

import "os"

// ProviderType LLM Provider 类型
type ProviderType string

const (
	// ProviderTypeOpenAI OpenAI 原生 API
	ProviderTypeOpenAI ProviderType = "openai"

	// ProviderTypeOpenRouter OpenRouter API（OpenAI 兼容）
	ProviderTypeOpenRouter ProviderType = "openrouter"

	// ProviderTypeAnthropic Anthropic 原生 API
	ProviderTypeAnthropic ProviderType = "anthropic"

	// ProviderTypeGemini Google Gemini API
	ProviderTypeGemini ProviderType = "gemini"

	// ProviderTypeDeepSeek DeepSeek API（OpenAI 兼容）
	ProviderTypeDeepSeek ProviderType = "deepseek"

	// ProviderTypeOllama Ollama 本地模型（OpenAI 兼容）
	ProviderTypeOllama ProviderType = "ollama"

	// ProviderTypeAzure Azure OpenAI API
	ProviderTypeAzure ProviderType = "azure"

	// ProviderTypeGroq Groq 快速推理 API（OpenAI 兼容）
	ProviderTypeGroq ProviderType = "groq"

	// ProviderTypeMistral Mistral AI API（OpenAI 兼容）
	ProviderTypeMistral ProviderType = "mistral"

	// ProviderTypeMoonshot 月之暗面 Kimi API（OpenAI 兼容）
	ProviderTypeMoonshot ProviderType = "moonshot"

	// ProviderTypeLocalMock 本地 Mock（无网络，用于测试与演示）
	ProviderTypeLocalMock ProviderType = "localmock"
)

// Protocol 线协议族
//
// 决定使用哪个流解码器与批量后端。
type Protocol string

const (
	ProtocolOpenAI    Protocol = "openai"
	ProtocolAnthropic Protocol = "anthropic"
	ProtocolGemini    Protocol = "gemini"
)

// String 返回字符串表示
func (t ProviderType) String() string {
	return string(t)
}

// IsOpenAICompatible 判断是否为 OpenAI 兼容协议
func (t ProviderType) IsOpenAICompatible() bool {
	switch t {
	case ProviderTypeOpenAI, ProviderTypeOpenRouter, ProviderTypeDeepSeek,
		ProviderTypeOllama, ProviderTypeAzure, ProviderTypeGroq,
		ProviderTypeMistral, ProviderTypeMoonshot:
		return true
	default:
		return false
	}
}

// Protocol 返回线协议族，未知类型返回空字符串
func (t ProviderType) Protocol() Protocol {
	switch {
	case t == ProviderTypeAnthropic:
		return ProtocolAnthropic
	case t == ProviderTypeGemini:
		return ProtocolGemini
	case t.IsOpenAICompatible(), t == ProviderTypeLocalMock:
		return ProtocolOpenAI
	default:
		return ""
	}
}

// DefaultBaseURL 返回默认 Base URL
func (t ProviderType) DefaultBaseURL() string {
	switch t {
	case ProviderTypeOpenAI:
		return "https://api.openai.com/v1"
	case ProviderTypeOpenRouter:
		return "https://openrouter.ai/api/v1"
	case ProviderTypeAnthropic:
		return "https://api.anthropic.com/v1"
	case ProviderTypeGemini:
		return "https://generativelanguage.googleapis.com/v1beta"
	case ProviderTypeDeepSeek:
		return "https://api.deepseek.com/v1"
	case ProviderTypeOllama:
		return "http://localhost:11434/v1"
	case ProviderTypeGroq:
		return "https://api.groq.com/openai/v1"
	case ProviderTypeMistral:
		return "https://api.mistral.ai/v1"
	case ProviderTypeMoonshot:
		return "https://api.moonshot.cn/v1"
	default:
		return ""
	}
}

// DefaultModel 返回默认模型
func (t ProviderType) DefaultModel() string {
	switch t {
	case ProviderTypeOpenAI:
		return "gpt-4o-mini"
	case ProviderTypeOpenRouter:
		return "anthropic/claude-haiku-4.5"
	case ProviderTypeAnthropic:
		return "claude-3-5-haiku-latest"
	case ProviderTypeGemini:
		return "gemini-2.5-flash"
	case ProviderTypeDeepSeek:
		return "deepseek-chat"
	case ProviderTypeOllama:
		return "llama3.2"
	case ProviderTypeGroq:
		return "llama-3.3-70b-versatile"
	case ProviderTypeMistral:
		return "mistral-large-latest"
	case ProviderTypeMoonshot:
		return "moonshot-v1-128k"
	case ProviderTypeLocalMock:
		return "mock"
	default:
		return ""
	}
}

// EnvAPIKeys 返回该类型按优先级探测的 API Key 环境变量
func (t ProviderType) EnvAPIKeys() []string {
	var keys []string
	switch t {
	case ProviderTypeOpenAI, ProviderTypeAzure:
		keys = []string{"OPENAI_API_KEY"}
	case ProviderTypeOpenRouter:
		keys = []string{"OPENROUTER_API_KEY"}
	case ProviderTypeAnthropic:
		keys = []string{"ANTHROPIC_API_KEY"}
	case ProviderTypeGemini:
		keys = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	case ProviderTypeDeepSeek:
		keys = []string{"DEEPSEEK_API_KEY"}
	case ProviderTypeGroq:
		keys = []string{"GROQ_API_KEY"}
	case ProviderTypeMistral:
		keys = []string{"MISTRAL_API_KEY"}
	case ProviderTypeMoonshot:
		keys = []string{"MOONSHOT_API_KEY"}
	}
	return append(keys, "LLM_API_KEY")
}

// GetEnvAPIKey 从环境变量读取 API Key，未设置返回空字符串
func (t ProviderType) GetEnvAPIKey() string {
	for _, key := range t.EnvAPIKeys() {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
