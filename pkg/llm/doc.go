// Package llm 提供多厂商 LLM 流式与批量调用的规范化类型
//
// 本包只定义与厂商无关的数据模型与契约，包括：
//   - [Provider]: 流式完成接口
//   - [ChatMessage]: 组装后的助手消息（文本、推理、工具调用、用量）
//   - [Event]: 流式事件，最后一个总是 [EventTypeDone]
//   - [Config]: Provider 配置与文件加载
//   - 错误分类：[ConfigError]、[APIError]、[CapabilityError] 等
//
// 完整使用示例请参考 example_test.go。
//
// # 流式事件
//
// 厂商 SSE 经协议解码器转换为统一的 [Event] 序列：
//
//	text / reasoning / citation / tool_call / block_done → finalize → done
//
// [EventTypeFinalize] 携带完整消息，[EventTypeDone] 携带 [StreamTerminal]
// （完成原因、用量、传输错误或取消标记）。用量各字段只增不减。
//
// # Provider 类型
//
// [ProviderType] 枚举支持的厂商，[ProviderType.Protocol] 决定线协议族：
//   - openai: OpenAI、OpenRouter、DeepSeek、Ollama、Groq 等兼容服务
//   - anthropic: Anthropic Claude
//   - gemini: Google Gemini API
//
// # 环境变量
//
// API Key 按类型探测，最后回退到 LLM_API_KEY：
//   - OPENAI_API_KEY
//   - ANTHROPIC_API_KEY
//   - GEMINI_API_KEY / GOOGLE_API_KEY
//   - OPENROUTER_API_KEY
//
// # 子包
//
//   - [pkg/llm/core]: HTTP 基础客户端、SSE 帧解析、字段回退查找
//   - [pkg/llm/stream]: 流式组装器与 Run 驱动
//   - [pkg/llm/protocol]: 各厂商的流解码器与结果解析
//   - [pkg/llm/batch]: 批量任务编排、状态规范化、结果读取
//   - [pkg/llm/provider]: 厂商客户端与统一工厂
//
// # 包文件组织
//
//   - types.go: Provider 接口、Usage、FinishReason、StreamTerminal
//   - message.go: ChatMessage、ContentBlock、ToolCall、Citation
//   - event.go: Event、EventType、ChatDelta
//   - provider_type.go: ProviderType 枚举
//   - config.go: Config 与配置文件加载
//   - errors.go: 错误分类
package llm
