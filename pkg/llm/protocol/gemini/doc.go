// Package gemini 实现 Google Gemini API 的协议解码
//
// Gemini API 使用独特的 Content/Parts 格式，与 OpenAI 和 Anthropic 都不同。
//
// # 协议特点
//
//   - 内容格式：candidates[0].content.parts[] 结构
//   - 流式端点：:streamGenerateContent?alt=sse，每个 data 行是完整响应块
//   - 无 [DONE] 终止信号，finishReason 表示结束
//   - 工具调用：functionCall part 一次性给出完整参数对象
//   - 认证方式：x-goog-api-key 请求头
//
// # 块合成
//
// Gemini 没有内容块框架，[Decoder] 为连续的文本 part、连续的 thought part
// 以及每个 functionCall 合成块，块索引按出现顺序分配。
//
// # Thinking 支持
//
// Gemini 2.5 系列模型在 thinkingConfig.includeThoughts 为 true 时返回思考内容：
//
//	{"text": "Analyzing...", "thought": true, "thoughtSignature": "..."}
//
// thought part 映射为推理块，thoughtSignature 映射为推理签名；
// usageMetadata.thoughtsTokenCount 计入 ReasoningTokens。
//
// # 批量结果
//
// [ParseMessage] 解析非流式 generateContent 响应，供批量结果行使用。
package gemini
