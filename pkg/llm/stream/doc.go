// Package stream 把厂商 SSE 流组装为规范事件序列。
//
// 分层：
//
//	core.SSEScanner  → 分帧（event:/data:/空行）
//	Decoder          → 厂商帧 → VendorEvent（封闭枚举 + Unknown）
//	Assembler        → 以块索引为键的累加器，产出 llm.Event
//	Run              → 串起以上三者，负责 ctx 取消与响应体释放
//
// 各厂商解码器位于 protocol/anthropic、protocol/openai、protocol/gemini。
// OpenAI 与 Gemini 没有块框架，由解码器合成与 Anthropic 相同的事件序列，
// 因此三家共用同一个 Assembler。
package stream
