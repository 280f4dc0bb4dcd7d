package localmock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"maps"
	"sync"
	"time"

	loremgen "github.com/bozaro/golorem"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/protocol/openai"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/stream"
)

// CallRecord 记录一次 Stream 调用的详情
type CallRecord struct {
	Request map[string]any
	Time    time.Time
}

// ToolCall 预设的工具调用
type ToolCall struct {
	Name      string
	Arguments string // JSON 字符串，空表示 "{}"
}

// Reply 一次完整的预设响应
type Reply struct {
	Reasoning string
	Text      string
	Tools     []ToolCall
}

// ReplyFunc 动态响应函数类型
// 接收请求体和调用次数，返回响应
type ReplyFunc func(request map[string]any, callCount int) Reply

// Client 本地 Mock Provider
//
// 实现 [llm.Provider] 与 [batch.Backend]，无需网络：
//   - Stream 把预设响应编码为 Chat Completions SSE，经 [stream.Run] 解码，
//     与真实 Provider 走同一条组装路径
//   - 批量任务保存在内存中，经过若干次查询后完成
type Client struct {
	mu        sync.RWMutex
	response  string        // 默认响应
	responses []string      // 响应队列（依次返回）
	respIdx   int           // 当前响应索引
	replyFunc ReplyFunc     // 动态响应函数
	delay     time.Duration // 首包延迟
	err       error         // 返回错误
	chunkSize int           // 每个 chunk 的字符数
	calls     []CallRecord  // 调用记录
	counter   int           // 调用计数
	logger    *slog.Logger

	// 场景状态（通过 name 索引）
	scenarios       map[string]*scenarioState
	currentScenario string

	// 批量任务状态
	jobs       map[string]*mockJob
	batchPolls int             // 任务完成前需要的查询次数
	failIDs    map[string]bool // 结果中标记为失败的 custom_id
}

// New 创建 Mock Client
//
// 使用示例:
//
//	client := localmock.New()                                 // 默认响应
//	client := localmock.New(localmock.WithResponse("hi"))     // 预设响应
//	client := localmock.New(localmock.WithScriptFile("s.yaml")) // 脚本场景
func New(opts ...Option) *Client {
	c := &Client{
		response:  "This is a mock response.",
		chunkSize: 4,
		logger:    slog.New(slog.DiscardHandler),
		jobs:      make(map[string]*mockJob),
		failIDs:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option 配置选项函数
type Option func(*Client)

// WithResponse 设置预设响应文本
func WithResponse(text string) Option {
	return func(c *Client) {
		c.response = text
	}
}

// WithResponses 设置响应队列（依次返回，用完后循环）
func WithResponses(texts ...string) Option {
	return func(c *Client) {
		c.responses = texts
	}
}

// WithReplyFunc 设置动态响应函数（支持推理与工具调用）
func WithReplyFunc(fn ReplyFunc) Option {
	return func(c *Client) {
		c.replyFunc = fn
	}
}

// WithLorem 使用随机 lorem ipsum 段落作为响应
//
// 适合压测流式组装或批量结果读取，不关心响应内容的场景。
func WithLorem(minSentences, maxSentences int) Option {
	return func(c *Client) {
		generator := loremgen.New()
		c.replyFunc = func(map[string]any, int) Reply {
			return Reply{Text: generator.Paragraph(minSentences, maxSentences)}
		}
	}
}

// WithDelay 设置首包延迟
func WithDelay(d time.Duration) Option {
	return func(c *Client) {
		c.delay = d
	}
}

// WithError 设置返回错误
func WithError(err error) Option {
	return func(c *Client) {
		c.err = err
	}
}

// WithChunkSize 设置流式 chunk 的字符数（默认 4）
func WithChunkSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithBatchPolls 设置批量任务完成前需要的查询次数（默认 0，首次查询即完成）
func WithBatchPolls(n int) Option {
	return func(c *Client) {
		c.batchPolls = n
	}
}

// WithBatchFailures 指定批量结果中失败的 custom_id
func WithBatchFailures(customIDs ...string) Option {
	return func(c *Client) {
		for _, id := range customIDs {
			c.failIDs[id] = true
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Provider 接口实现
// ═══════════════════════════════════════════════════════════════════════════

// Stream 流式完成
func (c *Client) Stream(ctx context.Context, request map[string]any) (iter.Seq[*llm.Event], error) {
	c.mu.Lock()
	c.counter++
	c.calls = append(c.calls, CallRecord{
		Request: maps.Clone(request),
		Time:    time.Now(),
	})
	reply := c.nextReply(request)
	delay, err, chunkSize := c.delay, c.err, c.chunkSize
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	body := encodeStream(reply, promptTokens(request), chunkSize)
	return stream.Run(ctx, io.NopCloser(bytes.NewReader(body)), openai.NewDecoder(),
		stream.WithLogger(c.logger),
	), nil
}

// Close 关闭连接
func (c *Client) Close() error {
	return nil
}

// nextReply 获取当前响应（需要在锁内调用）
func (c *Client) nextReply(request map[string]any) Reply {
	if reply, ok := c.scenarioReply(request); ok {
		return reply
	}

	if c.replyFunc != nil {
		return c.replyFunc(request, c.counter)
	}

	if len(c.responses) > 0 {
		resp := c.responses[c.respIdx%len(c.responses)]
		c.respIdx++
		return Reply{Text: resp}
	}

	return Reply{Text: c.response}
}

// ═══════════════════════════════════════════════════════════════════════════
// 调用记录
// ═══════════════════════════════════════════════════════════════════════════

// SetResponse 动态修改响应（线程安全）
func (c *Client) SetResponse(text string) {
	c.mu.Lock()
	c.response = text
	c.mu.Unlock()
}

// SetError 动态修改错误（线程安全）
func (c *Client) SetError(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// Calls 返回所有调用记录
func (c *Client) Calls() []CallRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]CallRecord, len(c.calls))
	copy(result, c.calls)
	return result
}

// CallCount 返回调用次数
func (c *Client) CallCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counter
}

// LastCall 返回最后一次调用记录
func (c *Client) LastCall() *CallRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.calls) == 0 {
		return nil
	}
	call := c.calls[len(c.calls)-1]
	return &call
}

// Reset 重置调用记录和计数器
func (c *Client) Reset() {
	c.mu.Lock()
	c.calls = make([]CallRecord, 0)
	c.counter = 0
	c.respIdx = 0
	c.mu.Unlock()
}

// ═══════════════════════════════════════════════════════════════════════════
// 线格式编码
// ═══════════════════════════════════════════════════════════════════════════

// encodeStream 把响应编码为 Chat Completions SSE
func encodeStream(reply Reply, prompt int64, chunkSize int) []byte {
	var buf bytes.Buffer
	write := func(chunk map[string]any) {
		data, _ := json.Marshal(chunk)
		buf.WriteString("data: ")
		buf.Write(data)
		buf.WriteString("\n\n")
	}
	delta := func(d map[string]any, finish any) map[string]any {
		return map[string]any{
			"id":      "mock",
			"object":  "chat.completion.chunk",
			"choices": []any{map[string]any{"index": 0, "delta": d, "finish_reason": finish}},
		}
	}

	for _, piece := range split(reply.Reasoning, chunkSize) {
		write(delta(map[string]any{"reasoning_content": piece}, nil))
	}
	for _, piece := range split(reply.Text, chunkSize) {
		write(delta(map[string]any{"content": piece}, nil))
	}
	for i, tool := range reply.Tools {
		write(delta(map[string]any{"tool_calls": []any{map[string]any{
			"index":    i,
			"id":       fmt.Sprintf("call_mock_%d", i),
			"type":     "function",
			"function": map[string]any{"name": tool.Name, "arguments": tool.arguments()},
		}}}, nil))
	}

	write(delta(map[string]any{}, finishReason(reply)))

	usage := completionUsage(reply, prompt)
	write(map[string]any{"id": "mock", "choices": []any{}, "usage": usage})
	buf.WriteString("data: [DONE]\n\n")
	return buf.Bytes()
}

// completionMessage 把响应编码为 Chat Completions 完整响应
func completionMessage(reply Reply, prompt int64) map[string]any {
	message := map[string]any{"role": "assistant", "content": reply.Text}
	if reply.Reasoning != "" {
		message["reasoning_content"] = reply.Reasoning
	}
	if len(reply.Tools) > 0 {
		calls := make([]any, 0, len(reply.Tools))
		for i, tool := range reply.Tools {
			calls = append(calls, map[string]any{
				"id":       fmt.Sprintf("call_mock_%d", i),
				"type":     "function",
				"function": map[string]any{"name": tool.Name, "arguments": tool.arguments()},
			})
		}
		message["tool_calls"] = calls
	}

	return map[string]any{
		"object": "chat.completion",
		"choices": []any{map[string]any{
			"index":         0,
			"message":       message,
			"finish_reason": finishReason(reply),
		}},
		"usage": completionUsage(reply, prompt),
	}
}

func (t ToolCall) arguments() string {
	if t.Arguments == "" {
		return "{}"
	}
	return t.Arguments
}

func finishReason(reply Reply) string {
	if len(reply.Tools) > 0 {
		return "tool_calls"
	}
	return "stop"
}

// completionUsage 估算用量：每条消息 10 tokens，输出按 4 字节 1 token
func completionUsage(reply Reply, prompt int64) map[string]any {
	completion := int64(len(reply.Text)/4 + len(reply.Reasoning)/4 + 20*len(reply.Tools))
	return map[string]any{
		"prompt_tokens":     prompt,
		"completion_tokens": completion,
		"total_tokens":      prompt + completion,
	}
}

func promptTokens(request map[string]any) int64 {
	messages, _ := request["messages"].([]any)
	return int64(len(messages) * 10)
}

// split 按字符数切分文本
func split(text string, size int) []string {
	runes := []rune(text)
	pieces := make([]string, 0, len(runes)/size+1)
	for len(runes) > 0 {
		n := min(size, len(runes))
		pieces = append(pieces, string(runes[:n]))
		runes = runes[n:]
	}
	return pieces
}

// 编译时接口检查
var _ llm.Provider = (*Client)(nil)
