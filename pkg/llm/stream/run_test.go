package stream_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/core"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/stream"
)

// ═══════════════════════════════════════════════════════════════════════════
// 测试辅助
// ═══════════════════════════════════════════════════════════════════════════

// scriptDecoder 按帧序号回放预设的厂商事件
//
// 每个帧的 data 为脚本下标，"bad" 模拟无法解析的帧。
type scriptDecoder struct {
	script [][]stream.VendorEvent
}

func (d *scriptDecoder) Decode(frame core.Frame) ([]stream.VendorEvent, error) {
	n, err := strconv.Atoi(frame.Data)
	if err != nil {
		return nil, fmt.Errorf("malformed frame %q", frame.Data)
	}
	return d.script[n], nil
}

func (d *scriptDecoder) FinishReasons() stream.FinishReasonTable {
	return stream.FinishReasonTable{
		"end_turn":   llm.FinishReasonStop,
		"max_tokens": llm.FinishReasonLength,
		"tool_use":   llm.FinishReasonToolCalls,
	}
}

// trackingBody 记录 Close 调用
type trackingBody struct {
	io.Reader
	closed atomic.Bool
}

func (b *trackingBody) Close() error {
	b.closed.Store(true)
	return nil
}

// scripted 为每组事件生成一个 SSE 帧
func scripted(groups ...[]stream.VendorEvent) (*trackingBody, *scriptDecoder) {
	var sb strings.Builder
	for i := range groups {
		fmt.Fprintf(&sb, "data: %d\n\n", i)
	}
	return &trackingBody{Reader: strings.NewReader(sb.String())}, &scriptDecoder{script: groups}
}

func ev(events ...stream.VendorEvent) []stream.VendorEvent { return events }

func start(kind stream.EventKind, usage *stream.UsageUpdate) stream.VendorEvent {
	return stream.VendorEvent{Kind: kind, Usage: usage}
}

func blockStart(index int, kind stream.BlockKind, id, name string) stream.VendorEvent {
	return stream.VendorEvent{
		Kind:  stream.EventContentBlockStart,
		Index: index,
		Block: &stream.BlockStart{Kind: kind, ID: id, Name: name},
	}
}

func delta(index int, kind stream.DeltaKind, text string) stream.VendorEvent {
	d := &stream.BlockDelta{Kind: kind}
	switch kind {
	case stream.DeltaInputJSON:
		d.PartialJSON = text
	case stream.DeltaSignature:
		d.Signature = text
	default:
		d.Text = text
	}
	return stream.VendorEvent{Kind: stream.EventContentBlockDelta, Index: index, Delta: d}
}

func blockStop(index int) stream.VendorEvent {
	return stream.VendorEvent{Kind: stream.EventContentBlockStop, Index: index}
}

func messageDelta(reason string, completion int64) stream.VendorEvent {
	return stream.VendorEvent{
		Kind:       stream.EventMessageDelta,
		StopReason: reason,
		Usage:      &stream.UsageUpdate{CompletionTokens: completion},
	}
}

var messageStop = stream.VendorEvent{Kind: stream.EventMessageStop}

func collect(t *testing.T, body io.ReadCloser, dec stream.Decoder, opts ...stream.Option) []*llm.Event {
	t.Helper()
	var events []*llm.Event //nolint:prealloc // 数量未知
	for e := range stream.Run(context.Background(), body, dec, opts...) {
		events = append(events, e)
	}
	return events
}

func requireSingleTerminalLast(t *testing.T, events []*llm.Event) *llm.StreamTerminal {
	t.Helper()
	require.NotEmpty(t, events)
	terminals := 0
	for _, e := range events {
		if e.IsTerminal() {
			terminals++
		}
	}
	require.Equal(t, 1, terminals, "恰好一个终止事件")
	last := events[len(events)-1]
	require.True(t, last.IsTerminal(), "终止事件必须是最后一个")
	require.Equal(t, llm.EventTypeFinalize, events[len(events)-2].Type, "finalize 紧邻终止事件之前")
	return last.Terminal
}

func finalMessage(events []*llm.Event) *llm.ChatMessage {
	for _, e := range events {
		if e.Type == llm.EventTypeFinalize {
			return e.Message
		}
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 终止事件
// ═══════════════════════════════════════════════════════════════════════════

func TestRun_TerminalEvent(t *testing.T) {
	t.Run("零内容块也产出终止事件", func(t *testing.T) {
		body, dec := scripted(
			ev(start(stream.EventMessageStart, &stream.UsageUpdate{PromptTokens: 4})),
			ev(messageDelta("end_turn", 0)),
			ev(messageStop),
		)
		events := collect(t, body, dec)

		require.Len(t, events, 2)
		term := requireSingleTerminalLast(t, events)
		assert.Equal(t, llm.FinishReasonStop, term.FinishReason)
		assert.Equal(t, int64(4), term.Usage.TotalTokens)
		assert.Empty(t, finalMessage(events).Parts)
		assert.True(t, body.closed.Load())
	})

	t.Run("空响应体", func(t *testing.T) {
		body := &trackingBody{Reader: strings.NewReader("")}
		events := collect(t, body, &scriptDecoder{})

		term := requireSingleTerminalLast(t, events)
		assert.Equal(t, llm.FinishReasonUnknown, term.FinishReason)
		assert.Nil(t, term.Err)
		assert.True(t, body.closed.Load())
	})

	t.Run("缺少 message_stop 的 EOF", func(t *testing.T) {
		body, dec := scripted(
			ev(blockStart(0, stream.BlockText, "", "")),
			ev(delta(0, stream.DeltaText, "partial")),
		)
		events := collect(t, body, dec)

		requireSingleTerminalLast(t, events)
		assert.Equal(t, "partial", finalMessage(events).Text, "打开的块在结束时冻结")
	})

	t.Run("message_stop 之后不再读取", func(t *testing.T) {
		body, dec := scripted(
			ev(messageStop),
			ev(blockStart(0, stream.BlockText, "", "")),
			ev(delta(0, stream.DeltaText, "late")),
		)
		events := collect(t, body, dec)

		require.Len(t, events, 2)
		assert.Empty(t, finalMessage(events).Text)
	})

	t.Run("未知完成原因映射为 unknown", func(t *testing.T) {
		body, dec := scripted(ev(messageDelta("brand_new_reason", 1)), ev(messageStop))
		term := requireSingleTerminalLast(t, collect(t, body, dec))
		assert.Equal(t, llm.FinishReasonUnknown, term.FinishReason)
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// 交错工具调用与用量
// ═══════════════════════════════════════════════════════════════════════════

func TestRun_InterleavedToolCalls(t *testing.T) {
	const n = 4
	var groups [][]stream.VendorEvent
	for i := range n {
		groups = append(groups, ev(blockStart(i, stream.BlockToolUse, fmt.Sprintf("toolu_%d", i), fmt.Sprintf("fn%d", i))))
	}
	// 片段按轮次交错：每轮每个工具一个片段
	want := make([]string, n)
	for round := range 3 {
		for i := n - 1; i >= 0; i-- {
			frag := fmt.Sprintf(`"k%d_%d",`, i, round)
			if round == 0 {
				frag = "{" + frag[:len(frag)-1] + ":"
			}
			want[i] += frag
			groups = append(groups, ev(delta(i, stream.DeltaInputJSON, frag)))
		}
	}
	for i := range n {
		groups = append(groups, ev(blockStop(i)))
	}
	groups = append(groups, ev(messageDelta("tool_use", 9)), ev(messageStop))

	body, dec := scripted(groups...)
	events := collect(t, body, dec)
	term := requireSingleTerminalLast(t, events)
	assert.Equal(t, llm.FinishReasonToolCalls, term.FinishReason)

	msg := finalMessage(events)
	require.Len(t, msg.ToolCalls, n)
	for i, tc := range msg.ToolCalls {
		assert.Equal(t, i, tc.Index)
		assert.Equal(t, fmt.Sprintf("toolu_%d", i), tc.ID)
		assert.Equal(t, want[i], tc.Arguments, "参数只包含本索引的片段")
		assert.False(t, tc.ValidJSON(), "截断的 JSON 原样交付")
	}

	var toolEvents int
	for _, e := range events {
		if e.Type == llm.EventTypeToolCall {
			toolEvents++
			require.Len(t, e.Delta.ToolCalls, 1)
			assert.Equal(t, want[e.Index], e.Delta.ToolCalls[0].Arguments)
		}
	}
	assert.Equal(t, n, toolEvents)
}

func TestRun_UsageSummation(t *testing.T) {
	body, dec := scripted(
		ev(start(stream.EventMessageStart, &stream.UsageUpdate{PromptTokens: 25, CacheReadTokens: 100})),
		ev(blockStart(0, stream.BlockText, "", "")),
		ev(delta(0, stream.DeltaText, "hi")),
		ev(blockStop(0)),
		ev(messageDelta("", 5)),
		ev(messageDelta("end_turn", 7)),
		ev(messageStop),
	)
	term := requireSingleTerminalLast(t, collect(t, body, dec))

	assert.Equal(t, int64(25), term.Usage.PromptTokens)
	assert.Equal(t, int64(12), term.Usage.CompletionTokens)
	assert.Equal(t, int64(37), term.Usage.TotalTokens)
	assert.Equal(t, int64(100), term.Usage.CacheReadTokens)
}

// ═══════════════════════════════════════════════════════════════════════════
// 容错
// ═══════════════════════════════════════════════════════════════════════════

func TestRun_MalformedFrameSkipped(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("data: 0\n\ndata: bad\n\ndata: 1\n\ndata: 2\n\n")}
	dec := &scriptDecoder{script: [][]stream.VendorEvent{
		ev(blockStart(0, stream.BlockText, "", ""), delta(0, stream.DeltaText, "a")),
		ev(delta(0, stream.DeltaText, "b"), blockStop(0)),
		ev(messageStop),
	}}
	events := collect(t, body, dec)

	requireSingleTerminalLast(t, events)
	assert.Equal(t, "ab", finalMessage(events).Text)
}

func TestRun_ErrorFrame(t *testing.T) {
	frame := stream.VendorEvent{Kind: stream.EventError, Error: &stream.FrameError{Type: "overloaded_error", Message: "Overloaded"}}

	t.Run("默认忽略", func(t *testing.T) {
		body, dec := scripted(
			ev(blockStart(0, stream.BlockText, "", ""), delta(0, stream.DeltaText, "ok")),
			ev(frame),
			ev(blockStop(0), messageDelta("end_turn", 1)),
			ev(messageStop),
		)
		events := collect(t, body, dec)

		term := requireSingleTerminalLast(t, events)
		assert.Equal(t, llm.FinishReasonStop, term.FinishReason)
		assert.Equal(t, "ok", finalMessage(events).Text)
	})

	t.Run("strict 模式终止", func(t *testing.T) {
		body, dec := scripted(
			ev(blockStart(0, stream.BlockText, "", ""), delta(0, stream.DeltaText, "ok")),
			ev(frame),
			ev(delta(0, stream.DeltaText, "never")),
		)
		events := collect(t, body, dec, stream.WithStrict(true))

		term := requireSingleTerminalLast(t, events)
		assert.Equal(t, llm.FinishReasonError, term.FinishReason)
		require.Error(t, term.Err)
		assert.True(t, llm.IsStreamError(term.Err))
		var streamErr *llm.StreamError
		require.ErrorAs(t, term.Err, &streamErr)
		assert.True(t, streamErr.Frame, "由厂商 error 帧引起")
		assert.Contains(t, term.Err.Error(), "Overloaded")
		assert.Equal(t, "ok", finalMessage(events).Text, "已累积内容仍交付")
		assert.True(t, body.closed.Load())
	})
}

func TestRun_TransportError(t *testing.T) {
	boom := errors.New("connection reset by peer")
	body := &trackingBody{Reader: io.MultiReader(
		strings.NewReader("data: 0\n\n"),
		&failingReader{err: boom},
	)}
	dec := &scriptDecoder{script: [][]stream.VendorEvent{
		ev(blockStart(0, stream.BlockText, "", ""), delta(0, stream.DeltaText, "half")),
	}}
	events := collect(t, body, dec)

	term := requireSingleTerminalLast(t, events)
	assert.Equal(t, llm.FinishReasonError, term.FinishReason)
	require.ErrorIs(t, term.Err, boom)
	assert.Equal(t, "half", finalMessage(events).Text)
	assert.True(t, body.closed.Load())
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }

// ═══════════════════════════════════════════════════════════════════════════
// 取消与提前退出
// ═══════════════════════════════════════════════════════════════════════════

func TestRun_CancelAfterThreeBlocks(t *testing.T) {
	const total = 10
	var groups [][]stream.VendorEvent
	for i := range total {
		groups = append(groups,
			ev(blockStart(i, stream.BlockToolUse, fmt.Sprintf("call_%d", i), "lookup")),
			ev(delta(i, stream.DeltaInputJSON, `{"n":`+strconv.Itoa(i)+`}`)),
			ev(blockStop(i)),
		)
	}
	groups = append(groups, ev(messageStop))
	body, dec := scripted(groups...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var events []*llm.Event
	closed := 0
	require.NotPanics(t, func() {
		for e := range stream.Run(ctx, body, dec) {
			events = append(events, e)
			if e.Type == llm.EventTypeToolCall {
				closed++
				if closed == 3 {
					cancel()
				}
			}
		}
	})

	term := requireSingleTerminalLast(t, events)
	assert.True(t, term.Cancelled)
	assert.Nil(t, term.Err)

	for _, e := range events {
		if e.Type == llm.EventTypeFinalize || e.Type == llm.EventTypeDone {
			continue
		}
		assert.Less(t, e.Index, 3, "取消后不应出现第 4-10 块的事件")
	}

	msg := finalMessage(events)
	require.Len(t, msg.ToolCalls, 3)
	assert.JSONEq(t, `{"n":2}`, msg.ToolCalls[2].Arguments)
	assert.True(t, body.closed.Load())
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	body, dec := scripted(ev(blockStart(0, stream.BlockText, "", "")), ev(messageStop))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var events []*llm.Event
	for e := range stream.Run(ctx, body, dec) {
		events = append(events, e)
	}

	term := requireSingleTerminalLast(t, events)
	assert.True(t, term.Cancelled)
	assert.True(t, body.closed.Load())
}

func TestRun_CancelWhileAwaitingBytes(t *testing.T) {
	dec := &scriptDecoder{script: [][]stream.VendorEvent{
		ev(blockStart(0, stream.BlockText, "", "")),
		ev(delta(0, stream.DeltaText, "partial")),
	}}

	// 写完两个帧后不再写入也不关闭，读取方阻塞在 Read
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	go func() { _, _ = io.WriteString(pw, "data: 0\n\ndata: 1\n\n") }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan []*llm.Event, 1)
	go func() {
		var events []*llm.Event
		for e := range stream.Run(ctx, pr, dec) {
			events = append(events, e)
			if e.Type == llm.EventTypeText {
				time.AfterFunc(100*time.Millisecond, cancel)
			}
		}
		done <- events
	}()

	var events []*llm.Event
	select {
	case events = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("取消后 Run 未在 2s 内返回")
	}

	term := requireSingleTerminalLast(t, events)
	assert.True(t, term.Cancelled)
	assert.Nil(t, term.Err, "取消不应报告为传输错误")
	assert.Equal(t, "partial", finalMessage(events).Text)
}

// flushDecoder EOF 时补报缓存的用量
type flushDecoder struct {
	scriptDecoder
	pending *stream.UsageUpdate
	flushed int
}

func (d *flushDecoder) Flush() []stream.VendorEvent {
	d.flushed++
	return []stream.VendorEvent{{Kind: stream.EventMessageDelta, Usage: d.pending}}
}

func TestRun_FlushOnEOF(t *testing.T) {
	t.Run("EOF 前应用 Flush 事件", func(t *testing.T) {
		body, script := scripted(ev(blockStart(0, stream.BlockText, "", ""), delta(0, stream.DeltaText, "hi")))
		dec := &flushDecoder{scriptDecoder: *script, pending: &stream.UsageUpdate{PromptTokens: 5, CompletionTokens: 2}}

		term := requireSingleTerminalLast(t, collect(t, body, dec))
		assert.Equal(t, 1, dec.flushed)
		assert.Equal(t, int64(7), term.Usage.TotalTokens)
	})

	t.Run("message_stop 结束时不调用 Flush", func(t *testing.T) {
		body, script := scripted(ev(messageStop))
		dec := &flushDecoder{scriptDecoder: *script}

		collect(t, body, dec)
		assert.Zero(t, dec.flushed)
	})
}

func TestRun_EarlyBreakClosesBody(t *testing.T) {
	body, dec := scripted(
		ev(blockStart(0, stream.BlockText, "", ""), delta(0, stream.DeltaText, "one")),
		ev(delta(0, stream.DeltaText, "two")),
		ev(messageStop),
	)

	for e := range stream.Run(context.Background(), body, dec) {
		if e.Type == llm.EventTypeText {
			break
		}
	}
	assert.True(t, body.closed.Load())
}

func TestRun_SingleUse(t *testing.T) {
	body, dec := scripted(ev(messageStop))
	seq := stream.Run(context.Background(), body, dec)

	msg, term := stream.Collect(seq)
	require.NotNil(t, msg)
	require.NotNil(t, term)

	msg, term = stream.Collect(seq)
	assert.Nil(t, msg)
	assert.Nil(t, term)
}
