package stream

import (
	"context"
	"io"
	"iter"
	"log/slog"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// 选项
// ═══════════════════════════════════════════════════════════════════════════

type options struct {
	strict bool
	logger *slog.Logger
}

// Option Run 选项
type Option func(*options)

// WithStrict 把厂商错误帧视为终止（默认忽略并记录）
func WithStrict(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

// WithLogger 设置日志器，nil 表示丢弃
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Run 流水线
// ═══════════════════════════════════════════════════════════════════════════

// Run 把一个已连接的 SSE 响应体组装为规范事件序列
//
// 流水线：body → SSEScanner → Decoder → Assembler → yield。
//
// 保证：
//   - 最后一个事件总是 EventTypeDone，且只有一个（即使没有任何内容块）
//   - 每个帧、每个厂商事件处理前检查 ctx；取消时交付已累积内容，
//     终止事件 Cancelled 为 true，不再读取后续帧
//   - 等待字节期间取消同样生效：body 被关闭以解除阻塞的读取
//   - 单个无法解析的帧被跳过，不中断流
//   - EOF 前若解码器实现 [Flusher]，先应用其缓存的事件
//   - body 在任何退出路径上都会关闭（正常结束、break、错误、取消）
//
// 返回的序列只能遍历一次，再次遍历不产出事件。
//
// 使用示例：
//
//	for event := range stream.Run(ctx, body, anthropic.NewDecoder()) {
//	    if event.Type == llm.EventTypeText {
//	        fmt.Print(event.Delta.Text)
//	    }
//	}
func Run(ctx context.Context, body io.ReadCloser, decoder Decoder, opts ...Option) iter.Seq[*llm.Event] {
	o := &options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(o)
	}

	used := false
	return func(yield func(*llm.Event) bool) {
		if used {
			return
		}
		used = true
		defer func() { _ = body.Close() }()
		// 等待字节时取消：关闭 body 使阻塞的 Read 返回
		stop := context.AfterFunc(ctx, func() { _ = body.Close() })
		defer stop()

		asm := NewAssembler(decoder.FinishReasons())
		emit := func(events []*llm.Event) bool {
			for _, e := range events {
				if !yield(e) {
					return false
				}
			}
			return true
		}

		scanner := core.NewSSEScanner(body)
		for {
			if ctx.Err() != nil {
				emit(asm.Cancel())
				return
			}
			if !scanner.Next() {
				break
			}

			frame := scanner.Frame()
			events, err := decoder.Decode(frame)
			if err != nil {
				o.logger.Debug("skip malformed frame", "event", frame.Event, "error", err)
				continue
			}

			for _, ev := range events {
				if ctx.Err() != nil {
					emit(asm.Cancel())
					return
				}

				switch ev.Kind {
				case EventError:
					frameErr := ev.Error
					if frameErr == nil {
						frameErr = &FrameError{Message: "unspecified error"}
					}
					if o.strict {
						emit(asm.Fail(llm.NewFrameError(frameErr)))
						return
					}
					o.logger.Warn("ignore vendor error frame", "error", frameErr)
					continue
				case EventMessageStop:
					emit(asm.Finish())
					return
				}

				if !emit(asm.Apply(ev)) {
					return
				}
			}
		}

		if ctx.Err() != nil {
			emit(asm.Cancel())
			return
		}
		if err := scanner.Err(); err != nil {
			emit(asm.Fail(llm.NewStreamError("read stream", err)))
			return
		}

		// EOF 但没有 message_stop（例如 Gemini 或被截断的流）
		if f, ok := decoder.(Flusher); ok {
			for _, ev := range f.Flush() {
				if !emit(asm.Apply(ev)) {
					return
				}
			}
		}
		emit(asm.Finish())
	}
}

// Collect 遍历事件序列并返回最终消息与终止记录
//
// 序列没有产出终止事件（例如已被遍历过）时两者均为 nil。
func Collect(events iter.Seq[*llm.Event]) (*llm.ChatMessage, *llm.StreamTerminal) {
	var (
		msg  *llm.ChatMessage
		term *llm.StreamTerminal
	)
	for event := range events {
		switch event.Type {
		case llm.EventTypeFinalize:
			msg = event.Message
		case llm.EventTypeDone:
			term = event.Terminal
		}
	}
	return msg, term
}
