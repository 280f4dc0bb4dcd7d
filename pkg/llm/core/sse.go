package core

import (
	"bufio"
	"io"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// SSE 帧
// ═══════════════════════════════════════════════════════════════════════════

// Frame 单个 SSE 事件帧
//
// 协议差异示例：
//   - OpenAI: 无显式事件类型，总是 "data:" 前缀，[DONE] 终止
//   - Anthropic: 有显式事件类型（event:），message_stop 终止
//   - Gemini: alt=sse 模式下只有 "data:" 行，无终止信号
type Frame struct {
	// Event "event:" 字段，未指定时为空字符串
	Event string

	// Data 一个或多个 "data:" 行，按 SSE 规范以 "\n" 连接
	Data string
}

// maxLineSize 单行上限，工具参数与大段文本可能很长
const maxLineSize = 4 * 1024 * 1024

// ═══════════════════════════════════════════════════════════════════════════
// SSE 扫描器
// ═══════════════════════════════════════════════════════════════════════════

// SSEScanner SSE (Server-Sent Events) 帧扫描器
//
// 职责：
//   - 解析 SSE 流格式（event:/data:/注释行/空行分隔）
//   - 只做分帧，不解析 JSON，不持有跨流状态
//
// SSE 格式规范：
//
//	event: event_type
//	data: {"key": "value"}
//
//	data: {"key": "value"}
//
// 容错：
//   - 兼容 CRLF 行尾
//   - 无事件类型也能工作（OpenAI / Gemini）
//   - 流末尾缺少空行时仍发出最后一帧
//
// 使用示例：
//
//	scanner := core.NewSSEScanner(resp.RawBody())
//	for scanner.Next() {
//	    frame := scanner.Frame()
//	    fmt.Println(frame.Event, frame.Data)
//	}
//	if err := scanner.Err(); err != nil {
//	    // 传输层错误
//	}
type SSEScanner struct {
	scanner *bufio.Scanner
	current Frame
	err     error
	done    bool
}

// NewSSEScanner 创建 SSE 扫描器
func NewSSEScanner(r io.Reader) *SSEScanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &SSEScanner{scanner: s}
}

// Next 前进到下一帧
//
// 流结束或出错时返回 false，之后用 Err 区分两者。
func (s *SSEScanner) Next() bool {
	if s.done {
		return false
	}
	s.current = Frame{}

	var (
		eventType string
		dataLines []string
		hasData   bool
	)

	for s.scanner.Scan() {
		line := strings.TrimSuffix(s.scanner.Text(), "\r")

		// 空行 = 帧边界
		if line == "" {
			if hasData {
				s.current = Frame{Event: eventType, Data: strings.Join(dataLines, "\n")}
				return true
			}
			eventType = ""
			continue
		}

		// 注释行（常用作心跳）
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, hasColon := strings.Cut(line, ":")
		if hasColon {
			// 规范：冒号后的第一个空格不属于值
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "event":
			eventType = value
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		default:
			// id / retry / 未知字段，忽略
		}
	}

	s.done = true
	s.err = s.scanner.Err()

	// 最后一帧没有空行结尾
	if hasData && s.err == nil {
		s.current = Frame{Event: eventType, Data: strings.Join(dataLines, "\n")}
		return true
	}
	return false
}

// Frame 返回最近解析的帧，仅在 Next 返回 true 后有效
func (s *SSEScanner) Frame() Frame {
	return s.current
}

// Err 返回扫描过程中的第一个错误，正常 EOF 返回 nil
func (s *SSEScanner) Err() error {
	return s.err
}
