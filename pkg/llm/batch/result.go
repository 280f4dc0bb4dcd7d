package batch

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// 结果项
// ═══════════════════════════════════════════════════════════════════════════

// ResultVariant 结果类型（封闭枚举）
type ResultVariant string

const (
	ResultUnknown   ResultVariant = "unknown"
	ResultSucceeded ResultVariant = "succeeded"
	ResultErrored   ResultVariant = "errored"
	ResultCancelled ResultVariant = "cancelled"
	ResultExpired   ResultVariant = "expired"
)

// ResultItem 单个子请求的结果
//
// 成功时 Message 为规范化的对话结果，失败时 Error 为结构化错误。
type ResultItem struct {
	CustomID     string           `json:"custom_id"`
	Variant      ResultVariant    `json:"variant"`
	StatusCode   int              `json:"status_code,omitempty"`
	Message      *llm.ChatMessage `json:"message,omitempty"`
	FinishReason llm.FinishReason `json:"finish_reason,omitempty"`
	Error        *ResultError     `json:"error,omitempty"`

	// Raw 厂商原始结果行
	Raw json.RawMessage `json:"raw,omitempty"`
}

// ResultError 子请求错误
type ResultError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	Line    int64  `json:"line,omitempty"`
	Type    string `json:"type,omitempty"`
}

// Error 实现 error 接口
func (e *ResultError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// ═══════════════════════════════════════════════════════════════════════════
// 类型推断
// ═══════════════════════════════════════════════════════════════════════════

var (
	variantPaths    = []string{"result.type", "type"}
	statusCodePaths = []string{"response.status_code", "status_code"}

	// errorPaths Anthropic 的错误对象嵌套两层（result.error.error）
	errorPaths = []string{"result.error.error", "result.error", "error", "response.body.error", "response.error"}
)

var variantVocabulary = map[string]ResultVariant{
	"succeeded": ResultSucceeded,
	"success":   ResultSucceeded,
	"errored":   ResultErrored,
	"error":     ResultErrored,
	"canceled":  ResultCancelled,
	"cancelled": ResultCancelled,
	"expired":   ResultExpired,
}

// InferVariant 推断结果类型
//
// 顺序：显式类型标签 → 2xx 状态码 → 存在错误对象 → Unknown。
func InferVariant(doc []byte) ResultVariant {
	if tag := core.FirstString(doc, variantPaths...); tag != "" {
		if v, ok := variantVocabulary[strings.ToLower(tag)]; ok {
			return v
		}
	}
	if code, ok := core.FirstInt(doc, statusCodePaths...); ok && code >= 200 && code < 300 {
		return ResultSucceeded
	}
	if errorObject(doc).Exists() {
		return ResultErrored
	}
	return ResultUnknown
}

func errorObject(doc []byte) gjson.Result {
	for _, path := range errorPaths {
		if r := gjson.GetBytes(doc, path); r.IsObject() {
			return r
		}
	}
	return gjson.Result{}
}

// ═══════════════════════════════════════════════════════════════════════════
// 结果行解析
// ═══════════════════════════════════════════════════════════════════════════

// MessageParser 厂商完整响应解析函数（各 protocol 包的 ParseMessage）
type MessageParser func(body []byte) (*llm.ChatMessage, llm.FinishReason, error)

// ResultLayout 厂商结果行布局
type ResultLayout struct {
	// IDPaths 关联 ID 路径
	IDPaths []string

	// MessagePaths 成功响应体路径
	MessagePaths []string

	// Parse 响应体解析
	Parse MessageParser
}

var errMalformedResult = errors.New("batch: malformed result line")

// ParseResultItem 按布局解析单个结果行
//
// 非法 JSON 返回错误（由读取器跳过）。没有类型标签、状态码和错误对象、
// 但带有可解析响应体的行（Gemini）视为成功。
func ParseResultItem(line []byte, layout ResultLayout) (*ResultItem, error) {
	if !gjson.ValidBytes(line) || !gjson.ParseBytes(line).IsObject() {
		return nil, errMalformedResult
	}

	item := &ResultItem{
		CustomID: core.FirstString(line, layout.IDPaths...),
		Variant:  InferVariant(line),
		Raw:      json.RawMessage(append([]byte(nil), line...)),
	}
	if code, ok := core.FirstInt(line, statusCodePaths...); ok {
		item.StatusCode = int(code)
	}

	if e := errorObject(line); e.Exists() {
		doc := []byte(e.Raw)
		item.Error = &ResultError{
			Code:    core.FirstString(doc, "code", "status"),
			Message: e.Get("message").String(),
			Param:   e.Get("param").String(),
			Line:    e.Get("line").Int(),
			Type:    e.Get("type").String(),
		}
	}

	body := core.First(line, layout.MessagePaths...)
	if item.Error == nil && body.IsObject() && layout.Parse != nil &&
		(item.Variant == ResultSucceeded || item.Variant == ResultUnknown) {
		msg, reason, err := layout.Parse([]byte(body.Raw))
		if err != nil {
			return nil, err
		}
		item.Message, item.FinishReason = msg, reason
		item.Variant = ResultSucceeded
	}

	return item, nil
}
