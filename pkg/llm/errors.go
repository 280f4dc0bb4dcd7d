package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// 错误类型
// ═══════════════════════════════════════════════════════════════════════════

// ErrorType 错误类型
type ErrorType string

const (
	// ErrTypeConfig 配置错误
	ErrTypeConfig ErrorType = "config_error"

	// ErrTypeRequest 请求错误（序列化、构建等）
	ErrTypeRequest ErrorType = "request_error"

	// ErrTypeHTTP HTTP 层错误（网络、超时等）
	ErrTypeHTTP ErrorType = "http_error"

	// ErrTypeAPI API 业务错误（4xx, 5xx）
	ErrTypeAPI ErrorType = "api_error"

	// ErrTypeResponse 响应解析错误
	ErrTypeResponse ErrorType = "response_error"

	// ErrTypeStream 流式错误
	ErrTypeStream ErrorType = "stream_error"

	// ErrTypeCapability 厂商不支持的操作（在任何网络调用之前返回）
	ErrTypeCapability ErrorType = "capability_error"

	// ErrTypeValidation 调用方输入错误（重复的 custom_id 等）
	ErrTypeValidation ErrorType = "validation_error"
)

// ═══════════════════════════════════════════════════════════════════════════
// 基础错误
// ═══════════════════════════════════════════════════════════════════════════

// BaseError 基础错误实现
type BaseError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *BaseError) Unwrap() error {
	return e.Err
}

// Kind 返回错误分类
func (e *BaseError) Kind() ErrorType {
	return e.Type
}

// TypeOf 返回错误链中第一个分类错误的类型，未分类返回空字符串
func TypeOf(err error) ErrorType {
	var k interface{ Kind() ErrorType }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}

// ═══════════════════════════════════════════════════════════════════════════
// 配置错误
// ═══════════════════════════════════════════════════════════════════════════

// ConfigError 配置错误
type ConfigError struct {
	*BaseError
}

// NewConfigError 创建配置错误
func NewConfigError(message string, err error) *ConfigError {
	return &ConfigError{
		BaseError: &BaseError{
			Type:    ErrTypeConfig,
			Message: message,
			Err:     err,
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求错误
// ═══════════════════════════════════════════════════════════════════════════

// RequestError 请求错误
type RequestError struct {
	*BaseError

	Stage string // "marshal", "build", etc.
}

// NewRequestError 创建请求错误
func NewRequestError(stage string, err error) *RequestError {
	return &RequestError{
		BaseError: &BaseError{
			Type:    ErrTypeRequest,
			Message: fmt.Sprintf("failed to %s request", stage),
			Err:     err,
		},
		Stage: stage,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// HTTP 错误
// ═══════════════════════════════════════════════════════════════════════════

// HTTPError HTTP 层错误
type HTTPError struct {
	*BaseError
}

// NewHTTPError 创建 HTTP 错误
func NewHTTPError(message string, err error) *HTTPError {
	return &HTTPError{
		BaseError: &BaseError{
			Type:    ErrTypeHTTP,
			Message: message,
			Err:     err,
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// API 错误
// ═══════════════════════════════════════════════════════════════════════════

// APIError 厂商返回的非 2xx 响应
//
// Response 保存原始响应体；ErrorCode 与 VendorMessage 从常见的
// error.code / error.type / error.status 与 error.message 字段提取。
type APIError struct {
	*BaseError

	StatusCode    int
	Response      string
	Provider      string
	RequestID     string
	ErrorCode     string // Provider 特定的错误代码
	VendorMessage string // 厂商给出的错误描述
}

// NewAPIError 创建 API 错误
func NewAPIError(statusCode int, response string) *APIError {
	return &APIError{
		BaseError: &BaseError{
			Type:    ErrTypeAPI,
			Message: fmt.Sprintf("returned status %d", statusCode),
		},
		StatusCode: statusCode,
		Response:   response,
	}
}

// WithProvider 设置 Provider 名称
func (e *APIError) WithProvider(provider string) *APIError {
	e.Provider = provider
	return e
}

// WithRequestID 设置请求 ID
func (e *APIError) WithRequestID(requestID string) *APIError {
	e.RequestID = requestID
	return e
}

// WithErrorCode 设置错误代码
func (e *APIError) WithErrorCode(code string) *APIError {
	e.ErrorCode = code
	return e
}

// WithVendorMessage 设置厂商错误描述
func (e *APIError) WithVendorMessage(message string) *APIError {
	e.VendorMessage = message
	return e
}

// Error 格式：api_error: <provider> returned status N [code]: message (request_id: id)
func (e *APIError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Type))
	sb.WriteString(": ")
	if e.Provider != "" {
		sb.WriteString(e.Provider)
		sb.WriteByte(' ')
	}
	sb.WriteString(e.Message)
	if e.ErrorCode != "" {
		fmt.Fprintf(&sb, " [%s]", e.ErrorCode)
	}
	if e.VendorMessage != "" {
		sb.WriteString(": ")
		sb.WriteString(e.VendorMessage)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&sb, " (request_id: %s)", e.RequestID)
	}
	return sb.String()
}

// StatusOverloaded Anthropic 过载状态码
const StatusOverloaded = 529

// IsRetryable 检查错误是否可重试
//
// 408、429、500-504 与 Anthropic 的 529 视为暂时性错误。
// 本库不做重试，由调用方决定策略。
func (e *APIError) IsRetryable() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode == StatusOverloaded:
		return true
	default:
		return e.StatusCode >= 500 && e.StatusCode <= 504
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 响应解析错误
// ═══════════════════════════════════════════════════════════════════════════

// ResponseError 响应解析错误
type ResponseError struct {
	*BaseError

	Field string // 出错的字段
}

// NewResponseError 创建响应错误
func NewResponseError(field string, err error) *ResponseError {
	return &ResponseError{
		BaseError: &BaseError{
			Type:    ErrTypeResponse,
			Message: fmt.Sprintf("failed to parse response field '%s'", field),
			Err:     err,
		},
		Field: field,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 流式错误
// ═══════════════════════════════════════════════════════════════════════════

// StreamError 流式错误
//
// Frame 为 true 表示由流中的厂商 error 帧引起（仅 strict 模式），
// 否则是读取响应体时的传输错误。
type StreamError struct {
	*BaseError

	Frame bool
}

// NewStreamError 创建流式错误
func NewStreamError(message string, err error) *StreamError {
	return &StreamError{
		BaseError: &BaseError{
			Type:    ErrTypeStream,
			Message: message,
			Err:     err,
		},
	}
}

// NewFrameError 创建由厂商 error 帧引起的流式错误
func NewFrameError(err error) *StreamError {
	e := NewStreamError("vendor error frame", err)
	e.Frame = true
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// 能力错误
// ═══════════════════════════════════════════════════════════════════════════

// CapabilityError 能力错误
type CapabilityError struct {
	*BaseError

	Provider  string
	Operation string
}

// NewCapabilityError 创建能力错误
func NewCapabilityError(provider, operation string) *CapabilityError {
	return &CapabilityError{
		BaseError: &BaseError{
			Type:    ErrTypeCapability,
			Message: fmt.Sprintf("provider '%s' does not support %s", provider, operation),
		},
		Provider:  provider,
		Operation: operation,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 校验错误
// ═══════════════════════════════════════════════════════════════════════════

// ValidationError 校验错误
//
// 调用方输入不合法（空批次、重复 custom_id、非法 JSON 等），
// 总是在网络调用之前返回。
type ValidationError struct {
	*BaseError

	Field  string
	Value  any
	Reason string
}

// NewValidationError 创建校验错误
func NewValidationError(field string, value any, reason string) *ValidationError {
	return &ValidationError{
		BaseError: &BaseError{
			Type:    ErrTypeValidation,
			Message: fmt.Sprintf("invalid '%s' (value: %v): %s", field, value, reason),
		},
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 错误匹配函数（支持 errors.Is/As）
// ═══════════════════════════════════════════════════════════════════════════

// IsConfigError 检查是否为配置错误
func IsConfigError(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}

// IsRequestError 检查是否为请求错误
func IsRequestError(err error) bool {
	var e *RequestError
	return errors.As(err, &e)
}

// IsHTTPError 检查是否为 HTTP 错误
func IsHTTPError(err error) bool {
	var e *HTTPError
	return errors.As(err, &e)
}

// IsAPIError 检查是否为 API 错误
func IsAPIError(err error) bool {
	var e *APIError
	return errors.As(err, &e)
}

// IsResponseError 检查是否为响应解析错误
func IsResponseError(err error) bool {
	var e *ResponseError
	return errors.As(err, &e)
}

// IsStreamError 检查是否为流式错误
func IsStreamError(err error) bool {
	var e *StreamError
	return errors.As(err, &e)
}

// IsCapabilityError 检查是否为能力错误
func IsCapabilityError(err error) bool {
	var e *CapabilityError
	return errors.As(err, &e)
}

// IsValidationError 检查是否为校验错误
func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsRetryableError 检查错误是否可重试
func IsRetryableError(err error) bool {
	var e *APIError
	if errors.As(err, &e) {
		return e.IsRetryable()
	}
	return false
}

// GetAPIError 提取 APIError（如果存在）
func GetAPIError(err error) (*APIError, bool) {
	var e *APIError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetStatusCode 提取 HTTP 状态码（如果是 API 错误）
func GetStatusCode(err error) int {
	if e, ok := GetAPIError(err); ok {
		return e.StatusCode
	}
	return 0
}
