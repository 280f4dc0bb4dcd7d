package core

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 接口定义
// ═══════════════════════════════════════════════════════════════════════════

// ProviderConfig Provider 配置接口
//
// 每个 Provider 实现此接口来定义其特有的配置和默认值。
type ProviderConfig interface {
	// Validate 验证配置
	// 返回错误如果配置无效
	Validate() error

	// GetDefaults 获取默认值
	// 返回 baseURL, model, timeout
	GetDefaults() (baseURL, model string, timeout time.Duration)

	// BuildHeaders 构建请求头
	// 返回认证头和其他必要的 HTTP 头
	BuildHeaders() map[string]string

	// ProviderName 返回 Provider 名称
	// 用于错误日志和追踪
	ProviderName() string
}

// ═══════════════════════════════════════════════════════════════════════════
// 响应
// ═══════════════════════════════════════════════════════════════════════════

// RawResponse 已读取完毕的 HTTP 响应
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// maxErrorBody 错误响应体最多读取的字节数
const maxErrorBody = 64 * 1024

// ═══════════════════════════════════════════════════════════════════════════
// BaseClient 基础客户端
// ═══════════════════════════════════════════════════════════════════════════

// BaseClient 基础客户端
//
// 封装 HTTP 通信与错误映射，所有 Provider 嵌入它来复用：
//   - OpenStream: 发起流式请求，返回未解析的 SSE 响应体
//   - DoJSON: 普通 JSON 调用，返回完整响应体
//   - Upload: multipart 文件上传
//   - Open: 下载任意路径或绝对 URL，返回流式响应体
//
// 错误映射：
//   - 连接/读取失败 → [llm.HTTPError]
//   - 非 2xx → [llm.APIError]（带 Provider 名称、请求 ID、错误码）
//
// BaseClient 从不重试，失败原样交给调用方。
//
// 使用示例：
//
//	config := &anthropic.Config{APIKey: "sk-ant-xxx"}
//	base, _ := core.NewBaseClient(config)
//	body, err := base.OpenStream(ctx, "/messages", request)
type BaseClient struct {
	config ProviderConfig
	resty  *resty.Client
	model  string
}

// NewBaseClient 创建基础客户端
//
// 返回错误如果配置验证失败。
func NewBaseClient(config ProviderConfig) (*BaseClient, error) {
	// 1. 验证配置
	if err := config.Validate(); err != nil {
		return nil, llm.NewConfigError("config validation failed", err)
	}

	// 2. 获取默认值
	baseURL, model, timeout := config.GetDefaults()

	// 3. 创建 resty 客户端
	r := resty.New()
	r.SetBaseURL(baseURL)
	r.SetTimeout(timeout)
	for k, v := range config.BuildHeaders() {
		r.SetHeader(k, v)
	}

	return &BaseClient{
		config: config,
		resty:  r,
		model:  model,
	}, nil
}

// ProviderName 返回 Provider 名称
func (c *BaseClient) ProviderName() string {
	return c.config.ProviderName()
}

// Model 返回生效的默认模型
func (c *BaseClient) Model() string {
	return c.model
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求方法
// ═══════════════════════════════════════════════════════════════════════════

// OpenStream 发起 POST 流式请求
//
// 成功时返回 SSE 响应体，调用方负责关闭。
func (c *BaseClient) OpenStream(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	bodyBytes, err := marshalBody(body)
	if err != nil {
		return nil, err
	}

	resp, err := c.resty.R().
		SetContext(ctx).
		SetHeader("Accept", "text/event-stream").
		SetBody(bodyBytes).
		SetDoNotParseResponse(true).
		Post(path)
	if err != nil {
		return nil, llm.NewHTTPError("request failed", err)
	}

	return c.checkRaw(resp)
}

// DoJSON 发送 JSON 请求并读取完整响应
//
// body 为 nil 时不发送请求体。
func (c *BaseClient) DoJSON(ctx context.Context, method, path string, body any) (*RawResponse, error) {
	req := c.resty.R().SetContext(ctx)
	if body != nil {
		bodyBytes, err := marshalBody(body)
		if err != nil {
			return nil, err
		}
		req.SetBody(bodyBytes)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, llm.NewHTTPError("request failed", err)
	}

	if resp.StatusCode() >= 400 {
		return nil, c.apiError(resp.StatusCode(), resp.Header(), resp.Body())
	}

	return &RawResponse{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
	}, nil
}

// Upload 以 multipart/form-data 上传文件
//
// fields 为附加的表单字段（例如 OpenAI 的 purpose=batch）。
func (c *BaseClient) Upload(
	ctx context.Context,
	path, fileName string,
	content io.Reader,
	fields map[string]string,
) (*RawResponse, error) {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetFileReader("file", fileName, content).
		SetFormData(fields).
		Post(path)
	if err != nil {
		return nil, llm.NewHTTPError("upload failed", err)
	}

	if resp.StatusCode() >= 400 {
		return nil, c.apiError(resp.StatusCode(), resp.Header(), resp.Body())
	}

	return &RawResponse{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
	}, nil
}

// Open 以 GET 打开一个下载流
//
// pathOrURL 可以是相对 BaseURL 的路径，也可以是绝对 URL
// （例如 Anthropic 的 results_url）。调用方负责关闭返回的响应体。
func (c *BaseClient) Open(ctx context.Context, pathOrURL string) (io.ReadCloser, error) {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(pathOrURL)
	if err != nil {
		return nil, llm.NewHTTPError("download failed", err)
	}

	return c.checkRaw(resp)
}

// ═══════════════════════════════════════════════════════════════════════════
// 辅助方法
// ═══════════════════════════════════════════════════════════════════════════

// checkRaw 检查未解析响应的状态码，出错时读取并关闭响应体
func (c *BaseClient) checkRaw(resp *resty.Response) (io.ReadCloser, error) {
	raw := resp.RawBody()
	if resp.StatusCode() >= 400 {
		var data []byte
		if raw != nil {
			data, _ = io.ReadAll(io.LimitReader(raw, maxErrorBody))
			_ = raw.Close()
		}
		return nil, c.apiError(resp.StatusCode(), resp.Header(), data)
	}
	if raw == nil {
		return io.NopCloser(http.NoBody), nil
	}
	return raw, nil
}

// apiError 构建带上下文的 API 错误
func (c *BaseClient) apiError(status int, header http.Header, body []byte) *llm.APIError {
	apiErr := llm.NewAPIError(status, string(body)).
		WithProvider(c.config.ProviderName())

	// OpenAI: X-Request-Id，Anthropic: request-id
	if requestID := FirstHeader(header, "X-Request-ID", "Request-ID"); requestID != "" {
		apiErr = apiErr.WithRequestID(requestID)
	}

	// Gemini: error.status（error.code 为数字状态码），OpenAI: error.code，Anthropic: error.type
	if code := FirstString(body, "error.status", "error.code", "error.type"); code != "" {
		apiErr = apiErr.WithErrorCode(code)
	}
	if msg := FirstString(body, "error.message", "message"); msg != "" {
		apiErr = apiErr.WithVendorMessage(msg)
	}

	return apiErr
}

// FirstHeader 按顺序返回第一个非空的响应头
func FirstHeader(header http.Header, names ...string) string {
	for _, name := range names {
		if v := header.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// marshalBody 序列化请求体，[]byte 与 json.RawMessage 原样发送
func marshalBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, llm.NewRequestError("marshal request", err)
	}
	return bodyBytes, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 辅助函数
// ═══════════════════════════════════════════════════════════════════════════

// GetDefaultTimeout 获取默认超时时间的辅助函数
//
// 如果 timeout 为 0，返回默认的 120 秒。
func GetDefaultTimeout(timeout time.Duration) time.Duration {
	if timeout == 0 {
		return 120 * time.Second
	}
	return timeout
}

// NewInvalidConfigError 创建无效配置错误
func NewInvalidConfigError(field string) error {
	return llm.NewConfigError(field+" is required", nil)
}

// NewMissingAPIKeyError 创建缺少 API Key 错误
func NewMissingAPIKeyError() error {
	return llm.NewConfigError("API key is required", nil)
}
