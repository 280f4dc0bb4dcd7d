package batch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 批量请求
// ═══════════════════════════════════════════════════════════════════════════

// Request 批量任务创建请求
//
// Items 为有序的子请求列表；Body 是调用方构建好的厂商请求体。
type Request struct {
	Items []RequestItem `json:"items"`

	// Model Gemini 批量端点需要（/models/{model}:batchGenerateContent）
	Model string `json:"model,omitempty"`

	// Endpoint OpenAI 子请求目标端点，默认取配置
	Endpoint string `json:"endpoint,omitempty"`

	// CompletionWindow OpenAI 完成窗口，默认取配置
	CompletionWindow string `json:"completion_window,omitempty"`

	// Metadata 任务元数据（OpenAI metadata，Gemini 使用 display_name）
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RequestItem 单个子请求
type RequestItem struct {
	// CustomID 调用方关联 ID，批次内唯一
	CustomID string          `json:"custom_id"`
	Body     json.RawMessage `json:"body"`
}

// Validate 校验请求
//
// 在任何网络调用之前执行：空批次、空 ID、重复 ID 与非法请求体都是调用方错误。
func (r *Request) Validate() error {
	if r == nil || len(r.Items) == 0 {
		return llm.NewValidationError("items", 0, "batch must contain at least one request")
	}

	seen := make(map[string]int, len(r.Items))
	for i, item := range r.Items {
		if item.CustomID == "" {
			return llm.NewValidationError(fmt.Sprintf("items[%d].custom_id", i), "", "must not be empty")
		}
		if first, dup := seen[item.CustomID]; dup {
			return llm.NewValidationError(
				fmt.Sprintf("items[%d].custom_id", i), item.CustomID,
				fmt.Sprintf("duplicate of items[%d]", first),
			)
		}
		seen[item.CustomID] = i

		if !json.Valid(item.Body) {
			return llm.NewValidationError(fmt.Sprintf("items[%d].body", i), item.CustomID, "must be valid JSON")
		}
	}
	return nil
}

// NewCustomID 生成随机关联 ID（req_ 前缀）
func NewCustomID() string {
	return "req_" + gonanoid.Must()
}

// ═══════════════════════════════════════════════════════════════════════════
// JSONL 上传格式
// ═══════════════════════════════════════════════════════════════════════════

// uploadLine OpenAI 批量输入文件的一行
//
//	{"custom_id": "req-1", "method": "POST", "url": "/v1/chat/completions", "body": {...}}
type uploadLine struct {
	CustomID string          `json:"custom_id"`
	Method   string          `json:"method"`
	URL      string          `json:"url"`
	Body     json.RawMessage `json:"body"`
}

// EncodeRequests 将子请求序列化为 JSONL 上传文档
func EncodeRequests(items []RequestItem, endpoint string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, item := range items {
		line := uploadLine{
			CustomID: item.CustomID,
			Method:   "POST",
			URL:      endpoint,
			Body:     item.Body,
		}
		// Encoder 自动追加换行
		if err := enc.Encode(line); err != nil {
			return nil, llm.NewRequestError(fmt.Sprintf("encode items[%d]", i), err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeRequests 解析 JSONL 上传文档
//
// 与结果读取不同，上传文档是调用方输入，任何非法行都会返回错误；空行被跳过。
func DecodeRequests(r io.Reader) ([]RequestItem, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	var items []RequestItem
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var ul uploadLine
		if err := json.Unmarshal(line, &ul); err != nil {
			return nil, llm.NewValidationError(fmt.Sprintf("line %d", lineNo), nil, err.Error())
		}
		items = append(items, RequestItem{
			CustomID: ul.CustomID,
			Body:     append(json.RawMessage(nil), ul.Body...),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read requests: %w", err)
	}
	return items, nil
}
