package openai

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/batch"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/protocol/openai"
)

// ═══════════════════════════════════════════════════════════════════════════
// Batch API（batch.Backend 实现）
// ═══════════════════════════════════════════════════════════════════════════
//
// 端点：
//   - POST /files                  上传 JSONL 输入（purpose=batch）
//   - POST /batches                引用 input_file_id 创建任务
//   - GET  /batches/{id}           查询
//   - POST /batches/{id}/cancel    取消
//   - GET  /files/{id}/content     下载输出文件 / 错误文件
//
// OpenAI 不支持删除批量任务。

// createBatchRequest 创建任务请求体
type createBatchRequest struct {
	InputFileID      string            `json:"input_file_id"`
	Endpoint         string            `json:"endpoint"`
	CompletionWindow string            `json:"completion_window"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// resultLayout OpenAI 结果行：
//
//	{"id": "batch_req_x", "custom_id": "...", "response": {"status_code": 200, "body": {...}}, "error": null}
var resultLayout = batch.ResultLayout{
	IDPaths:      []string{"custom_id"},
	MessagePaths: []string{"response.body"},
	Parse:        openai.ParseMessage,
}

// Capabilities 实现 [batch.Backend]
func (c *Client) Capabilities() batch.Capabilities {
	return batch.Capabilities{RequiresUpload: true}
}

// Upload 实现 [batch.Backend]：序列化为 JSONL 并上传
func (c *Client) Upload(ctx context.Context, req *batch.Request) (string, error) {
	data, err := batch.EncodeRequests(req.Items, c.endpoint(req))
	if err != nil {
		return "", err
	}

	resp, err := c.BaseClient.Upload(ctx, "/files", "batch_input.jsonl", bytes.NewReader(data),
		map[string]string{"purpose": "batch"})
	if err != nil {
		return "", err
	}

	id := gjson.GetBytes(resp.Body, "id").String()
	if id == "" {
		return "", llm.NewResponseError("id", nil)
	}
	c.logger.Info("uploaded batch input", "file_id", id, "bytes", len(data))
	return id, nil
}

// Submit 实现 [batch.Backend]
func (c *Client) Submit(ctx context.Context, req *batch.Request, fileID string) ([]byte, error) {
	window := req.CompletionWindow
	if window == "" {
		window = c.config.CompletionWindow
	}

	resp, err := c.DoJSON(ctx, http.MethodPost, "/batches", createBatchRequest{
		InputFileID:      fileID,
		Endpoint:         c.endpoint(req),
		CompletionWindow: window,
		Metadata:         req.Metadata,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Retrieve 实现 [batch.Backend]
func (c *Client) Retrieve(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.DoJSON(ctx, http.MethodGet, "/batches/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Cancel 实现 [batch.Backend]
func (c *Client) Cancel(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.DoJSON(ctx, http.MethodPost, "/batches/"+url.PathEscape(id)+"/cancel", nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Delete 实现 [batch.Backend]；OpenAI 不支持，总是返回 CapabilityError
func (c *Client) Delete(context.Context, string) ([]byte, error) {
	return nil, llm.NewCapabilityError(c.ProviderName(), "batch delete")
}

// OpenArtifact 实现 [batch.Backend]
func (c *Client) OpenArtifact(ctx context.Context, ref batch.ArtifactRef) (io.ReadCloser, error) {
	if ref.FileID != "" {
		return c.Open(ctx, "/files/"+url.PathEscape(ref.FileID)+"/content")
	}
	return c.Open(ctx, ref.URL)
}

// ParseResult 实现 [batch.Backend]
func (c *Client) ParseResult(line []byte) (*batch.ResultItem, error) {
	return batch.ParseResultItem(line, resultLayout)
}

func (c *Client) endpoint(req *batch.Request) string {
	if req.Endpoint != "" {
		return req.Endpoint
	}
	return c.config.BatchEndpoint
}

var _ batch.Backend = (*Client)(nil)
