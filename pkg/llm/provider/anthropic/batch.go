package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/batch"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/protocol/anthropic"
)

// ═══════════════════════════════════════════════════════════════════════════
// Message Batches API（batch.Backend 实现）
// ═══════════════════════════════════════════════════════════════════════════
//
// 端点：
//   - POST   /messages/batches               内联提交
//   - GET    /messages/batches/{id}          查询
//   - POST   /messages/batches/{id}/cancel   取消
//   - DELETE /messages/batches/{id}          删除（仅已结束的任务）
//   - GET    results_url                     JSONL 结果流

// batchRequest 内联提交请求体
type batchRequest struct {
	Requests []batchItem `json:"requests"`
}

type batchItem struct {
	CustomID string          `json:"custom_id"`
	Params   json.RawMessage `json:"params"`
}

// resultLayout Anthropic 结果行：
//
//	{"custom_id": "...", "result": {"type": "succeeded", "message": {...}}}
var resultLayout = batch.ResultLayout{
	IDPaths:      []string{"custom_id"},
	MessagePaths: []string{"result.message"},
	Parse:        anthropic.ParseMessage,
}

// Capabilities 实现 [batch.Backend]
func (c *Client) Capabilities() batch.Capabilities {
	return batch.Capabilities{Delete: true}
}

// Upload 实现 [batch.Backend]；Anthropic 内联提交，不需要上传
func (c *Client) Upload(context.Context, *batch.Request) (string, error) {
	return "", llm.NewCapabilityError(c.ProviderName(), "batch file upload")
}

// Submit 实现 [batch.Backend]
func (c *Client) Submit(ctx context.Context, req *batch.Request, _ string) ([]byte, error) {
	body := batchRequest{Requests: make([]batchItem, 0, len(req.Items))}
	for _, item := range req.Items {
		body.Requests = append(body.Requests, batchItem{CustomID: item.CustomID, Params: item.Body})
	}

	c.logger.Info("submitting message batch", "requests", len(body.Requests))
	resp, err := c.DoJSON(ctx, http.MethodPost, "/messages/batches", body)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Retrieve 实现 [batch.Backend]
func (c *Client) Retrieve(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.DoJSON(ctx, http.MethodGet, batchPath(id), nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Cancel 实现 [batch.Backend]
func (c *Client) Cancel(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.DoJSON(ctx, http.MethodPost, batchPath(id)+"/cancel", nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Delete 实现 [batch.Backend]
func (c *Client) Delete(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.DoJSON(ctx, http.MethodDelete, batchPath(id), nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// OpenArtifact 实现 [batch.Backend]
//
// results_url 是绝对地址，认证头与其他请求相同。
func (c *Client) OpenArtifact(ctx context.Context, ref batch.ArtifactRef) (io.ReadCloser, error) {
	if ref.URL == "" {
		return nil, llm.NewCapabilityError(c.ProviderName(), "batch result files")
	}
	return c.Open(ctx, ref.URL)
}

// ParseResult 实现 [batch.Backend]
func (c *Client) ParseResult(line []byte) (*batch.ResultItem, error) {
	return batch.ParseResultItem(line, resultLayout)
}

func batchPath(id string) string {
	return "/messages/batches/" + url.PathEscape(id)
}

var _ batch.Backend = (*Client)(nil)
