package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/batch"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/protocol/gemini"
)

// ═══════════════════════════════════════════════════════════════════════════
// Batch Mode（batch.Backend 实现）
// ═══════════════════════════════════════════════════════════════════════════
//
// 端点：
//   - POST   /models/{model}:batchGenerateContent   内联提交
//   - GET    /batches/{id}                          查询（返回 Operation）
//   - POST   /batches/{id}:cancel                   取消
//   - DELETE /batches/{id}                          删除
//   - GET    /download/v1beta/{file}:download       下载 responsesFile
//
// 任务 ID 为资源名 "batches/xxx"。小批量结果内联在 Operation.response 中。

// batchEnvelope 提交请求体
type batchEnvelope struct {
	Batch batchResource `json:"batch"`
}

type batchResource struct {
	DisplayName string      `json:"display_name"`
	InputConfig inputConfig `json:"input_config"`
}

type inputConfig struct {
	Requests inlinedRequests `json:"requests"`
}

type inlinedRequests struct {
	Requests []inlinedRequest `json:"requests"`
}

type inlinedRequest struct {
	Request  json.RawMessage `json:"request"`
	Metadata requestMetadata `json:"metadata"`
}

type requestMetadata struct {
	Key string `json:"key"`
}

// resultLayout Gemini 结果行：
//
//	内联：{"response": {...}, "metadata": {"key": "..."}}
//	文件：{"key": "...", "response": {...}}
var resultLayout = batch.ResultLayout{
	IDPaths:      []string{"key", "metadata.key"},
	MessagePaths: []string{"response"},
	Parse:        gemini.ParseMessage,
}

// Capabilities 实现 [batch.Backend]
func (c *Client) Capabilities() batch.Capabilities {
	return batch.Capabilities{Delete: true}
}

// Upload 实现 [batch.Backend]；当前只支持内联提交
func (c *Client) Upload(context.Context, *batch.Request) (string, error) {
	return "", llm.NewCapabilityError(c.ProviderName(), "batch file upload")
}

// Submit 实现 [batch.Backend]
//
// 模型取 req.Model，其次是配置的默认模型。display_name 取 Metadata["display_name"]。
func (c *Client) Submit(ctx context.Context, req *batch.Request, _ string) ([]byte, error) {
	model := req.Model
	if model == "" {
		model = c.config.Model
	}

	displayName := req.Metadata["display_name"]
	if displayName == "" {
		displayName = "batch-" + gonanoid.Must(12)
	}

	res := batchResource{DisplayName: displayName}
	res.InputConfig.Requests.Requests = make([]inlinedRequest, 0, len(req.Items))
	for _, item := range req.Items {
		res.InputConfig.Requests.Requests = append(res.InputConfig.Requests.Requests, inlinedRequest{
			Request:  item.Body,
			Metadata: requestMetadata{Key: item.CustomID},
		})
	}

	c.logger.Info("submitting gemini batch", "model", model, "requests", len(req.Items), "display_name", displayName)
	resp, err := c.DoJSON(ctx, http.MethodPost, modelPath(model)+":batchGenerateContent", batchEnvelope{Batch: res})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Retrieve 实现 [batch.Backend]
func (c *Client) Retrieve(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.DoJSON(ctx, http.MethodGet, resourcePath(id), nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Cancel 实现 [batch.Backend]
func (c *Client) Cancel(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.DoJSON(ctx, http.MethodPost, resourcePath(id)+":cancel", nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Delete 实现 [batch.Backend]
func (c *Client) Delete(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.DoJSON(ctx, http.MethodDelete, resourcePath(id), nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// OpenArtifact 实现 [batch.Backend]
func (c *Client) OpenArtifact(ctx context.Context, ref batch.ArtifactRef) (io.ReadCloser, error) {
	if ref.FileID != "" {
		return c.Open(ctx, c.downloadURL(ref.FileID))
	}
	return c.Open(ctx, ref.URL)
}

// ParseResult 实现 [batch.Backend]
func (c *Client) ParseResult(line []byte) (*batch.ResultItem, error) {
	return batch.ParseResultItem(line, resultLayout)
}

// resourcePath 资源名转路径，兼容不带 "batches/" 前缀的 ID
func resourcePath(id string) string {
	if !strings.HasPrefix(id, "batches/") {
		id = "batches/" + id
	}
	return "/" + id
}

var _ batch.Backend = (*Client)(nil)
