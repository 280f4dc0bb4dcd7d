package localmock

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/batch"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/protocol/openai"
)

// ═══════════════════════════════════════════════════════════════════════════
// 内存批量任务（batch.Backend 实现）
// ═══════════════════════════════════════════════════════════════════════════
//
// 任务文档与结果行采用 OpenAI Batch API 的形状，复用同一套解析路径。

const providerName = "localmock"

type mockJob struct {
	id        string
	items     []batch.RequestItem
	status    batch.Status
	polls     int
	createdAt time.Time
	endedAt   time.Time
}

var resultLayout = batch.ResultLayout{
	IDPaths:      []string{"custom_id"},
	MessagePaths: []string{"response.body"},
	Parse:        openai.ParseMessage,
}

// ProviderName 实现 [batch.Backend]
func (c *Client) ProviderName() string {
	return providerName
}

// Capabilities 实现 [batch.Backend]
func (c *Client) Capabilities() batch.Capabilities {
	return batch.Capabilities{Delete: true}
}

// Upload 实现 [batch.Backend]；内联提交，不需要上传
func (c *Client) Upload(context.Context, *batch.Request) (string, error) {
	return "", llm.NewCapabilityError(providerName, "batch file upload")
}

// Submit 实现 [batch.Backend]
func (c *Client) Submit(_ context.Context, req *batch.Request, _ string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}

	job := &mockJob{
		id:        "mockbatch_" + gonanoid.Must(10),
		items:     append([]batch.RequestItem(nil), req.Items...),
		status:    batch.StatusInProgress,
		createdAt: time.Now(),
	}
	c.jobs[job.id] = job
	c.logger.Info("mock batch submitted", "batch_id", job.id, "requests", len(job.items))
	return job.document(c.failIDs), nil
}

// Retrieve 实现 [batch.Backend]
//
// 每次查询推进一次；查询次数超过 batchPolls 后任务完成。
func (c *Client) Retrieve(_ context.Context, id string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	job, err := c.job(id)
	if err != nil {
		return nil, err
	}
	job.polls++
	if job.status == batch.StatusInProgress && job.polls > c.batchPolls {
		job.status = batch.StatusCompleted
		job.endedAt = time.Now()
	}
	return job.document(c.failIDs), nil
}

// Cancel 实现 [batch.Backend]
func (c *Client) Cancel(_ context.Context, id string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	job, err := c.job(id)
	if err != nil {
		return nil, err
	}
	if !job.status.IsTerminal() {
		job.status = batch.StatusCancelled
		job.endedAt = time.Now()
	}
	return job.document(c.failIDs), nil
}

// Delete 实现 [batch.Backend]
func (c *Client) Delete(_ context.Context, id string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.job(id); err != nil {
		return nil, err
	}
	delete(c.jobs, id)
	return json.Marshal(map[string]any{"id": id, "deleted": true})
}

// OpenArtifact 实现 [batch.Backend]
//
// 结果在打开时按当前响应配置生成。
func (c *Client) OpenArtifact(_ context.Context, ref batch.ArtifactRef) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	job, err := c.job(strings.TrimPrefix(ref.FileID, "file-"))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range job.items {
		var line map[string]any
		if c.failIDs[item.CustomID] {
			line = map[string]any{
				"custom_id": item.CustomID,
				"response": map[string]any{
					"status_code": http.StatusBadRequest,
					"body": map[string]any{"error": map[string]any{
						"message": "mock failure",
						"type":    "invalid_request_error",
					}},
				},
			}
		} else {
			var request map[string]any
			_ = json.Unmarshal(item.Body, &request)
			reply := c.nextReply(request)
			line = map[string]any{
				"custom_id": item.CustomID,
				"response": map[string]any{
					"status_code": http.StatusOK,
					"body":        completionMessage(reply, promptTokens(request)),
				},
			}
		}
		if err := enc.Encode(line); err != nil {
			return nil, llm.NewResponseError("result", err)
		}
	}
	return io.NopCloser(&buf), nil
}

// ParseResult 实现 [batch.Backend]
func (c *Client) ParseResult(line []byte) (*batch.ResultItem, error) {
	return batch.ParseResultItem(line, resultLayout)
}

// job 查找任务（需要在锁内调用）
func (c *Client) job(id string) (*mockJob, error) {
	job, ok := c.jobs[id]
	if !ok {
		return nil, llm.NewAPIError(http.StatusNotFound, `{"error":{"message":"batch not found","code":"not_found"}}`).
			WithProvider(providerName).
			WithErrorCode("not_found")
	}
	return job, nil
}

// document 任务文档（OpenAI 形状）
func (j *mockJob) document(failIDs map[string]bool) []byte {
	doc := map[string]any{
		"id":         j.id,
		"object":     "batch",
		"status":     string(j.status),
		"created_at": j.createdAt.Unix(),
	}

	counts := map[string]any{"total": len(j.items), "completed": 0, "failed": 0}
	switch j.status {
	case batch.StatusCompleted:
		failed := 0
		for _, item := range j.items {
			if failIDs[item.CustomID] {
				failed++
			}
		}
		counts["completed"] = len(j.items) - failed
		counts["failed"] = failed
		doc["completed_at"] = j.endedAt.Unix()
		doc["output_file_id"] = "file-" + j.id
	case batch.StatusCancelled:
		doc["cancelled_at"] = j.endedAt.Unix()
	}
	doc["request_counts"] = counts

	data, _ := json.Marshal(doc)
	return data
}

var _ batch.Backend = (*Client)(nil)
