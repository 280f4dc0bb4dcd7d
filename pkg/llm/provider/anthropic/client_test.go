package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/batch"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/stream"
)

// ═══════════════════════════════════════════════════════════════════════════
// New 函数测试
// ═══════════════════════════════════════════════════════════════════════════

func TestNew_NilConfig(t *testing.T) {
	client, err := New(nil)

	assert.Nil(t, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")
}

func TestNew_MissingAPIKey(t *testing.T) {
	client, err := New(&Config{})

	assert.Nil(t, client)
	require.Error(t, err)
	assert.True(t, llm.IsConfigError(err))
	assert.Contains(t, err.Error(), "API key is required")
}

func TestNew_DefaultValues(t *testing.T) {
	client, err := New(&Config{APIKey: "test-key"})

	require.NoError(t, err)
	require.NotNil(t, client)
	assert.NoError(t, client.Close())

	assert.Equal(t, "claude-3-5-haiku-latest", client.config.Model)
	assert.Contains(t, client.config.BaseURL, "api.anthropic.com")
	assert.Equal(t, 120*time.Second, client.config.Timeout)
	assert.Equal(t, "2023-06-01", client.config.AnthropicVersion)
	assert.Equal(t, "anthropic", client.ProviderName())
}

func TestNew_CustomValues(t *testing.T) {
	client, err := New(&Config{
		APIKey:           "test-key",
		BaseURL:          "https://custom.api.example.com/v1",
		Model:            "claude-3-opus",
		Timeout:          30 * time.Second,
		AnthropicVersion: "2024-01-01",
		Headers:          map[string]string{"X-Custom-Header": "custom-value"},
	})

	require.NoError(t, err)
	assert.Equal(t, "claude-3-opus", client.config.Model)
	assert.Equal(t, "https://custom.api.example.com/v1", client.config.BaseURL)
	assert.Equal(t, 30*time.Second, client.config.Timeout)
}

func TestConfig_BuildHeaders(t *testing.T) {
	cfg := &Config{APIKey: "k", Headers: map[string]string{"anthropic-beta": "x"}}
	headers := cfg.BuildHeaders()

	assert.Equal(t, "k", headers["X-Api-Key"])
	assert.Equal(t, "2023-06-01", headers["anthropic-version"])
	assert.Equal(t, "x", headers["anthropic-beta"])
	assert.NotContains(t, headers, "Authorization")
}

// ═══════════════════════════════════════════════════════════════════════════
// Stream 测试
// ═══════════════════════════════════════════════════════════════════════════

const toolStream = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"usage":{"input_tokens":25,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: ping
data: {"type": "ping"}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Checking."}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: content_block_start
data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_01","name":"get_weather","input":{}}}

event: content_block_delta
data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"location\":"}}

event: content_block_delta
data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":" \"Paris\"}"}}

event: content_block_stop
data: {"type":"content_block_stop","index":1}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":40}}

event: message_stop
data: {"type":"message_stop"}

`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(&Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)
	return client, server
}

func TestClient_Stream(t *testing.T) {
	var captured map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, toolStream)
	})

	request := map[string]any{"max_tokens": 1024, "messages": []any{}}
	events, err := client.Stream(context.Background(), request)
	require.NoError(t, err)

	msg, term := stream.Collect(events)
	require.NotNil(t, msg)
	require.NotNil(t, term)

	assert.Equal(t, true, captured["stream"])
	assert.Equal(t, "claude-3-5-haiku-latest", captured["model"])
	assert.NotContains(t, request, "stream", "调用方的请求不被修改")

	assert.Equal(t, "Checking.", msg.Text)
	require.Len(t, msg.ToolCalls, 1)
	assert.JSONEq(t, `{"location":"Paris"}`, msg.ToolCalls[0].Arguments)
	assert.Equal(t, llm.FinishReasonToolCalls, term.FinishReason)
	assert.Equal(t, int64(65), term.Usage.TotalTokens)
}

func TestClient_Stream_APIError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("request-id", "req_011")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	})

	events, err := client.Stream(context.Background(), map[string]any{"model": "claude-x"})
	assert.Nil(t, events)

	apiErr, ok := llm.GetAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "anthropic", apiErr.Provider)
	assert.Equal(t, "req_011", apiErr.RequestID)
	assert.Equal(t, "rate_limit_error", apiErr.ErrorCode)
	assert.True(t, apiErr.IsRetryable())
}

// ═══════════════════════════════════════════════════════════════════════════
// Batch 测试
// ═══════════════════════════════════════════════════════════════════════════

const endedBatch = `{
	"id": "msgbatch_01",
	"type": "message_batch",
	"processing_status": "ended",
	"request_counts": {"processing": 0, "succeeded": 1, "errored": 1, "canceled": 0, "expired": 0},
	"created_at": "2024-09-24T18:37:24.100435Z",
	"ended_at": "2024-09-24T18:40:00Z",
	"results_url": "%s/messages/batches/msgbatch_01/results"
}`

const batchResults = `{"custom_id":"a","result":{"type":"succeeded","message":{"id":"msg_1","type":"message","role":"assistant","content":[{"type":"text","text":"Hi"}],"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":2}}}}
{"custom_id":"b","result":{"type":"errored","error":{"type":"error","error":{"type":"invalid_request_error","message":"bad request"}}}}
`

func TestClient_Batch(t *testing.T) {
	var submitted batchRequest
	var deleted int
	var serverURL string
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/messages/batches":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&submitted))
			_, _ = io.WriteString(w, `{"id":"msgbatch_01","processing_status":"in_progress","request_counts":{"processing":2}}`)
		case r.Method == http.MethodGet && r.URL.Path == "/messages/batches/msgbatch_01":
			_, _ = io.WriteString(w, fmt.Sprintf(endedBatch, serverURL))
		case r.Method == http.MethodPost && r.URL.Path == "/messages/batches/msgbatch_01/cancel":
			_, _ = io.WriteString(w, `{"id":"msgbatch_01","processing_status":"canceling"}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/messages/batches/msgbatch_01":
			deleted++
			_, _ = io.WriteString(w, `{"id":"msgbatch_01","type":"message_batch_deleted"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/messages/batches/msgbatch_01/results":
			_, _ = io.WriteString(w, batchResults)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	serverURL = server.URL

	orch := batch.NewOrchestrator(client)
	ctx := context.Background()

	t.Run("内联提交", func(t *testing.T) {
		job, err := orch.Create(ctx, &batch.Request{Items: []batch.RequestItem{
			{CustomID: "a", Body: json.RawMessage(`{"model":"claude-x","max_tokens":10,"messages":[]}`)},
			{CustomID: "b", Body: json.RawMessage(`{"model":"claude-x","max_tokens":10,"messages":[]}`)},
		}})
		require.NoError(t, err)
		assert.Equal(t, "msgbatch_01", job.ID)
		assert.Equal(t, batch.StatusInProgress, job.Status)
		assert.Equal(t, int64(2), job.Counts.Total)

		require.Len(t, submitted.Requests, 2)
		assert.Equal(t, "a", submitted.Requests[0].CustomID)
		assert.JSONEq(t, `{"model":"claude-x","max_tokens":10,"messages":[]}`, string(submitted.Requests[0].Params))
	})

	t.Run("查询与结果流", func(t *testing.T) {
		job, err := orch.WaitForCompletion(ctx, "msgbatch_01", time.Millisecond, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, batch.StatusEnded, job.Status)
		require.NotNil(t, job.Timeline.Completed)

		var items []*batch.ResultItem
		for item, err := range orch.GetResultsStreaming(ctx, job) {
			require.NoError(t, err)
			items = append(items, item)
		}
		require.Len(t, items, 2)

		assert.Equal(t, batch.ResultSucceeded, items[0].Variant)
		assert.Equal(t, "Hi", items[0].Message.Text)
		assert.Equal(t, llm.FinishReasonStop, items[0].FinishReason)
		assert.Equal(t, batch.ResultErrored, items[1].Variant)
		assert.Equal(t, "invalid_request_error", items[1].Error.Type)
	})

	t.Run("取消", func(t *testing.T) {
		job, err := orch.Cancel(ctx, "msgbatch_01")
		require.NoError(t, err)
		assert.Equal(t, batch.StatusCancelling, job.Status)
	})

	t.Run("删除", func(t *testing.T) {
		job, err := orch.Delete(ctx, "msgbatch_01")
		require.NoError(t, err)
		assert.Equal(t, "msgbatch_01", job.ID)
		assert.Equal(t, 1, deleted)
	})
}

func TestClient_OpenArtifact_FileRef(t *testing.T) {
	client, err := New(&Config{APIKey: "k"})
	require.NoError(t, err)

	_, err = client.OpenArtifact(context.Background(), batch.ArtifactRef{FileID: "file-1"})
	assert.True(t, llm.IsCapabilityError(err))
}
