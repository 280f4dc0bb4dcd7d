package core

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// Mock 实现
// ═══════════════════════════════════════════════════════════════════════════

// mockConfig Mock 配置实现
type mockConfig struct {
	apiKey       string
	baseURL      string
	model        string
	providerName string
}

func (m *mockConfig) Validate() error {
	if m.apiKey == "" {
		return llm.NewConfigError("API key is required", nil)
	}
	return nil
}

func (m *mockConfig) GetDefaults() (string, string, time.Duration) {
	baseURL := m.baseURL
	if baseURL == "" {
		baseURL = "https://api.example.com/v1"
	}
	model := m.model
	if model == "" {
		model = "test-model"
	}
	return baseURL, model, 30 * time.Second
}

func (m *mockConfig) BuildHeaders() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + m.apiKey,
		"Content-Type":  "application/json",
	}
}

func (m *mockConfig) ProviderName() string {
	return m.providerName
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *BaseClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewBaseClient(&mockConfig{
		apiKey:       "test-key",
		baseURL:      server.URL,
		providerName: "test-provider",
	})
	require.NoError(t, err)
	return client
}

// ═══════════════════════════════════════════════════════════════════════════
// BaseClient 测试
// ═══════════════════════════════════════════════════════════════════════════

func TestNewBaseClient(t *testing.T) {
	t.Run("成功创建 BaseClient", func(t *testing.T) {
		client, err := NewBaseClient(&mockConfig{apiKey: "test-key", providerName: "p"})

		require.NoError(t, err)
		require.NotNil(t, client)
		assert.NotNil(t, client.resty)
		assert.Equal(t, "test-model", client.Model())
		assert.Equal(t, "p", client.ProviderName())
	})

	t.Run("配置验证失败", func(t *testing.T) {
		client, err := NewBaseClient(&mockConfig{apiKey: ""})

		require.Error(t, err)
		assert.Nil(t, client)
		assert.True(t, llm.IsConfigError(err))
	})
}

func TestBaseClient_DoJSON(t *testing.T) {
	t.Run("成功的 JSON 请求", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/batches", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"input_file_id":"file-1"}`, string(body))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"batch_1","status":"validating"}`))
		})

		resp, err := client.DoJSON(context.Background(), http.MethodPost, "/batches",
			map[string]any{"input_file_id": "file-1"})

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "batch_1", FirstString(resp.Body, "id"))
	})

	t.Run("无请求体的 GET", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			body, _ := io.ReadAll(r.Body)
			assert.Empty(t, body)
			_, _ = w.Write([]byte(`{"id":"batch_1"}`))
		})

		resp, err := client.DoJSON(context.Background(), http.MethodGet, "/batches/batch_1", nil)
		require.NoError(t, err)
		assert.Contains(t, string(resp.Body), "batch_1")
	})

	t.Run("API 返回错误 (401)", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Request-ID", "req-123")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": {"message": "Invalid API key", "code": "invalid_api_key"}}`))
		})

		resp, err := client.DoJSON(context.Background(), http.MethodGet, "/batches", nil)

		require.Error(t, err)
		assert.Nil(t, resp)

		apiErr, ok := llm.GetAPIError(err)
		require.True(t, ok)
		assert.Equal(t, 401, apiErr.StatusCode)
		assert.Equal(t, "test-provider", apiErr.Provider)
		assert.Equal(t, "req-123", apiErr.RequestID)
		assert.Equal(t, "invalid_api_key", apiErr.ErrorCode)
		assert.Contains(t, apiErr.Response, "Invalid API key")
	})

	t.Run("Anthropic 风格的 request-id", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("request-id", "req_018")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"not_found_error","message":"batch not found"}}`))
		})

		_, err := client.DoJSON(context.Background(), http.MethodGet, "/messages/batches/x", nil)

		apiErr, ok := llm.GetAPIError(err)
		require.True(t, ok)
		assert.Equal(t, "req_018", apiErr.RequestID)
		assert.Equal(t, "not_found_error", apiErr.ErrorCode)
		assert.False(t, apiErr.IsRetryable())
	})

	t.Run("网络错误", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		baseURL := server.URL
		server.Close()

		client, err := NewBaseClient(&mockConfig{apiKey: "test-key", baseURL: baseURL})
		require.NoError(t, err)

		resp, err := client.DoJSON(context.Background(), http.MethodGet, "/batches", nil)

		require.Error(t, err)
		assert.Nil(t, resp)
		assert.True(t, llm.IsHTTPError(err))
	})

	t.Run("无法序列化的请求体", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("不应发出请求")
		})

		_, err := client.DoJSON(context.Background(), http.MethodPost, "/batches", map[string]any{"ch": make(chan int)})

		require.Error(t, err)
		assert.True(t, llm.IsRequestError(err))
	})
}

func TestBaseClient_OpenStream(t *testing.T) {
	t.Run("成功的流式请求", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = fmt.Fprint(w, "data: {\"content\": \"Hello\"}\n\n")
			_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
		})

		body, err := client.OpenStream(context.Background(), "/chat/completions", map[string]any{"stream": true})
		require.NoError(t, err)
		defer body.Close()

		scanner := NewSSEScanner(body)
		var frames []Frame
		for scanner.Next() {
			frames = append(frames, scanner.Frame())
		}
		require.NoError(t, scanner.Err())
		require.Len(t, frames, 2)
		assert.Equal(t, "[DONE]", frames[1].Data)
	})

	t.Run("流式请求返回错误", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"message": "Rate limit exceeded"}}`))
		})

		body, err := client.OpenStream(context.Background(), "/chat/completions", []byte(`{}`))

		require.Error(t, err)
		assert.Nil(t, body)

		apiErr, ok := llm.GetAPIError(err)
		require.True(t, ok)
		assert.Equal(t, 429, apiErr.StatusCode)
		assert.True(t, apiErr.IsRetryable())
		assert.Contains(t, apiErr.Response, "Rate limit exceeded", "未解析响应的错误体也应被读取")
	})
}

func TestBaseClient_Upload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "batch", r.FormValue("purpose"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		assert.Equal(t, "batch.jsonl", header.Filename)

		content, _ := io.ReadAll(file)
		assert.Equal(t, "{\"custom_id\":\"a\"}\n", string(content))

		_, _ = w.Write([]byte(`{"id":"file-abc","purpose":"batch"}`))
	})

	resp, err := client.Upload(context.Background(), "/files", "batch.jsonl",
		strings.NewReader("{\"custom_id\":\"a\"}\n"), map[string]string{"purpose": "batch"})

	require.NoError(t, err)
	assert.Equal(t, "file-abc", FirstString(resp.Body, "id"))
}

func TestBaseClient_Open(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/files/file-1/content":
			_, _ = w.Write([]byte("line1\nline2\n"))
		case "/results/batch_1":
			_, _ = w.Write([]byte("absolute\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := NewBaseClient(&mockConfig{apiKey: "test-key", baseURL: server.URL + "/v1"})
	require.NoError(t, err)

	t.Run("相对路径", func(t *testing.T) {
		body, err := client.Open(context.Background(), "/files/file-1/content")
		require.NoError(t, err)
		defer body.Close()

		data, _ := io.ReadAll(body)
		assert.Equal(t, "line1\nline2\n", string(data))
	})

	t.Run("绝对 URL 不拼接 BaseURL", func(t *testing.T) {
		body, err := client.Open(context.Background(), server.URL+"/results/batch_1")
		require.NoError(t, err)
		defer body.Close()

		data, _ := io.ReadAll(body)
		assert.Equal(t, "absolute\n", string(data))
	})

	t.Run("下载 404", func(t *testing.T) {
		body, err := client.Open(context.Background(), "/files/missing/content")
		require.Error(t, err)
		assert.Nil(t, body)
		assert.Equal(t, 404, llm.GetStatusCode(err))
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// 辅助函数测试
// ═══════════════════════════════════════════════════════════════════════════

func TestGetDefaultTimeout(t *testing.T) {
	t.Run("零超时返回默认值", func(t *testing.T) {
		assert.Equal(t, 120*time.Second, GetDefaultTimeout(0))
	})

	t.Run("非零超时保持不变", func(t *testing.T) {
		assert.Equal(t, 30*time.Second, GetDefaultTimeout(30*time.Second))
	})
}

func TestNewInvalidConfigError(t *testing.T) {
	err := NewInvalidConfigError("model")

	assert.True(t, llm.IsConfigError(err))
	assert.Contains(t, err.Error(), "model")
}

func TestNewMissingAPIKeyError(t *testing.T) {
	err := NewMissingAPIKeyError()

	assert.True(t, llm.IsConfigError(err))
	assert.Contains(t, err.Error(), "API key")
}
