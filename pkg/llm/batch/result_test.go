package batch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
)

// textParser 取响应体的 text 字段
func textParser(body []byte) (*llm.ChatMessage, llm.FinishReason, error) {
	r := gjson.GetBytes(body, "text")
	if !r.Exists() {
		return nil, llm.FinishReasonUnknown, errors.New("no text")
	}
	return &llm.ChatMessage{Role: llm.RoleAssistant, Text: r.String()}, llm.FinishReasonStop, nil
}

var testLayout = ResultLayout{
	IDPaths:      []string{"custom_id", "key", "metadata.key"},
	MessagePaths: []string{"response.body", "result.message", "response"},
	Parse:        textParser,
}

func TestInferVariant(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		expected ResultVariant
	}{
		{"显式 succeeded", `{"result":{"type":"succeeded"}}`, ResultSucceeded},
		{"显式 errored", `{"result":{"type":"errored","error":{"type":"error"}}}`, ResultErrored},
		{"显式 canceled", `{"result":{"type":"canceled"}}`, ResultCancelled},
		{"显式 expired", `{"result":{"type":"expired"}}`, ResultExpired},
		{"顶层类型", `{"type":"expired"}`, ResultExpired},
		{"错误对象无类型标签", `{"custom_id":"a","error":{"code":"bad_request","message":"x"}}`, ResultErrored},
		{"2xx 状态码无错误", `{"custom_id":"a","response":{"status_code":200,"body":{}},"error":null}`, ResultSucceeded},
		{"非 2xx 且响应体带错误", `{"response":{"status_code":400,"body":{"error":{"message":"x"}}},"error":null}`, ResultErrored},
		{"类型标签优先于状态码", `{"type":"errored","status_code":200}`, ResultErrored},
		{"未知标签继续推断", `{"type":"mystery","status_code":201}`, ResultSucceeded},
		{"无任何信号", `{"custom_id":"a"}`, ResultUnknown},
		{"error 为 null", `{"custom_id":"a","error":null}`, ResultUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, InferVariant([]byte(tt.doc)))
		})
	}
}

func TestParseResultItem(t *testing.T) {
	t.Run("OpenAI 成功行", func(t *testing.T) {
		line := `{"id":"batch_req_1","custom_id":"req-1","response":{"status_code":200,"request_id":"r","body":{"text":"hello"}},"error":null}`
		item, err := ParseResultItem([]byte(line), testLayout)
		require.NoError(t, err)

		assert.Equal(t, "req-1", item.CustomID)
		assert.Equal(t, ResultSucceeded, item.Variant)
		assert.Equal(t, 200, item.StatusCode)
		require.NotNil(t, item.Message)
		assert.Equal(t, "hello", item.Message.Text)
		assert.Equal(t, llm.FinishReasonStop, item.FinishReason)
		assert.Nil(t, item.Error)
		assert.JSONEq(t, line, string(item.Raw))
	})

	t.Run("OpenAI 错误行", func(t *testing.T) {
		line := `{"custom_id":"req-2","response":null,"error":{"code":"invalid_request","message":"bad model","param":"model","line":7}}`
		item, err := ParseResultItem([]byte(line), testLayout)
		require.NoError(t, err)

		assert.Equal(t, ResultErrored, item.Variant)
		require.NotNil(t, item.Error)
		assert.Equal(t, &ResultError{Code: "invalid_request", Message: "bad model", Param: "model", Line: 7}, item.Error)
		assert.Equal(t, "invalid_request: bad model", item.Error.Error())
		assert.Nil(t, item.Message)
	})

	t.Run("Anthropic 嵌套错误", func(t *testing.T) {
		line := `{"custom_id":"c","result":{"type":"errored","error":{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens too large"}}}}`
		item, err := ParseResultItem([]byte(line), testLayout)
		require.NoError(t, err)

		assert.Equal(t, ResultErrored, item.Variant)
		assert.Equal(t, "invalid_request_error", item.Error.Type)
		assert.Equal(t, "max_tokens too large", item.Error.Message)
	})

	t.Run("Anthropic 过期", func(t *testing.T) {
		item, err := ParseResultItem([]byte(`{"custom_id":"d","result":{"type":"expired"}}`), testLayout)
		require.NoError(t, err)
		assert.Equal(t, ResultExpired, item.Variant)
		assert.Nil(t, item.Message)
	})

	t.Run("Gemini 无标签成功", func(t *testing.T) {
		item, err := ParseResultItem([]byte(`{"key":"g1","response":{"text":"ok"}}`), testLayout)
		require.NoError(t, err)
		assert.Equal(t, "g1", item.CustomID)
		assert.Equal(t, ResultSucceeded, item.Variant)
		assert.Equal(t, "ok", item.Message.Text)
	})

	t.Run("Gemini 错误使用 status 作为 code", func(t *testing.T) {
		item, err := ParseResultItem([]byte(`{"metadata":{"key":"g2"},"error":{"code":400,"message":"bad","status":"INVALID_ARGUMENT"}}`), testLayout)
		require.NoError(t, err)
		assert.Equal(t, "g2", item.CustomID)
		assert.Equal(t, "400", item.Error.Code)
	})

	t.Run("非法行", func(t *testing.T) {
		for _, line := range []string{`{"custom_id":`, `[]`, `42`} {
			_, err := ParseResultItem([]byte(line), testLayout)
			assert.Error(t, err, line)
		}
	})

	t.Run("响应体无法解析", func(t *testing.T) {
		_, err := ParseResultItem([]byte(`{"custom_id":"x","response":{"status_code":200,"body":{"other":1}}}`), testLayout)
		assert.Error(t, err)
	})
}
