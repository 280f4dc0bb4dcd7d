package batch

import (
	"strings"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// 任务状态
// ═══════════════════════════════════════════════════════════════════════════

// Status 规范化批量任务状态（封闭枚举）
type Status string

const (
	StatusUnknown    Status = "unknown"
	StatusValidating Status = "validating"
	StatusInProgress Status = "in_progress"
	StatusFinalizing Status = "finalizing"
	StatusCompleted  Status = "completed"
	StatusEnded      Status = "ended"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
	StatusCancelling Status = "cancelling"
	StatusCancelled  Status = "cancelled"
)

// String 返回字符串表示
func (s Status) String() string {
	return string(s)
}

// IsTerminal 是否为终止状态
//
// 终止状态之后不会再有状态迁移。
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusEnded, StatusFailed, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// statusPaths 状态字段优先级
//
//   - status：OpenAI
//   - processing_status：Anthropic
//   - state / metadata.state：Gemini（batches 资源 / 长时操作）
var statusPaths = []string{"status", "processing_status", "state", "metadata.state"}

// statusVocabulary 厂商状态词表（小写）
var statusVocabulary = map[string]Status{
	// OpenAI
	"validating":  StatusValidating,
	"in_progress": StatusInProgress,
	"finalizing":  StatusFinalizing,
	"completed":   StatusCompleted,
	"failed":      StatusFailed,
	"expired":     StatusExpired,
	"cancelling":  StatusCancelling,
	"cancelled":   StatusCancelled,

	// Anthropic
	"canceling": StatusCancelling,
	"canceled":  StatusCancelled,
	"ended":     StatusEnded,

	// Gemini
	"batch_state_pending":           StatusValidating,
	"batch_state_running":           StatusInProgress,
	"batch_state_succeeded":         StatusCompleted,
	"batch_state_failed":            StatusFailed,
	"batch_state_cancelled":         StatusCancelled,
	"batch_state_expired":           StatusExpired,
	"job_state_queued":              StatusValidating,
	"job_state_pending":             StatusValidating,
	"job_state_running":             StatusInProgress,
	"job_state_updating":            StatusInProgress,
	"job_state_paused":              StatusInProgress,
	"job_state_succeeded":           StatusCompleted,
	"job_state_partially_succeeded": StatusCompleted,
	"job_state_failed":              StatusFailed,
	"job_state_cancelling":          StatusCancelling,
	"job_state_cancelled":           StatusCancelled,
	"job_state_expired":             StatusExpired,
}

// ResolveStatus 按固定优先级解析规范化状态
//
// 第一个有值的字段决定结果，后面的字段不再参与；
// 无法识别的值返回 StatusUnknown。
func ResolveStatus(doc []byte) Status {
	raw := core.FirstString(doc, statusPaths...)
	if raw == "" {
		return StatusUnknown
	}
	if s, ok := statusVocabulary[strings.ToLower(raw)]; ok {
		return s
	}
	return StatusUnknown
}
