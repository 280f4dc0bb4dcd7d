package batch

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// BatchJob
// ═══════════════════════════════════════════════════════════════════════════

// BatchJob 远端批量任务的本地快照
//
// 只由 [Orchestrator] 的 Create/Get/Cancel/Delete 产生，调用方不应修改。
type BatchJob struct {
	ID       string        `json:"id"`
	Provider string        `json:"provider"`
	Status   Status        `json:"status"`
	Counts   RequestCounts `json:"request_counts"`
	Timeline Timeline      `json:"timeline"`
	Output   Artifact      `json:"output"`

	// Raw 厂商原始响应
	Raw json.RawMessage `json:"raw,omitempty"`
}

// RequestCounts 子请求计数
type RequestCounts struct {
	Total      int64 `json:"total"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Processing int64 `json:"processing"`
	Cancelled  int64 `json:"cancelled"`
	Expired    int64 `json:"expired"`
}

// Timeline 生命周期时间点，各字段独立可选
type Timeline struct {
	Created         *time.Time `json:"created,omitempty"`
	Expires         *time.Time `json:"expires,omitempty"`
	Started         *time.Time `json:"started,omitempty"`
	Finalizing      *time.Time `json:"finalizing,omitempty"`
	Completed       *time.Time `json:"completed,omitempty"`
	Failed          *time.Time `json:"failed,omitempty"`
	CancelRequested *time.Time `json:"cancel_requested,omitempty"`
	Cancelled       *time.Time `json:"cancelled,omitempty"`
	Archived        *time.Time `json:"archived,omitempty"`
}

// Artifact 结果产物引用
//
// 三种交付方式：文件（OpenAI、Gemini responsesFile）、
// URL（Anthropic results_url）、内联（Gemini inlinedResponses）。
type Artifact struct {
	OutputFileID string            `json:"output_file_id,omitempty"`
	ErrorFileID  string            `json:"error_file_id,omitempty"`
	ResultsURL   string            `json:"results_url,omitempty"`
	Inline       []json.RawMessage `json:"inline,omitempty"`
}

// Available 是否已有可读取的结果
func (a Artifact) Available() bool {
	return a.OutputFileID != "" || a.ErrorFileID != "" || a.ResultsURL != "" || len(a.Inline) > 0
}

// ArtifactRef 单个可下载的结果引用（文件 ID 或 URL 二选一）
type ArtifactRef struct {
	FileID string
	URL    string
}

// Refs 按读取顺序返回可下载引用：输出文件、错误文件、结果 URL
func (a Artifact) Refs() []ArtifactRef {
	var refs []ArtifactRef
	if a.OutputFileID != "" {
		refs = append(refs, ArtifactRef{FileID: a.OutputFileID})
	}
	if a.ErrorFileID != "" {
		refs = append(refs, ArtifactRef{FileID: a.ErrorFileID})
	}
	if a.ResultsURL != "" {
		refs = append(refs, ArtifactRef{URL: a.ResultsURL})
	}
	return refs
}

// ═══════════════════════════════════════════════════════════════════════════
// 字段路径
// ═══════════════════════════════════════════════════════════════════════════
//
// 同一生命周期概念在各厂商中名称不同，每个规范字段对应一个有序路径列表。

var (
	idPaths = []string{"id", "name"}

	createdPaths         = []string{"created_at", "createTime", "metadata.createTime"}
	expiresPaths         = []string{"expires_at"}
	startedPaths         = []string{"in_progress_at", "startTime", "metadata.startTime"}
	finalizingPaths      = []string{"finalizing_at"}
	completedPaths       = []string{"completed_at", "ended_at", "endTime", "metadata.endTime"}
	failedPaths          = []string{"failed_at"}
	cancelRequestedPaths = []string{"cancelling_at", "cancel_initiated_at"}
	cancelledPaths       = []string{"cancelled_at"}
	archivedPaths        = []string{"archived_at"}

	totalPaths      = []string{"request_counts.total", "batchStats.requestCount", "metadata.batchStats.requestCount"}
	completedCount  = []string{"request_counts.completed", "request_counts.succeeded", "batchStats.successfulRequestCount", "metadata.batchStats.successfulRequestCount"}
	failedCount     = []string{"request_counts.failed", "request_counts.errored", "batchStats.failedRequestCount", "metadata.batchStats.failedRequestCount"}
	processingCount = []string{"request_counts.processing", "batchStats.pendingRequestCount", "metadata.batchStats.pendingRequestCount"}
	cancelledCount  = []string{"request_counts.canceled", "request_counts.cancelled"}
	expiredCount    = []string{"request_counts.expired"}

	outputFilePaths = []string{"output_file_id", "output.responsesFile", "metadata.output.responsesFile", "response.responsesFile"}
	errorFilePaths  = []string{"error_file_id"}
	resultsURLPaths = []string{"results_url"}
	inlinePaths     = []string{
		"output.inlinedResponses.inlinedResponses",
		"metadata.output.inlinedResponses.inlinedResponses",
		"response.inlinedResponses.inlinedResponses",
	}
)

// errMalformedJob 任务响应不是合法 JSON 对象
var errMalformedJob = errors.New("batch: malformed job document")

// ParseJob 将任意厂商的任务响应规范化为 BatchJob
//
// 解析是纯函数：相同的 doc 总是得到相同的结果。
func ParseJob(provider string, doc []byte) (*BatchJob, error) {
	if !gjson.ValidBytes(doc) || !gjson.ParseBytes(doc).IsObject() {
		return nil, llm.NewResponseError("batch", errMalformedJob)
	}

	job := &BatchJob{
		ID:       core.FirstString(doc, idPaths...),
		Provider: provider,
		Status:   ResolveStatus(doc),
		Counts:   parseCounts(doc),
		Timeline: Timeline{
			Created:         core.FirstTime(doc, createdPaths...),
			Expires:         core.FirstTime(doc, expiresPaths...),
			Started:         core.FirstTime(doc, startedPaths...),
			Finalizing:      core.FirstTime(doc, finalizingPaths...),
			Completed:       core.FirstTime(doc, completedPaths...),
			Failed:          core.FirstTime(doc, failedPaths...),
			CancelRequested: core.FirstTime(doc, cancelRequestedPaths...),
			Cancelled:       core.FirstTime(doc, cancelledPaths...),
			Archived:        core.FirstTime(doc, archivedPaths...),
		},
		Output: Artifact{
			OutputFileID: core.FirstString(doc, outputFilePaths...),
			ErrorFileID:  core.FirstString(doc, errorFilePaths...),
			ResultsURL:   core.FirstString(doc, resultsURLPaths...),
		},
		Raw: json.RawMessage(append([]byte(nil), doc...)),
	}

	for _, r := range core.First(doc, inlinePaths...).Array() {
		job.Output.Inline = append(job.Output.Inline, json.RawMessage(r.Raw))
	}

	return job, nil
}

func parseCounts(doc []byte) RequestCounts {
	count := func(paths []string) int64 {
		n, _ := core.FirstInt(doc, paths...)
		return n
	}

	c := RequestCounts{
		Completed:  count(completedCount),
		Failed:     count(failedCount),
		Processing: count(processingCount),
		Cancelled:  count(cancelledCount),
		Expired:    count(expiredCount),
	}
	// Anthropic 不提供总数
	if total, ok := core.FirstInt(doc, totalPaths...); ok {
		c.Total = total
	} else {
		c.Total = c.Completed + c.Failed + c.Processing + c.Cancelled + c.Expired
	}
	return c
}
