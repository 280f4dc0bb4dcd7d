package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 批量任务编排器
// ═══════════════════════════════════════════════════════════════════════════

// DefaultPollInterval 未指定轮询间隔时的默认值
const DefaultPollInterval = 10 * time.Second

// ErrWaitTimeout WaitForCompletion 的总时长耗尽
//
// 与最后一次观察到的任务一同返回。
var ErrWaitTimeout = errors.New("batch: wait budget exhausted before terminal status")

// Orchestrator 厂商无关的批量任务门面
//
// 除 Backend 外不持有可变状态，多个任务可以并发轮询。
type Orchestrator struct {
	backend Backend
	logger  *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// Option 编排器选项
type Option func(*Orchestrator)

// WithLogger 设置日志（nil 忽略）
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator 创建编排器
func NewOrchestrator(backend Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend: backend,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
		after:   time.After,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Provider 厂商名称
func (o *Orchestrator) Provider() string {
	return o.backend.ProviderName()
}

// ═══════════════════════════════════════════════════════════════════════════
// 生命周期操作
// ═══════════════════════════════════════════════════════════════════════════

// Create 创建批量任务
//
// 流程：校验 → （需要时）上传 JSONL 输入 → 提交。
// 上传失败时直接返回，不会发出创建调用。
func (o *Orchestrator) Create(ctx context.Context, req *Request) (*BatchJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var fileID string
	if o.backend.Capabilities().RequiresUpload {
		id, err := o.backend.Upload(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("upload batch input: %w", err)
		}
		fileID = id
		o.logger.Info("batch input uploaded", "provider", o.Provider(), "file_id", fileID, "requests", len(req.Items))
	}

	doc, err := o.backend.Submit(ctx, req, fileID)
	if err != nil {
		return nil, err
	}
	job, err := ParseJob(o.Provider(), doc)
	if err != nil {
		return nil, err
	}
	o.logger.Info("batch submitted", "provider", o.Provider(), "id", job.ID, "status", job.Status)
	return job, nil
}

// Get 查询任务
func (o *Orchestrator) Get(ctx context.Context, id string) (*BatchJob, error) {
	doc, err := o.backend.Retrieve(ctx, id)
	if err != nil {
		return nil, err
	}
	return ParseJob(o.Provider(), doc)
}

// Cancel 请求取消任务
//
// 取消是协作式的：任务可能继续运行，之后的 Get 会观察到
// Cancelling → Cancelled 的迁移。
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*BatchJob, error) {
	doc, err := o.backend.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.parseWithID(id, doc)
}

// Delete 删除任务
//
// 不支持删除的厂商在任何网络调用之前返回 CapabilityError。
func (o *Orchestrator) Delete(ctx context.Context, id string) (*BatchJob, error) {
	if !o.backend.Capabilities().Delete {
		return nil, llm.NewCapabilityError(o.Provider(), "batch delete")
	}
	doc, err := o.backend.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.parseWithID(id, doc)
}

// parseWithID 部分厂商的响应不带任务 ID（Gemini 删除返回 {}）
func (o *Orchestrator) parseWithID(id string, doc []byte) (*BatchJob, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		doc = []byte("{}")
	}
	job, err := ParseJob(o.Provider(), doc)
	if err != nil {
		return nil, err
	}
	if job.ID == "" {
		job.ID = id
	}
	return job, nil
}

// WaitForCompletion 轮询直到任务到达终止状态
//
// 规则：
//   - 至少调用一次 Get，即使 maxWait 为 0
//   - 两次 Get 之间至少间隔 pollInterval（非正值使用 DefaultPollInterval）
//   - 剩余时长不足一个间隔时停止，返回最后一次的任务与 ErrWaitTimeout
//   - Get 失败时原样返回该错误，不做内部重试
//   - ctx 取消时返回最后一次的任务与 ctx.Err()
func (o *Orchestrator) WaitForCompletion(ctx context.Context, id string, pollInterval, maxWait time.Duration) (*BatchJob, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	deadline := o.now().Add(maxWait)

	for attempt := 1; ; attempt++ {
		job, err := o.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		o.logger.Debug("batch poll", "id", id, "attempt", attempt, "status", job.Status,
			"completed", job.Counts.Completed, "total", job.Counts.Total)

		if job.Status.IsTerminal() {
			return job, nil
		}
		if deadline.Sub(o.now()) < pollInterval {
			return job, ErrWaitTimeout
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-o.after(pollInterval):
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 结果读取
// ═══════════════════════════════════════════════════════════════════════════

// GetResults 读取任务结果
//
// 每个结果文件先完整下载并释放连接，再惰性解析。
// 任务未终止或尚无产物时产出零项。
func (o *Orchestrator) GetResults(ctx context.Context, job *BatchJob) iter.Seq2[*ResultItem, error] {
	return o.results(ctx, job, func(yield func(*ResultItem, error) bool, rc io.ReadCloser) bool {
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			yield(nil, llm.NewHTTPError("download results", err))
			return false
		}
		return o.readAll(ctx, bytes.NewReader(data), yield)
	})
}

// GetResultsStreaming 边读边解析任务结果
//
// 底层连接的生命周期与遍历一致：正常结束、提前 break 或出错时都会关闭。
func (o *Orchestrator) GetResultsStreaming(ctx context.Context, job *BatchJob) iter.Seq2[*ResultItem, error] {
	return o.results(ctx, job, func(yield func(*ResultItem, error) bool, rc io.ReadCloser) bool {
		defer func() { _ = rc.Close() }()
		return o.readAll(ctx, rc, yield)
	})
}

// consumeFunc 读取单个产物，返回 false 表示停止遍历
type consumeFunc func(yield func(*ResultItem, error) bool, rc io.ReadCloser) bool

func (o *Orchestrator) results(ctx context.Context, job *BatchJob, consume consumeFunc) iter.Seq2[*ResultItem, error] {
	return func(yield func(*ResultItem, error) bool) {
		if job == nil || !job.Status.IsTerminal() || !job.Output.Available() {
			return
		}

		// 内联结果（Gemini）
		for i, raw := range job.Output.Inline {
			item, err := o.backend.ParseResult(raw)
			if err != nil || item == nil {
				o.logger.Debug("skip malformed inline result", "index", i, "error", err)
				continue
			}
			if !yield(item, nil) {
				return
			}
		}

		// OpenAI 先输出文件后错误文件
		for _, ref := range job.Output.Refs() {
			rc, err := o.backend.OpenArtifact(ctx, ref)
			if err != nil {
				yield(nil, err)
				return
			}
			if !consume(yield, rc) {
				return
			}
		}
	}
}

// readAll 转发单个产物的结果，返回 false 表示停止遍历
func (o *Orchestrator) readAll(ctx context.Context, r io.Reader, yield func(*ResultItem, error) bool) bool {
	for item, err := range ReadResults(ctx, r, o.backend.ParseResult, o.logger) {
		if !yield(item, err) || err != nil {
			return false
		}
	}
	return true
}
