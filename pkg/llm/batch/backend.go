package batch

import (
	"context"
	"io"
)

// ═══════════════════════════════════════════════════════════════════════════
// 厂商后端接口
// ═══════════════════════════════════════════════════════════════════════════

// Capabilities 厂商批量能力
type Capabilities struct {
	// RequiresUpload 提交前需要上传 JSONL 输入文件（OpenAI）
	RequiresUpload bool

	// Delete 支持删除已结束的任务
	Delete bool
}

// Backend 单个厂商的批量 API
//
// 实现只负责 HTTP 交互并返回厂商原始 JSON，规范化由 [Orchestrator] 完成。
// 各 provider 包的 Client 实现此接口。
type Backend interface {
	// ProviderName 厂商名称
	ProviderName() string

	// Capabilities 能力声明
	Capabilities() Capabilities

	// Upload 上传 JSONL 输入文件，返回文件 ID
	//
	// 仅在 RequiresUpload 为 true 时调用。
	Upload(ctx context.Context, req *Request) (string, error)

	// Submit 创建任务；fileID 为 Upload 的返回值（内联厂商为空）
	Submit(ctx context.Context, req *Request, fileID string) ([]byte, error)

	// Retrieve 查询任务
	Retrieve(ctx context.Context, id string) ([]byte, error)

	// Cancel 请求取消任务
	Cancel(ctx context.Context, id string) ([]byte, error)

	// Delete 删除任务
	//
	// 仅在 Capabilities().Delete 为 true 时调用。
	Delete(ctx context.Context, id string) ([]byte, error)

	// OpenArtifact 打开结果文件或结果 URL
	OpenArtifact(ctx context.Context, ref ArtifactRef) (io.ReadCloser, error)

	// ParseResult 解析单个结果行（或内联结果）
	ParseResult(line []byte) (*ResultItem, error)
}
