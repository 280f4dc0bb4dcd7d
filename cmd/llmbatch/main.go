// llmbatch 是批量任务与流式调用的命令行工具
//
// 用法：
//
//	llmbatch [flags] submit <requests.jsonl|->
//	llmbatch [flags] status <id>
//	llmbatch [flags] cancel <id>
//	llmbatch [flags] delete <id>
//	llmbatch [flags] wait <id>
//	llmbatch [flags] results <id> [--stream]
//	llmbatch [flags] stream <request.json|->
//
// 输出为 stdout 上的 JSON Lines，诊断日志写入 stderr。
// 退出码：0 成功，1 操作失败，2 用法错误。
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if wd, err := os.Getwd(); err == nil {
		loadEnv(wd, newLogger(os.Stderr, false))
	}

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			if msg := err.Error(); msg != "" {
				fmt.Fprintf(os.Stderr, "error: %s\n", msg)
			}
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 退出码
// ═══════════════════════════════════════════════════════════════════════════

const (
	exitFailure = 1
	exitUsage   = 2
)

// exitError 带退出码的错误
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// ExitCode 进程退出码
func (e *exitError) ExitCode() int { return e.code }

// usageError 用法错误（退出码 2）
func usageError(format string, args ...any) error {
	return &exitError{code: exitUsage, err: fmt.Errorf(format, args...)}
}

// exitCode 错误对应的退出码，nil 为 0
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return exitFailure
}

// ═══════════════════════════════════════════════════════════════════════════
// 环境
// ═══════════════════════════════════════════════════════════════════════════

// loadEnv 从 dir 向上查找 .env 并加载第一个找到的文件，返回其路径
//
// 已存在的环境变量不会被覆盖；找不到 .env 时静默继续，
// 文件存在但无法解析时记录 Warn 后继续。
func loadEnv(dir string, logger *slog.Logger) string {
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				logger.Warn("load .env failed", "path", envPath, "error", err)
			}
			return envPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// newLogger 写入 stderr 的文本日志；verbose 时输出 Debug
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
