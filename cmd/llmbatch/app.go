package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/batch"
	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm/provider"
)

// flags 全局命令行参数
type flags struct {
	configPath   string
	providerType string
	model        string
	pollInterval time.Duration
	maxWait      time.Duration
	verbose      bool
	strict       bool
	stream       bool
	wait         bool
	metadata     map[string]string
}

// app 一次命令执行的上下文
type app struct {
	flags    flags
	provider *provider.Provider
	stdin    io.Reader
	out      *json.Encoder
	logger   *slog.Logger
}

// command 子命令
type command struct {
	name  string
	usage string
	args  int
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"submit", "submit <requests.jsonl|->", 1, runSubmit},
	{"status", "status <id>", 1, runStatus},
	{"cancel", "cancel <id>", 1, runCancel},
	{"delete", "delete <id>", 1, runDelete},
	{"wait", "wait <id>", 1, runWait},
	{"results", "results <id> [--stream]", 1, runResults},
	{"stream", "stream <request.json|->", 1, runStream},
}

func newFlagSet(f *flags, stderr io.Writer) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("llmbatch", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&f.configPath, "config", "c", "", "path to YAML/JSON provider config")
	flagSet.StringVarP(&f.providerType, "provider", "p", "", "provider type (openai, anthropic, gemini, openrouter, localmock, ...)")
	flagSet.StringVarP(&f.model, "model", "m", "", "model name (overrides config)")
	flagSet.DurationVar(&f.pollInterval, "poll-interval", 0, "interval between status polls (default from config)")
	flagSet.DurationVar(&f.maxWait, "max-wait", 0, "total wait budget (default from config)")
	flagSet.BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging on stderr")
	flagSet.BoolVar(&f.strict, "strict", false, "treat vendor error frames in a stream as terminal")
	flagSet.BoolVar(&f.stream, "stream", false, "results: parse each artifact line by line while downloading")
	flagSet.BoolVar(&f.wait, "wait", false, "submit: wait for completion and print results")
	flagSet.StringToStringVar(&f.metadata, "metadata", nil, "submit: batch metadata as key=value pairs")
	flagSet.BoolP("help", "h", false, "show help")
	return flagSet
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage: llmbatch [flags] <command> [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %s\n", c.usage)
	}
	fmt.Fprintf(w, "\nFlags:\n%s", flagSet.FlagUsages())
}

// run 解析参数并执行子命令
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var f flags
	flagSet := newFlagSet(&f, stderr)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printUsage(stderr, flagSet)
			return nil
		}
		return usageError("%v", err)
	}
	if help, _ := flagSet.GetBool("help"); help {
		printUsage(stderr, flagSet)
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(stderr, flagSet)
		return usageError("missing command")
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == rest[0] {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		return usageError("unknown command: %s", rest[0])
	}
	if len(rest)-1 != cmd.args {
		return usageError("usage: llmbatch %s", cmd.usage)
	}

	logger := newLogger(stderr, f.verbose)
	cfg, err := loadConfig(&f)
	if err != nil {
		return usageError("%v", err)
	}

	p, err := provider.New(cfg, provider.WithLogger(logger))
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	defer func() { _ = p.Close() }()

	a := &app{
		flags:    f,
		provider: p,
		stdin:    stdin,
		out:      json.NewEncoder(stdout),
		logger:   logger,
	}
	if err := cmd.run(ctx, a, rest[1:]); err != nil {
		logger.Debug("command failed", "command", cmd.name, "error_type", llm.TypeOf(err), "status", llm.GetStatusCode(err))
		if exitCode(err) == exitUsage {
			return err
		}
		return &exitError{code: exitFailure, err: err}
	}
	return nil
}

// loadConfig 读取配置文件并应用命令行覆盖
//
// --provider 与配置文件类型不同时，base-url 与 api-key 回退到新类型的默认值。
func loadConfig(f *flags) (*llm.Config, error) {
	var cfg *llm.Config
	if f.configPath != "" {
		loaded, err := llm.LoadConfigFile(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		def := llm.DefaultConfig()
		cfg = &def
	}

	if ptype := llm.ProviderType(f.providerType); ptype != "" && ptype != cfg.Type {
		def := llm.DefaultConfig(ptype)
		cfg.Type = ptype
		cfg.APIKey = def.APIKey
		cfg.BaseURL = def.BaseURL
		cfg.Model = def.Model
	}
	if f.model != "" {
		cfg.Model = f.model
	}
	if f.strict {
		cfg.StrictStream = true
	}
	if f.pollInterval > 0 {
		cfg.Batch.PollInterval = f.pollInterval
	}
	if f.maxWait > 0 {
		cfg.Batch.MaxWait = f.maxWait
	}
	return cfg, nil
}

// openInput 打开输入文件，"-" 表示 stdin
func (a *app) openInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(a.stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, usageError("read %s: %v", path, err)
	}
	return data, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 子命令
// ═══════════════════════════════════════════════════════════════════════════

func runSubmit(ctx context.Context, a *app, args []string) error {
	data, err := a.openInput(args[0])
	if err != nil {
		return err
	}
	items, err := batch.DecodeRequests(bytes.NewReader(data))
	if err != nil {
		return err
	}
	for i := range items {
		if items[i].CustomID == "" {
			items[i].CustomID = batch.NewCustomID()
		}
	}

	req := &batch.Request{
		Items:            items,
		Model:            a.flags.model,
		Endpoint:         a.provider.Batch.Endpoint,
		CompletionWindow: a.provider.Batch.CompletionWindow,
		Metadata:         a.flags.metadata,
	}
	job, err := a.provider.Batches.Create(ctx, req)
	if err != nil {
		return err
	}
	a.logger.Info("batch submitted", "id", job.ID, "provider", job.Provider, "items", len(items))

	if !a.flags.wait {
		return a.out.Encode(job)
	}

	job, err = a.waitFor(ctx, job.ID)
	if err != nil {
		return err
	}
	return a.writeResults(ctx, job)
}

func runStatus(ctx context.Context, a *app, args []string) error {
	job, err := a.provider.Batches.Get(ctx, args[0])
	if err != nil {
		return err
	}
	return a.out.Encode(job)
}

func runCancel(ctx context.Context, a *app, args []string) error {
	job, err := a.provider.Batches.Cancel(ctx, args[0])
	if err != nil {
		return err
	}
	return a.out.Encode(job)
}

func runDelete(ctx context.Context, a *app, args []string) error {
	job, err := a.provider.Batches.Delete(ctx, args[0])
	if err != nil {
		return err
	}
	return a.out.Encode(job)
}

func runWait(ctx context.Context, a *app, args []string) error {
	job, err := a.waitFor(ctx, args[0])
	if err != nil {
		return err
	}
	return a.out.Encode(job)
}

func runResults(ctx context.Context, a *app, args []string) error {
	job, err := a.provider.Batches.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if !job.Status.IsTerminal() {
		a.logger.Warn("batch not finished, no results yet", "id", job.ID, "status", job.Status)
	}
	return a.writeResults(ctx, job)
}

func runStream(ctx context.Context, a *app, args []string) error {
	data, err := a.openInput(args[0])
	if err != nil {
		return err
	}
	var request map[string]any
	if err := json.Unmarshal(data, &request); err != nil {
		return usageError("parse request: %v", err)
	}
	if a.flags.model != "" {
		request["model"] = a.flags.model
	}

	events, err := a.provider.Stream(ctx, request)
	if err != nil {
		return err
	}
	for ev := range events {
		if err := a.out.Encode(ev); err != nil {
			return err
		}
		if ev.Type == llm.EventTypeDone && ev.Terminal != nil && ev.Terminal.Err != nil {
			return ev.Terminal.Err
		}
	}
	return nil
}

// waitFor 等待任务终止；超时返回最后一次的任务状态与错误
func (a *app) waitFor(ctx context.Context, id string) (*batch.BatchJob, error) {
	job, err := a.provider.Batches.WaitForCompletion(ctx, id, a.provider.Batch.PollInterval, a.provider.Batch.MaxWait)
	if errors.Is(err, batch.ErrWaitTimeout) && job != nil {
		_ = a.out.Encode(job)
	}
	return job, err
}

// writeResults 逐行输出结果；失败项照常输出，读取错误时停止
func (a *app) writeResults(ctx context.Context, job *batch.BatchJob) error {
	results := a.provider.Batches.GetResults
	if a.flags.stream {
		results = a.provider.Batches.GetResultsStreaming
	}

	var failed int
	for item, err := range results(ctx, job) {
		if err != nil {
			return err
		}
		if item.Variant != batch.ResultSucceeded {
			failed++
		}
		if err := a.out.Encode(item); err != nil {
			return err
		}
	}
	if failed > 0 {
		a.logger.Info("batch results contain failures", "id", job.ID, "failed", failed)
	}
	return nil
}
