// Package openai 提供 OpenAI 兼容格式的 LLM Provider 实现
//
// 本包实现了 [llm.Provider] 与 [batch.Backend] 接口，支持所有 OpenAI 兼容的 API 服务，
// 包括 OpenAI 官方 API、OpenRouter、DeepSeek、Groq、本地 Ollama 等。
//
// # 快速开始
//
//	client, err := openai.New(&openai.Config{
//	    APIKey: "sk-xxx",
//	    Model:  "gpt-4o-mini",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	events, err := client.Stream(ctx, map[string]any{
//	    "messages": []any{map[string]any{"role": "user", "content": "hi"}},
//	})
//	msg, term := stream.Collect(events)
//
// # 流式响应
//
// Chat Completions 的 chunk 没有区块边界，protocol/openai 的 Decoder 会合成
// block start / stop；tool_calls[].index 决定工具调用的归属。
// 客户端默认开启 stream_options.include_usage，用量在最后一个 chunk 中上报。
//
// # 批量任务
//
// OpenAI 要求先以 purpose=batch 上传 JSONL 文件，再引用 input_file_id 创建任务：
//
//	orch := batch.NewOrchestrator(client)
//	job, err := orch.Create(ctx, &batch.Request{Items: items})
//	job, err = orch.WaitForCompletion(ctx, job.ID, 10*time.Second, time.Hour)
//	for item, err := range orch.GetResultsStreaming(ctx, job) { ... }
//
// 结果先读输出文件，再读错误文件。OpenAI 不支持删除任务。
//
// # 线程安全
//
// [Client] 是线程安全的，可以并发调用 Stream 与批量方法。
package openai
