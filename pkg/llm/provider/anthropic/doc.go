// Package anthropic 提供 Anthropic Claude API 原生实现
//
// 本包实现了 [llm.Provider] 与 [batch.Backend] 接口，直接调用 Anthropic 原生 API。
//
// # 概述
//
// [Client] 是核心类型，提供以下功能：
//
//   - 流式完成 (Stream)：Messages API 的 SSE 流，包括工具调用、extended thinking 与引用
//   - 批量任务：Message Batches API 的提交、查询、取消、删除与结果流
//
// # 快速开始
//
//	client, err := anthropic.New(&anthropic.Config{
//	    APIKey: "sk-ant-...",
//	    Model:  "claude-3-5-haiku-latest",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	events, err := client.Stream(ctx, map[string]any{
//	    "max_tokens": 1024,
//	    "messages":   []map[string]any{{"role": "user", "content": "Hello!"}},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for event := range events {
//	    fmt.Print(event.Text())
//	}
//
// 批量任务通过 [batch.Orchestrator] 使用：
//
//	orch := batch.NewOrchestrator(client)
//	job, err := orch.Create(ctx, &batch.Request{Items: items})
//
// # 与 OpenAI 兼容包的区别
//
//   - 认证方式：使用 X-Api-Key 头部而非 Bearer Token
//   - 批量提交：请求内联在创建调用中，无需上传文件
//   - 结果交付：results_url 指向 JSONL 流
//   - 删除：支持删除已结束的批量任务
//
// # 线程安全
//
// [Client] 是线程安全的，可以并发调用 Stream 与批量方法。
package anthropic
