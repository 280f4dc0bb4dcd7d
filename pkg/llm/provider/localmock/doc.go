// Package localmock 提供本地 Mock LLM Provider 实现
//
// 本包实现了 [llm.Provider] 与 [batch.Backend] 接口，用于测试和开发场景，
// 无需真实的 LLM API 即可验证流式组装与批量编排。
//
// # 概述
//
// [Client] 是核心类型，提供可预测的响应行为：
//
//   - 预设响应、响应队列或动态响应函数
//   - 多轮对话场景（YAML / JSON 脚本）
//   - 推理内容与工具调用模拟
//   - 记录所有调用详情，便于测试验证
//
// Stream 把响应编码为 Chat Completions SSE，再交给 [stream.Run]，
// 事件序列与真实 OpenAI 兼容 Provider 一致。
//
// # 快速开始
//
//	client := localmock.New(localmock.WithResponse("Hi!"))
//	events, err := client.Stream(ctx, request)
//	msg, term := stream.Collect(events)
//
// # 场景脚本
//
//	scenarios:
//	  - name: booking
//	    turns:
//	      - {user: 订餐, assistant: 几位？}
//	      - {user: 3位, assistant: 什么时间？}
//
//	client := localmock.New(localmock.WithScriptFile("script.yaml"))
//	client.UseScenario("booking")
//
// 每次调用推进到下一轮；assistant 文本与工具参数支持 {{.LAST_USER_MESSAGE}}、{{env "KEY"}} 模板。
//
// # 批量任务
//
// 任务保存在内存中，[WithBatchPolls] 控制完成前的查询次数，
// [WithBatchFailures] 把指定 custom_id 的结果标记为失败：
//
//	orch := batch.NewOrchestrator(localmock.New(localmock.WithBatchPolls(2)))
package localmock
