// Package batch 实现厂商无关的批量任务编排与结果读取
//
// 三家厂商的批量 API 差异很大：
//
//   - OpenAI：先上传 JSONL 输入文件，再引用文件 ID 创建任务；结果分为输出文件与错误文件
//   - Anthropic：内联提交；结果通过 results_url 以 JSONL 流式下载
//   - Gemini：内联提交；小批次结果内联在任务中，大批次写入 responsesFile
//
// 状态字段、时间字段和计数字段的名称同样各不相同。本包将它们规范化为
// [BatchJob]：状态按固定优先级（status → processing_status → state →
// metadata.state）解析为唯一的 [Status]，每个时间点由一组有序回退路径解析。
//
// # 基本用法
//
//	orch := batch.NewOrchestrator(backend, batch.WithLogger(logger))
//
//	job, err := orch.Create(ctx, &batch.Request{Items: items})
//	if err != nil {
//	    return err
//	}
//
//	job, err = orch.WaitForCompletion(ctx, job.ID, 30*time.Second, 24*time.Hour)
//	if errors.Is(err, batch.ErrWaitTimeout) {
//	    // job 为最后一次观察到的快照
//	}
//
//	for item, err := range orch.GetResultsStreaming(ctx, job) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(item.CustomID, item.Variant)
//	}
//
// 结果序列是一次性的前向迭代器；解析失败的行被跳过，不会中断整个批次。
package batch
