package stream

import (
	"cmp"
	"slices"
	"strings"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 块累加器
// ═══════════════════════════════════════════════════════════════════════════

// accumulator 单个内容块的累积状态
type accumulator struct {
	kind      BlockKind
	buf       strings.Builder // 文本、推理文本或工具参数
	citations []llm.Citation
	signature string
	tool      *llm.ToolCall
	closed    bool
}

// part 已冻结的内容块及其索引
type part struct {
	index int
	block llm.ContentBlock
}

// ═══════════════════════════════════════════════════════════════════════════
// Assembler 规范增量组装器
// ═══════════════════════════════════════════════════════════════════════════

// Assembler 以块索引为键的流式状态机
//
// 消费 [VendorEvent]，实时产出规范增量事件，流结束时产出完整消息
// （finalize）和唯一的终止事件（done）。
//
// 块索引 → 累加器的映射在一个流内不复用索引；
// 同时打开的多个块（例如文本与工具调用交错）只是不同键下的簿记。
//
// Assembler 不是并发安全的，一个流一个实例。
type Assembler struct {
	table    FinishReasonTable
	blocks   map[int]*accumulator
	parts    []part
	tools    []*llm.ToolCall
	redacted []string // 已发出、尚未并入推理块的 redacted_thinking 数据
	// redactedAt 第一个待合并 redacted 块的索引
	redactedAt int
	usage      llm.Usage
	finish     llm.FinishReason
	done       bool
}

// NewAssembler 创建组装器
func NewAssembler(table FinishReasonTable) *Assembler {
	return &Assembler{
		table:  table,
		blocks: make(map[int]*accumulator),
	}
}

// Done 是否已产出终止事件
func (a *Assembler) Done() bool {
	return a.done
}

// Usage 当前用量快照
func (a *Assembler) Usage() llm.Usage {
	return a.usage
}

// Apply 处理一个厂商事件，返回其产出的规范事件
//
// 终止后再调用不产出任何事件。
func (a *Assembler) Apply(ev VendorEvent) []*llm.Event {
	if a.done {
		return nil
	}

	switch ev.Kind {
	case EventMessageStart:
		a.addUsage(ev.Usage)
	case EventMessageDelta:
		a.addUsage(ev.Usage)
		if ev.StopReason != "" {
			a.finish = a.table.Resolve(ev.StopReason)
		}
	case EventContentBlockStart:
		return a.startBlock(ev.Index, ev.Block)
	case EventContentBlockDelta:
		return a.applyDelta(ev.Index, ev.Delta)
	case EventContentBlockStop:
		return a.stopBlock(ev.Index)
	default:
		// message_stop / ping / error / unknown 由调用方决定流程，这里无状态变化
	}
	return nil
}

// Finish 正常结束：冻结仍打开的块，产出 finalize 与 done
func (a *Assembler) Finish() []*llm.Event {
	if a.done {
		return nil
	}
	var events []*llm.Event
	for _, index := range a.openIndices() {
		events = append(events, a.stopBlock(index)...)
	}
	return append(events, a.terminate(&llm.StreamTerminal{FinishReason: a.finishReason()})...)
}

// Fail 以错误结束（传输读错误或 strict 模式下的错误帧）
//
// 已累积的内容仍通过 finalize 交付。
func (a *Assembler) Fail(err error) []*llm.Event {
	if a.done {
		return nil
	}
	a.freezeSilently()
	return a.terminate(&llm.StreamTerminal{FinishReason: llm.FinishReasonError, Err: err})
}

// Cancel 调用方取消：交付已累积内容，不再为打开的块单独发事件
func (a *Assembler) Cancel() []*llm.Event {
	if a.done {
		return nil
	}
	a.freezeSilently()
	return a.terminate(&llm.StreamTerminal{FinishReason: a.finishReason(), Cancelled: true})
}

// ═══════════════════════════════════════════════════════════════════════════
// 块生命周期
// ═══════════════════════════════════════════════════════════════════════════

func (a *Assembler) startBlock(index int, start *BlockStart) []*llm.Event {
	if start == nil {
		start = &BlockStart{Kind: BlockText}
	}
	if _, exists := a.blocks[index]; exists {
		// 索引不复用，重复的 start 忽略
		return nil
	}

	acc := &accumulator{kind: start.Kind}
	a.blocks[index] = acc

	switch start.Kind {
	case BlockToolUse:
		acc.tool = &llm.ToolCall{Index: index, ID: start.ID, Name: start.Name}
		a.tools = append(a.tools, acc.tool)

	case BlockRedactedThinking:
		// 同步完成：立即发出签名，待下一个推理块结束时合并
		acc.closed = true
		if len(a.redacted) == 0 {
			a.redactedAt = index
		}
		a.redacted = append(a.redacted, start.Data)
		return []*llm.Event{{
			Type:  llm.EventTypeReasoning,
			Index: index,
			Delta: &llm.ChatDelta{
				Reasoning: &llm.ReasoningDelta{Signature: start.Data, Redacted: true},
			},
		}}

	case BlockText:
		if start.Text != "" {
			return a.applyDelta(index, &BlockDelta{Kind: DeltaText, Text: start.Text})
		}
	}
	return nil
}

func (a *Assembler) applyDelta(index int, d *BlockDelta) []*llm.Event {
	if d == nil {
		return nil
	}

	acc, ok := a.blocks[index]
	if !ok {
		// 未见 start 的增量：按增量类型隐式打开一个块
		acc = &accumulator{kind: implicitKind(d.Kind)}
		if acc.kind == BlockToolUse {
			acc.tool = &llm.ToolCall{Index: index}
			a.tools = append(a.tools, acc.tool)
		}
		a.blocks[index] = acc
	}
	if acc.closed || acc.kind == BlockUnknown {
		return nil
	}

	// 工具调用：只追加参数片段，不跨索引
	if acc.kind == BlockToolUse {
		if d.Kind == DeltaInputJSON {
			acc.buf.WriteString(d.PartialJSON)
		}
		return nil
	}

	switch d.Kind {
	case DeltaText:
		if d.Text == "" {
			return nil
		}
		acc.buf.WriteString(d.Text)
		return []*llm.Event{{
			Type:  llm.EventTypeText,
			Index: index,
			Delta: &llm.ChatDelta{Text: d.Text},
		}}

	case DeltaThinking:
		if d.Text == "" {
			return nil
		}
		acc.buf.WriteString(d.Text)
		return []*llm.Event{{
			Type:  llm.EventTypeReasoning,
			Index: index,
			Delta: &llm.ChatDelta{Reasoning: &llm.ReasoningDelta{Text: acc.buf.String()}},
		}}

	case DeltaSignature:
		acc.signature += d.Signature
		return nil

	case DeltaCitation:
		if d.Citation == nil {
			return nil
		}
		acc.citations = append(acc.citations, *d.Citation)
		return []*llm.Event{{
			Type:  llm.EventTypeCitation,
			Index: index,
			Delta: &llm.ChatDelta{Citations: []llm.Citation{*d.Citation}},
		}}
	}
	return nil
}

func (a *Assembler) stopBlock(index int) []*llm.Event {
	acc, ok := a.blocks[index]
	if !ok || acc.closed {
		return nil
	}
	acc.closed = true

	switch acc.kind {
	case BlockToolUse:
		acc.tool.Arguments = acc.buf.String()
		acc.buf.Reset()
		return []*llm.Event{{
			Type:  llm.EventTypeToolCall,
			Index: index,
			Delta: &llm.ChatDelta{ToolCalls: []llm.ToolCall{*acc.tool}},
		}}

	case BlockThinking:
		block := a.reasoningBlock(acc)
		a.parts = append(a.parts, part{index: index, block: block})
		return []*llm.Event{{
			Type:  llm.EventTypeBlockDone,
			Index: index,
			Block: block,
			Final: false,
		}}

	case BlockText:
		a.parts = append(a.parts, part{index: index, block: &llm.TextBlock{
			Text:      acc.buf.String(),
			Citations: acc.citations,
		}})
	}
	return nil
}

// reasoningBlock 合并已发出的 redacted 片段与刚结束的推理文本和签名
func (a *Assembler) reasoningBlock(acc *accumulator) *llm.ReasoningBlock {
	block := &llm.ReasoningBlock{
		Text:      acc.buf.String(),
		Signature: acc.signature,
		Redacted:  a.redacted,
	}
	a.redacted = nil
	return block
}

// freezeSilently 冻结所有打开的块但不产出块事件
func (a *Assembler) freezeSilently() {
	for _, index := range a.openIndices() {
		_ = a.stopBlock(index)
	}
}

func (a *Assembler) openIndices() []int {
	var indices []int
	for index, acc := range a.blocks {
		if !acc.closed {
			indices = append(indices, index)
		}
	}
	slices.Sort(indices)
	return indices
}

// ═══════════════════════════════════════════════════════════════════════════
// 终止
// ═══════════════════════════════════════════════════════════════════════════

func (a *Assembler) terminate(term *llm.StreamTerminal) []*llm.Event {
	a.done = true
	a.usage.Finalize()
	term.Usage = a.usage

	return []*llm.Event{
		{Type: llm.EventTypeFinalize, Final: true, Message: a.message()},
		{Type: llm.EventTypeDone, Terminal: term},
	}
}

// message 按块索引顺序构建完整消息
func (a *Assembler) message() *llm.ChatMessage {
	if len(a.redacted) > 0 {
		// 流结束时仍未并入推理块的 redacted 数据单独成块
		a.parts = append(a.parts, part{index: a.redactedAt, block: &llm.ReasoningBlock{Redacted: a.redacted}})
		a.redacted = nil
	}

	for _, tc := range a.tools {
		a.parts = append(a.parts, part{index: tc.Index, block: tc})
	}
	slices.SortStableFunc(a.parts, func(x, y part) int { return cmp.Compare(x.index, y.index) })

	msg := &llm.ChatMessage{
		Role:  llm.RoleAssistant,
		Usage: a.usage,
	}
	var text strings.Builder
	for _, p := range a.parts {
		msg.Parts = append(msg.Parts, p.block)
		if tb, ok := p.block.(*llm.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	msg.Text = text.String()

	msg.ToolCalls = slices.Clone(a.tools)
	slices.SortStableFunc(msg.ToolCalls, func(x, y *llm.ToolCall) int { return cmp.Compare(x.Index, y.Index) })
	return msg
}

func (a *Assembler) finishReason() llm.FinishReason {
	if a.finish == "" {
		return llm.FinishReasonUnknown
	}
	return a.finish
}

func (a *Assembler) addUsage(u *UsageUpdate) {
	if u == nil {
		return
	}
	a.usage.PromptTokens += u.PromptTokens
	a.usage.CompletionTokens += u.CompletionTokens
	a.usage.CacheReadTokens += u.CacheReadTokens
	a.usage.CacheWriteTokens += u.CacheWriteTokens
	a.usage.ReasoningTokens += u.ReasoningTokens
}

func implicitKind(d DeltaKind) BlockKind {
	switch d {
	case DeltaInputJSON:
		return BlockToolUse
	case DeltaThinking, DeltaSignature:
		return BlockThinking
	default:
		return BlockText
	}
}
