package batch

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ═══════════════════════════════════════════════════════════════════════════
// 结果流读取
// ═══════════════════════════════════════════════════════════════════════════

// MaxLineSize 单个结果行的最大字节数
const MaxLineSize = 16 << 20

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// LineParser 单行解析函数
type LineParser func(line []byte) (*ResultItem, error)

// ReadResults 逐行解析 JSONL 结果文档
//
// 行为：
//   - 空行、解析失败的行与超过 MaxLineSize 的行被跳过（Debug 日志），
//     不中断整个批次
//   - gzip / zstd 压缩内容按魔数识别并透明解压
//   - 保持厂商交付顺序，不按 custom_id 重排
//   - 读错误或 ctx 取消时产出一次 (nil, err) 后结束
//
// 返回的序列不负责关闭 r，调用方管理其生命周期。
func ReadResults(ctx context.Context, r io.Reader, parse LineParser, logger *slog.Logger) iter.Seq2[*ResultItem, error] {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return func(yield func(*ResultItem, error) bool) {
		src, closeSrc, err := decompress(r)
		if err != nil {
			yield(nil, err)
			return
		}
		defer closeSrc()

		br := bufio.NewReaderSize(src, 64*1024)
		var buf []byte

		lineNo := 0
		for {
			raw, oversized, err := readLine(br, buf[:0])
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, fmt.Errorf("read results line %d: %w", lineNo+1, err))
				}
				return
			}
			buf = raw
			lineNo++
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			if oversized {
				logger.Debug("skip oversized result line", "line", lineNo, "limit", MaxLineSize)
				continue
			}
			line := bytes.TrimSpace(raw)
			if len(line) == 0 {
				continue
			}

			item, err := parse(line)
			if err != nil || item == nil {
				logger.Debug("skip malformed result line", "line", lineNo, "error", err)
				continue
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// readLine 读取一整行到 buf
//
// 超过 MaxLineSize 的行被读完并丢弃，oversized 为 true，内存占用不超过上限。
func readLine(br *bufio.Reader, buf []byte) (line []byte, oversized bool, err error) {
	for {
		frag, isPrefix, err := br.ReadLine()
		if !oversized {
			if len(buf)+len(frag) > MaxLineSize {
				oversized, buf = true, buf[:0]
			} else {
				buf = append(buf, frag...)
			}
		}
		if err != nil {
			return buf, oversized, err
		}
		if !isPrefix {
			return buf, oversized, nil
		}
	}
}

// decompress 按魔数识别压缩格式
func decompress(r io.Reader) (io.Reader, func(), error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(zstdMagic))

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("open gzip results: %w", err)
		}
		return zr, func() { _ = zr.Close() }, nil

	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("open zstd results: %w", err)
		}
		return zr, zr.Close, nil

	default:
		return br, func() {}, nil
	}
}
