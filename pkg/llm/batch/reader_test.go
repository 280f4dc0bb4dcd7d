package batch

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseTestLine(line []byte) (*ResultItem, error) {
	return ParseResultItem(line, testLayout)
}

// resultDocument 生成 n 行结果文档，bad 指定的行替换为非法 JSON
func resultDocument(n int, bad ...int) []byte {
	skip := make(map[int]bool, len(bad))
	for _, b := range bad {
		skip[b] = true
	}

	var buf bytes.Buffer
	for i := range n {
		if skip[i] {
			buf.WriteString(`{"custom_id":"broken", "response":` + "\n")
			continue
		}
		fmt.Fprintf(&buf, `{"custom_id":"req-%04d","response":{"status_code":200,"body":{"text":"answer %d"}},"error":null}`+"\n", i, i)
	}
	return buf.Bytes()
}

func collectResults(t *testing.T, data []byte) ([]*ResultItem, error) {
	t.Helper()
	var items []*ResultItem
	for item, err := range ReadResults(context.Background(), bytes.NewReader(data), parseTestLine, nil) {
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

func TestReadResults_SkipsMalformedLine(t *testing.T) {
	items, err := collectResults(t, resultDocument(1000, 500))
	require.NoError(t, err)
	require.Len(t, items, 999)

	// 保持原始顺序，跳过第 500 行
	prev := -1
	for _, item := range items {
		var n int
		_, err := fmt.Sscanf(item.CustomID, "req-%04d", &n)
		require.NoError(t, err)
		assert.Greater(t, n, prev)
		assert.NotEqual(t, 500, n)
		prev = n
	}
	assert.Equal(t, "req-0000", items[0].CustomID)
	assert.Equal(t, "req-0999", items[998].CustomID)
}

func TestReadResults_BlankLines(t *testing.T) {
	data := "\n\n" + `{"custom_id":"a","status_code":200}` + "\r\n   \n" + `{"custom_id":"b","status_code":200}`
	items, err := collectResults(t, []byte(data))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].CustomID)
	assert.Equal(t, "b", items[1].CustomID)
}

func TestReadResults_Compressed(t *testing.T) {
	plain := resultDocument(20, 3)

	t.Run("gzip", func(t *testing.T) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, err := zw.Write(plain)
		require.NoError(t, err)
		require.NoError(t, zw.Close())

		items, err := collectResults(t, buf.Bytes())
		require.NoError(t, err)
		assert.Len(t, items, 19)
	})

	t.Run("zstd", func(t *testing.T) {
		enc, err := zstd.NewWriter(nil)
		require.NoError(t, err)
		compressed := enc.EncodeAll(plain, nil)
		require.NoError(t, enc.Close())

		items, err := collectResults(t, compressed)
		require.NoError(t, err)
		assert.Len(t, items, 19)
	})

	t.Run("与未压缩结果一致", func(t *testing.T) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, _ = zw.Write(plain)
		_ = zw.Close()

		zipped, err := collectResults(t, buf.Bytes())
		require.NoError(t, err)
		raw, err := collectResults(t, plain)
		require.NoError(t, err)
		assert.Equal(t, raw, zipped)
	})

	t.Run("损坏的 gzip", func(t *testing.T) {
		_, err := collectResults(t, []byte{0x1f, 0x8b, 0x00})
		assert.Error(t, err)
	})
}

func TestReadResults_EarlyBreak(t *testing.T) {
	count := 0
	for item, err := range ReadResults(context.Background(), bytes.NewReader(resultDocument(100)), parseTestLine, nil) {
		require.NoError(t, err)
		require.NotNil(t, item)
		count++
		if count == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
}

func TestReadResults_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var errs []error
	for item, err := range ReadResults(ctx, bytes.NewReader(resultDocument(10)), parseTestLine, nil) {
		assert.Nil(t, item)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.Canceled)
}

func TestReadResults_LineTooLong(t *testing.T) {
	huge := `{"custom_id":"big","pad":"` + strings.Repeat("x", MaxLineSize) + `"}` + "\n"
	data := resultDocument(2) // 前两行正常
	data = append(data, huge...)
	data = append(data, `{"custom_id":"after","response":{"status_code":200,"body":{}}}`+"\n"...)

	items, err := collectResults(t, data)
	require.NoError(t, err, "超长行被跳过，不中断读取")
	require.Len(t, items, 3)
	assert.Equal(t, "req-0001", items[1].CustomID)
	assert.Equal(t, "after", items[2].CustomID, "超长行之后的结果继续产出")
}

func TestReadLine(t *testing.T) {
	t.Run("恰好等于上限的行保留", func(t *testing.T) {
		exact := strings.Repeat("a", MaxLineSize)
		br := bufio.NewReaderSize(strings.NewReader(exact+"\nnext"), 4096)

		line, oversized, err := readLine(br, nil)
		require.NoError(t, err)
		assert.False(t, oversized)
		assert.Len(t, line, MaxLineSize)

		line, _, err = readLine(br, nil)
		require.NoError(t, err)
		assert.Equal(t, "next", string(line), "最后一行没有换行符")

		_, _, err = readLine(br, nil)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("超过上限的行丢弃", func(t *testing.T) {
		br := bufio.NewReaderSize(strings.NewReader(strings.Repeat("b", MaxLineSize+1)+"\n{}\n"), 4096)

		line, oversized, err := readLine(br, nil)
		require.NoError(t, err)
		assert.True(t, oversized)
		assert.Empty(t, line)

		line, oversized, err = readLine(br, nil)
		require.NoError(t, err)
		assert.False(t, oversized)
		assert.Equal(t, "{}", string(line))
	})
}
