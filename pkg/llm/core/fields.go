package core

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
)

// ═══════════════════════════════════════════════════════════════════════════
// 有序回退字段解析
// ═══════════════════════════════════════════════════════════════════════════
//
// 各厂商对同一语义使用不同字段名（completed_at / ended_at / endTime），
// 有时还会同时填充多个重叠字段。下面的解析函数按给定路径顺序查找，
// 第一个"有值"的路径胜出，结果因此总是确定的。
//
// 路径语法为 gjson 路径（点号分隔，如 "request_counts.succeeded"）。

// First 返回第一个存在且非 null 的路径结果
//
// 全部缺失时返回零值 gjson.Result（Exists() 为 false）。
func First(doc []byte, paths ...string) gjson.Result {
	for _, path := range paths {
		r := gjson.GetBytes(doc, path)
		if r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}

// FirstString 返回第一个非空字符串
//
// 非字符串类型的值（数字、布尔）按其文本形式返回；空字符串视为缺失。
func FirstString(doc []byte, paths ...string) string {
	for _, path := range paths {
		r := gjson.GetBytes(doc, path)
		if !r.Exists() || r.Type == gjson.Null || r.IsObject() || r.IsArray() {
			continue
		}
		if s := r.String(); s != "" {
			return s
		}
	}
	return ""
}

// FirstInt 返回第一个数值字段
//
// 数字字符串（如 Gemini 的 "requestCount": "12"）同样接受。
func FirstInt(doc []byte, paths ...string) (int64, bool) {
	for _, path := range paths {
		r := gjson.GetBytes(doc, path)
		switch r.Type {
		case gjson.Number:
			return r.Int(), true
		case gjson.String:
			var n json.Number = json.Number(r.Str)
			if v, err := n.Int64(); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

// FirstTime 返回第一个可解析的时间
//
// 支持 Unix 秒（OpenAI）与 RFC 3339 字符串（Anthropic、Gemini）。
// 0 与无法解析的值视为缺失，继续尝试下一个路径。
func FirstTime(doc []byte, paths ...string) *time.Time {
	for _, path := range paths {
		r := gjson.GetBytes(doc, path)
		switch r.Type {
		case gjson.Number:
			if sec := r.Int(); sec > 0 {
				t := time.Unix(sec, 0).UTC()
				return &t
			}
		case gjson.String:
			if t, err := time.Parse(time.RFC3339Nano, r.Str); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	return nil
}

// FirstRaw 返回第一个存在路径的原始 JSON
func FirstRaw(doc []byte, paths ...string) json.RawMessage {
	r := First(doc, paths...)
	if !r.Exists() {
		return nil
	}
	return json.RawMessage(r.Raw)
}
