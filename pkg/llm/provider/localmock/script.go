package localmock

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lwmacct/260110-go-pkg-llmcore/pkg/llm"
)

//go:embed examples/script.yaml
var exampleScriptYAML []byte

// ═══════════════════════════════════════════════════════════════════════════
// 脚本配置
// ═══════════════════════════════════════════════════════════════════════════

// Script 脚本文件结构
type Script struct {
	// DefaultResponse 默认响应（当没有指定场景时使用）
	DefaultResponse string `yaml:"default_response" json:"default_response"`

	// Scenarios 场景列表（通过 name 标识）
	Scenarios []Scenario `yaml:"scenarios" json:"scenarios"`

	// Delay 首包延迟（如 "100ms", "1s"）
	Delay string `yaml:"delay" json:"delay"`

	// SimulateError 模拟错误消息
	SimulateError string `yaml:"simulate_error" json:"simulate_error"`
}

// Scenario 场景（支持多轮对话）
type Scenario struct {
	Name  string `yaml:"name" json:"name"`
	Turns []Turn `yaml:"turns" json:"turns"`
}

// Turn 单轮对话
type Turn struct {
	// User 用户消息（仅用于文档说明）
	User string `yaml:"user,omitempty" json:"user,omitempty"`

	// Reasoning 推理内容
	Reasoning string `yaml:"reasoning,omitempty" json:"reasoning,omitempty"`

	// Assistant 助手响应（支持模板语法，如 {{.LAST_USER_MESSAGE}}）
	Assistant string `yaml:"assistant,omitempty" json:"assistant,omitempty"`

	// Tools 工具调用列表
	Tools []ScriptTool `yaml:"tools,omitempty" json:"tools,omitempty"`
}

// ScriptTool 脚本中的工具调用
type ScriptTool struct {
	Name  string         `yaml:"name" json:"name"`
	Input map[string]any `yaml:"input,omitempty" json:"input,omitempty"`
}

// LoadScriptFile 从文件加载脚本
func LoadScriptFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, llm.NewConfigError("read script file", err)
	}
	return LoadScriptFromBytes(data, filepath.Ext(path))
}

// LoadScriptFromBytes 从字节数据加载脚本
//
// format 支持 "yaml"、"yml"、"json"（可带前导点）。
func LoadScriptFromBytes(data []byte, format string) (*Script, error) {
	script := &Script{}

	switch strings.TrimPrefix(strings.ToLower(format), ".") {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, script); err != nil {
			return nil, llm.NewConfigError("parse YAML script", err)
		}
	case "json":
		if err := json.Unmarshal(data, script); err != nil {
			return nil, llm.NewConfigError("parse JSON script", err)
		}
	default:
		return nil, llm.NewConfigError("unsupported script format: "+format, nil)
	}

	return script, nil
}

// LoadExampleScript 加载内嵌的示例脚本
func LoadExampleScript() (*Script, error) {
	return LoadScriptFromBytes(exampleScriptYAML, "yaml")
}

// WithScript 从脚本对象加载设置
func WithScript(script *Script) Option {
	return func(c *Client) {
		if script != nil {
			applyScript(c, script)
		}
	}
}

// WithScriptFile 从脚本文件加载设置；加载失败时错误在首次调用时返回
func WithScriptFile(path string) Option {
	return func(c *Client) {
		script, err := LoadScriptFile(path)
		if err != nil {
			c.err = err
			return
		}
		applyScript(c, script)
	}
}

// applyScript 应用脚本到客户端
func applyScript(c *Client, script *Script) {
	if script.DefaultResponse != "" {
		c.response = script.DefaultResponse
	}

	if len(script.Scenarios) > 0 {
		c.scenarios = make(map[string]*scenarioState, len(script.Scenarios))
		for _, s := range script.Scenarios {
			if s.Name != "" {
				c.scenarios[s.Name] = &scenarioState{scenario: s}
			}
		}
	}

	if script.Delay != "" {
		if d, err := time.ParseDuration(script.Delay); err == nil {
			c.delay = d
		}
	}

	if script.SimulateError != "" {
		c.err = errors.New(script.SimulateError)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 场景管理
// ═══════════════════════════════════════════════════════════════════════════

// scenarioState 场景状态
type scenarioState struct {
	scenario Scenario
	turnIdx  int // 当前轮次索引
}

// UseScenario 设置当前使用的场景（通过名称）
//
// 设置后每次 Stream 调用推进到下一轮。
func (c *Client) UseScenario(name string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentScenario = name
	return c
}

// ResetScenario 重置指定场景的轮次到起始位置
func (c *Client) ResetScenario(name string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.scenarios[name]; ok {
		s.turnIdx = 0
	}
	return c
}

// ScenarioNames 获取所有可用的场景名称
func (c *Client) ScenarioNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.scenarios))
	for name := range c.scenarios {
		names = append(names, name)
	}
	return names
}

// scenarioReply 获取场景响应并推进轮次（需要在锁内调用）
func (c *Client) scenarioReply(request map[string]any) (Reply, bool) {
	s, ok := c.scenarios[c.currentScenario]
	if c.currentScenario == "" || !ok {
		return Reply{}, false
	}

	if s.turnIdx >= len(s.scenario.Turns) {
		return Reply{Text: "[场景已结束]"}, true
	}
	turn := s.scenario.Turns[s.turnIdx]
	s.turnIdx++

	data := map[string]string{"LAST_USER_MESSAGE": lastUserMessage(request)}
	reply := Reply{Reasoning: turn.Reasoning, Text: render(turn.Assistant, data)}
	for _, tool := range turn.Tools {
		args, err := json.Marshal(renderInput(tool.Input, data))
		if err != nil {
			args = []byte("{}")
		}
		reply.Tools = append(reply.Tools, ToolCall{Name: tool.Name, Arguments: string(args)})
	}
	return reply, true
}

// ═══════════════════════════════════════════════════════════════════════════
// 模板渲染
// ═══════════════════════════════════════════════════════════════════════════

// templateFuncs 模板函数映射
var templateFuncs = template.FuncMap{
	"env": func(key string, defaultVal ...string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		if len(defaultVal) > 0 {
			return defaultVal[0]
		}
		return ""
	},
	"default": func(defaultVal, value any) any {
		if s, ok := value.(string); value == nil || (ok && s == "") {
			return defaultVal
		}
		return value
	},
}

// render 渲染模板，失败时原样返回
func render(text string, data map[string]string) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	tmpl, err := template.New("turn").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return text
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return text
	}
	return buf.String()
}

// renderInput 渲染工具输入中的字符串参数
func renderInput(input map[string]any, data map[string]string) map[string]any {
	result := make(map[string]any, len(input))
	for key, val := range input {
		if s, ok := val.(string); ok {
			result[key] = render(s, data)
		} else {
			result[key] = val
		}
	}
	return result
}

// lastUserMessage 提取请求中最后一条 user 消息的文本
//
// 兼容 Chat Completions（content 为字符串或 parts 数组）与 Gemini（contents[].parts[].text）。
func lastUserMessage(request map[string]any) string {
	messages, _ := request["messages"].([]any)
	if len(messages) == 0 {
		messages, _ = request["contents"].([]any)
	}
	for i := len(messages) - 1; i >= 0; i-- {
		msg, _ := messages[i].(map[string]any)
		if role, _ := msg["role"].(string); role != string(llm.RoleUser) {
			continue
		}
		if s, ok := msg["content"].(string); ok {
			return s
		}
		parts, _ := msg["content"].([]any)
		if len(parts) == 0 {
			parts, _ = msg["parts"].([]any)
		}
		for _, p := range parts {
			if part, ok := p.(map[string]any); ok {
				if s, ok := part["text"].(string); ok {
					return s
				}
			}
		}
	}
	return ""
}
