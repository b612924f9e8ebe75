package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/unillm/llm"
	"github.com/BaSui01/unillm/providers"
	"github.com/BaSui01/unillm/types"
)

func TestSpec_BuildHeaders(t *testing.T) {
	s := New(providers.ClaudeConfig{APIKey: "sk-ant-test"})
	h, err := s.BuildHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", h.Get("x-api-key"), "Claude 使用 x-api-key 认证")
	assert.Equal(t, "2023-06-01", h.Get("anthropic-version"))
	assert.Empty(t, h.Get("Authorization"))
}

func TestSpec_ChatURL(t *testing.T) {
	s := New(providers.ClaudeConfig{APIKey: "k", BaseURL: "https://proxy.example.com/"})
	assert.Equal(t, "https://proxy.example.com/v1/messages", s.ChatURL(nil, true))
}

func TestBuildMessagesBody(t *testing.T) {
	req := &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "你是助手"},
			{Role: llm.RoleUser, Content: "北京天气如何"},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
				ID: "toolu_1", Name: "get_weather", Arguments: json.RawMessage(`{"city":"北京"}`),
			}}},
			{Role: llm.RoleTool, ToolCallID: "toolu_1", Content: "晴"},
		},
		Tools: []llm.ToolSchema{{
			Name:       "get_weather",
			Parameters: json.RawMessage(`{"type":"object"}`),
		}},
		ToolChoice: "required",
	}
	body, err := buildMessagesBody(req, "claude-3-5-sonnet-latest", true)
	require.NoError(t, err)

	assert.Equal(t, "你是助手", body.System, "system 消息应提取到独立字段")
	require.Len(t, body.Messages, 3, "system 消息不应出现在消息列表")
	assert.Equal(t, defaultMaxTokens, body.MaxTokens, "未指定时应补默认 max_tokens")

	// assistant 的工具调用转为 tool_use 块
	require.Len(t, body.Messages[1].Content, 1)
	assert.Equal(t, "tool_use", body.Messages[1].Content[0].Type)
	assert.Equal(t, "toolu_1", body.Messages[1].Content[0].ID)

	// tool 结果包装为 user 消息的 tool_result 块
	assert.Equal(t, "user", body.Messages[2].Role)
	require.Len(t, body.Messages[2].Content, 1)
	assert.Equal(t, "tool_result", body.Messages[2].Content[0].Type)
	assert.Equal(t, "toolu_1", body.Messages[2].Content[0].ToolUseID)
	assert.Equal(t, "晴", body.Messages[2].Content[0].Content)

	require.NotNil(t, body.ToolChoice)
	assert.Equal(t, "any", body.ToolChoice.Type, "required 应映射为 any")
}

func TestBuildMessagesBody_SpecificTool(t *testing.T) {
	req := &llm.ChatRequest{
		Messages:   []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Tools:      []llm.ToolSchema{{Name: "f", Parameters: json.RawMessage(`{}`)}},
		ToolChoice: "f",
	}
	body, err := buildMessagesBody(req, "m", false)
	require.NoError(t, err)
	require.NotNil(t, body.ToolChoice)
	assert.Equal(t, "tool", body.ToolChoice.Type)
	assert.Equal(t, "f", body.ToolChoice.Name)
}

func TestParseMessagesResponse(t *testing.T) {
	raw := `{
		"id": "msg_1",
		"model": "claude-3-5-sonnet-latest",
		"role": "assistant",
		"content": [
			{"type": "thinking", "thinking": "用户想查天气"},
			{"type": "text", "text": "好的,"},
			{"type": "text", "text": "我来查询。"},
			{"type": "tool_use", "id": "toolu_1", "name": "get_weather", "input": {"city": "北京"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 20, "output_tokens": 8, "cache_read_input_tokens": 12}
	}`
	resp, err := parseMessagesResponse("claude", []byte(raw))
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	msg := resp.Choices[0].Message
	assert.Equal(t, "好的,我来查询。", msg.Content, "多个 text 块应拼接")
	assert.Equal(t, "用户想查天气", msg.Thinking)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "get_weather", msg.ToolCalls[0].Name)
	assert.Equal(t, "tool_use", resp.Choices[0].FinishReason)
	assert.Equal(t, 28, resp.Usage.TotalTokens)
	assert.Equal(t, 12, resp.Usage.CachedTokens)
}

func TestSpec_ClassifyError(t *testing.T) {
	s := New(providers.ClaudeConfig{APIKey: "k"})
	tests := []struct {
		name      string
		status    int
		envType   string
		wantCode  types.ErrorCode
		retryable bool
	}{
		{"过载", 529, "overloaded_error", types.ErrModelOverloaded, true},
		{"限流", 429, "rate_limit_error", types.ErrRateLimited, true},
		{"认证失败", 401, "authentication_error", types.ErrAuthentication, false},
		{"权限不足", 403, "permission_error", types.ErrAuthentication, false},
		{"不存在", 404, "not_found_error", types.ErrModelNotFound, false},
		{"无效请求", 400, "invalid_request_error", types.ErrInvalidRequest, false},
		{"服务端错误", 500, "api_error", types.ErrUpstreamError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"type":"error","error":{"type":"` + tt.envType + `","message":"boom"}}`
			err := s.ClassifyError(tt.status, []byte(body))
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, types.GetErrorCode(err))
			assert.Equal(t, tt.retryable, types.IsRetryable(err))
		})
	}

	assert.Nil(t, s.ClassifyError(500, []byte("<html>")), "未知信封应回退到启发式")
}

// ===== 流式转换 =====

func frame(data string) llm.StreamFrame { return llm.StreamFrame{Data: data} }

func events(items []llm.StreamItem) []*llm.StreamEvent {
	var evs []*llm.StreamEvent
	for _, it := range items {
		if it.Event != nil {
			evs = append(evs, it.Event)
		}
	}
	return evs
}

func TestConverter_FullSequence(t *testing.T) {
	c := newConverter("claude")

	evs := events(c.ConvertFrame(frame(`{"type":"message_start","message":{"id":"msg_1","model":"claude-3-5-sonnet-latest","usage":{"input_tokens":15,"output_tokens":0}}}`)))
	require.Len(t, evs, 2, "message_start 应产出 StreamStart 与输入侧用量")
	assert.Equal(t, llm.EventStreamStart, evs[0].Type)
	assert.Equal(t, "msg_1", evs[0].ID)
	assert.Equal(t, llm.EventUsageUpdate, evs[1].Type)
	assert.Equal(t, 15, evs[1].Usage.PromptTokens)

	assert.Empty(t, events(c.ConvertFrame(frame(`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`))),
		"文本块开始不产出事件")

	evs = events(c.ConvertFrame(frame(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"你好"}}`)))
	require.Len(t, evs, 1)
	assert.Equal(t, "你好", evs[0].Delta)

	evs = events(c.ConvertFrame(frame(`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"input_tokens":15,"output_tokens":4}}`)))
	require.Len(t, evs, 1)
	assert.Equal(t, llm.EventUsageUpdate, evs[0].Type)
	assert.Equal(t, 4, evs[0].Usage.CompletionTokens)

	evs = events(c.ConvertFrame(frame(`{"type":"message_stop"}`)))
	require.Len(t, evs, 1)
	assert.Equal(t, llm.EventStreamEnd, evs[0].Type)
	assert.Equal(t, "end_turn", evs[0].FinishReason)
	assert.Equal(t, "你好", evs[0].FinalText)

	assert.Empty(t, c.HandleStreamEnd(), "终止事件不允许重复产出")
}

func TestConverter_ToolUseBlocks(t *testing.T) {
	c := newConverter("claude")
	c.ConvertFrame(frame(`{"type":"message_start","message":{"id":"msg_2","model":"m"}}`))

	evs := events(c.ConvertFrame(frame(`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"get_weather"}}`)))
	require.Len(t, evs, 1)
	require.NotNil(t, evs[0].ToolCall)
	assert.Equal(t, 0, evs[0].ToolCall.Index, "首个工具调用映射为索引 0")
	assert.Equal(t, "toolu_1", evs[0].ToolCall.ID)
	assert.Equal(t, "get_weather", evs[0].ToolCall.Name)

	evs = events(c.ConvertFrame(frame(`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"city\""}}`)))
	require.Len(t, evs, 1)
	assert.Equal(t, 0, evs[0].ToolCall.Index, "参数片段沿用块的稳定索引")
	assert.Equal(t, `{"city"`, evs[0].ToolCall.ArgumentsDelta)

	assert.Empty(t, events(c.ConvertFrame(frame(`{"type":"content_block_stop","index":1}`))))
}

func TestConverter_DuplicateToolBlockStart(t *testing.T) {
	c := newConverter("claude")
	c.ConvertFrame(frame(`{"type":"message_start","message":{"id":"msg_4","model":"m"}}`))

	start := frame(`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_a","name":"search"}}`)
	evs := events(c.ConvertFrame(start))
	require.Len(t, evs, 1)
	assert.Equal(t, 0, evs[0].ToolCall.Index)

	assert.Empty(t, events(c.ConvertFrame(start)), "重复的块起始帧不得二次产出边界事件")

	evs = events(c.ConvertFrame(frame(`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"q\""}}`)))
	require.Len(t, evs, 1)
	assert.Equal(t, 0, evs[0].ToolCall.Index, "重复起始后参数片段仍沿用原稳定索引")

	evs = events(c.ConvertFrame(frame(`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_b","name":"fetch"}}`)))
	require.Len(t, evs, 1)
	assert.Equal(t, 1, evs[0].ToolCall.Index, "后续新块按出现顺序取下一个索引")
}

// 工具调用生命周期幂等性:任意次重复的块起始帧只产出一个边界事件,
// 且不改变已分配的稳定索引。
func TestConverter_ToolLifecycleIdempotence(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c := newConverter("claude")
		c.ConvertFrame(frame(`{"type":"message_start","message":{"id":"msg_p","model":"m"}}`))

		blocks := rapid.IntRange(1, 4).Draw(rt, "blocks")
		boundary := 0
		for i := 0; i < blocks; i++ {
			start := frame(fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"tool_use","id":"toolu_%d","name":"tool_%d"}}`, i, i, i))
			repeats := rapid.IntRange(1, 3).Draw(rt, "repeats")
			for r := 0; r < repeats; r++ {
				for _, ev := range events(c.ConvertFrame(start)) {
					boundary++
					if ev.ToolCall == nil || ev.ToolCall.Index != i {
						rt.Fatalf("块 %d 的边界事件携带错误索引: %+v", i, ev.ToolCall)
					}
				}
			}
			evs := events(c.ConvertFrame(frame(fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"input_json_delta","partial_json":"{}"}}`, i))))
			if len(evs) != 1 || evs[0].ToolCall == nil || evs[0].ToolCall.Index != i {
				rt.Fatalf("块 %d 的参数片段未沿用稳定索引: %+v", i, evs)
			}
		}
		if boundary != blocks {
			rt.Fatalf("边界事件应恰好 %d 个,实际 %d", blocks, boundary)
		}
	})
}

func TestConverter_ThinkingDelta(t *testing.T) {
	c := newConverter("claude")
	c.ConvertFrame(frame(`{"type":"message_start","message":{"id":"msg_3","model":"m"}}`))
	evs := events(c.ConvertFrame(frame(`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"推理中"}}`)))
	require.Len(t, evs, 1)
	assert.Equal(t, llm.EventThinkingDelta, evs[0].Type)
	assert.Equal(t, "推理中", evs[0].Thinking)
}

func TestConverter_UnknownEventPassthrough(t *testing.T) {
	c := newConverter("claude")
	evs := events(c.ConvertFrame(frame(`{"type":"content_block_signature","index":0}`)))
	require.Len(t, evs, 1)
	assert.Equal(t, llm.EventCustom, evs[0].Type)
	assert.Equal(t, "anthropic:content_block_signature", evs[0].Custom.EventType)
}

func TestConverter_PingIgnored(t *testing.T) {
	c := newConverter("claude")
	assert.Empty(t, c.ConvertFrame(frame(`{"type":"ping"}`)))
}

func TestConverter_MalformedFrame(t *testing.T) {
	c := newConverter("claude")
	items := c.ConvertFrame(frame(`{bad json`))
	require.Len(t, items, 1)
	assert.Equal(t, types.ErrParse, types.GetErrorCode(items[0].Err))
}

// ===== 反向序列化 =====

func TestSerializeEvent_Sequence(t *testing.T) {
	c := newConverter("claude")

	b, ok := c.SerializeEvent(&llm.StreamEvent{Type: llm.EventStreamStart, ID: "msg_1", Model: "m"})
	require.True(t, ok)
	assert.Contains(t, string(b), "event: message_start")

	b, ok = c.SerializeEvent(&llm.StreamEvent{Type: llm.EventContentDelta, Delta: "你好"})
	require.True(t, ok)
	s := string(b)
	assert.Contains(t, s, "event: content_block_start", "首个内容增量前应先开文本块")
	assert.Contains(t, s, "event: content_block_delta")
	assert.Contains(t, s, `"text_delta"`)

	b, ok = c.SerializeEvent(&llm.StreamEvent{Type: llm.EventContentDelta, Delta: "!"})
	require.True(t, ok)
	assert.NotContains(t, string(b), "content_block_start", "同类块只开一次")

	// usage 暂存,不立即产帧
	_, ok = c.SerializeEvent(&llm.StreamEvent{Type: llm.EventUsageUpdate,
		Usage: &llm.ChatUsage{PromptTokens: 3, CompletionTokens: 5}})
	assert.False(t, ok)

	b, ok = c.SerializeEvent(&llm.StreamEvent{Type: llm.EventStreamEnd, FinishReason: "end_turn"})
	require.True(t, ok)
	s = string(b)
	assert.Contains(t, s, "event: content_block_stop", "终止前应关闭打开的块")
	assert.Contains(t, s, `"stop_reason":"end_turn"`)
	assert.Contains(t, s, `"output_tokens":5`, "暂存的用量应随 message_delta 输出")
	assert.True(t, strings.HasSuffix(s, "\n\n"))
	assert.Contains(t, s, "event: message_stop")
}

func TestSerializeEvent_ToolBlocks(t *testing.T) {
	c := newConverter("claude")
	c.SerializeEvent(&llm.StreamEvent{Type: llm.EventStreamStart, ID: "msg_1", Model: "m"})

	b, ok := c.SerializeEvent(&llm.StreamEvent{Type: llm.EventToolCallDelta,
		ToolCall: &llm.ToolCallDelta{Index: 0, ID: "toolu_1", Name: "f"}})
	require.True(t, ok)
	assert.Contains(t, string(b), `"tool_use"`)
	assert.Contains(t, string(b), `"toolu_1"`)

	b, ok = c.SerializeEvent(&llm.StreamEvent{Type: llm.EventToolCallDelta,
		ToolCall: &llm.ToolCallDelta{Index: 0, ArgumentsDelta: `{"x":1}`}})
	require.True(t, ok)
	assert.Contains(t, string(b), `"input_json_delta"`)
	assert.NotContains(t, string(b), "content_block_start")
}
