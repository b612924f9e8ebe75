package openaicompat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/unillm/llm"
	"github.com/BaSui01/unillm/types"
)

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

func TestConverter_ContentStream(t *testing.T) {
	c := newConverter("openai")

	items := c.ConvertFrame(frame(`{"id":"r1","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"你"}}]}`))
	evs := events(items)
	require.Len(t, evs, 2, "首帧应产出 StreamStart + ContentDelta")
	assert.Equal(t, llm.EventStreamStart, evs[0].Type)
	assert.Equal(t, "r1", evs[0].ID)
	assert.Equal(t, "gpt-4o", evs[0].Model)
	assert.Equal(t, llm.EventContentDelta, evs[1].Type)
	assert.Equal(t, "你", evs[1].Delta)

	items = c.ConvertFrame(frame(`{"id":"r1","choices":[{"index":0,"delta":{"content":"好"},"finish_reason":"stop"}]}`))
	evs = events(items)
	require.Len(t, evs, 1, "StreamStart 只允许出现一次")
	assert.Equal(t, llm.EventContentDelta, evs[0].Type)

	end := events(c.HandleStreamEnd())
	require.Len(t, end, 1)
	assert.Equal(t, llm.EventStreamEnd, end[0].Type)
	assert.Equal(t, "stop", end[0].FinishReason)
	assert.Equal(t, "你好", end[0].FinalText, "终止事件应携带累计文本")

	assert.Empty(t, c.HandleStreamEnd(), "终止事件不允许重复产出")
}

func TestConverter_ThinkingAndToolCalls(t *testing.T) {
	c := newConverter("deepseek")

	evs := events(c.ConvertFrame(frame(`{"id":"r2","model":"deepseek-reasoner","choices":[{"index":0,"delta":{"reasoning_content":"思考中"}}]}`)))
	require.Len(t, evs, 2)
	assert.Equal(t, llm.EventThinkingDelta, evs[1].Type)
	assert.Equal(t, "思考中", evs[1].Thinking)

	evs = events(c.ConvertFrame(frame(`{"id":"r2","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"get_weather","arguments":"{\"ci"}}]}}]}`)))
	require.Len(t, evs, 1)
	require.NotNil(t, evs[0].ToolCall)
	assert.Equal(t, "call_1", evs[0].ToolCall.ID)
	assert.Equal(t, "get_weather", evs[0].ToolCall.Name)
	assert.Equal(t, `{"ci`, evs[0].ToolCall.ArgumentsDelta)

	// 后续片段不带 ID,仅索引关联
	evs = events(c.ConvertFrame(frame(`{"id":"r2","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ty\":\"北京\"}"}}]}}]}`)))
	require.Len(t, evs, 1)
	assert.Empty(t, evs[0].ToolCall.ID)
	assert.Equal(t, 0, evs[0].ToolCall.Index)
}

func TestConverter_GroqReasoningField(t *testing.T) {
	c := newConverter("groq")
	evs := events(c.ConvertFrame(frame(`{"id":"r3","choices":[{"index":0,"delta":{"reasoning":"推理"}}]}`)))
	require.Len(t, evs, 2)
	assert.Equal(t, "推理", evs[1].Thinking, "reasoning 变体字段也应映射到思考增量")
}

func TestConverter_UsageChunk(t *testing.T) {
	c := newConverter("openai")
	c.ConvertFrame(frame(`{"id":"r4","choices":[{"index":0,"delta":{"content":"x"}}]}`))

	evs := events(c.ConvertFrame(frame(`{"id":"r4","choices":[],"usage":{"prompt_tokens":7,"completion_tokens":2,"total_tokens":9,"prompt_tokens_details":{"cached_tokens":5}}}`)))
	require.Len(t, evs, 1)
	assert.Equal(t, llm.EventUsageUpdate, evs[0].Type)
	require.NotNil(t, evs[0].Usage)
	assert.Equal(t, 9, evs[0].Usage.TotalTokens)
	assert.Equal(t, 5, evs[0].Usage.CachedTokens)
}

func TestConverter_MalformedFrame(t *testing.T) {
	c := newConverter("openai")
	items := c.ConvertFrame(frame(`{"id": broken`))
	require.Len(t, items, 1)
	require.Error(t, items[0].Err, "坏帧应返回带内错误而不是 panic")
	assert.Equal(t, types.ErrParse, types.GetErrorCode(items[0].Err))

	// 坏帧不应破坏后续解码
	evs := events(c.ConvertFrame(frame(`{"id":"r5","choices":[{"index":0,"delta":{"content":"ok"}}]}`)))
	assert.Len(t, evs, 2)
}

func TestConverter_FinalizeOnDisconnect(t *testing.T) {
	c := newConverter("openai")
	assert.False(t, c.FinalizeOnDisconnect(), "默认断连不合成终止事件")
}

func TestSerializeEvent_RoleBeforeFirstContent(t *testing.T) {
	c := newConverter("openai")

	_, ok := c.SerializeEvent(&llm.StreamEvent{Type: llm.EventStreamStart, ID: "r1", Model: "gpt-4o"})
	assert.False(t, ok, "StreamStart 只记录元数据不产帧")

	b, ok := c.SerializeEvent(&llm.StreamEvent{Type: llm.EventContentDelta, Delta: "你好"})
	require.True(t, ok)
	s := string(b)
	assert.True(t, strings.HasPrefix(s, "data: "), "应为 SSE data 帧")
	assert.Contains(t, s, `"role":"assistant"`, "首个内容帧前应补发 role 增量")
	assert.Contains(t, s, `"content":"你好"`)
	assert.Contains(t, s, `"id":"r1"`)

	b, ok = c.SerializeEvent(&llm.StreamEvent{Type: llm.EventContentDelta, Delta: "!"})
	require.True(t, ok)
	assert.NotContains(t, string(b), `"role"`, "role 增量只发一次")
}

func TestSerializeEvent_StableToolIndex(t *testing.T) {
	c := newConverter("openai")
	c.SerializeEvent(&llm.StreamEvent{Type: llm.EventStreamStart, ID: "r1"})

	b1, _ := c.SerializeEvent(&llm.StreamEvent{Type: llm.EventToolCallDelta,
		ToolCall: &llm.ToolCallDelta{Index: 3, ID: "call_a", Name: "f"}})
	b2, _ := c.SerializeEvent(&llm.StreamEvent{Type: llm.EventToolCallDelta,
		ToolCall: &llm.ToolCallDelta{Index: 5, ID: "call_b", Name: "g"}})
	b3, _ := c.SerializeEvent(&llm.StreamEvent{Type: llm.EventToolCallDelta,
		ToolCall: &llm.ToolCallDelta{Index: 9, ID: "call_a", ArgumentsDelta: "{}"}})

	assert.Contains(t, string(b1), `"index":0`, "首个调用分配索引 0")
	assert.Contains(t, string(b2), `"index":1`)
	assert.Contains(t, string(b3), `"index":0`, "同一 ID 的后续片段索引保持稳定")
}

func TestSerializeEvent_EndEmitsDone(t *testing.T) {
	c := newConverter("openai")
	c.SerializeEvent(&llm.StreamEvent{Type: llm.EventStreamStart, ID: "r1", Model: "m"})

	b, ok := c.SerializeEvent(&llm.StreamEvent{Type: llm.EventStreamEnd, FinishReason: "stop"})
	require.True(t, ok)
	s := string(b)
	assert.Contains(t, s, `"finish_reason":"stop"`)
	assert.True(t, strings.HasSuffix(s, "data: [DONE]\n\n"), "终止后应追加 [DONE] 哨兵")
}

func TestSerializeEvent_UsageChunkHasEmptyChoices(t *testing.T) {
	c := newConverter("openai")
	c.SerializeEvent(&llm.StreamEvent{Type: llm.EventStreamStart, ID: "r1"})
	b, ok := c.SerializeEvent(&llm.StreamEvent{Type: llm.EventUsageUpdate,
		Usage: &llm.ChatUsage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}})
	require.True(t, ok)
	assert.Contains(t, string(b), `"choices":[]`)
	assert.Contains(t, string(b), `"total_tokens":3`)
}
