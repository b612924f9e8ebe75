package gemini

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/unillm/llm"
	"github.com/BaSui01/unillm/llm/auth"
	"github.com/BaSui01/unillm/providers"
	"github.com/BaSui01/unillm/types"
)

func TestSpec_BuildHeaders_APIKey(t *testing.T) {
	s := New(providers.GeminiConfig{APIKey: "AIza-test"})
	h, err := s.BuildHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AIza-test", h.Get("x-goog-api-key"))
	assert.Empty(t, h.Get("Authorization"))
}

func TestSpec_BuildHeaders_TokenProvider(t *testing.T) {
	s := New(providers.GeminiConfig{TokenProvider: auth.StaticKey("ya29.token")})
	h, err := s.BuildHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer ya29.token", h.Get("Authorization"), "动态凭证应走 Bearer 认证")
	assert.Empty(t, h.Get("x-goog-api-key"))
}

func TestSpec_ChatURL(t *testing.T) {
	s := New(providers.GeminiConfig{APIKey: "k", Model: "gemini-2.0-flash"})
	assert.Contains(t, s.ChatURL(nil, false), ":generateContent")
	streamURL := s.ChatURL(nil, true)
	assert.Contains(t, streamURL, ":streamGenerateContent")
	assert.Contains(t, streamURL, "alt=sse", "流式端点必须附加 alt=sse")

	// 请求级模型优先于配置
	url := s.ChatURL(&llm.ChatRequest{Model: "gemini-2.5-pro"}, false)
	assert.Contains(t, url, "/models/gemini-2.5-pro:")
}

func TestBuildGenerateBody(t *testing.T) {
	req := &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "你是助手"},
			{Role: llm.RoleUser, Content: "查天气"},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
				ID: "call_0", Name: "get_weather", Arguments: json.RawMessage(`{"city":"北京"}`),
			}}},
			{Role: llm.RoleTool, ToolCallID: "call_0", Content: `{"temp":25}`},
		},
		MaxTokens: 256,
		Tools: []llm.ToolSchema{{
			Name:       "get_weather",
			Parameters: json.RawMessage(`{"type":"object"}`),
		}},
		ToolChoice: "get_weather",
	}
	body, err := buildGenerateBody(req)
	require.NoError(t, err)

	require.NotNil(t, body.SystemInstruction, "system 消息应提取到 systemInstruction")
	assert.Equal(t, "你是助手", body.SystemInstruction.Parts[0].Text)

	require.Len(t, body.Contents, 3)
	assert.Equal(t, "user", body.Contents[0].Role)
	assert.Equal(t, "model", body.Contents[1].Role, "assistant 角色应映射为 model")
	require.NotNil(t, body.Contents[1].Parts[0].FunctionCall)

	// tool 结果映射为 functionResponse,按调用 ID 还原函数名
	fr := body.Contents[2].Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, "get_weather", fr.Name)
	assert.Equal(t, float64(25), fr.Response["temp"])

	require.NotNil(t, body.GenerationConfig)
	assert.Equal(t, 256, body.GenerationConfig.MaxOutputTokens)

	require.NotNil(t, body.ToolConfig)
	assert.Equal(t, "ANY", body.ToolConfig.FunctionCallingConfig.Mode)
	assert.Equal(t, []string{"get_weather"}, body.ToolConfig.FunctionCallingConfig.AllowedFunctionNames)
}

func TestBuildGenerateBody_NonJSONToolResult(t *testing.T) {
	req := &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleTool, ToolCallID: "call_0", Content: "晴天"},
			{Role: llm.RoleUser, Content: "继续"},
		},
	}
	body, err := buildGenerateBody(req)
	require.NoError(t, err)
	fr := body.Contents[0].Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, "晴天", fr.Response["output"], "非 JSON 的工具结果应包装为 output 字段")
}

func TestParseGenerateResponse(t *testing.T) {
	raw := `{
		"candidates": [{
			"content": {"role": "model", "parts": [
				{"text": "思路", "thought": true},
				{"text": "今天晴。"},
				{"functionCall": {"name": "get_weather", "args": {"city": "北京"}}}
			]},
			"finishReason": "STOP",
			"index": 0
		}],
		"usageMetadata": {
			"promptTokenCount": 12, "candidatesTokenCount": 6, "totalTokenCount": 18,
			"cachedContentTokenCount": 4, "thoughtsTokenCount": 2
		},
		"modelVersion": "gemini-2.0-flash",
		"responseId": "resp-1"
	}`
	resp, err := parseGenerateResponse("gemini", []byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "resp-1", resp.ID)
	require.Len(t, resp.Choices, 1)
	msg := resp.Choices[0].Message
	assert.Equal(t, "今天晴。", msg.Content)
	assert.Equal(t, "思路", msg.Thinking, "thought 片段应归入思考内容")
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "call_0", msg.ToolCalls[0].ID, "应合成稳定的调用 ID")
	assert.Equal(t, "stop", resp.Choices[0].FinishReason, "STOP 应映射为统一 finish_reason")
	assert.Equal(t, 4, resp.Usage.CachedTokens)
	assert.Equal(t, 2, resp.Usage.ReasoningTokens)
}

func TestSpec_ClassifyError(t *testing.T) {
	s := New(providers.GeminiConfig{APIKey: "k"})
	tests := []struct {
		name      string
		status    string
		msg       string
		wantCode  types.ErrorCode
		retryable bool
	}{
		{"限流", "RESOURCE_EXHAUSTED", "rate limit", types.ErrRateLimited, true},
		{"配额", "RESOURCE_EXHAUSTED", "quota exceeded for project", types.ErrQuotaExceeded, false},
		{"认证", "UNAUTHENTICATED", "bad key", types.ErrAuthentication, false},
		{"权限", "PERMISSION_DENIED", "denied", types.ErrAuthentication, false},
		{"不存在", "NOT_FOUND", "no model", types.ErrModelNotFound, false},
		{"无效参数", "INVALID_ARGUMENT", "bad", types.ErrInvalidRequest, false},
		{"不可用", "UNAVAILABLE", "overloaded", types.ErrUpstreamError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"error":{"code":400,"message":"` + tt.msg + `","status":"` + tt.status + `"}}`
			err := s.ClassifyError(429, []byte(body))
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, types.GetErrorCode(err))
			assert.Equal(t, tt.retryable, types.IsRetryable(err))
		})
	}
	assert.Nil(t, s.ClassifyError(500, []byte("oops")))
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

func TestConverter_StreamSequence(t *testing.T) {
	c := newConverter("gemini")

	evs := events(c.ConvertFrame(frame(`{"candidates":[{"content":{"role":"model","parts":[{"text":"今天"}]},"index":0}],"responseId":"resp-1","modelVersion":"gemini-2.0-flash"}`)))
	require.Len(t, evs, 2)
	assert.Equal(t, llm.EventStreamStart, evs[0].Type)
	assert.Equal(t, "resp-1", evs[0].ID)
	assert.Equal(t, "今天", evs[1].Delta)

	// 终止 chunk:finishReason + usage,应依次产出内容、用量与终止事件
	evs = events(c.ConvertFrame(frame(`{"candidates":[{"content":{"role":"model","parts":[{"text":"晴。"}]},"finishReason":"STOP","index":0}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2,"totalTokenCount":5}}`)))
	require.Len(t, evs, 3)
	assert.Equal(t, llm.EventContentDelta, evs[0].Type)
	assert.Equal(t, llm.EventUsageUpdate, evs[1].Type)
	assert.Equal(t, llm.EventStreamEnd, evs[2].Type)
	assert.Equal(t, "stop", evs[2].FinishReason)
	assert.Equal(t, "今天晴。", evs[2].FinalText)

	assert.Empty(t, c.HandleStreamEnd(), "终止事件不允许重复产出")
}

func TestConverter_FunctionCallChunk(t *testing.T) {
	c := newConverter("gemini")
	evs := events(c.ConvertFrame(frame(`{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"get_weather","args":{"city":"北京"}}}]},"index":0}],"responseId":"r"}`)))
	require.Len(t, evs, 2)
	tc := evs[1].ToolCall
	require.NotNil(t, tc)
	assert.Equal(t, 0, tc.Index)
	assert.Equal(t, "call_0", tc.ID)
	assert.Equal(t, "get_weather", tc.Name)
	assert.JSONEq(t, `{"city":"北京"}`, tc.ArgumentsDelta, "Gemini 的调用参数一次性完整下发")
}

func TestConverter_ThoughtPart(t *testing.T) {
	c := newConverter("gemini")
	evs := events(c.ConvertFrame(frame(`{"candidates":[{"content":{"role":"model","parts":[{"text":"分析中","thought":true}]},"index":0}]}`)))
	require.Len(t, evs, 2)
	assert.Equal(t, llm.EventThinkingDelta, evs[1].Type)
	assert.Equal(t, "分析中", evs[1].Thinking)
}

func TestConverter_MalformedFrame(t *testing.T) {
	c := newConverter("gemini")
	items := c.ConvertFrame(frame(`{broken`))
	require.Len(t, items, 1)
	assert.Equal(t, types.ErrParse, types.GetErrorCode(items[0].Err))
}

func TestSerializeEvent(t *testing.T) {
	c := newConverter("gemini")

	_, ok := c.SerializeEvent(&llm.StreamEvent{Type: llm.EventStreamStart, ID: "r1", Model: "m"})
	assert.False(t, ok)

	b, ok := c.SerializeEvent(&llm.StreamEvent{Type: llm.EventContentDelta, Delta: "你好"})
	require.True(t, ok)
	assert.Contains(t, string(b), `"text":"你好"`)
	assert.Contains(t, string(b), `"responseId":"r1"`)

	b, ok = c.SerializeEvent(&llm.StreamEvent{Type: llm.EventThinkingDelta, Thinking: "推理"})
	require.True(t, ok)
	assert.Contains(t, string(b), `"thought":true`)

	b, ok = c.SerializeEvent(&llm.StreamEvent{Type: llm.EventStreamEnd, FinishReason: "length"})
	require.True(t, ok)
	assert.Contains(t, string(b), `"finishReason":"MAX_TOKENS"`)
}
