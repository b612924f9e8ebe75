package openaicompat

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/unillm/llm"
)

// serializeState 网关模式反向序列化的流内状态:
// 首个内容帧前补发 role 增量,工具调用索引按 ID 保持稳定。
type serializeState struct {
	id          string
	model       string
	created     int64
	emittedRole bool
	toolIndex   map[string]int
	nextTool    int
}

func newSerializeState() serializeState {
	return serializeState{toolIndex: make(map[string]int)}
}

// outChunk 序列化输出的 chat.completion.chunk 形状。
type outChunk struct {
	ID      string      `json:"id"`
	Object  string      `json:"object"`
	Created int64       `json:"created"`
	Model   string      `json:"model"`
	Choices []outChoice `json:"choices"`
	Usage   *wireUsage  `json:"usage,omitempty"`
}

type outChoice struct {
	Index        int      `json:"index"`
	Delta        outDelta `json:"delta"`
	FinishReason *string  `json:"finish_reason"`
}

type outDelta struct {
	Role             string              `json:"role,omitempty"`
	Content          string              `json:"content,omitempty"`
	ReasoningContent string              `json:"reasoning_content,omitempty"`
	ToolCalls        []wireToolCallDelta `json:"tool_calls,omitempty"`
}

type wireToolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

// SerializeEvent 把统一事件编码为 OpenAI 兼容 SSE 帧。
// StreamStart 仅记录元数据不产帧;StreamEnd 产出 finish_reason 帧并追加 [DONE]。
func (c *converter) SerializeEvent(ev *llm.StreamEvent) ([]byte, bool) {
	if ev == nil {
		return nil, false
	}
	st := &c.ser
	switch ev.Type {
	case llm.EventStreamStart:
		st.id, st.model = ev.ID, ev.Model
		st.created = time.Now().Unix()
		return nil, false

	case llm.EventContentDelta:
		d := outDelta{Content: ev.Delta}
		if !st.emittedRole {
			st.emittedRole = true
			d.Role = "assistant"
		}
		return st.frame(outChoice{Delta: d}), true

	case llm.EventThinkingDelta:
		d := outDelta{ReasoningContent: ev.Thinking}
		if !st.emittedRole {
			st.emittedRole = true
			d.Role = "assistant"
		}
		return st.frame(outChoice{Delta: d}), true

	case llm.EventToolCallDelta:
		if ev.ToolCall == nil {
			return nil, false
		}
		tc := wireToolCallDelta{ID: ev.ToolCall.ID}
		tc.Index = st.stableIndex(ev.ToolCall)
		if ev.ToolCall.ID != "" {
			tc.Type = "function"
		}
		tc.Function.Name = ev.ToolCall.Name
		tc.Function.Arguments = ev.ToolCall.ArgumentsDelta
		d := outDelta{ToolCalls: []wireToolCallDelta{tc}}
		if !st.emittedRole {
			st.emittedRole = true
			d.Role = "assistant"
		}
		return st.frame(outChoice{Delta: d}), true

	case llm.EventUsageUpdate:
		if ev.Usage == nil {
			return nil, false
		}
		u := &wireUsage{
			PromptTokens:     ev.Usage.PromptTokens,
			CompletionTokens: ev.Usage.CompletionTokens,
			TotalTokens:      ev.Usage.TotalTokens,
		}
		ck := outChunk{
			ID: st.id, Object: "chat.completion.chunk",
			Created: st.created, Model: st.model,
			Choices: []outChoice{}, Usage: u,
		}
		return encodeFrame(ck), true

	case llm.EventStreamEnd:
		reason := ev.FinishReason
		if reason == "" {
			reason = "stop"
		}
		body := st.frame(outChoice{Delta: outDelta{}, FinishReason: &reason})
		return append(body, []byte("data: [DONE]\n\n")...), true
	}
	return nil, false
}

// stableIndex 同一工具调用 ID 在流内映射到固定索引。
func (st *serializeState) stableIndex(tc *llm.ToolCallDelta) int {
	if tc.ID == "" {
		return tc.Index
	}
	if idx, ok := st.toolIndex[tc.ID]; ok {
		return idx
	}
	idx := st.nextTool
	st.nextTool++
	st.toolIndex[tc.ID] = idx
	return idx
}

func (st *serializeState) frame(choice outChoice) []byte {
	return encodeFrame(outChunk{
		ID:      st.id,
		Object:  "chat.completion.chunk",
		Created: st.created,
		Model:   st.model,
		Choices: []outChoice{choice},
	})
}

func encodeFrame(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	out := make([]byte, 0, len(b)+8)
	out = append(out, "data: "...)
	out = append(out, b...)
	out = append(out, "\n\n"...)
	return out
}
