package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/unillm/llm"
	"github.com/BaSui01/unillm/types"
)

// converter 是单条流的有状态转换器。Gemini 的 SSE 流没有终止哨兵,
// 携带 finishReason 的 chunk 即为最后一个内容块,在该处产出终止事件。
type converter struct {
	provider string

	started      bool
	ended        bool
	id           string
	model        string
	acc          strings.Builder
	finishReason string
	callSeq      int

	ser serializeState
}

func newConverter(provider string) *converter {
	return &converter{provider: provider}
}

func (c *converter) ConvertFrame(frame llm.StreamFrame) []llm.StreamItem {
	var chunk generateResponse
	if err := json.Unmarshal([]byte(frame.Data), &chunk); err != nil {
		return []llm.StreamItem{llm.ErrItem(types.NewError(types.ErrParse,
			fmt.Sprintf("解析 gemini 流式 chunk 失败: %v", err)).
			WithProvider(c.provider).WithCause(err))}
	}

	var items []llm.StreamItem
	if !c.started {
		c.started = true
		c.id = chunk.ResponseID
		c.model = chunk.ModelVersion
		items = append(items, llm.EventItem(&llm.StreamEvent{
			Type:  llm.EventStreamStart,
			ID:    c.id,
			Model: c.model,
		}))
	}

	for _, cand := range chunk.Candidates {
		for _, part := range cand.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				items = append(items, llm.EventItem(&llm.StreamEvent{
					Type: llm.EventToolCallDelta,
					ID:   c.id,
					ToolCall: &llm.ToolCallDelta{
						Index:          c.callSeq,
						ID:             syntheticCallID(c.callSeq),
						Name:           part.FunctionCall.Name,
						ArgumentsDelta: string(part.FunctionCall.Args),
					},
				}))
				c.callSeq++
			case part.Thought:
				items = append(items, llm.EventItem(&llm.StreamEvent{
					Type:     llm.EventThinkingDelta,
					ID:       c.id,
					Thinking: part.Text,
				}))
			case part.Text != "":
				c.acc.WriteString(part.Text)
				items = append(items, llm.EventItem(&llm.StreamEvent{
					Type:  llm.EventContentDelta,
					ID:    c.id,
					Delta: part.Text,
				}))
			}
		}
		if cand.FinishReason != "" {
			c.finishReason = mapFinishReason(cand.FinishReason)
		}
	}

	if chunk.UsageMetadata != nil {
		u := convertUsage(chunk.UsageMetadata)
		items = append(items, llm.EventItem(&llm.StreamEvent{
			Type:  llm.EventUsageUpdate,
			ID:    c.id,
			Usage: &u,
		}))
	}

	// 终止 chunk:产出 StreamEnd,后续 EOF 属正常关闭
	if c.finishReason != "" && !c.ended {
		items = append(items, c.HandleStreamEnd()...)
	}
	return items
}

func (c *converter) HandleStreamEnd() []llm.StreamItem {
	if c.ended {
		return nil
	}
	c.ended = true
	return []llm.StreamItem{llm.EventItem(&llm.StreamEvent{
		Type:         llm.EventStreamEnd,
		ID:           c.id,
		Model:        c.model,
		FinishReason: c.finishReason,
		FinalText:    c.acc.String(),
	})}
}

func (c *converter) FinalizeOnDisconnect() bool { return false }

// ===== 反向序列化 =====

// serializeState Gemini 反向序列化只需少量元数据。
type serializeState struct {
	id    string
	model string
}

// SerializeEvent 把统一事件编码为 Gemini SSE 帧。思考增量编码为
// thought 片段,终止事件编码为携带 finishReason 的空候选帧。
func (c *converter) SerializeEvent(ev *llm.StreamEvent) ([]byte, bool) {
	if ev == nil {
		return nil, false
	}
	st := &c.ser
	switch ev.Type {
	case llm.EventStreamStart:
		st.id, st.model = ev.ID, ev.Model
		return nil, false

	case llm.EventContentDelta:
		return st.frame([]wirePart{{Text: ev.Delta}}, ""), true

	case llm.EventThinkingDelta:
		return st.frame([]wirePart{{Text: ev.Thinking, Thought: true}}, ""), true

	case llm.EventToolCallDelta:
		if ev.ToolCall == nil || ev.ToolCall.Name == "" {
			return nil, false
		}
		args := json.RawMessage(ev.ToolCall.ArgumentsDelta)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		return st.frame([]wirePart{{FunctionCall: &wireFunctionCall{
			Name: ev.ToolCall.Name,
			Args: args,
		}}}, ""), true

	case llm.EventStreamEnd:
		reason := "STOP"
		switch ev.FinishReason {
		case "length":
			reason = "MAX_TOKENS"
		case "content_filter":
			reason = "SAFETY"
		}
		return st.frame(nil, reason), true
	}
	return nil, false
}

func (st *serializeState) frame(parts []wirePart, finish string) []byte {
	if parts == nil {
		parts = []wirePart{}
	}
	cand := map[string]any{
		"content": wireContent{Role: "model", Parts: parts},
		"index":   0,
	}
	if finish != "" {
		cand["finishReason"] = finish
	}
	payload := map[string]any{
		"candidates":   []any{cand},
		"responseId":   st.id,
		"modelVersion": st.model,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	out := make([]byte, 0, len(b)+8)
	out = append(out, "data: "...)
	out = append(out, b...)
	out = append(out, "\n\n"...)
	return out
}
