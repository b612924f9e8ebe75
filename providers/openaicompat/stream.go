package openaicompat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/unillm/llm"
	"github.com/BaSui01/unillm/types"
)

// chunk 流式增量帧。usage 只在最终 chunk(choices 为空)出现。
type chunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Index        int        `json:"index"`
		FinishReason string     `json:"finish_reason"`
		Delta        chunkDelta `json:"delta"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage,omitempty"`
}

type chunkDelta struct {
	Role             string `json:"role,omitempty"`
	Content          string `json:"content,omitempty"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
	Reasoning        string `json:"reasoning,omitempty"` // Groq 等变体使用的字段名
	ToolCalls        []struct {
		Index    int    `json:"index"`
		ID       string `json:"id,omitempty"`
		Function struct {
			Name      string `json:"name,omitempty"`
			Arguments string `json:"arguments,omitempty"`
		} `json:"function"`
	} `json:"tool_calls,omitempty"`
}

// converter 是单条流的有状态转换器,同时承担网关模式的反向序列化。
type converter struct {
	provider string

	started      bool
	ended        bool
	id           string
	model        string
	acc          strings.Builder // 累计文本,供 StreamEnd.FinalText
	finishReason string

	ser serializeState
}

func newConverter(provider string) *converter {
	return &converter{provider: provider, ser: newSerializeState()}
}

func (c *converter) ConvertFrame(frame llm.StreamFrame) []llm.StreamItem {
	var ck chunk
	if err := json.Unmarshal([]byte(frame.Data), &ck); err != nil {
		return []llm.StreamItem{llm.ErrItem(types.NewError(types.ErrParse,
			fmt.Sprintf("解析流式 chunk 失败: %v", err)).
			WithProvider(c.provider).WithCause(err))}
	}

	var items []llm.StreamItem
	if !c.started {
		c.started = true
		c.id, c.model = ck.ID, ck.Model
		items = append(items, llm.EventItem(&llm.StreamEvent{
			Type:  llm.EventStreamStart,
			ID:    ck.ID,
			Model: ck.Model,
		}))
	}

	for _, ch := range ck.Choices {
		d := ch.Delta
		if d.Content != "" {
			c.acc.WriteString(d.Content)
			items = append(items, llm.EventItem(&llm.StreamEvent{
				Type:  llm.EventContentDelta,
				ID:    ck.ID,
				Delta: d.Content,
			}))
		}
		if th := firstNonEmpty(d.ReasoningContent, d.Reasoning); th != "" {
			items = append(items, llm.EventItem(&llm.StreamEvent{
				Type:     llm.EventThinkingDelta,
				ID:       ck.ID,
				Thinking: th,
			}))
		}
		for _, tc := range d.ToolCalls {
			items = append(items, llm.EventItem(&llm.StreamEvent{
				Type: llm.EventToolCallDelta,
				ID:   ck.ID,
				ToolCall: &llm.ToolCallDelta{
					Index:          tc.Index,
					ID:             tc.ID,
					Name:           tc.Function.Name,
					ArgumentsDelta: tc.Function.Arguments,
				},
			}))
		}
		if ch.FinishReason != "" {
			c.finishReason = ch.FinishReason
		}
	}

	if ck.Usage != nil {
		u := convertUsage(ck.Usage)
		items = append(items, llm.EventItem(&llm.StreamEvent{
			Type:  llm.EventUsageUpdate,
			ID:    ck.ID,
			Usage: &u,
		}))
	}
	return items
}

// HandleStreamEnd 在 [DONE] 哨兵处产出唯一的终止事件。
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

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

var _ llm.EventConverter = (*converter)(nil)
