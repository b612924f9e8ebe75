package claude

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/unillm/llm"
	"github.com/BaSui01/unillm/types"
)

// streamEvent Anthropic SSE 事件。
// 序列:message_start → (content_block_start → content_block_delta* →
// content_block_stop)* → message_delta → message_stop。
type streamEvent struct {
	Type         string            `json:"type"`
	Index        int               `json:"index,omitempty"`
	Delta        *streamDelta      `json:"delta,omitempty"`
	ContentBlock *contentPart      `json:"content_block,omitempty"`
	Message      *messagesResponse `json:"message,omitempty"`
	Usage        *wireUsage        `json:"usage,omitempty"`
}

type streamDelta struct {
	Type        string `json:"type"` // text_delta, input_json_delta, thinking_delta
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

// blockTool 记录 tool_use 内容块的调用标识,供 input_json_delta 片段关联。
type blockTool struct {
	id   string
	name string
}

// converter 是单条流的有状态转换器。
type converter struct {
	provider string

	started    bool
	ended      bool
	id         string
	model      string
	acc        strings.Builder
	stopReason string

	// 按内容块索引跟踪进行中的 tool_use 块
	blocks map[int]blockTool
	// 工具调用在统一事件中的稳定索引,按出现顺序分配
	toolOrder map[int]int

	ser serializeState
}

func newConverter(provider string) *converter {
	return &converter{
		provider:  provider,
		blocks:    make(map[int]blockTool),
		toolOrder: make(map[int]int),
		ser:       newSerializeState(),
	}
}

func (c *converter) ConvertFrame(frame llm.StreamFrame) []llm.StreamItem {
	var ev streamEvent
	if err := json.Unmarshal([]byte(frame.Data), &ev); err != nil {
		return []llm.StreamItem{llm.ErrItem(types.NewError(types.ErrParse,
			fmt.Sprintf("解析 claude 流事件失败: %v", err)).
			WithProvider(c.provider).WithCause(err))}
	}

	switch ev.Type {
	case "message_start":
		if c.started {
			return nil
		}
		c.started = true
		var items []llm.StreamItem
		if ev.Message != nil {
			c.id, c.model = ev.Message.ID, ev.Message.Model
		}
		items = append(items, llm.EventItem(&llm.StreamEvent{
			Type:  llm.EventStreamStart,
			ID:    c.id,
			Model: c.model,
		}))
		// message_start 携带输入侧用量
		if ev.Message != nil && ev.Message.Usage != nil {
			u := convertUsage(ev.Message.Usage)
			items = append(items, llm.EventItem(&llm.StreamEvent{
				Type:  llm.EventUsageUpdate,
				ID:    c.id,
				Usage: &u,
			}))
		}
		return items

	case "content_block_start":
		if ev.ContentBlock == nil || ev.ContentBlock.Type != "tool_use" {
			return nil
		}
		// 重复的块起始帧不得二次产出边界事件,也不得改写已分配的稳定索引
		if _, seen := c.toolOrder[ev.Index]; seen {
			return nil
		}
		c.blocks[ev.Index] = blockTool{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
		idx := len(c.toolOrder)
		c.toolOrder[ev.Index] = idx
		return []llm.StreamItem{llm.EventItem(&llm.StreamEvent{
			Type: llm.EventToolCallDelta,
			ID:   c.id,
			ToolCall: &llm.ToolCallDelta{
				Index: idx,
				ID:    ev.ContentBlock.ID,
				Name:  ev.ContentBlock.Name,
			},
		})}

	case "content_block_delta":
		if ev.Delta == nil {
			return nil
		}
		switch ev.Delta.Type {
		case "text_delta":
			c.acc.WriteString(ev.Delta.Text)
			return []llm.StreamItem{llm.EventItem(&llm.StreamEvent{
				Type:  llm.EventContentDelta,
				ID:    c.id,
				Delta: ev.Delta.Text,
			})}
		case "thinking_delta":
			return []llm.StreamItem{llm.EventItem(&llm.StreamEvent{
				Type:     llm.EventThinkingDelta,
				ID:       c.id,
				Thinking: ev.Delta.Thinking,
			})}
		case "input_json_delta":
			idx, ok := c.toolOrder[ev.Index]
			if !ok {
				return nil
			}
			return []llm.StreamItem{llm.EventItem(&llm.StreamEvent{
				Type: llm.EventToolCallDelta,
				ID:   c.id,
				ToolCall: &llm.ToolCallDelta{
					Index:          idx,
					ArgumentsDelta: ev.Delta.PartialJSON,
				},
			})}
		}
		return nil

	case "content_block_stop":
		delete(c.blocks, ev.Index)
		return nil

	case "message_delta":
		var items []llm.StreamItem
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			c.stopReason = ev.Delta.StopReason
		}
		// message_delta 携带输出侧累计用量
		if ev.Usage != nil {
			u := convertUsage(ev.Usage)
			items = append(items, llm.EventItem(&llm.StreamEvent{
				Type:  llm.EventUsageUpdate,
				ID:    c.id,
				Usage: &u,
			}))
		}
		return items

	case "message_stop":
		return c.HandleStreamEnd()

	case "ping":
		return nil
	}

	// 未知事件透传为命名空间自定义事件
	return []llm.StreamItem{llm.EventItem(&llm.StreamEvent{
		Type: llm.EventCustom,
		ID:   c.id,
		Custom: &llm.CustomEvent{
			EventType: "anthropic:" + ev.Type,
			Data:      json.RawMessage(frame.Data),
		},
	})}
}

// HandleStreamEnd 在 message_stop 处产出唯一的终止事件。
func (c *converter) HandleStreamEnd() []llm.StreamItem {
	if c.ended {
		return nil
	}
	c.ended = true
	return []llm.StreamItem{llm.EventItem(&llm.StreamEvent{
		Type:         llm.EventStreamEnd,
		ID:           c.id,
		Model:        c.model,
		FinishReason: c.stopReason,
		FinalText:    c.acc.String(),
	})}
}

func (c *converter) FinalizeOnDisconnect() bool { return false }

var _ llm.EventConverter = (*converter)(nil)
