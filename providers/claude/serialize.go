package claude

import (
	"encoding/json"

	"github.com/BaSui01/unillm/llm"
)

// serializeState 网关模式反向序列化的流内状态。
// Anthropic 的流以内容块为单位,序列化时按事件类型惰性开关块:
// 文本、思考与每个工具调用各占一个块,块索引单调递增。
type serializeState struct {
	started   bool
	nextBlock int
	openBlock int    // 当前打开的块索引,-1 表示无
	openKind  string // text / thinking / tool_use
	toolBlock map[string]int
	usage     *wireUsage
}

func newSerializeState() serializeState {
	return serializeState{openBlock: -1, toolBlock: make(map[string]int)}
}

// SerializeEvent 把统一事件编码为 Anthropic SSE 帧(event: + data: 行)。
// 一个统一事件可能展开为多个帧,拼接在同一返回值中。
func (c *converter) SerializeEvent(ev *llm.StreamEvent) ([]byte, bool) {
	if ev == nil {
		return nil, false
	}
	st := &c.ser
	switch ev.Type {
	case llm.EventStreamStart:
		if st.started {
			return nil, false
		}
		st.started = true
		msg := map[string]any{
			"id":      ev.ID,
			"type":    "message",
			"role":    "assistant",
			"model":   ev.Model,
			"content": []any{},
		}
		return sseFrame("message_start", map[string]any{
			"type":    "message_start",
			"message": msg,
		}), true

	case llm.EventContentDelta:
		out := st.ensureBlock("text", nil)
		out = append(out, sseFrame("content_block_delta", map[string]any{
			"type":  "content_block_delta",
			"index": st.openBlock,
			"delta": map[string]any{"type": "text_delta", "text": ev.Delta},
		})...)
		return out, true

	case llm.EventThinkingDelta:
		out := st.ensureBlock("thinking", nil)
		out = append(out, sseFrame("content_block_delta", map[string]any{
			"type":  "content_block_delta",
			"index": st.openBlock,
			"delta": map[string]any{"type": "thinking_delta", "thinking": ev.Thinking},
		})...)
		return out, true

	case llm.EventToolCallDelta:
		tc := ev.ToolCall
		if tc == nil {
			return nil, false
		}
		var out []byte
		if tc.ID != "" {
			// 新工具调用:开一个 tool_use 块
			out = st.ensureBlock("tool_use", map[string]any{
				"type":  "tool_use",
				"id":    tc.ID,
				"name":  tc.Name,
				"input": map[string]any{},
			})
			st.toolBlock[tc.ID] = st.openBlock
		}
		if tc.ArgumentsDelta != "" {
			idx := st.openBlock
			if tc.ID != "" {
				idx = st.toolBlock[tc.ID]
			}
			out = append(out, sseFrame("content_block_delta", map[string]any{
				"type":  "content_block_delta",
				"index": idx,
				"delta": map[string]any{"type": "input_json_delta", "partial_json": tc.ArgumentsDelta},
			})...)
		}
		if len(out) == 0 {
			return nil, false
		}
		return out, true

	case llm.EventUsageUpdate:
		// 暂存,随 message_delta 一起输出
		if ev.Usage != nil {
			st.usage = &wireUsage{
				InputTokens:          ev.Usage.PromptTokens,
				OutputTokens:         ev.Usage.CompletionTokens,
				CacheReadInputTokens: ev.Usage.CachedTokens,
			}
		}
		return nil, false

	case llm.EventStreamEnd:
		out := st.closeBlock()
		reason := ev.FinishReason
		if reason == "" {
			reason = "end_turn"
		}
		deltaFrame := map[string]any{
			"type":  "message_delta",
			"delta": map[string]any{"stop_reason": reason},
		}
		if st.usage != nil {
			deltaFrame["usage"] = st.usage
		}
		out = append(out, sseFrame("message_delta", deltaFrame)...)
		out = append(out, sseFrame("message_stop", map[string]any{"type": "message_stop"})...)
		return out, true
	}
	return nil, false
}

// ensureBlock 确保当前打开的块类型匹配,必要时关旧开新。
func (st *serializeState) ensureBlock(kind string, block map[string]any) []byte {
	if st.openBlock >= 0 && st.openKind == kind && kind != "tool_use" {
		return nil
	}
	out := st.closeBlock()
	if block == nil {
		block = map[string]any{"type": kind}
		if kind == "text" {
			block["text"] = ""
		} else if kind == "thinking" {
			block["thinking"] = ""
		}
	}
	st.openBlock = st.nextBlock
	st.nextBlock++
	st.openKind = kind
	out = append(out, sseFrame("content_block_start", map[string]any{
		"type":          "content_block_start",
		"index":         st.openBlock,
		"content_block": block,
	})...)
	return out
}

func (st *serializeState) closeBlock() []byte {
	if st.openBlock < 0 {
		return nil
	}
	out := sseFrame("content_block_stop", map[string]any{
		"type":  "content_block_stop",
		"index": st.openBlock,
	})
	st.openBlock = -1
	st.openKind = ""
	return out
}

func sseFrame(event string, v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	out := make([]byte, 0, len(b)+len(event)+16)
	out = append(out, "event: "...)
	out = append(out, event...)
	out = append(out, "\ndata: "...)
	out = append(out, b...)
	out = append(out, "\n\n"...)
	return out
}
