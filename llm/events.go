package llm

import "encoding/json"

// StreamEventType 标识统一流事件的类型。
type StreamEventType string

const (
	EventStreamStart   StreamEventType = "stream_start"
	EventContentDelta  StreamEventType = "content_delta"
	EventToolCallDelta StreamEventType = "tool_call_delta"
	EventThinkingDelta StreamEventType = "thinking_delta"
	EventUsageUpdate   StreamEventType = "usage_update"
	EventCustom        StreamEventType = "custom"
	EventStreamEnd     StreamEventType = "stream_end"
)

// ToolCallDelta 携带工具调用的增量片段。同一调用的片段通过 ID 关联，
// Index 在流内对同一 ID 保持稳定。
type ToolCallDelta struct {
	Index          int    `json:"index"`
	ID             string `json:"id,omitempty"`
	Name           string `json:"name,omitempty"`
	ArgumentsDelta string `json:"arguments_delta,omitempty"`
}

// CustomEvent 承载无法映射到统一事件的 Provider 私有事件，
// EventType 带命名空间前缀（如 openai:、anthropic:）。
type CustomEvent struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// StreamEvent 是统一流事件的标签联合：Type 决定哪些字段有效。
type StreamEvent struct {
	Type  StreamEventType `json:"type"`
	ID    string          `json:"id,omitempty"`    // Provider 返回的响应 ID
	Model string          `json:"model,omitempty"` // StreamStart 时填充

	Delta    string         `json:"delta,omitempty"`    // ContentDelta
	Thinking string         `json:"thinking,omitempty"` // ThinkingDelta
	ToolCall *ToolCallDelta `json:"tool_call,omitempty"`
	Usage    *ChatUsage     `json:"usage,omitempty"`
	Custom   *CustomEvent   `json:"custom,omitempty"`

	// StreamEnd 专属
	FinishReason string `json:"finish_reason,omitempty"`
	FinalText    string `json:"final_text,omitempty"` // 累计的完整文本
}

// StreamItem 是流中的一项：要么是事件，要么是带内错误。
// 带内错误不终止流，解码会继续；致命传输错误之后通道关闭。
type StreamItem struct {
	Event *StreamEvent
	Err   error
}

// EventItem 构造事件项。
func EventItem(ev *StreamEvent) StreamItem { return StreamItem{Event: ev} }

// ErrItem 构造带内错误项。
func ErrItem(err error) StreamItem { return StreamItem{Err: err} }
