package llm

import "sync"

// StreamFrame 是解码后的单个传输帧。SSE 下 Event/Data 来自 event:/data: 行
// （多行 data 以 \n 连接）；JSONL 下 Event 为空、Data 为一整行。
type StreamFrame struct {
	Event string
	Data  string
}

// EventConverter 把 Provider 帧转换为统一事件，反向序列化供网关模式使用。
// 转换器是有状态的，每条流一个实例，不可跨流复用。
type EventConverter interface {
	// ConvertFrame 将一帧转换为 0..N 个流项。格式错误的帧应返回带内错误项，
	// 不应中断流。
	ConvertFrame(frame StreamFrame) []StreamItem

	// HandleStreamEnd 在收到终止哨兵（如 [DONE]）时排空剩余事件。
	// 终止事件只允许产生一次。
	HandleStreamEnd() []StreamItem

	// FinalizeOnDisconnect 返回连接异常断开时是否根据已累计状态合成终止事件。
	// 默认实现应返回 false：不合成 StreamEnd，直接关闭。
	FinalizeOnDisconnect() bool

	// SerializeEvent 将统一事件反向编码为 Provider 线格式字节（网关模式）。
	// 第二个返回值为 false 表示该事件不产生输出帧。
	SerializeEvent(ev *StreamEvent) ([]byte, bool)
}

// StreamHandle 是一条流式响应的可取消句柄。
type StreamHandle struct {
	events   <-chan StreamItem
	cancelMu sync.Once
	cancel   func()
}

// NewStreamHandle 由流水线构造句柄；cancel 必须是幂等安全的协作取消函数。
func NewStreamHandle(events <-chan StreamItem, cancel func()) *StreamHandle {
	return &StreamHandle{events: events, cancel: cancel}
}

// Events 返回事件通道。流水线进入 Closed 状态时通道关闭。
func (h *StreamHandle) Events() <-chan StreamItem { return h.events }

// Cancel 协作取消：在帧边界检查，停止后不再产出任何事件，
// 连接被丢弃而非读尽。可多次调用。
func (h *StreamHandle) Cancel() {
	h.cancelMu.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
	})
}
