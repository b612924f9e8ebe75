// Package gateway 把统一流事件反向编码为 Provider 线格式字节,
// 用于把一个 Provider 的流转发为另一个 Provider 形状的下游响应。
package gateway

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/unillm/llm"
	"github.com/BaSui01/unillm/types"
)

// Encoder 将统一事件按转换器的反向序列化写入下游。
// 转换器有状态,一个 Encoder 只服务一条流。
type Encoder struct {
	w      io.Writer
	conv   llm.EventConverter
	logger *zap.Logger

	flusher http.Flusher
	started bool
	ended   bool
}

// NewEncoder 创建编码器。w 同时实现 http.Flusher 时每帧后刷新,
// 保证 SSE 逐帧到达下游。
func NewEncoder(w io.Writer, conv llm.EventConverter, logger *zap.Logger) *Encoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Encoder{w: w, conv: conv, logger: logger.Named("gateway")}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// Encode 编码并写出单个事件。边界事件受保护:StreamStart 至多一次,
// StreamEnd 之后的事件被丢弃。
func (e *Encoder) Encode(ev *llm.StreamEvent) error {
	if ev == nil || e.ended {
		return nil
	}
	switch ev.Type {
	case llm.EventStreamStart:
		if e.started {
			return nil
		}
		e.started = true
	case llm.EventStreamEnd:
		e.ended = true
	}

	frame, ok := e.conv.SerializeEvent(ev)
	if !ok {
		return nil
	}
	if _, err := e.w.Write(frame); err != nil {
		return types.NewError(types.ErrNetwork, "写出下游帧失败").WithCause(err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Pipe 将一条流的全部事件转发到下游,直到通道关闭或写出失败。
// 带内错误项不转发,只记录日志;下游写失败时取消上游流。
func (e *Encoder) Pipe(ctx context.Context, handle *llm.StreamHandle) error {
	for {
		select {
		case <-ctx.Done():
			handle.Cancel()
			return ctx.Err()
		case item, ok := <-handle.Events():
			if !ok {
				return nil
			}
			if item.Err != nil {
				e.logger.Warn("带内错误不转发", zap.Error(item.Err))
				continue
			}
			if err := e.Encode(item.Event); err != nil {
				handle.Cancel()
				return err
			}
		}
	}
}
