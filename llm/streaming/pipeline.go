package streaming

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/unillm/internal/obs"
	"github.com/BaSui01/unillm/llm"
	"github.com/BaSui01/unillm/types"
)

// 终止哨兵。OpenAI 兼容 Provider 在流末尾发送 data: [DONE]。
const doneSentinel = "[DONE]"

// Options 配置一条流水线。
type Options struct {
	Provider string
	Logger   *zap.Logger
	Metrics  *obs.Collector
	Buffer   BufferConfig

	// RemoteCancel 可选：按响应 ID 尽力而为地远程取消生成。
	// 在独立 goroutine 中调用，失败只记日志。
	RemoteCancel func(ctx context.Context, responseID string) error

	// FrameObserver 可选：在每个解码帧边界被调用，仅观察。
	// 终止哨兵帧同样会被观察到。
	FrameObserver func(ctx context.Context, event, data string)
}

// frameDecoder 统一 SSE 与 JSONL 解码器。
type frameDecoder interface {
	Next() (llm.StreamFrame, error)
}

// NewSSEStream 在已完成握手的响应上启动 SSE 流水线。
// Content-Type 不是 text/event-stream 时退化为单帧 JSON 响应处理。
func NewSSEStream(ctx context.Context, resp *http.Response, conv llm.EventConverter, opts Options) *llm.StreamHandle {
	if isEventStream(resp) {
		return start(ctx, resp, newSSEDecoder(resp.Body), conv, opts, true)
	}
	return startJSONFallback(ctx, resp, conv, opts)
}

// NewJSONLStream 在已完成握手的响应上启动 JSONL 流水线。
func NewJSONLStream(ctx context.Context, resp *http.Response, conv llm.EventConverter, opts Options) *llm.StreamHandle {
	return start(ctx, resp, newJSONLDecoder(resp.Body), conv, opts, false)
}

func isEventStream(resp *http.Response) bool {
	ct := resp.Header.Get("Content-Type")
	return strings.Contains(ct, "text/event-stream")
}

// startJSONFallback 处理 Provider 对流式请求返回完整 JSON 体的情况：
// 整个响应体作为一帧喂给转换器，然后正常收尾。
func startJSONFallback(ctx context.Context, resp *http.Response, conv llm.EventConverter, opts Options) *llm.StreamHandle {
	p := newPipeline(ctx, resp, conv, opts)

	go func() {
		defer p.close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			p.emitAll([]llm.StreamItem{llm.ErrItem(
				types.NewError(types.ErrNetwork, "读取响应体失败").
					WithCause(err).
					WithProvider(opts.Provider).
					WithRetryable(false),
			)})
			return
		}
		frame := llm.StreamFrame{Data: string(body)}
		p.observe(frame)
		if !p.emitAll(conv.ConvertFrame(frame)) {
			return
		}
		p.drainEnd()
	}()

	return p.handle()
}

// start 启动解码循环。sse 为 true 时识别 [DONE] 哨兵。
func start(ctx context.Context, resp *http.Response, dec frameDecoder, conv llm.EventConverter, opts Options, sse bool) *llm.StreamHandle {
	p := newPipeline(ctx, resp, conv, opts)

	go func() {
		defer p.close()

		for {
			// 帧边界取消检查
			if p.cancelled() {
				return
			}

			frame, err := dec.Next()
			last := false
			switch err {
			case nil:
			case io.EOF:
				if frame.Data == "" && frame.Event == "" {
					p.disconnected()
					return
				}
				last = true
			default:
				if p.cancelled() {
					// 取消会关闭连接体，读错误是预期的
					return
				}
				p.emitAll([]llm.StreamItem{llm.ErrItem(
					types.NewError(types.ErrNetwork, "流读取失败").
						WithCause(err).
						WithProvider(opts.Provider),
				)})
				return
			}

			p.observe(frame)

			if sse && strings.TrimSpace(frame.Data) == doneSentinel {
				p.drainEnd()
				return
			}

			if !p.emitAll(conv.ConvertFrame(frame)) {
				return
			}

			if last {
				p.disconnected()
				return
			}
		}
	}()

	return p.handle()
}

// pipeline 持有一条流的运行状态。
type pipeline struct {
	ctx      context.Context
	cancelFn context.CancelFunc
	resp     *http.Response
	conv     llm.EventConverter
	opts     Options
	logger   *zap.Logger

	buf *ItemBuffer
	out chan llm.StreamItem

	sawStart   bool
	sawContent bool
	responseID string
}

func newPipeline(ctx context.Context, resp *http.Response, conv llm.EventConverter, opts Options) *pipeline {
	ctx, cancelFn := context.WithCancel(ctx)
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Buffer.Size == 0 {
		opts.Buffer = DefaultBufferConfig()
	}

	p := &pipeline{
		ctx:      ctx,
		cancelFn: cancelFn,
		resp:     resp,
		conv:     conv,
		opts:     opts,
		logger:   logger.Named("streaming"),
		buf:      NewItemBuffer(opts.Buffer),
		out:      make(chan llm.StreamItem),
	}

	if opts.Metrics != nil {
		opts.Metrics.StreamOpened(opts.Provider)
	}

	// 取消适配器：在每个项边界检查取消，取消后立即关闭输出通道，
	// 缓冲中未消费的项被丢弃。
	go func() {
		defer close(p.out)
		for {
			select {
			case <-ctx.Done():
				return
			case item, ok := <-p.buf.ReadChan():
				if !ok {
					return
				}
				select {
				case p.out <- item:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return p
}

func (p *pipeline) handle() *llm.StreamHandle {
	return llm.NewStreamHandle(p.out, p.cancel)
}

// cancel 协作取消：标记取消、丢弃连接、触发远程取消。
func (p *pipeline) cancel() {
	p.cancelFn()
	// 丢弃连接而非读尽，同时解除解码器的阻塞读
	p.resp.Body.Close()

	if p.opts.RemoteCancel != nil && p.responseID != "" {
		id := p.responseID
		fn := p.opts.RemoteCancel
		logger := p.logger
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := fn(ctx, id); err != nil {
				logger.Debug("远程取消失败（忽略）", zap.String("response_id", id), zap.Error(err))
			}
		}()
	}
}

func (p *pipeline) cancelled() bool { return p.ctx.Err() != nil }

func (p *pipeline) observe(frame llm.StreamFrame) {
	if p.opts.FrameObserver != nil {
		p.opts.FrameObserver(p.ctx, frame.Event, frame.Data)
	}
}

// emitAll 依次写出一批项，应用边界事件保护与合成补偿。
// 返回 false 表示流已取消或关闭，调用方应停止。
func (p *pipeline) emitAll(items []llm.StreamItem) bool {
	for _, item := range items {
		if !p.emit(item) {
			return false
		}
	}
	return true
}

func (p *pipeline) emit(item llm.StreamItem) bool {
	if ev := item.Event; ev != nil {
		switch ev.Type {
		case llm.EventStreamStart:
			// StreamStart 全流只允许一次
			if p.sawStart {
				return true
			}
			p.sawStart = true
			if ev.ID != "" {
				p.responseID = ev.ID
			}
		case llm.EventContentDelta:
			p.sawContent = true
		case llm.EventStreamEnd:
			// 终止前未见任何文本增量、但累计出了最终文本时，
			// 先补发一条内容增量，保证消费者拿得到正文
			if !p.sawContent && ev.FinalText != "" {
				p.sawContent = true
				if !p.write(llm.EventItem(&llm.StreamEvent{
					Type:  llm.EventContentDelta,
					ID:    ev.ID,
					Delta: ev.FinalText,
				})) {
					return false
				}
			}
		}
		if ev.ID != "" && p.responseID == "" {
			p.responseID = ev.ID
		}
	}
	return p.write(item)
}

func (p *pipeline) write(item llm.StreamItem) bool {
	if p.opts.Metrics != nil && item.Event != nil {
		p.opts.Metrics.RecordStreamEvent(p.opts.Provider, string(item.Event.Type))
	}
	if err := p.buf.Write(p.ctx, item); err != nil {
		return false
	}
	return true
}

// drainEnd 终止哨兵处理：排空转换器的收尾事件。
func (p *pipeline) drainEnd() {
	p.emitAll(p.conv.HandleStreamEnd())
}

// disconnected 连接在终止哨兵之前断开。默认不合成 StreamEnd；
// 转换器声明 FinalizeOnDisconnect 时用累计状态合成终止事件。
func (p *pipeline) disconnected() {
	if p.conv.FinalizeOnDisconnect() {
		p.logger.Debug("连接断开，按累计状态合成终止事件",
			zap.String("provider", p.opts.Provider))
		p.drainEnd()
		return
	}
	p.logger.Debug("连接在终止哨兵前断开，不合成终止事件",
		zap.String("provider", p.opts.Provider))
}

// close 进入 Closed 状态：关闭缓冲并释放连接。
func (p *pipeline) close() {
	p.buf.Close()
	p.resp.Body.Close()
	if p.opts.Metrics != nil {
		p.opts.Metrics.StreamClosed(p.opts.Provider)
	}
}
