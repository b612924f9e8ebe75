package streaming

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/unillm/llm"
	"github.com/BaSui01/unillm/types"
)

// echoConverter 把每帧 data 原样转成一条内容增量，data 为 "bad" 时
// 产生带内错误。用于验证流水线本身的语义。
type echoConverter struct {
	ended    atomic.Bool
	finalize bool
	final    string
}

func (c *echoConverter) ConvertFrame(frame llm.StreamFrame) []llm.StreamItem {
	if frame.Data == "bad" {
		return []llm.StreamItem{llm.ErrItem(types.NewError(types.ErrParse, "坏帧"))}
	}
	c.final += frame.Data
	return []llm.StreamItem{llm.EventItem(&llm.StreamEvent{
		Type:  llm.EventContentDelta,
		Delta: frame.Data,
	})}
}

func (c *echoConverter) HandleStreamEnd() []llm.StreamItem {
	if c.ended.Swap(true) {
		return nil
	}
	return []llm.StreamItem{llm.EventItem(&llm.StreamEvent{
		Type:         llm.EventStreamEnd,
		FinishReason: "stop",
		FinalText:    c.final,
	})}
}

func (c *echoConverter) FinalizeOnDisconnect() bool { return c.finalize }

func (c *echoConverter) SerializeEvent(*llm.StreamEvent) ([]byte, bool) { return nil, false }

func sseResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func collect(t *testing.T, h *llm.StreamHandle) []llm.StreamItem {
	t.Helper()
	var items []llm.StreamItem
	timeout := time.After(5 * time.Second)
	for {
		select {
		case item, ok := <-h.Events():
			if !ok {
				return items
			}
			items = append(items, item)
		case <-timeout:
			t.Fatal("等待流关闭超时")
		}
	}
}

func TestSSEStream_DecodeAndDone(t *testing.T) {
	resp := sseResponse("data: hello\n\ndata:  world\n\ndata: [DONE]\n\ndata: after\n\n")
	conv := &echoConverter{}

	h := NewSSEStream(context.Background(), resp, conv, Options{Provider: "test"})
	items := collect(t, h)

	require.Len(t, items, 3)
	assert.Equal(t, "hello", items[0].Event.Delta)
	assert.Equal(t, " world", items[1].Event.Delta)
	assert.Equal(t, llm.EventStreamEnd, items[2].Event.Type, "[DONE] 之后应排空终止事件")
	assert.Equal(t, "stop", items[2].Event.FinishReason)
}

func TestSSEStream_FrameObserverSeesEveryFrame(t *testing.T) {
	resp := sseResponse("data: a\n\ndata: b\n\ndata: [DONE]\n\n")
	var frames []string
	h := NewSSEStream(context.Background(), resp, &echoConverter{}, Options{
		Provider: "test",
		FrameObserver: func(_ context.Context, _ string, data string) {
			frames = append(frames, data)
		},
	})
	collect(t, h)
	assert.Equal(t, []string{"a", "b", "[DONE]"}, frames,
		"观察者应看到全部帧,含终止哨兵")
}

func TestSSEStream_FrameObserverOnJSONFallback(t *testing.T) {
	resp := &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"whole":"body"}`)),
	}
	var frames []string
	h := NewSSEStream(context.Background(), resp, &echoConverter{}, Options{
		Provider: "test",
		FrameObserver: func(_ context.Context, _ string, data string) {
			frames = append(frames, data)
		},
	})
	collect(t, h)
	require.Len(t, frames, 1, "单帧回退下整个响应体作为一帧被观察")
	assert.Equal(t, `{"whole":"body"}`, frames[0])
}

func TestSSEStream_MalformedFrameIsInBand(t *testing.T) {
	resp := sseResponse("data: ok\n\ndata: bad\n\ndata: again\n\ndata: [DONE]\n\n")
	conv := &echoConverter{}

	h := NewSSEStream(context.Background(), resp, conv, Options{Provider: "test"})
	items := collect(t, h)

	require.Len(t, items, 4)
	assert.Nil(t, items[1].Event)
	assert.Equal(t, types.ErrParse, types.GetErrorCode(items[1].Err), "坏帧应产生带内错误")
	assert.Equal(t, "again", items[2].Event.Delta, "带内错误后解码应继续")
	assert.Equal(t, llm.EventStreamEnd, items[3].Event.Type)
}

func TestSSEStream_DisconnectWithoutFinalize(t *testing.T) {
	// 没有 [DONE] 直接 EOF
	resp := sseResponse("data: partial\n\n")
	conv := &echoConverter{finalize: false}

	h := NewSSEStream(context.Background(), resp, conv, Options{Provider: "test"})
	items := collect(t, h)

	require.Len(t, items, 1)
	assert.Equal(t, "partial", items[0].Event.Delta)
	// 默认不合成 StreamEnd
	for _, it := range items {
		if it.Event != nil {
			assert.NotEqual(t, llm.EventStreamEnd, it.Event.Type)
		}
	}
}

func TestSSEStream_DisconnectWithFinalize(t *testing.T) {
	resp := sseResponse("data: partial\n\n")
	conv := &echoConverter{finalize: true}

	h := NewSSEStream(context.Background(), resp, conv, Options{Provider: "test"})
	items := collect(t, h)

	require.Len(t, items, 2)
	assert.Equal(t, llm.EventStreamEnd, items[1].Event.Type, "声明 finalize 时应合成终止事件")
}

func TestSSEStream_SynthesizesContentDeltaFromFinalText(t *testing.T) {
	// 转换器只在收尾时给出 FinalText，中途没有任何内容增量
	resp := sseResponse("data: [DONE]\n\n")
	conv := &echoConverter{final: "accumulated"}
	conv.final = "accumulated"

	h := NewSSEStream(context.Background(), resp, conv, Options{Provider: "test"})
	items := collect(t, h)

	require.Len(t, items, 2)
	assert.Equal(t, llm.EventContentDelta, items[0].Event.Type, "无增量时应从最终文本补发内容")
	assert.Equal(t, "accumulated", items[0].Event.Delta)
	assert.Equal(t, llm.EventStreamEnd, items[1].Event.Type)
}

func TestSSEStream_JSONBodyFallback(t *testing.T) {
	resp := &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"whole":"body"}`)),
	}
	conv := &echoConverter{}

	h := NewSSEStream(context.Background(), resp, conv, Options{Provider: "test"})
	items := collect(t, h)

	require.Len(t, items, 2, "非 SSE 响应应作为单帧处理后收尾")
	assert.Equal(t, `{"whole":"body"}`, items[0].Event.Delta)
	assert.Equal(t, llm.EventStreamEnd, items[1].Event.Type)
}

func TestSSEStream_CancelStopsEmission(t *testing.T) {
	pr, pw := io.Pipe()
	resp := &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		Body:       pr,
	}
	conv := &echoConverter{}

	h := NewSSEStream(context.Background(), resp, conv, Options{Provider: "test"})

	// 先送一帧并确认收到
	go pw.Write([]byte("data: one\n\n"))
	select {
	case item := <-h.Events():
		require.NotNil(t, item.Event)
		assert.Equal(t, "one", item.Event.Delta)
	case <-time.After(2 * time.Second):
		t.Fatal("等待首个事件超时")
	}

	h.Cancel()
	// 多次取消安全
	h.Cancel()

	// 取消后通道应关闭，且不再产出任何事件
	timeout := time.After(2 * time.Second)
	for {
		select {
		case item, ok := <-h.Events():
			if !ok {
				pw.Close()
				return
			}
			t.Fatalf("取消后不应再有事件: %+v", item)
		case <-timeout:
			t.Fatal("取消后通道未关闭")
		}
	}
}

func TestSSEStream_RemoteCancelBestEffort(t *testing.T) {
	var cancelledID atomic.Value
	done := make(chan struct{})

	pr, pw := io.Pipe()
	resp := &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		Body:       pr,
	}

	conv := &idConverter{}
	h := NewSSEStream(context.Background(), resp, conv, Options{
		Provider: "test",
		RemoteCancel: func(ctx context.Context, id string) error {
			cancelledID.Store(id)
			close(done)
			return nil
		},
	})

	go pw.Write([]byte("data: start\n\n"))
	item := <-h.Events()
	require.NotNil(t, item.Event)
	require.Equal(t, "resp_42", item.Event.ID)

	h.Cancel()

	select {
	case <-done:
		assert.Equal(t, "resp_42", cancelledID.Load(), "远程取消应携带响应 ID")
	case <-time.After(2 * time.Second):
		t.Fatal("远程取消未被触发")
	}
	pw.Close()
}

// idConverter 产出带响应 ID 的 StreamStart。
type idConverter struct{}

func (idConverter) ConvertFrame(llm.StreamFrame) []llm.StreamItem {
	return []llm.StreamItem{llm.EventItem(&llm.StreamEvent{
		Type: llm.EventStreamStart,
		ID:   "resp_42",
	})}
}
func (idConverter) HandleStreamEnd() []llm.StreamItem                { return nil }
func (idConverter) FinalizeOnDisconnect() bool                       { return false }
func (idConverter) SerializeEvent(*llm.StreamEvent) ([]byte, bool)   { return nil, false }

// dupStartConverter 每帧都试图发 StreamStart，用于验证全流只放行一次。
type dupStartConverter struct{}

func (dupStartConverter) ConvertFrame(f llm.StreamFrame) []llm.StreamItem {
	return []llm.StreamItem{
		llm.EventItem(&llm.StreamEvent{Type: llm.EventStreamStart, ID: "x"}),
		llm.EventItem(&llm.StreamEvent{Type: llm.EventContentDelta, Delta: f.Data}),
	}
}
func (dupStartConverter) HandleStreamEnd() []llm.StreamItem              { return nil }
func (dupStartConverter) FinalizeOnDisconnect() bool                     { return false }
func (dupStartConverter) SerializeEvent(*llm.StreamEvent) ([]byte, bool) { return nil, false }

func TestSSEStream_StreamStartExactlyOnce(t *testing.T) {
	resp := sseResponse("data: a\n\ndata: b\n\n")
	h := NewSSEStream(context.Background(), resp, dupStartConverter{}, Options{Provider: "test"})
	items := collect(t, h)

	starts := 0
	for _, it := range items {
		if it.Event != nil && it.Event.Type == llm.EventStreamStart {
			starts++
		}
	}
	assert.Equal(t, 1, starts, "StreamStart 全流只允许一次")
}

func TestJSONLStream_Decode(t *testing.T) {
	resp := &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"application/jsonl"}},
		Body:       io.NopCloser(strings.NewReader("{\"a\":1}\n\n{\"b\":2}\n")),
	}
	conv := &echoConverter{}

	h := NewJSONLStream(context.Background(), resp, conv, Options{Provider: "test"})
	items := collect(t, h)

	require.Len(t, items, 2, "JSONL 每行一帧，空行跳过")
	assert.Equal(t, `{"a":1}`, items[0].Event.Delta)
	assert.Equal(t, `{"b":2}`, items[1].Event.Delta)
}
