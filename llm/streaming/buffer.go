package streaming

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/BaSui01/unillm/llm"
)

var (
	ErrBufferFull   = errors.New("buffer full, backpressure applied")
	ErrStreamClosed = errors.New("stream closed")
)

// BufferConfig 配置有界缓冲行为。
type BufferConfig struct {
	Size          int        `json:"size"`
	HighWaterMark float64    `json:"high_water_mark"` // 0.0-1.0
	LowWaterMark  float64    `json:"low_water_mark"`  // 0.0-1.0
	DropPolicy    DropPolicy `json:"drop_policy"`
}

// DropPolicy 定义缓冲到达高水位时的行为。
type DropPolicy int

const (
	DropPolicyBlock  DropPolicy = iota // 阻塞生产者（默认，向解码器施加反压）
	DropPolicyOldest                   // 丢弃最旧的项
	DropPolicyNewest                   // 丢弃当前项
	DropPolicyError                    // 返回 ErrBufferFull
)

// DefaultBufferConfig 返回流水线默认配置。
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		Size:          256,
		HighWaterMark: 0.8,
		LowWaterMark:  0.2,
		DropPolicy:    DropPolicyBlock,
	}
}

// ItemBuffer 是解码器与消费者之间的有界缓冲。
// 消费者阻塞时按策略向解码器施加反压。
type ItemBuffer struct {
	config BufferConfig
	buffer chan llm.StreamItem
	done   chan struct{}
	closed atomic.Bool

	// 指标
	produced  atomic.Int64
	consumed  atomic.Int64
	dropped   atomic.Int64
	blocked   atomic.Int64
	paused    atomic.Bool
	lastWrite atomic.Int64
}

// NewItemBuffer 创建有界缓冲。
func NewItemBuffer(config BufferConfig) *ItemBuffer {
	if config.Size <= 0 {
		config.Size = DefaultBufferConfig().Size
	}
	return &ItemBuffer{
		config: config,
		buffer: make(chan llm.StreamItem, config.Size),
		done:   make(chan struct{}),
	}
}

// Write 将一项写入缓冲，按策略处理高水位。
func (b *ItemBuffer) Write(ctx context.Context, item llm.StreamItem) error {
	if b.closed.Load() {
		return ErrStreamClosed
	}

	b.lastWrite.Store(time.Now().UnixNano())

	level := float64(len(b.buffer)) / float64(b.config.Size)
	if level >= b.config.HighWaterMark {
		b.paused.Store(true)
		b.blocked.Add(1)

		switch b.config.DropPolicy {
		case DropPolicyBlock:
			// 等待消费者腾出空间
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-b.done:
				return ErrStreamClosed
			case b.buffer <- item:
				b.produced.Add(1)
				return nil
			}

		case DropPolicyOldest:
			select {
			case <-b.buffer:
				b.dropped.Add(1)
			default:
			}

		case DropPolicyNewest:
			b.dropped.Add(1)
			return nil

		case DropPolicyError:
			return ErrBufferFull
		}
	}

	if level <= b.config.LowWaterMark {
		b.paused.Store(false)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrStreamClosed
	case b.buffer <- item:
		b.produced.Add(1)
		return nil
	}
}

// ReadChan 返回底层通道供消费。
func (b *ItemBuffer) ReadChan() <-chan llm.StreamItem {
	return b.buffer
}

// Read 读取一项，缓冲关闭且排空后返回 ErrStreamClosed。
func (b *ItemBuffer) Read(ctx context.Context) (llm.StreamItem, error) {
	select {
	case <-ctx.Done():
		return llm.StreamItem{}, ctx.Err()
	case item, ok := <-b.buffer:
		if !ok {
			return llm.StreamItem{}, ErrStreamClosed
		}
		b.consumed.Add(1)
		return item, nil
	}
}

// Close 关闭缓冲。幂等。
func (b *ItemBuffer) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	close(b.done)
	close(b.buffer)
	return nil
}

// IsPaused 返回是否处于反压暂停状态。
func (b *ItemBuffer) IsPaused() bool { return b.paused.Load() }

// Level 返回当前缓冲占用率（0.0-1.0）。
func (b *ItemBuffer) Level() float64 {
	return float64(len(b.buffer)) / float64(b.config.Size)
}

// Stats 返回缓冲统计。
func (b *ItemBuffer) Stats() BufferStats {
	return BufferStats{
		Produced: b.produced.Load(),
		Consumed: b.consumed.Load(),
		Dropped:  b.dropped.Load(),
		Blocked:  b.blocked.Load(),
		Size:     len(b.buffer),
		Cap:      b.config.Size,
		IsPaused: b.paused.Load(),
	}
}

// BufferStats 缓冲统计信息。
type BufferStats struct {
	Produced int64 `json:"produced"`
	Consumed int64 `json:"consumed"`
	Dropped  int64 `json:"dropped"`
	Blocked  int64 `json:"blocked"`
	Size     int   `json:"size"`
	Cap      int   `json:"cap"`
	IsPaused bool  `json:"is_paused"`
}
