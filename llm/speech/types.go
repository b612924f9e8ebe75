package speech

import (
	"context"
	"io"
	"time"
)

// ============================================================
// 文本转语音(TTS)
// ============================================================

// TTSRequest 文本转语音请求.
type TTSRequest struct {
	Text           string  `json:"text"`
	Model          string  `json:"model,omitempty"`
	Voice          string  `json:"voice,omitempty"`
	Speed          float64 `json:"speed,omitempty"`           // 0.25-4.0
	ResponseFormat string  `json:"response_format,omitempty"` // mp3, opus, aac, flac, wav, pcm
	Language       string  `json:"language,omitempty"`
}

// TTSResponse 文本转语音响应。AudioData 为完整音频字节。
type TTSResponse struct {
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	AudioData []byte    `json:"audio_data,omitempty"`
	Format    string    `json:"format"`
	CharCount int       `json:"char_count,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TTSProvider 定义 TTS 提供者接口.
type TTSProvider interface {
	// Synthesize 将文本转换为语音。
	Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error)

	// SynthesizeToFile 将文本转换为语音并写入文件。
	SynthesizeToFile(ctx context.Context, req *TTSRequest, filepath string) error

	// ListVoices 返回可用声音。
	ListVoices(ctx context.Context) ([]Voice, error)

	// Name 返回提供者名称。
	Name() string
}

// Voice 一个可用声音.
type Voice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Language    string `json:"language,omitempty"`
	Gender      string `json:"gender,omitempty"` // male, female, neutral
	Description string `json:"description,omitempty"`
}

// ============================================================
// 语音转文本(STT)
// ============================================================

// STTRequest 语音转文本请求.
type STTRequest struct {
	Audio                  io.Reader `json:"-"`
	Filename               string    `json:"-"`
	Model                  string    `json:"model,omitempty"`
	Language               string    `json:"language,omitempty"`        // ISO-639-1
	Prompt                 string    `json:"prompt,omitempty"`          // 上下文提示
	ResponseFormat         string    `json:"response_format,omitempty"` // json, text, srt, vtt, verbose_json
	Temperature            float64   `json:"temperature,omitempty"`
	TimestampGranularities []string  `json:"timestamp_granularities,omitempty"` // word, segment
}

// STTResponse 语音转文本响应.
type STTResponse struct {
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Text      string        `json:"text"`
	Language  string        `json:"language,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Segments  []Segment     `json:"segments,omitempty"`
	Words     []Word        `json:"words,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Segment 转写片段.
type Segment struct {
	ID    int           `json:"id"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// Word 带时间戳的转写词.
type Word struct {
	Word  string        `json:"word"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// STTProvider 定义 STT 提供者接口.
type STTProvider interface {
	// Transcribe 将语音转换为文本。
	Transcribe(ctx context.Context, req *STTRequest) (*STTResponse, error)

	// TranscribeFile 转写音频文件。
	TranscribeFile(ctx context.Context, filepath string, opts *STTRequest) (*STTResponse, error)

	// Name 返回提供者名称。
	Name() string

	// SupportedFormats 返回支持的音频格式。
	SupportedFormats() []string
}
