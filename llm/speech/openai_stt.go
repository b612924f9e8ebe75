package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/unillm/llm/httpexec"
	"github.com/BaSui01/unillm/types"
)

// OpenAISTTProvider 使用 OpenAI Whisper API 转写语音.
type OpenAISTTProvider struct {
	cfg     OpenAISTTConfig
	exec    *httpexec.Executor
	baseURL string
	headers httpexec.HeaderFunc
}

// NewOpenAISTTProvider 创建 OpenAI STT 提供者.
func NewOpenAISTTProvider(cfg OpenAISTTConfig) *OpenAISTTProvider {
	def := DefaultOpenAISTTConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	exec := cfg.Executor
	if exec == nil {
		exec = httpexec.New(httpexec.Options{Logger: cfg.Logger})
	}
	headers := func(context.Context) (http.Header, error) {
		h := make(http.Header)
		h.Set("Authorization", "Bearer "+cfg.APIKey)
		return h, nil
	}
	return &OpenAISTTProvider{
		cfg:     cfg,
		exec:    exec,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: headers,
	}
}

// Name 返回提供者名称.
func (p *OpenAISTTProvider) Name() string { return "openai-stt" }

// SupportedFormats 返回 Whisper 支持的音频格式.
func (p *OpenAISTTProvider) SupportedFormats() []string {
	return []string{"flac", "m4a", "mp3", "mp4", "mpeg", "mpga", "oga", "ogg", "wav", "webm"}
}

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments,omitempty"`
	Words []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words,omitempty"`
}

// Transcribe 将语音转换为文本.
func (p *OpenAISTTProvider) Transcribe(ctx context.Context, req *STTRequest) (*STTResponse, error) {
	if req.Audio == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "转写请求缺少音频输入").WithProvider(p.Name())
	}
	audioData, err := io.ReadAll(req.Audio)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("读取音频失败: %v", err)).WithProvider(p.Name()).WithCause(err)
	}

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	format := req.ResponseFormat
	if format == "" {
		format = "verbose_json"
	}

	fields := map[string]string{
		"model":           model,
		"response_format": format,
	}
	if req.Language != "" {
		fields["language"] = req.Language
	}
	if req.Prompt != "" {
		fields["prompt"] = req.Prompt
	}
	if req.Temperature > 0 {
		fields["temperature"] = strconv.FormatFloat(req.Temperature, 'f', -1, 64)
	}
	if len(req.TimestampGranularities) > 0 {
		// 字段表为单值,仅传第一个粒度
		fields["timestamp_granularities[]"] = req.TimestampGranularities[0]
	}

	resp, err := p.exec.ExecuteMultipart(ctx, &httpexec.Request{
		Provider:     p.Name(),
		Operation:    "speech.transcribe",
		Method:       http.MethodPost,
		URL:          p.baseURL + "/v1/audio/transcriptions",
		HeaderSource: p.headers,
	}, fields, []httpexec.MultipartFile{
		{Field: "file", Filename: orDefaultName(req.Filename, "audio.mp3"), Data: audioData},
	})
	if err != nil {
		return nil, err
	}

	var wResp whisperResponse
	if err := httpexec.DecodeJSON(resp.Body, &wResp); err != nil {
		return nil, err
	}

	result := &STTResponse{
		Provider:  p.Name(),
		Model:     model,
		Text:      wResp.Text,
		Language:  wResp.Language,
		Duration:  time.Duration(wResp.Duration * float64(time.Second)),
		CreatedAt: time.Now(),
	}
	for _, s := range wResp.Segments {
		result.Segments = append(result.Segments, Segment{
			ID:    s.ID,
			Start: time.Duration(s.Start * float64(time.Second)),
			End:   time.Duration(s.End * float64(time.Second)),
			Text:  s.Text,
		})
	}
	for _, w := range wResp.Words {
		result.Words = append(result.Words, Word{
			Word:  w.Word,
			Start: time.Duration(w.Start * float64(time.Second)),
			End:   time.Duration(w.End * float64(time.Second)),
		})
	}
	return result, nil
}

// TranscribeFile 转写音频文件.
func (p *OpenAISTTProvider) TranscribeFile(ctx context.Context, path string, opts *STTRequest) (*STTResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("打开音频文件失败: %v", err)).WithProvider(p.Name()).WithCause(err)
	}
	defer file.Close()

	if opts == nil {
		opts = &STTRequest{}
	}
	opts.Audio = file
	if opts.Filename == "" {
		opts.Filename = filepath.Base(path)
	}
	return p.Transcribe(ctx, opts)
}

func orDefaultName(s, def string) string {
	if s != "" {
		return s
	}
	return def
}

var _ STTProvider = (*OpenAISTTProvider)(nil)
