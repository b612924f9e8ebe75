package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/BaSui01/unillm/llm/httpexec"
	"github.com/BaSui01/unillm/types"
)

// OpenAITTSProvider 使用 OpenAI Audio API 合成语音.
type OpenAITTSProvider struct {
	cfg     OpenAITTSConfig
	exec    *httpexec.Executor
	baseURL string
	headers httpexec.HeaderFunc
}

// NewOpenAITTSProvider 创建 OpenAI TTS 提供者.
func NewOpenAITTSProvider(cfg OpenAITTSConfig) *OpenAITTSProvider {
	def := DefaultOpenAITTSConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Voice == "" {
		cfg.Voice = def.Voice
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
	return &OpenAITTSProvider{
		cfg:     cfg,
		exec:    exec,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: headers,
	}
}

// Name 返回提供者名称.
func (p *OpenAITTSProvider) Name() string { return "openai-tts" }

type openAITTSRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// Synthesize 将文本转换为语音,返回完整音频字节.
func (p *OpenAITTSProvider) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error) {
	if req.Text == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "合成文本不能为空").WithProvider(p.Name())
	}
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	voice := req.Voice
	if voice == "" {
		voice = p.cfg.Voice
	}
	format := req.ResponseFormat
	if format == "" {
		format = "mp3"
	}

	body := openAITTSRequest{
		Model:          model,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: format,
	}
	if req.Speed > 0 {
		body.Speed = req.Speed
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("序列化合成请求失败: %v", err)).WithProvider(p.Name()).WithCause(err)
	}

	resp, err := p.exec.Execute(ctx, &httpexec.Request{
		Provider:     p.Name(),
		Operation:    "speech.synthesize",
		Method:       http.MethodPost,
		URL:          p.baseURL + "/v1/audio/speech",
		Body:         payload,
		HeaderSource: p.headers,
	})
	if err != nil {
		return nil, err
	}
	return &TTSResponse{
		Provider:  p.Name(),
		Model:     model,
		AudioData: resp.Body,
		Format:    format,
		CharCount: len([]rune(req.Text)),
		CreatedAt: time.Now(),
	}, nil
}

// SynthesizeToFile 将文本转换为语音并写入文件.
func (p *OpenAITTSProvider) SynthesizeToFile(ctx context.Context, req *TTSRequest, filepath string) error {
	resp, err := p.Synthesize(ctx, req)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, resp.AudioData, 0o644)
}

// ListVoices 返回 OpenAI 内置声音列表.
func (p *OpenAITTSProvider) ListVoices(ctx context.Context) ([]Voice, error) {
	return []Voice{
		{ID: "alloy", Name: "Alloy", Gender: "neutral"},
		{ID: "echo", Name: "Echo", Gender: "male"},
		{ID: "fable", Name: "Fable", Gender: "neutral"},
		{ID: "onyx", Name: "Onyx", Gender: "male"},
		{ID: "nova", Name: "Nova", Gender: "female"},
		{ID: "shimmer", Name: "Shimmer", Gender: "female"},
	}, nil
}

var _ TTSProvider = (*OpenAITTSProvider)(nil)
