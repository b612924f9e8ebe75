package image

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/unillm/llm/httpexec"
	"github.com/BaSui01/unillm/types"
)

// GeminiProvider 通过 generateContent 的 IMAGE 响应模态生成图像.
type GeminiProvider struct {
	cfg     GeminiConfig
	exec    *httpexec.Executor
	baseURL string
	headers httpexec.HeaderFunc
}

// NewGeminiProvider 创建 Gemini 图像提供者.
func NewGeminiProvider(cfg GeminiConfig) *GeminiProvider {
	def := DefaultGeminiConfig()
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
	headers := func(ctx context.Context) (http.Header, error) {
		h := make(http.Header)
		if cfg.TokenProvider != nil {
			tok, err := cfg.TokenProvider.Token(ctx)
			if err != nil {
				return nil, err
			}
			h.Set("Authorization", "Bearer "+tok)
			return h, nil
		}
		h.Set("x-goog-api-key", cfg.APIKey)
		return h, nil
	}
	return &GeminiProvider{
		cfg:     cfg,
		exec:    exec,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: headers,
	}
}

type geminiImageRequest struct {
	Contents         []geminiImageContent `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
	} `json:"generationConfig"`
}

type geminiImageContent struct {
	Role  string `json:"role,omitempty"`
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

type geminiImageResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text       string `json:"text,omitempty"`
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount int `json:"promptTokenCount"`
		TotalTokenCount  int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion,omitempty"`
}

// Generate 根据提示词生成图像.
func (p *GeminiProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if req.Prompt == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "图像提示词不能为空").WithProvider(p.Name())
	}
	model := chooseModel(req.Model, p.cfg.Model)

	var body geminiImageRequest
	body.Contents = []geminiImageContent{{
		Role: "user",
		Parts: []struct {
			Text string `json:"text"`
		}{{Text: req.Prompt}},
	}}
	body.GenerationConfig.ResponseModalities = []string{"TEXT", "IMAGE"}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("序列化图像请求失败: %v", err)).WithProvider(p.Name()).WithCause(err)
	}
	resp, err := p.exec.Execute(ctx, &httpexec.Request{
		Provider:     p.Name(),
		Operation:    "image.generate",
		Method:       http.MethodPost,
		URL:          fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model),
		Body:         payload,
		HeaderSource: p.headers,
	})
	if err != nil {
		return nil, err
	}

	var gr geminiImageResponse
	if err := httpexec.DecodeJSON(resp.Body, &gr); err != nil {
		return nil, err
	}
	var images []ImageData
	var revised string
	for _, cand := range gr.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil {
				images = append(images, ImageData{
					B64JSON:  part.InlineData.Data,
					MimeType: part.InlineData.MimeType,
				})
			} else if part.Text != "" {
				// 伴随文本作为修订提示词返回
				revised = part.Text
			}
		}
	}
	if len(images) == 0 {
		return nil, types.NewError(types.ErrParse, "响应未包含图像数据").WithProvider(p.Name())
	}
	if revised != "" {
		images[0].RevisedPrompt = revised
	}
	respModel := gr.ModelVersion
	if respModel == "" {
		respModel = model
	}
	return &GenerateResponse{
		Provider: p.Name(),
		Model:    respModel,
		Images:   images,
		Usage: ImageUsage{
			PromptTokens: gr.UsageMetadata.PromptTokenCount,
			TotalTokens:  gr.UsageMetadata.TotalTokenCount,
		},
		CreatedAt: time.Now(),
	}, nil
}

// Edit 暂不支持.
func (p *GeminiProvider) Edit(ctx context.Context, req *EditRequest) (*GenerateResponse, error) {
	return nil, types.NewError(types.ErrUnsupported, "gemini 图像提供者不支持编辑").WithProvider(p.Name())
}

// CreateVariation 暂不支持.
func (p *GeminiProvider) CreateVariation(ctx context.Context, req *VariationRequest) (*GenerateResponse, error) {
	return nil, types.NewError(types.ErrUnsupported, "gemini 图像提供者不支持变体").WithProvider(p.Name())
}

// Name 返回提供者名称.
func (p *GeminiProvider) Name() string { return "gemini-image" }

// SupportedSizes Gemini 不接受显式尺寸参数.
func (p *GeminiProvider) SupportedSizes() []string { return nil }

var _ Provider = (*GeminiProvider)(nil)
