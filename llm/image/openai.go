package image

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/unillm/llm/httpexec"
	"github.com/BaSui01/unillm/types"
)

// OpenAIProvider 使用 OpenAI Images API 生成、编辑图像.
type OpenAIProvider struct {
	cfg     OpenAIConfig
	exec    *httpexec.Executor
	baseURL string
	headers httpexec.HeaderFunc
}

// NewOpenAIProvider 创建 OpenAI 图像提供者.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	def := DefaultOpenAIConfig()
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
	return &OpenAIProvider{
		cfg:     cfg,
		exec:    exec,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: headers,
	}
}

type dalleRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	Style          string `json:"style,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
	User           string `json:"user,omitempty"`
}

type dalleResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL           string `json:"url,omitempty"`
		B64JSON       string `json:"b64_json,omitempty"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
	} `json:"data"`
}

// Generate 根据提示词生成图像.
func (p *OpenAIProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if req.Prompt == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "图像提示词不能为空").WithProvider(p.Name())
	}
	body := dalleRequest{
		Model:          chooseModel(req.Model, p.cfg.Model),
		Prompt:         req.Prompt,
		N:              req.N,
		Size:           req.Size,
		Quality:        req.Quality,
		Style:          req.Style,
		ResponseFormat: req.ResponseFormat,
		User:           req.User,
	}
	if body.N == 0 {
		body.N = 1
	}
	if body.Size == "" {
		body.Size = "1024x1024"
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("序列化图像请求失败: %v", err)).WithProvider(p.Name()).WithCause(err)
	}
	resp, err := p.exec.Execute(ctx, &httpexec.Request{
		Provider:     p.Name(),
		Operation:    "image.generate",
		Method:       http.MethodPost,
		URL:          p.baseURL + "/v1/images/generations",
		Body:         payload,
		HeaderSource: p.headers,
	})
	if err != nil {
		return nil, err
	}
	return p.parseResponse(resp.Body, body.Model)
}

// Edit 基于原图与可选遮罩编辑图像.
func (p *OpenAIProvider) Edit(ctx context.Context, req *EditRequest) (*GenerateResponse, error) {
	if req.Image == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "编辑请求缺少原图").WithProvider(p.Name())
	}
	if req.Prompt == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "编辑请求缺少提示词").WithProvider(p.Name())
	}
	imgData, err := io.ReadAll(req.Image)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("读取原图失败: %v", err)).WithProvider(p.Name()).WithCause(err)
	}
	files := []httpexec.MultipartFile{
		{Field: "image", Filename: orDefault(req.ImageFilename, "image.png"), Data: imgData},
	}
	if req.Mask != nil {
		maskData, err := io.ReadAll(req.Mask)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidRequest,
				fmt.Sprintf("读取遮罩失败: %v", err)).WithProvider(p.Name()).WithCause(err)
		}
		files = append(files, httpexec.MultipartFile{
			Field: "mask", Filename: orDefault(req.MaskFilename, "mask.png"), Data: maskData,
		})
	}
	model := chooseModel(req.Model, "dall-e-2") // 编辑接口不支持 dall-e-3
	fields := map[string]string{
		"model":  model,
		"prompt": req.Prompt,
	}
	fillCommonFields(fields, req.N, req.Size, req.ResponseFormat)

	resp, err := p.exec.ExecuteMultipart(ctx, &httpexec.Request{
		Provider:     p.Name(),
		Operation:    "image.edit",
		Method:       http.MethodPost,
		URL:          p.baseURL + "/v1/images/edits",
		HeaderSource: p.headers,
	}, fields, files)
	if err != nil {
		return nil, err
	}
	return p.parseResponse(resp.Body, model)
}

// CreateVariation 生成原图的变体.
func (p *OpenAIProvider) CreateVariation(ctx context.Context, req *VariationRequest) (*GenerateResponse, error) {
	if req.Image == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "变体请求缺少原图").WithProvider(p.Name())
	}
	imgData, err := io.ReadAll(req.Image)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("读取原图失败: %v", err)).WithProvider(p.Name()).WithCause(err)
	}
	model := chooseModel(req.Model, "dall-e-2")
	fields := map[string]string{"model": model}
	fillCommonFields(fields, req.N, req.Size, req.ResponseFormat)

	resp, err := p.exec.ExecuteMultipart(ctx, &httpexec.Request{
		Provider:     p.Name(),
		Operation:    "image.variation",
		Method:       http.MethodPost,
		URL:          p.baseURL + "/v1/images/variations",
		HeaderSource: p.headers,
	}, fields, []httpexec.MultipartFile{
		{Field: "image", Filename: orDefault(req.ImageFilename, "image.png"), Data: imgData},
	})
	if err != nil {
		return nil, err
	}
	return p.parseResponse(resp.Body, model)
}

func (p *OpenAIProvider) parseResponse(body []byte, model string) (*GenerateResponse, error) {
	var dr dalleResponse
	if err := httpexec.DecodeJSON(body, &dr); err != nil {
		return nil, err
	}
	images := make([]ImageData, len(dr.Data))
	for i, d := range dr.Data {
		images[i] = ImageData{
			URL:           d.URL,
			B64JSON:       d.B64JSON,
			RevisedPrompt: d.RevisedPrompt,
		}
	}
	created := time.Now()
	if dr.Created > 0 {
		created = time.Unix(dr.Created, 0)
	}
	return &GenerateResponse{
		Provider:  p.Name(),
		Model:     model,
		Images:    images,
		CreatedAt: created,
	}, nil
}

// Name 返回提供者名称.
func (p *OpenAIProvider) Name() string { return "openai-image" }

// SupportedSizes 返回支持的图像尺寸.
func (p *OpenAIProvider) SupportedSizes() []string {
	return []string{"1024x1024", "1792x1024", "1024x1792", "512x512", "256x256"}
}

func chooseModel(reqModel, cfgModel string) string {
	if reqModel != "" {
		return reqModel
	}
	return cfgModel
}

func orDefault(s, def string) string {
	if s != "" {
		return s
	}
	return def
}

func fillCommonFields(fields map[string]string, n int, size, format string) {
	if n > 0 {
		fields["n"] = strconv.Itoa(n)
	}
	if size != "" {
		fields["size"] = size
	}
	if format != "" {
		fields["response_format"] = format
	}
}

var _ Provider = (*OpenAIProvider)(nil)
