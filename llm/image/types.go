package image

import (
	"context"
	"io"
	"time"
)

// GenerateRequest 图像生成请求.
type GenerateRequest struct {
	Prompt         string `json:"prompt"`
	Model          string `json:"model,omitempty"`
	N              int    `json:"n,omitempty"`               // 生成数量
	Size           string `json:"size,omitempty"`            // 1024x1024 等
	Quality        string `json:"quality,omitempty"`         // standard / hd
	Style          string `json:"style,omitempty"`           // vivid / natural
	ResponseFormat string `json:"response_format,omitempty"` // url / b64_json
	User           string `json:"user,omitempty"`
}

// GenerateResponse 图像生成响应.
type GenerateResponse struct {
	Provider  string      `json:"provider"`
	Model     string      `json:"model,omitempty"`
	Images    []ImageData `json:"images"`
	Usage     ImageUsage  `json:"usage,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// ImageData 单张图像数据.
type ImageData struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	MimeType      string `json:"mime_type,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// ImageUsage 图像生成用量.
type ImageUsage struct {
	PromptTokens int `json:"prompt_tokens,omitempty"`
	TotalTokens  int `json:"total_tokens,omitempty"`
}

// EditRequest 图像编辑请求。Image 为必填,Mask 可选。
type EditRequest struct {
	Image          io.Reader
	ImageFilename  string
	Mask           io.Reader
	MaskFilename   string
	Prompt         string
	Model          string
	N              int
	Size           string
	ResponseFormat string
}

// VariationRequest 图像变体请求.
type VariationRequest struct {
	Image          io.Reader
	ImageFilename  string
	Model          string
	N              int
	Size           string
	ResponseFormat string
}

// Provider 图像生成提供者接口.
type Provider interface {
	// Generate 根据提示词生成图像。
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// Edit 基于原图与可选遮罩编辑图像。不支持时返回 ErrUnsupported。
	Edit(ctx context.Context, req *EditRequest) (*GenerateResponse, error)

	// CreateVariation 生成原图的变体。不支持时返回 ErrUnsupported。
	CreateVariation(ctx context.Context, req *VariationRequest) (*GenerateResponse, error)

	// Name 返回提供者名称。
	Name() string

	// SupportedSizes 返回支持的图像尺寸。
	SupportedSizes() []string
}
