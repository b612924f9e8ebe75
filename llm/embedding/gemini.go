package embedding

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// GeminiProvider 使用 Google Gemini API 执行嵌入.
// 注: Gemini 使用不同的端点格式: /models/{model}:batchEmbedContents
type GeminiProvider struct {
	*BaseProvider
	cfg GeminiConfig
}

// NewGeminiProvider 创建 Gemini 嵌入提供者.
func NewGeminiProvider(cfg GeminiConfig) *GeminiProvider {
	def := DefaultGeminiConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
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
		BaseProvider: NewBaseProvider(BaseConfig{
			Name:       "gemini-embedding",
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: 3072,
			MaxBatch:   100,
			Headers:    headers,
			Executor:   cfg.Executor,
			Logger:     cfg.Logger,
		}),
		cfg: cfg,
	}
}

// taskType 将统一 InputType 映射为 Gemini 任务类型。
func taskType(t InputType) string {
	switch t {
	case InputTypeQuery:
		return "RETRIEVAL_QUERY"
	case InputTypeDocument:
		return "RETRIEVAL_DOCUMENT"
	case InputTypeClassify:
		return "CLASSIFICATION"
	case InputTypeClustering:
		return "CLUSTERING"
	}
	return ""
}

type geminiEmbedItem struct {
	Model   string `json:"model"`
	Content struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"content"`
	TaskType             string `json:"taskType,omitempty"`
	OutputDimensionality int    `json:"outputDimensionality,omitempty"`
}

type geminiBatchRequest struct {
	Requests []geminiEmbedItem `json:"requests"`
}

type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float64 `json:"values"`
	} `json:"embeddings"`
}

// Embed 为给定输入生成嵌入.
func (p *GeminiProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	if err := p.checkBatch(req.Input); err != nil {
		return nil, err
	}
	model := ChooseModel(req.Model, p.cfg.Model, "gemini-embedding-001")
	task := taskType(req.InputType)

	body := geminiBatchRequest{Requests: make([]geminiEmbedItem, 0, len(req.Input))}
	for _, text := range req.Input {
		item := geminiEmbedItem{
			Model:                "models/" + model,
			TaskType:             task,
			OutputDimensionality: req.Dimensions,
		}
		item.Content.Parts = []struct {
			Text string `json:"text"`
		}{{Text: text}}
		body.Requests = append(body.Requests, item)
	}

	var gResp geminiBatchResponse
	endpoint := fmt.Sprintf("/models/%s:batchEmbedContents", model)
	if err := p.post(ctx, endpoint, body, &gResp); err != nil {
		return nil, err
	}

	embeddings := make([]EmbeddingData, len(gResp.Embeddings))
	for i, e := range gResp.Embeddings {
		embeddings[i] = EmbeddingData{Index: i, Embedding: e.Values}
	}
	return &EmbeddingResponse{
		Provider:   p.Name(),
		Model:      model,
		Embeddings: embeddings,
		CreatedAt:  time.Now(),
	}, nil
}

// EmbedQuery 嵌入单个查询.
func (p *GeminiProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return p.BaseProvider.EmbedQuery(ctx, query, p.Embed)
}

// EmbedDocuments 嵌入多个文档.
func (p *GeminiProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	return p.BaseProvider.EmbedDocuments(ctx, documents, p.Embed)
}

var _ Provider = (*GeminiProvider)(nil)
