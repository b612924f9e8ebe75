package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/unillm/llm/httpexec"
	"github.com/BaSui01/unillm/types"
)

// BaseProvider 为嵌入提供者提供共同能力:执行引擎调用、
// 批量上限校验与便捷方法。
type BaseProvider struct {
	name       string
	exec       *httpexec.Executor
	baseURL    string
	model      string
	dimensions int
	maxBatch   int
	headers    httpexec.HeaderFunc
	classifier httpexec.EnvelopeClassifier
}

// BaseConfig 持有基础提供者的共同配置.
type BaseConfig struct {
	Name       string
	BaseURL    string
	Model      string
	Dimensions int
	MaxBatch   int
	Headers    httpexec.HeaderFunc
	Classifier httpexec.EnvelopeClassifier
	Executor   *httpexec.Executor
	Logger     *zap.Logger
}

// NewBaseProvider 创建基础提供者。未传入执行引擎时构建默认引擎。
func NewBaseProvider(cfg BaseConfig) *BaseProvider {
	maxBatch := cfg.MaxBatch
	if maxBatch == 0 {
		maxBatch = 100
	}
	exec := cfg.Executor
	if exec == nil {
		exec = httpexec.New(httpexec.Options{Logger: cfg.Logger})
	}
	return &BaseProvider{
		name:       cfg.Name,
		exec:       exec,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		maxBatch:   maxBatch,
		headers:    cfg.Headers,
		classifier: cfg.Classifier,
	}
}

func (p *BaseProvider) Name() string      { return p.name }
func (p *BaseProvider) Dimensions() int   { return p.dimensions }
func (p *BaseProvider) MaxBatchSize() int { return p.maxBatch }

// checkBatch 校验输入批量。
func (p *BaseProvider) checkBatch(input []string) error {
	if len(input) == 0 {
		return types.NewError(types.ErrInvalidRequest, "嵌入输入不能为空").WithProvider(p.name)
	}
	if len(input) > p.maxBatch {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("批量 %d 超过上限 %d", len(input), p.maxBatch)).WithProvider(p.name)
	}
	return nil
}

// post 通过执行引擎发送 JSON 请求并解析响应。
func (p *BaseProvider) post(ctx context.Context, endpoint string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("序列化嵌入请求失败: %v", err)).WithProvider(p.name).WithCause(err)
	}
	resp, err := p.exec.Execute(ctx, &httpexec.Request{
		Provider:     p.name,
		Operation:    "embedding",
		Method:       http.MethodPost,
		URL:          p.baseURL + endpoint,
		Body:         payload,
		HeaderSource: p.headers,
		Classifier:   p.classifier,
	})
	if err != nil {
		return err
	}
	return httpexec.DecodeJSON(resp.Body, out)
}

// EmbedQuery 嵌入单个查询字符串.
func (p *BaseProvider) EmbedQuery(ctx context.Context, query string, embedFn func(context.Context, *EmbeddingRequest) (*EmbeddingResponse, error)) ([]float64, error) {
	resp, err := embedFn(ctx, &EmbeddingRequest{
		Input:     []string{query},
		InputType: InputTypeQuery,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, types.NewError(types.ErrParse, "响应未包含嵌入向量").WithProvider(p.name)
	}
	return resp.Embeddings[0].Embedding, nil
}

// EmbedDocuments 嵌入多个文档。
func (p *BaseProvider) EmbedDocuments(ctx context.Context, documents []string, embedFn func(context.Context, *EmbeddingRequest) (*EmbeddingResponse, error)) ([][]float64, error) {
	resp, err := embedFn(ctx, &EmbeddingRequest{
		Input:     documents,
		InputType: InputTypeDocument,
	})
	if err != nil {
		return nil, err
	}
	result := make([][]float64, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		result[i] = emb.Embedding
	}
	return result, nil
}
