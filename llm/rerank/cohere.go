package rerank

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

// CohereProvider 使用 Cohere Rerank API 重排文档.
type CohereProvider struct {
	cfg     CohereConfig
	exec    *httpexec.Executor
	baseURL string
	headers httpexec.HeaderFunc
}

// NewCohereProvider 创建 Cohere 重排提供者.
func NewCohereProvider(cfg CohereConfig) *CohereProvider {
	def := DefaultCohereConfig()
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
	return &CohereProvider{
		cfg:     cfg,
		exec:    exec,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: headers,
	}
}

// Name 返回提供者名称.
func (p *CohereProvider) Name() string { return "cohere-rerank" }

// MaxDocuments 返回单次支持的最大文档数.
func (p *CohereProvider) MaxDocuments() int { return 1000 }

type cohereRerankRequest struct {
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	Model           string   `json:"model"`
	TopN            int      `json:"top_n,omitempty"`
	ReturnDocuments bool     `json:"return_documents,omitempty"`
	MaxChunksPerDoc int      `json:"max_chunks_per_doc,omitempty"`
}

type cohereRerankResponse struct {
	ID      string `json:"id"`
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
		Document       *struct {
			Text string `json:"text"`
		} `json:"document,omitempty"`
	} `json:"results"`
	Meta struct {
		BilledUnits struct {
			SearchUnits int `json:"search_units"`
		} `json:"billed_units"`
	} `json:"meta"`
}

// Rerank 按查询相关性重排文档.
func (p *CohereProvider) Rerank(ctx context.Context, req *RerankRequest) (*RerankResponse, error) {
	if req.Query == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "重排查询不能为空").WithProvider(p.Name())
	}
	if len(req.Documents) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "重排文档不能为空").WithProvider(p.Name())
	}
	if len(req.Documents) > p.MaxDocuments() {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("文档数 %d 超过上限 %d", len(req.Documents), p.MaxDocuments())).WithProvider(p.Name())
	}

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	docs := make([]string, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = d.Text
	}

	body := cohereRerankRequest{
		Query:           req.Query,
		Documents:       docs,
		Model:           model,
		TopN:            req.TopN,
		ReturnDocuments: req.ReturnDocuments,
		MaxChunksPerDoc: req.MaxChunksPerDoc,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("序列化重排请求失败: %v", err)).WithProvider(p.Name()).WithCause(err)
	}

	resp, err := p.exec.Execute(ctx, &httpexec.Request{
		Provider:     p.Name(),
		Operation:    "rerank",
		Method:       http.MethodPost,
		URL:          p.baseURL + "/v2/rerank",
		Body:         payload,
		HeaderSource: p.headers,
	})
	if err != nil {
		return nil, err
	}

	var cResp cohereRerankResponse
	if err := httpexec.DecodeJSON(resp.Body, &cResp); err != nil {
		return nil, err
	}

	results := make([]RerankResult, len(cResp.Results))
	for i, r := range cResp.Results {
		results[i] = RerankResult{
			Index:          r.Index,
			RelevanceScore: r.RelevanceScore,
		}
		if r.Document != nil {
			results[i].Document = Document{Text: r.Document.Text}
		}
		if r.Index < len(req.Documents) {
			results[i].Document.ID = req.Documents[r.Index].ID
		}
	}

	return &RerankResponse{
		ID:       cResp.ID,
		Provider: p.Name(),
		Model:    model,
		Results:  results,
		Usage: RerankUsage{
			SearchUnits: cResp.Meta.BilledUnits.SearchUnits,
		},
		CreatedAt: time.Now(),
	}, nil
}

// RerankSimple 重排纯文本文档.
func (p *CohereProvider) RerankSimple(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error) {
	docs := make([]Document, len(documents))
	for i, text := range documents {
		docs[i] = Document{Text: text}
	}
	resp, err := p.Rerank(ctx, &RerankRequest{
		Query:     query,
		Documents: docs,
		TopN:      topN,
	})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

var _ Provider = (*CohereProvider)(nil)
