package rerank

import (
	"context"
	"time"
)

// RerankRequest 文档重排请求.
type RerankRequest struct {
	Query           string     `json:"query"`
	Documents       []Document `json:"documents"`
	Model           string     `json:"model,omitempty"`
	TopN            int        `json:"top_n,omitempty"`              // 返回前 N 条
	ReturnDocuments bool       `json:"return_documents,omitempty"`   // 响应中携带文档文本
	MaxChunksPerDoc int        `json:"max_chunks_per_doc,omitempty"` // 长文档分块上限
}

// Document 待重排的文档.
type Document struct {
	Text  string `json:"text"`
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
}

// RerankResponse 重排响应.
type RerankResponse struct {
	ID        string         `json:"id,omitempty"`
	Provider  string         `json:"provider"`
	Model     string         `json:"model"`
	Results   []RerankResult `json:"results"`
	Usage     RerankUsage    `json:"usage"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// RerankResult 单条重排结果.
type RerankResult struct {
	Index          int      `json:"index"`           // 输入中的原始下标
	RelevanceScore float64  `json:"relevance_score"` // 0-1 归一化分数
	Document       Document `json:"document,omitempty"`
}

// RerankUsage 重排用量统计.
type RerankUsage struct {
	SearchUnits int `json:"search_units,omitempty"`
	TotalTokens int `json:"total_tokens,omitempty"`
}

// Provider 定义统一的重排提供者接口.
type Provider interface {
	// Rerank 按查询相关性重排文档。
	Rerank(ctx context.Context, req *RerankRequest) (*RerankResponse, error)

	// RerankSimple 是纯文本重排的便捷方法。
	RerankSimple(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error)

	// Name 返回提供者名称。
	Name() string

	// MaxDocuments 返回单次支持的最大文档数。
	MaxDocuments() int
}
