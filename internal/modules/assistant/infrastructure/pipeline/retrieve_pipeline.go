package pipeline

import (
	"context"
	"fmt"

	"QueryLink/internal/modules/assistant/domain/query"
	"QueryLink/internal/modules/assistant/domain/repository"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/compose"
)

// RetrieveRequest 上下文召回 Pipeline 的输入请求
type RetrieveRequest struct {
	Question string // 用户问题（必填）
	KDocs    int    // documentation 集合 Top-K（默认 4，范围 1-50）
	KHistory int    // history 集合 Top-K（默认 3，范围 1-50）
}

// RetrieveResult 上下文召回 Pipeline 的输出结果
type RetrieveResult struct {
	Question    string             // 原始用户问题
	Docs        []query.DocHit     // 文档命中（按得分降序）
	History     []query.HistoryHit // 历史问答命中（按得分降序，独立排名）
	DurationMs  int64              // 召回总耗时（毫秒）
	EmbeddingMs int64              // 向量化耗时（毫秒）
	SearchMs    int64              // 两次检索合计耗时（毫秒）
	IsEmpty     bool               // 两个集合均未命中
	Message     string             // 提示信息（如集合为空时的降级说明）
}

// RetrievePipeline 上下文召回 Pipeline（基于 Eino compose.Graph）。
//
// 错误语义：
//  1. 向量化失败即中止，返回 EmbeddingError —— 没有向量就没有有意义的检索
//  2. 任一集合检索失败或为空，该侧降级为空结果继续，不报错
//  3. 两个集合各自独立检索，得分不跨集合比较
type RetrievePipeline struct {
	embedder  embedding.Embedder
	vs        repository.VectorStore
	vectorDim int
	r         compose.Runnable[*RetrieveRequest, *RetrieveResult]
}

// NewRetrievePipeline 创建召回 Pipeline
func NewRetrievePipeline(
	embedder embedding.Embedder,
	vs repository.VectorStore,
	vectorDim int,
) (*RetrievePipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is nil")
	}
	if vs == nil {
		return nil, fmt.Errorf("vector store is nil")
	}
	if vectorDim <= 0 {
		return nil, fmt.Errorf("vector dim must be positive, got %d", vectorDim)
	}
	p := &RetrievePipeline{
		embedder:  embedder,
		vs:        vs,
		vectorDim: vectorDim,
	}
	r, err := p.buildGraph(context.Background())
	if err != nil {
		return nil, err
	}
	p.r = r
	return p, nil
}

// Retrieve 执行召回（封装 Eino Runnable.Invoke）
func (p *RetrievePipeline) Retrieve(ctx context.Context, req *RetrieveRequest) (*RetrieveResult, error) {
	if req == nil {
		return nil, fmt.Errorf("retrieve request is nil")
	}
	if p.r == nil {
		return nil, fmt.Errorf("pipeline runnable is nil")
	}
	return p.r.Invoke(ctx, req)
}

// normalizeK 规范化 Top-K 参数
func normalizeK(k, def int) int {
	if k <= 0 {
		return def
	}
	if k > 50 {
		return 50
	}
	return k
}
