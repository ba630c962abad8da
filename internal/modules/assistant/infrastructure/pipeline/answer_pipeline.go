package pipeline

import (
	"context"
	"fmt"

	"QueryLink/internal/modules/assistant/domain/query"
	"QueryLink/internal/modules/assistant/domain/repository"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/compose"
)

// AnswerRequest 问答 Pipeline 的输入请求
type AnswerRequest struct {
	Question string // 用户问题（必填）
}

// AnswerOptions 问答 Pipeline 的编排参数
type AnswerOptions struct {
	KDocs           int    // 文档召回 Top-K
	KHistory        int    // 历史召回 Top-K
	MaxContextChars int    // 上下文块的字符预算（rune 计）
	DBName          string // system prompt 中声明的目标库名
	TopKRows        int    // system prompt 中声明的行数上限
}

// AnswerPipeline 问答编排 Pipeline（基于 Eino compose.Graph）。
//
// 错误语义：
//  1. 仅空白问题向调用方返回错误，其余协作方故障一律折叠为 failure 结果
//  2. 每次调用恰好追加一条历史记录，成功失败都记，不去重
//  3. 历史向量化失败时降级为无向量记录（只进 MySQL，不进相似检索）
type AnswerPipeline struct {
	retriever *RetrievePipeline
	agent     repository.SQLAgent
	histRepo  repository.HistoryRepository
	vs        repository.VectorStore
	embedder  embedding.Embedder
	vectorDim int
	opts      AnswerOptions
	r         compose.Runnable[*AnswerRequest, *query.QueryAttempt]
}

// NewAnswerPipeline 创建问答 Pipeline
func NewAnswerPipeline(
	retriever *RetrievePipeline,
	agent repository.SQLAgent,
	histRepo repository.HistoryRepository,
	vs repository.VectorStore,
	embedder embedding.Embedder,
	vectorDim int,
	opts AnswerOptions,
) (*AnswerPipeline, error) {
	if retriever == nil {
		return nil, fmt.Errorf("retrieve pipeline is nil")
	}
	if agent == nil {
		return nil, fmt.Errorf("sql agent is nil")
	}
	if histRepo == nil {
		return nil, fmt.Errorf("history repository is nil")
	}
	if vs == nil {
		return nil, fmt.Errorf("vector store is nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is nil")
	}
	if vectorDim <= 0 {
		return nil, fmt.Errorf("vector dim must be positive, got %d", vectorDim)
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = 6000
	}
	p := &AnswerPipeline{
		retriever: retriever,
		agent:     agent,
		histRepo:  histRepo,
		vs:        vs,
		embedder:  embedder,
		vectorDim: vectorDim,
		opts:      opts,
	}
	r, err := p.buildGraph(context.Background())
	if err != nil {
		return nil, err
	}
	p.r = r
	return p, nil
}

// Answer 执行一次问答编排（封装 Eino Runnable.Invoke）
func (p *AnswerPipeline) Answer(ctx context.Context, req *AnswerRequest) (*query.QueryAttempt, error) {
	if req == nil {
		return nil, fmt.Errorf("answer request is nil")
	}
	if p.r == nil {
		return nil, fmt.Errorf("pipeline runnable is nil")
	}
	return p.r.Invoke(ctx, req)
}
