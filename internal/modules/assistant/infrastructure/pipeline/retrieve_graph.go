package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"QueryLink/internal/modules/assistant/domain/query"
	"QueryLink/internal/modules/assistant/domain/repository"
	"QueryLink/pkg/xerr"
	"QueryLink/pkg/zlog"

	"github.com/cloudwego/eino/compose"
	"go.uber.org/zap"
)

// retrieveState 召回 Pipeline 的中间状态（在节点间传递）
type retrieveState struct {
	Req         *RetrieveRequest              // 原始请求
	QueryVec    []float32                     // Question 向量
	DocHits     []repository.DocSearchHit     // documentation 集合命中
	HistoryHits []repository.HistorySearchHit // history 集合命中
	Start       time.Time                     // 开始时间
	EmbeddingMs int64                         // 向量化耗时
	SearchMs    int64                         // 检索合计耗时
	Degraded    []string                      // 降级的集合名（检索失败 → 空结果）
	Err         error                         // 错误（如果有）
}

// buildGraph 构建召回 Pipeline 的 Eino Graph
//
// 节点顺序：Validate → EmbedQuery → SearchDocs → SearchHistory → BuildResult
func (p *RetrievePipeline) buildGraph(ctx context.Context) (compose.Runnable[*RetrieveRequest, *RetrieveResult], error) {
	const (
		Validate      = "Validate"
		EmbedQuery    = "EmbedQuery"
		SearchDocs    = "SearchDocs"
		SearchHistory = "SearchHistory"
		BuildResult   = "BuildResult"
	)
	g := compose.NewGraph[*RetrieveRequest, *RetrieveResult]()
	_ = g.AddLambdaNode(Validate, compose.InvokableLambdaWithOption(p.validateNode), compose.WithNodeName(Validate))
	_ = g.AddLambdaNode(EmbedQuery, compose.InvokableLambdaWithOption(p.embedQueryNode), compose.WithNodeName(EmbedQuery))
	_ = g.AddLambdaNode(SearchDocs, compose.InvokableLambdaWithOption(p.searchDocsNode), compose.WithNodeName(SearchDocs))
	_ = g.AddLambdaNode(SearchHistory, compose.InvokableLambdaWithOption(p.searchHistoryNode), compose.WithNodeName(SearchHistory))
	_ = g.AddLambdaNode(BuildResult, compose.InvokableLambdaWithOption(p.buildResultNode), compose.WithNodeName(BuildResult))
	_ = g.AddEdge(compose.START, Validate)
	_ = g.AddEdge(Validate, EmbedQuery)
	_ = g.AddEdge(EmbedQuery, SearchDocs)
	_ = g.AddEdge(SearchDocs, SearchHistory)
	_ = g.AddEdge(SearchHistory, BuildResult)
	_ = g.AddEdge(BuildResult, compose.END)
	return g.Compile(ctx, compose.WithGraphName("ContextRetrievePipeline"), compose.WithNodeTriggerMode(compose.AllPredecessor))
}

// validateNode 节点 1：校验并规范化请求参数
func (p *RetrievePipeline) validateNode(ctx context.Context, req *RetrieveRequest, _ ...any) (*retrieveState, error) {
	_ = ctx
	st := &retrieveState{
		Req:   req,
		Start: time.Now(),
	}
	if req == nil {
		st.Err = fmt.Errorf("retrieve request is nil")
		return st, nil
	}
	question := strings.TrimSpace(req.Question)
	req.Question = question
	if question == "" {
		st.Err = xerr.ErrInvalidInput
		return st, nil
	}
	req.KDocs = normalizeK(req.KDocs, 4)
	req.KHistory = normalizeK(req.KHistory, 3)
	return st, nil
}

// embedQueryNode 节点 2：将用户问题向量化。
// 向量化失败即为致命错误，整次召回中止。
func (p *RetrievePipeline) embedQueryNode(ctx context.Context, st *retrieveState, _ ...any) (*retrieveState, error) {
	if st == nil {
		return &retrieveState{Err: fmt.Errorf("nil state"), Start: time.Now()}, nil
	}
	if st.Err != nil {
		return st, nil
	}
	if st.Req == nil {
		st.Err = fmt.Errorf("nil request")
		return st, nil
	}
	embStart := time.Now()
	vecs, err := p.embedder.EmbedStrings(ctx, []string{st.Req.Question})
	if err != nil {
		st.Err = fmt.Errorf("%w: %v", xerr.ErrEmbedding, err)
		return st, nil
	}
	if len(vecs) == 0 {
		st.Err = fmt.Errorf("%w: empty result", xerr.ErrEmbedding)
		return st, nil
	}
	vec64 := vecs[0]
	if len(vec64) != p.vectorDim {
		st.Err = fmt.Errorf("%w: dim mismatch got=%d want=%d", xerr.ErrEmbedding, len(vec64), p.vectorDim)
		return st, nil
	}
	vec32 := make([]float32, len(vec64))
	for i := range vec64 {
		vec32[i] = float32(vec64[i])
	}
	st.QueryVec = vec32
	st.EmbeddingMs = time.Since(embStart).Milliseconds()
	return st, nil
}

// searchDocsNode 节点 3：检索 documentation 集合。
// 检索失败降级为空结果，不中止流程。
func (p *RetrievePipeline) searchDocsNode(ctx context.Context, st *retrieveState, _ ...any) (*retrieveState, error) {
	if st == nil {
		return &retrieveState{Err: fmt.Errorf("nil state"), Start: time.Now()}, nil
	}
	if st.Err != nil {
		return st, nil
	}
	searchStart := time.Now()
	hits, err := p.vs.SearchDocs(ctx, st.QueryVec, st.Req.KDocs)
	if err != nil {
		zlog.Warn("doc search degraded to empty context",
			zap.String("question", st.Req.Question),
			zap.Error(err))
		st.DocHits = []repository.DocSearchHit{}
		st.Degraded = append(st.Degraded, "documentation")
	} else {
		st.DocHits = hits
	}
	st.SearchMs += time.Since(searchStart).Milliseconds()
	return st, nil
}

// searchHistoryNode 节点 4：检索 history 集合（与文档检索互不影响）
func (p *RetrievePipeline) searchHistoryNode(ctx context.Context, st *retrieveState, _ ...any) (*retrieveState, error) {
	if st == nil {
		return &retrieveState{Err: fmt.Errorf("nil state"), Start: time.Now()}, nil
	}
	if st.Err != nil {
		return st, nil
	}
	searchStart := time.Now()
	hits, err := p.vs.SearchHistory(ctx, st.QueryVec, st.Req.KHistory)
	if err != nil {
		zlog.Warn("history search degraded to empty context",
			zap.String("question", st.Req.Question),
			zap.Error(err))
		st.HistoryHits = []repository.HistorySearchHit{}
		st.Degraded = append(st.Degraded, "history")
	} else {
		st.HistoryHits = hits
	}
	st.SearchMs += time.Since(searchStart).Milliseconds()
	return st, nil
}

// buildResultNode 节点 5：组装最终响应结构
func (p *RetrievePipeline) buildResultNode(ctx context.Context, st *retrieveState, _ ...any) (*RetrieveResult, error) {
	_ = ctx
	if st == nil {
		return nil, fmt.Errorf("nil state")
	}
	if st.Err != nil {
		return nil, st.Err
	}
	res := &RetrieveResult{
		Question: st.Req.Question,
	}
	res.Docs = make([]query.DocHit, 0, len(st.DocHits))
	for _, h := range st.DocHits {
		res.Docs = append(res.Docs, query.DocHit{
			Chunk: query.DocumentChunk{
				ID:         h.ID,
				Title:      h.Title,
				SourcePath: h.SourcePath,
				DocType:    h.DocType,
				Content:    h.Content,
				Tags:       parseTags(h.TagsJSON),
			},
			Score: h.Score,
		})
	}
	res.History = make([]query.HistoryHit, 0, len(st.HistoryHits))
	for _, h := range st.HistoryHits {
		res.History = append(res.History, query.HistoryHit{
			EntryId:  h.ID,
			Question: h.Question,
			SqlText:  h.SqlText,
			Success:  h.Success,
			Score:    h.Score,
		})
	}
	res.EmbeddingMs = st.EmbeddingMs
	res.SearchMs = st.SearchMs
	res.DurationMs = time.Since(st.Start).Milliseconds()
	if len(res.Docs) == 0 && len(res.History) == 0 {
		res.IsEmpty = true
		res.Message = "no similar documentation or history found"
	}
	zlog.Info("context retrieve done",
		zap.String("question", res.Question),
		zap.Int("k_docs", st.Req.KDocs),
		zap.Int("k_history", st.Req.KHistory),
		zap.Int("doc_hits", len(res.Docs)),
		zap.Int("history_hits", len(res.History)),
		zap.String("degraded", strings.Join(st.Degraded, ",")),
		zap.Int64("embedding_ms", res.EmbeddingMs),
		zap.Int64("search_ms", res.SearchMs),
		zap.Int64("duration_ms", res.DurationMs),
		zap.Bool("is_empty", res.IsEmpty),
	)
	return res, nil
}

func parseTags(tagsJSON string) []string {
	if strings.TrimSpace(tagsJSON) == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
		return nil
	}
	return tags
}
