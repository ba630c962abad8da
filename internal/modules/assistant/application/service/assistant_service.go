package service

import (
	"context"
	"fmt"
	"strings"

	"QueryLink/internal/modules/assistant/application/dto/request"
	"QueryLink/internal/modules/assistant/application/dto/respond"
	"QueryLink/internal/modules/assistant/domain/repository"
	"QueryLink/internal/modules/assistant/infrastructure/pipeline"
	"QueryLink/internal/modules/assistant/infrastructure/sqlagent"
	"QueryLink/pkg/zlog"

	"github.com/cloudwego/eino/components/embedding"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const suggestionLimit = 5

// AssistantService 问答助手的应用层门面。
// Answer 只在问题为空白时返回错误，其余故障折叠进 QueryRespond。
type AssistantService interface {
	Answer(ctx context.Context, req request.QueryRequest) (*respond.QueryRespond, error)
	// Tables 目标库当前可见的表名列表
	Tables(ctx context.Context) (*respond.TablesRespond, error)
	// Stats 历史问答计数与文档切片数
	Stats(ctx context.Context) (*respond.StatsRespond, error)
	// Suggestions 按相似度补全历史问过且成功的问题，去重后至多 5 条
	Suggestions(ctx context.Context, partial string) (*respond.SuggestionsRespond, error)
}

type assistantServiceImpl struct {
	answerPipe *pipeline.AnswerPipeline
	histRepo   repository.HistoryRepository
	vs         repository.VectorStore
	embedder   embedding.Embedder
	vectorDim  int
	db         *gorm.DB
}

// NewAssistantService 创建 AssistantService
func NewAssistantService(
	answerPipe *pipeline.AnswerPipeline,
	histRepo repository.HistoryRepository,
	vs repository.VectorStore,
	embedder embedding.Embedder,
	vectorDim int,
	db *gorm.DB,
) (AssistantService, error) {
	if answerPipe == nil {
		return nil, fmt.Errorf("answer pipeline is nil")
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
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &assistantServiceImpl{
		answerPipe: answerPipe,
		histRepo:   histRepo,
		vs:         vs,
		embedder:   embedder,
		vectorDim:  vectorDim,
		db:         db,
	}, nil
}

func (s *assistantServiceImpl) Answer(ctx context.Context, req request.QueryRequest) (*respond.QueryRespond, error) {
	attempt, err := s.answerPipe.Answer(ctx, &pipeline.AnswerRequest{
		Question: req.Question,
	})
	if err != nil {
		return nil, err
	}

	res := &respond.QueryRespond{
		Question:     attempt.Question,
		Answer:       attempt.Answer,
		GeneratedSQL: attempt.GeneratedSQL,
		RowCount:     attempt.RowCount,
		Outcome:      string(attempt.Outcome),
		Message:      attempt.Message,
		EntryId:      attempt.EntryId,
		DurationMs:   attempt.DurationMs,
	}
	for _, d := range attempt.Docs {
		res.Docs = append(res.Docs, respond.DocHitRespond{
			Title:      d.Chunk.Title,
			SourcePath: d.Chunk.SourcePath,
			DocType:    d.Chunk.DocType,
			Content:    d.Chunk.Content,
			Tags:       d.Chunk.Tags,
			Score:      d.Score,
		})
	}
	for _, h := range attempt.History {
		res.History = append(res.History, respond.HistoryHitRespond{
			Question: h.Question,
			SqlText:  h.SqlText,
			Success:  h.Success,
			Score:    h.Score,
		})
	}
	return res, nil
}

func (s *assistantServiceImpl) Tables(ctx context.Context) (*respond.TablesRespond, error) {
	tables, err := sqlagent.AvailableTables(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return &respond.TablesRespond{Tables: tables}, nil
}

func (s *assistantServiceImpl) Stats(ctx context.Context) (*respond.StatsRespond, error) {
	counts, err := s.histRepo.Counts(ctx)
	if err != nil {
		return nil, err
	}
	res := &respond.StatsRespond{
		TotalQueries:      counts.Total,
		SuccessfulQueries: counts.Successful,
		FailedQueries:     counts.Failed,
	}
	// 文档计数失败不影响历史统计
	docCount, err := s.vs.CountDocs(ctx)
	if err != nil {
		zlog.Warn("doc count unavailable", zap.Error(err))
	} else {
		res.DocChunks = docCount
	}
	return res, nil
}

func (s *assistantServiceImpl) Suggestions(ctx context.Context, partial string) (*respond.SuggestionsRespond, error) {
	res := &respond.SuggestionsRespond{Suggestions: []string{}}
	partial = strings.TrimSpace(partial)
	if partial == "" {
		return res, nil
	}

	// 向量化失败降级为 MySQL 精确匹配，无向量的历史记录也因此可达
	vecs, err := s.embedder.EmbedStrings(ctx, []string{partial})
	if err != nil || len(vecs) == 0 || len(vecs[0]) != s.vectorDim {
		zlog.Warn("suggestion embedding failed, falling back to exact match", zap.Error(err))
		return s.exactSuggestions(ctx, partial)
	}
	vec32 := make([]float32, len(vecs[0]))
	for i, v := range vecs[0] {
		vec32[i] = float32(v)
	}

	// 多召回一些，成功过滤 + 去重后再截断
	hits, err := s.vs.SearchHistory(ctx, vec32, suggestionLimit*4)
	if err != nil {
		zlog.Warn("suggestion search failed", zap.Error(err))
		return res, nil
	}

	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if !h.Success {
			continue
		}
		q := strings.TrimSpace(h.Question)
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		res.Suggestions = append(res.Suggestions, q)
		if len(res.Suggestions) >= suggestionLimit {
			break
		}
	}
	return res, nil
}

// exactSuggestions 精确文本匹配的降级路径
func (s *assistantServiceImpl) exactSuggestions(ctx context.Context, partial string) (*respond.SuggestionsRespond, error) {
	res := &respond.SuggestionsRespond{Suggestions: []string{}}
	entries, err := s.histRepo.FindByQuestion(ctx, partial, suggestionLimit*4)
	if err != nil {
		zlog.Warn("suggestion exact lookup failed", zap.Error(err))
		return res, nil
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if !e.Success {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(e.Question))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		res.Suggestions = append(res.Suggestions, e.Question)
		if len(res.Suggestions) >= suggestionLimit {
			break
		}
	}
	return res, nil
}
