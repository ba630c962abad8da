package service

import (
	"context"
	"fmt"
	"testing"

	"QueryLink/internal/modules/assistant/domain/query"
	"QueryLink/internal/modules/assistant/domain/repository"

	"github.com/cloudwego/eino/components/embedding"
)

const testDim = 16

type fakeVectorStore struct {
	history   []repository.HistorySearchHit
	searchErr error
	docCount  int64
}

func (f *fakeVectorStore) UpsertDocs(ctx context.Context, items []repository.DocVectorRecord) error {
	return nil
}

func (f *fakeVectorStore) InsertHistory(ctx context.Context, item repository.HistoryVectorRecord) error {
	return nil
}

func (f *fakeVectorStore) SearchDocs(ctx context.Context, vector []float32, topK int) ([]repository.DocSearchHit, error) {
	return nil, nil
}

func (f *fakeVectorStore) SearchHistory(ctx context.Context, vector []float32, topK int) ([]repository.HistorySearchHit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if topK < len(f.history) {
		return f.history[:topK], nil
	}
	return f.history, nil
}

func (f *fakeVectorStore) CountDocs(ctx context.Context) (int64, error) {
	return f.docCount, nil
}

func (f *fakeVectorStore) Close(ctx context.Context) error { return nil }

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = make([]float64, testDim)
	}
	return out, nil
}

type stubHistoryRepo struct {
	counts  repository.HistoryCounts
	entries []*query.HistoryEntry
}

func (s *stubHistoryRepo) Append(ctx context.Context, entry *query.HistoryEntry) error { return nil }

func (s *stubHistoryRepo) FindByQuestion(ctx context.Context, question string, limit int) ([]*query.HistoryEntry, error) {
	var out []*query.HistoryEntry
	for _, e := range s.entries {
		if e.Question == question {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubHistoryRepo) Counts(ctx context.Context) (repository.HistoryCounts, error) {
	return s.counts, nil
}

// suggestionsService 直接构造 impl，Suggestions/Stats 不经过 answer pipeline
func suggestionsService(vs *fakeVectorStore, emb *stubEmbedder, hist *stubHistoryRepo) *assistantServiceImpl {
	return &assistantServiceImpl{
		histRepo:  hist,
		vs:        vs,
		embedder:  emb,
		vectorDim: testDim,
	}
}

func TestSuggestionsFiltersAndDedupes(t *testing.T) {
	vs := &fakeVectorStore{
		history: []repository.HistorySearchHit{
			{Question: "How many open orders?", Success: true, Score: 0.95},
			{Question: "how many open orders?", Success: true, Score: 0.94}, // 大小写视为重复
			{Question: "List shipped orders", Success: false, Score: 0.90},  // 失败的不出现
			{Question: "Top parts by volume", Success: true, Score: 0.85},
			{Question: "  ", Success: true, Score: 0.80}, // 空问题跳过
			{Question: "Orders per warehouse", Success: true, Score: 0.75},
		},
	}
	svc := suggestionsService(vs, &stubEmbedder{}, &stubHistoryRepo{})

	res, err := svc.Suggestions(context.Background(), "orders")
	if err != nil {
		t.Fatalf("Suggestions: %v", err)
	}
	want := []string{"How many open orders?", "Top parts by volume", "Orders per warehouse"}
	if len(res.Suggestions) != len(want) {
		t.Fatalf("suggestions = %v, want %v", res.Suggestions, want)
	}
	for i := range want {
		if res.Suggestions[i] != want[i] {
			t.Errorf("suggestions[%d] = %q, want %q", i, res.Suggestions[i], want[i])
		}
	}
}

func TestSuggestionsCapsAtFive(t *testing.T) {
	vs := &fakeVectorStore{}
	for i := 0; i < 12; i++ {
		vs.history = append(vs.history, repository.HistorySearchHit{
			Question: fmt.Sprintf("question %d", i),
			Success:  true,
			Score:    float32(100-i) / 100,
		})
	}
	svc := suggestionsService(vs, &stubEmbedder{}, &stubHistoryRepo{})

	res, err := svc.Suggestions(context.Background(), "question")
	if err != nil {
		t.Fatalf("Suggestions: %v", err)
	}
	if len(res.Suggestions) != 5 {
		t.Errorf("suggestions = %d, want 5", len(res.Suggestions))
	}
}

func TestSuggestionsBlankInput(t *testing.T) {
	svc := suggestionsService(&fakeVectorStore{}, &stubEmbedder{}, &stubHistoryRepo{})

	res, err := svc.Suggestions(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Suggestions: %v", err)
	}
	if len(res.Suggestions) != 0 {
		t.Errorf("blank input must yield no suggestions, got %v", res.Suggestions)
	}
}

func TestSuggestionsDegradeOnEmbeddingFailure(t *testing.T) {
	vs := &fakeVectorStore{
		history: []repository.HistorySearchHit{{Question: "q", Success: true, Score: 0.9}},
	}
	svc := suggestionsService(vs, &stubEmbedder{err: fmt.Errorf("provider down")}, &stubHistoryRepo{})

	res, err := svc.Suggestions(context.Background(), "orders")
	if err != nil {
		t.Fatalf("embedding failure must degrade, not error: %v", err)
	}
	if len(res.Suggestions) != 0 {
		t.Errorf("expected empty suggestions, got %v", res.Suggestions)
	}
}

func TestSuggestionsExactFallbackReachesUnembedded(t *testing.T) {
	// 向量化挂掉时走 MySQL 精确匹配，无向量的记录也能被补全到
	hist := &stubHistoryRepo{
		entries: []*query.HistoryEntry{
			{Question: "How many open orders?", Success: true, Embedded: false},
			{Question: "How many open orders?", Success: true, Embedded: false}, // 重复只出现一次
			{Question: "How many open orders?", Success: false},                 // 失败的不出现
		},
	}
	svc := suggestionsService(&fakeVectorStore{}, &stubEmbedder{err: fmt.Errorf("provider down")}, hist)

	res, err := svc.Suggestions(context.Background(), "How many open orders?")
	if err != nil {
		t.Fatalf("Suggestions: %v", err)
	}
	if len(res.Suggestions) != 1 || res.Suggestions[0] != "How many open orders?" {
		t.Errorf("suggestions = %v, want exact match once", res.Suggestions)
	}
}

func TestStats(t *testing.T) {
	vs := &fakeVectorStore{docCount: 42}
	hist := &stubHistoryRepo{counts: repository.HistoryCounts{Total: 10, Successful: 7, Failed: 3}}
	svc := suggestionsService(vs, &stubEmbedder{}, hist)

	res, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if res.TotalQueries != 10 || res.SuccessfulQueries != 7 || res.FailedQueries != 3 {
		t.Errorf("unexpected counts: %+v", res)
	}
	if res.DocChunks != 42 {
		t.Errorf("doc chunks = %d, want 42", res.DocChunks)
	}
}
