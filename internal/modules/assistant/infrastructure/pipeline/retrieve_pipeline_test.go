package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"QueryLink/internal/modules/assistant/domain/repository"
	mockEmbedding "QueryLink/internal/modules/assistant/infrastructure/embedding"
	"QueryLink/pkg/xerr"

	"github.com/cloudwego/eino/components/embedding"
)

const testDim = 16

type fakeVectorStore struct {
	docs       []repository.DocSearchHit
	history    []repository.HistorySearchHit
	docErr     error
	historyErr error

	upserted    []repository.DocVectorRecord
	inserted    []repository.HistoryVectorRecord
	insertErr   error
	docCount    int64
	docCountErr error
}

func (f *fakeVectorStore) UpsertDocs(ctx context.Context, items []repository.DocVectorRecord) error {
	f.upserted = append(f.upserted, items...)
	return nil
}

func (f *fakeVectorStore) InsertHistory(ctx context.Context, item repository.HistoryVectorRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, item)
	return nil
}

func (f *fakeVectorStore) SearchDocs(ctx context.Context, vector []float32, topK int) ([]repository.DocSearchHit, error) {
	if f.docErr != nil {
		return nil, f.docErr
	}
	if topK < len(f.docs) {
		return f.docs[:topK], nil
	}
	return f.docs, nil
}

func (f *fakeVectorStore) SearchHistory(ctx context.Context, vector []float32, topK int) ([]repository.HistorySearchHit, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	if topK < len(f.history) {
		return f.history[:topK], nil
	}
	return f.history, nil
}

func (f *fakeVectorStore) CountDocs(ctx context.Context) (int64, error) {
	if f.docCountErr != nil {
		return 0, f.docCountErr
	}
	return f.docCount, nil
}

func (f *fakeVectorStore) Close(ctx context.Context) error { return nil }

type failingEmbedder struct{}

func (failingEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	return nil, fmt.Errorf("provider down")
}

func newTestRetriever(t *testing.T, emb embedding.Embedder, vs repository.VectorStore) *RetrievePipeline {
	t.Helper()
	p, err := NewRetrievePipeline(emb, vs, testDim)
	if err != nil {
		t.Fatalf("NewRetrievePipeline: %v", err)
	}
	return p
}

func TestRetrieveReturnsBothCollections(t *testing.T) {
	vs := &fakeVectorStore{
		docs: []repository.DocSearchHit{
			{ID: "d1", Title: "Ordhdr Table", Content: "order headers", TagsJSON: `["orders"]`, Score: 0.92},
			{ID: "d2", Title: "Ordlin Table", Content: "order lines", Score: 0.81},
		},
		history: []repository.HistorySearchHit{
			{ID: "h1", Question: "how many open orders", SqlText: "SELECT COUNT(*) FROM ordhdr", Success: true, Score: 0.88},
		},
	}
	p := newTestRetriever(t, mockEmbedding.NewMockEmbedder(testDim), vs)

	res, err := p.Retrieve(context.Background(), &RetrieveRequest{Question: "open orders?"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Docs) != 2 {
		t.Fatalf("doc hits = %d, want 2", len(res.Docs))
	}
	if res.Docs[0].Chunk.Title != "Ordhdr Table" || res.Docs[0].Score != 0.92 {
		t.Errorf("unexpected first doc hit: %+v", res.Docs[0])
	}
	if got := res.Docs[0].Chunk.Tags; len(got) != 1 || got[0] != "orders" {
		t.Errorf("tags = %v, want [orders]", got)
	}
	if len(res.History) != 1 || res.History[0].Question != "how many open orders" {
		t.Errorf("unexpected history hits: %+v", res.History)
	}
	if res.IsEmpty {
		t.Error("IsEmpty = true with hits present")
	}
}

func TestRetrieveBlankQuestion(t *testing.T) {
	p := newTestRetriever(t, mockEmbedding.NewMockEmbedder(testDim), &fakeVectorStore{})

	_, err := p.Retrieve(context.Background(), &RetrieveRequest{Question: "   \t "})
	if !errors.Is(err, xerr.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestRetrieveEmbeddingFailureAborts(t *testing.T) {
	vs := &fakeVectorStore{
		docs: []repository.DocSearchHit{{ID: "d1", Score: 0.9}},
	}
	p := newTestRetriever(t, failingEmbedder{}, vs)

	_, err := p.Retrieve(context.Background(), &RetrieveRequest{Question: "anything"})
	if !errors.Is(err, xerr.ErrEmbedding) {
		t.Fatalf("err = %v, want ErrEmbedding", err)
	}
}

func TestRetrieveStoreFailureDegrades(t *testing.T) {
	vs := &fakeVectorStore{
		docErr: fmt.Errorf("milvus unreachable"),
		history: []repository.HistorySearchHit{
			{ID: "h1", Question: "q", SqlText: "SELECT 1", Success: true, Score: 0.7},
		},
	}
	p := newTestRetriever(t, mockEmbedding.NewMockEmbedder(testDim), vs)

	res, err := p.Retrieve(context.Background(), &RetrieveRequest{Question: "anything"})
	if err != nil {
		t.Fatalf("store failure must not abort retrieval: %v", err)
	}
	if len(res.Docs) != 0 {
		t.Errorf("doc hits = %d, want 0 after degradation", len(res.Docs))
	}
	if len(res.History) != 1 {
		t.Errorf("history hits = %d, want 1", len(res.History))
	}
}

func TestRetrieveEmptyCollections(t *testing.T) {
	p := newTestRetriever(t, mockEmbedding.NewMockEmbedder(testDim), &fakeVectorStore{})

	res, err := p.Retrieve(context.Background(), &RetrieveRequest{Question: "anything"})
	if err != nil {
		t.Fatalf("empty collections must not abort retrieval: %v", err)
	}
	if !res.IsEmpty {
		t.Error("IsEmpty = false for empty collections")
	}
	if res.Message == "" {
		t.Error("expected degradation message for empty result")
	}
}

func TestRetrieveRespectsTopK(t *testing.T) {
	vs := &fakeVectorStore{}
	for i := 0; i < 10; i++ {
		vs.docs = append(vs.docs, repository.DocSearchHit{ID: fmt.Sprintf("d%d", i), Score: float32(10-i) / 10})
	}
	p := newTestRetriever(t, mockEmbedding.NewMockEmbedder(testDim), vs)

	res, err := p.Retrieve(context.Background(), &RetrieveRequest{Question: "q", KDocs: 3})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Docs) != 3 {
		t.Errorf("doc hits = %d, want 3", len(res.Docs))
	}
}
