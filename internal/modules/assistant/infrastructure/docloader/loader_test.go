package docloader

import (
	"context"
	"testing"

	"QueryLink/internal/modules/assistant/domain/repository"
	"QueryLink/internal/modules/assistant/infrastructure/chunking"
	mockEmbedding "QueryLink/internal/modules/assistant/infrastructure/embedding"
)

type captureStore struct {
	batches [][]repository.DocVectorRecord
}

func (c *captureStore) UpsertDocs(ctx context.Context, items []repository.DocVectorRecord) error {
	c.batches = append(c.batches, items)
	return nil
}

func (c *captureStore) InsertHistory(ctx context.Context, item repository.HistoryVectorRecord) error {
	return nil
}

func (c *captureStore) SearchDocs(ctx context.Context, vector []float32, topK int) ([]repository.DocSearchHit, error) {
	return nil, nil
}

func (c *captureStore) SearchHistory(ctx context.Context, vector []float32, topK int) ([]repository.HistorySearchHit, error) {
	return nil, nil
}

func (c *captureStore) CountDocs(ctx context.Context) (int64, error) { return 0, nil }
func (c *captureStore) Close(ctx context.Context) error              { return nil }

func TestTitleFromFilename(t *testing.T) {
	cases := map[string]string{
		"ordhdr_table.md":      "Ordhdr Table",
		"database-overview.md": "Database Overview",
		"invsum.md":            "Invsum",
	}
	for in, want := range cases {
		if got := TitleFromFilename(in); got != want {
			t.Errorf("TitleFromFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDocTypeForFile(t *testing.T) {
	if got := DocTypeForFile("ordhdr_table.md"); got != DocTypeTable {
		t.Errorf("table doc classified as %q", got)
	}
	if got := DocTypeForFile("database_overview.md"); got != DocTypeDatabase {
		t.Errorf("database doc classified as %q", got)
	}
}

func TestIngestContentIsIdempotent(t *testing.T) {
	store := &captureStore{}
	ing, err := NewIngestor(mockEmbedding.NewMockEmbedder(16), store, chunking.NewDocChunker(100, 10))
	if err != nil {
		t.Fatalf("NewIngestor: %v", err)
	}

	content := "# ordhdr\n\nOne row per order header. Status codes are O, S and X."
	for i := 0; i < 2; i++ {
		n, err := ing.IngestContent(context.Background(), "docs/ordhdr_table.md", "Ordhdr Table", DocTypeTable, content)
		if err != nil {
			t.Fatalf("IngestContent #%d: %v", i+1, err)
		}
		if n == 0 {
			t.Fatalf("IngestContent #%d wrote no chunks", i+1)
		}
	}

	if len(store.batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(store.batches))
	}
	first, second := store.batches[0], store.batches[1]
	if len(first) != len(second) {
		t.Fatalf("batch sizes differ: %d vs %d", len(first), len(second))
	}
	// 同一文件重复加载产生相同 ID，Upsert 即覆盖而不是追加
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("chunk %d id changed across loads: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestIngestContentEmpty(t *testing.T) {
	store := &captureStore{}
	ing, err := NewIngestor(mockEmbedding.NewMockEmbedder(16), store, nil)
	if err != nil {
		t.Fatalf("NewIngestor: %v", err)
	}
	n, err := ing.IngestContent(context.Background(), "x.md", "X", DocTypeDatabase, "   \n ")
	if err != nil {
		t.Fatalf("IngestContent: %v", err)
	}
	if n != 0 || len(store.batches) != 0 {
		t.Errorf("blank content must write nothing, wrote %d", n)
	}
}
