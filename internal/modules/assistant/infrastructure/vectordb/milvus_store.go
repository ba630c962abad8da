package vectordb

import (
	"context"
	"fmt"
	"strconv"

	"QueryLink/internal/modules/assistant/domain/repository"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// MilvusStore repository.VectorStore 的 Milvus 实现。
// documentation / history 两个集合各自独立读写，排名从不混合。
type MilvusStore struct {
	cli         mclient.Client
	docColl     string
	historyColl string
	vectorDim   int
	vectorField string
}

var _ repository.VectorStore = (*MilvusStore)(nil)

func NewMilvusStore(cli mclient.Client, docColl, historyColl string, vectorDim int) (*MilvusStore, error) {
	if cli == nil {
		return nil, fmt.Errorf("milvus client is nil")
	}
	if vectorDim <= 0 {
		return nil, fmt.Errorf("invalid vector dim: %d", vectorDim)
	}
	return &MilvusStore{
		cli:         cli,
		docColl:     docColl,
		historyColl: historyColl,
		vectorDim:   vectorDim,
		vectorField: "vector",
	}, nil
}

func (s *MilvusStore) Close(ctx context.Context) error {
	return s.cli.Close()
}

// UpsertDocs 同一 ID 重复写入为覆盖，文档重载因此幂等
func (s *MilvusStore) UpsertDocs(ctx context.Context, items []repository.DocVectorRecord) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]string, 0, len(items))
	vectors := make([][]float32, 0, len(items))
	titles := make([]string, 0, len(items))
	sourcePaths := make([]string, 0, len(items))
	docTypes := make([]string, 0, len(items))
	contents := make([]string, 0, len(items))
	tags := make([][]byte, 0, len(items))

	for _, it := range items {
		if it.ID == "" {
			return fmt.Errorf("doc record missing ID")
		}
		if len(it.Vector) != s.vectorDim {
			return fmt.Errorf("vector dim mismatch for id=%s", it.ID)
		}
		ids = append(ids, it.ID)
		vectors = append(vectors, it.Vector)
		titles = append(titles, it.Title)
		sourcePaths = append(sourcePaths, it.SourcePath)
		docTypes = append(docTypes, it.DocType)
		contents = append(contents, it.Content)
		t := it.TagsJSON
		if t == "" {
			t = "[]"
		}
		tags = append(tags, []byte(t))
	}

	_, err := s.cli.Upsert(
		ctx,
		s.docColl,
		"", // partition
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnFloatVector(s.vectorField, s.vectorDim, vectors),
		entity.NewColumnVarChar("title", titles),
		entity.NewColumnVarChar("source_path", sourcePaths),
		entity.NewColumnVarChar("doc_type", docTypes),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnJSONBytes("tags", tags),
	)
	return err
}

// InsertHistory 只追加。相同问题的重复记录是期望行为，不做去重。
func (s *MilvusStore) InsertHistory(ctx context.Context, item repository.HistoryVectorRecord) error {
	if item.ID == "" {
		return fmt.Errorf("history record missing ID")
	}
	if len(item.Vector) != s.vectorDim {
		return fmt.Errorf("vector dim mismatch for id=%s", item.ID)
	}

	_, err := s.cli.Insert(
		ctx,
		s.historyColl,
		"",
		entity.NewColumnVarChar("id", []string{item.ID}),
		entity.NewColumnFloatVector(s.vectorField, s.vectorDim, [][]float32{item.Vector}),
		entity.NewColumnVarChar("question", []string{item.Question}),
		entity.NewColumnVarChar("sql_text", []string{item.SqlText}),
		entity.NewColumnBool("success", []bool{item.Success}),
		entity.NewColumnInt64("row_count", []int64{item.RowCount}),
		entity.NewColumnVarChar("created_at", []string{item.CreatedAt}),
	)
	return err
}

func (s *MilvusStore) SearchDocs(ctx context.Context, vector []float32, topK int) ([]repository.DocSearchHit, error) {
	res, err := s.search(ctx, s.docColl, vector, topK,
		[]string{"id", "title", "source_path", "doc_type", "content", "tags"})
	if err != nil {
		return nil, err
	}

	hits := make([]repository.DocSearchHit, 0)
	for _, sr := range res {
		if sr.Err != nil {
			return nil, sr.Err
		}
		getCol := columnGetter(sr.Fields)
		titleCol := getCol("title")
		pathCol := getCol("source_path")
		typeCol := getCol("doc_type")
		contentCol := getCol("content")
		tagsCol := getCol("tags")

		for i := 0; i < sr.ResultCount; i++ {
			id, _ := sr.IDs.GetAsString(i)
			hit := repository.DocSearchHit{ID: id, Score: sr.Scores[i]}
			if titleCol != nil {
				hit.Title, _ = titleCol.GetAsString(i)
			}
			if pathCol != nil {
				hit.SourcePath, _ = pathCol.GetAsString(i)
			}
			if typeCol != nil {
				hit.DocType, _ = typeCol.GetAsString(i)
			}
			if contentCol != nil {
				hit.Content, _ = contentCol.GetAsString(i)
			}
			if tagsCol != nil {
				if v, err := tagsCol.Get(i); err == nil {
					if bs, ok := v.([]byte); ok {
						hit.TagsJSON = string(bs)
					}
				}
			}
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

func (s *MilvusStore) SearchHistory(ctx context.Context, vector []float32, topK int) ([]repository.HistorySearchHit, error) {
	res, err := s.search(ctx, s.historyColl, vector, topK,
		[]string{"id", "question", "sql_text", "success"})
	if err != nil {
		return nil, err
	}

	hits := make([]repository.HistorySearchHit, 0)
	for _, sr := range res {
		if sr.Err != nil {
			return nil, sr.Err
		}
		getCol := columnGetter(sr.Fields)
		questionCol := getCol("question")
		sqlCol := getCol("sql_text")
		successCol := getCol("success")

		for i := 0; i < sr.ResultCount; i++ {
			id, _ := sr.IDs.GetAsString(i)
			hit := repository.HistorySearchHit{ID: id, Score: sr.Scores[i]}
			if questionCol != nil {
				hit.Question, _ = questionCol.GetAsString(i)
			}
			if sqlCol != nil {
				hit.SqlText, _ = sqlCol.GetAsString(i)
			}
			if successCol != nil {
				if v, err := successCol.Get(i); err == nil {
					if b, ok := v.(bool); ok {
						hit.Success = b
					}
				}
			}
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

func (s *MilvusStore) CountDocs(ctx context.Context) (int64, error) {
	stats, err := s.cli.GetCollectionStatistics(ctx, s.docColl)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(stats["row_count"], 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (s *MilvusStore) search(ctx context.Context, collection string, vector []float32, topK int, outputFields []string) ([]mclient.SearchResult, error) {
	if len(vector) != s.vectorDim {
		return nil, fmt.Errorf("vector dim mismatch: got=%d want=%d", len(vector), s.vectorDim)
	}
	if topK <= 0 {
		return []mclient.SearchResult{}, nil
	}

	sp, _ := entity.NewIndexAUTOINDEXSearchParam(1)
	return s.cli.Search(
		ctx,
		collection,
		nil,
		"",
		outputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		s.vectorField,
		entity.COSINE,
		topK,
		sp,
	)
}

func columnGetter(fields []entity.Column) func(string) entity.Column {
	return func(name string) entity.Column {
		for _, c := range fields {
			if c.Name() == name {
				return c
			}
		}
		return nil
	}
}
