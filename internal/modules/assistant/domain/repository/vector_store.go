package repository

import "context"

// DocVectorRecord documentation 集合的一条记录
type DocVectorRecord struct {
	ID         string
	Vector     []float32
	Title      string
	SourcePath string
	DocType    string
	Content    string
	TagsJSON   string
}

// HistoryVectorRecord history 集合的一条记录
type HistoryVectorRecord struct {
	ID        string
	Vector    []float32
	Question  string
	SqlText   string
	Success   bool
	RowCount  int64
	CreatedAt string
}

// DocSearchHit / HistorySearchHit 相似检索命中，按得分降序返回
type DocSearchHit struct {
	ID         string
	Title      string
	SourcePath string
	DocType    string
	Content    string
	TagsJSON   string
	Score      float32
}

type HistorySearchHit struct {
	ID       string
	Question string
	SqlText  string
	Success  bool
	Score    float32
}

// VectorStore 向量库访问接口。documentation 与 history 两个集合共享
// 向量维度与度量方式，但各自独立检索，排名互不混合。
type VectorStore interface {
	// UpsertDocs 写入文档切片；同一 ID 重复写入为覆盖（幂等重载）
	UpsertDocs(ctx context.Context, items []DocVectorRecord) error
	// InsertHistory 追加一条历史记录向量
	InsertHistory(ctx context.Context, item HistoryVectorRecord) error
	SearchDocs(ctx context.Context, vector []float32, topK int) ([]DocSearchHit, error)
	SearchHistory(ctx context.Context, vector []float32, topK int) ([]HistorySearchHit, error)
	// CountDocs documentation 集合当前条数（stats 用）
	CountDocs(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}
