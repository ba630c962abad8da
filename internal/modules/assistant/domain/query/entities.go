package query

import "time"

// Outcome 一次问答尝试的结果分类
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// HistoryEntry query_history 表记录（MySQL 权威日志，只追加）。
// 向量化成功时同步写入 Milvus history 集合；失败时 Embedded=false，
// 该记录不参与相似检索，但仍可按原文精确查询。
type HistoryEntry struct {
	Id        int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	EntryId   string    `gorm:"type:varchar(64);uniqueIndex" json:"entry_id"`
	Question  string    `gorm:"type:varchar(2048);index:idx_question,length:255" json:"question"`
	SqlText   string    `gorm:"type:text" json:"sql_text"`
	Success   bool      `gorm:"index" json:"success"`
	RowCount  *int64    `json:"row_count,omitempty"`
	Embedded  bool      `json:"embedded"`
	CreatedAt time.Time `json:"created_at"`
}

func (HistoryEntry) TableName() string {
	return "query_history"
}

// DocumentChunk 文档集合中的一个切片（插入后不可变）
type DocumentChunk struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	SourcePath string   `json:"source_path"`
	DocType    string   `json:"doc_type"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags,omitempty"`
}

// DocHit / HistoryHit 相似检索命中（含得分，得分越高越相似）
type DocHit struct {
	Chunk DocumentChunk `json:"chunk"`
	Score float32       `json:"score"`
}

type HistoryHit struct {
	EntryId  string  `json:"entry_id"`
	Question string  `json:"question"`
	SqlText  string  `json:"sql_text"`
	Success  bool    `json:"success"`
	Score    float32 `json:"score"`
}

// QueryAttempt 一次 answer() 编排周期的瞬态记录
type QueryAttempt struct {
	Question     string       `json:"question"`
	Docs         []DocHit     `json:"docs,omitempty"`
	History      []HistoryHit `json:"history,omitempty"`
	GeneratedSQL string       `json:"generated_sql,omitempty"`
	Answer       string       `json:"answer"`
	RowCount     *int64       `json:"row_count,omitempty"`
	Outcome      Outcome      `json:"outcome"`
	Message      string       `json:"message,omitempty"`
	EntryId      string       `json:"entry_id,omitempty"`
	DurationMs   int64        `json:"duration_ms"`
}
