package respond

// DocHitRespond 文档命中（API 输出形态）
type DocHitRespond struct {
	Title      string   `json:"title"`
	SourcePath string   `json:"source_path"`
	DocType    string   `json:"doc_type"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags,omitempty"`
	Score      float32  `json:"score"`
}

// HistoryHitRespond 历史问答命中（API 输出形态）
type HistoryHitRespond struct {
	Question string  `json:"question"`
	SqlText  string  `json:"sql_text"`
	Success  bool    `json:"success"`
	Score    float32 `json:"score"`
}

// QueryRespond 一次问答的完整结果
type QueryRespond struct {
	Question     string              `json:"question"`
	Answer       string              `json:"answer"`
	GeneratedSQL string              `json:"generated_sql,omitempty"`
	RowCount     *int64              `json:"row_count,omitempty"`
	Outcome      string              `json:"outcome"`
	Message      string              `json:"message,omitempty"`
	EntryId      string              `json:"entry_id,omitempty"`
	Docs         []DocHitRespond     `json:"docs,omitempty"`
	History      []HistoryHitRespond `json:"history,omitempty"`
	DurationMs   int64               `json:"duration_ms"`
}

// TablesRespond 目标库可用表列表
type TablesRespond struct {
	Tables []string `json:"tables"`
}

// StatsRespond 助手运行统计
type StatsRespond struct {
	TotalQueries      int64 `json:"total_queries"`
	SuccessfulQueries int64 `json:"successful_queries"`
	FailedQueries     int64 `json:"failed_queries"`
	DocChunks         int64 `json:"doc_chunks"`
}

// SuggestionsRespond 历史问题补全结果
type SuggestionsRespond struct {
	Suggestions []string `json:"suggestions"`
}
