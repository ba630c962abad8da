package repository

import (
	"context"

	"QueryLink/internal/modules/assistant/domain/query"
)

// HistoryCounts stats 命令展示的历史统计
type HistoryCounts struct {
	Total      int64
	Successful int64
	Failed     int64
}

// HistoryRepository query_history 表仓储。只追加，从不更新或删除。
type HistoryRepository interface {
	Append(ctx context.Context, entry *query.HistoryEntry) error
	// FindByQuestion 按问题原文精确查询（含未向量化的记录）
	FindByQuestion(ctx context.Context, question string, limit int) ([]*query.HistoryEntry, error)
	Counts(ctx context.Context) (HistoryCounts, error)
}
