package persistence

import (
	"context"
	"fmt"

	"QueryLink/internal/modules/assistant/domain/query"
	"QueryLink/internal/modules/assistant/domain/repository"

	"gorm.io/gorm"
)

// historyRepositoryImpl query_history 表的 gorm 实现（只追加）
type historyRepositoryImpl struct {
	db *gorm.DB
}

var _ repository.HistoryRepository = (*historyRepositoryImpl)(nil)

func NewHistoryRepository(db *gorm.DB) repository.HistoryRepository {
	return &historyRepositoryImpl{db: db}
}

func (r *historyRepositoryImpl) Append(ctx context.Context, entry *query.HistoryEntry) error {
	if entry == nil {
		return fmt.Errorf("nil history entry")
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *historyRepositoryImpl) FindByQuestion(ctx context.Context, question string, limit int) ([]*query.HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	var entries []*query.HistoryEntry
	err := r.db.WithContext(ctx).
		Where("question = ?", question).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *historyRepositoryImpl) Counts(ctx context.Context) (repository.HistoryCounts, error) {
	var counts repository.HistoryCounts
	db := r.db.WithContext(ctx).Model(&query.HistoryEntry{})
	if err := db.Count(&counts.Total).Error; err != nil {
		return counts, err
	}
	if err := r.db.WithContext(ctx).Model(&query.HistoryEntry{}).
		Where("success = ?", true).Count(&counts.Successful).Error; err != nil {
		return counts, err
	}
	counts.Failed = counts.Total - counts.Successful
	return counts, nil
}
