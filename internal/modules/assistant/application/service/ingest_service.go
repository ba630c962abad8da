package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"QueryLink/internal/modules/assistant/infrastructure/docloader"
	"QueryLink/internal/modules/assistant/infrastructure/mq"
	"QueryLink/pkg/util"
	"QueryLink/pkg/zlog"

	"go.uber.org/zap"
)

// IngestService 文档加载门面：同步直写向量库，或发 Kafka 由消费端入库
type IngestService interface {
	// LoadDir 同步加载目录下全部 *.md，返回 (文件数, 切片数)
	LoadDir(ctx context.Context, dir string) (int, int, error)
	// PublishDir 将目录下全部 *.md 作为 ingest 事件发布，返回发布的文件数
	PublishDir(ctx context.Context, dir, topic string) (int, error)
}

type ingestServiceImpl struct {
	ingestor  *docloader.Ingestor
	publisher mq.Publisher
}

// NewIngestService 创建 IngestService。两个依赖按模式可各自为 nil，
// 但至少要有一个：同步模式要 ingestor，异步模式要 publisher。
func NewIngestService(ingestor *docloader.Ingestor, publisher mq.Publisher) (IngestService, error) {
	if ingestor == nil && publisher == nil {
		return nil, fmt.Errorf("ingestor and publisher are both nil")
	}
	return &ingestServiceImpl{ingestor: ingestor, publisher: publisher}, nil
}

func (s *ingestServiceImpl) LoadDir(ctx context.Context, dir string) (int, int, error) {
	if s.ingestor == nil {
		return 0, 0, fmt.Errorf("ingestor not configured")
	}
	return s.ingestor.LoadDir(ctx, dir)
}

func (s *ingestServiceImpl) PublishDir(ctx context.Context, dir, topic string) (int, error) {
	if s.publisher == nil {
		return 0, fmt.Errorf("kafka publisher not configured")
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, fmt.Errorf("no markdown files found in %s", dir)
	}

	published := 0
	for _, path := range matches {
		content, err := os.ReadFile(path)
		if err != nil {
			zlog.Error("failed to read document", zap.String("path", path), zap.Error(err))
			continue
		}
		name := filepath.Base(path)
		ev := docloader.IngestEvent{
			SourcePath: path,
			Title:      docloader.TitleFromFilename(name),
			DocType:    docloader.DocTypeForFile(name),
			Content:    string(content),
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			zlog.Error("failed to encode ingest event", zap.String("path", path), zap.Error(err))
			continue
		}

		// Key 用路径的内容寻址 ID，同一文件的事件落到同一分区，保序
		res, err := s.publisher.Publish(ctx, mq.Message{
			Topic: topic,
			Key:   []byte(util.DeterministicID(path)),
			Value: payload,
		})
		if err != nil {
			zlog.Error("failed to publish ingest event", zap.String("path", path), zap.Error(err))
			continue
		}
		published++
		zlog.Info("ingest event published",
			zap.String("path", path),
			zap.Int32("partition", res.Partition),
			zap.Int64("offset", res.Offset))
	}
	return published, nil
}
