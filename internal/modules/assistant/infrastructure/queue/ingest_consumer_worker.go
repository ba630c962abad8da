package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"QueryLink/internal/modules/assistant/infrastructure/docloader"
	"QueryLink/internal/modules/assistant/infrastructure/mq"
	"QueryLink/pkg/zlog"

	"go.uber.org/zap"
)

// IngestConsumerWorker 消费 Kafka 上的文档事件并入库。
// 处理失败不 mark offset，消息会被重投。
type IngestConsumerWorker struct {
	consumer mq.Consumer
	ingestor *docloader.Ingestor
}

func NewIngestConsumerWorker(consumer mq.Consumer, ingestor *docloader.Ingestor) (*IngestConsumerWorker, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is nil")
	}
	if ingestor == nil {
		return nil, fmt.Errorf("ingestor is nil")
	}
	return &IngestConsumerWorker{consumer: consumer, ingestor: ingestor}, nil
}

// Run 阻塞消费直到 ctx 取消
func (w *IngestConsumerWorker) Run(ctx context.Context) error {
	return w.consumer.Run(ctx, w)
}

func (w *IngestConsumerWorker) Close() error {
	return w.consumer.Close()
}

// Handle 实现 mq.Handler
func (w *IngestConsumerWorker) Handle(ctx context.Context, msg mq.Message) error {
	var ev docloader.IngestEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		// 脏消息直接丢弃，重投也无法修复
		zlog.Warn("skip malformed ingest event", zap.Error(err))
		return nil
	}

	n, err := w.ingestor.IngestContent(ctx, ev.SourcePath, ev.Title, ev.DocType, ev.Content)
	if err != nil {
		zlog.Error("ingest event failed",
			zap.String("source_path", ev.SourcePath),
			zap.Error(err))
		return err
	}
	zlog.Info("ingest event done",
		zap.String("source_path", ev.SourcePath),
		zap.Int("chunks", n))
	return nil
}
