package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"QueryLink/internal/config"
	"QueryLink/internal/initial"
	"QueryLink/internal/modules/assistant/application/service"
	"QueryLink/internal/modules/assistant/infrastructure/chunking"
	"QueryLink/internal/modules/assistant/infrastructure/docloader"
	embeddingProvider "QueryLink/internal/modules/assistant/infrastructure/embedding"
	"QueryLink/internal/modules/assistant/infrastructure/mq/kafka"
	"QueryLink/internal/modules/assistant/infrastructure/vectordb"
	"QueryLink/pkg/zlog"

	"go.uber.org/zap"
)

// loaddocs 把一个目录下的 markdown 文档写入 documentation 集合。
// 默认同步直写；-async 时只发 Kafka 事件，由 serve 模式的消费端入库。
func main() {
	dir := flag.String("dir", "", "directory containing *.md documentation files")
	async := flag.Bool("async", false, "publish ingest events to kafka instead of writing directly")
	flag.Parse()

	conf := config.GetConfig()
	zlog.Init(conf.LogConfig.LogPath)
	defer zlog.Sync()

	docsDir := *dir
	if docsDir == "" {
		docsDir = conf.AgentConfig.DocsDir
	}
	if docsDir == "" {
		fmt.Fprintln(os.Stderr, "usage: loaddocs -dir <docs directory> [-async]")
		os.Exit(2)
	}

	ctx := context.Background()

	if *async {
		publishDir(ctx, conf, docsDir)
		return
	}
	loadDir(ctx, conf, docsDir)
}

// publishDir 异步模式：不碰向量库，只发事件
func publishDir(ctx context.Context, conf *config.Config, docsDir string) {
	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:  conf.KafkaConfig.Brokers,
		ClientID: conf.KafkaConfig.ClientID,
	})
	if err != nil {
		zlog.Fatal("kafka publisher init failed", zap.Error(err))
	}
	defer func() { _ = publisher.Close() }()

	if err := kafka.EnsureTopic(kafka.TopicAdminConfig{
		Brokers:  conf.KafkaConfig.Brokers,
		ClientID: conf.KafkaConfig.ClientID,
	}, conf.KafkaConfig.IngestTopic, conf.KafkaConfig.Partitions, conf.KafkaConfig.Replication); err != nil {
		zlog.Fatal("kafka topic ensure failed", zap.Error(err))
	}

	svc, err := service.NewIngestService(nil, publisher)
	if err != nil {
		zlog.Fatal("ingest service init failed", zap.Error(err))
	}
	n, err := svc.PublishDir(ctx, docsDir, conf.KafkaConfig.IngestTopic)
	if err != nil {
		zlog.Fatal("publish failed", zap.Error(err))
	}
	fmt.Printf("published %d ingest events from %s\n", n, docsDir)
}

// loadDir 同步模式：切片、向量化、直写 Milvus
func loadDir(ctx context.Context, conf *config.Config, docsDir string) {
	embedder, _, err := embeddingProvider.NewEmbedderFromConfig(ctx, conf)
	if err != nil {
		zlog.Fatal("embedder init failed", zap.Error(err))
	}

	mc, err := initial.OpenMilvus(ctx, conf)
	if err != nil {
		zlog.Fatal("milvus open failed", zap.Error(err))
	}
	dim := conf.MilvusConfig.VectorDim
	if dim <= 0 {
		dim = 1536
	}
	vs, err := vectordb.NewMilvusStore(mc, initial.DocCollectionName(conf), initial.HistoryCollectionName(conf), dim)
	if err != nil {
		zlog.Fatal("vector store init failed", zap.Error(err))
	}
	defer func() { _ = vs.Close(context.Background()) }()

	chunker := chunking.NewDocChunker(conf.AgentConfig.ChunkSize, conf.AgentConfig.ChunkOverlap)
	ingestor, err := docloader.NewIngestor(embedder, vs, chunker)
	if err != nil {
		zlog.Fatal("ingestor init failed", zap.Error(err))
	}
	svc, err := service.NewIngestService(ingestor, nil)
	if err != nil {
		zlog.Fatal("ingest service init failed", zap.Error(err))
	}

	files, chunks, err := svc.LoadDir(ctx, docsDir)
	if err != nil {
		zlog.Fatal("load failed", zap.Error(err))
	}
	fmt.Printf("loaded %d files (%d chunks) from %s\n", files, chunks, docsDir)
}
