package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	httpServer "QueryLink/api/http"
	"QueryLink/internal/config"
	"QueryLink/internal/initial"
	"QueryLink/internal/modules/assistant/application/service"
	"QueryLink/internal/modules/assistant/domain/repository"
	"QueryLink/internal/modules/assistant/infrastructure/chunking"
	"QueryLink/internal/modules/assistant/infrastructure/docloader"
	embeddingProvider "QueryLink/internal/modules/assistant/infrastructure/embedding"
	"QueryLink/internal/modules/assistant/infrastructure/llm"
	"QueryLink/internal/modules/assistant/infrastructure/mq/kafka"
	"QueryLink/internal/modules/assistant/infrastructure/persistence"
	"QueryLink/internal/modules/assistant/infrastructure/pipeline"
	"QueryLink/internal/modules/assistant/infrastructure/queue"
	"QueryLink/internal/modules/assistant/infrastructure/sqlagent"
	"QueryLink/internal/modules/assistant/infrastructure/vectordb"
	"QueryLink/internal/shell"
	"QueryLink/pkg/zlog"

	einoEmbedding "github.com/cloudwego/eino/components/embedding"
	"go.uber.org/zap"
)

func main() {
	serve := flag.Bool("serve", false, "run as HTTP server instead of interactive shell")
	flag.Parse()

	// 1. 加载配置与日志
	conf := config.GetConfig()
	zlog.Init(conf.LogConfig.LogPath)
	defer zlog.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. 打开 MySQL 与 Milvus
	db, err := initial.OpenGorm(conf)
	if err != nil {
		zlog.Fatal("mysql open failed", zap.Error(err))
	}
	defer func() { _ = initial.CloseGorm(db) }()

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

	// 3. AI 协作方
	embedder, embMeta, err := embeddingProvider.NewEmbedderFromConfig(ctx, conf)
	if err != nil {
		zlog.Fatal("embedder init failed", zap.Error(err))
	}
	cm, cmMeta, err := llm.NewChatModelFromConfig(ctx, conf)
	if err != nil {
		zlog.Fatal("chat model init failed", zap.Error(err))
	}
	zlog.Info("ai providers ready",
		zap.String("embedding", fmt.Sprintf("%s/%s", embMeta.Provider, embMeta.Model)),
		zap.String("chat_model", fmt.Sprintf("%s/%s", cmMeta.Provider, cmMeta.Model)))

	agent, err := sqlagent.NewAgent(ctx, cm, db, conf)
	if err != nil {
		zlog.Fatal("sql agent init failed", zap.Error(err))
	}

	// 4. Pipeline 与应用服务
	retriever, err := pipeline.NewRetrievePipeline(embedder, vs, dim)
	if err != nil {
		zlog.Fatal("retrieve pipeline init failed", zap.Error(err))
	}
	histRepo := persistence.NewHistoryRepository(db)
	answerPipe, err := pipeline.NewAnswerPipeline(retriever, agent, histRepo, vs, embedder, dim, pipeline.AnswerOptions{
		KDocs:           conf.AgentConfig.KDocs,
		KHistory:        conf.AgentConfig.KHistory,
		MaxContextChars: conf.AgentConfig.MaxContextChars,
		DBName:          conf.MysqlConfig.DatabaseName,
		TopKRows:        conf.AgentConfig.TopKRows,
	})
	if err != nil {
		zlog.Fatal("answer pipeline init failed", zap.Error(err))
	}
	svc, err := service.NewAssistantService(answerPipe, histRepo, vs, embedder, dim, db)
	if err != nil {
		zlog.Fatal("assistant service init failed", zap.Error(err))
	}

	if *serve {
		runServer(ctx, cancel, conf, svc, embedder, vs)
		return
	}
	runShell(ctx, cancel, svc)
}

// runShell 交互式 REPL 模式（默认）
func runShell(ctx context.Context, cancel context.CancelFunc, svc service.AssistantService) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	sh, err := shell.NewShell(svc, os.Stdin, os.Stdout)
	if err != nil {
		zlog.Fatal("shell init failed", zap.Error(err))
	}
	if err := sh.Run(ctx); err != nil && err != context.Canceled {
		zlog.Error("shell exited with error", zap.Error(err))
	}
}

// runServer HTTP 服务模式。配置了 Kafka 时同时拉起 ingest 消费端。
func runServer(
	ctx context.Context,
	cancel context.CancelFunc,
	conf *config.Config,
	svc service.AssistantService,
	embedder einoEmbedding.Embedder,
	vs repository.VectorStore,
) {
	ge, err := httpServer.NewEngine(conf, svc)
	if err != nil {
		zlog.Fatal("http engine init failed", zap.Error(err))
	}

	// 可选的异步文档入库消费端
	var worker *queue.IngestConsumerWorker
	if len(conf.KafkaConfig.Brokers) > 0 && conf.KafkaConfig.IngestTopic != "" {
		worker, err = startIngestWorker(ctx, conf, embedder, vs)
		if err != nil {
			zlog.Error("ingest worker start failed, continuing without async ingest", zap.Error(err))
		}
	}

	go func() {
		addr := fmt.Sprintf("%s:%d", conf.MainConfig.Host, conf.MainConfig.Port)
		zlog.Info("http server starting", zap.String("addr", addr))
		if err := ge.Run(addr); err != nil {
			zlog.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down")
	cancel()
	if worker != nil {
		_ = worker.Close()
	}
	zlog.Info("server stopped")
}

func startIngestWorker(ctx context.Context, conf *config.Config, embedder einoEmbedding.Embedder, vs repository.VectorStore) (*queue.IngestConsumerWorker, error) {
	if err := kafka.EnsureTopic(kafka.TopicAdminConfig{
		Brokers:  conf.KafkaConfig.Brokers,
		ClientID: conf.KafkaConfig.ClientID,
	}, conf.KafkaConfig.IngestTopic, conf.KafkaConfig.Partitions, conf.KafkaConfig.Replication); err != nil {
		return nil, err
	}

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:  conf.KafkaConfig.Brokers,
		GroupID:  conf.KafkaConfig.ConsumerGroupID,
		Topics:   []string{conf.KafkaConfig.IngestTopic},
		ClientID: conf.KafkaConfig.ClientID,
	})
	if err != nil {
		return nil, err
	}

	chunker := chunking.NewDocChunker(conf.AgentConfig.ChunkSize, conf.AgentConfig.ChunkOverlap)
	ingestor, err := docloader.NewIngestor(embedder, vs, chunker)
	if err != nil {
		_ = consumer.Close()
		return nil, err
	}
	worker, err := queue.NewIngestConsumerWorker(consumer, ingestor)
	if err != nil {
		_ = consumer.Close()
		return nil, err
	}

	go func() {
		if err := worker.Run(ctx); err != nil && err != context.Canceled {
			zlog.Error("ingest worker exited", zap.Error(err))
		}
	}()
	zlog.Info("ingest worker started", zap.String("topic", conf.KafkaConfig.IngestTopic))
	return worker, nil
}
