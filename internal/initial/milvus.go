package initial

import (
	"context"
	"fmt"
	"strings"

	"QueryLink/internal/config"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	DefaultDocCollection     = "documentation"
	DefaultHistoryCollection = "history"
)

// OpenMilvus 连接 Milvus 并确保 documentation / history 两个集合存在。
// 两个集合共用向量维度与度量方式，检索时各自独立查询。
func OpenMilvus(ctx context.Context, conf *config.Config) (mclient.Client, error) {
	addr := strings.TrimSpace(conf.MilvusConfig.Address)
	if addr == "" {
		return nil, fmt.Errorf("milvus address is empty")
	}

	dbName := strings.TrimSpace(conf.MilvusConfig.DBName)
	if dbName == "" {
		dbName = "querylink"
	}
	dim := conf.MilvusConfig.VectorDim
	if dim <= 0 {
		dim = 1536
	}

	defaultCli, err := mclient.NewClient(ctx, mclient.Config{
		Address:  addr,
		Username: strings.TrimSpace(conf.MilvusConfig.Username),
		Password: strings.TrimSpace(conf.MilvusConfig.Password),
		DBName:   "default",
	})
	if err != nil {
		return nil, err
	}

	dbs, err := defaultCli.ListDatabases(ctx)
	if err != nil {
		_ = defaultCli.Close()
		return nil, err
	}
	exists := false
	for _, db := range dbs {
		if db.Name == dbName {
			exists = true
			break
		}
	}
	if !exists {
		if err := defaultCli.CreateDatabase(ctx, dbName); err != nil {
			_ = defaultCli.Close()
			return nil, err
		}
	}
	_ = defaultCli.Close()

	cli, err := mclient.NewClient(ctx, mclient.Config{
		Address:  addr,
		Username: strings.TrimSpace(conf.MilvusConfig.Username),
		Password: strings.TrimSpace(conf.MilvusConfig.Password),
		DBName:   dbName,
	})
	if err != nil {
		return nil, err
	}

	if err := ensureCollection(ctx, cli, DocCollectionName(conf), docSchema(DocCollectionName(conf), dim)); err != nil {
		_ = cli.Close()
		return nil, err
	}
	if err := ensureCollection(ctx, cli, HistoryCollectionName(conf), historySchema(HistoryCollectionName(conf), dim)); err != nil {
		_ = cli.Close()
		return nil, err
	}

	return cli, nil
}

func DocCollectionName(conf *config.Config) string {
	if c := strings.TrimSpace(conf.MilvusConfig.DocCollection); c != "" {
		return c
	}
	return DefaultDocCollection
}

func HistoryCollectionName(conf *config.Config) string {
	if c := strings.TrimSpace(conf.MilvusConfig.HistoryCollection); c != "" {
		return c
	}
	return DefaultHistoryCollection
}

func ensureCollection(ctx context.Context, cli mclient.Client, name string, schema *entity.Schema) error {
	cols, err := cli.ListCollections(ctx)
	if err != nil {
		return err
	}
	collExists := false
	for _, c := range cols {
		if c.Name == name {
			collExists = true
			break
		}
	}

	if !collExists {
		if err := cli.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return err
		}
		idx, err := entity.NewIndexAUTOINDEX(entity.COSINE)
		if err != nil {
			return err
		}
		if err := cli.CreateIndex(ctx, name, "vector", idx, false); err != nil {
			return err
		}
	}

	_ = cli.LoadCollection(ctx, name, false)
	return nil
}

func docSchema(name string, dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: name,
		Description:    "QueryLink schema documentation chunks",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "vector",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{entity.TypeParamDim: fmt.Sprintf("%d", dim)},
			},
			{
				Name:       "title",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "256"},
			},
			{
				Name:       "source_path",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:       "doc_type",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "32"},
			},
			{
				Name:       "content",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "8192"},
			},
			{
				Name:     "tags",
				DataType: entity.FieldTypeJSON,
			},
		},
	}
}

func historySchema(name string, dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: name,
		Description:    "QueryLink query history (append-only)",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "vector",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{entity.TypeParamDim: fmt.Sprintf("%d", dim)},
			},
			{
				Name:       "question",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "2048"},
			},
			{
				Name:       "sql_text",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "4096"},
			},
			{
				Name:     "success",
				DataType: entity.FieldTypeBool,
			},
			{
				Name:     "row_count",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:       "created_at",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
		},
	}
}
