package config

import (
	"log"
	"os"

	"github.com/BurntSushi/toml"
)

type MainConfig struct {
	AppName   string `toml:"appName"`
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	EnableTLS bool   `toml:"enableTLS"`
}

type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
}

type LogConfig struct {
	LogPath string `toml:"logPath"`
}

type MilvusConfig struct {
	Address           string `toml:"address"`
	Username          string `toml:"username"`
	Password          string `toml:"password"`
	DBName            string `toml:"dbName"`
	DocCollection     string `toml:"docCollection"`
	HistoryCollection string `toml:"historyCollection"`
	VectorDim         int    `toml:"vectorDim"`
	MetricType        string `toml:"metricType"`
}

type KafkaConfig struct {
	Brokers         []string `toml:"brokers"`
	ClientID        string   `toml:"clientID"`
	IngestTopic     string   `toml:"ingestTopic"`
	ConsumerGroupID string   `toml:"consumerGroupID"`
	Partitions      int32    `toml:"partitions"`
	Replication     int16    `toml:"replication"`
}

type AIEmbeddingConfig struct {
	Provider        string `toml:"provider"`
	APIKey          string `toml:"apiKey"`
	AccessKey       string `toml:"accessKey"`
	SecretKey       string `toml:"secretKey"`
	BaseURL         string `toml:"baseURL"`
	Region          string `toml:"region"`
	Model           string `toml:"model"`
	Dimensions      int    `toml:"dimensions"`
	TimeoutSeconds  int    `toml:"timeoutSeconds"`
	RetryTimes      int    `toml:"retryTimes"`
	ByAzure         bool   `toml:"byAzure"`
	AzureAPIVersion string `toml:"azureApiVersion"`
}

type AIChatModelConfig struct {
	Provider        string `toml:"provider"`
	APIKey          string `toml:"apiKey"`
	AccessKey       string `toml:"accessKey"`
	SecretKey       string `toml:"secretKey"`
	BaseURL         string `toml:"baseURL"`
	Region          string `toml:"region"`
	Model           string `toml:"model"`
	TimeoutSeconds  int    `toml:"timeoutSeconds"`
	RetryTimes      int    `toml:"retryTimes"`
	ByAzure         bool   `toml:"byAzure"`
	AzureAPIVersion string `toml:"azureApiVersion"`
}

type AIConfig struct {
	Embedding AIEmbeddingConfig `toml:"embedding"`
	ChatModel AIChatModelConfig `toml:"chatModel"`
}

// AgentConfig SQL agent 与检索行为参数
type AgentConfig struct {
	TopKRows        int    `toml:"topKRows"`        // SQL 默认 LIMIT，默认 10
	MaxSteps        int    `toml:"maxSteps"`        // agent 最大推理步数
	KDocs           int    `toml:"kDocs"`           // 文档召回条数
	KHistory        int    `toml:"kHistory"`        // 历史召回条数
	MaxContextChars int    `toml:"maxContextChars"` // 上下文块字符预算
	ChunkSize       int    `toml:"chunkSize"`
	ChunkOverlap    int    `toml:"chunkOverlap"`
	DocsDir         string `toml:"docsDir"`
}

// MCPConfig 外部 MCP 工具服务配置（可选）
type MCPConfig struct {
	Enabled                  bool     `toml:"enabled"`
	ServerURL                string   `toml:"serverURL"`
	ToolNames                []string `toml:"toolNames"`
	ToolCallTimeoutSeconds   int      `toml:"toolCallTimeoutSeconds"`
	ServerInitTimeoutSeconds int      `toml:"serverInitTimeoutSeconds"`
}

type Config struct {
	MainConfig   `toml:"mainConfig"`
	MysqlConfig  `toml:"mysqlConfig"`
	MilvusConfig `toml:"milvusConfig"`
	KafkaConfig  `toml:"kafkaConfig"`
	AIConfig     `toml:"aiConfig"`
	AgentConfig  `toml:"agentConfig"`
	MCPConfig    `toml:"mcpConfig"`
	LogConfig    `toml:"logConfig"`
}

var config *Config

func LoadConfig() error {
	if config == nil {
		config = new(Config)
	}
	configPath := os.Getenv("QUERYLINK_CONFIG")
	if configPath == "" {
		configPath = "configs/config_local.toml"
	}
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		log.Printf("加载配置文件失败: %v, 尝试使用默认设置", err)
		return err
	}
	return nil
}

func GetConfig() *Config {
	if config == nil {
		config = new(Config)
		_ = LoadConfig()
	}
	return config
}
