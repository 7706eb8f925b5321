package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FieldConfig 定义了 Milvus 集合中字段的配置。
type FieldConfig struct {
	Name         string `yaml:"name"`                // 字段名称
	DataType     string `yaml:"dataType"`            // 字段数据类型 (例如: "VarChar", "FloatVector")
	IsPrimaryKey bool   `yaml:"isPrimaryKey"`        // 是否为主键
	IsAutoID     bool   `yaml:"isAutoID"`            // 是否自动生成ID
	Dim          int    `yaml:"dim,omitempty"`       // 向量维度 (仅适用于向量类型)
	MaxLength    int    `yaml:"maxLength,omitempty"` // 最大长度 (仅适用于VarChar类型)
}

// IndexConfig 定义了 Milvus 集合中索引的配置。
type IndexConfig struct {
	FieldName  string                 `yaml:"fieldName"`  // 要创建索引的字段名称
	IndexType  string                 `yaml:"indexType"`  // 索引类型 (例如: "IVF_FLAT", "HNSW")
	MetricType string                 `yaml:"metricType"` // 相似度度量类型，检索分数换算假定为 "L2"
	Params     map[string]interface{} `yaml:"params"`     // 索引参数 (例如: {"nlist": 128})
}

// SchemaConfig 定义了 Milvus 集合的 Schema 配置。
type SchemaConfig struct {
	CollectionName string        `yaml:"collectionName"` // 集合名称
	Description    string        `yaml:"description"`    // 集合描述
	VectorField    string        `yaml:"vectorField"`    // 向量字段名称
	Fields         []FieldConfig `yaml:"fields"`         // 字段配置列表
	Index          IndexConfig   `yaml:"index"`          // 索引配置
}

// MilvusConfig 定义了 Milvus 数据库的连接和 Schema 配置。
type MilvusConfig struct {
	Address string       `yaml:"address"` // Milvus 服务地址
	Schema  SchemaConfig `yaml:"schema"`  // Milvus 集合 Schema 配置
	NProbe  int          `yaml:"nprobe"`  // IVF 检索时探查的聚类数
}

// Dimension 返回向量字段配置的维度，未配置时返回 0。
func (m MilvusConfig) Dimension() int {
	for _, f := range m.Schema.Fields {
		if f.Name == m.Schema.VectorField {
			return f.Dim
		}
	}
	return 0
}

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// MySQLConfig 定义了 MySQL 数据库的连接配置。
type MySQLConfig struct {
	Address         string `yaml:"address"`         // MySQL 服务器地址
	Username        string `yaml:"username"`        // 用户名
	Password        string `yaml:"password"`        // 密码
	Database        string `yaml:"database"`        // 数据库名称
	MaxOpenConns    int    `yaml:"maxOpenConns"`    // 最大打开连接数
	MaxIdleConns    int    `yaml:"maxIdleConns"`    // 最大空闲连接数
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // 连接最大生命周期 (秒)
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`    // Kafka Broker 地址列表
	AuditTopic string   `yaml:"auditTopic"` // 审计事件主题，为空时不发送审计事件
}

// DatabaseConfigs 包含所有数据库的配置。
type DatabaseConfigs struct {
	Milvus MilvusConfig `yaml:"milvus"` // Milvus 数据库配置
	Redis  RedisConfig  `yaml:"redis"`  // Redis 数据库配置
	MySQL  MySQLConfig  `yaml:"mysql"`  // MySQL 数据库配置
	Kafka  KafkaConfig  `yaml:"kafka"`  // Kafka 消息队列配置
}

// AuthConfig 用于配置 JWT 认证。
type AuthConfig struct {
	JwtSecret  string `yaml:"jwtSecret"`  // JWT 签名密钥 (HS256)
	TeamsClaim string `yaml:"teamsClaim"` // 存放可访问球队列表的 claim 名称
	Issuer     string `yaml:"issuer"`     // 期望的签发者，为空时不校验
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// ServerConfig 定义了 HTTP 服务的监听配置。
type ServerConfig struct {
	Address string `yaml:"address"` // 监听地址 (例如: ":8080")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App        AppInfo          `yaml:"app"`        // 应用程序信息
	Server     ServerConfig     `yaml:"server"`     // HTTP 服务配置
	Auth       AuthConfig       `yaml:"auth"`       // 认证配置
	LLM        LLMConfig        `yaml:"llm"`        // LLM 配置部分
	Embedding  EmbeddingConfig  `yaml:"embedding"`  // Embedding 配置部分
	Logger     LoggerConfig     `yaml:"logger"`     // 日志记录器配置
	Databases  DatabaseConfigs  `yaml:"databases"`  // 数据库配置
	Middleware MiddlewareConfig `yaml:"middleware"` // 中间件配置
	Pipeline   PipelineConfig   `yaml:"pipeline"`   // 问答流水线配置
}

// LLMConfig 包含了不同LLM提供商的配置。
type LLMConfig struct {
	Provider string       `yaml:"provider"` // LLM提供商: "gemini", "openai", "ollama", "template"
	Gemini   GeminiConfig `yaml:"gemini"`   // Gemini 模型配置
	OpenAI   OpenAIConfig `yaml:"openai"`   // OpenAI 模型配置
	Ollama   OllamaConfig `yaml:"ollama"`   // Ollama 模型配置
	// CircuitBreaker 保护对模型提供商的调用，熔断期间答案直接以生成失败结束
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// EmbeddingConfig 包含了不同Embedding提供商的配置。
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"`  // Embedding提供商: "gemini", "openai", "ollama", "hashing"
	Gemini    GeminiConfig  `yaml:"gemini"`    // Gemini 模型配置
	OpenAI    OpenAIConfig  `yaml:"openai"`    // OpenAI 模型配置
	Ollama    OllamaConfig  `yaml:"ollama"`    // Ollama 模型配置
	Dimension int           `yaml:"dimension"` // 向量维度，必须与向量库一致
	CacheTTL  time.Duration `yaml:"cacheTTL"`  // 查询向量缓存时间，0 表示使用默认值
}

// GeminiConfig 包含了 Gemini 模型的配置。
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"` // Gemini API 密钥
	Model  string `yaml:"model"`  // Gemini 模型名称
}

// OpenAIConfig 包含了 OpenAI 兼容接口的配置。
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`  // API 密钥
	Model   string `yaml:"model"`   // 模型名称
	BaseURL string `yaml:"baseURL"` // 自定义服务地址，为空时使用官方地址
}

// OllamaConfig 包含了 Ollama 服务的配置。
type OllamaConfig struct {
	BaseURL string `yaml:"baseURL"` // Ollama 服务地址
	Model   string `yaml:"model"`   // 模型名称
}

// PipelineConfig 定义了问答流水线的预算与调优参数。
type PipelineConfig struct {
	StructuredStore     string            `yaml:"structuredStore"`     // 结构化数据源: "mysql" 或 "memory"
	VectorStore         string            `yaml:"vectorStore"`         // 向量库: "milvus" 或 "memory"
	RequestTimeout      time.Duration     `yaml:"requestTimeout"`      // 单个请求的总超时
	StructuredTimeout   time.Duration     `yaml:"structuredTimeout"`   // 结构化检索分支超时
	SemanticTimeout     time.Duration     `yaml:"semanticTimeout"`     // 语义检索分支超时
	RetryBackoff        time.Duration     `yaml:"retryBackoff"`        // 语义检索重试前的等待时间
	TopK                int               `yaml:"topK"`                // 语义检索返回的文档数
	MaxEvidence         int               `yaml:"maxEvidence"`         // 融合后保留的证据上限
	RowLimit            int               `yaml:"rowLimit"`            // 单次结构化查询的行数上限
	ScoreTransform      string            `yaml:"scoreTransform"`      // 距离到分数的转换: "inverse", "exponential", "linear"
	ScoreScale          float64           `yaml:"scoreScale"`          // 转换函数的尺度参数
	ConfidenceThreshold float64           `yaml:"confidenceThreshold"` // 指标匹配的最低置信度
	LLMExtraction       bool              `yaml:"llmExtraction"`       // 规则无法识别指标时是否调用 LLM 抽取
	TeamAliases         map[string]string `yaml:"teamAliases"`         // 球队别名到球队 ID 的映射
}

// WithDefaults 返回一个把零值字段替换为默认值的副本。
func (p PipelineConfig) WithDefaults() PipelineConfig {
	if p.StructuredStore == "" {
		p.StructuredStore = "mysql"
	}
	if p.VectorStore == "" {
		p.VectorStore = "milvus"
	}
	if p.RequestTimeout <= 0 {
		p.RequestTimeout = 30 * time.Second
	}
	if p.StructuredTimeout <= 0 {
		p.StructuredTimeout = 5 * time.Second
	}
	if p.SemanticTimeout <= 0 {
		p.SemanticTimeout = 3 * time.Second
	}
	if p.RetryBackoff <= 0 {
		p.RetryBackoff = 200 * time.Millisecond
	}
	if p.TopK <= 0 {
		p.TopK = 5
	}
	if p.MaxEvidence <= 0 {
		p.MaxEvidence = 20
	}
	if p.RowLimit <= 0 {
		p.RowLimit = 100
	}
	if p.ScoreTransform == "" {
		p.ScoreTransform = "inverse"
	}
	if p.ScoreScale <= 0 {
		p.ScoreScale = 1
	}
	if p.ConfidenceThreshold <= 0 {
		p.ConfidenceThreshold = 0.7
	}
	return p
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig 定义了限流器的配置。每个调用方（JWT 用户或客户端地址）独享一个限流器。
type RateLimiterConfig struct {
	Enabled        bool                 `yaml:"enabled"`
	Algorithm      string               `yaml:"algorithm"`   // 支持: "tokenBucket"（默认）, "fixedWindow", "slidingCounter"
	MaxClients     int                  `yaml:"maxClients"`  // 同时跟踪的调用方上限，默认 10000
	IdleTimeout    string               `yaml:"idleTimeout"` // 调用方空闲多久后被遗忘，例如 "10m"
	FixedWindow    FixedWindowConfig    `yaml:"fixedWindow"`
	SlidingCounter SlidingCounterConfig `yaml:"slidingCounter"`
	TokenBucket    TokenBucketConfig    `yaml:"tokenBucket"`
}

// FixedWindowConfig 定义了固定窗口计数器算法的配置。
type FixedWindowConfig struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"` // 例如: "1m", "30s"
}

// SlidingCounterConfig 定义了滑动窗口计数器算法的配置。
type SlidingCounterConfig struct {
	Limit      int    `yaml:"limit"`
	Window     string `yaml:"window"`
	NumBuckets int    `yaml:"numBuckets"`
}

// TokenBucketConfig 定义了令牌桶算法的配置。
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // 每秒速率
	Capacity int     `yaml:"capacity"`
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// Validate 检查启动前必须满足的约束，任何错误都属于配置错误。
func (c *AppConfig) Validate() error {
	switch c.LLM.Provider {
	case "gemini", "openai", "ollama", "template":
	default:
		return fmt.Errorf("不支持的 LLM 提供商: %q", c.LLM.Provider)
	}
	switch c.Embedding.Provider {
	case "gemini", "openai", "ollama", "hashing":
	default:
		return fmt.Errorf("不支持的 Embedding 提供商: %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension 必须大于 0")
	}
	switch c.Pipeline.StructuredStore {
	case "mysql", "memory":
	default:
		return fmt.Errorf("不支持的结构化数据源: %q", c.Pipeline.StructuredStore)
	}
	switch c.Pipeline.VectorStore {
	case "memory":
	case "milvus":
		if dim := c.Databases.Milvus.Dimension(); dim != c.Embedding.Dimension {
			return fmt.Errorf("Milvus 向量维度 %d 与 embedding.dimension %d 不一致", dim, c.Embedding.Dimension)
		}
	default:
		return fmt.Errorf("不支持的向量库: %q", c.Pipeline.VectorStore)
	}
	if c.Auth.JwtSecret == "" {
		return fmt.Errorf("auth.jwtSecret 不能为空")
	}
	return nil
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
// 文件中的 ${VAR} 会先被替换为同名环境变量，便于注入密钥。
//
// 参数:
//
//	path: YAML 配置文件的路径。
//
// 返回值:
//
//	*AppConfig: 解析后并填充默认值的应用程序配置结构体。
//	error: 如果文件读取、解析或校验失败，则返回错误。
func LoadConfig(path string) (*AppConfig, error) {
	// 读取 YAML 文件内容。
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(yamlFile))), &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.Pipeline = cfg.Pipeline.WithDefaults()
	if cfg.Auth.TeamsClaim == "" {
		cfg.Auth.TeamsClaim = "teams"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	return &cfg, nil
}
