// =============================================================================
// ragserve 配置
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("RAGSERVE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import "time"

// Config 是 ragserve 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server"`

	// LLM Gemini 模型配置
	LLM LLMConfig `yaml:"llm"`

	// Vector 向量索引配置
	Vector VectorConfig `yaml:"vector"`

	// Memory 会话记忆配置
	Memory MemoryConfig `yaml:"memory"`

	// Retrieval 检索管线配置
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Database 文件登记库配置
	Database DatabaseConfig `yaml:"database"`

	// Log 日志配置
	Log LogConfig `yaml:"log"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// 写入超时（流式响应需要足够长）
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// CORS 允许的来源
	AllowedOrigins []string `yaml:"allowed_origins"`
	// 每秒请求限制（0 = 不限流）
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst"`
}

// LLMConfig Gemini 模型配置
type LLMConfig struct {
	// API Key（通常经由环境变量注入）
	APIKey string `yaml:"api_key"`
	// BaseURL 可覆盖为代理地址
	BaseURL string `yaml:"base_url"`
	// 聊天模型
	ChatModel string `yaml:"chat_model"`
	// 嵌入模型
	EmbedModel string `yaml:"embed_model"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout"`
}

// VectorConfig 向量索引配置
type VectorConfig struct {
	// Backend: memory | qdrant
	Backend string `yaml:"backend"`
	// Qdrant 地址
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// 集合名称
	Collection string `yaml:"collection"`
	// API Key（Qdrant Cloud）
	APIKey string `yaml:"api_key"`
}

// MemoryConfig 会话记忆配置
type MemoryConfig struct {
	// Backend: window | redis
	Backend string `yaml:"backend"`
	// 记忆窗口大小（保留的问答轮数）
	WindowSize int `yaml:"window_size"`
	// Redis 地址（backend=redis 时使用）
	RedisAddr string `yaml:"redis_addr"`
	// Redis 密码
	RedisPassword string `yaml:"redis_password"`
	// Redis 键前缀
	RedisKeyPrefix string `yaml:"redis_key_prefix"`
}

// RetrievalConfig 检索管线配置
type RetrievalConfig struct {
	// 排序后返回的最大文档数
	MaxDocs int `yaml:"max_docs"`
	// 分块大小（字符）
	ChunkSize int `yaml:"chunk_size"`
	// 分块重叠（字符）
	ChunkOverlap int `yaml:"chunk_overlap"`
	// 分块 token 统计所用的 tiktoken 模型（空 = 不统计）
	TokenizerModel string `yaml:"tokenizer_model"`
}

// DatabaseConfig 文件登记库配置
type DatabaseConfig struct {
	// SQLite 文件路径（":memory:" 用于测试）
	Path string `yaml:"path"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level: debug | info | warn | error
	Level string `yaml:"level"`
	// Format: json | console
	Format string `yaml:"format"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Default 返回带生产级默认值的配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    300 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimitRPS:    10,
			RateLimitBurst:  20,
		},
		LLM: LLMConfig{
			BaseURL:    "https://generativelanguage.googleapis.com",
			ChatModel:  "gemini-2.0-flash-lite",
			EmbedModel: "gemini-embedding-001",
			Timeout:    60 * time.Second,
		},
		Vector: VectorConfig{
			Backend:    "memory",
			Host:       "localhost",
			Port:       6333,
			Collection: "ragserve_chunks",
		},
		Memory: MemoryConfig{
			Backend:        "window",
			WindowSize:     5,
			RedisAddr:      "localhost:6379",
			RedisKeyPrefix: "ragserve:memory",
		},
		Retrieval: RetrievalConfig{
			MaxDocs:      5,
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
		Database: DatabaseConfig{
			Path: "ragserve.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			ServiceName:  "ragserve",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}
