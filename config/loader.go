package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader 按"默认值 → YAML → 环境变量"的优先级加载配置
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{envPrefix: "RAGSERVE"}
}

// WithConfigPath 指定 YAML 配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 指定环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load 加载并校验配置
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	l.applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 用环境变量覆盖已知配置项
func (l *Loader) applyEnv(cfg *Config) {
	l.envString("LLM_API_KEY", &cfg.LLM.APIKey)
	l.envString("LLM_BASE_URL", &cfg.LLM.BaseURL)
	l.envString("LLM_CHAT_MODEL", &cfg.LLM.ChatModel)
	l.envString("LLM_EMBED_MODEL", &cfg.LLM.EmbedModel)

	l.envInt("SERVER_HTTP_PORT", &cfg.Server.HTTPPort)
	l.envInt("SERVER_METRICS_PORT", &cfg.Server.MetricsPort)
	l.envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	l.envString("VECTOR_BACKEND", &cfg.Vector.Backend)
	l.envString("VECTOR_HOST", &cfg.Vector.Host)
	l.envInt("VECTOR_PORT", &cfg.Vector.Port)
	l.envString("VECTOR_COLLECTION", &cfg.Vector.Collection)
	l.envString("VECTOR_API_KEY", &cfg.Vector.APIKey)

	l.envString("MEMORY_BACKEND", &cfg.Memory.Backend)
	l.envInt("MEMORY_WINDOW_SIZE", &cfg.Memory.WindowSize)
	l.envString("MEMORY_REDIS_ADDR", &cfg.Memory.RedisAddr)
	l.envString("MEMORY_REDIS_PASSWORD", &cfg.Memory.RedisPassword)

	l.envString("DATABASE_PATH", &cfg.Database.Path)
	l.envString("LOG_LEVEL", &cfg.Log.Level)
	l.envString("LOG_FORMAT", &cfg.Log.Format)

	l.envBool("TELEMETRY_ENABLED", &cfg.Telemetry.Enabled)
	l.envString("TELEMETRY_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
}

func (l *Loader) lookup(key string) (string, bool) {
	return os.LookupEnv(l.envPrefix + "_" + key)
}

func (l *Loader) envString(key string, dst *string) {
	if v, ok := l.lookup(key); ok {
		*dst = v
	}
}

func (l *Loader) envInt(key string, dst *int) {
	if v, ok := l.lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (l *Loader) envBool(key string, dst *bool) {
	if v, ok := l.lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func (l *Loader) envDuration(key string, dst *time.Duration) {
	if v, ok := l.lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Validate 校验配置的合法性
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("config: invalid http_port %d", c.Server.HTTPPort)
	}
	switch c.Vector.Backend {
	case "memory", "qdrant":
	default:
		return fmt.Errorf("config: unknown vector backend %q", c.Vector.Backend)
	}
	switch c.Memory.Backend {
	case "window", "redis":
	default:
		return fmt.Errorf("config: unknown memory backend %q", c.Memory.Backend)
	}
	if c.Memory.WindowSize <= 0 {
		return fmt.Errorf("config: memory window_size must be positive, got %d", c.Memory.WindowSize)
	}
	if c.Retrieval.MaxDocs <= 0 {
		return fmt.Errorf("config: retrieval max_docs must be positive, got %d", c.Retrieval.MaxDocs)
	}
	if c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("config: chunk_overlap %d must be smaller than chunk_size %d",
			c.Retrieval.ChunkOverlap, c.Retrieval.ChunkSize)
	}
	if lvl := strings.ToLower(c.Log.Level); lvl != "debug" && lvl != "info" && lvl != "warn" && lvl != "error" {
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	return nil
}
