package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisMemoryConfig Redis 会话窗口配置。
type RedisMemoryConfig struct {
	KeyPrefix string        `json:"key_prefix" yaml:"key_prefix"`
	Window    int           `json:"window" yaml:"window"`
	TTL       time.Duration `json:"ttl" yaml:"ttl"` // 0 表示不过期
}

// RedisMemory Redis 实现的会话窗口，进程重启或多副本部署时
// 历史仍然可用。每轮问答作为一个 JSON 元素 RPUSH 进列表，
// LTRIM 保持窗口容量。
type RedisMemory struct {
	client    redis.UniversalClient
	sessionID string
	cfg       RedisMemoryConfig
	logger    *zap.Logger
}

// NewRedisMemory 为一个会话创建 Redis 窗口。logger 可为 nil。
func NewRedisMemory(client redis.UniversalClient, sessionID string, cfg RedisMemoryConfig, logger *zap.Logger) *RedisMemory {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ragserve:memory"
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultMemoryWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisMemory{
		client:    client,
		sessionID: sessionID,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "redis_memory")),
	}
}

func (m *RedisMemory) key() string {
	return fmt.Sprintf("%s:%s", m.cfg.KeyPrefix, m.sessionID)
}

func (m *RedisMemory) Read(ctx context.Context) (string, error) {
	raw, err := m.client.LRange(ctx, m.key(), 0, -1).Result()
	if err != nil {
		return "", fmt.Errorf("read conversation memory: %w", err)
	}

	turns := make([]ConversationTurn, 0, len(raw))
	for _, item := range raw {
		var turn ConversationTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			// 坏条目跳过，不让单条脏数据拖垮整个会话。
			m.logger.Warn("skipping corrupt memory entry", zap.Error(err))
			continue
		}
		turns = append(turns, turn)
	}
	return serializeTurns(turns), nil
}

func (m *RedisMemory) Write(ctx context.Context, question, answer string) error {
	payload, err := json.Marshal(ConversationTurn{Question: question, Answer: answer})
	if err != nil {
		return fmt.Errorf("encode conversation turn: %w", err)
	}

	key := m.key()
	pipe := m.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, int64(-m.cfg.Window), -1)
	if m.cfg.TTL > 0 {
		pipe.Expire(ctx, key, m.cfg.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write conversation memory: %w", err)
	}
	return nil
}

func (m *RedisMemory) Clear(ctx context.Context) error {
	if err := m.client.Del(ctx, m.key()).Err(); err != nil {
		return fmt.Errorf("clear conversation memory: %w", err)
	}
	return nil
}
