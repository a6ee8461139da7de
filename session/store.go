package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/answerflow/types"
)

// ErrNotFound 表示存储中没有对应会话。
var ErrNotFound = errors.New("session: conversation not found")

// Store 是会话持久化契约。
// 实现对同一 (member, session) 键的并发读写必须安全。
type Store interface {
	// Load 按键加载会话；不存在时返回 ErrNotFound。
	Load(ctx context.Context, memberID, sessionID string) (*types.Conversation, error)

	// Save 覆盖写入会话全量状态。
	Save(ctx context.Context, memberID, sessionID string, conv *types.Conversation) error
}

// storeKey 生成稳定的会话存储键。
func storeKey(memberID, sessionID string) string {
	return fmt.Sprintf("query_state:%s:%s", memberID, sessionID)
}

// ====== 内存会话存储 ======

// MemoryStore 进程内会话存储，用于测试与单实例部署。
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string][]byte
}

// NewMemoryStore 创建内存会话存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string][]byte)}
}

// Load 实现 Store。
func (s *MemoryStore) Load(_ context.Context, memberID, sessionID string) (*types.Conversation, error) {
	s.mu.RLock()
	data, ok := s.convs[storeKey(memberID, sessionID)]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	var conv types.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return &conv, nil
}

// Save 实现 Store。
func (s *MemoryStore) Save(_ context.Context, memberID, sessionID string, conv *types.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}

	s.mu.Lock()
	s.convs[storeKey(memberID, sessionID)] = data
	s.mu.Unlock()
	return nil
}

// ====== Redis 会话存储 ======

// RedisStore 基于 Redis 的会话存储，支持跨实例共享与 TTL 过期。
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore 创建 Redis 会话存储。ttl <= 0 表示不过期。
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Load 实现 Store。
func (s *RedisStore) Load(ctx context.Context, memberID, sessionID string) (*types.Conversation, error) {
	data, err := s.client.Get(ctx, storeKey(memberID, sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "session load failed").
			WithCause(err).WithRetryable(true)
	}

	var conv types.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return &conv, nil
}

// Save 实现 Store。
func (s *RedisStore) Save(ctx context.Context, memberID, sessionID string, conv *types.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}

	if err := s.client.Set(ctx, storeKey(memberID, sessionID), data, s.ttl).Err(); err != nil {
		return types.NewError(types.ErrServiceUnavailable, "session save failed").
			WithCause(err).WithRetryable(true)
	}
	return nil
}
