// Package store 通话检查点存储，用于通话中断后的恢复
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"ai_call_agent/internal/dialog"
)

// 存储相关错误
var (
	ErrNotFound          = errors.New("检查点不存在")
	ErrInvalidID         = errors.New("租户ID和通话ID不能为空")
	ErrInvalidCheckpoint = errors.New("检查点不能为空")
)

// 默认参数
const (
	DefaultTTL    = 2 * time.Hour
	DefaultPrefix = "ai_call_agent"
)

// Checkpoint 一通电话在某一轮结束后的完整状态
type Checkpoint struct {
	TenantID          string          `json:"tenant_id"`
	CallID            string          `json:"call_id"`
	Industry          string          `json:"industry"`
	RealtimeSessionID string          `json:"realtime_session_id,omitempty"`
	Snapshot          dialog.Snapshot `json:"snapshot"`
	SavedAt           time.Time       `json:"saved_at"`
}

// RedisStore 基于Redis的检查点存储，键按租户隔离并带过期时间
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// Option 存储选项
type Option func(*RedisStore)

// WithTTL 检查点过期时间，0 表示不过期
func WithTTL(ttl time.Duration) Option {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix 键前缀
func WithPrefix(prefix string) Option {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore 创建检查点存储
func NewRedisStore(client *redis.Client, opts ...Option) *RedisStore {
	s := &RedisStore{
		client: client,
		ttl:    DefaultTTL,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping 检查Redis连接
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Save 写入检查点并更新租户索引
func (s *RedisStore) Save(ctx context.Context, cp *Checkpoint) error {
	if cp == nil {
		return ErrInvalidCheckpoint
	}
	if cp.TenantID == "" || cp.CallID == "" {
		return ErrInvalidID
	}
	cp.SavedAt = time.Now()

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("序列化检查点失败: %w", err)
	}

	indexKey := s.indexKey(cp.TenantID)
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.callKey(cp.TenantID, cp.CallID), data, s.ttl)
	pipe.SAdd(ctx, indexKey, cp.CallID)
	if s.ttl > 0 {
		pipe.Expire(ctx, indexKey, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// Load 读取检查点，其他租户的通话视为不存在
func (s *RedisStore) Load(ctx context.Context, tenantID, callID string) (*Checkpoint, error) {
	if tenantID == "" || callID == "" {
		return nil, ErrInvalidID
	}
	data, err := s.client.Get(ctx, s.callKey(tenantID, callID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("解析检查点失败: %w", err)
	}
	return &cp, nil
}

// Delete 删除检查点
func (s *RedisStore) Delete(ctx context.Context, tenantID, callID string) error {
	if tenantID == "" || callID == "" {
		return ErrInvalidID
	}
	pipe := s.client.Pipeline()
	del := pipe.Del(ctx, s.callKey(tenantID, callID))
	pipe.SRem(ctx, s.indexKey(tenantID), callID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// List 租户下仍有检查点的通话ID，已过期的会从索引中清理
func (s *RedisStore) List(ctx context.Context, tenantID string) ([]string, error) {
	if tenantID == "" {
		return nil, ErrInvalidID
	}
	indexKey := s.indexKey(tenantID)
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}

	live := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := s.client.Exists(ctx, s.callKey(tenantID, id)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis exists failed: %w", err)
		}
		if n == 0 {
			s.client.SRem(ctx, indexKey, id)
			continue
		}
		live = append(live, id)
	}
	sort.Strings(live)
	return live, nil
}

func (s *RedisStore) callKey(tenantID, callID string) string {
	return fmt.Sprintf("%s:tenant:%s:call:%s", s.prefix, tenantID, callID)
}

func (s *RedisStore) indexKey(tenantID string) string {
	return fmt.Sprintf("%s:tenant:%s:calls", s.prefix, tenantID)
}
