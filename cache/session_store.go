package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chatvote-worker/model"
)

// DefaultSessionTTL 会话的默认存活时间
const DefaultSessionTTL = 15 * time.Minute

// SessionStore 进行中改票会话的存储。
// 过期惰性处理：读取时检查expiresAt，已过期的记录视同不存在，
// Redis自身的TTL只作为兜底清理，不依赖它做正确性。
type SessionStore struct {
	client RedisClient
	ttl    time.Duration
}

// NewSessionStore 创建会话存储
func NewSessionStore(client RedisClient, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{client: client, ttl: ttl}
}

// SessionKey 会话键。排期和普通投票的会话相互独立。
func SessionKey(pollID, actorID string, basic bool) string {
	if basic {
		return fmt.Sprintf("vote_session:%s:%s:basic", pollID, actorID)
	}
	return fmt.Sprintf("vote_session:%s:%s", pollID, actorID)
}

// Get 读取会话。不存在或已过期都返回ErrSessionNotFound。
func (s *SessionStore) Get(ctx context.Context, key string) (*model.VoteSession, error) {
	if s.client == nil {
		return nil, ErrRedisNotAvailable
	}

	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("读取会话失败: %w", err)
	}

	var session model.VoteSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("解析会话数据失败: %w", err)
	}

	// 仍然存着但已过期的记录与不存在等同
	if session.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

// Upsert 整篇写入会话，每次都重置expiresAt和Redis TTL。
// 整篇覆盖写是有意的：并发改票采用last-write-wins，
// 不用部分字段更新API，避免与并发读交错。
func (s *SessionStore) Upsert(ctx context.Context, key string, session *model.VoteSession) error {
	if s.client == nil {
		return ErrRedisNotAvailable
	}

	session.ExpiresAt = time.Now().Add(s.ttl)
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("序列化会话失败: %w", err)
	}

	// Redis TTL略长于expiresAt，保证惰性检查先于键消失生效
	if err := s.client.Set(ctx, key, data, s.ttl+time.Minute).Err(); err != nil {
		return fmt.Errorf("写入会话失败: %w", err)
	}
	return nil
}

// Delete 删除会话，提交或显式清除时调用
func (s *SessionStore) Delete(ctx context.Context, key string) error {
	if s.client == nil {
		return ErrRedisNotAvailable
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("删除会话失败: %w", err)
	}
	return nil
}
