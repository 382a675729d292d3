package cache

import (
	"context"
	"fmt"
	"log"
	"time"
)

// 事件锁的记录状态
const (
	lockStateProcessing = "processing"
	lockStateDone       = "done"
)

// EventLockService 事件幂等锁。
// 对同一个eventID的并发Acquire恰好有一个成功：依赖Redis SETNX的
// 单次原子条件写，绝不能拆成先读后写。processing和done的记录都会
// 挡住后续的重复投递。
type EventLockService struct {
	client RedisClient
	ttl    time.Duration
}

// NewEventLockService 创建事件锁服务。
// ttl限制锁记录的保留时间，重复投递窗口远小于这个值。
func NewEventLockService(client RedisClient, ttl time.Duration) *EventLockService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EventLockService{client: client, ttl: ttl}
}

func (s *EventLockService) key(eventID string) string {
	return "event_lock:" + eventID
}

// Acquire 尝试获取事件锁。返回false表示该事件已被（或正被）处理。
func (s *EventLockService) Acquire(ctx context.Context, eventID string) (bool, error) {
	if s.client == nil {
		return false, ErrRedisNotAvailable
	}

	acquired, err := s.client.SetNX(ctx, s.key(eventID), lockStateProcessing, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("获取事件锁失败: %w", err)
	}
	return acquired, nil
}

// MarkDone 将持有的锁标记为终态，仅用于诊断。
// 对后续重复投递的拦截不依赖这次写入：记录存在即拦截。
func (s *EventLockService) MarkDone(ctx context.Context, eventID string) {
	if s.client == nil {
		return
	}
	if err := s.client.Set(ctx, s.key(eventID), lockStateDone, s.ttl).Err(); err != nil {
		log.Printf("标记事件 %s 完成失败: %v", eventID, err)
	}
}

// Release 删除锁记录。只在处理意外失败时调用，
// 让合法的重试投递有机会重新获取锁，而不是永久丢弃。
func (s *EventLockService) Release(ctx context.Context, eventID string) {
	if s.client == nil {
		return
	}
	if err := s.client.Del(ctx, s.key(eventID)).Err(); err != nil {
		log.Printf("释放事件锁 %s 失败: %v", eventID, err)
	}
}
