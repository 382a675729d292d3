package dispatcher

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ActorLimiter 按操作者限流。交互事件来自按钮连点，
// 单人限速即可，不需要全局配额。
type ActorLimiter struct {
	mu       sync.Mutex
	limiters map[string]*actorEntry
	rate     rate.Limit
	burst    int
}

type actorEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewActorLimiter 创建按操作者限流器，perSecond为每秒允许的动作数
func NewActorLimiter(perSecond float64, burst int) *ActorLimiter {
	l := &ActorLimiter{
		limiters: make(map[string]*actorEntry),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
	go l.cleanupLoop()
	return l
}

// Allow 判断该操作者的这次动作是否放行
func (l *ActorLimiter) Allow(actorID string) bool {
	l.mu.Lock()
	entry, ok := l.limiters[actorID]
	if !ok {
		entry = &actorEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[actorID] = entry
	}
	entry.lastSeen = time.Now()
	l.mu.Unlock()

	return entry.limiter.Allow()
}

// cleanupLoop 定期清理不活跃的限流器，避免map无限增长
func (l *ActorLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-30 * time.Minute)
		l.mu.Lock()
		for id, entry := range l.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(l.limiters, id)
			}
		}
		l.mu.Unlock()
	}
}
