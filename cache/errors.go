package cache

import "errors"

var (
	// ErrRedisNotAvailable Redis不可用错误
	ErrRedisNotAvailable = errors.New("redis不可用")

	// ErrLockNotAcquired 获取锁失败错误
	ErrLockNotAcquired = errors.New("无法获取分布式锁")

	// ErrSessionNotFound 会话不存在或已过期错误
	ErrSessionNotFound = errors.New("vote session not found or expired")
)
