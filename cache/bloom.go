package cache

import (
	"context"
	"hash/fnv"
	"time"
)

// BloomFilter 布隆过滤器实现，基于Redis位图。
// 记录已知的投票ID，供事件分发时参考。投票由外部应用创建，
// 预热之后新建的投票会短暂缺席，未命中不能当作不存在的证据。
type BloomFilter struct {
	client    RedisClient
	key       string
	hashCount int
}

// NewBloomFilter 创建新的布隆过滤器
func NewBloomFilter(client RedisClient, key string, hashCount int) *BloomFilter {
	return &BloomFilter{
		client:    client,
		key:       "bloom:" + key,
		hashCount: hashCount,
	}
}

// Add 添加元素到布隆过滤器
func (bf *BloomFilter) Add(ctx context.Context, item string) error {
	if bf.client == nil {
		return ErrRedisNotAvailable
	}

	pipe := bf.client.Pipeline()
	for i := 0; i < bf.hashCount; i++ {
		pipe.SetBit(ctx, bf.key, bf.hash(item, i), 1)
	}
	pipe.Expire(ctx, bf.key, 24*time.Hour)

	_, err := pipe.Exec(ctx)
	return err
}

// Contains 检查元素是否可能存在。false是确定不存在，true可能误判。
func (bf *BloomFilter) Contains(ctx context.Context, item string) (bool, error) {
	if bf.client == nil {
		return false, ErrRedisNotAvailable
	}

	pipe := bf.client.Pipeline()
	cmds := make([]interface{ Val() int64 }, 0, bf.hashCount)
	for i := 0; i < bf.hashCount; i++ {
		cmds = append(cmds, pipe.GetBit(ctx, bf.key, bf.hash(item, i)))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	// 任何一位为0则元素肯定不存在
	for _, cmd := range cmds {
		if cmd.Val() == 0 {
			return false, nil
		}
	}
	return true, nil
}

// hash 计算哈希值，使用不同的种子
func (bf *BloomFilter) hash(key string, seed int) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	h.Write([]byte{byte(seed)})
	return int64(h.Sum64() % uint64(1<<30))
}
