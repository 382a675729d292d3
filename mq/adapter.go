package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"chatvote-worker/model"
)

// Adapter 消息队列适配器。设置了ROCKETMQ_NAMESRV_ADDR时优先使用
// RocketMQ，否则退回基于Redis List的队列。两种实现的投递语义一致
// （至少一次），上层不感知差别。
type Adapter struct {
	rocketEnabled bool
	redisEnabled  bool
	rocketQueue   *RocketMQQueue
	redisMQ       *RedisMQ
	redisClient   *redis.Client
	initOnce      sync.Once
	initialized   bool
}

// NewAdapter 创建消息队列适配器
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Initialize 初始化消息队列，选择可用的后端
func (a *Adapter) Initialize() error {
	var err error
	a.initOnce.Do(func() {
		if addr := os.Getenv("ROCKETMQ_NAMESRV_ADDR"); addr != "" {
			q, rerr := NewRocketMQQueue(addr)
			if rerr == nil {
				a.rocketQueue = q
				a.rocketEnabled = true
				a.initialized = true
				log.Println("成功初始化RocketMQ")
				return
			}
			log.Printf("RocketMQ初始化失败: %v，将尝试Redis MQ", rerr)
		}

		redisAddr := os.Getenv("REDIS_ADDR")
		if redisAddr == "" {
			redisAddr = "localhost:6379"
		}
		a.redisClient = redis.NewClient(&redis.Options{
			Addr:        redisAddr,
			Password:    os.Getenv("REDIS_PASSWORD"),
			DialTimeout: 5 * time.Second,
			ReadTimeout: 5 * time.Second,
			PoolSize:    20,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, rerr := a.redisClient.Ping(ctx).Result(); rerr != nil {
			err = fmt.Errorf("无法初始化Redis MQ: %w", rerr)
			return
		}

		a.redisMQ = NewRedisMQ(a.redisClient)
		a.redisEnabled = true
		a.initialized = true
		log.Println("成功初始化Redis MQ")
	})
	return err
}

// RegisterHandler 注册事件处理函数并启动消费者
func (a *Adapter) RegisterHandler(handler EventHandler) error {
	if !a.initialized {
		return fmt.Errorf("消息队列适配器未初始化")
	}

	if a.rocketEnabled {
		a.rocketQueue.RegisterHandler(handler)
		return a.rocketQueue.Start()
	}
	a.redisMQ.RegisterHandler(handler)
	return a.redisMQ.Start()
}

// SendEvent 投递一个入站事件
func (a *Adapter) SendEvent(ctx context.Context, ev *model.InboundEvent) error {
	if !a.initialized {
		return fmt.Errorf("消息队列适配器未初始化")
	}

	if a.rocketEnabled {
		data, err := json.Marshal(eventEnvelope{Event: ev, EnqueuedAt: time.Now().Unix()})
		if err != nil {
			return fmt.Errorf("序列化事件失败: %w", err)
		}
		return a.rocketQueue.SendEvent(ctx, data, ev.EventID, targetPollID(ev))
	}
	return a.redisMQ.SendEvent(ctx, ev)
}

// targetPollID 从动作编码里取目标投票ID做分区键，取不到就退回事件ID
func targetPollID(ev *model.InboundEvent) string {
	for i := 0; i < len(ev.CustomID); i++ {
		if ev.CustomID[i] == ':' {
			rest := ev.CustomID[i+1:]
			for j := 0; j < len(rest); j++ {
				if rest[j] == ':' {
					return rest[:j]
				}
			}
			if rest != "" {
				return rest
			}
			break
		}
	}
	return ev.EventID
}

// RetryDeadLetters 重试死信队列中的消息（仅Redis MQ模式可用）
func (a *Adapter) RetryDeadLetters() error {
	if !a.initialized {
		return fmt.Errorf("消息队列适配器未初始化")
	}
	if !a.redisEnabled {
		return fmt.Errorf("当前消息队列模式不支持死信队列操作")
	}
	return a.redisMQ.RetryDeadLetters()
}

// GetQueueStats 获取队列统计信息
func (a *Adapter) GetQueueStats() map[string]interface{} {
	stats := make(map[string]interface{})
	if !a.initialized {
		stats["status"] = "未初始化"
		return stats
	}

	if a.rocketEnabled {
		stats["type"] = "RocketMQ"
		stats["status"] = "正常运行"
		return stats
	}
	stats["type"] = "Redis MQ"
	stats["status"] = "正常运行"
	stats["queues"] = a.redisMQ.GetQueueStats()
	return stats
}

// Close 关闭消息队列
func (a *Adapter) Close() {
	if a.rocketEnabled {
		a.rocketQueue.Stop()
	}
	if a.redisEnabled {
		a.redisMQ.Stop()
		if err := a.redisClient.Close(); err != nil {
			log.Printf("关闭Redis MQ连接失败: %v", err)
		}
	}
	log.Println("消息队列已关闭")
}
