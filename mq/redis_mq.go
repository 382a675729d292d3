package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"chatvote-worker/model"
)

// EventHandler 入站事件的处理函数
type EventHandler func(ctx context.Context, ev *model.InboundEvent) error

// 消息队列的队列名称常量
const (
	MainQueueName       = "interaction_events"      // 主队列
	ProcessingQueueName = "interaction_processing"  // 处理中队列
	DeadLetterQueueName = "interaction_dead_letter" // 死信队列
	RetriesHashName     = "interaction_retries"     // 重试次数记录
)

// eventEnvelope 队列里的消息封套。EnqueuedAt用于超时检查，
// 重新入队时会被刷新；事件本体原样透传。
type eventEnvelope struct {
	Event      *model.InboundEvent `json:"event"`
	EnqueuedAt int64               `json:"enqueued_at"`
}

// RedisMQ 基于Redis List实现的至少一次投递消息队列。
// 消费用BRPopLPush原子地把消息挪进处理中队列，处理超时或失败的
// 消息按重试次数回主队列或进死信队列。重复投递由事件锁兜底。
type RedisMQ struct {
	client            *redis.Client
	handler           EventHandler
	isRunning         bool
	stopChan          chan struct{}
	wg                sync.WaitGroup
	processingTimeout time.Duration // 消息处理超时时间
	retryDelay        time.Duration // 重试延迟
	maxRetries        int           // 最大重试次数
}

// NewRedisMQ 创建基于Redis的消息队列
func NewRedisMQ(client *redis.Client) *RedisMQ {
	return &RedisMQ{
		client:            client,
		stopChan:          make(chan struct{}),
		processingTimeout: 5 * time.Minute,
		retryDelay:        30 * time.Second,
		maxRetries:        3,
	}
}

// RegisterHandler 注册事件处理函数
func (r *RedisMQ) RegisterHandler(handler EventHandler) {
	r.handler = handler
}

// SendEvent 投递一个入站事件到主队列
func (r *RedisMQ) SendEvent(ctx context.Context, ev *model.InboundEvent) error {
	data, err := json.Marshal(eventEnvelope{Event: ev, EnqueuedAt: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	if err := r.client.LPush(ctx, MainQueueName, data).Err(); err != nil {
		return fmt.Errorf("发送事件到队列失败: %w", err)
	}
	return nil
}

// Start 启动消费者
func (r *RedisMQ) Start() error {
	if r.handler == nil {
		return fmt.Errorf("处理函数未注册")
	}
	if r.isRunning {
		return nil
	}

	r.isRunning = true
	log.Println("Redis消息队列消费者启动中...")

	r.wg.Add(1)
	go r.consumeLoop()

	r.wg.Add(1)
	go r.timeoutCheckLoop()

	log.Println("Redis消息队列消费者已启动")
	return nil
}

// Stop 关闭消费者
func (r *RedisMQ) Stop() {
	if !r.isRunning {
		return
	}
	log.Println("正在关闭Redis消息队列消费者...")
	close(r.stopChan)
	r.wg.Wait()
	r.isRunning = false
	log.Println("Redis消息队列消费者已关闭")
}

// consumeLoop 主消费循环
func (r *RedisMQ) consumeLoop() {
	defer r.wg.Done()

	ctx := context.Background()
	for {
		select {
		case <-r.stopChan:
			return
		default:
			// BRPopLPush原子地从主队列取出并放进处理中队列
			result, err := r.client.BRPopLPush(ctx, MainQueueName, ProcessingQueueName, 1*time.Second).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) {
					log.Printf("从队列获取消息失败: %v", err)
				}
				continue
			}

			go r.processMessage(ctx, result)
		}
	}
}

// timeoutCheckLoop 处理中消息的超时检查循环
func (r *RedisMQ) timeoutCheckLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.checkTimeouts(context.Background())
		}
	}
}

// checkTimeouts 把停留过久的处理中消息按重试次数回收
func (r *RedisMQ) checkTimeouts(ctx context.Context) {
	messages, err := r.client.LRange(ctx, ProcessingQueueName, 0, -1).Result()
	if err != nil {
		log.Printf("获取处理中队列消息失败: %v", err)
		return
	}

	now := time.Now().Unix()
	for _, msgData := range messages {
		var env eventEnvelope
		if err := json.Unmarshal([]byte(msgData), &env); err != nil || env.Event == nil {
			log.Printf("解析处理中消息失败: %v", err)
			r.moveToDeadLetter(ctx, msgData)
			continue
		}

		if now-env.EnqueuedAt <= int64(r.processingTimeout.Seconds()) {
			continue
		}
		r.retryOrBury(ctx, msgData, &env)
	}
}

// processMessage 处理单个消息
func (r *RedisMQ) processMessage(ctx context.Context, msgData string) {
	var env eventEnvelope
	if err := json.Unmarshal([]byte(msgData), &env); err != nil || env.Event == nil {
		log.Printf("解析消息失败: %v", err)
		r.moveToDeadLetter(ctx, msgData)
		return
	}

	if err := r.handler(ctx, env.Event); err != nil {
		log.Printf("处理事件 %s 失败: %v", env.Event.EventID, err)
		r.retryOrBury(ctx, msgData, &env)
		return
	}

	r.client.LRem(ctx, ProcessingQueueName, 1, msgData)
	r.client.HDel(ctx, RetriesHashName, env.Event.EventID)
}

// retryOrBury 失败消息的归宿：重试次数未用完则延迟回主队列，否则进死信队列
func (r *RedisMQ) retryOrBury(ctx context.Context, msgData string, env *eventEnvelope) {
	retries, _ := r.client.HGet(ctx, RetriesHashName, env.Event.EventID).Int()

	if retries >= r.maxRetries {
		log.Printf("事件 %s 超过最大重试次数，移至死信队列", env.Event.EventID)
		r.moveToDeadLetter(ctx, msgData)
		return
	}

	r.client.HIncrBy(ctx, RetriesHashName, env.Event.EventID, 1)
	env.EnqueuedAt = time.Now().Unix()
	updatedData, _ := json.Marshal(env)

	r.client.LRem(ctx, ProcessingQueueName, 1, msgData)
	time.AfterFunc(r.retryDelay, func() {
		r.client.LPush(context.Background(), MainQueueName, updatedData)
		log.Printf("事件 %s 重新入队，重试次数: %d", env.Event.EventID, retries+1)
	})
}

// moveToDeadLetter 将消息移动到死信队列
func (r *RedisMQ) moveToDeadLetter(ctx context.Context, msgData string) {
	r.client.LPush(ctx, DeadLetterQueueName, msgData)
	r.client.LRem(ctx, ProcessingQueueName, 1, msgData)
}

// RetryDeadLetters 重新处理死信队列中的消息
func (r *RedisMQ) RetryDeadLetters() error {
	ctx := context.Background()
	messages, err := r.client.LRange(ctx, DeadLetterQueueName, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("获取死信队列消息失败: %w", err)
	}

	count := 0
	for _, msgData := range messages {
		if err := r.client.LPush(ctx, MainQueueName, msgData).Err(); err != nil {
			log.Printf("重新入队消息失败: %v", err)
			continue
		}
		r.client.LRem(ctx, DeadLetterQueueName, 1, msgData)

		var env eventEnvelope
		if json.Unmarshal([]byte(msgData), &env) == nil && env.Event != nil {
			r.client.HDel(ctx, RetriesHashName, env.Event.EventID)
		}
		count++
	}

	log.Printf("成功将 %d 条消息从死信队列移回主队列", count)
	return nil
}

// GetQueueStats 获取各队列的消息数量统计
func (r *RedisMQ) GetQueueStats() map[string]int64 {
	ctx := context.Background()
	stats := make(map[string]int64)

	mainLen, _ := r.client.LLen(ctx, MainQueueName).Result()
	procLen, _ := r.client.LLen(ctx, ProcessingQueueName).Result()
	deadLen, _ := r.client.LLen(ctx, DeadLetterQueueName).Result()

	stats["main_queue"] = mainLen
	stats["processing_queue"] = procLen
	stats["dead_letter_queue"] = deadLen
	return stats
}
