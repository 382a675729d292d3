package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
)

// 主题常量
const (
	TopicInteractionEvents = "interaction_events"
	interactionTag         = "interaction"
)

// RocketMQQueue 基于RocketMQ的事件队列。
// 同一投票的事件用ShardingKey路由到同一队列，保持相对顺序；
// 投递语义是至少一次，重复由事件锁过滤。
type RocketMQQueue struct {
	nameServer string
	producer   rocketmq.Producer
	consumer   rocketmq.PushConsumer
	handler    EventHandler
}

// NewRocketMQQueue 创建RocketMQ事件队列并启动生产者
func NewRocketMQQueue(nameServer string) (*RocketMQQueue, error) {
	p, err := rocketmq.NewProducer(
		producer.WithNameServer([]string{nameServer}),
		producer.WithGroupName("interaction_producer"),
		producer.WithRetry(2),
		producer.WithSendMsgTimeout(10*time.Second),
		producer.WithVIPChannel(false),
	)
	if err != nil {
		return nil, fmt.Errorf("创建RocketMQ生产者失败: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("启动RocketMQ生产者失败: %w", err)
	}

	log.Printf("RocketMQ生产者初始化成功, 地址: %s", nameServer)
	return &RocketMQQueue{nameServer: nameServer, producer: p}, nil
}

// RegisterHandler 注册事件处理函数
func (q *RocketMQQueue) RegisterHandler(handler EventHandler) {
	q.handler = handler
}

// SendEvent 发送入站事件。EventID作为消息Key，投票ID作为分区键。
func (q *RocketMQQueue) SendEvent(ctx context.Context, envData []byte, eventID, pollID string) error {
	message := primitive.NewMessage(TopicInteractionEvents, envData)
	message.WithTag(interactionTag)
	message.WithKeys([]string{eventID})
	message.WithShardingKey(pollID)

	res, err := q.producer.SendSync(ctx, message)
	if err != nil {
		return fmt.Errorf("发送事件消息失败: %w", err)
	}
	log.Printf("事件消息发送成功, MsgID: %s, EventID: %s", res.MsgID, eventID)
	return nil
}

// Start 创建并启动推模式消费者
func (q *RocketMQQueue) Start() error {
	if q.handler == nil {
		return fmt.Errorf("处理函数未注册")
	}

	c, err := rocketmq.NewPushConsumer(
		consumer.WithNameServer([]string{q.nameServer}),
		consumer.WithGroupName("interaction_consumer"),
		consumer.WithConsumerModel(consumer.Clustering),
		consumer.WithConsumeFromWhere(consumer.ConsumeFromLastOffset),
	)
	if err != nil {
		return fmt.Errorf("创建消息消费者失败: %w", err)
	}

	err = c.Subscribe(TopicInteractionEvents, consumer.MessageSelector{
		Type:       consumer.TAG,
		Expression: interactionTag,
	}, func(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
		for _, msg := range msgs {
			var env eventEnvelope
			if err := json.Unmarshal(msg.Body, &env); err != nil || env.Event == nil {
				log.Printf("解析事件消息失败: %v", err)
				continue
			}

			if err := q.handler(ctx, env.Event); err != nil {
				log.Printf("处理事件 %s 失败: %v", env.Event.EventID, err)
				return consumer.ConsumeRetryLater, nil // 稍后重试
			}
		}
		return consumer.ConsumeSuccess, nil
	})
	if err != nil {
		return fmt.Errorf("订阅主题失败: %w", err)
	}

	if err := c.Start(); err != nil {
		return fmt.Errorf("启动消费者失败: %w", err)
	}

	q.consumer = c
	log.Println("RocketMQ消息消费者启动成功")
	return nil
}

// Stop 关闭生产者和消费者
func (q *RocketMQQueue) Stop() {
	if q.consumer != nil {
		if err := q.consumer.Shutdown(); err != nil {
			log.Printf("关闭RocketMQ消费者失败: %v", err)
		}
	}
	if q.producer != nil {
		if err := q.producer.Shutdown(); err != nil {
			log.Printf("关闭RocketMQ生产者失败: %v", err)
		}
	}
	log.Println("RocketMQ连接已关闭")
}
