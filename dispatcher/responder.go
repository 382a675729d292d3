package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"chatvote-worker/cache"
	"chatvote-worker/model"
)

// ReplyQueueName 终端响应的出站队列，由平台网关协作方消费并渲染
const ReplyQueueName = "interaction_replies"

// Responder 终端响应通道。每个被处理的事件恰好调用一次，
// 错过响应截止时间的事件一次都不调用。
type Responder interface {
	Respond(ctx context.Context, ev *model.InboundEvent, reply *model.Reply) error
}

// RedisResponder 把响应推进Redis出站队列的Responder实现
type RedisResponder struct {
	client cache.RedisClient
}

// NewRedisResponder 创建Redis出站响应器
func NewRedisResponder(client cache.RedisClient) *RedisResponder {
	return &RedisResponder{client: client}
}

// Respond 序列化响应并LPush到出站队列
func (r *RedisResponder) Respond(ctx context.Context, ev *model.InboundEvent, reply *model.Reply) error {
	if r.client == nil {
		return cache.ErrRedisNotAvailable
	}

	reply.EventID = ev.EventID
	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("序列化响应失败: %w", err)
	}
	if err := r.client.LPush(ctx, ReplyQueueName, data).Err(); err != nil {
		return fmt.Errorf("推送响应到出站队列失败: %w", err)
	}
	return nil
}
