// sendevent 向消息队列注入一条交互事件，用于联调和压测。
//
// 示例:
//
//	go run ./cmd/sendevent -action vote:poll-1 -actor user-1 -channel ch-1
//	go run ./cmd/sendevent -action bp_select:poll-2 -actor user-2 -channel ch-1 -values opt-a,opt-b
package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatvote-worker/model"
	"chatvote-worker/mq"
)

func main() {
	customID := flag.String("action", "", "动作编码，形如 action:targetId[:extra]")
	actorID := flag.String("actor", "user-1", "发起人ID")
	channelID := flag.String("channel", "channel-1", "频道ID")
	guildID := flag.String("guild", "guild-1", "服务器ID")
	values := flag.String("values", "", "组件提交的选中值，逗号分隔")
	count := flag.Int("count", 1, "发送事件条数")
	flag.Parse()

	if *customID == "" {
		log.Fatal("必须指定 -action")
	}

	adapter := mq.NewAdapter()
	if err := adapter.Initialize(); err != nil {
		log.Fatalf("消息队列初始化失败: %v", err)
	}
	defer adapter.Close()

	var vals []string
	if *values != "" {
		vals = strings.Split(*values, ",")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := 0; i < *count; i++ {
		ev := &model.InboundEvent{
			EventID:   uuid.New().String(),
			Kind:      model.EventKindComponentAction,
			ActorID:   *actorID,
			ChannelID: *channelID,
			GuildID:   *guildID,
			CustomID:  *customID,
			Values:    vals,
			CreatedAt: time.Now(),
		}
		if err := adapter.SendEvent(ctx, ev); err != nil {
			log.Fatalf("发送事件失败: %v", err)
		}
		log.Printf("已发送事件 %s (%s)", ev.EventID, ev.CustomID)
	}
}
