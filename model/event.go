package model

import "time"

// EventKind 事件类型
type EventKind string

const (
	EventKindCommand         EventKind = "command"          // 聊天命令
	EventKindComponentAction EventKind = "component_action" // 按钮/下拉框交互
)

// InboundEvent 从聊天平台投递的交互事件。
// 同一个EventID可能被重复投递（至少一次语义），由事件锁保证只处理一次。
type InboundEvent struct {
	EventID   string    `json:"event_id"`
	Kind      EventKind `json:"kind"`
	ActorID   string    `json:"actor_id"`
	ChannelID string    `json:"channel_id"`
	GuildID   string    `json:"guild_id"`
	CustomID  string    `json:"custom_id"` // 形如 action:targetId[:extra] 的动作编码
	Values    []string  `json:"values"`    // 组件提交的选中值
	CreatedAt time.Time `json:"created_at"`
}

// Reply 终端响应，每个被处理的事件恰好发送一次。
// 组件的渲染由外部协作方完成，这里只携带结构化内容。
type Reply struct {
	EventID    string        `json:"event_id"`
	Content    string        `json:"content"`
	Components []ReplyOption `json:"components,omitempty"`
	Ephemeral  bool          `json:"ephemeral"`
}

// ReplyOption 响应中需要渲染的选项行（分页后的当前页）
type ReplyOption struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}
