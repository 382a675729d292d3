package model

import "time"

// VoteSession 进行中的改票会话，保存在Redis里，带TTL。
// 只是工作内存：提交前的草稿，永远不是已提交选票的事实来源。
type VoteSession struct {
	PollID    string    `json:"poll_id"`
	ActorID   string    `json:"actor_id"`
	Preferred []string  `json:"preferred,omitempty"` // 排期：优先时间段（Preferred ⊆ Feasible）
	Feasible  []string  `json:"feasible,omitempty"`  // 排期：可行时间段
	Selected  []string  `json:"selected,omitempty"`  // 多选：当前选中的选项
	Ranking   []string  `json:"ranking,omitempty"`   // 排序：已排序的选项（有序）
	WriteIn   string    `json:"write_in,omitempty"`
	PageIndex int       `json:"page_index"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired 会话是否已过期。过期的会话与不存在的会话等同处理。
func (s *VoteSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
