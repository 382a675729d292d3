package model

import (
	"strings"
	"time"
)

// PollKind 投票的种类：时间段排期或普通投票
type PollKind string

const (
	PollKindScheduler PollKind = "scheduler" // 排期投票（时间段）
	PollKindBasic     PollKind = "basic"     // 普通投票（选项）
)

// VoteType 普通投票的计票方式
type VoteType string

const (
	VoteTypeMultipleChoice VoteType = "multiple_choice" // 多选计票
	VoteTypeRankedChoice   VoteType = "ranked_choice"   // 排序复选（IRV）
)

// PollStatus 投票活动状态
type PollStatus string

const (
	PollStatusOpen      PollStatus = "open"      // 进行中
	PollStatusFinalized PollStatus = "finalized" // 已定稿
)

// Poll 投票活动模型。由外部Web应用创建，worker只读取和定稿。
type Poll struct {
	ID            string     `gorm:"primaryKey" json:"id"`
	Kind          PollKind   `gorm:"not null" json:"kind"`
	Title         string     `gorm:"not null" json:"title"`
	OwnerID       string     `gorm:"not null;index" json:"owner_id"`
	ChannelID     string     `json:"channel_id"` // 绑定的频道，为空表示不限制
	GuildID       string     `json:"guild_id"`   // 绑定的服务器，为空表示不限制
	VoteType      VoteType   `json:"vote_type"`  // 仅普通投票使用
	AllowMultiple bool       `json:"allow_multiple"`
	MaxSelections int        `json:"max_selections"` // 0表示不限（受选项数约束）
	AllowWriteIn  bool       `json:"allow_write_in"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	Status        PollStatus `gorm:"not null;default:open" json:"status"`
	ResultJSON    string     `gorm:"type:text" json:"result_json,omitempty"` // 定稿后的TallyResult/IRVResult
	Slots         []Slot     `gorm:"foreignKey:PollID" json:"slots,omitempty"`
	Options       []Option   `gorm:"foreignKey:PollID" json:"options,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Writable 投票当前是否接受改票：状态为Open且未过截止时间
func (p *Poll) Writable(now time.Time) bool {
	if p.Status != PollStatusOpen {
		return false
	}
	if p.Deadline != nil && now.After(*p.Deadline) {
		return false
	}
	return true
}

// SlotIDs 返回当前所有时间段ID
func (p *Poll) SlotIDs() []string {
	ids := make([]string, 0, len(p.Slots))
	for _, s := range p.Slots {
		ids = append(ids, s.ID)
	}
	return ids
}

// OptionIDs 返回当前所有选项ID
func (p *Poll) OptionIDs() []string {
	ids := make([]string, 0, len(p.Options))
	for _, o := range p.Options {
		ids = append(ids, o.ID)
	}
	return ids
}

// Slot 排期投票的候选时间段
type Slot struct {
	ID       string    `gorm:"primaryKey" json:"id"`
	PollID   string    `gorm:"not null;index" json:"poll_id"`
	Label    string    `gorm:"not null" json:"label"`
	StartsAt time.Time `json:"starts_at"`
	Position int       `json:"position"`
}

// Option 普通投票的候选选项
type Option struct {
	ID       string `gorm:"primaryKey" json:"id"`
	PollID   string `gorm:"not null;index" json:"poll_id"`
	Label    string `gorm:"not null" json:"label"`
	Position int    `json:"position"`
}

// Participant 投票参与者，非参与者的交互会被拒绝
type Participant struct {
	PollID string `gorm:"primaryKey" json:"poll_id"`
	UserID string `gorm:"primaryKey" json:"user_id"`
}

// SlotVote 时间段选择的强度标记
type SlotVote string

const (
	SlotVoteFeasible  SlotVote = "feasible"  // 可行
	SlotVotePreferred SlotVote = "preferred" // 优先（蕴含可行，提交时存更强的标记）
)

// Ballot 已提交的投票记录，每个(poll, voter)至多一张。
// 会话只是草稿，Ballot才是提交结果的唯一事实来源。
type Ballot struct {
	ID          string              `gorm:"primaryKey" json:"id"`
	PollID      string              `gorm:"not null;uniqueIndex:ux_ballot_poll_voter,priority:1" json:"poll_id"`
	VoterID     string              `gorm:"not null;uniqueIndex:ux_ballot_poll_voter,priority:2" json:"voter_id"`
	SlotVotes   map[string]SlotVote `gorm:"serializer:json" json:"slot_votes,omitempty"` // 排期投票：slotID -> 强度
	OptionIDs   []string            `gorm:"serializer:json" json:"option_ids,omitempty"` // 多选投票：选中的选项
	Ranking     []string            `gorm:"serializer:json" json:"ranking,omitempty"`    // 排序投票：有序选项（允许不完整）
	WriteIn     string              `json:"write_in,omitempty"`
	NoTimesWork bool                `json:"no_times_work"` // 排期投票：所有时间都不行
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Submitted 该选票是否算作"已提交"：至少选了一个选项，或允许写入时填了非空写入项
func (b *Ballot) Submitted(allowWriteIn bool) bool {
	if len(b.OptionIDs) > 0 || len(b.Ranking) > 0 || len(b.SlotVotes) > 0 {
		return true
	}
	if allowWriteIn && strings.TrimSpace(b.WriteIn) != "" {
		return true
	}
	return false
}
