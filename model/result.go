package model

import "encoding/json"

// TallyRow 多选计票结果中的一行
type TallyRow struct {
	Key        string `json:"key"` // 选项ID，或 write-in:<规范化文本>
	Label      string `json:"label"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"` // round(count/voterCount*100)
	Order      int    `json:"order"`
}

// TallyResult 多选投票的定稿结果
type TallyResult struct {
	Rows       []TallyRow `json:"rows"`
	WinnerIDs  []string   `json:"winner_ids"` // 所有并列最高票的行；无人投票时为空
	VoterCount int        `json:"voter_count"`
}

// IRVRound IRV单轮记录，用于审计和结果公告
type IRVRound struct {
	Round         int            `json:"round"`
	Counts        map[string]int `json:"counts"` // 仍在竞争的候选项 -> 首位继续选择票数
	EliminatedIDs []string       `json:"eliminated_ids"`
}

// IRVResult 排序复选投票的定稿结果。
// WinnerIDs和TiedIDs互斥：末轮全员平票时只报告TiedIDs，留给外部裁决。
type IRVResult struct {
	Rounds         []IRVRound `json:"rounds"`
	WinnerIDs      []string   `json:"winner_ids,omitempty"`
	TiedIDs        []string   `json:"tied_ids,omitempty"`
	ExhaustedCount int        `json:"exhausted_count"` // 末轮耗尽的选票数
	TotalBallots   int        `json:"total_ballots"`
}

// SlotTallyRow 排期投票每个时间段的统计
type SlotTallyRow struct {
	SlotID    string `json:"slot_id"`
	Label     string `json:"label"`
	Feasible  int    `json:"feasible"`
	Preferred int    `json:"preferred"`
}

// SlotTallyResult 排期投票的定稿结果。
// 胜出时间段按优先票数取最高，优先票并列时用可行票数比较。
type SlotTallyResult struct {
	Rows          []SlotTallyRow `json:"rows"`
	WinnerSlotIDs []string       `json:"winner_slot_ids"`
	VoterCount    int            `json:"voter_count"`
	Unavailable   int            `json:"unavailable"` // 标记"所有时间都不行"的人数
}

// MarshalResult 统一序列化定稿结果，写回Poll.ResultJSON
func MarshalResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
