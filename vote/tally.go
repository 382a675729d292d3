package vote

import (
	"math"
	"sort"
	"strings"

	"chatvote-worker/model"
)

// WriteInKeyPrefix 写入项在计票结果里的合成键前缀
const WriteInKeyPrefix = "write-in:"

// normalizeWriteIn 规范化写入项文本：去空白、转小写。
// 相同规范化结果的写入项聚合成同一行。
func normalizeWriteIn(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// TallyMultipleChoice 多选投票计票。
// 只统计"已提交"的选票：至少选了一个选项，或允许写入时填了写入项。
// 写入项按规范化文本聚合，展示标签取第一次出现的原文。
func TallyMultipleChoice(options []model.Option, ballots []model.Ballot, allowWriteIn bool) *model.TallyResult {
	counts := make(map[string]int, len(options))
	writeInLabels := make(map[string]string) // 规范化键 -> 代表性标签
	var writeInOrder []string                // 写入项首次出现顺序

	voterCount := 0
	for i := range ballots {
		b := &ballots[i]
		if !b.Submitted(allowWriteIn) {
			continue // 未提交的草稿不计
		}
		writeIn := ""
		if allowWriteIn {
			writeIn = strings.TrimSpace(b.WriteIn)
		}
		voterCount++

		for _, optID := range b.OptionIDs {
			counts[optID]++
		}
		if writeIn != "" {
			key := WriteInKeyPrefix + normalizeWriteIn(writeIn)
			if _, seen := writeInLabels[key]; !seen {
				writeInLabels[key] = writeIn
				writeInOrder = append(writeInOrder, key)
			}
			counts[key]++
		}
	}

	rows := make([]model.TallyRow, 0, len(options)+len(writeInOrder))
	for _, opt := range options {
		rows = append(rows, model.TallyRow{
			Key:   opt.ID,
			Label: opt.Label,
			Count: counts[opt.ID],
			Order: opt.Position,
		})
	}
	for i, key := range writeInOrder {
		rows = append(rows, model.TallyRow{
			Key:   key,
			Label: writeInLabels[key],
			Count: counts[key],
			Order: len(options) + i, // 写入项排在预设选项之后
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Order < rows[j].Order })

	result := &model.TallyResult{Rows: rows, VoterCount: voterCount, WinnerIDs: []string{}}
	if voterCount == 0 {
		return result
	}

	maxCount := 0
	for i := range rows {
		pct := float64(rows[i].Count) / float64(voterCount) * 100
		rows[i].Percentage = int(math.Round(pct))
		if rows[i].Count > maxCount {
			maxCount = rows[i].Count
		}
	}
	for _, row := range rows {
		if row.Count == maxCount {
			result.WinnerIDs = append(result.WinnerIDs, row.Key)
		}
	}
	return result
}

// TallyScheduler 排期投票计票：每个时间段分别统计可行票和优先票。
// 胜出时间段按优先票取最高，优先票并列时比较可行票；
// 提交时Preferred已折叠成更强标记，这里把preferred也算进feasible。
func TallyScheduler(slots []model.Slot, ballots []model.Ballot) *model.SlotTallyResult {
	feasible := make(map[string]int, len(slots))
	preferred := make(map[string]int, len(slots))

	voterCount := 0
	unavailable := 0
	for i := range ballots {
		b := &ballots[i]
		if b.NoTimesWork {
			voterCount++
			unavailable++
			continue
		}
		if !b.Submitted(false) {
			continue
		}
		voterCount++
		for slotID, strength := range b.SlotVotes {
			feasible[slotID]++
			if strength == model.SlotVotePreferred {
				preferred[slotID]++
			}
		}
	}

	rows := make([]model.SlotTallyRow, 0, len(slots))
	bestPref, bestFeas := -1, -1
	for _, slot := range slots {
		row := model.SlotTallyRow{
			SlotID:    slot.ID,
			Label:     slot.Label,
			Feasible:  feasible[slot.ID],
			Preferred: preferred[slot.ID],
		}
		rows = append(rows, row)
		if row.Preferred > bestPref || (row.Preferred == bestPref && row.Feasible > bestFeas) {
			bestPref, bestFeas = row.Preferred, row.Feasible
		}
	}

	result := &model.SlotTallyResult{
		Rows:          rows,
		WinnerSlotIDs: []string{},
		VoterCount:    voterCount,
		Unavailable:   unavailable,
	}
	if voterCount == 0 || voterCount == unavailable {
		return result
	}
	for _, row := range rows {
		if row.Preferred == bestPref && row.Feasible == bestFeas {
			result.WinnerSlotIDs = append(result.WinnerSlotIDs, row.SlotID)
		}
	}
	return result
}
