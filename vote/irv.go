package vote

import (
	"sort"

	"chatvote-worker/model"
)

// RunIRV 即时复选（IRV）逐轮淘汰计票。
//
// 每轮把每张选票计给其排序中仍在竞争的最高候选项；排序中已无
// 在竞争候选项的选票记为耗尽（计数但不归属）。某候选项得票数
// 严格超过未耗尽票数一半即胜出。否则淘汰最低票的候选项继续下一轮；
// 当所有剩余候选项都并列最低且无人过半时，停止并报告TiedIDs，
// 引擎绝不自行裁决平局。
//
// 不完整排序是合法选票，按耗尽处理。票数为0但仍在竞争的候选项
// 照常参与淘汰，不会因此直接胜出。
func RunIRV(candidateIDs []string, ballots [][]string) *model.IRVResult {
	continuing := make(map[string]bool, len(candidateIDs))
	for _, id := range candidateIDs {
		continuing[id] = true
	}

	result := &model.IRVResult{TotalBallots: len(ballots)}

	for round := 1; len(continuing) > 0; round++ {
		counts := make(map[string]int, len(continuing))
		for id := range continuing {
			counts[id] = 0
		}

		exhausted := 0
		for _, ranking := range ballots {
			assigned := false
			for _, choice := range ranking {
				if continuing[choice] {
					counts[choice]++
					assigned = true
					break
				}
			}
			if !assigned {
				exhausted++
			}
		}

		record := model.IRVRound{Round: round, Counts: counts, EliminatedIDs: []string{}}
		active := len(ballots) - exhausted
		result.ExhaustedCount = exhausted

		// 过半检查：严格大于未耗尽票数的一半
		for id, c := range counts {
			if c*2 > active {
				result.Rounds = append(result.Rounds, record)
				result.WinnerIDs = []string{id}
				return result
			}
		}

		// 找最低票候选项
		minCount := -1
		for _, c := range counts {
			if minCount < 0 || c < minCount {
				minCount = c
			}
		}
		var lowest []string
		for id, c := range counts {
			if c == minCount {
				lowest = append(lowest, id)
			}
		}
		sort.Strings(lowest)

		// 全员并列最低：无法继续淘汰，报告未决平局
		if len(lowest) == len(continuing) {
			result.Rounds = append(result.Rounds, record)
			result.TiedIDs = lowest
			return result
		}

		record.EliminatedIDs = lowest
		result.Rounds = append(result.Rounds, record)
		for _, id := range lowest {
			delete(continuing, id)
		}
	}

	// 没有候选项时直接返回空结果
	return result
}
