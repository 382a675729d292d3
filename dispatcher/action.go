package dispatcher

import (
	"errors"
	"strings"
)

// 动作解码错误
var (
	// ErrUnknownAction 未识别的动作前缀
	ErrUnknownAction = errors.New("unknown action")
	// ErrMissingTarget 动作缺少目标投票ID
	ErrMissingTarget = errors.New("action is missing a target poll id")
)

// ActionKind 事件动作的类型。字符串编码在入口处解码一次，
// 之后各处理器只看这个枚举，不再做前缀匹配。
type ActionKind int

const (
	ActionUnknown ActionKind = iota

	// 排期投票动作
	ActionSchedOpen
	ActionSchedSelectPreferred
	ActionSchedSelectFeasible
	ActionSchedPageNext
	ActionSchedPagePrev
	ActionSchedClear
	ActionSchedSubmit

	// 普通投票动作
	ActionBasicOpen
	ActionBasicSelect
	ActionBasicWriteIn
	ActionBasicRankPick
	ActionBasicRankUndo
	ActionBasicRankReset
	ActionBasicPageNext
	ActionBasicPagePrev
	ActionBasicSubmit

	// 发起人动作
	ActionFinalize
)

// ClearRestart Clear动作的extra取值：清空重选
const ClearRestart = "restart"

// ClearNoTimesWork Clear动作的extra取值：标记所有时间都不行
const ClearNoTimesWork = "no_times_work"

// actionNames 线上编码前缀与动作类型的映射
var actionNames = map[string]ActionKind{
	"vote":           ActionSchedOpen,
	"vote_pref":      ActionSchedSelectPreferred,
	"vote_feas":      ActionSchedSelectFeasible,
	"vote_page_next": ActionSchedPageNext,
	"vote_page_prev": ActionSchedPagePrev,
	"vote_clear":     ActionSchedClear,
	"vote_submit":    ActionSchedSubmit,

	"bp_vote":        ActionBasicOpen,
	"bp_select":      ActionBasicSelect,
	"bp_write_in":    ActionBasicWriteIn,
	"bp_rank_select": ActionBasicRankPick,
	"bp_rank_undo":   ActionBasicRankUndo,
	"bp_rank_reset":  ActionBasicRankReset,
	"bp_page_next":   ActionBasicPageNext,
	"bp_page_prev":   ActionBasicPagePrev,
	"bp_submit":      ActionBasicSubmit,

	"finalize": ActionFinalize,
}

// Action 解码后的动作：类型、目标投票与可选的附加信息
type Action struct {
	Kind   ActionKind
	PollID string
	Extra  string
}

// ParseAction 解析 action:targetId[:extra] 编码。
// 未知前缀返回ErrUnknownAction，缺少目标返回ErrMissingTarget。
func ParseAction(customID string) (Action, error) {
	parts := strings.SplitN(customID, ":", 3)

	kind, ok := actionNames[parts[0]]
	if !ok {
		return Action{}, ErrUnknownAction
	}
	if len(parts) < 2 || parts[1] == "" {
		return Action{Kind: kind}, ErrMissingTarget
	}

	action := Action{Kind: kind, PollID: parts[1]}
	if len(parts) == 3 {
		action.Extra = parts[2]
	}
	return action, nil
}
