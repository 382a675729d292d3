package vote

import "errors"

// 业务错误定义。dispatcher用errors.Is把它们映射成用户可见的终端响应。
var (
	// ErrSessionExpired 会话不存在或已过期，需要重新发起改票
	ErrSessionExpired = errors.New("vote session expired")

	// ErrStaleSlots 会话里引用的时间段/选项已被投票发起人删改
	ErrStaleSlots = errors.New("selection references removed slots or options")

	// ErrPollClosed 投票已定稿或已过截止时间，不再接受改票
	ErrPollClosed = errors.New("poll is closed")

	// ErrSelectAtLeastOne 提交时没有任何选择
	ErrSelectAtLeastOne = errors.New("select at least one entry before submitting")

	// ErrNotParticipant 操作者不是该投票的参与者
	ErrNotParticipant = errors.New("actor is not a poll participant")

	// ErrWrongChannel 事件来源频道/服务器与投票的绑定不符
	ErrWrongChannel = errors.New("event origin does not match poll binding")

	// ErrNotOwner 定稿只允许投票发起人操作
	ErrNotOwner = errors.New("only the poll owner may finalize")

	// ErrWrongPollKind 动作和投票种类不匹配
	ErrWrongPollKind = errors.New("action does not apply to this poll kind")
)
