package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"chatvote-worker/cache"
	"chatvote-worker/model"
	"chatvote-worker/repository"
	"chatvote-worker/vote"
)

// DefaultResponseWindow 平台允许的响应窗口，从事件创建时刻起算。
// 超过窗口的事件彻底放弃响应，迟到的响应比没有响应更糟。
const DefaultResponseWindow = 15 * time.Minute

// Dispatcher 交互事件分发器。
// 每个事件的处理路径：响应窗口检查 → 事件锁（拒绝重复投递）→
// 动作解码 → 路由到改票流程或定稿 → 恰好一次终端响应。
type Dispatcher struct {
	repo      repository.PollRepository
	locks     *cache.EventLockService
	scheduler *vote.SchedulerFlow
	basic     *vote.BasicPollFlow
	finalizer *vote.Finalizer
	responder Responder
	limiter   *ActorLimiter
	bloom     *cache.BloomFilter // 可为nil，只做参考不拦截
	window    time.Duration
}

// NewDispatcher 创建事件分发器
func NewDispatcher(
	repo repository.PollRepository,
	locks *cache.EventLockService,
	scheduler *vote.SchedulerFlow,
	basic *vote.BasicPollFlow,
	finalizer *vote.Finalizer,
	responder Responder,
	limiter *ActorLimiter,
	bloom *cache.BloomFilter,
	window time.Duration,
) *Dispatcher {
	if window <= 0 {
		window = DefaultResponseWindow
	}
	return &Dispatcher{
		repo:      repo,
		locks:     locks,
		scheduler: scheduler,
		basic:     basic,
		finalizer: finalizer,
		responder: responder,
		limiter:   limiter,
		bloom:     bloom,
		window:    window,
	}
}

// Handle 处理一个入站事件。返回非nil错误表示意外失败，
// 事件锁已释放，队列可以安排合法的重试。
func (d *Dispatcher) Handle(ctx context.Context, ev *model.InboundEvent) (err error) {
	// 响应窗口按事件创建时间算，不是到达时间
	if time.Since(ev.CreatedAt) > d.window {
		log.Printf("事件 %s 超过响应窗口，放弃处理", ev.EventID)
		return nil
	}

	acquired, err := d.locks.Acquire(ctx, ev.EventID)
	if err != nil {
		return fmt.Errorf("获取事件锁失败: %w", err)
	}
	if !acquired {
		// 重复投递：已有处理器拿到（或处理完）这个事件
		log.Printf("事件 %s 重复投递，跳过", ev.EventID)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("处理事件 %s 时panic: %v", ev.EventID, r)
			d.reply(ctx, ev, "Something went wrong while processing your action. Please try again.")
			d.locks.Release(ctx, ev.EventID)
			err = fmt.Errorf("panic while handling event %s: %v", ev.EventID, r)
		}
	}()

	if d.limiter != nil && !d.limiter.Allow(ev.ActorID) {
		d.reply(ctx, ev, "You're clicking too fast. Give it a second.")
		d.locks.MarkDone(ctx, ev.EventID)
		return nil
	}

	action, perr := ParseAction(ev.CustomID)
	if perr != nil {
		switch {
		case errors.Is(perr, ErrUnknownAction):
			d.reply(ctx, ev, "This action is not supported.")
		case errors.Is(perr, ErrMissingTarget):
			d.reply(ctx, ev, "This action is missing its target poll.")
		}
		d.locks.MarkDone(ctx, ev.EventID)
		return nil
	}

	// 布隆过滤器只做参考，未命中不拦截：外部应用在预热之后新建的
	// 投票可能还没进集合，存在与否一律以数据库为准
	if d.bloom != nil {
		if exists, berr := d.bloom.Contains(ctx, action.PollID); berr == nil && !exists {
			log.Printf("投票 %s 未命中布隆过滤器，回源数据库确认", action.PollID)
		}
	}

	poll, lerr := d.repo.GetPollByID(ctx, action.PollID)
	if lerr != nil {
		if errors.Is(lerr, repository.ErrPollNotFound) {
			d.reply(ctx, ev, "That poll no longer exists.")
			d.locks.MarkDone(ctx, ev.EventID)
			return nil
		}
		return d.unexpected(ctx, ev, lerr)
	}
	if d.bloom != nil {
		if berr := d.bloom.Add(ctx, poll.ID); berr != nil {
			log.Printf("布隆过滤器更新失败: %v", berr)
		}
	}

	reply, ferr := d.route(ctx, ev, action, poll)
	if ferr != nil {
		if msg, known := userMessage(ferr); known {
			d.reply(ctx, ev, msg)
			d.locks.MarkDone(ctx, ev.EventID)
			return nil
		}
		return d.unexpected(ctx, ev, ferr)
	}

	if rerr := d.responder.Respond(ctx, ev, reply); rerr != nil {
		// 状态已经变更，重试只会撞上事件锁，记录后吞掉
		log.Printf("事件 %s 响应发送失败: %v", ev.EventID, rerr)
	}
	d.locks.MarkDone(ctx, ev.EventID)
	return nil
}

// route 按解码后的动作类型路由到对应流程
func (d *Dispatcher) route(ctx context.Context, ev *model.InboundEvent, action Action, poll *model.Poll) (*model.Reply, error) {
	switch action.Kind {
	case ActionSchedOpen:
		return d.scheduler.Open(ctx, ev, poll)
	case ActionSchedSelectPreferred:
		return d.scheduler.Select(ctx, ev, poll, model.SlotVotePreferred)
	case ActionSchedSelectFeasible:
		return d.scheduler.Select(ctx, ev, poll, model.SlotVoteFeasible)
	case ActionSchedPageNext:
		return d.scheduler.Turn(ctx, ev, poll, 1)
	case ActionSchedPagePrev:
		return d.scheduler.Turn(ctx, ev, poll, -1)
	case ActionSchedClear:
		return d.scheduler.Clear(ctx, ev, poll, action.Extra == ClearNoTimesWork)
	case ActionSchedSubmit:
		return d.scheduler.Submit(ctx, ev, poll)

	case ActionBasicOpen:
		return d.basic.Open(ctx, ev, poll)
	case ActionBasicSelect:
		return d.basic.SelectOptions(ctx, ev, poll)
	case ActionBasicWriteIn:
		return d.basic.SetWriteIn(ctx, ev, poll)
	case ActionBasicRankPick:
		return d.basic.RankPick(ctx, ev, poll)
	case ActionBasicRankUndo:
		return d.basic.RankUndo(ctx, ev, poll)
	case ActionBasicRankReset:
		return d.basic.RankReset(ctx, ev, poll)
	case ActionBasicPageNext:
		return d.basic.Turn(ctx, ev, poll, 1)
	case ActionBasicPagePrev:
		return d.basic.Turn(ctx, ev, poll, -1)
	case ActionBasicSubmit:
		return d.basic.Submit(ctx, ev, poll)

	case ActionFinalize:
		return d.finalizer.Finalize(ctx, ev, poll)
	}
	return nil, ErrUnknownAction
}

// unexpected 意外失败：记日志、发一条通用失败响应、释放事件锁让
// 合法重试有机会成功，然后把错误抛给队列。
func (d *Dispatcher) unexpected(ctx context.Context, ev *model.InboundEvent, cause error) error {
	log.Printf("处理事件 %s 意外失败: %v", ev.EventID, cause)
	d.reply(ctx, ev, "Something went wrong while processing your action. Please try again.")
	d.locks.Release(ctx, ev.EventID)
	return cause
}

func (d *Dispatcher) reply(ctx context.Context, ev *model.InboundEvent, content string) {
	r := &model.Reply{Content: content, Ephemeral: true}
	if err := d.responder.Respond(ctx, ev, r); err != nil {
		log.Printf("事件 %s 响应发送失败: %v", ev.EventID, err)
	}
}

// userMessage 把业务错误映射成用户可见的文案。
// 成功和各类错误都走同一条终端响应通道。
func userMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, vote.ErrSessionExpired):
		return "Your voting session has expired. Open the vote again to start over.", true
	case errors.Is(err, vote.ErrStaleSlots):
		return "The poll was edited while you were voting. Open the vote again to see the current entries.", true
	case errors.Is(err, vote.ErrPollClosed):
		return "This poll is closed and no longer accepts votes.", true
	case errors.Is(err, vote.ErrSelectAtLeastOne):
		return "Select at least one entry before submitting.", true
	case errors.Is(err, vote.ErrNotParticipant):
		return "You are not a participant of this poll.", true
	case errors.Is(err, vote.ErrWrongChannel):
		return "This poll cannot be used from here.", true
	case errors.Is(err, vote.ErrNotOwner):
		return "Only the poll owner can finalize it.", true
	case errors.Is(err, vote.ErrWrongPollKind):
		return "That action does not apply to this poll.", true
	case errors.Is(err, cache.ErrLockNotAcquired):
		return "The poll is being finalized right now. Try again in a moment.", true
	}
	return "", false
}
