package vote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chatvote-worker/cache"
	"chatvote-worker/model"
	"chatvote-worker/repository"
)

// SchedulerFlow 排期投票改票流程。
// 状态机：NoSession → Selecting → Submitted|Cleared。
// 会话只是草稿，提交成功后删除会话并整篇覆盖Ballot。
type SchedulerFlow struct {
	repo     repository.PollRepository
	sessions *cache.SessionStore
}

// NewSchedulerFlow 创建排期改票流程
func NewSchedulerFlow(repo repository.PollRepository, sessions *cache.SessionStore) *SchedulerFlow {
	return &SchedulerFlow{repo: repo, sessions: sessions}
}

// guard 每个动作前的只读检查：投票种类、参与资格、频道/服务器绑定。
// 不属于状态机，任何失败都不产生状态变更。
func (f *SchedulerFlow) guard(ctx context.Context, ev *model.InboundEvent, poll *model.Poll) error {
	if poll.Kind != model.PollKindScheduler {
		return ErrWrongPollKind
	}
	if poll.ChannelID != "" && ev.ChannelID != poll.ChannelID {
		return ErrWrongChannel
	}
	if poll.GuildID != "" && ev.GuildID != poll.GuildID {
		return ErrWrongChannel
	}
	ok, err := f.repo.IsParticipant(ctx, poll.ID, ev.ActorID)
	if err != nil {
		return fmt.Errorf("检查参与资格失败: %w", err)
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

// Open 发起改票：载入已提交的选票做种子，建立第0页的会话
func (f *SchedulerFlow) Open(ctx context.Context, ev *model.InboundEvent, poll *model.Poll) (*model.Reply, error) {
	if err := f.guard(ctx, ev, poll); err != nil {
		return nil, err
	}
	if !poll.Writable(time.Now()) {
		return nil, ErrPollClosed
	}

	session := &model.VoteSession{PollID: poll.ID, ActorID: ev.ActorID, PageIndex: 0}
	ballot, err := f.repo.GetBallot(ctx, poll.ID, ev.ActorID)
	if err != nil && !errors.Is(err, repository.ErrBallotNotFound) {
		return nil, err
	}
	if ballot != nil && !ballot.NoTimesWork {
		for slotID, strength := range ballot.SlotVotes {
			session.Feasible = append(session.Feasible, slotID)
			if strength == model.SlotVotePreferred {
				session.Preferred = append(session.Preferred, slotID)
			}
		}
	}

	key := cache.SessionKey(poll.ID, ev.ActorID, false)
	if err := f.sessions.Upsert(ctx, key, session); err != nil {
		return nil, err
	}
	return f.renderPage(poll, session), nil
}

// Select 页内替换某一档选择。tier为preferred时同页新增的优先项
// 自动并入可行集；tier为feasible时被取消可行的时间段同时失去优先标记。
// 当前页之外的选择原样保留。
func (f *SchedulerFlow) Select(ctx context.Context, ev *model.InboundEvent, poll *model.Poll, tier model.SlotVote) (*model.Reply, error) {
	if err := f.guard(ctx, ev, poll); err != nil {
		return nil, err
	}
	if !poll.Writable(time.Now()) {
		return nil, ErrPollClosed
	}

	key := cache.SessionKey(poll.ID, ev.ActorID, false)
	session, err := f.sessions.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrSessionNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, err
	}

	page := Paginate(poll.Slots, session.PageIndex)
	pageIDs := make([]string, 0, len(page.Items))
	for _, slot := range page.Items {
		pageIDs = append(pageIDs, slot.ID)
	}

	switch tier {
	case model.SlotVotePreferred:
		session.Preferred = replacePageScoped(session.Preferred, pageIDs, ev.Values)
		// 优先蕴含可行
		session.Feasible = union(session.Feasible, intersect(ev.Values, pageIDs))
	case model.SlotVoteFeasible:
		session.Feasible = replacePageScoped(session.Feasible, pageIDs, ev.Values)
		// 失去可行的时间段同时失去优先
		session.Preferred = intersect(session.Preferred, session.Feasible)
	}

	if err := f.sessions.Upsert(ctx, key, session); err != nil {
		return nil, err
	}
	return f.renderPage(poll, session), nil
}

// Turn 翻页，不改动任何选择。越界翻页被钳制，等价于重绘当前页。
func (f *SchedulerFlow) Turn(ctx context.Context, ev *model.InboundEvent, poll *model.Poll, delta int) (*model.Reply, error) {
	if err := f.guard(ctx, ev, poll); err != nil {
		return nil, err
	}
	if !poll.Writable(time.Now()) {
		return nil, ErrPollClosed
	}

	key := cache.SessionKey(poll.ID, ev.ActorID, false)
	session, err := f.sessions.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrSessionNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, err
	}

	session.PageIndex = Paginate(poll.Slots, session.PageIndex+delta).Index
	if err := f.sessions.Upsert(ctx, key, session); err != nil {
		return nil, err
	}
	return f.renderPage(poll, session), nil
}

// Clear 两条子路径：noTimesWork为false时清空会话继续编辑；
// 为true时提交一张"所有时间都不行"的空选票并删除会话（终态）。
func (f *SchedulerFlow) Clear(ctx context.Context, ev *model.InboundEvent, poll *model.Poll, noTimesWork bool) (*model.Reply, error) {
	if err := f.guard(ctx, ev, poll); err != nil {
		return nil, err
	}
	if !poll.Writable(time.Now()) {
		return nil, ErrPollClosed
	}

	key := cache.SessionKey(poll.ID, ev.ActorID, false)

	if noTimesWork {
		ballot := &model.Ballot{
			ID:          uuid.New().String(),
			PollID:      poll.ID,
			VoterID:     ev.ActorID,
			SlotVotes:   map[string]model.SlotVote{},
			NoTimesWork: true,
		}
		if err := f.repo.UpsertBallot(ctx, ballot); err != nil {
			return nil, err
		}
		if err := f.sessions.Delete(ctx, key); err != nil {
			return nil, err
		}
		return &model.Reply{
			EventID:   ev.EventID,
			Content:   fmt.Sprintf("Marked you as unavailable for %q.", poll.Title),
			Ephemeral: true,
		}, nil
	}

	session := &model.VoteSession{PollID: poll.ID, ActorID: ev.ActorID, PageIndex: 0}
	if err := f.sessions.Upsert(ctx, key, session); err != nil {
		return nil, err
	}
	return f.renderPage(poll, session), nil
}

// Submit 校验并提交。会话引用的时间段必须全部仍在投票里，
// 否则说明发起人改过时间段，以ErrStaleSlots拒绝且不提交任何内容。
// 提交的votes map里Preferred覆盖Feasible：存更强的标记。
func (f *SchedulerFlow) Submit(ctx context.Context, ev *model.InboundEvent, poll *model.Poll) (*model.Reply, error) {
	if err := f.guard(ctx, ev, poll); err != nil {
		return nil, err
	}
	if !poll.Writable(time.Now()) {
		return nil, ErrPollClosed
	}

	key := cache.SessionKey(poll.ID, ev.ActorID, false)
	session, err := f.sessions.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrSessionNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, err
	}

	if len(session.Feasible) == 0 && len(session.Preferred) == 0 {
		return nil, ErrSelectAtLeastOne
	}

	slotIDs := poll.SlotIDs()
	for _, id := range append(append([]string{}, session.Feasible...), session.Preferred...) {
		if !containsString(slotIDs, id) {
			return nil, ErrStaleSlots
		}
	}

	votes := make(map[string]model.SlotVote, len(session.Feasible))
	for _, id := range session.Feasible {
		votes[id] = model.SlotVoteFeasible
	}
	for _, id := range session.Preferred {
		votes[id] = model.SlotVotePreferred
	}

	ballot := &model.Ballot{
		ID:        uuid.New().String(),
		PollID:    poll.ID,
		VoterID:   ev.ActorID,
		SlotVotes: votes,
	}
	if err := f.repo.UpsertBallot(ctx, ballot); err != nil {
		return nil, err
	}
	if err := f.sessions.Delete(ctx, key); err != nil {
		return nil, err
	}

	return &model.Reply{
		EventID:   ev.EventID,
		Content:   fmt.Sprintf("Your availability for %q has been saved (%d slots).", poll.Title, len(votes)),
		Ephemeral: true,
	}, nil
}

// renderPage 渲染当前页的时间段及选中状态，交给外部协作方绘制组件
func (f *SchedulerFlow) renderPage(poll *model.Poll, session *model.VoteSession) *model.Reply {
	page := Paginate(poll.Slots, session.PageIndex)
	components := make([]model.ReplyOption, 0, len(page.Items))
	for _, slot := range page.Items {
		components = append(components, model.ReplyOption{
			ID:       slot.ID,
			Label:    slot.Label,
			Selected: containsString(session.Feasible, slot.ID),
		})
	}
	return &model.Reply{
		Content: fmt.Sprintf("%s — page %d/%d. Pick your feasible and preferred time slots.",
			poll.Title, page.Index+1, page.Count),
		Components: components,
		Ephemeral:  true,
	}
}
