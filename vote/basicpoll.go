package vote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatvote-worker/cache"
	"chatvote-worker/model"
	"chatvote-worker/repository"
)

// BasicPollFlow 普通投票改票流程，覆盖多选和排序复选两个子流程。
// 与排期流程共用会话存储和分页。
type BasicPollFlow struct {
	repo     repository.PollRepository
	sessions *cache.SessionStore
}

// NewBasicPollFlow 创建普通投票改票流程
func NewBasicPollFlow(repo repository.PollRepository, sessions *cache.SessionStore) *BasicPollFlow {
	return &BasicPollFlow{repo: repo, sessions: sessions}
}

func (f *BasicPollFlow) guard(ctx context.Context, ev *model.InboundEvent, poll *model.Poll) error {
	if poll.Kind != model.PollKindBasic {
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

// checkWritable 改票动作的可写检查：状态必须是open且未过截止时间。
// 在每个动作时点检查，而不是只在提交时。
func (f *BasicPollFlow) checkWritable(poll *model.Poll) error {
	if !poll.Writable(time.Now()) {
		return ErrPollClosed
	}
	return nil
}

func (f *BasicPollFlow) loadSession(ctx context.Context, poll *model.Poll, actorID string) (*model.VoteSession, string, error) {
	key := cache.SessionKey(poll.ID, actorID, true)
	session, err := f.sessions.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrSessionNotFound) {
			return nil, key, ErrSessionExpired
		}
		return nil, key, err
	}
	return session, key, nil
}

// maxSelections 多选上限：未开启allowMultiple时恒为1，
// 否则取配置的上限（0表示不限），最终受选项总数约束。
func (f *BasicPollFlow) maxSelections(poll *model.Poll) int {
	limit := 1
	if poll.AllowMultiple {
		limit = poll.MaxSelections
		if limit <= 0 || limit > len(poll.Options) {
			limit = len(poll.Options)
		}
	}
	if limit > len(poll.Options) {
		limit = len(poll.Options)
	}
	return limit
}

// Open 发起改票。多选用已提交的选票做种子，排序总是从空排名开始。
func (f *BasicPollFlow) Open(ctx context.Context, ev *model.InboundEvent, poll *model.Poll) (*model.Reply, error) {
	if err := f.guard(ctx, ev, poll); err != nil {
		return nil, err
	}
	if err := f.checkWritable(poll); err != nil {
		return nil, err
	}

	session := &model.VoteSession{PollID: poll.ID, ActorID: ev.ActorID, PageIndex: 0}
	if poll.VoteType == model.VoteTypeMultipleChoice {
		ballot, err := f.repo.GetBallot(ctx, poll.ID, ev.ActorID)
		if err != nil && !errors.Is(err, repository.ErrBallotNotFound) {
			return nil, err
		}
		if ballot != nil {
			session.Selected = intersect(ballot.OptionIDs, poll.OptionIDs())
			session.WriteIn = ballot.WriteIn
		}
	}

	key := cache.SessionKey(poll.ID, ev.ActorID, true)
	if err := f.sessions.Upsert(ctx, key, session); err != nil {
		return nil, err
	}
	return f.render(poll, session), nil
}

// SelectOptions 多选：整组替换当前选择，截断到min(maxSelections, 选项数)
func (f *BasicPollFlow) SelectOptions(ctx context.Context, ev *model.InboundEvent, poll *model.Poll) (*model.Reply, error) {
	if err := f.guard(ctx, ev, poll); err != nil {
		return nil, err
	}
	if err := f.checkWritable(poll); err != nil {
		return nil, err
	}
	if poll.VoteType != model.VoteTypeMultipleChoice {
		return nil, ErrWrongPollKind
	}

	session, key, err := f.loadSession(ctx, poll, ev.ActorID)
	if err != nil {
		return nil, err
	}

	picked := intersect(ev.Values, poll.OptionIDs())
	limit := f.maxSelections(poll)
	if len(picked) > limit {
		picked = picked[:limit]
	}
	session.Selected = picked

	if err := f.sessions.Upsert(ctx, key, session); err != nil {
		return nil, err
	}
	return f.render(poll, session), nil
}

// SetWriteIn 多选：记录写入项文本（需要投票开启allowWriteIn）
func (f *BasicPollFlow) SetWriteIn(ctx context.Context, ev *model.InboundEvent, poll *model.Poll) (*model.Reply, error) {
	if err := f.guard(ctx, ev, poll); err != nil {
		return nil, err
	}
	if err := f.checkWritable(poll); err != nil {
		return nil, err
	}
	if poll.VoteType != model.VoteTypeMultipleChoice || !poll.AllowWriteIn {
		return nil, ErrWrongPollKind
	}

	session, key, err := f.loadSession(ctx, poll, ev.ActorID)
	if err != nil {
		return nil, err
	}

	if len(ev.Values) > 0 {
		session.WriteIn = strings.TrimSpace(ev.Values[0])
	} else {
		session.WriteIn = ""
	}

	if err := f.sessions.Upsert(ctx, key, session); err != nil {
		return nil, err
	}
	return f.render(poll, session), nil
}

// RankPick 排序：追加恰好一个未排序的选项，然后从第0页重新分页剩余选项
func (f *BasicPollFlow) RankPick(ctx context.Context, ev *model.InboundEvent, poll *model.Poll) (*model.Reply, error) {
	if err := f.guard(ctx, ev, poll); err != nil {
		return nil, err
	}
	if err := f.checkWritable(poll); err != nil {
		return nil, err
	}
	if poll.VoteType != model.VoteTypeRankedChoice {
		return nil, ErrWrongPollKind
	}

	session, key, err := f.loadSession(ctx, poll, ev.ActorID)
	if err != nil {
		return nil, err
	}

	if len(ev.Values) > 0 {
		picked := ev.Values[0]
		if containsString(poll.OptionIDs(), picked) && !containsString(session.Ranking, picked) {
			session.Ranking = append(session.Ranking, picked)
			session.PageIndex = 0
		}
	}

	if err := f.sessions.Upsert(ctx, key, session); err != nil {
		return nil, err
	}
	return f.render(poll, session), nil
}

// RankUndo 排序：撤销最后一个排名
func (f *BasicPollFlow) RankUndo(ctx context.Context, ev *model.InboundEvent, poll *model.Poll) (*model.Reply, error) {
	if err := f.guard(ctx, ev, poll); err != nil {
		return nil, err
	}
	if err := f.checkWritable(poll); err != nil {
		return nil, err
	}
	if poll.VoteType != model.VoteTypeRankedChoice {
		return nil, ErrWrongPollKind
	}

	session, key, err := f.loadSession(ctx, poll, ev.ActorID)
	if err != nil {
		return nil, err
	}

	if len(session.Ranking) > 0 {
		session.Ranking = session.Ranking[:len(session.Ranking)-1]
	}

	if err := f.sessions.Upsert(ctx, key, session); err != nil {
		return nil, err
	}
	return f.render(poll, session), nil
}

// RankReset 排序：清空全部排名重新开始
func (f *BasicPollFlow) RankReset(ctx context.Context, ev *model.InboundEvent, poll *model.Poll) (*model.Reply, error) {
	if err := f.guard(ctx, ev, poll); err != nil {
		return nil, err
	}
	if err := f.checkWritable(poll); err != nil {
		return nil, err
	}
	if poll.VoteType != model.VoteTypeRankedChoice {
		return nil, ErrWrongPollKind
	}

	session, key, err := f.loadSession(ctx, poll, ev.ActorID)
	if err != nil {
		return nil, err
	}

	session.Ranking = nil
	session.PageIndex = 0

	if err := f.sessions.Upsert(ctx, key, session); err != nil {
		return nil, err
	}
	return f.render(poll, session), nil
}

// Turn 翻页。排序子流程翻的是"剩余未排序选项"的页。
func (f *BasicPollFlow) Turn(ctx context.Context, ev *model.InboundEvent, poll *model.Poll, delta int) (*model.Reply, error) {
	if err := f.guard(ctx, ev, poll); err != nil {
		return nil, err
	}
	if err := f.checkWritable(poll); err != nil {
		return nil, err
	}

	session, key, err := f.loadSession(ctx, poll, ev.ActorID)
	if err != nil {
		return nil, err
	}

	session.PageIndex = Paginate(f.pageableOptions(poll, session), session.PageIndex+delta).Index
	if err := f.sessions.Upsert(ctx, key, session); err != nil {
		return nil, err
	}
	return f.render(poll, session), nil
}

// Submit 校验并提交选票，成功后删除会话
func (f *BasicPollFlow) Submit(ctx context.Context, ev *model.InboundEvent, poll *model.Poll) (*model.Reply, error) {
	if err := f.guard(ctx, ev, poll); err != nil {
		return nil, err
	}
	if err := f.checkWritable(poll); err != nil {
		return nil, err
	}

	session, key, err := f.loadSession(ctx, poll, ev.ActorID)
	if err != nil {
		return nil, err
	}

	optionIDs := poll.OptionIDs()
	ballot := &model.Ballot{
		ID:      uuid.New().String(),
		PollID:  poll.ID,
		VoterID: ev.ActorID,
	}

	switch poll.VoteType {
	case model.VoteTypeMultipleChoice:
		writeIn := ""
		if poll.AllowWriteIn {
			writeIn = strings.TrimSpace(session.WriteIn)
		}
		if len(session.Selected) == 0 && writeIn == "" {
			return nil, ErrSelectAtLeastOne
		}
		for _, id := range session.Selected {
			if !containsString(optionIDs, id) {
				return nil, ErrStaleSlots
			}
		}
		ballot.OptionIDs = session.Selected
		ballot.WriteIn = writeIn

	case model.VoteTypeRankedChoice:
		if len(session.Ranking) == 0 {
			return nil, ErrSelectAtLeastOne
		}
		for _, id := range session.Ranking {
			if !containsString(optionIDs, id) {
				return nil, ErrStaleSlots
			}
		}
		// 不完整排序是合法选票，计票时按耗尽处理
		ballot.Ranking = session.Ranking
	}

	if err := f.repo.UpsertBallot(ctx, ballot); err != nil {
		return nil, err
	}
	if err := f.sessions.Delete(ctx, key); err != nil {
		return nil, err
	}

	return &model.Reply{
		EventID:   ev.EventID,
		Content:   fmt.Sprintf("Your vote on %q has been recorded.", poll.Title),
		Ephemeral: true,
	}, nil
}

// pageableOptions 当前可分页的选项：排序子流程只翻剩余未排序的选项
func (f *BasicPollFlow) pageableOptions(poll *model.Poll, session *model.VoteSession) []model.Option {
	if poll.VoteType != model.VoteTypeRankedChoice {
		return poll.Options
	}
	remaining := make([]model.Option, 0, len(poll.Options))
	for _, opt := range poll.Options {
		if !containsString(session.Ranking, opt.ID) {
			remaining = append(remaining, opt)
		}
	}
	return remaining
}

func (f *BasicPollFlow) render(poll *model.Poll, session *model.VoteSession) *model.Reply {
	options := f.pageableOptions(poll, session)
	page := Paginate(options, session.PageIndex)

	components := make([]model.ReplyOption, 0, len(page.Items))
	for _, opt := range page.Items {
		components = append(components, model.ReplyOption{
			ID:       opt.ID,
			Label:    opt.Label,
			Selected: containsString(session.Selected, opt.ID),
		})
	}

	var content string
	if poll.VoteType == model.VoteTypeRankedChoice {
		content = fmt.Sprintf("%s — page %d/%d. Ranked so far: %d.",
			poll.Title, page.Index+1, page.Count, len(session.Ranking))
	} else {
		content = fmt.Sprintf("%s — page %d/%d. Selected: %d.",
			poll.Title, page.Index+1, page.Count, len(session.Selected))
	}
	return &model.Reply{Content: content, Components: components, Ephemeral: true}
}
