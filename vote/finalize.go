package vote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatvote-worker/cache"
	"chatvote-worker/model"
	"chatvote-worker/repository"
)

// Announcer 定稿结果的对外公告通道（自由文本，不供程序消费）
type Announcer interface {
	Announce(pollID string, text string)
}

// Finalizer 定稿服务：快照选票、计票、结果落库、状态翻转、发公告。
// 定稿与并发提交之间没有事务隔离：快照之后提交的选票不进结果，
// 这是接受并记录的行为，不做事后修正。
type Finalizer struct {
	repo      repository.PollRepository
	locks     *cache.DistributedLockService
	announcer Announcer
}

// NewFinalizer 创建定稿服务
func NewFinalizer(repo repository.PollRepository, locks *cache.DistributedLockService, announcer Announcer) *Finalizer {
	return &Finalizer{repo: repo, locks: locks, announcer: announcer}
}

// Finalize 处理定稿动作。只有发起人可以定稿；
// 同一投票的两次定稿用分布式锁互斥，后到的一次会看到已定稿状态。
func (f *Finalizer) Finalize(ctx context.Context, ev *model.InboundEvent, poll *model.Poll) (*model.Reply, error) {
	if ev.ActorID != poll.OwnerID {
		return nil, ErrNotOwner
	}
	if poll.Status != model.PollStatusOpen {
		return nil, ErrPollClosed
	}

	var announcement string
	err := f.locks.WithLock("finalize:"+poll.ID, 30*time.Second, func() error {
		// 锁内重读状态，挡住并发定稿
		fresh, err := f.repo.GetPollByID(ctx, poll.ID)
		if err != nil {
			return err
		}
		if fresh.Status != model.PollStatusOpen {
			return ErrPollClosed
		}

		ballots, err := f.repo.ListBallots(ctx, poll.ID)
		if err != nil {
			return err
		}

		var (
			resultJSON string
			text       string
		)
		switch {
		case fresh.Kind == model.PollKindScheduler:
			result := TallyScheduler(fresh.Slots, ballots)
			resultJSON, err = model.MarshalResult(result)
			text = formatSchedulerAnnouncement(fresh, result)
		case fresh.VoteType == model.VoteTypeRankedChoice:
			result := RunIRV(fresh.OptionIDs(), submittedRankings(ballots))
			resultJSON, err = model.MarshalResult(result)
			text = formatIRVAnnouncement(fresh, result)
		default:
			result := TallyMultipleChoice(fresh.Options, ballots, fresh.AllowWriteIn)
			resultJSON, err = model.MarshalResult(result)
			text = formatTallyAnnouncement(fresh, result)
		}
		if err != nil {
			return fmt.Errorf("序列化定稿结果失败: %w", err)
		}

		if err := f.repo.FinalizePoll(ctx, poll.ID, resultJSON); err != nil {
			return err
		}
		announcement = text
		return nil
	})
	if err != nil {
		return nil, err
	}

	if f.announcer != nil {
		f.announcer.Announce(poll.ID, announcement)
	}
	return &model.Reply{EventID: ev.EventID, Content: announcement}, nil
}

// submittedRankings 提取已提交的排序选票
func submittedRankings(ballots []model.Ballot) [][]string {
	rankings := make([][]string, 0, len(ballots))
	for i := range ballots {
		if len(ballots[i].Ranking) > 0 {
			rankings = append(rankings, ballots[i].Ranking)
		}
	}
	return rankings
}

func formatTallyAnnouncement(poll *model.Poll, result *model.TallyResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Poll %q is closed. %d ballots counted.\n", poll.Title, result.VoterCount)
	for _, row := range result.Rows {
		fmt.Fprintf(&b, "- %s: %d (%d%%)\n", row.Label, row.Count, row.Percentage)
	}
	if len(result.WinnerIDs) == 1 {
		fmt.Fprintf(&b, "Winner: %s", labelForKey(poll, result, result.WinnerIDs[0]))
	} else if len(result.WinnerIDs) > 1 {
		fmt.Fprintf(&b, "Tied at the top: %d options", len(result.WinnerIDs))
	} else {
		b.WriteString("No votes were cast.")
	}
	return b.String()
}

func formatIRVAnnouncement(poll *model.Poll, result *model.IRVResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ranked poll %q is closed. %d ballots, %d rounds.\n",
		poll.Title, result.TotalBallots, len(result.Rounds))
	if len(result.WinnerIDs) > 0 {
		fmt.Fprintf(&b, "Winner: %s", optionLabel(poll, result.WinnerIDs[0]))
	} else if len(result.TiedIDs) > 0 {
		// 未决平局明确交给人工裁决，引擎不擅自挑选
		labels := make([]string, 0, len(result.TiedIDs))
		for _, id := range result.TiedIDs {
			labels = append(labels, optionLabel(poll, id))
		}
		fmt.Fprintf(&b, "Unresolved tie between: %s. Manual resolution required.",
			strings.Join(labels, ", "))
	} else {
		b.WriteString("No ballots were cast.")
	}
	if result.ExhaustedCount > 0 {
		fmt.Fprintf(&b, "\n%d ballots exhausted in the final round.", result.ExhaustedCount)
	}
	return b.String()
}

func formatSchedulerAnnouncement(poll *model.Poll, result *model.SlotTallyResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scheduling poll %q is closed. %d responses", poll.Title, result.VoterCount)
	if result.Unavailable > 0 {
		fmt.Fprintf(&b, " (%d unavailable)", result.Unavailable)
	}
	b.WriteString(".\n")
	for _, row := range result.Rows {
		fmt.Fprintf(&b, "- %s: %d feasible, %d preferred\n", row.Label, row.Feasible, row.Preferred)
	}
	if len(result.WinnerSlotIDs) > 0 {
		labels := make([]string, 0, len(result.WinnerSlotIDs))
		for _, id := range result.WinnerSlotIDs {
			for _, slot := range poll.Slots {
				if slot.ID == id {
					labels = append(labels, slot.Label)
				}
			}
		}
		fmt.Fprintf(&b, "Best slot(s): %s", strings.Join(labels, ", "))
	} else {
		b.WriteString("No slot received any votes.")
	}
	return b.String()
}

func optionLabel(poll *model.Poll, optionID string) string {
	for _, opt := range poll.Options {
		if opt.ID == optionID {
			return opt.Label
		}
	}
	return optionID
}

func labelForKey(poll *model.Poll, result *model.TallyResult, key string) string {
	for _, row := range result.Rows {
		if row.Key == key {
			return row.Label
		}
	}
	return optionLabel(poll, key)
}
