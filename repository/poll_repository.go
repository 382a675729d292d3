package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chatvote-worker/model"
)

var (
	// ErrPollNotFound 投票活动不存在错误
	ErrPollNotFound = errors.New("poll not found")
	// ErrBallotNotFound 选票不存在错误
	ErrBallotNotFound = errors.New("ballot not found")
)

// PollRepository 定义worker侧的投票数据访问接口。
// 投票的创建和编辑属于外部Web应用，这里只需要读取、提交选票和定稿。
type PollRepository interface {
	// 投票活动相关方法
	GetPollByID(ctx context.Context, id string) (*model.Poll, error)
	ListOpenPollIDs(ctx context.Context) ([]string, error)
	IsParticipant(ctx context.Context, pollID, userID string) (bool, error)
	FinalizePoll(ctx context.Context, pollID string, resultJSON string) error
	ClosePollsPastDeadline(ctx context.Context, now time.Time) (int64, error)

	// 选票相关方法
	GetBallot(ctx context.Context, pollID, voterID string) (*model.Ballot, error)
	UpsertBallot(ctx context.Context, ballot *model.Ballot) error
	ListBallots(ctx context.Context, pollID string) ([]model.Ballot, error)
}

// GormPollRepository 基于GORM的PollRepository实现
type GormPollRepository struct {
	db *gorm.DB
}

// NewGormPollRepository 创建GORM投票数据仓库
func NewGormPollRepository(db *gorm.DB) *GormPollRepository {
	return &GormPollRepository{db: db}
}

// GetPollByID 获取投票详情，预加载时间段和选项
func (r *GormPollRepository) GetPollByID(ctx context.Context, id string) (*model.Poll, error) {
	var poll model.Poll
	err := r.db.WithContext(ctx).
		Preload("Slots", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Options", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&poll, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPollNotFound
		}
		return nil, err
	}
	return &poll, nil
}

// ListOpenPollIDs 列出所有进行中的投票ID，用于预热布隆过滤器
func (r *GormPollRepository) ListOpenPollIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Poll{}).
		Where("status = ?", model.PollStatusOpen).
		Pluck("id", &ids).Error
	return ids, err
}

// IsParticipant 检查用户是否是投票参与者
func (r *GormPollRepository) IsParticipant(ctx context.Context, pollID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Participant{}).
		Where("poll_id = ? AND user_id = ?", pollID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FinalizePoll 写入定稿结果并将状态翻转为finalized
func (r *GormPollRepository) FinalizePoll(ctx context.Context, pollID string, resultJSON string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Poll{}).
		Where("id = ?", pollID).
		Updates(map[string]any{
			"status":      model.PollStatusFinalized,
			"result_json": resultJSON,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPollNotFound
	}
	return nil
}

// ClosePollsPastDeadline 关闭所有已过截止时间但仍为open的投票，返回关闭数量
func (r *GormPollRepository) ClosePollsPastDeadline(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Poll{}).
		Where("status = ? AND deadline IS NOT NULL AND deadline < ?", model.PollStatusOpen, now).
		Update("status", model.PollStatusFinalized)
	return result.RowsAffected, result.Error
}

// GetBallot 获取某个用户在某个投票下已提交的选票
func (r *GormPollRepository) GetBallot(ctx context.Context, pollID, voterID string) (*model.Ballot, error) {
	var ballot model.Ballot
	err := r.db.WithContext(ctx).
		First(&ballot, "poll_id = ? AND voter_id = ?", pollID, voterID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBallotNotFound
		}
		return nil, err
	}
	return &ballot, nil
}

// UpsertBallot 提交选票，同一(poll, voter)的旧选票被整体覆盖
func (r *GormPollRepository) UpsertBallot(ctx context.Context, ballot *model.Ballot) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "poll_id"}, {Name: "voter_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"slot_votes", "option_ids", "ranking", "write_in", "no_times_work", "updated_at",
			}),
		}).
		Create(ballot).Error
}

// ListBallots 读取投票下的全部选票。
// 定稿用的快照：快照之后提交的选票不会进入结果，这是设计上接受的行为。
func (r *GormPollRepository) ListBallots(ctx context.Context, pollID string) ([]model.Ballot, error) {
	var ballots []model.Ballot
	err := r.db.WithContext(ctx).
		Where("poll_id = ?", pollID).
		Order("created_at").
		Find(&ballots).Error
	return ballots, err
}

// AddParticipant 添加参与者（测试和工具用）
func (r *GormPollRepository) AddParticipant(ctx context.Context, pollID, userID string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Participant{PollID: pollID, UserID: userID}).Error
}
