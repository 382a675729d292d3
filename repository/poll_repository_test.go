package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chatvote-worker/model"
)

func setupRepo(t *testing.T) (*gorm.DB, *GormPollRepository) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Poll{}, &model.Slot{}, &model.Option{}, &model.Participant{}, &model.Ballot{}))

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	})

	return db, NewGormPollRepository(db)
}

func TestGetPollByIDPreloadsOrdered(t *testing.T) {
	db, repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.Poll{ID: "p1", Kind: model.PollKindBasic, Title: "T", OwnerID: "o", Status: model.PollStatusOpen}).Error)
	// Insert out of order, expect position order back.
	require.NoError(t, db.Create(&model.Option{ID: "o2", PollID: "p1", Label: "B", Position: 1}).Error)
	require.NoError(t, db.Create(&model.Option{ID: "o1", PollID: "p1", Label: "A", Position: 0}).Error)

	poll, err := repo.GetPollByID(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, poll.Options, 2)
	assert.Equal(t, "o1", poll.Options[0].ID)
	assert.Equal(t, "o2", poll.Options[1].ID)

	_, err = repo.GetPollByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrPollNotFound)
}

func TestUpsertBallotOverwrites(t *testing.T) {
	db, repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.Poll{ID: "p1", Kind: model.PollKindBasic, Title: "T", OwnerID: "o", Status: model.PollStatusOpen}).Error)

	require.NoError(t, repo.UpsertBallot(ctx, &model.Ballot{
		ID: "b1", PollID: "p1", VoterID: "u1", OptionIDs: []string{"o1"},
	}))
	require.NoError(t, repo.UpsertBallot(ctx, &model.Ballot{
		ID: "b2", PollID: "p1", VoterID: "u1", OptionIDs: []string{"o2"}, WriteIn: "Soup",
	}))

	// One row per (poll, voter), last write wins whole-document.
	var count int64
	require.NoError(t, db.Model(&model.Ballot{}).Where("poll_id = ?", "p1").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	ballot, err := repo.GetBallot(ctx, "p1", "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"o2"}, ballot.OptionIDs)
	assert.Equal(t, "Soup", ballot.WriteIn)

	_, err = repo.GetBallot(ctx, "p1", "nobody")
	assert.ErrorIs(t, err, ErrBallotNotFound)
}

func TestFinalizePoll(t *testing.T) {
	db, repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.Poll{ID: "p1", Kind: model.PollKindBasic, Title: "T", OwnerID: "o", Status: model.PollStatusOpen}).Error)

	require.NoError(t, repo.FinalizePoll(ctx, "p1", `{"voter_count":0}`))

	var poll model.Poll
	require.NoError(t, db.First(&poll, "id = ?", "p1").Error)
	assert.Equal(t, model.PollStatusFinalized, poll.Status)
	assert.Equal(t, `{"voter_count":0}`, poll.ResultJSON)

	assert.ErrorIs(t, repo.FinalizePoll(ctx, "missing", "{}"), ErrPollNotFound)
}

func TestClosePollsPastDeadline(t *testing.T) {
	db, repo := setupRepo(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	require.NoError(t, db.Create(&model.Poll{ID: "expired", Kind: model.PollKindBasic, Title: "T", OwnerID: "o", Status: model.PollStatusOpen, Deadline: &past}).Error)
	require.NoError(t, db.Create(&model.Poll{ID: "running", Kind: model.PollKindBasic, Title: "T", OwnerID: "o", Status: model.PollStatusOpen, Deadline: &future}).Error)
	require.NoError(t, db.Create(&model.Poll{ID: "open-ended", Kind: model.PollKindBasic, Title: "T", OwnerID: "o", Status: model.PollStatusOpen}).Error)

	closed, err := repo.ClosePollsPastDeadline(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed)

	// A fresh struct per lookup: First would otherwise carry the previous
	// primary key into the next query's conditions.
	var expired model.Poll
	require.NoError(t, db.First(&expired, "id = ?", "expired").Error)
	assert.Equal(t, model.PollStatusFinalized, expired.Status)

	var running model.Poll
	require.NoError(t, db.First(&running, "id = ?", "running").Error)
	assert.Equal(t, model.PollStatusOpen, running.Status)
}

func TestParticipants(t *testing.T) {
	db, repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.Poll{ID: "p1", Kind: model.PollKindBasic, Title: "T", OwnerID: "o", Status: model.PollStatusOpen}).Error)
	require.NoError(t, repo.AddParticipant(ctx, "p1", "u1"))
	// Adding twice is a no-op.
	require.NoError(t, repo.AddParticipant(ctx, "p1", "u1"))

	ok, err := repo.IsParticipant(ctx, "p1", "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IsParticipant(ctx, "p1", "u2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListOpenPollIDs(t *testing.T) {
	db, repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.Poll{ID: "p1", Kind: model.PollKindBasic, Title: "T", OwnerID: "o", Status: model.PollStatusOpen}).Error)
	require.NoError(t, db.Create(&model.Poll{ID: "p2", Kind: model.PollKindBasic, Title: "T", OwnerID: "o", Status: model.PollStatusFinalized}).Error)

	ids, err := repo.ListOpenPollIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)
}

func TestListBallots(t *testing.T) {
	db, repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.Poll{ID: "p1", Kind: model.PollKindScheduler, Title: "T", OwnerID: "o", Status: model.PollStatusOpen}).Error)
	require.NoError(t, repo.UpsertBallot(ctx, &model.Ballot{
		ID: "b1", PollID: "p1", VoterID: "u1",
		SlotVotes: map[string]model.SlotVote{"s1": model.SlotVotePreferred},
	}))
	require.NoError(t, repo.UpsertBallot(ctx, &model.Ballot{
		ID: "b2", PollID: "p1", VoterID: "u2", NoTimesWork: true,
	}))

	ballots, err := repo.ListBallots(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, ballots, 2)

	byVoter := make(map[string]model.Ballot, len(ballots))
	for _, b := range ballots {
		byVoter[b.VoterID] = b
	}
	// The JSON serializer round-trips the vote map.
	assert.Equal(t, model.SlotVotePreferred, byVoter["u1"].SlotVotes["s1"])
	assert.True(t, byVoter["u2"].NoTimesWork)
}
