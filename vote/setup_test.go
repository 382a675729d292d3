package vote

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chatvote-worker/cache"
	"chatvote-worker/model"
	"chatvote-worker/repository"
)

// setupTestDB opens an isolated in-memory SQLite database and migrates the schema.
func setupTestDB(t *testing.T) (*gorm.DB, *repository.GormPollRepository) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&model.Poll{}, &model.Slot{}, &model.Option{}, &model.Participant{}, &model.Ballot{})
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	})

	return db, repository.NewGormPollRepository(db)
}

// setupTestSessions backs a SessionStore with an embedded miniredis instance.
func setupTestSessions(t *testing.T) (*cache.SessionStore, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return cache.NewSessionStore(client, time.Minute), client
}

func seedSchedulerPoll(t *testing.T, db *gorm.DB, slotCount int, participants ...string) string {
	t.Helper()

	poll := &model.Poll{
		ID:        "sched-" + t.Name(),
		Kind:      model.PollKindScheduler,
		Title:     "Team sync",
		OwnerID:   "owner-1",
		ChannelID: "channel-1",
		Status:    model.PollStatusOpen,
	}
	require.NoError(t, db.Create(poll).Error)

	for i := 0; i < slotCount; i++ {
		slot := &model.Slot{
			ID:       slotID(i),
			PollID:   poll.ID,
			Label:    "Slot " + slotID(i),
			Position: i,
		}
		require.NoError(t, db.Create(slot).Error)
	}
	for _, userID := range participants {
		require.NoError(t, db.Create(&model.Participant{PollID: poll.ID, UserID: userID}).Error)
	}
	return poll.ID
}

func seedBasicPoll(t *testing.T, db *gorm.DB, voteType model.VoteType, optionCount int, mutate func(*model.Poll), participants ...string) string {
	t.Helper()

	poll := &model.Poll{
		ID:        "basic-" + t.Name(),
		Kind:      model.PollKindBasic,
		Title:     "Lunch vote",
		OwnerID:   "owner-1",
		ChannelID: "channel-1",
		VoteType:  voteType,
		Status:    model.PollStatusOpen,
	}
	if mutate != nil {
		mutate(poll)
	}
	require.NoError(t, db.Create(poll).Error)

	for i := 0; i < optionCount; i++ {
		option := &model.Option{
			ID:       optionID(i),
			PollID:   poll.ID,
			Label:    "Option " + optionID(i),
			Position: i,
		}
		require.NoError(t, db.Create(option).Error)
	}
	for _, userID := range participants {
		require.NoError(t, db.Create(&model.Participant{PollID: poll.ID, UserID: userID}).Error)
	}
	return poll.ID
}

func slotID(i int) string {
	return "slot-" + strconv.Itoa(i)
}

func optionID(i int) string {
	return "opt-" + strconv.Itoa(i)
}

func loadPoll(t *testing.T, repo repository.PollRepository, pollID string) *model.Poll {
	t.Helper()
	poll, err := repo.GetPollByID(context.Background(), pollID)
	require.NoError(t, err)
	return poll
}

func testEvent(actorID string, values ...string) *model.InboundEvent {
	return &model.InboundEvent{
		EventID:   "ev-" + actorID,
		Kind:      model.EventKindComponentAction,
		ActorID:   actorID,
		ChannelID: "channel-1",
		Values:    values,
		CreatedAt: time.Now(),
	}
}
