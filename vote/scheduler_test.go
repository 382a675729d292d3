package vote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatvote-worker/cache"
	"chatvote-worker/model"
	"chatvote-worker/repository"
)

func TestSchedulerOpenSeedsFromBallot(t *testing.T) {
	db, repo := setupTestDB(t)
	sessions, _ := setupTestSessions(t)
	flow := NewSchedulerFlow(repo, sessions)
	ctx := context.Background()

	pollID := seedSchedulerPoll(t, db, 3, "u1")
	ballot := &model.Ballot{
		ID: "b1", PollID: pollID, VoterID: "u1",
		SlotVotes: map[string]model.SlotVote{
			"slot-0": model.SlotVoteFeasible,
			"slot-1": model.SlotVotePreferred,
		},
	}
	require.NoError(t, repo.UpsertBallot(ctx, ballot))

	poll := loadPoll(t, repo, pollID)
	reply, err := flow.Open(ctx, testEvent("u1"), poll)
	require.NoError(t, err)
	assert.True(t, reply.Ephemeral)
	assert.Len(t, reply.Components, 3)

	session, err := sessions.Get(ctx, cache.SessionKey(pollID, "u1", false))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"slot-0", "slot-1"}, session.Feasible)
	assert.Equal(t, []string{"slot-1"}, session.Preferred)
}

func TestSchedulerSelectPreservesOffPageChoices(t *testing.T) {
	db, repo := setupTestDB(t)
	sessions, _ := setupTestSessions(t)
	flow := NewSchedulerFlow(repo, sessions)
	ctx := context.Background()

	pollID := seedSchedulerPoll(t, db, 30, "u1") // two pages
	poll := loadPoll(t, repo, pollID)

	_, err := flow.Open(ctx, testEvent("u1"), poll)
	require.NoError(t, err)

	_, err = flow.Select(ctx, testEvent("u1", "slot-0", "slot-1"), poll, model.SlotVoteFeasible)
	require.NoError(t, err)

	_, err = flow.Turn(ctx, testEvent("u1"), poll, 1)
	require.NoError(t, err)

	_, err = flow.Select(ctx, testEvent("u1", "slot-25"), poll, model.SlotVoteFeasible)
	require.NoError(t, err)

	session, err := sessions.Get(ctx, cache.SessionKey(pollID, "u1", false))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"slot-0", "slot-1", "slot-25"}, session.Feasible)

	// Re-selecting on the first page replaces that page's picks only.
	_, err = flow.Turn(ctx, testEvent("u1"), poll, -1)
	require.NoError(t, err)
	_, err = flow.Select(ctx, testEvent("u1", "slot-2"), poll, model.SlotVoteFeasible)
	require.NoError(t, err)

	session, err = sessions.Get(ctx, cache.SessionKey(pollID, "u1", false))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"slot-2", "slot-25"}, session.Feasible)
}

func TestSchedulerPreferredImpliesFeasible(t *testing.T) {
	db, repo := setupTestDB(t)
	sessions, _ := setupTestSessions(t)
	flow := NewSchedulerFlow(repo, sessions)
	ctx := context.Background()

	pollID := seedSchedulerPoll(t, db, 3, "u1")
	poll := loadPoll(t, repo, pollID)

	_, err := flow.Open(ctx, testEvent("u1"), poll)
	require.NoError(t, err)

	// Marking a slot preferred pulls it into the feasible set too.
	_, err = flow.Select(ctx, testEvent("u1", "slot-1"), poll, model.SlotVotePreferred)
	require.NoError(t, err)

	session, err := sessions.Get(ctx, cache.SessionKey(pollID, "u1", false))
	require.NoError(t, err)
	assert.Equal(t, []string{"slot-1"}, session.Preferred)
	assert.Contains(t, session.Feasible, "slot-1")

	// Dropping it from the feasible set clears the preference as well.
	_, err = flow.Select(ctx, testEvent("u1"), poll, model.SlotVoteFeasible)
	require.NoError(t, err)

	session, err = sessions.Get(ctx, cache.SessionKey(pollID, "u1", false))
	require.NoError(t, err)
	assert.Empty(t, session.Preferred)
	assert.Empty(t, session.Feasible)
}

func TestSchedulerSubmit(t *testing.T) {
	db, repo := setupTestDB(t)
	sessions, _ := setupTestSessions(t)
	flow := NewSchedulerFlow(repo, sessions)
	ctx := context.Background()

	pollID := seedSchedulerPoll(t, db, 3, "u1")
	poll := loadPoll(t, repo, pollID)

	_, err := flow.Open(ctx, testEvent("u1"), poll)
	require.NoError(t, err)
	_, err = flow.Select(ctx, testEvent("u1", "slot-0", "slot-1"), poll, model.SlotVoteFeasible)
	require.NoError(t, err)
	_, err = flow.Select(ctx, testEvent("u1", "slot-1"), poll, model.SlotVotePreferred)
	require.NoError(t, err)

	reply, err := flow.Submit(ctx, testEvent("u1"), poll)
	require.NoError(t, err)
	assert.Contains(t, reply.Content, "saved")

	// The stronger preferred marker wins in the committed ballot.
	ballot, err := repo.GetBallot(ctx, pollID, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]model.SlotVote{
		"slot-0": model.SlotVoteFeasible,
		"slot-1": model.SlotVotePreferred,
	}, ballot.SlotVotes)

	// Session is gone after a successful submit.
	_, err = sessions.Get(ctx, cache.SessionKey(pollID, "u1", false))
	assert.ErrorIs(t, err, cache.ErrSessionNotFound)
}

func TestSchedulerSubmitValidation(t *testing.T) {
	db, repo := setupTestDB(t)
	sessions, _ := setupTestSessions(t)
	flow := NewSchedulerFlow(repo, sessions)
	ctx := context.Background()

	pollID := seedSchedulerPoll(t, db, 3, "u1")
	poll := loadPoll(t, repo, pollID)

	// No session yet.
	_, err := flow.Submit(ctx, testEvent("u1"), poll)
	assert.ErrorIs(t, err, ErrSessionExpired)

	// Empty selection.
	_, err = flow.Open(ctx, testEvent("u1"), poll)
	require.NoError(t, err)
	_, err = flow.Submit(ctx, testEvent("u1"), poll)
	assert.ErrorIs(t, err, ErrSelectAtLeastOne)

	_, err = flow.Select(ctx, testEvent("u1", "slot-0"), poll, model.SlotVoteFeasible)
	require.NoError(t, err)

	// The owner removed slot-0 while the voter was choosing.
	require.NoError(t, db.Delete(&model.Slot{}, "id = ?", "slot-0").Error)
	fresh := loadPoll(t, repo, pollID)

	_, err = flow.Submit(ctx, testEvent("u1"), fresh)
	assert.ErrorIs(t, err, ErrStaleSlots)

	// Nothing was committed on the failed submit.
	_, err = repo.GetBallot(ctx, pollID, "u1")
	assert.ErrorIs(t, err, repository.ErrBallotNotFound)
}

func TestSchedulerClear(t *testing.T) {
	db, repo := setupTestDB(t)
	sessions, _ := setupTestSessions(t)
	flow := NewSchedulerFlow(repo, sessions)
	ctx := context.Background()

	pollID := seedSchedulerPoll(t, db, 3, "u1")
	poll := loadPoll(t, repo, pollID)

	_, err := flow.Open(ctx, testEvent("u1"), poll)
	require.NoError(t, err)
	_, err = flow.Select(ctx, testEvent("u1", "slot-0"), poll, model.SlotVoteFeasible)
	require.NoError(t, err)

	// Restart keeps the session but empties the choices.
	_, err = flow.Clear(ctx, testEvent("u1"), poll, false)
	require.NoError(t, err)
	session, err := sessions.Get(ctx, cache.SessionKey(pollID, "u1", false))
	require.NoError(t, err)
	assert.Empty(t, session.Feasible)

	// "No times work" commits a terminal empty ballot and drops the session.
	reply, err := flow.Clear(ctx, testEvent("u1"), poll, true)
	require.NoError(t, err)
	assert.Contains(t, reply.Content, "unavailable")

	ballot, err := repo.GetBallot(ctx, pollID, "u1")
	require.NoError(t, err)
	assert.True(t, ballot.NoTimesWork)
	assert.Empty(t, ballot.SlotVotes)

	_, err = sessions.Get(ctx, cache.SessionKey(pollID, "u1", false))
	assert.ErrorIs(t, err, cache.ErrSessionNotFound)
}

func TestSchedulerGuards(t *testing.T) {
	db, repo := setupTestDB(t)
	sessions, _ := setupTestSessions(t)
	flow := NewSchedulerFlow(repo, sessions)
	ctx := context.Background()

	pollID := seedSchedulerPoll(t, db, 3, "u1")
	poll := loadPoll(t, repo, pollID)

	// Non-participants are rejected before any state is touched.
	_, err := flow.Open(ctx, testEvent("stranger"), poll)
	assert.ErrorIs(t, err, ErrNotParticipant)

	// Channel binding is enforced.
	ev := testEvent("u1")
	ev.ChannelID = "other-channel"
	_, err = flow.Open(ctx, ev, poll)
	assert.ErrorIs(t, err, ErrWrongChannel)

	// Closed polls reject edits.
	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&model.Poll{}).Where("id = ?", pollID).Update("deadline", past).Error)
	closed := loadPoll(t, repo, pollID)
	_, err = flow.Open(ctx, testEvent("u1"), closed)
	assert.ErrorIs(t, err, ErrPollClosed)

	// Paging touches the session too, so it follows the same rule.
	_, err = flow.Turn(ctx, testEvent("u1"), closed, 1)
	assert.ErrorIs(t, err, ErrPollClosed)
}
