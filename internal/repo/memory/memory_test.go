package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayosleepy/polls/internal/entity"
	"github.com/ayosleepy/polls/internal/repo"
)

func newPoll(t *testing.T, s *Storage, publishedAt time.Time, closesAt *time.Time, options ...string) (int64, []entity.Option) {
	t.Helper()

	if len(options) == 0 {
		options = []string{gofakeit.Word(), gofakeit.Word()}
	}

	id, err := s.SavePoll(context.Background(), entity.Poll{
		Question:    gofakeit.Question(),
		PublishedAt: publishedAt,
		ClosesAt:    closesAt,
	}, options)
	require.NoError(t, err)

	opts, err := s.GetOptionsByPollID(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, opts, len(options))

	return id, opts
}

func ballotsFor(s *Storage, optionID int64) int64 {
	var n int64
	s.ballots.Range(func(_, v any) bool {
		if v.(*ballot).vote.OptionID == optionID {
			n++
		}
		return true
	})
	return n
}

func TestRecordVote_IncrementsCounter(t *testing.T) {
	s := New()
	ctx := context.Background()
	pollID, opts := newPoll(t, s, time.Now(), nil)

	updated, err := s.RecordVote(ctx, entity.Vote{PollID: pollID, OptionID: opts[0].ID, UserID: 1, VotedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Votes)

	vote, err := s.UserVote(ctx, pollID, 1)
	require.NoError(t, err)
	assert.Equal(t, opts[0].ID, vote.OptionID)
}

func TestRecordVote_SecondVoteInPollRejected(t *testing.T) {
	s := New()
	ctx := context.Background()
	pollID, opts := newPoll(t, s, time.Now(), nil)

	_, err := s.RecordVote(ctx, entity.Vote{PollID: pollID, OptionID: opts[0].ID, UserID: 7})
	require.NoError(t, err)

	_, err = s.RecordVote(ctx, entity.Vote{PollID: pollID, OptionID: opts[1].ID, UserID: 7})
	require.ErrorIs(t, err, repo.ErrAlreadyVoted)

	got, err := s.GetOptionsByPollID(ctx, pollID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got[0].Votes)
	assert.Equal(t, int64(0), got[1].Votes)
}

func TestRecordVote_OptionOfAnotherPoll(t *testing.T) {
	s := New()
	ctx := context.Background()
	pollA, _ := newPoll(t, s, time.Now(), nil)
	_, optsB := newPoll(t, s, time.Now(), nil)

	_, err := s.RecordVote(ctx, entity.Vote{PollID: pollA, OptionID: optsB[0].ID, UserID: 1})
	require.ErrorIs(t, err, repo.ErrOptionNotFound)

	_, err = s.UserVote(ctx, pollA, 1)
	assert.ErrorIs(t, err, repo.ErrVoteNotFound)
}

func TestRecordVote_CancelledContext(t *testing.T) {
	s := New()
	pollID, opts := newPoll(t, s, time.Now(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.RecordVote(ctx, entity.Vote{PollID: pollID, OptionID: opts[0].ID, UserID: 1})
	require.ErrorIs(t, err, context.Canceled)

	_, err = s.UserVote(context.Background(), pollID, 1)
	assert.ErrorIs(t, err, repo.ErrVoteNotFound)
	got, err := s.GetOptionByID(context.Background(), opts[0].ID)
	require.NoError(t, err)
	assert.Zero(t, got.Votes)
}

func TestRecordVote_ConcurrentSameUser(t *testing.T) {
	s := New()
	pollID, opts := newPoll(t, s, time.Now(), nil, "a", "b", "c")

	const attempts = 64
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.RecordVote(context.Background(), entity.Vote{
				PollID:   pollID,
				OptionID: opts[i%len(opts)].ID,
				UserID:   42,
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, repo.ErrAlreadyVoted)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)

	got, err := s.GetOptionsByPollID(context.Background(), pollID)
	require.NoError(t, err)
	var total int64
	for _, o := range got {
		total += o.Votes
	}
	assert.Equal(t, int64(1), total)
}

func TestRecordVote_ConcurrentCountersMatchBallots(t *testing.T) {
	s := New()
	pollID, opts := newPoll(t, s, time.Now(), nil, "a", "b", "c")

	const users = 300
	var wg sync.WaitGroup
	for u := 1; u <= users; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			_, err := s.RecordVote(context.Background(), entity.Vote{
				PollID:   pollID,
				OptionID: opts[u%len(opts)].ID,
				UserID:   int64(u),
			})
			assert.NoError(t, err)
		}(u)
	}
	wg.Wait()

	got, err := s.GetOptionsByPollID(context.Background(), pollID)
	require.NoError(t, err)

	var total int64
	for _, o := range got {
		assert.Equal(t, ballotsFor(s, o.ID), o.Votes)
		total += o.Votes
	}
	assert.Equal(t, int64(users), total)
}

func TestUserVote_NeverAheadOfCounter(t *testing.T) {
	s := New()
	ctx := context.Background()
	pollID, opts := newPoll(t, s, time.Now(), nil)

	const voters = 200

	var (
		wg         sync.WaitGroup
		violations atomic.Int64
		done       = make(chan struct{})
	)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}

				var seen int64
				for u := int64(1); u <= voters; u++ {
					if _, err := s.UserVote(ctx, pollID, u); err == nil {
						seen++
					}
				}
				opt, err := s.GetOptionByID(ctx, opts[0].ID)
				if err == nil && opt.Votes < seen {
					violations.Add(1)
				}
			}
		}()
	}

	var votersWG sync.WaitGroup
	for u := int64(1); u <= voters; u++ {
		votersWG.Add(1)
		go func(u int64) {
			defer votersWG.Done()
			_, err := s.RecordVote(ctx, entity.Vote{PollID: pollID, OptionID: opts[0].ID, UserID: u, VotedAt: time.Now()})
			assert.NoError(t, err)
		}(u)
	}
	votersWG.Wait()
	close(done)
	wg.Wait()

	assert.Zero(t, violations.Load())

	opt, err := s.GetOptionByID(ctx, opts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(voters), opt.Votes)
}

func TestUserVote_PendingBallotRespectsContext(t *testing.T) {
	s := New()
	s.ballots.Store(ballotKey{pollID: 1, userID: 2}, &ballot{vote: entity.Vote{PollID: 1, UserID: 2}, ready: make(chan struct{})})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.UserVote(ctx, 1, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListActivePolls_OrderAndFilter(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	older, _ := newPoll(t, s, now.Add(-48*time.Hour), nil)
	newer, _ := newPoll(t, s, now.Add(-time.Hour), &future)
	_, _ = newPoll(t, s, now.Add(-2*time.Hour), &past)
	tieA, _ := newPoll(t, s, now.Add(-3*time.Hour), &now)
	tieB, _ := newPoll(t, s, now.Add(-3*time.Hour), nil)

	polls, err := s.ListActivePolls(ctx, now, repo.Page{})
	require.NoError(t, err)

	ids := make([]int64, 0, len(polls))
	for _, p := range polls {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []int64{newer, tieB, tieA, older}, ids)

	page, err := s.ListActivePolls(ctx, now, repo.Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, tieB, page[0].ID)
	assert.Equal(t, tieA, page[1].ID)

	empty, err := s.ListActivePolls(ctx, now, repo.Page{Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDeletePoll_Cascades(t *testing.T) {
	s := New()
	ctx := context.Background()
	pollID, opts := newPoll(t, s, time.Now(), nil)

	_, err := s.RecordVote(ctx, entity.Vote{PollID: pollID, OptionID: opts[0].ID, UserID: 3})
	require.NoError(t, err)

	require.NoError(t, s.DeletePoll(ctx, pollID))

	_, err = s.GetPollByID(ctx, pollID)
	assert.ErrorIs(t, err, repo.ErrPollNotFound)
	_, err = s.GetOptionByID(ctx, opts[0].ID)
	assert.ErrorIs(t, err, repo.ErrOptionNotFound)
	_, err = s.UserVote(ctx, pollID, 3)
	assert.ErrorIs(t, err, repo.ErrVoteNotFound)

	assert.ErrorIs(t, s.DeletePoll(ctx, pollID), repo.ErrPollNotFound)
}

func TestSaveOption_UnknownPoll(t *testing.T) {
	s := New()

	_, err := s.SaveOption(context.Background(), 99, "x")
	assert.ErrorIs(t, err, repo.ErrPollNotFound)
}

func TestAccounts_Lifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	username, email := gofakeit.Username(), gofakeit.Email()

	id, err := s.SaveUser(ctx, username, email, []byte("hash"))
	require.NoError(t, err)

	_, err = s.SaveUser(ctx, username, gofakeit.Email(), []byte("hash"))
	assert.ErrorIs(t, err, repo.ErrUserExists)

	profile, err := s.Profile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, username, profile.Username)

	require.NoError(t, s.SaveToken(ctx, id, "rt", time.Now().Add(time.Hour)))
	valid, err := s.IsRefreshTokenValid(ctx, id, "rt", time.Now())
	require.NoError(t, err)
	assert.True(t, valid)

	require.NoError(t, s.DeleteUser(ctx, id))

	_, err = s.User(ctx, email)
	assert.ErrorIs(t, err, repo.ErrUserNotFound)
	_, err = s.Profile(ctx, id)
	assert.ErrorIs(t, err, repo.ErrProfileNotFound)
	valid, err = s.IsRefreshTokenValid(ctx, id, "rt", time.Now())
	require.NoError(t, err)
	assert.False(t, valid)

	// Credentials of a deleted account are free again.
	_, err = s.SaveUser(ctx, username, email, []byte("hash"))
	assert.NoError(t, err)
}

func TestDeleteUser_KeepsVotes(t *testing.T) {
	s := New()
	ctx := context.Background()
	uid, err := s.SaveUser(ctx, gofakeit.Username(), gofakeit.Email(), []byte("hash"))
	require.NoError(t, err)
	pollID, opts := newPoll(t, s, time.Now(), nil)

	_, err = s.RecordVote(ctx, entity.Vote{PollID: pollID, OptionID: opts[1].ID, UserID: uid})
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, uid))

	got, err := s.GetOptionByID(ctx, opts[1].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Votes)
	assert.Equal(t, ballotsFor(s, opts[1].ID), got.Votes)
}

func TestListProfiles_Search(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.SaveUser(ctx, "alice", "alice@example.com", []byte("h"))
	require.NoError(t, err)
	_, err = s.SaveUser(ctx, "Malice", "malice@example.com", []byte("h"))
	require.NoError(t, err)
	_, err = s.SaveUser(ctx, "bob", "bob@example.com", []byte("h"))
	require.NoError(t, err)

	profiles, err := s.ListProfiles(ctx, "ALIC", repo.Page{})
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "alice", profiles[0].Username)
	assert.Equal(t, "Malice", profiles[1].Username)
}
