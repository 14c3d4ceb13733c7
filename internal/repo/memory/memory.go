// Package memory is a process-local storage backend. It offers the same
// guarantees as the PostgreSQL store: one ballot per (poll, user), counters
// that always match the ballots, and cascade deletes.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayosleepy/polls/internal/entity"
	"github.com/ayosleepy/polls/internal/repo"
)

type ballotKey struct {
	pollID int64
	userID int64
}

// optionState guards the counter of a single option.
type optionState struct {
	mu  sync.Mutex
	opt entity.Option
}

// ballot is a ledger entry. It is published to the index before the counter
// moves; ready is closed once the counter includes it.
type ballot struct {
	vote  entity.Vote
	ready chan struct{}
}

func (o *optionState) snapshot() entity.Option {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opt
}

type Storage struct {
	// mu protects the structure of the maps below, not the counters.
	// Votes hold it shared, authoring holds it exclusively.
	mu          sync.RWMutex
	polls       map[int64]entity.Poll
	options     map[int64]*optionState
	pollOptions map[int64][]int64

	// ballots is the uniqueness index of the ledger, keyed by (poll, user).
	ballots sync.Map

	logMu sync.Mutex
	logs  []entity.Log

	accountsMu sync.RWMutex
	users      map[int64]*entity.User
	profiles   map[int64]*entity.Profile
	tokens     map[string]refreshToken

	pollSeq   atomic.Int64
	optionSeq atomic.Int64
	voteSeq   atomic.Int64
	logSeq    atomic.Int64
	userSeq   atomic.Int64
}

func New() *Storage {
	return &Storage{
		polls:       make(map[int64]entity.Poll),
		options:     make(map[int64]*optionState),
		pollOptions: make(map[int64][]int64),
		users:       make(map[int64]*entity.User),
		profiles:    make(map[int64]*entity.Profile),
		tokens:      make(map[string]refreshToken),
	}
}

func (s *Storage) SavePoll(ctx context.Context, poll entity.Poll, options []string) (int64, error) {
	const op = "storage.memory.SavePoll"

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	poll.ID = s.pollSeq.Add(1)
	poll.CreatedAt = now
	poll.UpdatedAt = now
	s.polls[poll.ID] = poll

	for _, text := range options {
		s.addOptionLocked(poll.ID, text, now)
	}

	return poll.ID, nil
}

func (s *Storage) addOptionLocked(pollID int64, text string, now time.Time) int64 {
	id := s.optionSeq.Add(1)
	s.options[id] = &optionState{opt: entity.Option{
		ID:        id,
		PollID:    pollID,
		Text:      text,
		CreatedAt: now,
	}}
	s.pollOptions[pollID] = append(s.pollOptions[pollID], id)
	return id
}

func (s *Storage) GetPollByID(ctx context.Context, id int64) (entity.Poll, error) {
	const op = "storage.memory.GetPollByID"

	s.mu.RLock()
	defer s.mu.RUnlock()

	poll, ok := s.polls[id]
	if !ok {
		return entity.Poll{}, fmt.Errorf("%s: %w", op, repo.ErrPollNotFound)
	}
	return poll, nil
}

func (s *Storage) ListActivePolls(ctx context.Context, now time.Time, page repo.Page) ([]entity.Poll, error) {
	s.mu.RLock()
	active := make([]entity.Poll, 0, len(s.polls))
	for _, p := range s.polls {
		if p.IsOpen(now) {
			active = append(active, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(active, func(i, j int) bool {
		if !active[i].PublishedAt.Equal(active[j].PublishedAt) {
			return active[i].PublishedAt.After(active[j].PublishedAt)
		}
		return active[i].ID > active[j].ID
	})

	return paginate(active, page), nil
}

func (s *Storage) UpdatePoll(ctx context.Context, poll entity.Poll) error {
	const op = "storage.memory.UpdatePoll"

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.polls[poll.ID]
	if !ok {
		return fmt.Errorf("%s: %w", op, repo.ErrPollNotFound)
	}

	current.Question = poll.Question
	current.ShortDescription = poll.ShortDescription
	current.Description = poll.Description
	current.ImagePath = poll.ImagePath
	current.PublishedAt = poll.PublishedAt
	current.ClosesAt = poll.ClosesAt
	current.UpdatedAt = time.Now()
	s.polls[poll.ID] = current

	return nil
}

// DeletePoll removes the poll with its options and ballots.
func (s *Storage) DeletePoll(ctx context.Context, id int64) error {
	const op = "storage.memory.DeletePoll"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.polls[id]; !ok {
		return fmt.Errorf("%s: %w", op, repo.ErrPollNotFound)
	}

	for _, optionID := range s.pollOptions[id] {
		delete(s.options, optionID)
	}
	delete(s.pollOptions, id)
	delete(s.polls, id)

	s.ballots.Range(func(k, _ any) bool {
		if k.(ballotKey).pollID == id {
			s.ballots.Delete(k)
		}
		return true
	})

	return nil
}

func (s *Storage) SaveOption(ctx context.Context, pollID int64, text string) (int64, error) {
	const op = "storage.memory.SaveOption"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.polls[pollID]; !ok {
		return 0, fmt.Errorf("%s: %w", op, repo.ErrPollNotFound)
	}

	return s.addOptionLocked(pollID, text, time.Now()), nil
}

func (s *Storage) GetOptionByID(ctx context.Context, id int64) (entity.Option, error) {
	const op = "storage.memory.GetOptionByID"

	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.options[id]
	if !ok {
		return entity.Option{}, fmt.Errorf("%s: %w", op, repo.ErrOptionNotFound)
	}
	return st.snapshot(), nil
}

func (s *Storage) GetOptionsByPollID(ctx context.Context, pollID int64) ([]entity.Option, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.pollOptions[pollID]
	options := make([]entity.Option, 0, len(ids))
	for _, id := range ids {
		options = append(options, s.options[id].snapshot())
	}
	return options, nil
}

func (s *Storage) UserVote(ctx context.Context, pollID, userID int64) (entity.Vote, error) {
	const op = "storage.memory.UserVote"

	v, ok := s.ballots.Load(ballotKey{pollID: pollID, userID: userID})
	if !ok {
		return entity.Vote{}, fmt.Errorf("%s: %w", op, repo.ErrVoteNotFound)
	}

	b := v.(*ballot)
	select {
	case <-b.ready:
		return b.vote, nil
	case <-ctx.Done():
		return entity.Vote{}, fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

// RecordVote claims the (poll, user) ballot and then bumps the counter of
// the chosen option. Only the option's own mutex is taken exclusively, so
// votes for different options never wait on each other. UserVote does not
// report the ballot until the counter has been bumped.
func (s *Storage) RecordVote(ctx context.Context, vote entity.Vote) (entity.Option, error) {
	const op = "storage.memory.RecordVote"

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.polls[vote.PollID]; !ok {
		return entity.Option{}, fmt.Errorf("%s: %w", op, repo.ErrPollNotFound)
	}
	st, ok := s.options[vote.OptionID]
	if !ok || st.opt.PollID != vote.PollID {
		return entity.Option{}, fmt.Errorf("%s: %w", op, repo.ErrOptionNotFound)
	}

	// Last point at which cancellation leaves nothing behind.
	if err := ctx.Err(); err != nil {
		return entity.Option{}, fmt.Errorf("%s: %w", op, err)
	}

	vote.ID = s.voteSeq.Add(1)
	b := &ballot{vote: vote, ready: make(chan struct{})}
	if _, loaded := s.ballots.LoadOrStore(ballotKey{pollID: vote.PollID, userID: vote.UserID}, b); loaded {
		return entity.Option{}, fmt.Errorf("%s: %w", op, repo.ErrAlreadyVoted)
	}

	st.mu.Lock()
	st.opt.Votes++
	updated := st.opt
	st.mu.Unlock()
	close(b.ready)

	return updated, nil
}

func (s *Storage) SaveLog(ctx context.Context, log *entity.Log) (int64, error) {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	log.ID = s.logSeq.Add(1)
	log.CreatedAt = time.Now()
	s.logs = append(s.logs, *log)

	return log.ID, nil
}

// GetLogs returns the newest entries first.
func (s *Storage) GetLogs(ctx context.Context, page repo.Page) ([]entity.Log, error) {
	s.logMu.Lock()
	logs := make([]entity.Log, 0, len(s.logs))
	for i := len(s.logs) - 1; i >= 0; i-- {
		logs = append(logs, s.logs[i])
	}
	s.logMu.Unlock()

	return paginate(logs, page), nil
}

func paginate[T any](items []T, page repo.Page) []T {
	page = page.Normalize()
	if page.Offset >= len(items) {
		return []T{}
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end]
}
