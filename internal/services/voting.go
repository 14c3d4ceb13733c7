package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sl "github.com/14kear/sso-prettyslog/slogpretty/errors"

	"github.com/ayosleepy/polls/internal/entity"
	"github.com/ayosleepy/polls/internal/repo"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrInvalidOption = errors.New("option does not belong to poll")
	ErrPollClosed    = errors.New("poll is closed")
	ErrAlreadyVoted  = errors.New("already voted in this poll")
	ErrForbidden     = errors.New("forbidden")
)

const minOptions = 2

//go:generate mockgen -source=voting.go -destination=mocks/voting.go -package=mocks

type OnlineVoting struct {
	log           *slog.Logger
	logStorage    LogStorage
	optionStorage OptionStorage
	pollStorage   PollStorage
	voteStorage   VoteStorage
	admins        AdminChecker
}

type LogStorage interface {
	SaveLog(ctx context.Context, log *entity.Log) (int64, error)
	GetLogs(ctx context.Context, page repo.Page) ([]entity.Log, error)
}

type OptionStorage interface {
	SaveOption(ctx context.Context, pollID int64, text string) (int64, error)
	GetOptionByID(ctx context.Context, id int64) (entity.Option, error)
	GetOptionsByPollID(ctx context.Context, pollID int64) ([]entity.Option, error)
}

type PollStorage interface {
	SavePoll(ctx context.Context, poll entity.Poll, options []string) (int64, error)
	GetPollByID(ctx context.Context, id int64) (entity.Poll, error)
	ListActivePolls(ctx context.Context, now time.Time, page repo.Page) ([]entity.Poll, error)
	UpdatePoll(ctx context.Context, poll entity.Poll) error
	DeletePoll(ctx context.Context, id int64) error
}

// VoteStorage is the vote ledger. RecordVote must insert the vote and
// increment the option counter atomically, and must reject a second vote for
// the same (poll, user) with repo.ErrAlreadyVoted.
type VoteStorage interface {
	UserVote(ctx context.Context, pollID, userID int64) (entity.Vote, error)
	RecordVote(ctx context.Context, vote entity.Vote) (entity.Option, error)
}

type AdminChecker interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// PollInput carries the authoring fields of a poll.
type PollInput struct {
	Question         string
	ShortDescription string
	Description      string
	ImagePath        *string
	PublishedAt      time.Time
	ClosesAt         *time.Time
	Options          []string
}

func NewOnlineVoting(
	log *slog.Logger,
	logStorage LogStorage,
	optionStorage OptionStorage,
	pollStorage PollStorage,
	voteStorage VoteStorage,
	admins AdminChecker,
) *OnlineVoting {
	return &OnlineVoting{
		log:           log,
		logStorage:    logStorage,
		optionStorage: optionStorage,
		pollStorage:   pollStorage,
		voteStorage:   voteStorage,
		admins:        admins,
	}
}

// ListActivePolls returns the polls open at now, newest first.
func (v *OnlineVoting) ListActivePolls(ctx context.Context, now time.Time, page repo.Page) ([]entity.Poll, error) {
	const op = "OnlineVoting.ListActivePolls"

	polls, err := v.pollStorage.ListActivePolls(ctx, now, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return polls, nil
}

// GetPollDetail returns the poll, its options and, when userID is set, whether
// that user has already voted in it.
func (v *OnlineVoting) GetPollDetail(ctx context.Context, pollID int64, userID *int64, now time.Time) (entity.PollDetail, error) {
	const op = "OnlineVoting.GetPollDetail"

	poll, err := v.getPoll(ctx, pollID)
	if err != nil {
		return entity.PollDetail{}, fmt.Errorf("%s: %w", op, err)
	}

	options, err := v.optionStorage.GetOptionsByPollID(ctx, pollID)
	if err != nil {
		return entity.PollDetail{}, fmt.Errorf("%s: %w", op, err)
	}

	detail := entity.PollDetail{
		Poll:    poll,
		Options: options,
		IsOpen:  poll.IsOpen(now),
	}

	if userID != nil {
		vote, err := v.voteStorage.UserVote(ctx, pollID, *userID)
		switch {
		case err == nil:
			detail.HasVoted = true
			detail.VotedOptionID = &vote.OptionID
		case !errors.Is(err, repo.ErrVoteNotFound):
			return entity.PollDetail{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	return detail, nil
}

// CastVote admits a vote of userID for optionID in pollID at now and records
// it. The returned option carries the incremented counter.
func (v *OnlineVoting) CastVote(ctx context.Context, pollID, optionID, userID int64, now time.Time) (entity.Option, error) {
	const op = "OnlineVoting.CastVote"

	log := v.log.With(
		slog.String("op", op),
		slog.Int64("pollID", pollID),
		slog.Int64("optionID", optionID),
		slog.Int64("userID", userID),
	)

	poll, err := v.getPoll(ctx, pollID)
	if err != nil {
		return entity.Option{}, fmt.Errorf("%s: %w", op, err)
	}

	option, err := v.optionStorage.GetOptionByID(ctx, optionID)
	if err != nil {
		if errors.Is(err, repo.ErrOptionNotFound) {
			return entity.Option{}, fmt.Errorf("%s: %w", op, ErrInvalidOption)
		}
		return entity.Option{}, fmt.Errorf("%s: %w", op, err)
	}
	if option.PollID != poll.ID {
		log.Warn("option submitted for another poll", slog.Int64("optionPollID", option.PollID))
		return entity.Option{}, fmt.Errorf("%s: %w", op, ErrInvalidOption)
	}

	if !poll.IsOpen(now) {
		return entity.Option{}, fmt.Errorf("%s: %w", op, ErrPollClosed)
	}

	// Early exit only; the ledger's uniqueness constraint decides.
	_, err = v.voteStorage.UserVote(ctx, pollID, userID)
	switch {
	case err == nil:
		return entity.Option{}, fmt.Errorf("%s: %w", op, ErrAlreadyVoted)
	case !errors.Is(err, repo.ErrVoteNotFound):
		return entity.Option{}, fmt.Errorf("%s: %w", op, err)
	}

	updated, err := v.voteStorage.RecordVote(ctx, entity.Vote{
		PollID:   pollID,
		OptionID: optionID,
		UserID:   userID,
		VotedAt:  now,
	})
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrAlreadyVoted):
			log.Info("concurrent vote rejected by ledger")
			return entity.Option{}, fmt.Errorf("%s: %w", op, ErrAlreadyVoted)
		case errors.Is(err, repo.ErrOptionNotFound):
			return entity.Option{}, fmt.Errorf("%s: %w", op, ErrInvalidOption)
		case errors.Is(err, repo.ErrPollNotFound):
			return entity.Option{}, fmt.Errorf("%s: %w", op, ErrNotFound)
		case errors.Is(err, repo.ErrUserNotFound):
			return entity.Option{}, fmt.Errorf("%s: %w: voter is gone", op, ErrNotFound)
		}
		log.Error("failed to record vote", sl.Err(err))
		return entity.Option{}, fmt.Errorf("%s: %w", op, err)
	}

	// The vote is committed at this point; a failed audit entry must not turn
	// it into an error for the caller.
	if _, err := v.logStorage.SaveLog(ctx, &entity.Log{
		UserID:   userID,
		Action:   op,
		PollID:   &pollID,
		OptionID: &optionID,
	}); err != nil {
		log.Warn("failed to save audit log", sl.Err(err))
	}

	log.Info("vote recorded", slog.Int64("votes", updated.Votes))

	return updated, nil
}

// GetResults aggregates the current counters of the poll.
func (v *OnlineVoting) GetResults(ctx context.Context, pollID int64) (entity.Results, error) {
	const op = "OnlineVoting.GetResults"

	poll, err := v.getPoll(ctx, pollID)
	if err != nil {
		return entity.Results{}, fmt.Errorf("%s: %w", op, err)
	}

	options, err := v.optionStorage.GetOptionsByPollID(ctx, pollID)
	if err != nil {
		return entity.Results{}, fmt.Errorf("%s: %w", op, err)
	}

	return ComputeResults(poll, options), nil
}

func (v *OnlineVoting) CreatePoll(ctx context.Context, in PollInput, authorID int64) (int64, error) {
	const op = "OnlineVoting.CreatePoll"

	if err := v.requireAdmin(ctx, authorID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if in.PublishedAt.IsZero() {
		in.PublishedAt = time.Now()
	}

	options, err := validatePollInput(in)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	pollID, err := v.pollStorage.SavePoll(ctx, entity.Poll{
		Question:         strings.TrimSpace(in.Question),
		ShortDescription: in.ShortDescription,
		Description:      in.Description,
		ImagePath:        in.ImagePath,
		AuthorID:         &authorID,
		PublishedAt:      in.PublishedAt,
		ClosesAt:         in.ClosesAt,
	}, options)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	v.audit(ctx, op, authorID, &pollID, nil)

	return pollID, nil
}

func (v *OnlineVoting) UpdatePoll(ctx context.Context, pollID int64, in PollInput, userID int64) error {
	const op = "OnlineVoting.UpdatePoll"

	if err := v.requireAdmin(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if strings.TrimSpace(in.Question) == "" {
		return fmt.Errorf("%s: %w: question is empty", op, ErrValidation)
	}

	poll, err := v.getPoll(ctx, pollID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	poll.Question = strings.TrimSpace(in.Question)
	poll.ShortDescription = in.ShortDescription
	poll.Description = in.Description
	poll.ImagePath = in.ImagePath
	poll.ClosesAt = in.ClosesAt
	if !in.PublishedAt.IsZero() {
		poll.PublishedAt = in.PublishedAt
	}

	if err := v.pollStorage.UpdatePoll(ctx, poll); err != nil {
		if errors.Is(err, repo.ErrPollNotFound) {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	v.audit(ctx, op, userID, &pollID, nil)

	return nil
}

func (v *OnlineVoting) DeletePoll(ctx context.Context, pollID int64, userID int64) error {
	const op = "OnlineVoting.DeletePoll"

	if err := v.requireAdmin(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := v.pollStorage.DeletePoll(ctx, pollID); err != nil {
		if errors.Is(err, repo.ErrPollNotFound) {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	v.audit(ctx, op, userID, &pollID, nil)

	return nil
}

func (v *OnlineVoting) CreateOption(ctx context.Context, pollID int64, text string, userID int64) (int64, error) {
	const op = "OnlineVoting.CreateOption"

	if err := v.requireAdmin(ctx, userID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("%s: %w: option text is empty", op, ErrValidation)
	}

	optionID, err := v.optionStorage.SaveOption(ctx, pollID, text)
	if err != nil {
		if errors.Is(err, repo.ErrPollNotFound) {
			return 0, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	v.audit(ctx, op, userID, &pollID, &optionID)

	return optionID, nil
}

func (v *OnlineVoting) GetLogs(ctx context.Context, page repo.Page, userID int64) ([]entity.Log, error) {
	const op = "OnlineVoting.GetLogs"

	if err := v.requireAdmin(ctx, userID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logs, err := v.logStorage.GetLogs(ctx, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return logs, nil
}

func (v *OnlineVoting) getPoll(ctx context.Context, pollID int64) (entity.Poll, error) {
	poll, err := v.pollStorage.GetPollByID(ctx, pollID)
	if err != nil {
		if errors.Is(err, repo.ErrPollNotFound) {
			return entity.Poll{}, ErrNotFound
		}
		return entity.Poll{}, err
	}
	return poll, nil
}

func (v *OnlineVoting) requireAdmin(ctx context.Context, userID int64) error {
	isAdmin, err := v.admins.IsAdmin(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to check admin rights: %w", err)
	}
	if !isAdmin {
		return ErrForbidden
	}
	return nil
}

func (v *OnlineVoting) audit(ctx context.Context, action string, userID int64, pollID, optionID *int64) {
	_, err := v.logStorage.SaveLog(ctx, &entity.Log{
		UserID:   userID,
		Action:   action,
		PollID:   pollID,
		OptionID: optionID,
	})
	if err != nil {
		v.log.Warn("failed to save audit log", slog.String("action", action), sl.Err(err))
	}
}

func validatePollInput(in PollInput) ([]string, error) {
	if strings.TrimSpace(in.Question) == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrValidation)
	}

	options := make([]string, 0, len(in.Options))
	for _, o := range in.Options {
		o = strings.TrimSpace(o)
		if o == "" {
			return nil, fmt.Errorf("%w: option text is empty", ErrValidation)
		}
		options = append(options, o)
	}
	if len(options) < minOptions {
		return nil, fmt.Errorf("%w: at least %d options required", ErrValidation, minOptions)
	}

	if in.ClosesAt != nil && in.ClosesAt.Before(in.PublishedAt) {
		return nil, fmt.Errorf("%w: poll closes before it is published", ErrValidation)
	}

	return options, nil
}
