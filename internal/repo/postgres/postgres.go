package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ayosleepy/polls/internal/entity"
	"github.com/ayosleepy/polls/internal/repo"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"

	constraintVoteUser = "votes_user_fk"
)

type Storage struct {
	db *sql.DB
}

func New(postgresURL string) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func pqConstraint(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}

const pollColumns = `id, question, short_description, description, image_path, author_id, published_at, closes_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPoll(row scanner) (entity.Poll, error) {
	var (
		poll      entity.Poll
		imagePath sql.NullString
		authorID  sql.NullInt64
		closesAt  sql.NullTime
	)
	err := row.Scan(&poll.ID, &poll.Question, &poll.ShortDescription, &poll.Description, &imagePath, &authorID,
		&poll.PublishedAt, &closesAt, &poll.CreatedAt, &poll.UpdatedAt)
	if err != nil {
		return entity.Poll{}, err
	}
	if imagePath.Valid {
		poll.ImagePath = &imagePath.String
	}
	if authorID.Valid {
		poll.AuthorID = &authorID.Int64
	}
	if closesAt.Valid {
		poll.ClosesAt = &closesAt.Time
	}
	return poll, nil
}

// SavePoll inserts the poll and its options in one transaction.
func (s *Storage) SavePoll(ctx context.Context, poll entity.Poll, options []string) (int64, error) {
	const op = "storage.postgres.SavePoll"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO polls (question, short_description, description, image_path, author_id, published_at, closes_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

	var id int64
	err = tx.QueryRowContext(ctx, query, poll.Question, poll.ShortDescription, poll.Description, poll.ImagePath,
		poll.AuthorID, poll.PublishedAt, poll.ClosesAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	for _, text := range options {
		if _, err := tx.ExecContext(ctx, `INSERT INTO options (poll_id, text) VALUES ($1, $2)`, id, text); err != nil {
			return 0, fmt.Errorf("%s: option: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) GetPollByID(ctx context.Context, id int64) (entity.Poll, error) {
	const op = "storage.postgres.GetPollByID"

	query := `SELECT ` + pollColumns + ` FROM polls WHERE id = $1`

	poll, err := scanPoll(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Poll{}, fmt.Errorf("%s: %w", op, repo.ErrPollNotFound)
		}
		return entity.Poll{}, fmt.Errorf("%s: %w", op, err)
	}

	return poll, nil
}

// ListActivePolls returns polls that are open at now, newest publication first.
func (s *Storage) ListActivePolls(ctx context.Context, now time.Time, page repo.Page) ([]entity.Poll, error) {
	const op = "storage.postgres.ListActivePolls"

	query := `SELECT ` + pollColumns + ` FROM polls
		WHERE closes_at IS NULL OR closes_at >= $1
		ORDER BY published_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryContext(ctx, query, now, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	polls := make([]entity.Poll, 0, page.Limit)
	for rows.Next() {
		poll, err := scanPoll(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		polls = append(polls, poll)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", op, err)
	}

	return polls, nil
}

func (s *Storage) UpdatePoll(ctx context.Context, poll entity.Poll) error {
	const op = "storage.postgres.UpdatePoll"

	const query = `UPDATE polls SET question = $1, short_description = $2, description = $3, image_path = $4,
		published_at = $5, closes_at = $6, updated_at = NOW() WHERE id = $7`

	res, err := s.db.ExecContext(ctx, query, poll.Question, poll.ShortDescription, poll.Description, poll.ImagePath,
		poll.PublishedAt, poll.ClosesAt, poll.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, repo.ErrPollNotFound)
	}
	return nil
}

// DeletePoll removes the poll; options and votes go with it by cascade.
func (s *Storage) DeletePoll(ctx context.Context, id int64) error {
	const op = "storage.postgres.DeletePoll"

	res, err := s.db.ExecContext(ctx, `DELETE FROM polls WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, repo.ErrPollNotFound)
	}

	return nil
}

func (s *Storage) SaveOption(ctx context.Context, pollID int64, text string) (int64, error) {
	const op = "storage.postgres.SaveOption"

	query := `INSERT INTO options (poll_id, text) VALUES ($1, $2) RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, query, pollID, text).Scan(&id)
	if err != nil {
		if pqCode(err) == codeForeignKeyViolation {
			return 0, fmt.Errorf("%s: %w", op, repo.ErrPollNotFound)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) GetOptionByID(ctx context.Context, id int64) (entity.Option, error) {
	const op = "storage.postgres.GetOptionByID"

	query := `SELECT id, poll_id, text, votes, created_at FROM options WHERE id = $1`

	var option entity.Option
	err := s.db.QueryRowContext(ctx, query, id).Scan(&option.ID, &option.PollID, &option.Text, &option.Votes, &option.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Option{}, fmt.Errorf("%s: %w", op, repo.ErrOptionNotFound)
		}
		return entity.Option{}, fmt.Errorf("%s: %w", op, err)
	}

	return option, nil
}

// GetOptionsByPollID returns the options of a poll in creation order. The
// counters come from a single statement, so they form one snapshot.
func (s *Storage) GetOptionsByPollID(ctx context.Context, pollID int64) ([]entity.Option, error) {
	const op = "storage.postgres.GetOptionsByPollID"

	query := `SELECT id, poll_id, text, votes, created_at FROM options WHERE poll_id = $1 ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, pollID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var options []entity.Option
	for rows.Next() {
		var option entity.Option
		if err := rows.Scan(&option.ID, &option.PollID, &option.Text, &option.Votes, &option.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		options = append(options, option)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", op, err)
	}

	return options, nil
}

func (s *Storage) UserVote(ctx context.Context, pollID, userID int64) (entity.Vote, error) {
	const op = "storage.postgres.UserVote"

	query := `SELECT id, poll_id, option_id, user_id, voted_at FROM votes WHERE poll_id = $1 AND user_id = $2`

	var vote entity.Vote
	err := s.db.QueryRowContext(ctx, query, pollID, userID).Scan(&vote.ID, &vote.PollID, &vote.OptionID, &vote.UserID, &vote.VotedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Vote{}, fmt.Errorf("%s: %w", op, repo.ErrVoteNotFound)
		}
		return entity.Vote{}, fmt.Errorf("%s: %w", op, err)
	}

	return vote, nil
}

// RecordVote inserts the vote and bumps the option counter in one
// transaction. The UNIQUE (poll_id, user_id) constraint settles concurrent
// submissions of the same user.
func (s *Storage) RecordVote(ctx context.Context, vote entity.Vote) (entity.Option, error) {
	const op = "storage.postgres.RecordVote"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return entity.Option{}, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO votes (poll_id, option_id, user_id, voted_at) VALUES ($1, $2, $3, $4)`,
		vote.PollID, vote.OptionID, vote.UserID, vote.VotedAt)
	if err != nil {
		switch pqCode(err) {
		case codeUniqueViolation:
			return entity.Option{}, fmt.Errorf("%s: %w", op, repo.ErrAlreadyVoted)
		case codeForeignKeyViolation:
			if pqConstraint(err) == constraintVoteUser {
				return entity.Option{}, fmt.Errorf("%s: %w", op, repo.ErrUserNotFound)
			}
			return entity.Option{}, fmt.Errorf("%s: %w", op, repo.ErrOptionNotFound)
		}
		return entity.Option{}, fmt.Errorf("%s: %w", op, err)
	}

	var option entity.Option
	err = tx.QueryRowContext(ctx,
		`UPDATE options SET votes = votes + 1 WHERE id = $1 AND poll_id = $2
		RETURNING id, poll_id, text, votes, created_at`,
		vote.OptionID, vote.PollID,
	).Scan(&option.ID, &option.PollID, &option.Text, &option.Votes, &option.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Option{}, fmt.Errorf("%s: %w", op, repo.ErrOptionNotFound)
		}
		return entity.Option{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return entity.Option{}, fmt.Errorf("%s: %w", op, err)
	}

	return option, nil
}

func (s *Storage) SaveLog(ctx context.Context, log *entity.Log) (int64, error) {
	const op = "storage.postgres.SaveLog"

	query := `INSERT INTO logs (user_id, action, poll_id, option_id) VALUES ($1, $2, $3, $4) RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query, log.UserID, log.Action, log.PollID, log.OptionID).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return log.ID, nil
}

func (s *Storage) GetLogs(ctx context.Context, page repo.Page) ([]entity.Log, error) {
	const op = "storage.postgres.GetLogs"

	query := `SELECT id, user_id, action, poll_id, option_id, created_at FROM logs
		ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var logs []entity.Log
	for rows.Next() {
		var (
			log      entity.Log
			pollID   sql.NullInt64
			optionID sql.NullInt64
		)
		if err := rows.Scan(&log.ID, &log.UserID, &log.Action, &pollID, &optionID, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		if pollID.Valid {
			log.PollID = &pollID.Int64
		}
		if optionID.Valid {
			log.OptionID = &optionID.Int64
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", op, err)
	}

	return logs, nil
}
