package repo

import "errors"

var (
	ErrPollNotFound    = errors.New("poll not found")
	ErrOptionNotFound  = errors.New("option not found")
	ErrAlreadyVoted    = errors.New("user already voted in this poll")
	ErrVoteNotFound    = errors.New("vote not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrProfileNotFound = errors.New("profile not found")
	ErrTokenNotFound   = errors.New("token not found")
)
