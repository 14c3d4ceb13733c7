package entity

import "time"

// Vote records that a user voted for an option. At most one exists per
// (PollID, UserID).
type Vote struct {
	ID       int64     `json:"id"`
	PollID   int64     `json:"poll_id"`
	OptionID int64     `json:"option_id"`
	UserID   int64     `json:"user_id"`
	VotedAt  time.Time `json:"voted_at"`
}
