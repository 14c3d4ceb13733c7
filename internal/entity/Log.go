package entity

import "time"

type Log struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Action    string    `json:"action"`
	PollID    *int64    `json:"poll_id,omitempty"`
	OptionID  *int64    `json:"option_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
