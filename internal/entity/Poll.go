package entity

import "time"

type Poll struct {
	ID               int64      `json:"id"`
	Question         string     `json:"question"`
	ShortDescription string     `json:"short_description"`
	Description      string     `json:"description"`
	ImagePath        *string    `json:"image,omitempty"`
	AuthorID         *int64     `json:"author_id,omitempty"`
	PublishedAt      time.Time  `json:"published_at"`
	ClosesAt         *time.Time `json:"closes_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsOpen reports whether the poll accepts votes at now. A poll without a close
// timestamp never closes; otherwise it stays open up to and including ClosesAt.
func (p Poll) IsOpen(now time.Time) bool {
	if p.ClosesAt == nil {
		return true
	}
	return !p.ClosesAt.Before(now)
}

// WasPublishedRecently reports whether the poll was published within window
// before now. Polls scheduled in the future are not recent.
func (p Poll) WasPublishedRecently(now time.Time, window time.Duration) bool {
	return !p.PublishedAt.Before(now.Add(-window)) && !p.PublishedAt.After(now)
}

// PollDetail is a poll together with its options as seen by one requester.
type PollDetail struct {
	Poll          Poll     `json:"poll"`
	Options       []Option `json:"options"`
	IsOpen        bool     `json:"is_open"`
	HasVoted      bool     `json:"has_voted"`
	VotedOptionID *int64   `json:"voted_option_id,omitempty"`
}
