package entity

import "time"

const MaxBioLength = 500

// Profile extends a User one-to-one.
type Profile struct {
	UserID    int64      `json:"user_id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Avatar    string     `json:"avatar"`
	Bio       string     `json:"bio"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}
