package entity

type OptionResult struct {
	Option     Option  `json:"option"`
	Percentage float64 `json:"percentage"`
}

type Results struct {
	PollID     int64          `json:"poll_id"`
	Question   string         `json:"question"`
	TotalVotes int64          `json:"total_votes"`
	Options    []OptionResult `json:"options"`
}
