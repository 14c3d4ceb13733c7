package services

import (
	"math"

	"github.com/ayosleepy/polls/internal/entity"
)

// ComputeResults derives totals and percentages from the option counters as
// they are passed in. Options keep their input order.
func ComputeResults(poll entity.Poll, options []entity.Option) entity.Results {
	var total int64
	for _, o := range options {
		total += o.Votes
	}

	res := entity.Results{
		PollID:     poll.ID,
		Question:   poll.Question,
		TotalVotes: total,
		Options:    make([]entity.OptionResult, 0, len(options)),
	}
	for _, o := range options {
		res.Options = append(res.Options, entity.OptionResult{
			Option:     o,
			Percentage: Percentage(o.Votes, total),
		})
	}

	return res
}

// Percentage returns votes as a share of total in percent, rounded half away
// from zero to one decimal place. A zero total yields 0.
func Percentage(votes, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(votes)*1000/float64(total)) / 10
}
