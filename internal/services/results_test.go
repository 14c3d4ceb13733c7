package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ayosleepy/polls/internal/entity"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		votes, total int64
		want         float64
	}{
		{votes: 0, total: 0, want: 0},
		{votes: 3, total: 4, want: 75},
		{votes: 1, total: 3, want: 33.3},
		{votes: 2, total: 3, want: 66.7},
		{votes: 1, total: 8, want: 12.5},
		{votes: 1, total: 16, want: 6.3},
		{votes: 5, total: 5, want: 100},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, Percentage(tt.votes, tt.total), 1e-9, "%d/%d", tt.votes, tt.total)
	}
}

func TestComputeResults(t *testing.T) {
	poll := entity.Poll{ID: 9, Question: "Which?"}

	t.Run("mixed counters", func(t *testing.T) {
		res := ComputeResults(poll, []entity.Option{
			{ID: 1, Votes: 3}, {ID: 2, Votes: 1}, {ID: 3, Votes: 0},
		})

		assert.Equal(t, int64(9), res.PollID)
		assert.Equal(t, int64(4), res.TotalVotes)
		assert.Equal(t, []float64{75, 25, 0}, percentages(res))
		assert.Equal(t, int64(1), res.Options[0].Option.ID)
	})

	t.Run("no votes", func(t *testing.T) {
		res := ComputeResults(poll, []entity.Option{{ID: 1}, {ID: 2}})

		assert.Zero(t, res.TotalVotes)
		assert.Equal(t, []float64{0, 0}, percentages(res))
	})

	t.Run("no options", func(t *testing.T) {
		res := ComputeResults(poll, nil)

		assert.Zero(t, res.TotalVotes)
		assert.NotNil(t, res.Options)
		assert.Empty(t, res.Options)
	})
}

func percentages(res entity.Results) []float64 {
	out := make([]float64, 0, len(res.Options))
	for _, o := range res.Options {
		out = append(out, o.Percentage)
	}
	return out
}
