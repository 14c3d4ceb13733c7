package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ayosleepy/polls/internal/entity"
	"github.com/ayosleepy/polls/internal/middleware"
	"github.com/ayosleepy/polls/internal/repo"
	"github.com/ayosleepy/polls/internal/services"
)

type VotingHandler struct {
	log           *slog.Logger
	votingService *services.OnlineVoting
	pageSize      int
	recentWindow  time.Duration
	now           func() time.Time
}

type PollRequest struct {
	Question         string     `json:"question" binding:"required,max=200"`
	ShortDescription string     `json:"short_description" binding:"max=300"`
	Description      string     `json:"description"`
	Image            *string    `json:"image"`
	PublishedAt      *time.Time `json:"published_at"`
	ClosesAt         *time.Time `json:"closes_at"`
	Options          []string   `json:"options"`
}

type CreateOptionRequest struct {
	Text string `json:"text" binding:"required,max=200"`
}

type VoteRequest struct {
	OptionID int64 `json:"option_id" binding:"required"`
}

type PageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// pollSummary is a catalog entry as rendered to clients.
type pollSummary struct {
	entity.Poll
	IsOpen               bool `json:"is_open"`
	WasPublishedRecently bool `json:"was_published_recently"`
}

func NewVotingHandler(log *slog.Logger, votingService *services.OnlineVoting, pageSize int, recentWindow time.Duration) *VotingHandler {
	return &VotingHandler{
		log:           log,
		votingService: votingService,
		pageSize:      pageSize,
		recentWindow:  recentWindow,
		now:           time.Now,
	}
}

func (v *VotingHandler) page(c *gin.Context) (repo.Page, bool) {
	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid pagination"})
		return repo.Page{}, false
	}
	if q.Limit == 0 {
		q.Limit = v.pageSize
	}
	return repo.Page{Limit: q.Limit, Offset: q.Offset}, true
}

func (v *VotingHandler) ListPolls(c *gin.Context) {
	page, ok := v.page(c)
	if !ok {
		return
	}

	now := v.now()
	polls, err := v.votingService.ListActivePolls(c.Request.Context(), now, page)
	if err != nil {
		writeError(c, v.log, err)
		return
	}

	out := make([]pollSummary, 0, len(polls))
	for _, p := range polls {
		out = append(out, pollSummary{
			Poll:                 p,
			IsOpen:               p.IsOpen(now),
			WasPublishedRecently: p.WasPublishedRecently(now, v.recentWindow),
		})
	}

	c.JSON(http.StatusOK, gin.H{"polls": out})
}

// GetPoll serves the detail view. With a valid token it also tells whether
// the caller has voted already.
func (v *VotingHandler) GetPoll(c *gin.Context) {
	pollID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var userID *int64
	if uid, ok := middleware.UserID(c); ok {
		userID = &uid
	}

	detail, err := v.votingService.GetPollDetail(c.Request.Context(), pollID, userID, v.now())
	if err != nil {
		writeError(c, v.log, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

func (v *VotingHandler) Vote(c *gin.Context) {
	pollID, ok := paramID(c, "id")
	if !ok {
		return
	}

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "option_id is required"})
		return
	}

	option, err := v.votingService.CastVote(c.Request.Context(), pollID, req.OptionID, userID, v.now())
	if err != nil {
		writeError(c, v.log, err)
		return
	}

	c.Header("Location", fmt.Sprintf("/api/polls/%d/results", pollID))
	c.JSON(http.StatusCreated, gin.H{"option": option})
}

func (v *VotingHandler) GetResults(c *gin.Context) {
	pollID, ok := paramID(c, "id")
	if !ok {
		return
	}

	results, err := v.votingService.GetResults(c.Request.Context(), pollID)
	if err != nil {
		writeError(c, v.log, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

func (v *VotingHandler) CreatePoll(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req PollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid input"})
		return
	}

	pollID, err := v.votingService.CreatePoll(c.Request.Context(), req.input(), userID)
	if err != nil {
		writeError(c, v.log, err)
		return
	}

	c.Header("Location", fmt.Sprintf("/api/polls/%d", pollID))
	c.JSON(http.StatusCreated, gin.H{"poll_id": pollID})
}

func (v *VotingHandler) UpdatePoll(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	pollID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req PollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid input"})
		return
	}

	if err := v.votingService.UpdatePoll(c.Request.Context(), pollID, req.input(), userID); err != nil {
		writeError(c, v.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "poll updated"})
}

func (v *VotingHandler) DeletePoll(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	pollID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := v.votingService.DeletePoll(c.Request.Context(), pollID, userID); err != nil {
		writeError(c, v.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "poll deleted"})
}

func (v *VotingHandler) CreateOption(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	pollID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req CreateOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid input"})
		return
	}

	optionID, err := v.votingService.CreateOption(c.Request.Context(), pollID, req.Text, userID)
	if err != nil {
		writeError(c, v.log, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"option_id": optionID})
}

func (v *VotingHandler) GetLogs(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	page, ok := v.page(c)
	if !ok {
		return
	}

	logs, err := v.votingService.GetLogs(c.Request.Context(), page, userID)
	if err != nil {
		writeError(c, v.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (r PollRequest) input() services.PollInput {
	in := services.PollInput{
		Question:         r.Question,
		ShortDescription: r.ShortDescription,
		Description:      r.Description,
		ImagePath:        r.Image,
		ClosesAt:         r.ClosesAt,
		Options:          r.Options,
	}
	if r.PublishedAt != nil {
		in.PublishedAt = *r.PublishedAt
	}
	return in
}
