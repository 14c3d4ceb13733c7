package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ayosleepy/polls/internal/repo"
	"github.com/ayosleepy/polls/internal/services/profile"
)

type ProfileHandler struct {
	log      *slog.Logger
	profiles *profile.Profiles
	pageSize int
	now      func() time.Time
}

type ProfileRequest struct {
	Username  string     `json:"username" binding:"required"`
	Email     string     `json:"email" binding:"required"`
	Avatar    string     `json:"avatar"`
	Bio       string     `json:"bio"`
	BirthDate *time.Time `json:"birth_date"`
}

type ProfileListQuery struct {
	Search string `form:"search"`
	PageQuery
}

func NewProfileHandler(log *slog.Logger, profiles *profile.Profiles, pageSize int) *ProfileHandler {
	return &ProfileHandler{log: log, profiles: profiles, pageSize: pageSize, now: time.Now}
}

func (h *ProfileHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	p, err := h.profiles.Get(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

func (h *ProfileHandler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "username and email are required"})
		return
	}

	p, err := h.profiles.Update(c.Request.Context(), userID, profile.Input{
		Username:  req.Username,
		Email:     req.Email,
		Avatar:    req.Avatar,
		Bio:       req.Bio,
		BirthDate: req.BirthDate,
	}, h.now())
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

// Delete closes the caller's account. Votes already cast keep counting.
func (h *ProfileHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.profiles.Delete(c.Request.Context(), userID); err != nil {
		writeError(c, h.log, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ProfileHandler) List(c *gin.Context) {
	adminID, ok := currentUser(c)
	if !ok {
		return
	}

	var q ProfileListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid query"})
		return
	}
	if q.Limit == 0 {
		q.Limit = h.pageSize
	}

	profiles, err := h.profiles.List(c.Request.Context(), adminID, q.Search, repo.Page{Limit: q.Limit, Offset: q.Offset})
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}
