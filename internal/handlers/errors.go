package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	sl "github.com/14kear/sso-prettyslog/slogpretty/errors"
	"github.com/gin-gonic/gin"

	"github.com/ayosleepy/polls/internal/middleware"
	"github.com/ayosleepy/polls/internal/services"
	"github.com/ayosleepy/polls/internal/services/auth"
	"github.com/ayosleepy/polls/internal/services/profile"
)

type errorResponse struct {
	Error string `json:"error"`
}

var statusByError = []struct {
	err    error
	status int
	msg    string
}{
	{services.ErrNotFound, http.StatusNotFound, "not found"},
	{profile.ErrNotFound, http.StatusNotFound, "profile not found"},
	{services.ErrInvalidOption, http.StatusBadRequest, "option does not belong to this poll"},
	{services.ErrPollClosed, http.StatusConflict, "poll is closed"},
	{services.ErrAlreadyVoted, http.StatusConflict, "you have already voted in this poll"},
	{services.ErrForbidden, http.StatusForbidden, "forbidden"},
	{auth.ErrUserExists, http.StatusConflict, "username or email already taken"},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "invalid token"},
	{auth.ErrUserNotFound, http.StatusUnauthorized, "unauthorized"},
}

// writeError maps service errors onto HTTP statuses. Validation errors carry
// their own message; anything unknown is logged and reported as 500.
func writeError(c *gin.Context, log *slog.Logger, err error) {
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			c.JSON(e.status, errorResponse{Error: e.msg})
			return
		}
	}

	if errors.Is(err, services.ErrValidation) || errors.Is(err, auth.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: validationMessage(err)})
		return
	}

	requestID, _ := c.Get(middleware.ContextRequestID)
	log.Error("request failed", slog.Any("request_id", requestID), slog.String("path", c.FullPath()), sl.Err(err))
	c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

// validationMessage strips the "op: " prefixes added while the error
// travelled up, keeping the part that starts with the sentinel.
func validationMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{services.ErrValidation, auth.ErrInvalidInput} {
		if i := strings.Index(msg, sentinel.Error()); i >= 0 {
			return msg[i:]
		}
	}
	return "invalid input"
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid " + name})
		return 0, false
	}
	return id, true
}

func currentUser(c *gin.Context) (int64, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return 0, false
	}
	return uid, true
}
