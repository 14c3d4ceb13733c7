package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayosleepy/polls/internal/app"
	"github.com/ayosleepy/polls/internal/config"
	"github.com/ayosleepy/polls/internal/entity"
	"github.com/ayosleepy/polls/internal/middleware"
	"github.com/ayosleepy/polls/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type suite struct {
	t   *testing.T
	app *app.App
}

func newSuite(t *testing.T) *suite {
	t.Helper()

	cfg := &config.Config{
		Env:     utils.EnvLocal,
		Storage: config.StorageMemory,
		Auth: config.AuthConfig{
			Secret:          "handler-test-secret",
			AccessTokenTTL:  time.Minute,
			RefreshTokenTTL: time.Hour,
		},
		Polls: config.PollsConfig{PageSize: 20, RecentWindow: 24 * time.Hour},
	}

	return &suite{t: t, app: app.NewApp(utils.New(cfg.Env), cfg)}
}

func (s *suite) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.app.HTTPServer.Engine().ServeHTTP(w, req)
	return w
}

type session struct {
	UserID       int64  `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (s *suite) signUp(admin bool) session {
	s.t.Helper()

	email := gofakeit.DigitN(6) + gofakeit.Email()
	password := gofakeit.Password(true, true, true, false, false, 12)

	w := s.do(http.MethodPost, "/api/auth/register", gin.H{
		"username": gofakeit.Username() + gofakeit.DigitN(4),
		"email":    email,
		"password": password,
	}, "")
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/auth/login", gin.H{"email": email, "password": password}, "")
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())

	var sess session
	decode(s.t, w, &sess)

	if admin {
		require.NoError(s.t, s.app.Auth.SetUserAdminStatus(context.Background(), sess.UserID, true))
	}
	return sess
}

func (s *suite) createPoll(token string, body gin.H) (int64, []entity.Option) {
	s.t.Helper()

	w := s.do(http.MethodPost, "/api/admin/polls", body, token)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		PollID int64 `json:"poll_id"`
	}
	decode(s.t, w, &created)

	w = s.do(http.MethodGet, fmt.Sprintf("/api/polls/%d", created.PollID), nil, "")
	require.Equal(s.t, http.StatusOK, w.Code)

	var detail entity.PollDetail
	decode(s.t, w, &detail)

	return created.PollID, detail.Options
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestPing(t *testing.T) {
	s := newSuite(t)

	w := s.do(http.MethodGet, "/ping", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
}

func TestVotingFlow(t *testing.T) {
	s := newSuite(t)
	admin := s.signUp(true)
	voter := s.signUp(false)

	pollID, options := s.createPoll(admin.AccessToken, gin.H{
		"question": "What's new?",
		"options":  []string{"Not much", "The sky"},
	})
	require.Len(t, options, 2)

	w := s.do(http.MethodGet, "/api/polls", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Polls []struct {
			ID                   int64 `json:"id"`
			IsOpen               bool  `json:"is_open"`
			WasPublishedRecently bool  `json:"was_published_recently"`
		} `json:"polls"`
	}
	decode(t, w, &list)
	require.Len(t, list.Polls, 1)
	assert.Equal(t, pollID, list.Polls[0].ID)
	assert.True(t, list.Polls[0].IsOpen)
	assert.True(t, list.Polls[0].WasPublishedRecently)

	pollPath := fmt.Sprintf("/api/polls/%d", pollID)

	var detail entity.PollDetail
	decode(t, s.do(http.MethodGet, pollPath, nil, voter.AccessToken), &detail)
	assert.False(t, detail.HasVoted)

	w = s.do(http.MethodPost, pollPath+"/vote", gin.H{"option_id": options[0].ID}, voter.AccessToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, pollPath+"/results", w.Header().Get("Location"))

	decode(t, s.do(http.MethodGet, pollPath, nil, voter.AccessToken), &detail)
	assert.True(t, detail.HasVoted)
	require.NotNil(t, detail.VotedOptionID)
	assert.Equal(t, options[0].ID, *detail.VotedOptionID)

	w = s.do(http.MethodPost, pollPath+"/vote", gin.H{"option_id": options[1].ID}, voter.AccessToken)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, pollPath+"/results", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var results entity.Results
	decode(t, w, &results)
	assert.Equal(t, int64(1), results.TotalVotes)
	require.Len(t, results.Options, 2)
	assert.Equal(t, 100.0, results.Options[0].Percentage)
	assert.Equal(t, 0.0, results.Options[1].Percentage)
}

func TestVote_Errors(t *testing.T) {
	s := newSuite(t)
	admin := s.signUp(true)
	voter := s.signUp(false)

	pollA, _ := s.createPoll(admin.AccessToken, gin.H{"question": "A?", "options": []string{"a1", "a2"}})
	_, optsB := s.createPoll(admin.AccessToken, gin.H{"question": "B?", "options": []string{"b1", "b2"}})

	tests := []struct {
		name   string
		path   string
		body   any
		token  string
		status int
	}{
		{name: "anonymous", path: fmt.Sprintf("/api/polls/%d/vote", pollA), body: gin.H{"option_id": optsB[0].ID}, status: http.StatusUnauthorized},
		{name: "option of another poll", path: fmt.Sprintf("/api/polls/%d/vote", pollA), body: gin.H{"option_id": optsB[0].ID}, token: voter.AccessToken, status: http.StatusBadRequest},
		{name: "unknown poll", path: "/api/polls/999/vote", body: gin.H{"option_id": optsB[0].ID}, token: voter.AccessToken, status: http.StatusNotFound},
		{name: "malformed poll id", path: "/api/polls/abc/vote", body: gin.H{"option_id": optsB[0].ID}, token: voter.AccessToken, status: http.StatusBadRequest},
		{name: "missing option", path: fmt.Sprintf("/api/polls/%d/vote", pollA), body: gin.H{}, token: voter.AccessToken, status: http.StatusBadRequest},
		{name: "garbage token", path: fmt.Sprintf("/api/polls/%d/vote", pollA), body: gin.H{"option_id": optsB[0].ID}, token: "garbage", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, tt.path, tt.body, tt.token)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestVote_ClosedPoll(t *testing.T) {
	s := newSuite(t)
	admin := s.signUp(true)
	voter := s.signUp(false)

	pollID, options := s.createPoll(admin.AccessToken, gin.H{
		"question":     "Too late?",
		"published_at": time.Now().Add(-2 * time.Hour),
		"closes_at":    time.Now().Add(-time.Minute),
		"options":      []string{"yes", "no"},
	})

	w := s.do(http.MethodPost, fmt.Sprintf("/api/polls/%d/vote", pollID), gin.H{"option_id": options[0].ID}, voter.AccessToken)
	assert.Equal(t, http.StatusConflict, w.Code)

	var results entity.Results
	decode(t, s.do(http.MethodGet, fmt.Sprintf("/api/polls/%d/results", pollID), nil, ""), &results)
	assert.Zero(t, results.TotalVotes)

	var list struct {
		Polls []entity.Poll `json:"polls"`
	}
	decode(t, s.do(http.MethodGet, "/api/polls", nil, ""), &list)
	assert.Empty(t, list.Polls)
}

func TestAdminRoutes(t *testing.T) {
	s := newSuite(t)
	admin := s.signUp(true)
	user := s.signUp(false)

	w := s.do(http.MethodPost, "/api/admin/polls", gin.H{"question": "q", "options": []string{"a", "b"}}, user.AccessToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/admin/polls", gin.H{"question": "q", "options": []string{"a"}}, admin.AccessToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	pollID, _ := s.createPoll(admin.AccessToken, gin.H{"question": "q", "options": []string{"a", "b"}})

	w = s.do(http.MethodPost, fmt.Sprintf("/api/admin/polls/%d/options", pollID), gin.H{"text": "c"}, admin.AccessToken)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodPut, fmt.Sprintf("/api/admin/polls/%d", pollID), gin.H{"question": "renamed"}, admin.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)

	var detail entity.PollDetail
	decode(t, s.do(http.MethodGet, fmt.Sprintf("/api/polls/%d", pollID), nil, ""), &detail)
	assert.Equal(t, "renamed", detail.Poll.Question)
	assert.Len(t, detail.Options, 3)

	w = s.do(http.MethodGet, "/api/admin/logs", nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	var logs struct {
		Logs []entity.Log `json:"logs"`
	}
	decode(t, w, &logs)
	assert.NotEmpty(t, logs.Logs)

	w = s.do(http.MethodGet, "/api/admin/logs", nil, user.AccessToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodDelete, fmt.Sprintf("/api/admin/polls/%d", pollID), nil, admin.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, fmt.Sprintf("/api/polls/%d", pollID), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPut, fmt.Sprintf("/api/admin/users/%d/admin", user.UserID), gin.H{"admin": true}, admin.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/admin/profiles", nil, user.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRoutes(t *testing.T) {
	s := newSuite(t)

	w := s.do(http.MethodPost, "/api/auth/register", gin.H{"username": "u", "email": "not-an-email", "password": "long-enough"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", gin.H{"email": "nobody@example.com", "password": "whatever1"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	sess := s.signUp(false)

	w = s.do(http.MethodPost, "/api/auth/refresh", gin.H{"refresh_token": sess.RefreshToken}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var rotated session
	decode(t, w, &rotated)
	assert.NotEmpty(t, rotated.AccessToken)

	w = s.do(http.MethodPost, "/api/auth/refresh", gin.H{"refresh_token": sess.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/auth/logout", gin.H{"refresh_token": rotated.RefreshToken}, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(http.MethodPost, "/api/auth/refresh", gin.H{"refresh_token": rotated.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProfileRoutes(t *testing.T) {
	s := newSuite(t)
	sess := s.signUp(false)

	w := s.do(http.MethodGet, "/api/profile", nil, sess.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPut, "/api/profile", gin.H{
		"username": "renamed",
		"email":    "renamed@example.com",
		"bio":      gofakeit.LoremIpsumSentence(5),
	}, sess.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var p entity.Profile
	decode(t, w, &p)
	assert.Equal(t, "renamed", p.Username)

	w = s.do(http.MethodGet, "/api/admin/profiles", nil, sess.AccessToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodDelete, "/api/profile", nil, sess.AccessToken)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", gin.H{"email": "renamed@example.com", "password": "irrelevant"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeletedAccount_TokenRejected(t *testing.T) {
	s := newSuite(t)
	admin := s.signUp(true)
	voter := s.signUp(false)

	pollID, options := s.createPoll(admin.AccessToken, gin.H{"question": "Still here?", "options": []string{"yes", "no"}})
	votePath := fmt.Sprintf("/api/polls/%d/vote", pollID)

	w := s.do(http.MethodDelete, "/api/profile", nil, voter.AccessToken)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(http.MethodPost, votePath, gin.H{"option_id": options[0].ID}, voter.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/profile", nil, voter.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var results entity.Results
	decode(t, s.do(http.MethodGet, fmt.Sprintf("/api/polls/%d/results", pollID), nil, ""), &results)
	assert.Zero(t, results.TotalVotes)

	var detail entity.PollDetail
	decode(t, s.do(http.MethodGet, fmt.Sprintf("/api/polls/%d", pollID), nil, voter.AccessToken), &detail)
	assert.False(t, detail.HasVoted)
}
