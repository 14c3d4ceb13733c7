package profile

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayosleepy/polls/internal/entity"
	"github.com/ayosleepy/polls/internal/repo"
	"github.com/ayosleepy/polls/internal/repo/memory"
	"github.com/ayosleepy/polls/internal/services"
	"github.com/ayosleepy/polls/internal/services/auth"
	"github.com/ayosleepy/polls/internal/services/mocks"
	"github.com/ayosleepy/polls/utils"
)

func TestGet_CreatesMissingProfile(t *testing.T) {
	ctrl := gomock.NewController(t)
	storage := mocks.NewMockProfileStorage(ctrl)

	gomock.InOrder(
		storage.EXPECT().Profile(gomock.Any(), int64(4)).Return(entity.Profile{}, repo.ErrProfileNotFound),
		storage.EXPECT().CreateProfile(gomock.Any(), int64(4)).Return(nil),
		storage.EXPECT().Profile(gomock.Any(), int64(4)).Return(entity.Profile{UserID: 4, Username: "four"}, nil),
	)

	p := New(utils.New(utils.EnvLocal), storage, nil)

	got, err := p.Get(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, "four", got.Username)
}

func TestGet_DeletedUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	storage := mocks.NewMockProfileStorage(ctrl)

	storage.EXPECT().Profile(gomock.Any(), int64(4)).Return(entity.Profile{}, repo.ErrProfileNotFound)
	storage.EXPECT().CreateProfile(gomock.Any(), int64(4)).Return(repo.ErrUserNotFound)

	_, err := New(utils.New(utils.EnvLocal), storage, nil).Get(context.Background(), 4)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_RequiresAdmin(t *testing.T) {
	ctrl := gomock.NewController(t)
	storage := mocks.NewMockProfileStorage(ctrl)
	admins := mocks.NewMockAdminChecker(ctrl)

	admins.EXPECT().IsAdmin(gomock.Any(), int64(2)).Return(false, nil)
	admins.EXPECT().IsAdmin(gomock.Any(), int64(1)).Return(true, nil)
	storage.EXPECT().ListProfiles(gomock.Any(), "ann", repo.Page{Limit: repo.DefaultPageSize}).
		Return([]entity.Profile{{UserID: 3, Username: "ann"}}, nil)

	p := New(utils.New(utils.EnvLocal), storage, admins)

	_, err := p.List(context.Background(), 2, "ann", repo.Page{})
	assert.ErrorIs(t, err, services.ErrForbidden)

	profiles, err := p.List(context.Background(), 1, " ann ", repo.Page{})
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
}

func TestUpdate_Validation(t *testing.T) {
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	tomorrow := now.Add(24 * time.Hour)

	tests := []struct {
		name string
		in   Input
	}{
		{name: "bio too long", in: Input{Username: "u", Email: "u@mail.ru", Bio: strings.Repeat("x", entity.MaxBioLength+1)}},
		{name: "birth date in future", in: Input{Username: "u", Email: "u@mail.ru", BirthDate: &tomorrow}},
		{name: "bad email", in: Input{Username: "u", Email: "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(utils.New(utils.EnvLocal), nil, nil)
			_, err := p.Update(context.Background(), 1, tt.in, now)
			assert.ErrorIs(t, err, auth.ErrInvalidInput)
		})
	}
}

func TestUpdateAndDelete_Memory(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now()

	first, err := s.SaveUser(ctx, "first", "first@mail.ru", []byte("h"))
	require.NoError(t, err)
	_, err = s.SaveUser(ctx, "second", "second@mail.ru", []byte("h"))
	require.NoError(t, err)

	p := New(utils.New(utils.EnvLocal), s, nil)
	birth := now.AddDate(-30, 0, 0)
	bio := gofakeit.LoremIpsumSentence(10)

	updated, err := p.Update(ctx, first, Input{
		Username:  "renamed",
		Email:     "renamed@mail.ru",
		Avatar:    "avatars/1.png",
		Bio:       bio,
		BirthDate: &birth,
	}, now)
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Username)
	assert.Equal(t, bio, updated.Bio)

	_, err = p.Update(ctx, first, Input{Username: "second", Email: "renamed@mail.ru"}, now)
	assert.ErrorIs(t, err, auth.ErrUserExists)

	require.NoError(t, p.Delete(ctx, first))
	_, err = p.Get(ctx, first)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, p.Delete(ctx, first), ErrNotFound)
}
