package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sl "github.com/14kear/sso-prettyslog/slogpretty/errors"

	"github.com/ayosleepy/polls/internal/entity"
	"github.com/ayosleepy/polls/internal/repo"
	"github.com/ayosleepy/polls/internal/services"
	"github.com/ayosleepy/polls/internal/services/auth"
)

var ErrNotFound = errors.New("profile not found")

//go:generate mockgen -source=profile.go -destination=../mocks/profile.go -package=mocks

type Profiles struct {
	log     *slog.Logger
	storage ProfileStorage
	admins  services.AdminChecker
}

type ProfileStorage interface {
	Profile(ctx context.Context, userID int64) (entity.Profile, error)
	CreateProfile(ctx context.Context, userID int64) error
	UpdateProfile(ctx context.Context, profile entity.Profile) error
	DeleteUser(ctx context.Context, userID int64) error
	ListProfiles(ctx context.Context, search string, page repo.Page) ([]entity.Profile, error)
}

// Input holds the editable account and profile fields.
type Input struct {
	Username  string
	Email     string
	Avatar    string
	Bio       string
	BirthDate *time.Time
}

func New(log *slog.Logger, storage ProfileStorage, admins services.AdminChecker) *Profiles {
	return &Profiles{log: log, storage: storage, admins: admins}
}

// Get returns the profile of userID, creating an empty one on first access.
func (p *Profiles) Get(ctx context.Context, userID int64) (entity.Profile, error) {
	const op = "profile.Get"

	profile, err := p.storage.Profile(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, repo.ErrProfileNotFound) {
		return entity.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := p.storage.CreateProfile(ctx, userID); err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return entity.Profile{}, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return entity.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	profile, err = p.storage.Profile(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrProfileNotFound) {
			return entity.Profile{}, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return entity.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	p.log.Info("profile created", slog.String("op", op), slog.Int64("userID", userID))

	return profile, nil
}

func (p *Profiles) Update(ctx context.Context, userID int64, in Input, now time.Time) (entity.Profile, error) {
	const op = "profile.Update"

	log := p.log.With(slog.String("op", op), slog.Int64("userID", userID))

	if err := validate(in, now); err != nil {
		return entity.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	current, err := p.Get(ctx, userID)
	if err != nil {
		return entity.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	current.Username = strings.TrimSpace(in.Username)
	current.Email = in.Email
	current.Avatar = in.Avatar
	current.Bio = in.Bio
	current.BirthDate = in.BirthDate

	if err := p.storage.UpdateProfile(ctx, current); err != nil {
		switch {
		case errors.Is(err, repo.ErrUserExists):
			return entity.Profile{}, fmt.Errorf("%s: %w", op, auth.ErrUserExists)
		case errors.Is(err, repo.ErrUserNotFound), errors.Is(err, repo.ErrProfileNotFound):
			return entity.Profile{}, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		log.Error("failed to update profile", sl.Err(err))
		return entity.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	updated, err := p.storage.Profile(ctx, userID)
	if err != nil {
		return entity.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("profile updated")

	return updated, nil
}

// Delete removes the account of userID. Votes it cast stay counted.
func (p *Profiles) Delete(ctx context.Context, userID int64) error {
	const op = "profile.Delete"

	if err := p.storage.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	p.log.Info("account deleted", slog.String("op", op), slog.Int64("userID", userID))
	return nil
}

// List is the admin view over all profiles, filtered by username.
func (p *Profiles) List(ctx context.Context, adminID int64, search string, page repo.Page) ([]entity.Profile, error) {
	const op = "profile.List"

	isAdmin, err := p.admins.IsAdmin(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !isAdmin {
		return nil, fmt.Errorf("%s: %w", op, services.ErrForbidden)
	}

	profiles, err := p.storage.ListProfiles(ctx, strings.TrimSpace(search), page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return profiles, nil
}

func validate(in Input, now time.Time) error {
	if err := auth.ValidateCredentials(in.Username, in.Email); err != nil {
		return err
	}
	if utf8.RuneCountInString(in.Bio) > entity.MaxBioLength {
		return fmt.Errorf("%w: bio is longer than %d characters", auth.ErrInvalidInput, entity.MaxBioLength)
	}
	if in.BirthDate != nil && in.BirthDate.After(now) {
		return fmt.Errorf("%w: birth date is in the future", auth.ErrInvalidInput)
	}
	return nil
}
