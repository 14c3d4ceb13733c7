// Package seed loads admin accounts and sample polls from a YAML fixture.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayosleepy/polls/internal/lib/jwt"
	"github.com/ayosleepy/polls/internal/services"
	"github.com/ayosleepy/polls/internal/services/auth"
)

type Fixture struct {
	Admins []Admin `yaml:"admins"`
	Polls  []Poll  `yaml:"polls"`
}

type Admin struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type Poll struct {
	Question         string        `yaml:"question"`
	ShortDescription string        `yaml:"short_description"`
	Description      string        `yaml:"description"`
	ClosesIn         time.Duration `yaml:"closes_in"`
	Options          []string      `yaml:"options"`
}

type Accounts interface {
	RegisterNewUser(ctx context.Context, username, email, pass string) (int64, error)
	Login(ctx context.Context, email, password string) (jwt.TokenPair, int64, error)
	SetUserAdminStatus(ctx context.Context, userID int64, admin bool) error
}

type Polls interface {
	CreatePoll(ctx context.Context, in services.PollInput, authorID int64) (int64, error)
}

type Seeder struct {
	log      *slog.Logger
	accounts Accounts
	polls    Polls
}

func New(log *slog.Logger, accounts Accounts, polls Polls) *Seeder {
	return &Seeder{log: log, accounts: accounts, polls: polls}
}

func Load(path string) (Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("seed.Load: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

func Parse(r io.Reader) (Fixture, error) {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && !errors.Is(err, io.EOF) {
		return Fixture{}, fmt.Errorf("seed.Parse: %w", err)
	}
	return fx, nil
}

// Run creates the admins, then the polls authored by the first admin. Admins
// that already exist are reused, polls are always created anew.
func (s *Seeder) Run(ctx context.Context, fx Fixture, now time.Time) ([]int64, error) {
	const op = "seed.Run"

	log := s.log.With(slog.String("op", op))

	if len(fx.Polls) > 0 && len(fx.Admins) == 0 {
		return nil, fmt.Errorf("%s: polls need at least one admin to author them", op)
	}

	var authorID int64
	for i, a := range fx.Admins {
		id, err := s.ensureAdmin(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("%s: admin %q: %w", op, a.Email, err)
		}
		if i == 0 {
			authorID = id
		}
		log.Info("admin ready", slog.Int64("userID", id))
	}

	pollIDs := make([]int64, 0, len(fx.Polls))
	for _, p := range fx.Polls {
		in := services.PollInput{
			Question:         p.Question,
			ShortDescription: p.ShortDescription,
			Description:      p.Description,
			PublishedAt:      now,
			Options:          p.Options,
		}
		if p.ClosesIn > 0 {
			closes := now.Add(p.ClosesIn)
			in.ClosesAt = &closes
		}

		id, err := s.polls.CreatePoll(ctx, in, authorID)
		if err != nil {
			return nil, fmt.Errorf("%s: poll %q: %w", op, p.Question, err)
		}
		pollIDs = append(pollIDs, id)
	}

	log.Info("seeding finished", slog.Int("admins", len(fx.Admins)), slog.Int("polls", len(pollIDs)))

	return pollIDs, nil
}

func (s *Seeder) ensureAdmin(ctx context.Context, a Admin) (int64, error) {
	id, err := s.accounts.RegisterNewUser(ctx, a.Username, a.Email, a.Password)
	if errors.Is(err, auth.ErrUserExists) {
		_, id, err = s.accounts.Login(ctx, a.Email, a.Password)
	}
	if err != nil {
		return 0, err
	}

	if err := s.accounts.SetUserAdminStatus(ctx, id, true); err != nil {
		return 0, err
	}
	return id, nil
}
