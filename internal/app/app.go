package app

import (
	"context"
	"log/slog"

	httpapp "github.com/ayosleepy/polls/internal/app/http"
	"github.com/ayosleepy/polls/internal/config"
	"github.com/ayosleepy/polls/internal/handlers"
	"github.com/ayosleepy/polls/internal/middleware"
	"github.com/ayosleepy/polls/internal/repo/memory"
	"github.com/ayosleepy/polls/internal/repo/postgres"
	"github.com/ayosleepy/polls/internal/routes"
	"github.com/ayosleepy/polls/internal/services"
	"github.com/ayosleepy/polls/internal/services/auth"
	"github.com/ayosleepy/polls/internal/services/profile"
)

// Storage is everything the services need from a backend. Both the postgres
// and the in-memory store implement it.
type Storage interface {
	services.LogStorage
	services.OptionStorage
	services.PollStorage
	services.VoteStorage
	auth.UserSaver
	auth.UserProvider
	auth.TokenStorage
	profile.ProfileStorage
}

type App struct {
	HTTPServer *httpapp.App
	Voting     *services.OnlineVoting
	Auth       *auth.Auth
	Profiles   *profile.Profiles
	closer     func() error
}

func NewApp(log *slog.Logger, cfg *config.Config) *App {
	storage, closer := mustStorage(log, cfg)

	authService := auth.NewAuth(log, storage, storage, storage, cfg.Auth.Secret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	votingService := services.NewOnlineVoting(log, storage, storage, storage, storage, authService)
	profileService := profile.New(log, storage, authService)

	h := routes.Handlers{
		Voting:   handlers.NewVotingHandler(log, votingService, cfg.Polls.PageSize, cfg.Polls.RecentWindow),
		Auth:     handlers.NewAuthHandler(log, authService),
		Profiles: handlers.NewProfileHandler(log, profileService, cfg.Polls.PageSize),
	}

	authMiddleware := middleware.NewAuthMiddleware(authService)
	httpApp := httpapp.NewApp(log, cfg.HTTP, cfg.CORS, h, authMiddleware)

	return &App{
		HTTPServer: httpApp,
		Voting:     votingService,
		Auth:       authService,
		Profiles:   profileService,
		closer:     closer,
	}
}

func mustStorage(log *slog.Logger, cfg *config.Config) (Storage, func() error) {
	if cfg.Storage == config.StorageMemory {
		log.Warn("using in-memory storage, data is lost on restart")
		return memory.New(), func() error { return nil }
	}

	storage, err := postgres.New(cfg.StoragePath)
	if err != nil {
		panic(err)
	}

	if cfg.AutoMigrate {
		if err := storage.Migrate(); err != nil {
			panic(err)
		}
		log.Info("migrations applied")
	}

	return storage, storage.Close
}

func (a *App) Stop(ctx context.Context) error {
	if err := a.HTTPServer.Stop(ctx); err != nil {
		return err
	}
	return a.closer()
}
