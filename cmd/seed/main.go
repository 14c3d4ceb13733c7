package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	sl "github.com/14kear/sso-prettyslog/slogpretty/errors"

	"github.com/ayosleepy/polls/internal/app"
	"github.com/ayosleepy/polls/internal/config"
	"github.com/ayosleepy/polls/internal/seed"
	"github.com/ayosleepy/polls/utils"
)

func main() {
	var fixturePath string
	flag.StringVar(&fixturePath, "file", "config/polls.yaml", "path to seed fixture")
	flag.String("config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad()

	log := utils.New(cfg.Env)

	fx, err := seed.Load(fixturePath)
	if err != nil {
		log.Error("failed to load fixture", sl.Err(err))
		os.Exit(1)
	}

	application := app.NewApp(log, cfg)

	ids, err := seed.New(log, application.Auth, application.Voting).Run(context.Background(), fx, time.Now())
	if err != nil {
		log.Error("seeding failed", sl.Err(err))
		os.Exit(1)
	}

	log.Info("seeded polls", slog.Any("ids", ids))

	if err := application.Stop(context.Background()); err != nil {
		log.Error("failed to close storage", sl.Err(err))
	}
}
