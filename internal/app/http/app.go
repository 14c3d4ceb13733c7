package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ayosleepy/polls/internal/config"
	"github.com/ayosleepy/polls/internal/middleware"
	"github.com/ayosleepy/polls/internal/routes"
)

type App struct {
	log    *slog.Logger
	engine *gin.Engine
	server *http.Server
	port   int
}

// NewApp builds the Gin engine and mounts all routes under /api.
func NewApp(
	log *slog.Logger,
	cfg config.HTTPConfig,
	corsCfg config.CORSConfig,
	h routes.Handlers,
	authMiddleware *middleware.AuthMiddleware,
) *App {
	r := gin.New()
	r.Use(middleware.RequestLogger(log), gin.Recovery())

	if len(corsCfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     corsCfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRefreshToken, middleware.HeaderRequestID},
			ExposeHeaders:    []string{middleware.HeaderNewAccessToken, middleware.HeaderNewRefreshToken, middleware.HeaderRequestID, "Location"},
			AllowCredentials: true,
		}))
	}

	api := r.Group("/api")
	{
		routes.RegisterPublicRoutes(api, h, authMiddleware.Optional())

		private := api.Group("", authMiddleware.Required())
		routes.RegisterPrivateRoutes(private, h)

		admin := api.Group("/admin", authMiddleware.Required())
		routes.RegisterAdminRoutes(admin, h)
	}

	// Healthcheck
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &App{
		log:    log,
		engine: r,
		server: httpServer,
		port:   cfg.Port,
	}
}

func (a *App) Run() error {
	a.log.Info("HTTP server is running", slog.String("addr", a.server.Addr))
	return a.server.ListenAndServe()
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("HTTP server is stopping", slog.String("addr", a.server.Addr))
	return a.server.Shutdown(ctx)
}

func (a *App) Engine() *gin.Engine {
	return a.engine
}
