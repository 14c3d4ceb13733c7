package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/ayosleepy/polls/internal/handlers"
)

type Handlers struct {
	Voting   *handlers.VotingHandler
	Auth     *handlers.AuthHandler
	Profiles *handlers.ProfileHandler
}

func RegisterPublicRoutes(rg *gin.RouterGroup, h Handlers, optionalAuth gin.HandlerFunc) {
	{
		rg.GET("/polls", h.Voting.ListPolls)
		rg.GET("/polls/:id", optionalAuth, h.Voting.GetPoll)
		rg.GET("/polls/:id/results", h.Voting.GetResults)

		rg.POST("/auth/register", h.Auth.Register)
		rg.POST("/auth/login", h.Auth.Login)
		rg.POST("/auth/refresh", h.Auth.Refresh)
		rg.POST("/auth/logout", h.Auth.Logout)
	}
}

func RegisterPrivateRoutes(rg *gin.RouterGroup, h Handlers) {
	{
		rg.POST("/polls/:id/vote", h.Voting.Vote)

		rg.GET("/profile", h.Profiles.Get)
		rg.PUT("/profile", h.Profiles.Update)
		rg.DELETE("/profile", h.Profiles.Delete)
	}
}

// RegisterAdminRoutes mounts the management endpoints. The admin role itself
// is checked by the services.
func RegisterAdminRoutes(rg *gin.RouterGroup, h Handlers) {
	{
		rg.POST("/polls", h.Voting.CreatePoll)
		rg.PUT("/polls/:id", h.Voting.UpdatePoll)
		rg.DELETE("/polls/:id", h.Voting.DeletePoll)
		rg.POST("/polls/:id/options", h.Voting.CreateOption)

		rg.GET("/logs", h.Voting.GetLogs)

		rg.GET("/profiles", h.Profiles.List)
		rg.PUT("/users/:id/admin", h.Auth.SetAdminStatus)
	}
}
