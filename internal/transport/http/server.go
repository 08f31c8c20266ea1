package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/socialchat-server/internal/auth"
	"github.com/vovakirdan/socialchat-server/internal/config"
	"github.com/vovakirdan/socialchat-server/internal/presence"
	"github.com/vovakirdan/socialchat-server/internal/service/friends"
	"github.com/vovakirdan/socialchat-server/internal/store"
)

// Services bundles the collaborators the HTTP layer routes to.
type Services struct {
	Auth          *auth.Service
	Friends       *friends.Service
	Users         store.UserStore
	Presence      *presence.Registry
	Authenticator *Authenticator
	Router        *EventRouter
}

// NewServer builds the HTTP server with the websocket endpoint and REST API.
func NewServer(svc Services, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(corsMiddleware(cfg.AllowedOrigins))
	}

	r.GET("/health", healthHandler)
	r.GET("/ws", gin.WrapH(NewWSHandler(svc.Authenticator, svc.Router, cfg.AllowedOrigins, cfg.MaxMessageBytes, logger)))

	apiHandlers := NewAPIHandlers(svc.Auth, logger)
	userHandlers := NewUserHandlers(svc.Users, svc.Presence, logger)
	friendsHandlers := NewFriendsHandlers(svc.Friends, svc.Users, logger)
	groupHandlers := NewGroupHandlers(svc.Friends, logger)

	api := r.Group("/api")
	api.POST("/auth/register", apiHandlers.Register)
	api.POST("/auth/login", apiHandlers.Login)

	protected := api.Group("")
	protected.Use(AuthMiddleware(svc.Auth, logger))
	protected.GET("/me", userHandlers.Me)
	protected.GET("/users/:userId", userHandlers.GetUser)

	protected.GET("/friends", friendsHandlers.ListFriends)
	protected.POST("/friends/requests", friendsHandlers.SendRequest)
	protected.GET("/friends/requests/incoming", friendsHandlers.ListPendingRequests)
	protected.POST("/friends/:userId/accept", friendsHandlers.AcceptRequest)
	protected.DELETE("/friends/:userId/reject", friendsHandlers.RejectRequest)
	protected.DELETE("/friends/:userId", friendsHandlers.RemoveFriend)

	protected.GET("/groups", groupHandlers.ListGroups)
	protected.POST("/groups", groupHandlers.CreateGroup)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		cc.AllowAllOrigins = true
		cc.AllowCredentials = false
	} else {
		cc.AllowOrigins = origins
	}
	return cors.New(cc)
}
