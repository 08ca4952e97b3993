package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"campustrade/internal/infra/obs"
)

type ChatHTTP interface {
	ListMyConversations(c *gin.Context)
	CreateListingConversation(c *gin.Context)
	GetConversation(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
}

type UserHTTP interface {
	TouchActivity(c *gin.Context)
	Activity(c *gin.Context)
	Profile(c *gin.Context)
	UploadAvatar(c *gin.Context)
}

type AuthHTTP interface {
	Token(c *gin.Context)
	Me(c *gin.Context)
}

type RealtimeHTTP interface {
	Connect(c *gin.Context)
}

type Handlers struct {
	Chat           ChatHTTP
	User           UserHTTP
	Auth           AuthHTTP
	Realtime       RealtimeHTTP
	AuthMiddleware gin.HandlerFunc
}

type ServerConfig struct {
	Env         string
	Addr        string
	CORSOrigins []string
}

func NewServer(cfg ServerConfig, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewRouter wires middleware and routes without touching the global gin mode.
func NewRouter(cfg ServerConfig, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.AccessLog())
	router.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)
	if h.Realtime != nil {
		router.GET("/realtime", h.Realtime.Connect)
	}

	api := router.Group("/api/v1")
	if h.Auth != nil {
		api.POST("/auth/token", h.Auth.Token)
		api.GET("/auth/me", h.Auth.Me)
	}
	if h.Chat != nil {
		api.GET("/conversations", h.Chat.ListMyConversations)
		api.GET("/conversations/:id", h.Chat.GetConversation)
		api.GET("/conversations/:id/messages", h.Chat.ListMessages)
		api.POST("/conversations/:id/messages", h.Chat.SendMessage)
		api.POST("/listings/:id/conversation", h.Chat.CreateListingConversation)
	}
	if h.User != nil {
		api.POST("/me/activity", h.User.TouchActivity)
		api.POST("/me/avatar", h.User.UploadAvatar)
		api.GET("/users/:id/activity", h.User.Activity)
		api.GET("/users/:id/profile", h.User.Profile)
	}
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
