package handler

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tlu-support/internal/metrics"
	"tlu-support/internal/models"
	"tlu-support/internal/realtime"
	"tlu-support/internal/services"
	"tlu-support/internal/utils"
)

// Deps is everything the router needs to build its handlers.
type Deps struct {
	Auth           *services.AuthService
	Students       *services.StudentService
	Chat           *services.ChatService
	Lifecycle      *services.LifecycleService
	Media          *services.MediaService
	Hub            *realtime.Hub
	JWT            *utils.JWTUtil
	Blacklist      utils.TokenBlacklist
	AllowedOrigins []string
	Log            zerolog.Logger
}

func SetupRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), metrics.GinMiddleware())
	router.Use(cors.New(corsConfig(d.AllowedOrigins)))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())

	authH := NewAuthHandler(d.Auth, d.Log)
	userH := NewUserHandler(d.Students, d.Log)
	studentH := NewStudentHandler(d.Students, d.Log)
	chatH := NewChatHandler(d.Chat, d.Lifecycle, d.Media, d.Log)
	socketH := NewSocketHandler(d.Hub, d.Chat, d.AllowedOrigins, d.Log)

	authMW := utils.AuthMiddleware(d.JWT, d.Blacklist)
	privileged := utils.RequireRoles(models.PrivilegedRoles...)

	api := router.Group("/api/v1")

	auth := api.Group("/auth")
	{
		auth.POST("/login", authH.Login)
		auth.POST("/register", authH.Register)
		auth.POST("/forgot-password", authH.ForgotPassword)

		protected := auth.Group("")
		protected.Use(authMW)
		{
			protected.POST("/change-password", authH.ChangePassword)
			protected.POST("/logout", authH.Logout)
			protected.GET("/validate", authH.Validate)
			protected.POST("/create-lecturer", utils.RequireRoles(string(models.RoleAdmin)), authH.CreateLecturer)
		}
	}

	users := api.Group("/users")
	users.Use(authMW)
	{
		users.GET("/me", userH.GetMe)
		users.PUT("/me", userH.UpdateMe)
	}

	students := api.Group("/students")
	students.Use(authMW, privileged)
	{
		students.GET("", studentH.List)
		students.GET("/:user_id", studentH.Get)
	}

	chat := api.Group("/chat")
	chat.Use(authMW)
	{
		chat.POST("/messages", chatH.SendMessage)
		chat.POST("/upload", chatH.Upload)
		chat.GET("/my-conversations", chatH.MyConversations)
		chat.GET("/conversations/:id/messages", chatH.GetMessages)

		// lecturers, teachers and admins
		staff := chat.Group("")
		staff.Use(privileged)
		{
			staff.GET("/conversations", chatH.ListConversations)
			staff.POST("/conversations/:id/assign", chatH.Assign)
			staff.PUT("/conversations/:id/status", chatH.UpdateStatus)
		}
	}

	api.GET("/ws", authMW, socketH.Handle)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
