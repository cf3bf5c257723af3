package api

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	AllowOrigins []string
	// Extra routes such as the Telegram webhook.
	Mount func(r *gin.Engine)
}

// NewRouter builds the HTTP API.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.logger))

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/health", h.Health)

	users := router.Group("/api/users/:userID")
	{
		users.GET("/subscription", h.GetSubscription)
		users.POST("/onboarding", h.CompleteOnboarding)
		users.PUT("/subscription/plan", h.ChangePlan)
		users.PUT("/subscription/auto-renew", h.SetAutoRenew)
		users.POST("/subscription/deactivate", h.Deactivate)
		users.GET("/menu", h.GetMenu)
		users.POST("/pause", h.Pause)
		users.GET("/delivery", h.GetDelivery)
		users.POST("/delivery", h.StartDelivery)
		users.GET("/impact", h.GetImpact)
		users.POST("/health-streak", h.UpdateHealthStreak)
		users.GET("/coach", h.GetCoach)
		users.POST("/coach/follow", h.FollowCoach)
	}

	vendor := router.Group("/api/vendor")
	{
		vendor.GET("/impact", h.GetVendorImpact)
	}

	if cfg.Mount != nil {
		cfg.Mount(router)
	}
	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
