package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"meal-subscription/internal/api"
	"meal-subscription/internal/app"
	"meal-subscription/internal/config"
	"meal-subscription/internal/logging"
	"meal-subscription/internal/notify"
	"meal-subscription/internal/telegram"
)

func main() {
	// 1. Load Configuration
	config.LoadDotEnv()
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Wire storage, ledger and integrations
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer application.Close()
	registry := application.Registry()

	// 3. Renewal and cleanup jobs
	scheduler := app.NewScheduler(registry, application.Metrics(), logger)
	if err := scheduler.Start(cfg.RenewalSchedule); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// 4. Optional Telegram bot
	var mount func(r *gin.Engine)
	if cfg.TelegramBotToken != "" {
		chats := telegram.NewChatRepository(application.KV())
		bot, err := telegram.NewBot(cfg, registry, application.Advisor(), application.Metrics(), chats, logger)
		if err != nil {
			log.Fatalf("Failed to initialize Telegram Bot: %v", err)
		}

		if cfg.TelegramWebhookURL != "" {
			mount = func(r *gin.Engine) { r.POST("/telegram/webhook", gin.WrapF(bot.HandleWebhook)) }
		} else {
			go bot.Poll(ctx)
		}

		// With Redis, updates from every replica reach the bot through the channel.
		if rdb := application.Redis(); rdb != nil {
			go func() {
				err := notify.Subscribe(ctx, rdb, cfg.DeliveryChannel, logger, func(u notify.DeliveryUpdate) {
					bot.PushDelivery(u.UserID, u.Tracking())
				})
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("delivery subscription stopped", "error", err)
				}
			}()
		} else {
			registry.OnDelivery(bot.PushDelivery)
		}
	}

	// 5. Start Server with Graceful Shutdown
	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(registry, application.Advisor(), application.Metrics(), filepath.Dir(cfg.DatabasePath), logger)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(handler, api.RouterConfig{Mount: mount}),
	}

	go func() {
		logger.Info("subscription server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	<-scheduler.Stop().Done()

	logger.Info("server exiting")
}
