// cmd/server/main.go
package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/unclebandit/message-router/internal/config"
	"github.com/unclebandit/message-router/internal/controller"
	"github.com/unclebandit/message-router/internal/db"
	"github.com/unclebandit/message-router/internal/handler"
	"github.com/unclebandit/message-router/internal/logging"
	"github.com/unclebandit/message-router/internal/model"
	"github.com/unclebandit/message-router/internal/provider"
	"github.com/unclebandit/message-router/internal/queue"
	"github.com/unclebandit/message-router/internal/repository"
	"github.com/unclebandit/message-router/internal/service"
)

func main() {
	// Load .env
	envErr := godotenv.Load()

	cfg, err := config.Load("engine.yaml")
	log := logging.New(cfg.Log.Level, cfg.Log.Console)
	if envErr != nil {
		log.Warn().Msg("no .env file found, relying on OS environment variables")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("invalid engine config")
	}

	// Init DB
	db.Init(log)

	messageRepo := &repository.MessageRepository{DB: db.DB}
	attemptRepo := &repository.DeliveryAttemptRepository{DB: db.DB}
	routingRepo := &repository.RoutingConfigRepository{DB: db.DB}
	rateLimitRepo := &repository.RateLimitRepository{DB: db.DB}
	contactRepo := &repository.ContactRepository{DB: db.DB}

	providers := provider.NewRegistry(
		provider.NewMockProvider("mock-sms-primary", model.ChannelSMS, 5, 100*time.Millisecond, 1.0),
		provider.NewMockProvider("mock-sms-backup", model.ChannelSMS, 5, 150*time.Millisecond, 0.8),
		provider.NewMockProvider("mock-mms-primary", model.ChannelMMS, 5, 200*time.Millisecond, 1.0),
		provider.NewMockProvider("mock-mms-backup", model.ChannelMMS, 5, 250*time.Millisecond, 0.9),
		provider.NewMockProvider("mock-email-primary", model.ChannelEmail, 2, 50*time.Millisecond, 1.0),
		provider.NewMockProvider("mock-email-backup", model.ChannelEmail, 2, 80*time.Millisecond, 1.0),
	)

	rateLimiter := service.NewRateLimitService(rateLimitRepo, cfg.Frequency, log)
	routing := service.NewRoutingService(routingRepo, providers, rateLimiter, attemptRepo, log)
	delivery := service.NewDeliveryService(messageRepo, attemptRepo, routing, rateLimiter, contactRepo, providers, log)

	var publisher *queue.Publisher
	if conn, err := queue.Dial(); err != nil {
		log.Warn().Err(err).Msg("no AMQP broker, immediate routing relies on the poller")
	} else {
		publisher, err = queue.NewPublisher(conn)
		if err != nil {
			log.Warn().Err(err).Msg("failed to open AMQP channel")
		}
	}

	messageController := &controller.MessageController{
		Messages:  messageRepo,
		Attempts:  attemptRepo,
		Delivery:  delivery,
		Publisher: publisher,
		Log:       log,
	}
	routingHandler := &handler.RoutingConfigHandler{Repo: routingRepo}
	rateLimitHandler := &handler.RateLimitHandler{Repo: rateLimitRepo}
	statsHandler := &handler.StatsHandler{Attempts: attemptRepo}

	r := chi.NewRouter()
	r.Use(controller.RateLimit(rateLimiter))

	// Message routes
	r.Post("/messages", messageController.CreateMessage)
	r.Get("/messages/{id}", messageController.GetMessage)
	r.Get("/messages/{id}/attempts", messageController.GetAttempts)
	r.Post("/messages/{id}/route", messageController.RouteMessage)
	r.Post("/messages/{id}/cancel", messageController.CancelMessage)

	// Routing config routes
	r.Get("/routing-configs", routingHandler.ListConfigs)
	r.Post("/routing-configs", routingHandler.CreateConfig)
	r.Get("/routing-configs/{id}", routingHandler.GetConfig)
	r.Put("/routing-configs/{id}", routingHandler.UpdateConfig)
	r.Delete("/routing-configs/{id}", routingHandler.DeleteConfig)

	// Rate limit routes
	r.Get("/rate-limits/api", rateLimitHandler.ListApiLimits)
	r.Post("/rate-limits/api", rateLimitHandler.CreateApiLimit)
	r.Put("/rate-limits/api/{id}", rateLimitHandler.UpdateApiLimit)
	r.Get("/rate-limits/frequency/{contactID}", rateLimitHandler.GetFrequencyStatus)
	r.Put("/rate-limits/frequency/{contactID}", rateLimitHandler.UpdateFrequencyCaps)
	r.Get("/rate-limits/violations", rateLimitHandler.ListViolations)

	// Stats routes
	r.Get("/stats/channels/{channel}", statsHandler.ChannelStats)
	r.Get("/stats/overall", statsHandler.OverallStats)

	log.Info().Str("addr", ":8080").Msg("server running")
	if err := http.ListenAndServe(":8080", r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
