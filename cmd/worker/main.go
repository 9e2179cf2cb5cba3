// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/unclebandit/message-router/internal/config"
	"github.com/unclebandit/message-router/internal/db"
	"github.com/unclebandit/message-router/internal/logging"
	"github.com/unclebandit/message-router/internal/model"
	"github.com/unclebandit/message-router/internal/provider"
	"github.com/unclebandit/message-router/internal/queue"
	"github.com/unclebandit/message-router/internal/repository"
	"github.com/unclebandit/message-router/internal/service"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load("engine.yaml")
	log := logging.New(cfg.Log.Level, cfg.Log.Console)
	if envErr != nil {
		log.Warn().Msg("no .env file found, relying on OS environment variables")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("invalid engine config")
	}

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
	processor := service.NewQueueProcessor(messageRepo, delivery, cfg.Poll, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Counter rollovers. The checker also rolls lazily per contact, the
	// cron sweep keeps dormant rows from going stale.
	c := cron.New()
	c.AddFunc("0 0 * * *", func() {
		n, err := rateLimitRepo.ResetDailyCounters()
		if err != nil {
			log.Error().Err(err).Msg("daily counter reset failed")
			return
		}
		log.Info().Int64("rows", n).Msg("daily frequency counters reset")
	})
	c.AddFunc("0 0 * * 1", func() {
		n, err := rateLimitRepo.ResetWeeklyCounters()
		if err != nil {
			log.Error().Err(err).Msg("weekly counter reset failed")
			return
		}
		log.Info().Int64("rows", n).Msg("weekly frequency counters reset")
	})
	c.AddFunc("0 0 1 * *", func() {
		n, err := rateLimitRepo.ResetMonthlyCounters()
		if err != nil {
			log.Error().Err(err).Msg("monthly counter reset failed")
			return
		}
		log.Info().Int64("rows", n).Msg("monthly frequency counters reset")
	})
	c.Start()
	defer c.Stop()

	// Broker-pushed jobs for messages created with an immediate schedule.
	// The poller alone would deliver them too, just a tick later.
	if conn, err := queue.Dial(); err != nil {
		log.Warn().Err(err).Msg("no AMQP broker, running poller only")
	} else {
		defer conn.Close()
		go func() {
			err := queue.Consume(conn, log, func(messageID int) error {
				msg, err := messageRepo.GetByID(messageID)
				if err != nil {
					return err
				}
				_, err = delivery.RouteMessage(ctx, msg)
				return err
			})
			if err != nil {
				log.Error().Err(err).Msg("AMQP consumer stopped")
			}
		}()
	}

	// Delivery confirmation polling runs slower than dispatch.
	go func() {
		ticker := time.NewTicker(3 * cfg.Poll.Interval.Std())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				processor.RefreshDeliveryStatuses(ctx)
			}
		}
	}()

	processor.Run(ctx)
}
