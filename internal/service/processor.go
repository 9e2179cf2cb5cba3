// internal/service/processor.go
package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/unclebandit/message-router/internal/config"
	"github.com/unclebandit/message-router/internal/model"
)

// QueueProcessor polls for due messages on a fixed cadence and pushes
// each through the delivery pipeline as its own unit of work. Workers
// are bounded by a semaphore and paced by a token bucket so one tick
// cannot burst a whole batch at the providers.
type QueueProcessor struct {
	Messages MessageStore
	Delivery *DeliveryService
	Cfg      config.PollConfig
	Log      zerolog.Logger

	limiter *rate.Limiter
}

func NewQueueProcessor(messages MessageStore, delivery *DeliveryService, cfg config.PollConfig, log zerolog.Logger) *QueueProcessor {
	dispatchRate := cfg.DispatchRate
	if dispatchRate <= 0 {
		dispatchRate = float64(rate.Inf)
	}
	return &QueueProcessor{
		Messages: messages,
		Delivery: delivery,
		Cfg:      cfg,
		Log:      log,
		limiter:  rate.NewLimiter(rate.Limit(dispatchRate), 1),
	}
}

// Run loops until ctx is cancelled, processing the queue every poll
// interval.
func (p *QueueProcessor) Run(ctx context.Context) {
	p.Log.Info().
		Dur("interval", p.Cfg.Interval.Std()).
		Int("batch_size", p.Cfg.BatchSize).
		Int("concurrency", p.Cfg.Concurrency).
		Msg("queue processor started")

	ticker := time.NewTicker(p.Cfg.Interval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Log.Info().Msg("queue processor stopped")
			return
		case <-ticker.C:
			p.ProcessQueue(ctx)
		}
	}
}

// ProcessQueue handles all currently-due messages. One message's
// failure never aborts the rest of the batch.
func (p *QueueProcessor) ProcessQueue(ctx context.Context) {
	due, err := p.Messages.ListDue(time.Now(), p.Cfg.BatchSize)
	if err != nil {
		p.Log.Error().Err(err).Msg("failed to list due messages")
		return
	}
	if len(due) == 0 {
		return
	}
	p.Log.Debug().Int("count", len(due)).Msg("processing due messages")

	sem := make(chan struct{}, p.Cfg.Concurrency)
	var wg sync.WaitGroup

	for _, msg := range due {
		if ctx.Err() != nil {
			break
		}
		if err := p.limiter.Wait(ctx); err != nil {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(m *model.Message) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					p.Log.Error().Int("message_id", m.ID).Interface("panic", r).Msg("delivery panicked")
				}
			}()

			if _, err := p.Delivery.RouteMessage(ctx, m); err != nil {
				p.Log.Error().Err(err).Int("message_id", m.ID).Msg("delivery pipeline error")
			}
		}(msg)
	}
	wg.Wait()
}

// RefreshDeliveryStatuses polls providers for the fate of sent
// messages and promotes confirmed ones to delivered.
func (p *QueueProcessor) RefreshDeliveryStatuses(ctx context.Context) {
	msgs, err := p.Messages.ListSentAwaitingDelivery(p.Cfg.BatchSize)
	if err != nil {
		p.Log.Error().Err(err).Msg("failed to list sent messages")
		return
	}

	for _, msg := range msgs {
		if ctx.Err() != nil {
			return
		}
		// The provider that accepted the message is not recorded on
		// the row itself; the last successful attempt has it.
		attempts, err := p.Delivery.Attempts.ListByMessage(msg.ID)
		if err != nil || len(attempts) == 0 {
			continue
		}
		var providerName string
		for i := len(attempts) - 1; i >= 0; i-- {
			if attempts[i].Success {
				providerName = attempts[i].ProviderName
				break
			}
		}
		adapter, ok := p.Delivery.Providers.Get(providerName)
		if !ok {
			continue
		}

		delivered, err := adapter.GetDeliveryStatus(ctx, msg.ExternalID)
		if err != nil {
			p.Log.Debug().Err(err).Int("message_id", msg.ID).Msg("delivery status not confirmed")
			continue
		}
		if delivered {
			if err := p.Messages.MarkDelivered(msg.ID, time.Now()); err != nil {
				p.Log.Error().Err(err).Int("message_id", msg.ID).Msg("failed to mark delivered")
				continue
			}
			p.Log.Info().Int("message_id", msg.ID).Str("external_id", msg.ExternalID).Msg("delivery confirmed")
		}
	}
}
