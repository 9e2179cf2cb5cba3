// internal/provider/mock.go
package provider

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/message-router/internal/model"
)

// MockProvider simulates a vendor gateway: latency, a configurable
// failure rate, and per-channel pricing. Used until real vendor
// credentials are wired in.
type MockProvider struct {
	name    string
	channel model.Channel

	mu          sync.Mutex
	rng         *rand.Rand
	failureRate int // percent of sends that fail
	latency     time.Duration
	costBias    float64 // multiplier over the base channel price
}

func NewMockProvider(name string, channel model.Channel, failureRate int, latency time.Duration, costBias float64) *MockProvider {
	if costBias <= 0 {
		costBias = 1
	}
	return &MockProvider{
		name:        name,
		channel:     channel,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		failureRate: failureRate,
		latency:     latency,
		costBias:    costBias,
	}
}

func (p *MockProvider) Name() string           { return p.name }
func (p *MockProvider) Channel() model.Channel { return p.channel }

func (p *MockProvider) Send(ctx context.Context, msg *model.Message) (*SendResult, error) {
	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return nil, fmt.Errorf("provider %s: send timeout: %w", p.name, ctx.Err())
		}
	}

	p.mu.Lock()
	roll := p.rng.Intn(100)
	p.mu.Unlock()

	if roll < p.failureRate {
		return nil, fmt.Errorf("provider %s temporarily unavailable", p.name)
	}

	prefix := strings.ToUpper(string(p.channel))
	return &SendResult{
		ExternalID: fmt.Sprintf("%s_%s", prefix, strings.ReplaceAll(uuid.NewString(), "-", "")),
		Cost:       p.EstimateCost(msg),
	}, nil
}

func (p *MockProvider) GetDeliveryStatus(ctx context.Context, externalID string) (bool, error) {
	p.mu.Lock()
	roll := p.rng.Intn(100)
	p.mu.Unlock()

	// Mock 98% of accepted messages as delivered.
	if roll < 98 {
		return true, nil
	}
	return false, fmt.Errorf("message bounced")
}

// EstimateCost prices by channel: SMS per 160-char segment, MMS flat,
// email effectively free.
func (p *MockProvider) EstimateCost(msg *model.Message) float64 {
	var base float64
	switch p.channel {
	case model.ChannelSMS:
		segments := math.Ceil(float64(len(msg.Body)) / 160.0)
		if segments < 1 {
			segments = 1
		}
		base = segments * 0.0075
	case model.ChannelMMS:
		base = 0.02
	case model.ChannelEmail:
		base = 0.0001
	}
	return base * p.costBias
}

var _ Adapter = (*MockProvider)(nil)
