// Package provider defines the delivery adapter consumed by the
// routing engine and a startup-time registry mapping provider names to
// implementations.
package provider

import (
	"context"

	"github.com/unclebandit/message-router/internal/model"
)

// SendResult is what a successful (or failed-but-answered) provider
// call returns.
type SendResult struct {
	ExternalID string
	Cost       float64
}

// Adapter is one vendor integration for one channel.
type Adapter interface {
	Name() string
	Channel() model.Channel

	// Send delivers one message. A non-nil error means the attempt
	// failed; the error text drives failure classification.
	Send(ctx context.Context, msg *model.Message) (*SendResult, error)

	// GetDeliveryStatus polls the vendor for the fate of an accepted
	// message.
	GetDeliveryStatus(ctx context.Context, externalID string) (bool, error)

	// EstimateCost prices a message without sending it. Used by
	// cost-optimized routing.
	EstimateCost(msg *model.Message) float64
}

// Registry resolves provider names to adapters. Built once at startup,
// read-only afterwards.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Registry{adapters: m}
}

func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
