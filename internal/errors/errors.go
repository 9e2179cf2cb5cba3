// internal/errors/errors.go
package appErrors

import "fmt"

// ErrMessageNotFound is a sentinel error
type ErrMessageNotFound struct {
	MessageID int
}

func (e *ErrMessageNotFound) Error() string {
	return fmt.Sprintf("message with ID %d not found", e.MessageID)
}

// Helper constructor
func NewMessageNotFound(id int) error {
	return &ErrMessageNotFound{MessageID: id}
}

// ErrNoRoutingConfig means a channel has no active routing config.
// This is a configuration error: the message fails immediately and the
// error text should reach operators, not be retried away.
type ErrNoRoutingConfig struct {
	Channel string
}

func (e *ErrNoRoutingConfig) Error() string {
	return fmt.Sprintf("no active routing config for channel %q", e.Channel)
}

func NewNoRoutingConfig(channel string) error {
	return &ErrNoRoutingConfig{Channel: channel}
}

// ErrProviderNotRegistered means a routing config names a provider the
// registry does not know. Also a configuration error.
type ErrProviderNotRegistered struct {
	Provider string
}

func (e *ErrProviderNotRegistered) Error() string {
	return fmt.Sprintf("provider %q is not registered", e.Provider)
}

func NewProviderNotRegistered(name string) error {
	return &ErrProviderNotRegistered{Provider: name}
}

// ErrRateLimited carries the limiter's retry-after hint.
type ErrRateLimited struct {
	Scope             string
	RetryAfterSeconds int
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("%s rate limit exceeded, retry after %ds", e.Scope, e.RetryAfterSeconds)
}

func NewRateLimited(scope string, retryAfter int) error {
	return &ErrRateLimited{Scope: scope, RetryAfterSeconds: retryAfter}
}
