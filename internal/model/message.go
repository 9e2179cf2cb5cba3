// internal/model/message.go
package model

import "time"

// Channel is a delivery medium.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelMMS   Channel = "mms"
	ChannelEmail Channel = "email"
)

// MessageStatus is the lifecycle state of an outbound message.
// Terminal states (delivered, failed, cancelled) never regress.
type MessageStatus string

const (
	StatusQueued       MessageStatus = "queued"
	StatusSending      MessageStatus = "sending"
	StatusSent         MessageStatus = "sent"
	StatusDelivered    MessageStatus = "delivered"
	StatusPendingRetry MessageStatus = "pending_retry"
	StatusFailed       MessageStatus = "failed"
	StatusCancelled    MessageStatus = "cancelled"
)

// Terminal reports whether s allows no further transitions.
func (s MessageStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed || s == StatusCancelled
}

type Message struct {
	ID            int           `db:"id" json:"id"`
	CampaignID    int           `db:"campaign_id" json:"campaign_id"`
	ContactID     int           `db:"contact_id" json:"contact_id"`
	TenantID      string        `db:"tenant_id" json:"tenant_id"`
	Channel       Channel       `db:"channel" json:"channel"`
	Recipient     string        `db:"recipient" json:"recipient"`
	Body          string        `db:"body" json:"body"`
	Subject       string        `db:"subject" json:"subject,omitempty"`
	HTMLContent   string        `db:"html_content" json:"html_content,omitempty"`
	MediaURLs     string        `db:"media_urls" json:"media_urls,omitempty"` // JSON array
	Status        MessageStatus `db:"status" json:"status"`
	ScheduledAt   time.Time     `db:"scheduled_at" json:"scheduled_at"`
	NextAttemptAt *time.Time    `db:"next_attempt_at" json:"next_attempt_at,omitempty"`
	SentAt        *time.Time    `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt   *time.Time    `db:"delivered_at" json:"delivered_at,omitempty"`
	FailedAt      *time.Time    `db:"failed_at" json:"failed_at,omitempty"`
	ExternalID    string        `db:"external_id" json:"external_id,omitempty"`
	Cost          float64       `db:"cost" json:"cost"`
	RetryCount    int           `db:"retry_count" json:"retry_count"`
	MaxRetries    int           `db:"max_retries" json:"max_retries"`
	LastError     string        `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
	DeletedAt     *time.Time    `db:"deleted_at" json:"deleted_at,omitempty"`
}
