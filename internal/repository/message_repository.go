package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/message-router/internal/errors"
	"github.com/unclebandit/message-router/internal/model"
)

type MessageRepositoryInterface interface {
	Create(m *model.Message) error
	GetByID(id int) (*model.Message, error)
	ListDue(now time.Time, limit int) ([]*model.Message, error)
	ListSentAwaitingDelivery(limit int) ([]*model.Message, error)

	// State transitions. Claim-style updates return false when the row
	// was not in a claimable state, so a cancelled or concurrently
	// claimed message is never attempted twice.
	ClaimForSending(id int, now time.Time) (bool, error)
	MarkSent(id int, externalID string, cost float64, now time.Time) error
	MarkDelivered(id int, now time.Time) error
	ScheduleRetry(id int, retryCount int, lastError string, nextAttemptAt time.Time) error
	MarkFailed(id int, lastError string, now time.Time) error
	Cancel(id int) (bool, error)
	SoftDelete(id int) error
}

type MessageRepository struct {
	DB *sql.DB
}

const messageColumns = `id, campaign_id, contact_id, tenant_id, channel, recipient, body, subject,
		html_content, media_urls, status, scheduled_at, next_attempt_at, sent_at, delivered_at,
		failed_at, external_id, cost, retry_count, max_retries, last_error, created_at, updated_at`

func (r *MessageRepository) Create(m *model.Message) error {
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	if m.Status == "" {
		m.Status = model.StatusQueued
	}
	if m.ScheduledAt.IsZero() {
		m.ScheduledAt = m.CreatedAt
	}
	query := `
        INSERT INTO messages (campaign_id, contact_id, tenant_id, channel, recipient, body, subject,
            html_content, media_urls, status, scheduled_at, max_retries, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		m.CampaignID, m.ContactID, m.TenantID, m.Channel, m.Recipient, m.Body, m.Subject,
		m.HTMLContent, m.MediaURLs, m.Status, m.ScheduledAt, m.MaxRetries, m.CreatedAt, m.UpdatedAt,
	).Scan(&m.ID)
}

func scanMessage(row interface{ Scan(...interface{}) error }) (*model.Message, error) {
	var m model.Message
	err := row.Scan(
		&m.ID, &m.CampaignID, &m.ContactID, &m.TenantID, &m.Channel, &m.Recipient, &m.Body, &m.Subject,
		&m.HTMLContent, &m.MediaURLs, &m.Status, &m.ScheduledAt, &m.NextAttemptAt, &m.SentAt, &m.DeliveredAt,
		&m.FailedAt, &m.ExternalID, &m.Cost, &m.RetryCount, &m.MaxRetries, &m.LastError, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepository) GetByID(id int) (*model.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE id=$1 AND deleted_at IS NULL`, messageColumns)
	m, err := scanMessage(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewMessageNotFound(id)
		}
		return nil, err
	}
	return m, nil
}

// ListDue returns queued messages whose scheduled_at has passed and
// pending retries whose next_attempt_at has passed, oldest scheduled
// first so no tenant's backlog starves another's.
func (r *MessageRepository) ListDue(now time.Time, limit int) ([]*model.Message, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM messages
        WHERE deleted_at IS NULL
          AND ((status=$1 AND scheduled_at <= $3)
            OR (status=$2 AND next_attempt_at IS NOT NULL AND next_attempt_at <= $3))
        ORDER BY scheduled_at ASC
        LIMIT $4
    `, messageColumns)
	rows, err := r.DB.Query(query, model.StatusQueued, model.StatusPendingRetry, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []*model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ListSentAwaitingDelivery returns sent messages with an external id
// whose delivery confirmation has not arrived yet.
func (r *MessageRepository) ListSentAwaitingDelivery(limit int) ([]*model.Message, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM messages
        WHERE deleted_at IS NULL AND status=$1 AND external_id <> ''
        ORDER BY sent_at ASC
        LIMIT $2
    `, messageColumns)
	rows, err := r.DB.Query(query, model.StatusSent, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []*model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *MessageRepository) ClaimForSending(id int, now time.Time) (bool, error) {
	query := `
        UPDATE messages
        SET status=$1, next_attempt_at=NULL, updated_at=$2
        WHERE id=$3 AND status IN ($4, $5) AND deleted_at IS NULL
    `
	res, err := r.DB.Exec(query, model.StatusSending, now, id, model.StatusQueued, model.StatusPendingRetry)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *MessageRepository) MarkSent(id int, externalID string, cost float64, now time.Time) error {
	query := `
        UPDATE messages
        SET status=$1, external_id=$2, cost=$3, sent_at=$4, last_error='', updated_at=$4
        WHERE id=$5 AND status=$6
    `
	_, err := r.DB.Exec(query, model.StatusSent, externalID, cost, now, id, model.StatusSending)
	return err
}

func (r *MessageRepository) MarkDelivered(id int, now time.Time) error {
	query := `
        UPDATE messages
        SET status=$1, delivered_at=$2, updated_at=$2
        WHERE id=$3 AND status=$4
    `
	_, err := r.DB.Exec(query, model.StatusDelivered, now, id, model.StatusSent)
	return err
}

func (r *MessageRepository) ScheduleRetry(id int, retryCount int, lastError string, nextAttemptAt time.Time) error {
	query := `
        UPDATE messages
        SET status=$1, retry_count=$2, last_error=$3, next_attempt_at=$4, updated_at=NOW()
        WHERE id=$5 AND status=$6
    `
	_, err := r.DB.Exec(query, model.StatusPendingRetry, retryCount, lastError, nextAttemptAt, id, model.StatusSending)
	return err
}

func (r *MessageRepository) MarkFailed(id int, lastError string, now time.Time) error {
	query := `
        UPDATE messages
        SET status=$1, last_error=$2, failed_at=$3, updated_at=$3
        WHERE id=$4 AND status NOT IN ($5, $6)
    `
	_, err := r.DB.Exec(query, model.StatusFailed, lastError, now, id, model.StatusDelivered, model.StatusCancelled)
	return err
}

// Cancel succeeds only from non-terminal states.
func (r *MessageRepository) Cancel(id int) (bool, error) {
	query := `
        UPDATE messages
        SET status=$1, next_attempt_at=NULL, updated_at=NOW()
        WHERE id=$2 AND status IN ($3, $4) AND deleted_at IS NULL
    `
	res, err := r.DB.Exec(query, model.StatusCancelled, id, model.StatusQueued, model.StatusPendingRetry)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *MessageRepository) SoftDelete(id int) error {
	_, err := r.DB.Exec(`UPDATE messages SET deleted_at=NOW(), updated_at=NOW() WHERE id=$1`, id)
	return err
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
