package repository

import (
	"database/sql"
	"time"

	"github.com/unclebandit/message-router/internal/model"
)

// RateLimitRepository backs all three limiter regimes. The consume
// queries are single conditional UPDATEs so check-and-increment stays
// atomic even with several processor instances on one database.
type RateLimitRepository struct {
	DB *sql.DB
}

// ====================== Frequency control ======================

func (r *RateLimitRepository) GetFrequencyControl(contactID int, tenantID string) (*model.FrequencyControl, error) {
	query := `
        SELECT id, contact_id, tenant_id, max_per_day, max_per_week, max_per_month,
               sent_today, sent_this_week, sent_this_month, last_sent_at, updated_at
        FROM frequency_controls
        WHERE contact_id=$1 AND tenant_id=$2
    `
	var fc model.FrequencyControl
	err := r.DB.QueryRow(query, contactID, tenantID).Scan(
		&fc.ID, &fc.ContactID, &fc.TenantID, &fc.MaxPerDay, &fc.MaxPerWeek, &fc.MaxPerMonth,
		&fc.SentToday, &fc.SentThisWeek, &fc.SentThisMonth, &fc.LastSentAt, &fc.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &fc, nil
}

func (r *RateLimitRepository) CreateFrequencyControl(fc *model.FrequencyControl) error {
	fc.UpdatedAt = time.Now()
	query := `
        INSERT INTO frequency_controls
            (contact_id, tenant_id, max_per_day, max_per_week, max_per_month,
             sent_today, sent_this_week, sent_this_month, last_sent_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (contact_id, tenant_id) DO NOTHING
        RETURNING id
    `
	err := r.DB.QueryRow(query,
		fc.ContactID, fc.TenantID, fc.MaxPerDay, fc.MaxPerWeek, fc.MaxPerMonth,
		fc.SentToday, fc.SentThisWeek, fc.SentThisMonth, fc.LastSentAt, fc.UpdatedAt,
	).Scan(&fc.ID)
	if err == sql.ErrNoRows {
		// Lost a create race; the caller re-reads.
		return nil
	}
	return err
}

// SaveFrequencyControl persists counters after a rollover or a caps
// update.
func (r *RateLimitRepository) SaveFrequencyControl(fc *model.FrequencyControl) error {
	fc.UpdatedAt = time.Now()
	query := `
        UPDATE frequency_controls
        SET max_per_day=$1, max_per_week=$2, max_per_month=$3,
            sent_today=$4, sent_this_week=$5, sent_this_month=$6,
            last_sent_at=$7, updated_at=$8
        WHERE id=$9
    `
	_, err := r.DB.Exec(query,
		fc.MaxPerDay, fc.MaxPerWeek, fc.MaxPerMonth,
		fc.SentToday, fc.SentThisWeek, fc.SentThisMonth,
		fc.LastSentAt, fc.UpdatedAt, fc.ID,
	)
	return err
}

// IncrementSent bumps all three counters after an actual send.
func (r *RateLimitRepository) IncrementSent(id int, now time.Time) error {
	query := `
        UPDATE frequency_controls
        SET sent_today=sent_today+1, sent_this_week=sent_this_week+1,
            sent_this_month=sent_this_month+1, last_sent_at=$1, updated_at=$1
        WHERE id=$2
    `
	_, err := r.DB.Exec(query, now, id)
	return err
}

func (r *RateLimitRepository) ResetDailyCounters() (int64, error) {
	res, err := r.DB.Exec(`UPDATE frequency_controls SET sent_today=0, updated_at=NOW() WHERE sent_today > 0`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *RateLimitRepository) ResetWeeklyCounters() (int64, error) {
	res, err := r.DB.Exec(`UPDATE frequency_controls SET sent_this_week=0, updated_at=NOW() WHERE sent_this_week > 0`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *RateLimitRepository) ResetMonthlyCounters() (int64, error) {
	res, err := r.DB.Exec(`UPDATE frequency_controls SET sent_this_month=0, updated_at=NOW() WHERE sent_this_month > 0`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ====================== API rate limits ======================

const apiLimitColumns = `id, user_id, tenant_id, endpoint_pattern, max_requests, time_window_seconds,
		current_count, window_start_time, is_active, priority, created_at, updated_at`

func scanApiLimit(row interface{ Scan(...interface{}) error }) (*model.ApiRateLimit, error) {
	var l model.ApiRateLimit
	err := row.Scan(
		&l.ID, &l.UserID, &l.TenantID, &l.EndpointPattern, &l.MaxRequests, &l.TimeWindowSeconds,
		&l.CurrentCount, &l.WindowStartTime, &l.IsActive, &l.Priority, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// FindApiLimit picks the most specific active rule for the caller:
// tenant+endpoint beats user+endpoint beats endpoint-only, longer
// patterns beat shorter ones, priority breaks remaining ties. Patterns
// use '*' as a wildcard.
func (r *RateLimitRepository) FindApiLimit(userID, tenantID, endpoint string) (*model.ApiRateLimit, error) {
	query := `
        SELECT ` + apiLimitColumns + `
        FROM api_rate_limits
        WHERE is_active=true
          AND (user_id='' OR user_id=$1)
          AND (tenant_id='' OR tenant_id=$2)
          AND $3 LIKE REPLACE(endpoint_pattern, '*', '%')
        ORDER BY (tenant_id <> '')::int DESC,
                 (user_id <> '')::int DESC,
                 LENGTH(endpoint_pattern) DESC,
                 priority DESC
        LIMIT 1
    `
	l, err := scanApiLimit(r.DB.QueryRow(query, userID, tenantID, endpoint))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

// ConsumeApiSlot atomically takes one slot from the fixed window,
// resetting the window first when it has expired. Returns false when
// the window is full.
func (r *RateLimitRepository) ConsumeApiSlot(id int, now time.Time) (bool, error) {
	query := `
        UPDATE api_rate_limits
        SET current_count = CASE
                WHEN $1 >= window_start_time + time_window_seconds * interval '1 second' THEN 1
                ELSE current_count + 1
            END,
            window_start_time = CASE
                WHEN $1 >= window_start_time + time_window_seconds * interval '1 second' THEN $1
                ELSE window_start_time
            END,
            updated_at = $1
        WHERE id=$2
          AND ($1 >= window_start_time + time_window_seconds * interval '1 second'
            OR current_count < max_requests)
    `
	res, err := r.DB.Exec(query, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *RateLimitRepository) GetApiLimit(id int) (*model.ApiRateLimit, error) {
	query := `SELECT ` + apiLimitColumns + ` FROM api_rate_limits WHERE id=$1`
	l, err := scanApiLimit(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

func (r *RateLimitRepository) ListApiLimits(userID, tenantID string) ([]*model.ApiRateLimit, error) {
	query := `
        SELECT ` + apiLimitColumns + `
        FROM api_rate_limits
        WHERE ($1='' OR user_id=$1) AND ($2='' OR tenant_id=$2)
        ORDER BY priority DESC, id ASC
    `
	rows, err := r.DB.Query(query, userID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	limits := []*model.ApiRateLimit{}
	for rows.Next() {
		l, err := scanApiLimit(rows)
		if err != nil {
			return nil, err
		}
		limits = append(limits, l)
	}
	return limits, rows.Err()
}

func (r *RateLimitRepository) CreateApiLimit(l *model.ApiRateLimit) error {
	l.CreatedAt = time.Now()
	l.UpdatedAt = l.CreatedAt
	if l.WindowStartTime.IsZero() {
		l.WindowStartTime = l.CreatedAt
	}
	query := `
        INSERT INTO api_rate_limits
            (user_id, tenant_id, endpoint_pattern, max_requests, time_window_seconds,
             current_count, window_start_time, is_active, priority, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		l.UserID, l.TenantID, l.EndpointPattern, l.MaxRequests, l.TimeWindowSeconds,
		l.CurrentCount, l.WindowStartTime, l.IsActive, l.Priority, l.CreatedAt, l.UpdatedAt,
	).Scan(&l.ID)
}

func (r *RateLimitRepository) UpdateApiLimit(l *model.ApiRateLimit) error {
	query := `
        UPDATE api_rate_limits
        SET max_requests=$1, time_window_seconds=$2, is_active=$3, priority=$4, updated_at=NOW()
        WHERE id=$5
    `
	_, err := r.DB.Exec(query, l.MaxRequests, l.TimeWindowSeconds, l.IsActive, l.Priority, l.ID)
	return err
}

// ====================== Provider rate limits ======================

func (r *RateLimitRepository) FindProviderLimit(providerName, providerType string) (*model.ProviderRateLimit, error) {
	query := `
        SELECT id, provider_name, provider_type, max_requests, time_window_seconds,
               current_count, window_start_time, is_active, updated_at
        FROM provider_rate_limits
        WHERE provider_name=$1 AND provider_type=$2 AND is_active=true
    `
	var l model.ProviderRateLimit
	err := r.DB.QueryRow(query, providerName, providerType).Scan(
		&l.ID, &l.ProviderName, &l.ProviderType, &l.MaxRequests, &l.TimeWindowSeconds,
		&l.CurrentCount, &l.WindowStartTime, &l.IsActive, &l.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func (r *RateLimitRepository) ConsumeProviderSlot(id int, now time.Time) (bool, error) {
	query := `
        UPDATE provider_rate_limits
        SET current_count = CASE
                WHEN $1 >= window_start_time + time_window_seconds * interval '1 second' THEN 1
                ELSE current_count + 1
            END,
            window_start_time = CASE
                WHEN $1 >= window_start_time + time_window_seconds * interval '1 second' THEN $1
                ELSE window_start_time
            END,
            updated_at = $1
        WHERE id=$2
          AND ($1 >= window_start_time + time_window_seconds * interval '1 second'
            OR current_count < max_requests)
    `
	res, err := r.DB.Exec(query, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *RateLimitRepository) GetProviderLimit(id int) (*model.ProviderRateLimit, error) {
	query := `
        SELECT id, provider_name, provider_type, max_requests, time_window_seconds,
               current_count, window_start_time, is_active, updated_at
        FROM provider_rate_limits
        WHERE id=$1
    `
	var l model.ProviderRateLimit
	err := r.DB.QueryRow(query, id).Scan(
		&l.ID, &l.ProviderName, &l.ProviderType, &l.MaxRequests, &l.TimeWindowSeconds,
		&l.CurrentCount, &l.WindowStartTime, &l.IsActive, &l.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

// ====================== Violation log ======================

func (r *RateLimitRepository) CreateRateLimitLog(l *model.RateLimitLog) error {
	l.TriggeredAt = time.Now()
	query := `
        INSERT INTO rate_limit_logs
            (user_id, tenant_id, endpoint, rate_limit_rule, request_count, max_requests,
             time_window_seconds, retry_after_seconds, triggered_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		l.UserID, l.TenantID, l.Endpoint, l.RateLimitRule, l.RequestCount, l.MaxRequests,
		l.TimeWindowSeconds, l.RetryAfterSeconds, l.TriggeredAt,
	).Scan(&l.ID)
}

func (r *RateLimitRepository) ListRateLimitLogs(limit int) ([]*model.RateLimitLog, error) {
	query := `
        SELECT id, user_id, tenant_id, endpoint, rate_limit_rule, request_count, max_requests,
               time_window_seconds, retry_after_seconds, triggered_at
        FROM rate_limit_logs
        ORDER BY triggered_at DESC
        LIMIT $1
    `
	rows, err := r.DB.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []*model.RateLimitLog{}
	for rows.Next() {
		l := &model.RateLimitLog{}
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.TenantID, &l.Endpoint, &l.RateLimitRule, &l.RequestCount, &l.MaxRequests,
			&l.TimeWindowSeconds, &l.RetryAfterSeconds, &l.TriggeredAt,
		); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
