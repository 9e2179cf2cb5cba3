package repository

import (
	"database/sql"
	"time"

	"github.com/unclebandit/message-router/internal/model"
)

type RoutingConfigRepository struct {
	DB *sql.DB
}

const routingConfigColumns = `id, channel, primary_provider, fallback_provider, routing_strategy,
		enable_fallback, max_retries, retry_strategy, initial_retry_delay_seconds,
		max_retry_delay_seconds, cost_threshold, is_active, priority, created_at, updated_at`

func scanRoutingConfig(row interface{ Scan(...interface{}) error }) (*model.ChannelRoutingConfig, error) {
	var c model.ChannelRoutingConfig
	err := row.Scan(
		&c.ID, &c.Channel, &c.PrimaryProvider, &c.FallbackProvider, &c.RoutingStrategy,
		&c.EnableFallback, &c.MaxRetries, &c.RetryStrategy, &c.InitialRetryDelaySeconds,
		&c.MaxRetryDelaySeconds, &c.CostThreshold, &c.IsActive, &c.Priority, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetActiveByChannel returns the highest-priority active config for a
// channel, or (nil, nil) when none exists.
func (r *RoutingConfigRepository) GetActiveByChannel(channel model.Channel) (*model.ChannelRoutingConfig, error) {
	query := `
        SELECT ` + routingConfigColumns + `
        FROM channel_routing_configs
        WHERE channel=$1 AND is_active=true
        ORDER BY priority DESC
        LIMIT 1
    `
	c, err := scanRoutingConfig(r.DB.QueryRow(query, channel))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (r *RoutingConfigRepository) GetByID(id int) (*model.ChannelRoutingConfig, error) {
	query := `SELECT ` + routingConfigColumns + ` FROM channel_routing_configs WHERE id=$1`
	c, err := scanRoutingConfig(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (r *RoutingConfigRepository) List() ([]*model.ChannelRoutingConfig, error) {
	query := `
        SELECT ` + routingConfigColumns + `
        FROM channel_routing_configs
        ORDER BY channel ASC, priority DESC
    `
	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := []*model.ChannelRoutingConfig{}
	for rows.Next() {
		c, err := scanRoutingConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

func (r *RoutingConfigRepository) Create(c *model.ChannelRoutingConfig) error {
	c.CreatedAt = time.Now()
	query := `
        INSERT INTO channel_routing_configs
            (channel, primary_provider, fallback_provider, routing_strategy, enable_fallback,
             max_retries, retry_strategy, initial_retry_delay_seconds, max_retry_delay_seconds,
             cost_threshold, is_active, priority, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		c.Channel, c.PrimaryProvider, c.FallbackProvider, c.RoutingStrategy, c.EnableFallback,
		c.MaxRetries, c.RetryStrategy, c.InitialRetryDelaySeconds, c.MaxRetryDelaySeconds,
		c.CostThreshold, c.IsActive, c.Priority, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *RoutingConfigRepository) Update(c *model.ChannelRoutingConfig) error {
	query := `
        UPDATE channel_routing_configs
        SET primary_provider=$1, fallback_provider=$2, routing_strategy=$3, enable_fallback=$4,
            max_retries=$5, retry_strategy=$6, initial_retry_delay_seconds=$7,
            max_retry_delay_seconds=$8, cost_threshold=$9, is_active=$10, priority=$11, updated_at=NOW()
        WHERE id=$12
    `
	_, err := r.DB.Exec(query,
		c.PrimaryProvider, c.FallbackProvider, c.RoutingStrategy, c.EnableFallback,
		c.MaxRetries, c.RetryStrategy, c.InitialRetryDelaySeconds,
		c.MaxRetryDelaySeconds, c.CostThreshold, c.IsActive, c.Priority, c.ID,
	)
	return err
}

func (r *RoutingConfigRepository) Delete(id int) (bool, error) {
	res, err := r.DB.Exec(`DELETE FROM channel_routing_configs WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
