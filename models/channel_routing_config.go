package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// RoutingStrategy decides how a provider is picked among a config's candidates
type RoutingStrategy string

const (
	// RoutingStrategyPriority walks configs in priority order, primary then fallback
	RoutingStrategyPriority RoutingStrategy = "priority"
	// RoutingStrategyRoundRobin alternates primary/fallback by attempt number
	RoutingStrategyRoundRobin RoutingStrategy = "round_robin"
	// RoutingStrategyLeastCost prefers the cheaper of primary/fallback
	RoutingStrategyLeastCost RoutingStrategy = "least_cost"
)

// Valid checks if the routing strategy is valid
func (r RoutingStrategy) Valid() bool {
	switch r {
	case RoutingStrategyPriority, RoutingStrategyRoundRobin, RoutingStrategyLeastCost:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for RoutingStrategy
func (r *RoutingStrategy) Scan(value any) error {
	if value == nil {
		*r = RoutingStrategyPriority
		return nil
	}

	switch v := value.(type) {
	case string:
		*r = RoutingStrategy(v)
	case []byte:
		*r = RoutingStrategy(string(v))
	default:
		return fmt.Errorf("cannot scan %T into RoutingStrategy", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for RoutingStrategy
func (r RoutingStrategy) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid RoutingStrategy: %s", r)
	}
	return string(r), nil
}

// RetryStrategy decides how backoff delays grow across retries
type RetryStrategy string

const (
	RetryStrategyFixed       RetryStrategy = "fixed"
	RetryStrategyExponential RetryStrategy = "exponential"
)

// Valid checks if the retry strategy is valid
func (r RetryStrategy) Valid() bool {
	return r == RetryStrategyFixed || r == RetryStrategyExponential
}

// ChannelRoutingConfig is the per-channel routing policy. Read-mostly;
// multiple rows per channel are allowed for staged rollout, ordered by
// ascending Priority.
type ChannelRoutingConfig struct {
	ID       uint     `gorm:"primaryKey" json:"id"`
	TenantID *uint    `gorm:"index:idx_routing_configs_tenant_id" json:"tenant_id,omitempty"`
	Channel  Channel  `gorm:"type:message_channel;not null;index:idx_routing_configs_channel" json:"channel"`
	Priority int      `gorm:"not null;default:100" json:"priority"`
	IsActive *bool    `gorm:"not null;default:true" json:"is_active"`

	PrimaryProvider  string  `gorm:"size:100;not null" json:"primary_provider" validate:"required"`
	FallbackProvider *string `gorm:"size:100" json:"fallback_provider,omitempty"`
	EnableFallback   bool    `gorm:"not null;default:true" json:"enable_fallback"`

	RoutingStrategy RoutingStrategy `gorm:"type:routing_strategy;not null;default:'priority'" json:"routing_strategy"`
	RetryStrategy   RetryStrategy   `gorm:"type:retry_strategy;not null;default:'exponential'" json:"retry_strategy"`

	InitialRetryDelaySeconds int      `gorm:"not null;default:30" json:"initial_retry_delay_seconds" validate:"gte=1"`
	MaxRetryDelaySeconds     int      `gorm:"not null;default:3600" json:"max_retry_delay_seconds" validate:"gtefield=InitialRetryDelaySeconds"`
	CostThreshold            *float64 `gorm:"type:numeric(12,6)" json:"cost_threshold,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (ChannelRoutingConfig) TableName() string { return "channel_routing_configs" }

// InitialRetryDelay returns the configured initial delay as a duration
func (c *ChannelRoutingConfig) InitialRetryDelay() time.Duration {
	return time.Duration(c.InitialRetryDelaySeconds) * time.Second
}

// MaxRetryDelay returns the configured maximum delay as a duration
func (c *ChannelRoutingConfig) MaxRetryDelay() time.Duration {
	return time.Duration(c.MaxRetryDelaySeconds) * time.Second
}

// ChannelRoutingConfigFilter provides filter fields for repository queries
type ChannelRoutingConfigFilter struct {
	ID       *uint
	TenantID *uint
	Channel  *Channel
	IsActive *bool
}
