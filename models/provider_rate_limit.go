package models

import "time"

// ProviderRateLimit is a provider's admission window. CurrentRequestCount
// resets whenever the window has elapsed; a request is admitted only if the
// count is still under MaxRequests after any needed reset. The row is
// contended by every concurrently dispatching message for the provider, so
// all mutation goes through a single conditional UPDATE in the repository.
type ProviderRateLimit struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	ProviderName string  `gorm:"size:100;not null;uniqueIndex:uk_provider_rate_limits_scope,priority:1" json:"provider_name"`
	ProviderType Channel `gorm:"type:message_channel;not null;uniqueIndex:uk_provider_rate_limits_scope,priority:2" json:"provider_type"`
	// UserID scopes a window to one tenant user; 0 means the provider-wide window
	UserID uint `gorm:"not null;default:0;uniqueIndex:uk_provider_rate_limits_scope,priority:3" json:"user_id"`

	MaxRequests         int       `gorm:"not null" json:"max_requests"`
	TimeWindowSeconds   int       `gorm:"not null" json:"time_window_seconds"`
	CurrentRequestCount int       `gorm:"not null;default:0" json:"current_request_count"`
	WindowStartTime     time.Time `gorm:"not null" json:"window_start_time"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (ProviderRateLimit) TableName() string { return "provider_rate_limits" }

// WindowElapsed reports whether the admission window must be reset at now
func (p *ProviderRateLimit) WindowElapsed(now time.Time) bool {
	return now.Sub(p.WindowStartTime) >= time.Duration(p.TimeWindowSeconds)*time.Second
}

// ProviderRateLimitFilter provides filter fields for repository queries
type ProviderRateLimitFilter struct {
	ID           *uint
	ProviderName *string
	ProviderType *Channel
	UserID       *uint
}
