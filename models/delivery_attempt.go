package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// FallbackReason explains why an attempt ran against a fallback provider
type FallbackReason string

const (
	FallbackReasonNone          FallbackReason = "none"
	FallbackReasonRateLimited   FallbackReason = "rate_limited"
	FallbackReasonProviderError FallbackReason = "provider_error"
	FallbackReasonTimeout       FallbackReason = "timeout"
	FallbackReasonSuppressed    FallbackReason = "suppressed"
)

// Valid checks if the fallback reason is valid
func (f FallbackReason) Valid() bool {
	switch f {
	case FallbackReasonNone, FallbackReasonRateLimited, FallbackReasonProviderError,
		FallbackReasonTimeout, FallbackReasonSuppressed:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for FallbackReason
func (f *FallbackReason) Scan(value any) error {
	if value == nil {
		*f = FallbackReasonNone
		return nil
	}

	switch v := value.(type) {
	case string:
		*f = FallbackReason(v)
	case []byte:
		*f = FallbackReason(string(v))
	default:
		return fmt.Errorf("cannot scan %T into FallbackReason", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for FallbackReason
func (f FallbackReason) Value() (driver.Value, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid FallbackReason: %s", f)
	}
	return string(f), nil
}

// MessageDeliveryAttempt records a single provider call for a campaign
// message. Rows are append-only: never updated, never deleted. The unique
// (message_id, attempt_number) index is what makes dispatch retries
// idempotent after a ledger write failure.
type MessageDeliveryAttempt struct {
	ID            uint `gorm:"primaryKey" json:"id"`
	MessageID     uint `gorm:"not null;index:idx_delivery_attempts_message_id;uniqueIndex:uk_delivery_attempts_message_attempt,priority:1" json:"message_id"`
	AttemptNumber int  `gorm:"not null;uniqueIndex:uk_delivery_attempts_message_attempt,priority:2" json:"attempt_number"`

	Channel        Channel        `gorm:"type:message_channel;not null" json:"channel"`
	ProviderName   string         `gorm:"size:100;not null;index:idx_delivery_attempts_provider" json:"provider_name"`
	IdempotencyKey string         `gorm:"size:64;not null" json:"idempotency_key"`
	Success        bool           `gorm:"not null" json:"success"`
	ExternalID     *string        `gorm:"size:128" json:"external_id,omitempty"`
	ErrorCode      *string        `gorm:"size:64" json:"error_code,omitempty"`
	ErrorMessage   *string        `gorm:"size:1000" json:"error_message,omitempty"`
	CostAmount     float64        `gorm:"type:numeric(12,6);not null;default:0" json:"cost_amount"`
	ResponseTimeMs int64          `gorm:"not null;default:0" json:"response_time_ms"`
	FallbackReason FallbackReason `gorm:"type:fallback_reason;not null;default:'none'" json:"fallback_reason"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_delivery_attempts_created_at" json:"created_at"`
}

func (MessageDeliveryAttempt) TableName() string { return "message_delivery_attempts" }

// MessageDeliveryAttemptFilter provides filter fields for repository queries
type MessageDeliveryAttemptFilter struct {
	ID            *uint
	MessageID     *uint
	ProviderName  *string
	Success       *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
