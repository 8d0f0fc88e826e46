package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageStatus represents the delivery lifecycle state of a campaign message
type MessageStatus string

const (
	MessageStatusPending    MessageStatus = "pending"
	MessageStatusSending    MessageStatus = "sending"
	MessageStatusDelivered  MessageStatus = "delivered"
	MessageStatusSuppressed MessageStatus = "suppressed"
	MessageStatusExhausted  MessageStatus = "exhausted"
	MessageStatusCanceled   MessageStatus = "canceled"
)

// String returns the string representation of the status
func (s MessageStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s MessageStatus) Valid() bool {
	switch s {
	case MessageStatusPending, MessageStatusSending, MessageStatusDelivered,
		MessageStatusSuppressed, MessageStatusExhausted, MessageStatusCanceled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status may never be left again
func (s MessageStatus) Terminal() bool {
	switch s {
	case MessageStatusDelivered, MessageStatusSuppressed, MessageStatusExhausted, MessageStatusCanceled:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces the monotonic state machine: pending<->sending
// plus one-way edges into the terminal states.
func (s MessageStatus) CanTransitionTo(next MessageStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case MessageStatusPending:
		// pending -> pending is a quiet-hours reschedule
		return next == MessageStatusPending || next == MessageStatusSending ||
			next == MessageStatusSuppressed || next == MessageStatusCanceled
	case MessageStatusSending:
		// sending -> suppressed happens on a provider-signaled dead recipient
		return next == MessageStatusPending || next == MessageStatusDelivered ||
			next == MessageStatusExhausted || next == MessageStatusSuppressed ||
			next == MessageStatusCanceled
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for MessageStatus
func (s *MessageStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = MessageStatus(v)
	case []byte:
		*s = MessageStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into MessageStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for MessageStatus
func (s MessageStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid MessageStatus: %s", s)
	}
	return string(s), nil
}

// CampaignMessage is one message owed to one contact for one campaign.
// The dispatcher is the only mutator after creation; rows are soft-deleted,
// never removed.
type CampaignMessage struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_campaign_messages_uuid" json:"uuid"`
	TenantID   uint      `gorm:"not null;index:idx_campaign_messages_tenant_id" json:"tenant_id"`
	CampaignID uint      `gorm:"not null;index:idx_campaign_messages_campaign_id" json:"campaign_id"`
	ContactID  uint      `gorm:"not null;index:idx_campaign_messages_contact_id" json:"contact_id"`
	VariantID  *uint     `gorm:"index:idx_campaign_messages_variant_id" json:"variant_id,omitempty"`

	Channel   Channel     `gorm:"type:message_channel;not null" json:"channel"`
	Type      MessageType `gorm:"type:message_type;not null;default:'marketing'" json:"type"`
	Recipient string      `gorm:"size:320;not null;index:idx_campaign_messages_recipient" json:"recipient"`
	Subject   *string     `gorm:"size:500" json:"subject,omitempty"`
	Body      string      `gorm:"type:text;not null" json:"body"`
	MediaURL  *string     `gorm:"size:2048" json:"media_url,omitempty"`

	Status        MessageStatus `gorm:"type:message_status;not null;default:'pending';index:idx_campaign_messages_status" json:"status"`
	StatusReason  *string       `gorm:"size:500" json:"status_reason,omitempty"`
	RetryCount    int           `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries    int           `gorm:"not null;default:3" json:"max_retries"`
	TriedFallback bool          `gorm:"not null;default:false" json:"tried_fallback"`
	CostAmount    float64       `gorm:"type:numeric(12,6);not null;default:0" json:"cost_amount"`

	// LockVersion fences concurrent dispatch cycles; every guarded status
	// transition increments it.
	LockVersion uint `gorm:"not null;default:0" json:"lock_version"`

	ScheduledAt   time.Time  `gorm:"not null;index:idx_campaign_messages_scheduled_at" json:"scheduled_at"`
	NextAttemptAt *time.Time `gorm:"index:idx_campaign_messages_next_attempt_at" json:"next_attempt_at,omitempty"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`

	CreatedAt time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (CampaignMessage) TableName() string { return "campaign_messages" }

// RetriesRemaining reports whether another attempt is allowed after a failure
func (m *CampaignMessage) RetriesRemaining() bool {
	return m.RetryCount <= m.MaxRetries
}

// CampaignMessageFilter provides filter fields for repository queries
type CampaignMessageFilter struct {
	ID            *uint
	TenantID      *uint
	CampaignID    *uint
	ContactID     *uint
	Channel       *Channel
	Status        *MessageStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
