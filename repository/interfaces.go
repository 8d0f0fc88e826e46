// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/relaymark/courier/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

// Persistence-level sentinel errors surfaced to the dispatch engine
var (
	// ErrStaleMessage means a guarded transition matched zero rows: another
	// worker already moved the message or its lock version changed.
	ErrStaleMessage = errors.New("campaign message is stale or already transitioned")

	// ErrAttemptExists means a ledger row with the same (message, attempt
	// number) already exists; the cycle being replayed already recorded it.
	ErrAttemptExists = errors.New("delivery attempt already recorded")
)

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// CampaignMessageRepository defines operations for campaign messages
type CampaignMessageRepository interface {
	Repository[models.CampaignMessage, models.CampaignMessageFilter]
	// ListDue returns dispatchable messages whose scheduled or retry time has
	// arrived, skipping rows locked by concurrent sweeps.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.CampaignMessage, error)
	// Transition applies a guarded status change fenced by the message's lock
	// version. Returns ErrStaleMessage when no row matched.
	Transition(ctx context.Context, msg *models.CampaignMessage, next models.MessageStatus, mutate func(*models.CampaignMessage)) error
	// Reschedule returns a message to pending, due again at dueAt
	Reschedule(ctx context.Context, msg *models.CampaignMessage, dueAt time.Time) error
	// RequeueStale returns messages stuck in Sending longer than olderThan
	// to pending, making a dispatcher crash recoverable.
	RequeueStale(ctx context.Context, now time.Time, olderThan time.Duration) (int64, error)
	MarkCanceledByCampaign(ctx context.Context, campaignID uint) (int64, error)
}

// DeliveryAttemptRepository is the append-only attempt ledger
type DeliveryAttemptRepository interface {
	// Append writes one ledger row; a duplicate (message, attempt number)
	// yields ErrAttemptExists and writes nothing.
	Append(ctx context.Context, attempt *models.MessageDeliveryAttempt) error
	ListByMessage(ctx context.Context, messageID uint) ([]*models.MessageDeliveryAttempt, error)
	NextAttemptNumber(ctx context.Context, messageID uint) (int, error)
	TotalCost(ctx context.Context, messageID uint) (float64, error)
}

// RoutingConfigRepository defines operations for channel routing configs
type RoutingConfigRepository interface {
	Repository[models.ChannelRoutingConfig, models.ChannelRoutingConfigFilter]
	// ListActiveByChannel returns active configs for the channel, tenant rows
	// and global rows together, ordered by priority ascending.
	ListActiveByChannel(ctx context.Context, channel models.Channel, tenantID uint) ([]*models.ChannelRoutingConfig, error)
}

// RateLimitRepository guards provider admission windows
type RateLimitRepository interface {
	Get(ctx context.Context, providerName string, providerType models.Channel, userID uint) (*models.ProviderRateLimit, error)
	Save(ctx context.Context, limit *models.ProviderRateLimit) error
	// Admit atomically resets an elapsed window and increments the counter
	// iff it is under the cap. Returns false when the provider is saturated.
	// A provider with no configured window is always admitted.
	Admit(ctx context.Context, providerName string, providerType models.Channel, userID uint, now time.Time) (bool, error)
}

// SuppressionRepository defines operations for suppression rules and entries
type SuppressionRepository interface {
	// IsListed checks the materialized suppression list for an effective
	// (non-reversed) entry covering recipient+channel, tenant or global.
	IsListed(ctx context.Context, recipient string, channel models.Channel, tenantID uint) (*models.SuppressionEntry, error)
	// ActiveRules returns active rules for the tenant plus global rules,
	// ordered by priority ascending then id ascending.
	ActiveRules(ctx context.Context, channel models.Channel, tenantID uint) ([]*models.SuppressionRule, error)
	// MarkTriggered atomically increments the rule's trigger counter
	MarkTriggered(ctx context.Context, ruleID uint, at time.Time) error
	AddEntry(ctx context.Context, entry *models.SuppressionEntry) error
	SaveRule(ctx context.Context, rule *models.SuppressionRule) error
}

// ComplianceRepository defines operations for per-tenant compliance settings
type ComplianceRepository interface {
	ByTenant(ctx context.Context, tenantID uint) (*models.ComplianceSetting, error)
	Save(ctx context.Context, setting *models.ComplianceSetting) error
}

// FrequencyControlRepository guards per-contact send caps
type FrequencyControlRepository interface {
	Get(ctx context.Context, tenantID, contactID uint) (*models.FrequencyControl, error)
	Save(ctx context.Context, fc *models.FrequencyControl) error
	// Reserve atomically rolls over elapsed periods and increments all
	// counters iff no cap would be exceeded. Returns false when capped.
	// A contact with no control row is always admitted.
	Reserve(ctx context.Context, tenantID, contactID uint, now time.Time) (bool, error)
	// Release compensates a reservation whose send attempt failed
	Release(ctx context.Context, tenantID, contactID uint) error
}

// CampaignVariantRepository defines operations for A/B variants
type CampaignVariantRepository interface {
	ByID(ctx context.Context, id uint) (*models.CampaignVariant, error)
	Save(ctx context.Context, variant *models.CampaignVariant) error
	IncrementSent(ctx context.Context, id uint) error
	IncrementDelivered(ctx context.Context, id uint) error
	IncrementFailed(ctx context.Context, id uint) error
}

// ContactRepository defines read operations for contacts
type ContactRepository interface {
	ByID(ctx context.Context, id uint) (*models.Contact, error)
	Save(ctx context.Context, contact *models.Contact) error
}

// DispatchReportRepository records terminal-state reports for analytics
type DispatchReportRepository interface {
	Append(ctx context.Context, record *models.DispatchReportRecord) error
	ByMessage(ctx context.Context, messageID uint) (*models.DispatchReportRecord, error)
}
