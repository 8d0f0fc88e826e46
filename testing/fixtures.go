// Package testing provides test utilities and database setup for testing the delivery engine
package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/relaymark/courier/models"
	"github.com/relaymark/courier/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestContact creates an opted-in SMS+email contact
func (tf *TestFixtures) CreateTestContact(tenantID uint) (*models.Contact, error) {
	randomDigits := fmt.Sprintf("%09d", rand.Intn(900000000)+100000000)

	contact := &models.Contact{
		TenantID:             tenantID,
		PhoneNumber:          utils.ToPtr("+1555" + randomDigits[:7]),
		Email:                utils.ToPtr(fmt.Sprintf("contact.%s@example.com", randomDigits)),
		SmsOptIn:             utils.ToPtr(true),
		MmsOptIn:             utils.ToPtr(true),
		EmailOptIn:           utils.ToPtr(true),
		DoubleOptInConfirmed: utils.ToPtr(true),
		TimeZone:             "UTC",
	}

	if err := tf.DB.DB.Create(contact).Error; err != nil {
		return nil, fmt.Errorf("failed to create test contact: %w", err)
	}
	return contact, nil
}

// CreateTestMessage creates a pending campaign message due immediately
func (tf *TestFixtures) CreateTestMessage(tenantID, campaignID uint, contact *models.Contact, channel models.Channel) (*models.CampaignMessage, error) {
	msg := &models.CampaignMessage{
		UUID:        uuid.New(),
		TenantID:    tenantID,
		CampaignID:  campaignID,
		ContactID:   contact.ID,
		Channel:     channel,
		Type:        models.MessageTypeMarketing,
		Recipient:   contact.AddressFor(channel),
		Body:        "Test message body",
		Status:      models.MessageStatusPending,
		MaxRetries:  utils.DefaultMaxRetries,
		ScheduledAt: utils.UTCNow().Add(-time.Minute),
	}

	if err := tf.DB.DB.Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to create test message: %w", err)
	}
	return msg, nil
}

// CreateTestRoutingConfig creates an active routing config for the channel
func (tf *TestFixtures) CreateTestRoutingConfig(channel models.Channel, primary string, fallback *string) (*models.ChannelRoutingConfig, error) {
	cfg := &models.ChannelRoutingConfig{
		Channel:                  channel,
		Priority:                 100,
		IsActive:                 utils.ToPtr(true),
		PrimaryProvider:          primary,
		FallbackProvider:         fallback,
		EnableFallback:           fallback != nil,
		RoutingStrategy:          models.RoutingStrategyPriority,
		RetryStrategy:            models.RetryStrategyExponential,
		InitialRetryDelaySeconds: 30,
		MaxRetryDelaySeconds:     3600,
	}

	if err := tf.DB.DB.Create(cfg).Error; err != nil {
		return nil, fmt.Errorf("failed to create test routing config: %w", err)
	}
	return cfg, nil
}

// CreateTestRateLimit creates an admission window for a provider
func (tf *TestFixtures) CreateTestRateLimit(provider string, channel models.Channel, maxRequests, windowSeconds int) (*models.ProviderRateLimit, error) {
	limit := &models.ProviderRateLimit{
		ProviderName:      provider,
		ProviderType:      channel,
		MaxRequests:       maxRequests,
		TimeWindowSeconds: windowSeconds,
		WindowStartTime:   utils.UTCNow(),
	}

	if err := tf.DB.DB.Create(limit).Error; err != nil {
		return nil, fmt.Errorf("failed to create test rate limit: %w", err)
	}
	return limit, nil
}

// CreateTestSuppressionRule creates an active manual rule for one recipient
func (tf *TestFixtures) CreateTestSuppressionRule(tenantID *uint, recipient string, channel models.Channel, priority int) (*models.SuppressionRule, error) {
	rule := &models.SuppressionRule{
		TenantID:         tenantID,
		Name:             fmt.Sprintf("block %s", recipient),
		Trigger:          models.SuppressionTriggerManual,
		Type:             models.SuppressionTypeOptOut,
		Channel:          channel,
		Priority:         priority,
		IsActive:         utils.ToPtr(true),
		RecipientPattern: &recipient,
	}

	if err := tf.DB.DB.Create(rule).Error; err != nil {
		return nil, fmt.Errorf("failed to create test suppression rule: %w", err)
	}
	return rule, nil
}

// CreateTestSuppressionEntry creates an effective list entry for a recipient
func (tf *TestFixtures) CreateTestSuppressionEntry(tenantID *uint, recipient string, channel models.Channel) (*models.SuppressionEntry, error) {
	entry := &models.SuppressionEntry{
		TenantID:  tenantID,
		Recipient: recipient,
		Channel:   channel,
		Type:      models.SuppressionTypeOptOut,
		Reason:    "test opt-out",
	}

	if err := tf.DB.DB.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create test suppression entry: %w", err)
	}
	return entry, nil
}

// CreateTestComplianceSetting creates a tenant policy with quiet hours disabled
func (tf *TestFixtures) CreateTestComplianceSetting(tenantID uint) (*models.ComplianceSetting, error) {
	setting := &models.ComplianceSetting{
		TenantID:           tenantID,
		EnforceSuppression: true,
		QuietHoursStart:    22 * 60,
		QuietHoursEnd:      7 * 60,
		QuietHoursTimeZone: "UTC",
	}

	if err := tf.DB.DB.Create(setting).Error; err != nil {
		return nil, fmt.Errorf("failed to create test compliance setting: %w", err)
	}
	return setting, nil
}

// CreateTestFrequencyControl creates a capped control row for a contact
func (tf *TestFixtures) CreateTestFrequencyControl(tenantID, contactID uint, perDay, perWeek, perMonth int) (*models.FrequencyControl, error) {
	now := utils.UTCNow()
	fc := &models.FrequencyControl{
		TenantID:       tenantID,
		ContactID:      contactID,
		MaxPerDay:      perDay,
		MaxPerWeek:     perWeek,
		MaxPerMonth:    perMonth,
		DayStartedAt:   now,
		WeekStartedAt:  now,
		MonthStartedAt: now,
	}

	if err := tf.DB.DB.Create(fc).Error; err != nil {
		return nil, fmt.Errorf("failed to create test frequency control: %w", err)
	}
	return fc, nil
}

// CreateTestVariant creates an A/B variant for a campaign
func (tf *TestFixtures) CreateTestVariant(campaignID uint, name string) (*models.CampaignVariant, error) {
	variant := &models.CampaignVariant{
		CampaignID: campaignID,
		Name:       name,
		Body:       "Variant body " + name,
	}

	if err := tf.DB.DB.Create(variant).Error; err != nil {
		return nil, fmt.Errorf("failed to create test variant: %w", err)
	}
	return variant, nil
}
