package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymark/courier/app/services"
	"github.com/relaymark/courier/models"
	"github.com/relaymark/courier/repository"
	"github.com/relaymark/courier/utils"
)

// dispatchHarness wires a dispatch flow against in-memory fakes and two
// scriptable transports behind one sms routing config.
type dispatchHarness struct {
	flow *dispatchFlow
	now  time.Time

	messages  *fakeMessageRepo
	attempts  *fakeAttemptRepo
	contacts  *fakeContactRepo
	variants  *fakeVariantRepo
	reports   *fakeReportRepo
	suppRepo  *fakeSuppressionRepo
	compRepo  *fakeComplianceRepo
	freqRepo  *fakeFrequencyRepo
	routeRepo *fakeRoutingRepo
	rateRepo  *fakeRateLimitRepo

	primary  *services.MockTransport
	fallback *services.MockTransport
}

func newDispatchHarness() *dispatchHarness {
	now := time.Date(2026, 3, 12, 15, 0, 0, 0, time.UTC)

	h := &dispatchHarness{
		now:       now,
		messages:  &fakeMessageRepo{},
		attempts:  &fakeAttemptRepo{},
		contacts:  &fakeContactRepo{contacts: map[uint]*models.Contact{}},
		variants:  newFakeVariantRepo(),
		reports:   &fakeReportRepo{},
		suppRepo:  newFakeSuppressionRepo(),
		compRepo:  &fakeComplianceRepo{settings: map[uint]*models.ComplianceSetting{}},
		freqRepo:  newFakeFrequencyRepo(),
		routeRepo: &fakeRoutingRepo{},
		rateRepo:  newFakeRateLimitRepo(),
		primary:   services.NewMockTransport("sms-primary"),
		fallback:  services.NewMockTransport("sms-backup"),
	}

	h.routeRepo.configs = []*models.ChannelRoutingConfig{{
		ID:                       1,
		Channel:                  models.ChannelSMS,
		Priority:                 100,
		IsActive:                 utils.ToPtr(true),
		PrimaryProvider:          "sms-primary",
		FallbackProvider:         utils.ToPtr("sms-backup"),
		EnableFallback:           true,
		RoutingStrategy:          models.RoutingStrategyPriority,
		RetryStrategy:            models.RetryStrategyExponential,
		InitialRetryDelaySeconds: 30,
		MaxRetryDelaySeconds:     3600,
	}}

	h.contacts.contacts[42] = &models.Contact{
		ID:                   42,
		TenantID:             7,
		PhoneNumber:          utils.ToPtr("+15550001111"),
		Email:                utils.ToPtr("alice@example.com"),
		SmsOptIn:             utils.ToPtr(true),
		MmsOptIn:             utils.ToPtr(true),
		EmailOptIn:           utils.ToPtr(true),
		DoubleOptInConfirmed: utils.ToPtr(true),
		TimeZone:             "UTC",
	}

	h.flow = &dispatchFlow{
		tx:              passthroughTx,
		transports:      services.NewRegistry(h.primary, h.fallback),
		suppression:     NewSuppressionFlow(h.suppRepo, h.compRepo),
		compliance:      NewComplianceFlow(h.compRepo),
		frequency:       NewFrequencyFlow(h.freqRepo),
		routing:         NewRoutingFlow(h.routeRepo, h.rateRepo, map[string]float64{"sms-primary": 0.01, "sms-backup": 0.02}),
		messages:        h.messages,
		attempts:        h.attempts,
		contacts:        h.contacts,
		variants:        h.variants,
		reports:         h.reports,
		providerTimeout: time.Second,
		now:             func() time.Time { return now },
	}
	return h
}

func (h *dispatchHarness) message() *models.CampaignMessage {
	return &models.CampaignMessage{
		ID:          1,
		UUID:        uuid.New(),
		TenantID:    7,
		CampaignID:  3,
		ContactID:   42,
		Channel:     models.ChannelSMS,
		Type:        models.MessageTypeMarketing,
		Recipient:   "+15550001111",
		Body:        "spring sale starts friday",
		Status:      models.MessageStatusPending,
		MaxRetries:  2,
		ScheduledAt: h.now.Add(-time.Minute),
	}
}

func TestDispatchDeliversOnFirstAttempt(t *testing.T) {
	h := newDispatchHarness()
	msg := h.message()
	msg.VariantID = utils.ToPtr(uint(9))

	outcome, err := h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, models.MessageStatusDelivered, outcome.Status)
	assert.Equal(t, 1, outcome.AttemptNumber)
	assert.Equal(t, "sms-primary", outcome.Provider)

	assert.Equal(t, models.MessageStatusDelivered, msg.Status)
	require.NotNil(t, msg.SentAt)
	require.NotNil(t, msg.DeliveredAt)
	assert.Equal(t, h.now, *msg.DeliveredAt)
	assert.InDelta(t, 0.01, msg.CostAmount, 1e-9)
	assert.Nil(t, msg.NextAttemptAt)

	require.Len(t, h.attempts.rows, 1)
	row := h.attempts.rows[0]
	assert.True(t, row.Success)
	assert.Equal(t, "sms-primary", row.ProviderName)
	assert.Equal(t, models.FallbackReasonNone, row.FallbackReason)
	require.NotNil(t, row.ExternalID)
	assert.NotEmpty(t, *row.ExternalID)

	require.Len(t, h.reports.rows, 1)
	report := h.reports.rows[0]
	assert.Equal(t, models.MessageStatusDelivered, report.FinalStatus)
	assert.Equal(t, 1, report.AttemptsTaken)
	assert.InDelta(t, 0.01, report.TotalCost, 1e-9)

	assert.Equal(t, 1, h.variants.sent[9])
	assert.Equal(t, 1, h.variants.delivered[9])
	assert.Equal(t, 0, h.variants.failed[9])

	assert.Equal(t, 1, h.freqRepo.reserved)
	assert.Equal(t, 0, h.freqRepo.released)
}

func TestDispatchIdempotencyKeyStableAcrossReplays(t *testing.T) {
	h := newDispatchHarness()
	msg := h.message()

	_, err := h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	sent := h.primary.SentRequests()
	require.Len(t, sent, 1)
	assert.Equal(t, msg.UUID.String()+"-1", sent[0].IdempotencyKey)
	assert.Equal(t, "+15550001111", sent[0].Recipient)
}

func TestDispatchRetriesThenFallsBack(t *testing.T) {
	h := newDispatchHarness()
	msg := h.message()

	h.primary.Script(services.SendOutcome{}, &services.SendError{Code: "gateway_busy", Message: "upstream queue full"})

	outcome, err := h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, models.MessageStatusPending, outcome.Status)
	assert.Equal(t, 1, msg.RetryCount)
	assert.False(t, msg.TriedFallback)
	require.NotNil(t, msg.NextAttemptAt)
	assert.Equal(t, h.now.Add(30*time.Second), *msg.NextAttemptAt)
	require.NotNil(t, msg.StatusReason)

	require.Len(t, h.attempts.rows, 1)
	first := h.attempts.rows[0]
	assert.False(t, first.Success)
	assert.Equal(t, "sms-primary", first.ProviderName)
	require.NotNil(t, first.ErrorCode)
	assert.Equal(t, "gateway_busy", *first.ErrorCode)
	assert.Equal(t, models.FallbackReasonNone, first.FallbackReason)

	// No report until the message reaches a terminal status
	assert.Empty(t, h.reports.rows)
	assert.Equal(t, 1, h.freqRepo.released)

	// Next cycle escalates away from the failed primary
	outcome, err = h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, models.MessageStatusDelivered, outcome.Status)
	assert.Equal(t, "sms-backup", outcome.Provider)
	assert.Equal(t, 2, outcome.AttemptNumber)

	require.Len(t, h.attempts.rows, 2)
	second := h.attempts.rows[1]
	assert.True(t, second.Success)
	assert.Equal(t, "sms-backup", second.ProviderName)
	assert.Equal(t, models.FallbackReasonProviderError, second.FallbackReason)

	require.Len(t, h.reports.rows, 1)
	assert.Equal(t, 2, h.reports.rows[0].AttemptsTaken)
}

func TestDispatchClassifiesTimeoutFallback(t *testing.T) {
	h := newDispatchHarness()
	msg := h.message()

	h.primary.Script(services.SendOutcome{}, context.DeadlineExceeded)

	_, err := h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	require.Len(t, h.attempts.rows, 1)
	require.NotNil(t, h.attempts.rows[0].ErrorCode)
	assert.Equal(t, "timeout", *h.attempts.rows[0].ErrorCode)

	outcome, err := h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, models.MessageStatusDelivered, outcome.Status)
	require.Len(t, h.attempts.rows, 2)
	assert.Equal(t, models.FallbackReasonTimeout, h.attempts.rows[1].FallbackReason)
}

func TestDispatchExhaustsAfterRetryBudget(t *testing.T) {
	h := newDispatchHarness()
	msg := h.message()
	msg.VariantID = utils.ToPtr(uint(9))

	failure := &services.SendError{Code: "gateway_busy", Message: "upstream queue full"}
	h.primary.Script(services.SendOutcome{}, failure)
	h.primary.Script(services.SendOutcome{}, failure)
	h.fallback.Script(services.SendOutcome{}, failure)

	// Cycle 1: primary fails, retry in 30s
	_, err := h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusPending, msg.Status)
	assert.Equal(t, 1, msg.RetryCount)
	assert.Equal(t, h.now.Add(30*time.Second), *msg.NextAttemptAt)

	// Cycle 2: escalates to the fallback, which also fails; backoff doubles
	_, err = h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusPending, msg.Status)
	assert.Equal(t, 2, msg.RetryCount)
	assert.True(t, msg.TriedFallback)
	assert.Equal(t, h.now.Add(60*time.Second), *msg.NextAttemptAt)

	// Cycle 3: back on the primary, final failure exhausts the budget
	outcome, err := h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, models.MessageStatusExhausted, outcome.Status)
	assert.Equal(t, models.MessageStatusExhausted, msg.Status)
	assert.Equal(t, 3, msg.RetryCount)
	assert.Nil(t, msg.NextAttemptAt)

	require.Len(t, h.attempts.rows, 3)
	assert.Equal(t, "sms-primary", h.attempts.rows[0].ProviderName)
	assert.Equal(t, "sms-backup", h.attempts.rows[1].ProviderName)
	assert.Equal(t, "sms-primary", h.attempts.rows[2].ProviderName)

	require.Len(t, h.reports.rows, 1)
	report := h.reports.rows[0]
	assert.Equal(t, models.MessageStatusExhausted, report.FinalStatus)
	assert.Equal(t, 3, report.AttemptsTaken)
	require.NotNil(t, report.Reason)

	assert.Equal(t, 1, h.variants.failed[9])
	assert.Equal(t, 0, h.variants.delivered[9])
	assert.Equal(t, 3, h.freqRepo.released)
}

func TestDispatchListedRecipientNeverReachesProvider(t *testing.T) {
	h := newDispatchHarness()
	msg := h.message()

	h.suppRepo.entries = append(h.suppRepo.entries, &models.SuppressionEntry{
		Recipient: "+15550001111",
		Channel:   models.ChannelAll,
		Type:      models.SuppressionTypeOptOut,
		Reason:    "user replied STOP",
	})

	outcome, err := h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, models.MessageStatusSuppressed, outcome.Status)
	assert.Equal(t, ReasonListed, outcome.Reason)
	assert.Equal(t, models.MessageStatusSuppressed, msg.Status)

	assert.Empty(t, h.attempts.rows)
	assert.Empty(t, h.primary.SentRequests())
	assert.Empty(t, h.fallback.SentRequests())
	assert.Equal(t, 0, h.freqRepo.reserved)

	require.Len(t, h.reports.rows, 1)
	assert.Equal(t, 0, h.reports.rows[0].AttemptsTaken)
	assert.Equal(t, models.MessageStatusSuppressed, h.reports.rows[0].FinalStatus)
}

func TestDispatchHonorsSuppressionEnforcementToggle(t *testing.T) {
	h := newDispatchHarness()
	h.compRepo.settings[7] = &models.ComplianceSetting{
		TenantID:           7,
		EnforceSuppression: false,
		QuietHoursTimeZone: "UTC",
	}
	h.suppRepo.entries = append(h.suppRepo.entries, &models.SuppressionEntry{
		Recipient: "+15550001111",
		Channel:   models.ChannelAll,
		Type:      models.SuppressionTypeOptOut,
		Reason:    "user replied STOP",
	})

	msg := h.message()
	outcome, err := h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	// With enforcement off the listed recipient still gets the message
	assert.Equal(t, models.MessageStatusDelivered, outcome.Status)
	require.Len(t, h.primary.SentRequests(), 1)
}

func TestDispatchConsentGates(t *testing.T) {
	t.Run("RevokedConsentSuppresses", func(t *testing.T) {
		h := newDispatchHarness()
		h.contacts.contacts[42].SmsOptIn = utils.ToPtr(false)
		msg := h.message()

		outcome, err := h.flow.Dispatch(context.Background(), msg)
		require.NoError(t, err)

		assert.Equal(t, models.MessageStatusSuppressed, outcome.Status)
		assert.Equal(t, ReasonConsentRevoked, outcome.Reason)
		assert.Empty(t, h.attempts.rows)
	})

	t.Run("TransactionalBypassesConsent", func(t *testing.T) {
		h := newDispatchHarness()
		h.contacts.contacts[42].SmsOptIn = utils.ToPtr(false)
		msg := h.message()
		msg.Type = models.MessageTypeTransactional

		outcome, err := h.flow.Dispatch(context.Background(), msg)
		require.NoError(t, err)

		assert.Equal(t, models.MessageStatusDelivered, outcome.Status)
	})

	t.Run("DoubleOptInRequired", func(t *testing.T) {
		h := newDispatchHarness()
		h.compRepo.settings[7] = &models.ComplianceSetting{
			TenantID:           7,
			RequireDoubleOptIn: true,
			QuietHoursTimeZone: "UTC",
		}
		h.contacts.contacts[42].DoubleOptInConfirmed = utils.ToPtr(false)
		msg := h.message()

		outcome, err := h.flow.Dispatch(context.Background(), msg)
		require.NoError(t, err)

		assert.Equal(t, models.MessageStatusSuppressed, outcome.Status)
		assert.Equal(t, ReasonDoubleOptIn, outcome.Reason)
	})
}

func TestDispatchDefersDuringQuietHours(t *testing.T) {
	h := newDispatchHarness()
	h.compRepo.settings[7] = &models.ComplianceSetting{
		TenantID:           7,
		EnableQuietHours:   true,
		QuietHoursStart:    22 * 60,
		QuietHoursEnd:      7 * 60,
		QuietHoursTimeZone: "UTC",
	}

	// 23:00 UTC is inside the 22:00-07:00 window
	night := time.Date(2026, 3, 12, 23, 0, 0, 0, time.UTC)
	h.flow.now = func() time.Time { return night }

	msg := h.message()
	outcome, err := h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	assert.True(t, outcome.Deferred)
	assert.Equal(t, models.MessageStatusPending, outcome.Status)
	assert.Equal(t, ReasonQuietHours, outcome.Reason)
	require.NotNil(t, outcome.NextAttemptAt)
	assert.Equal(t, time.Date(2026, 3, 13, 7, 0, 0, 0, time.UTC), *outcome.NextAttemptAt)

	assert.Equal(t, models.MessageStatusPending, msg.Status)
	assert.Equal(t, 0, msg.RetryCount)
	require.NotNil(t, msg.NextAttemptAt)
	assert.Equal(t, *outcome.NextAttemptAt, *msg.NextAttemptAt)

	assert.Empty(t, h.attempts.rows)
	assert.Equal(t, 0, h.freqRepo.reserved)
	assert.Empty(t, h.reports.rows)
}

func TestDispatchFrequencyCapSuppresses(t *testing.T) {
	h := newDispatchHarness()
	h.freqRepo.controls[frequencyKey(7, 42)] = &models.FrequencyControl{
		TenantID:       7,
		ContactID:      42,
		MaxPerDay:      1,
		SentToday:      1,
		SentThisWeek:   1,
		SentThisMonth:  1,
		DayStartedAt:   h.now.Add(-time.Hour),
		WeekStartedAt:  h.now.Add(-time.Hour),
		MonthStartedAt: h.now.Add(-time.Hour),
	}

	msg := h.message()
	outcome, err := h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, models.MessageStatusSuppressed, outcome.Status)
	assert.Equal(t, ReasonFrequencyCapped, outcome.Reason)
	assert.Empty(t, h.attempts.rows)
	assert.Empty(t, h.primary.SentRequests())
}

func TestDispatchPermanentFailureSuppressesAndLists(t *testing.T) {
	h := newDispatchHarness()
	msg := h.message()
	msg.VariantID = utils.ToPtr(uint(9))

	h.suppRepo.rules = append(h.suppRepo.rules, &models.SuppressionRule{
		ID:       5,
		Name:     "auto hard bounce",
		Trigger:  models.SuppressionTriggerAuto,
		Type:     models.SuppressionTypeHardBounce,
		Channel:  models.ChannelAll,
		Priority: 100,
		IsActive: utils.ToPtr(true),
	})

	h.primary.Script(services.SendOutcome{}, &services.SendError{Code: "hard_bounce", Message: "number disconnected"})

	outcome, err := h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, models.MessageStatusSuppressed, outcome.Status)
	assert.Equal(t, "provider reported hard_bounce", outcome.Reason)
	assert.Equal(t, models.MessageStatusSuppressed, msg.Status)

	// The attempt is still ledgered even though the message suppresses
	require.Len(t, h.attempts.rows, 1)
	row := h.attempts.rows[0]
	assert.False(t, row.Success)
	require.NotNil(t, row.ErrorCode)
	assert.Equal(t, "hard_bounce", *row.ErrorCode)

	// The recipient fed back into the suppression list
	require.Len(t, h.suppRepo.entries, 1)
	entry := h.suppRepo.entries[0]
	assert.Equal(t, "+15550001111", entry.Recipient)
	assert.Equal(t, models.SuppressionTypeHardBounce, entry.Type)
	require.NotNil(t, entry.SourceRuleID)
	assert.Equal(t, uint(5), *entry.SourceRuleID)
	assert.Equal(t, 1, h.suppRepo.triggered[5])

	require.Len(t, h.reports.rows, 1)
	assert.Equal(t, 1, h.variants.failed[9])
	assert.Equal(t, 1, h.freqRepo.released)
}

func TestDispatchRateLimitedPrimaryFallsBack(t *testing.T) {
	h := newDispatchHarness()
	h.rateRepo.remaining["sms-primary"] = 0

	msg := h.message()
	outcome, err := h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, models.MessageStatusDelivered, outcome.Status)
	assert.Equal(t, "sms-backup", outcome.Provider)

	require.Len(t, h.attempts.rows, 1)
	assert.Equal(t, models.FallbackReasonRateLimited, h.attempts.rows[0].FallbackReason)
	assert.Empty(t, h.primary.SentRequests())
	require.Len(t, h.fallback.SentRequests(), 1)
}

func TestDispatchNoRoutingConfigConsumesRetry(t *testing.T) {
	h := newDispatchHarness()
	h.routeRepo.configs = nil

	msg := h.message()
	outcome, err := h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, models.MessageStatusPending, outcome.Status)
	assert.Equal(t, 1, msg.RetryCount)
	require.NotNil(t, msg.NextAttemptAt)
	assert.Equal(t, h.now.Add(utils.DefaultInitialRetryDelay), *msg.NextAttemptAt)

	// Nothing reached a provider, so the ledger stays empty
	assert.Empty(t, h.attempts.rows)
	assert.Equal(t, 1, h.freqRepo.released)
}

func TestDispatchTerminalReplayIsNoOp(t *testing.T) {
	h := newDispatchHarness()
	msg := h.message()
	msg.Status = models.MessageStatusDelivered

	outcome, err := h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, models.MessageStatusDelivered, outcome.Status)
	assert.Empty(t, h.attempts.rows)
	assert.Empty(t, h.primary.SentRequests())
	assert.Empty(t, h.reports.rows)
}

func TestDispatchRejectsNonPendingMessage(t *testing.T) {
	h := newDispatchHarness()
	msg := h.message()
	msg.Status = models.MessageStatusSending

	_, err := h.flow.Dispatch(context.Background(), msg)
	assert.ErrorIs(t, err, ErrMessageNotPending)
}

func TestDispatchLedgerWriteFailureUnwindsCycle(t *testing.T) {
	h := newDispatchHarness()
	msg := h.message()

	h.attempts.appendErr = assert.AnError

	_, err := h.flow.Dispatch(context.Background(), msg)
	require.ErrorIs(t, err, ErrLedgerWriteFailed)

	// The failed cycle unwound: back to pending and immediately due, with
	// the frequency reservation released and no retry consumed
	assert.Equal(t, models.MessageStatusPending, msg.Status)
	require.NotNil(t, msg.NextAttemptAt)
	assert.Equal(t, h.now, *msg.NextAttemptAt)
	assert.Equal(t, 0, msg.RetryCount)
	assert.Equal(t, 1, h.freqRepo.reserved)
	assert.Equal(t, 1, h.freqRepo.released)
	assert.Empty(t, h.attempts.rows)
	assert.Empty(t, h.reports.rows)

	// The replay runs the same attempt with the same idempotency key
	outcome, err := h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusDelivered, outcome.Status)
	assert.Equal(t, 1, outcome.AttemptNumber)

	sent := h.primary.SentRequests()
	require.Len(t, sent, 2)
	assert.Equal(t, sent[0].IdempotencyKey, sent[1].IdempotencyKey)
}

func TestDispatchLostClaimReleasesReservation(t *testing.T) {
	h := newDispatchHarness()
	h.messages.transitionErr = repository.ErrStaleMessage

	msg := h.message()
	_, err := h.flow.Dispatch(context.Background(), msg)

	assert.ErrorIs(t, err, ErrMessageClaimed)
	assert.Equal(t, 1, h.freqRepo.reserved)
	assert.Equal(t, 1, h.freqRepo.released)
	assert.Empty(t, h.primary.SentRequests())
}

func TestDispatchMissingContactSuppresses(t *testing.T) {
	h := newDispatchHarness()
	delete(h.contacts.contacts, 42)

	msg := h.message()
	outcome, err := h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, models.MessageStatusSuppressed, outcome.Status)
	assert.Equal(t, ReasonContactMissing, outcome.Reason)
}

func TestDispatchMissingAddressSuppresses(t *testing.T) {
	h := newDispatchHarness()
	h.contacts.contacts[42].PhoneNumber = nil

	msg := h.message()
	msg.Recipient = ""

	outcome, err := h.flow.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, models.MessageStatusSuppressed, outcome.Status)
	assert.Equal(t, ReasonNoAddress, outcome.Reason)
}

func TestBackoffDelay(t *testing.T) {
	t.Run("DefaultsWithoutConfig", func(t *testing.T) {
		assert.Equal(t, 30*time.Second, backoffDelay(nil, 1))
		assert.Equal(t, 60*time.Second, backoffDelay(nil, 2))
		assert.Equal(t, 240*time.Second, backoffDelay(nil, 4))
		// 30s doubled past the hour cap clamps to the cap
		assert.Equal(t, time.Hour, backoffDelay(nil, 12))
	})

	t.Run("FixedStrategy", func(t *testing.T) {
		cfg := &models.ChannelRoutingConfig{
			RetryStrategy:            models.RetryStrategyFixed,
			InitialRetryDelaySeconds: 45,
			MaxRetryDelaySeconds:     3600,
		}
		assert.Equal(t, 45*time.Second, backoffDelay(cfg, 1))
		assert.Equal(t, 45*time.Second, backoffDelay(cfg, 5))
	})

	t.Run("ExponentialClampsAtMax", func(t *testing.T) {
		cfg := &models.ChannelRoutingConfig{
			RetryStrategy:            models.RetryStrategyExponential,
			InitialRetryDelaySeconds: 60,
			MaxRetryDelaySeconds:     300,
		}
		assert.Equal(t, 60*time.Second, backoffDelay(cfg, 1))
		assert.Equal(t, 120*time.Second, backoffDelay(cfg, 2))
		assert.Equal(t, 240*time.Second, backoffDelay(cfg, 3))
		assert.Equal(t, 300*time.Second, backoffDelay(cfg, 4))
		assert.Equal(t, 300*time.Second, backoffDelay(cfg, 10))
	})

	t.Run("ZeroRetryTreatedAsFirst", func(t *testing.T) {
		assert.Equal(t, 30*time.Second, backoffDelay(nil, 0))
	})
}
