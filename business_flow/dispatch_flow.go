package businessflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/relaymark/courier/app/services"
	"github.com/relaymark/courier/models"
	"github.com/relaymark/courier/repository"
	"github.com/relaymark/courier/utils"
)

// DispatchFlow runs the full dispatch cycle for one due campaign message:
// gates, provider selection, the provider call, the ledger append and the
// resulting status transition.
type DispatchFlow interface {
	Dispatch(ctx context.Context, msg *models.CampaignMessage) (*DispatchOutcome, error)
}

type dispatchFlow struct {
	db *gorm.DB
	// tx wraps a unit of work in one database transaction
	tx         func(ctx context.Context, fn func(context.Context) error) error
	transports *services.Registry

	suppression SuppressionFlow
	compliance  ComplianceFlow
	frequency   FrequencyFlow
	routing     RoutingFlow

	messages repository.CampaignMessageRepository
	attempts repository.DeliveryAttemptRepository
	contacts repository.ContactRepository
	variants repository.CampaignVariantRepository
	reports  repository.DispatchReportRepository

	providerTimeout time.Duration
	now             func() time.Time
}

func NewDispatchFlow(
	db *gorm.DB,
	transports *services.Registry,
	suppression SuppressionFlow,
	compliance ComplianceFlow,
	frequency FrequencyFlow,
	routing RoutingFlow,
	messages repository.CampaignMessageRepository,
	attempts repository.DeliveryAttemptRepository,
	contacts repository.ContactRepository,
	variants repository.CampaignVariantRepository,
	reports repository.DispatchReportRepository,
	providerTimeout time.Duration,
) DispatchFlow {
	if providerTimeout <= 0 {
		providerTimeout = utils.DefaultProviderTimeout
	}
	return &dispatchFlow{
		db: db,
		tx: func(ctx context.Context, fn func(context.Context) error) error {
			return repository.WithTransaction(ctx, db, fn)
		},
		transports:      transports,
		suppression:     suppression,
		compliance:      compliance,
		frequency:       frequency,
		routing:         routing,
		messages:        messages,
		attempts:        attempts,
		contacts:        contacts,
		variants:        variants,
		reports:         reports,
		providerTimeout: providerTimeout,
		now:             utils.UTCNow,
	}
}

// Error codes a provider reports for failures that will never succeed on
// retry. These short-circuit the retry ladder into suppression.
var permanentErrorCodes = map[string]models.SuppressionType{
	"hard_bounce":       models.SuppressionTypeHardBounce,
	"invalid_recipient": models.SuppressionTypeHardBounce,
	"complaint":         models.SuppressionTypeComplaint,
	"spam_trap":         models.SuppressionTypeSpamTrap,
}

func (f *dispatchFlow) Dispatch(ctx context.Context, msg *models.CampaignMessage) (*DispatchOutcome, error) {
	// Replaying a message that already finished is a no-op, not an error
	if msg.Status.Terminal() {
		return &DispatchOutcome{
			MessageID: msg.ID,
			Status:    msg.Status,
			Reason:    utils.ValueOr(msg.StatusReason, ""),
		}, nil
	}
	if msg.Status != models.MessageStatusPending {
		return nil, ErrMessageNotPending
	}

	now := f.now()

	contact, err := f.contacts.ByID(ctx, msg.ContactID)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return f.suppress(ctx, msg, ReasonContactMissing, nil)
	}

	recipient := msg.Recipient
	if recipient == "" {
		recipient = contact.AddressFor(msg.Channel)
	}
	if recipient == "" {
		return f.suppress(ctx, msg, ReasonNoAddress, nil)
	}

	// Gate order is fixed: suppression, compliance, frequency
	gate, err := f.suppression.Evaluate(ctx, recipient, msg.Channel, msg.TenantID)
	if err != nil {
		return nil, err
	}
	if !gate.Allowed {
		return f.suppress(ctx, msg, gate.Reason, gate.MatchedRuleID)
	}

	gate, err = f.compliance.Check(ctx, msg, contact, now)
	if err != nil {
		return nil, err
	}
	if !gate.Allowed {
		if gate.Deferred {
			// Quiet hours: push the message to the window's end without
			// consuming a retry
			if err := f.messages.Reschedule(ctx, msg, *gate.NextAllowedAt); err != nil {
				return nil, f.claimError(err)
			}
			return &DispatchOutcome{
				MessageID:     msg.ID,
				Status:        models.MessageStatusPending,
				Deferred:      true,
				NextAttemptAt: gate.NextAllowedAt,
				Reason:        gate.Reason,
			}, nil
		}
		return f.suppress(ctx, msg, gate.Reason, nil)
	}

	gate, err = f.frequency.Reserve(ctx, msg.TenantID, msg.ContactID, now)
	if err != nil {
		return nil, err
	}
	if !gate.Allowed {
		return f.suppress(ctx, msg, gate.Reason, nil)
	}

	// Claim the message before touching any provider. Losing the race here
	// means another worker owns this cycle.
	if err := f.messages.Transition(ctx, msg, models.MessageStatusSending, nil); err != nil {
		f.releaseReservation(ctx, msg)
		return nil, f.claimError(err)
	}

	outcome, err := f.attemptSend(ctx, msg, recipient, now)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// attemptSend runs one provider attempt for a message already in Sending.
// Every path out of here either lands the message in a durable state or
// returns an error with the frequency reservation released.
func (f *dispatchFlow) attemptSend(ctx context.Context, msg *models.CampaignMessage, recipient string, now time.Time) (*DispatchOutcome, error) {
	attemptNumber, err := f.attempts.NextAttemptNumber(ctx, msg.ID)
	if err != nil {
		return nil, f.abortAttempt(ctx, msg, now, err)
	}

	prev, err := f.lastAttempt(ctx, msg.ID, attemptNumber)
	if err != nil {
		return nil, f.abortAttempt(ctx, msg, now, err)
	}
	skip := ""
	if prev != nil && !prev.Success && !msg.TriedFallback {
		skip = prev.ProviderName
	}

	choice, err := f.routing.SelectProvider(ctx, msg.Channel, msg.TenantID, attemptNumber, skip)
	if errors.Is(err, ErrNoProviderAvailable) || errors.Is(err, ErrNoRoutingConfig) || errors.Is(err, ErrRoutingConfigInvalid) {
		// Nothing reached a provider: no ledger row, but the failed cycle
		// still consumes a retry so a dead channel cannot loop forever
		return f.recordFailure(ctx, msg, nil, nil, now, err.Error())
	}
	if err != nil {
		return nil, f.abortAttempt(ctx, msg, now, err)
	}

	transport, err := f.transports.Lookup(choice.Provider)
	if err != nil {
		return nil, f.abortAttempt(ctx, msg, now, err)
	}

	req := services.SendRequest{
		MessageID:      msg.ID,
		IdempotencyKey: fmt.Sprintf("%s-%d", msg.UUID, attemptNumber),
		Channel:        msg.Channel,
		Recipient:      recipient,
		Subject:        utils.ValueOr(msg.Subject, ""),
		Body:           msg.Body,
		MediaURL:       utils.ValueOr(msg.MediaURL, ""),
	}

	sendCtx, cancel := context.WithTimeout(ctx, f.providerTimeout)
	started := time.Now()
	result, sendErr := transport.Send(sendCtx, req)
	cancel()
	elapsedMs := time.Since(started).Milliseconds()

	attempt := &models.MessageDeliveryAttempt{
		MessageID:      msg.ID,
		AttemptNumber:  attemptNumber,
		Channel:        msg.Channel,
		ProviderName:   choice.Provider,
		IdempotencyKey: req.IdempotencyKey,
		ResponseTimeMs: elapsedMs,
		FallbackReason: f.fallbackReason(choice, prev),
	}

	if sendErr == nil {
		attempt.Success = true
		if result.ExternalID != "" {
			attempt.ExternalID = utils.ToPtr(result.ExternalID)
		}
		attempt.CostAmount = result.CostAmount
		return f.recordSuccess(ctx, msg, attempt, result, now)
	}

	code := services.ErrorCode(sendErr)
	if code == "" && errors.Is(sendErr, context.DeadlineExceeded) {
		code = "timeout"
	}
	if code != "" {
		attempt.ErrorCode = utils.ToPtr(code)
	}
	attempt.ErrorMessage = utils.ToPtr(truncate(sendErr.Error(), 1000))

	if sType, permanent := permanentErrorCodes[code]; permanent {
		return f.recordPermanentFailure(ctx, msg, attempt, recipient, sType, now)
	}
	return f.recordFailure(ctx, msg, attempt, choice, now, sendErr.Error())
}

// recordSuccess persists the attempt row, the Delivered transition, the
// variant counters and the report in one transaction.
func (f *dispatchFlow) recordSuccess(ctx context.Context, msg *models.CampaignMessage, attempt *models.MessageDeliveryAttempt, result services.SendOutcome, now time.Time) (*DispatchOutcome, error) {
	err := f.tx(ctx, func(txCtx context.Context) error {
		if err := f.appendLedger(txCtx, attempt); err != nil {
			return err
		}
		err := f.messages.Transition(txCtx, msg, models.MessageStatusDelivered, func(m *models.CampaignMessage) {
			m.SentAt = &now
			m.DeliveredAt = &now
			m.CostAmount += result.CostAmount
			m.NextAttemptAt = nil
			m.StatusReason = nil
		})
		if err != nil {
			return err
		}
		if msg.VariantID != nil {
			if err := f.variants.IncrementSent(txCtx, *msg.VariantID); err != nil {
				return err
			}
			if err := f.variants.IncrementDelivered(txCtx, *msg.VariantID); err != nil {
				return err
			}
		}
		return f.appendReport(txCtx, msg, attempt.AttemptNumber, nil)
	})
	if err != nil {
		return nil, f.unwindCycle(ctx, msg, now, err)
	}
	return &DispatchOutcome{
		MessageID:     msg.ID,
		Status:        models.MessageStatusDelivered,
		AttemptNumber: attempt.AttemptNumber,
		Provider:      attempt.ProviderName,
	}, nil
}

// recordFailure persists a failed attempt (when one reached a provider) and
// either schedules the retry or exhausts the message. attempt and choice are
// nil when no provider was available at all.
func (f *dispatchFlow) recordFailure(ctx context.Context, msg *models.CampaignMessage, attempt *models.MessageDeliveryAttempt, choice *ProviderChoice, now time.Time, reason string) (*DispatchOutcome, error) {
	retryCount := msg.RetryCount + 1
	exhausted := retryCount > msg.MaxRetries

	var cfg *models.ChannelRoutingConfig
	usedFallback := false
	attemptNumber := 0
	if choice != nil {
		cfg = choice.Config
		usedFallback = choice.IsFallback
	}
	if attempt != nil {
		attemptNumber = attempt.AttemptNumber
	}

	var dueAt time.Time
	if !exhausted {
		dueAt = now.Add(backoffDelay(cfg, retryCount))
	}

	err := f.tx(ctx, func(txCtx context.Context) error {
		if attempt != nil {
			if err := f.appendLedger(txCtx, attempt); err != nil {
				return err
			}
		}
		if err := f.frequency.Release(txCtx, msg.TenantID, msg.ContactID); err != nil {
			return err
		}
		if !exhausted {
			return f.messages.Transition(txCtx, msg, models.MessageStatusPending, func(m *models.CampaignMessage) {
				m.RetryCount = retryCount
				m.NextAttemptAt = &dueAt
				m.FailedAt = &now
				m.StatusReason = utils.ToPtr(truncate(reason, 500))
				if usedFallback {
					m.TriedFallback = true
				}
			})
		}
		err := f.messages.Transition(txCtx, msg, models.MessageStatusExhausted, func(m *models.CampaignMessage) {
			m.RetryCount = retryCount
			m.NextAttemptAt = nil
			m.FailedAt = &now
			m.StatusReason = utils.ToPtr(truncate(reason, 500))
			if usedFallback {
				m.TriedFallback = true
			}
		})
		if err != nil {
			return err
		}
		if msg.VariantID != nil {
			if err := f.variants.IncrementFailed(txCtx, *msg.VariantID); err != nil {
				return err
			}
		}
		return f.appendReport(txCtx, msg, attemptNumber, utils.ToPtr(truncate(reason, 500)))
	})
	if err != nil {
		return nil, f.unwindCycle(ctx, msg, now, err)
	}

	out := &DispatchOutcome{
		MessageID:     msg.ID,
		Status:        msg.Status,
		AttemptNumber: attemptNumber,
		Reason:        reason,
	}
	if attempt != nil {
		out.Provider = attempt.ProviderName
	}
	if !exhausted {
		out.NextAttemptAt = &dueAt
	}
	return out, nil
}

// recordPermanentFailure handles provider-signaled dead recipients: the
// attempt is still ledgered, but the message suppresses instead of retrying
// and the recipient feeds back into the suppression list.
func (f *dispatchFlow) recordPermanentFailure(ctx context.Context, msg *models.CampaignMessage, attempt *models.MessageDeliveryAttempt, recipient string, sType models.SuppressionType, now time.Time) (*DispatchOutcome, error) {
	reason := fmt.Sprintf("provider reported %s", sType)
	err := f.tx(ctx, func(txCtx context.Context) error {
		if err := f.appendLedger(txCtx, attempt); err != nil {
			return err
		}
		if err := f.frequency.Release(txCtx, msg.TenantID, msg.ContactID); err != nil {
			return err
		}
		err := f.messages.Transition(txCtx, msg, models.MessageStatusSuppressed, func(m *models.CampaignMessage) {
			m.NextAttemptAt = nil
			m.FailedAt = &now
			m.StatusReason = &reason
		})
		if err != nil {
			return err
		}
		if msg.VariantID != nil {
			if err := f.variants.IncrementFailed(txCtx, *msg.VariantID); err != nil {
				return err
			}
		}
		return f.appendReport(txCtx, msg, attempt.AttemptNumber, &reason)
	})
	if err != nil {
		return nil, f.unwindCycle(ctx, msg, now, err)
	}

	if err := f.suppression.RecordDeliveryFailure(ctx, recipient, msg.Channel, msg.TenantID, sType); err != nil {
		// The message already landed; list materialization is best-effort
		_ = err
	}

	return &DispatchOutcome{
		MessageID:     msg.ID,
		Status:        models.MessageStatusSuppressed,
		AttemptNumber: attempt.AttemptNumber,
		Provider:      attempt.ProviderName,
		Reason:        reason,
	}, nil
}

// suppress moves a pending message straight to Suppressed and reports it
func (f *dispatchFlow) suppress(ctx context.Context, msg *models.CampaignMessage, reason string, ruleID *uint) (*DispatchOutcome, error) {
	now := f.now()
	err := f.tx(ctx, func(txCtx context.Context) error {
		err := f.messages.Transition(txCtx, msg, models.MessageStatusSuppressed, func(m *models.CampaignMessage) {
			m.NextAttemptAt = nil
			m.FailedAt = &now
			m.StatusReason = utils.ToPtr(truncate(reason, 500))
		})
		if err != nil {
			return err
		}
		next, err := f.attempts.NextAttemptNumber(txCtx, msg.ID)
		if err != nil {
			return err
		}
		return f.appendReport(txCtx, msg, next-1, utils.ToPtr(reason))
	})
	if err != nil {
		return nil, f.claimError(err)
	}
	return &DispatchOutcome{
		MessageID: msg.ID,
		Status:    models.MessageStatusSuppressed,
		Reason:    reason,
	}, nil
}

// appendLedger writes the attempt row, tolerating an exact replay of a row
// that a previous crashed cycle already wrote.
func (f *dispatchFlow) appendLedger(ctx context.Context, attempt *models.MessageDeliveryAttempt) error {
	err := f.attempts.Append(ctx, attempt)
	if err == nil || errors.Is(err, repository.ErrAttemptExists) {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
}

func (f *dispatchFlow) appendReport(ctx context.Context, msg *models.CampaignMessage, attemptsTaken int, reason *string) error {
	if attemptsTaken < 0 {
		attemptsTaken = 0
	}
	totalCost, err := f.attempts.TotalCost(ctx, msg.ID)
	if err != nil {
		return err
	}
	return f.reports.Append(ctx, &models.DispatchReportRecord{
		TenantID:      msg.TenantID,
		CampaignID:    msg.CampaignID,
		MessageID:     msg.ID,
		FinalStatus:   msg.Status,
		AttemptsTaken: attemptsTaken,
		TotalCost:     totalCost,
		Reason:        reason,
	})
}

// unwindCycle reverses a claimed cycle whose closing transaction failed.
// The rollback kept the frequency reservation and left the message in
// Sending, which the sweep never picks up, so both are undone here and the
// whole cycle replays on the next sweep. The ledger's idempotency key fences
// the replayed provider call.
func (f *dispatchFlow) unwindCycle(ctx context.Context, msg *models.CampaignMessage, now time.Time, cause error) error {
	if errors.Is(cause, repository.ErrStaleMessage) {
		// A concurrent dispatcher took the message mid-cycle; it owns the
		// unwind now
		return ErrMessageClaimed
	}
	return f.abortAttempt(ctx, msg, now, cause)
}

// abortAttempt unwinds a claimed message after an infrastructure error that
// happened before any provider was called: the reservation is released and
// the message returns to pending, immediately due again.
func (f *dispatchFlow) abortAttempt(ctx context.Context, msg *models.CampaignMessage, now time.Time, cause error) error {
	f.releaseReservation(ctx, msg)
	if err := f.messages.Reschedule(ctx, msg, now); err != nil && !errors.Is(err, repository.ErrStaleMessage) {
		return fmt.Errorf("dispatch aborted (%v) and reschedule failed: %w", cause, err)
	}
	return cause
}

func (f *dispatchFlow) releaseReservation(ctx context.Context, msg *models.CampaignMessage) {
	// Best-effort compensation; a leaked reservation self-heals at the next
	// period rollover
	_ = f.frequency.Release(ctx, msg.TenantID, msg.ContactID)
}

// lastAttempt returns the most recent ledger row, nil on a first attempt
func (f *dispatchFlow) lastAttempt(ctx context.Context, messageID uint, attemptNumber int) (*models.MessageDeliveryAttempt, error) {
	if attemptNumber <= 1 {
		return nil, nil
	}
	rows, err := f.attempts.ListByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[len(rows)-1], nil
}

// fallbackReason classifies why this attempt runs on a fallback provider
func (f *dispatchFlow) fallbackReason(choice *ProviderChoice, prev *models.MessageDeliveryAttempt) models.FallbackReason {
	if !choice.IsFallback {
		return models.FallbackReasonNone
	}
	if choice.PrimaryRateLimited {
		return models.FallbackReasonRateLimited
	}
	if prev != nil && !prev.Success {
		if prev.ErrorCode != nil && *prev.ErrorCode == "timeout" {
			return models.FallbackReasonTimeout
		}
		return models.FallbackReasonProviderError
	}
	return models.FallbackReasonProviderError
}

// claimError normalizes a lost optimistic-lock race into ErrMessageClaimed
func (f *dispatchFlow) claimError(err error) error {
	if errors.Is(err, repository.ErrStaleMessage) {
		return ErrMessageClaimed
	}
	return err
}

// backoffDelay computes the wait before retry n (1-based) from the routing
// config, falling back to the package defaults when no config was resolved.
func backoffDelay(cfg *models.ChannelRoutingConfig, retry int) time.Duration {
	initial := utils.DefaultInitialRetryDelay
	max := utils.DefaultMaxRetryDelay
	strategy := models.RetryStrategyExponential
	if cfg != nil {
		initial = cfg.InitialRetryDelay()
		max = cfg.MaxRetryDelay()
		strategy = cfg.RetryStrategy
	}
	if retry < 1 {
		retry = 1
	}
	if strategy == models.RetryStrategyFixed {
		return initial
	}
	delay := initial
	for i := 1; i < retry; i++ {
		delay *= 2
		if delay >= max || delay <= 0 {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
