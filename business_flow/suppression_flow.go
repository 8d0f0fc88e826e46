package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/relaymark/courier/models"
	"github.com/relaymark/courier/repository"
	"github.com/relaymark/courier/utils"
)

// SuppressionFlow is the pre-send suppression gate plus the delivery
// feedback hook that materializes new suppression entries.
type SuppressionFlow interface {
	// Evaluate decides whether recipient may be messaged on channel.
	// List entries win over rules; rules run in ascending priority order and
	// the first match short-circuits the scan.
	Evaluate(ctx context.Context, recipient string, channel models.Channel, tenantID uint) (*GateResult, error)

	// RecordDeliveryFailure feeds a provider-signaled permanent failure
	// (hard bounce, complaint) back into the suppression list through the
	// first matching active auto rule.
	RecordDeliveryFailure(ctx context.Context, recipient string, channel models.Channel, tenantID uint, sType models.SuppressionType) error
}

type suppressionFlow struct {
	repo       repository.SuppressionRepository
	compliance repository.ComplianceRepository
	now        func() time.Time
}

func NewSuppressionFlow(repo repository.SuppressionRepository, compliance repository.ComplianceRepository) SuppressionFlow {
	return &suppressionFlow{repo: repo, compliance: compliance, now: utils.UTCNow}
}

func (f *suppressionFlow) Evaluate(ctx context.Context, recipient string, channel models.Channel, tenantID uint) (*GateResult, error) {
	setting, err := f.compliance.ByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("compliance settings fetch failed: %w", err)
	}
	if setting != nil && !setting.EnforceSuppression {
		// The tenant turned pre-send suppression off; entries and rules
		// still accumulate through delivery feedback, they just don't gate
		return Allow(), nil
	}

	entry, err := f.repo.IsListed(ctx, recipient, channel, tenantID)
	if err != nil {
		return nil, fmt.Errorf("suppression list check failed: %w", err)
	}
	if entry != nil {
		return Deny(ReasonListed), nil
	}

	rules, err := f.repo.ActiveRules(ctx, channel, tenantID)
	if err != nil {
		return nil, fmt.Errorf("suppression rules fetch failed: %w", err)
	}

	for _, rule := range rules {
		if !rule.AppliesTo(recipient, channel) {
			continue
		}
		// First match wins; later rules are never consulted and never
		// have their counters touched.
		if err := f.repo.MarkTriggered(ctx, rule.ID, f.now()); err != nil {
			return nil, fmt.Errorf("failed to mark rule %d triggered: %w", rule.ID, err)
		}
		res := Deny(ReasonRuleMatched)
		res.MatchedRuleID = &rule.ID
		return res, nil
	}

	return Allow(), nil
}

func (f *suppressionFlow) RecordDeliveryFailure(ctx context.Context, recipient string, channel models.Channel, tenantID uint, sType models.SuppressionType) error {
	rules, err := f.repo.ActiveRules(ctx, channel, tenantID)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if rule.Trigger != models.SuppressionTriggerAuto || rule.Type != sType {
			continue
		}
		if err := f.repo.MarkTriggered(ctx, rule.ID, f.now()); err != nil {
			return err
		}
		entry := &models.SuppressionEntry{
			TenantID:     rule.TenantID,
			Recipient:    recipient,
			Channel:      rule.Channel,
			Type:         sType,
			Reason:       fmt.Sprintf("auto-suppressed by rule %q", rule.Name),
			SourceRuleID: &rule.ID,
		}
		if err := f.repo.AddEntry(ctx, entry); err != nil {
			return fmt.Errorf("failed to materialize suppression entry: %w", err)
		}
		return nil
	}

	// no auto rule configured for this failure type; nothing to record
	return nil
}
