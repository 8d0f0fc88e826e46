package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/relaymark/courier/models"
	"github.com/relaymark/courier/repository"
	"github.com/relaymark/courier/utils"
)

// ComplianceFlow enforces consent, double opt-in and quiet hours
type ComplianceFlow interface {
	Check(ctx context.Context, msg *models.CampaignMessage, contact *models.Contact, now time.Time) (*GateResult, error)
}

type complianceFlow struct {
	repo repository.ComplianceRepository
}

func NewComplianceFlow(repo repository.ComplianceRepository) ComplianceFlow {
	return &complianceFlow{repo: repo}
}

// Check runs the compliance gates in fixed order: consent, double opt-in,
// quiet hours. Transactional and opt-in confirmation messages bypass the
// consent gates but never quiet hours.
func (f *complianceFlow) Check(ctx context.Context, msg *models.CampaignMessage, contact *models.Contact, now time.Time) (*GateResult, error) {
	setting, err := f.repo.ByTenant(ctx, msg.TenantID)
	if err != nil {
		return nil, fmt.Errorf("compliance settings fetch failed: %w", err)
	}

	if !msg.Type.BypassesConsent() {
		if !contact.ConsentFor(msg.Channel) {
			return Deny(ReasonConsentRevoked), nil
		}
		if setting != nil && setting.RequireDoubleOptIn &&
			(contact.DoubleOptInConfirmed == nil || !*contact.DoubleOptInConfirmed) {
			return Deny(ReasonDoubleOptIn), nil
		}
	}

	// A tenant without a settings row has no quiet-hours policy
	if setting == nil {
		return Allow(), nil
	}

	tz := contact.TimeZone
	if tz == "" {
		tz = setting.QuietHoursTimeZone
	}
	local := utils.InLocation(now, tz)
	if setting.InQuietHours(utils.MinuteOfDay(local)) {
		return Defer(ReasonQuietHours, quietHoursEnd(local, setting.QuietHoursEnd)), nil
	}

	return Allow(), nil
}

// quietHoursEnd computes the next moment the quiet window closes, in the
// same location as local. When the window wraps midnight and local is past
// the start, the end falls on the following day.
func quietHoursEnd(local time.Time, endMinute int) time.Time {
	end := time.Date(local.Year(), local.Month(), local.Day(),
		endMinute/60, endMinute%60, 0, 0, local.Location())
	if !end.After(local) {
		end = end.AddDate(0, 0, 1)
	}
	return end.UTC()
}
