package businessflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/relaymark/courier/models"
	"github.com/relaymark/courier/repository"
	"github.com/relaymark/courier/utils"
)

// passthroughTx runs the unit of work without a real database transaction
func passthroughTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type fakeMessageRepo struct {
	// transitionErr is returned once on the next Transition call
	transitionErr error
}

func (r *fakeMessageRepo) ByID(ctx context.Context, id uint) (*models.CampaignMessage, error) {
	return nil, nil
}

func (r *fakeMessageRepo) ByFilter(ctx context.Context, filter models.CampaignMessageFilter, orderBy string, limit, offset int) ([]*models.CampaignMessage, error) {
	return nil, nil
}

func (r *fakeMessageRepo) Save(ctx context.Context, entity *models.CampaignMessage) error { return nil }

func (r *fakeMessageRepo) SaveBatch(ctx context.Context, entities []*models.CampaignMessage) error {
	return nil
}

func (r *fakeMessageRepo) Count(ctx context.Context, filter models.CampaignMessageFilter) (int64, error) {
	return 0, nil
}

func (r *fakeMessageRepo) Exists(ctx context.Context, filter models.CampaignMessageFilter) (bool, error) {
	return false, nil
}

func (r *fakeMessageRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.CampaignMessage, error) {
	return nil, nil
}

func (r *fakeMessageRepo) Transition(ctx context.Context, msg *models.CampaignMessage, next models.MessageStatus, mutate func(*models.CampaignMessage)) error {
	if r.transitionErr != nil {
		err := r.transitionErr
		r.transitionErr = nil
		return err
	}
	if !msg.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal transition %s -> %s", msg.Status, next)
	}
	msg.Status = next
	msg.LockVersion++
	if mutate != nil {
		mutate(msg)
	}
	return nil
}

func (r *fakeMessageRepo) Reschedule(ctx context.Context, msg *models.CampaignMessage, dueAt time.Time) error {
	return r.Transition(ctx, msg, models.MessageStatusPending, func(m *models.CampaignMessage) {
		m.NextAttemptAt = &dueAt
	})
}

func (r *fakeMessageRepo) RequeueStale(ctx context.Context, now time.Time, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func (r *fakeMessageRepo) MarkCanceledByCampaign(ctx context.Context, campaignID uint) (int64, error) {
	return 0, nil
}

type fakeAttemptRepo struct {
	rows []*models.MessageDeliveryAttempt
	// appendErr is returned once on the next Append call
	appendErr error
}

func (r *fakeAttemptRepo) Append(ctx context.Context, attempt *models.MessageDeliveryAttempt) error {
	if r.appendErr != nil {
		err := r.appendErr
		r.appendErr = nil
		return err
	}
	for _, row := range r.rows {
		if row.MessageID == attempt.MessageID && row.AttemptNumber == attempt.AttemptNumber {
			return repository.ErrAttemptExists
		}
	}
	cp := *attempt
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *fakeAttemptRepo) ListByMessage(ctx context.Context, messageID uint) ([]*models.MessageDeliveryAttempt, error) {
	var out []*models.MessageDeliveryAttempt
	for _, row := range r.rows {
		if row.MessageID == messageID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

func (r *fakeAttemptRepo) NextAttemptNumber(ctx context.Context, messageID uint) (int, error) {
	max := 0
	for _, row := range r.rows {
		if row.MessageID == messageID && row.AttemptNumber > max {
			max = row.AttemptNumber
		}
	}
	return max + 1, nil
}

func (r *fakeAttemptRepo) TotalCost(ctx context.Context, messageID uint) (float64, error) {
	total := 0.0
	for _, row := range r.rows {
		if row.MessageID == messageID {
			total += row.CostAmount
		}
	}
	return total, nil
}

type fakeContactRepo struct {
	contacts map[uint]*models.Contact
}

func (r *fakeContactRepo) ByID(ctx context.Context, id uint) (*models.Contact, error) {
	return r.contacts[id], nil
}

func (r *fakeContactRepo) Save(ctx context.Context, contact *models.Contact) error { return nil }

type fakeVariantRepo struct {
	sent      map[uint]int
	delivered map[uint]int
	failed    map[uint]int
}

func newFakeVariantRepo() *fakeVariantRepo {
	return &fakeVariantRepo{
		sent:      map[uint]int{},
		delivered: map[uint]int{},
		failed:    map[uint]int{},
	}
}

func (r *fakeVariantRepo) ByID(ctx context.Context, id uint) (*models.CampaignVariant, error) {
	return nil, nil
}

func (r *fakeVariantRepo) Save(ctx context.Context, variant *models.CampaignVariant) error {
	return nil
}

func (r *fakeVariantRepo) IncrementSent(ctx context.Context, id uint) error {
	r.sent[id]++
	return nil
}

func (r *fakeVariantRepo) IncrementDelivered(ctx context.Context, id uint) error {
	r.delivered[id]++
	return nil
}

func (r *fakeVariantRepo) IncrementFailed(ctx context.Context, id uint) error {
	r.failed[id]++
	return nil
}

type fakeReportRepo struct {
	rows []*models.DispatchReportRecord
}

func (r *fakeReportRepo) Append(ctx context.Context, record *models.DispatchReportRecord) error {
	for _, row := range r.rows {
		if row.MessageID == record.MessageID {
			return fmt.Errorf("report for message %d already recorded", record.MessageID)
		}
	}
	cp := *record
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *fakeReportRepo) ByMessage(ctx context.Context, messageID uint) (*models.DispatchReportRecord, error) {
	for _, row := range r.rows {
		if row.MessageID == messageID {
			return row, nil
		}
	}
	return nil, nil
}

type fakeSuppressionRepo struct {
	entries   []*models.SuppressionEntry
	rules     []*models.SuppressionRule
	triggered map[uint]int
}

func newFakeSuppressionRepo() *fakeSuppressionRepo {
	return &fakeSuppressionRepo{triggered: map[uint]int{}}
}

func (r *fakeSuppressionRepo) IsListed(ctx context.Context, recipient string, channel models.Channel, tenantID uint) (*models.SuppressionEntry, error) {
	for _, entry := range r.entries {
		if entry.Reversed || entry.Recipient != recipient || !entry.Channel.Matches(channel) {
			continue
		}
		if entry.TenantID != nil && *entry.TenantID != tenantID {
			continue
		}
		return entry, nil
	}
	return nil, nil
}

func (r *fakeSuppressionRepo) ActiveRules(ctx context.Context, channel models.Channel, tenantID uint) ([]*models.SuppressionRule, error) {
	var out []*models.SuppressionRule
	for _, rule := range r.rules {
		if !utils.IsTrue(rule.IsActive) || !rule.Channel.Matches(channel) {
			continue
		}
		if rule.TenantID != nil && *rule.TenantID != tenantID {
			continue
		}
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *fakeSuppressionRepo) MarkTriggered(ctx context.Context, ruleID uint, at time.Time) error {
	r.triggered[ruleID]++
	return nil
}

func (r *fakeSuppressionRepo) AddEntry(ctx context.Context, entry *models.SuppressionEntry) error {
	cp := *entry
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *fakeSuppressionRepo) SaveRule(ctx context.Context, rule *models.SuppressionRule) error {
	cp := *rule
	r.rules = append(r.rules, &cp)
	return nil
}

type fakeComplianceRepo struct {
	settings map[uint]*models.ComplianceSetting
}

func (r *fakeComplianceRepo) ByTenant(ctx context.Context, tenantID uint) (*models.ComplianceSetting, error) {
	return r.settings[tenantID], nil
}

func (r *fakeComplianceRepo) Save(ctx context.Context, setting *models.ComplianceSetting) error {
	return nil
}

type fakeFrequencyRepo struct {
	controls map[string]*models.FrequencyControl
	reserved int
	released int
}

func newFakeFrequencyRepo() *fakeFrequencyRepo {
	return &fakeFrequencyRepo{controls: map[string]*models.FrequencyControl{}}
}

func frequencyKey(tenantID, contactID uint) string {
	return fmt.Sprintf("%d/%d", tenantID, contactID)
}

func (r *fakeFrequencyRepo) Get(ctx context.Context, tenantID, contactID uint) (*models.FrequencyControl, error) {
	return r.controls[frequencyKey(tenantID, contactID)], nil
}

func (r *fakeFrequencyRepo) Save(ctx context.Context, fc *models.FrequencyControl) error {
	r.controls[frequencyKey(fc.TenantID, fc.ContactID)] = fc
	return nil
}

func (r *fakeFrequencyRepo) Reserve(ctx context.Context, tenantID, contactID uint, now time.Time) (bool, error) {
	fc := r.controls[frequencyKey(tenantID, contactID)]
	if fc == nil {
		r.reserved++
		return true, nil
	}
	if fc.WouldExceed(now) {
		return false, nil
	}
	fc.SentToday++
	fc.SentThisWeek++
	fc.SentThisMonth++
	fc.LastSentAt = &now
	r.reserved++
	return true, nil
}

func (r *fakeFrequencyRepo) Release(ctx context.Context, tenantID, contactID uint) error {
	r.released++
	fc := r.controls[frequencyKey(tenantID, contactID)]
	if fc == nil {
		return nil
	}
	if fc.SentToday > 0 {
		fc.SentToday--
	}
	if fc.SentThisWeek > 0 {
		fc.SentThisWeek--
	}
	if fc.SentThisMonth > 0 {
		fc.SentThisMonth--
	}
	return nil
}

type fakeRoutingRepo struct {
	configs []*models.ChannelRoutingConfig
}

func (r *fakeRoutingRepo) ByID(ctx context.Context, id uint) (*models.ChannelRoutingConfig, error) {
	return nil, nil
}

func (r *fakeRoutingRepo) ByFilter(ctx context.Context, filter models.ChannelRoutingConfigFilter, orderBy string, limit, offset int) ([]*models.ChannelRoutingConfig, error) {
	return nil, nil
}

func (r *fakeRoutingRepo) Save(ctx context.Context, entity *models.ChannelRoutingConfig) error {
	return nil
}

func (r *fakeRoutingRepo) SaveBatch(ctx context.Context, entities []*models.ChannelRoutingConfig) error {
	return nil
}

func (r *fakeRoutingRepo) Count(ctx context.Context, filter models.ChannelRoutingConfigFilter) (int64, error) {
	return 0, nil
}

func (r *fakeRoutingRepo) Exists(ctx context.Context, filter models.ChannelRoutingConfigFilter) (bool, error) {
	return false, nil
}

func (r *fakeRoutingRepo) ListActiveByChannel(ctx context.Context, channel models.Channel, tenantID uint) ([]*models.ChannelRoutingConfig, error) {
	var out []*models.ChannelRoutingConfig
	for _, cfg := range r.configs {
		if cfg.Channel != channel || !utils.IsTrue(cfg.IsActive) {
			continue
		}
		if cfg.TenantID != nil && *cfg.TenantID != tenantID {
			continue
		}
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

type fakeRateLimitRepo struct {
	// remaining maps provider name to admission tokens left; providers
	// missing from the map are unlimited
	remaining map[string]int
	admits    []string
}

func newFakeRateLimitRepo() *fakeRateLimitRepo {
	return &fakeRateLimitRepo{remaining: map[string]int{}}
}

func (r *fakeRateLimitRepo) Get(ctx context.Context, providerName string, providerType models.Channel, userID uint) (*models.ProviderRateLimit, error) {
	return nil, nil
}

func (r *fakeRateLimitRepo) Save(ctx context.Context, limit *models.ProviderRateLimit) error {
	return nil
}

func (r *fakeRateLimitRepo) Admit(ctx context.Context, providerName string, providerType models.Channel, userID uint, now time.Time) (bool, error) {
	r.admits = append(r.admits, providerName)
	tokens, capped := r.remaining[providerName]
	if !capped {
		return true, nil
	}
	if tokens <= 0 {
		return false, nil
	}
	r.remaining[providerName] = tokens - 1
	return true, nil
}
