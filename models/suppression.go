package models

import "time"

// SuppressionTrigger enumerates how a suppression rule fires
type SuppressionTrigger string

const (
	SuppressionTriggerManual  SuppressionTrigger = "manual"
	SuppressionTriggerAuto    SuppressionTrigger = "auto"
	SuppressionTriggerKeyword SuppressionTrigger = "keyword"
)

// SuppressionType enumerates why a recipient is blocked
type SuppressionType string

const (
	SuppressionTypeOptOut     SuppressionType = "opt_out"
	SuppressionTypeHardBounce SuppressionType = "hard_bounce"
	SuppressionTypeComplaint  SuppressionType = "complaint"
	SuppressionTypeSpamTrap   SuppressionType = "spam_trap"
)

// SuppressionRule is a declarative gate evaluated before every send.
// Rules are scanned in ascending Priority order and the first match wins;
// the engine increments TriggerCount and LastTriggeredAt on a match, so
// those two columns are the only concurrently mutated ones.
type SuppressionRule struct {
	ID uint `gorm:"primaryKey" json:"id"`
	// TenantID nil means the rule is global
	TenantID *uint `gorm:"index:idx_suppression_rules_tenant_id" json:"tenant_id,omitempty"`

	Name     string             `gorm:"size:200;not null" json:"name"`
	Trigger  SuppressionTrigger `gorm:"type:suppression_trigger;not null" json:"trigger"`
	Type     SuppressionType    `gorm:"type:suppression_type;not null" json:"type"`
	Channel  Channel            `gorm:"type:message_channel;not null;default:'all'" json:"channel"`
	Priority int                `gorm:"not null;default:100;index:idx_suppression_rules_priority" json:"priority"`
	IsActive *bool              `gorm:"not null;default:true" json:"is_active"`

	// RecipientPattern is an exact recipient for manual rules, or empty for
	// auto rules that fire from the message context (bounce/complaint flags)
	RecipientPattern *string `gorm:"size:320" json:"recipient_pattern,omitempty"`

	TriggerCount    int64      `gorm:"not null;default:0" json:"trigger_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (SuppressionRule) TableName() string { return "suppression_rules" }

// AppliesTo reports whether the rule covers the recipient on the channel
// during pre-send evaluation. Auto rules carry no recipient pattern; they
// fire from delivery feedback instead, never from this check.
func (r *SuppressionRule) AppliesTo(recipient string, channel Channel) bool {
	if !r.Channel.Matches(channel) {
		return false
	}
	if r.RecipientPattern == nil || *r.RecipientPattern == "" {
		return false
	}
	return *r.RecipientPattern == recipient
}

// SuppressionRuleFilter provides filter fields for repository queries
type SuppressionRuleFilter struct {
	ID       *uint
	TenantID *uint
	Channel  *Channel
	Type     *SuppressionType
	IsActive *bool
}

// SuppressionEntry is a concrete recipient marked suppressed, the
// materialized result of rule matches or direct opt-outs. Append-only for
// audit; an entry stays effective until Reversed is set.
type SuppressionEntry struct {
	ID       uint  `gorm:"primaryKey" json:"id"`
	TenantID *uint `gorm:"index:idx_suppression_entries_tenant_id" json:"tenant_id,omitempty"`

	Recipient string          `gorm:"size:320;not null;index:idx_suppression_entries_recipient" json:"recipient"`
	Channel   Channel         `gorm:"type:message_channel;not null;default:'all'" json:"channel"`
	Type      SuppressionType `gorm:"type:suppression_type;not null" json:"type"`
	Reason    string          `gorm:"size:500;not null" json:"reason"`
	// SourceRuleID links back to the rule that materialized this entry, if any
	SourceRuleID *uint `json:"source_rule_id,omitempty"`
	Reversed     bool  `gorm:"not null;default:false" json:"reversed"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_suppression_entries_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (SuppressionEntry) TableName() string { return "suppression_entries" }

// SuppressionEntryFilter provides filter fields for repository queries
type SuppressionEntryFilter struct {
	ID        *uint
	TenantID  *uint
	Recipient *string
	Channel   *Channel
	Reversed  *bool
}
