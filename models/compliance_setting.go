package models

import (
	"time"

	"github.com/lib/pq"
)

// ComplianceSetting is the per-tenant consent and quiet-hours policy.
// One row per tenant; read by the gates on every dispatch, written only by
// the admin surface (out of scope here).
type ComplianceSetting struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	TenantID uint `gorm:"not null;uniqueIndex:uk_compliance_settings_tenant_id" json:"tenant_id"`

	RequireDoubleOptIn bool `gorm:"not null;default:false" json:"require_double_opt_in"`
	EnforceSuppression bool `gorm:"not null;default:true" json:"enforce_suppression"`

	EnableQuietHours bool `gorm:"not null;default:false" json:"enable_quiet_hours"`
	// QuietHoursStart/End are minutes of day in the contact's local time.
	// Start > End means the window wraps past midnight (e.g. 22:00-07:00).
	QuietHoursStart    int    `gorm:"not null;default:1320" json:"quiet_hours_start"`
	QuietHoursEnd      int    `gorm:"not null;default:420" json:"quiet_hours_end"`
	QuietHoursTimeZone string `gorm:"size:64;not null;default:'UTC'" json:"quiet_hours_time_zone"`

	OptInKeywords  pq.StringArray `gorm:"type:text[]" json:"opt_in_keywords"`
	OptOutKeywords pq.StringArray `gorm:"type:text[]" json:"opt_out_keywords"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (ComplianceSetting) TableName() string { return "compliance_settings" }

// InQuietHours reports whether the local minute-of-day falls inside the
// configured [start, end) window, handling midnight wrap.
func (c *ComplianceSetting) InQuietHours(localMinute int) bool {
	if !c.EnableQuietHours {
		return false
	}
	start, end := c.QuietHoursStart, c.QuietHoursEnd
	if start == end {
		return false
	}
	if start < end {
		return localMinute >= start && localMinute < end
	}
	return localMinute >= start || localMinute < end
}

// ComplianceSettingFilter provides filter fields for repository queries
type ComplianceSettingFilter struct {
	ID       *uint
	TenantID *uint
}
