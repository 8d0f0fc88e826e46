package models

import "time"

// FrequencyControl caps how many messages one contact may receive from one
// tenant over rolling day/week/month periods. Counters roll over when the
// period boundary has elapsed since their anchor; mutation is an atomic
// check-and-increment in the repository because concurrent dispatches for
// the same contact contend on this row.
type FrequencyControl struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	TenantID  uint `gorm:"not null;uniqueIndex:uk_frequency_controls_scope,priority:1" json:"tenant_id"`
	ContactID uint `gorm:"not null;uniqueIndex:uk_frequency_controls_scope,priority:2" json:"contact_id"`

	// Zero cap means the period is uncapped
	MaxPerDay   int `gorm:"not null;default:0" json:"max_per_day"`
	MaxPerWeek  int `gorm:"not null;default:0" json:"max_per_week"`
	MaxPerMonth int `gorm:"not null;default:0" json:"max_per_month"`

	SentToday     int `gorm:"not null;default:0" json:"sent_today"`
	SentThisWeek  int `gorm:"not null;default:0" json:"sent_this_week"`
	SentThisMonth int `gorm:"not null;default:0" json:"sent_this_month"`

	DayStartedAt   time.Time  `gorm:"not null" json:"day_started_at"`
	WeekStartedAt  time.Time  `gorm:"not null" json:"week_started_at"`
	MonthStartedAt time.Time  `gorm:"not null" json:"month_started_at"`
	LastSentAt     *time.Time `json:"last_sent_at,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (FrequencyControl) TableName() string { return "frequency_controls" }

// EffectiveCounts returns the counters after applying any due period
// rollover at now, without mutating the receiver.
func (f *FrequencyControl) EffectiveCounts(now time.Time) (day, week, month int) {
	day, week, month = f.SentToday, f.SentThisWeek, f.SentThisMonth
	if now.Sub(f.DayStartedAt) >= 24*time.Hour {
		day = 0
	}
	if now.Sub(f.WeekStartedAt) >= 7*24*time.Hour {
		week = 0
	}
	if now.Sub(f.MonthStartedAt) >= 30*24*time.Hour {
		month = 0
	}
	return day, week, month
}

// WouldExceed reports whether one more send at now would break any cap
func (f *FrequencyControl) WouldExceed(now time.Time) bool {
	day, week, month := f.EffectiveCounts(now)
	if f.MaxPerDay > 0 && day+1 > f.MaxPerDay {
		return true
	}
	if f.MaxPerWeek > 0 && week+1 > f.MaxPerWeek {
		return true
	}
	if f.MaxPerMonth > 0 && month+1 > f.MaxPerMonth {
		return true
	}
	return false
}

// FrequencyControlFilter provides filter fields for repository queries
type FrequencyControlFilter struct {
	ID        *uint
	TenantID  *uint
	ContactID *uint
}
