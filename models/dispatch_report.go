package models

import "time"

// DispatchReportRecord is the per-terminal-state record handed to analytics
// and audit collaborators: one row per message that reached a terminal
// status, derivable entirely from the attempt ledger.
type DispatchReportRecord struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	TenantID   uint `gorm:"not null;index:idx_dispatch_reports_tenant_id" json:"tenant_id"`
	CampaignID uint `gorm:"not null;index:idx_dispatch_reports_campaign_id" json:"campaign_id"`
	MessageID  uint `gorm:"not null;uniqueIndex:uk_dispatch_reports_message_id" json:"message_id"`

	FinalStatus   MessageStatus `gorm:"type:message_status;not null" json:"final_status"`
	AttemptsTaken int           `gorm:"not null" json:"attempts_taken"`
	TotalCost     float64       `gorm:"type:numeric(12,6);not null;default:0" json:"total_cost"`
	Reason        *string       `gorm:"size:500" json:"reason,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

func (DispatchReportRecord) TableName() string { return "dispatch_report_records" }

// DispatchReportRecordFilter provides filter fields for repository queries
type DispatchReportRecordFilter struct {
	ID         *uint
	TenantID   *uint
	CampaignID *uint
	MessageID  *uint
}
