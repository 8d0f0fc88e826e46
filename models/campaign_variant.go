package models

import "time"

// CampaignVariant is one A/B test arm with independent content and live
// counters. A CampaignMessage references at most one variant.
type CampaignVariant struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	CampaignID uint   `gorm:"not null;index:idx_campaign_variants_campaign_id" json:"campaign_id"`
	Name       string `gorm:"size:100;not null" json:"name"`

	Subject *string `gorm:"size:500" json:"subject,omitempty"`
	Body    string  `gorm:"type:text;not null" json:"body"`

	SentCount      int64 `gorm:"not null;default:0" json:"sent_count"`
	DeliveredCount int64 `gorm:"not null;default:0" json:"delivered_count"`
	FailedCount    int64 `gorm:"not null;default:0" json:"failed_count"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (CampaignVariant) TableName() string { return "campaign_variants" }

// CampaignVariantFilter provides filter fields for repository queries
type CampaignVariantFilter struct {
	ID         *uint
	CampaignID *uint
}
