package models

import "time"

// Contact is the slice of the platform's contact record the gates read:
// per-channel consent, double opt-in state and the timezone used for quiet
// hours. Contact authoring lives in the admin surface, not here.
type Contact struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	TenantID uint `gorm:"not null;index:idx_contacts_tenant_id" json:"tenant_id"`

	PhoneNumber *string `gorm:"size:20;index:idx_contacts_phone_number" json:"phone_number,omitempty"`
	Email       *string `gorm:"size:320;index:idx_contacts_email" json:"email,omitempty"`

	SmsOptIn   *bool `gorm:"not null;default:false" json:"sms_opt_in"`
	MmsOptIn   *bool `gorm:"not null;default:false" json:"mms_opt_in"`
	EmailOptIn *bool `gorm:"not null;default:false" json:"email_opt_in"`

	DoubleOptInConfirmed   *bool      `gorm:"not null;default:false" json:"double_opt_in_confirmed"`
	DoubleOptInConfirmedAt *time.Time `json:"double_opt_in_confirmed_at,omitempty"`

	TimeZone string `gorm:"size:64;not null;default:'UTC'" json:"time_zone"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Contact) TableName() string { return "contacts" }

// ConsentFor reports whether the contact has opted in on the given channel
func (c *Contact) ConsentFor(channel Channel) bool {
	switch channel {
	case ChannelSMS:
		return c.SmsOptIn != nil && *c.SmsOptIn
	case ChannelMMS:
		return c.MmsOptIn != nil && *c.MmsOptIn
	case ChannelEmail:
		return c.EmailOptIn != nil && *c.EmailOptIn
	default:
		return false
	}
}

// AddressFor returns the deliverable address for the channel, empty if unset
func (c *Contact) AddressFor(channel Channel) string {
	switch channel {
	case ChannelSMS, ChannelMMS:
		if c.PhoneNumber != nil {
			return *c.PhoneNumber
		}
	case ChannelEmail:
		if c.Email != nil {
			return *c.Email
		}
	}
	return ""
}

// ContactFilter provides filter fields for repository queries
type ContactFilter struct {
	ID          *uint
	TenantID    *uint
	PhoneNumber *string
	Email       *string
}
