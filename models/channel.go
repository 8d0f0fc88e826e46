package models

import (
	"database/sql/driver"
	"fmt"
)

// Channel represents a messaging medium a message travels over
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelMMS   Channel = "mms"
	ChannelEmail Channel = "email"

	// ChannelAll is a wildcard used by suppression rules and list entries
	ChannelAll Channel = "all"
)

// String returns the string representation of the channel
func (c Channel) String() string {
	return string(c)
}

// Valid checks if the channel is valid
func (c Channel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelMMS, ChannelEmail, ChannelAll:
		return true
	default:
		return false
	}
}

// Matches reports whether a rule scoped to c applies to the given concrete channel
func (c Channel) Matches(other Channel) bool {
	return c == ChannelAll || c == other
}

// Scan implements the sql.Scanner interface for Channel
func (c *Channel) Scan(value any) error {
	if value == nil {
		*c = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*c = Channel(v)
	case []byte:
		*c = Channel(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Channel", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for Channel
func (c Channel) Value() (driver.Value, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid Channel: %s", c)
	}
	return string(c), nil
}

// MessageType classifies the intent of a message for consent purposes
type MessageType string

const (
	MessageTypeMarketing     MessageType = "marketing"
	MessageTypeTransactional MessageType = "transactional"
	// MessageTypeOptInConfirm is the double opt-in confirmation request itself
	MessageTypeOptInConfirm MessageType = "opt_in_confirmation"
)

// Valid checks if the message type is valid
func (m MessageType) Valid() bool {
	switch m {
	case MessageTypeMarketing, MessageTypeTransactional, MessageTypeOptInConfirm:
		return true
	default:
		return false
	}
}

// BypassesConsent reports whether this message type may be sent without
// channel consent (transactional and opt-in confirmations always may).
func (m MessageType) BypassesConsent() bool {
	return m == MessageTypeTransactional || m == MessageTypeOptInConfirm
}
