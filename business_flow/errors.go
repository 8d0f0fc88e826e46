// Package businessflow contains the core business logic for outbound message dispatch
package businessflow

import (
	"errors"
)

// Business flow error constants
var (
	// Dispatch lifecycle errors
	ErrMessageNotPending = errors.New("message is not pending dispatch")
	ErrMessageClaimed    = errors.New("message was claimed by a concurrent dispatcher")
	ErrLedgerWriteFailed = errors.New("attempt ledger write failed")

	// Routing errors
	ErrNoProviderAvailable  = errors.New("no provider available for channel")
	ErrNoRoutingConfig      = errors.New("no active routing config for channel")
	ErrRoutingConfigInvalid = errors.New("routing config failed validation")
)

// Denial reason codes recorded on suppressed messages and report rows
const (
	ReasonListed          = "recipient on suppression list"
	ReasonRuleMatched     = "suppression rule matched"
	ReasonConsentRevoked  = "channel consent revoked or never given"
	ReasonDoubleOptIn     = "double opt-in not confirmed"
	ReasonQuietHours      = "inside quiet hours window"
	ReasonFrequencyCapped = "frequency cap reached"
	ReasonContactMissing  = "contact record missing"
	ReasonNoAddress       = "contact has no address for channel"
)
