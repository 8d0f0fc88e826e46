// Package businessflow contains the core business logic for outbound message dispatch
package businessflow

import (
	"time"

	"github.com/relaymark/courier/models"
)

// GateResult is the answer of one pre-send gate for one message
type GateResult struct {
	Allowed bool `json:"allowed"`
	// Reason explains a denial or deferral; empty when allowed
	Reason string `json:"reason,omitempty"`
	// MatchedRuleID is set when a suppression rule caused the denial
	MatchedRuleID *uint `json:"matched_rule_id,omitempty"`
	// Deferred marks a quiet-hours denial: reschedule, don't suppress
	Deferred      bool       `json:"deferred"`
	NextAllowedAt *time.Time `json:"next_allowed_at,omitempty"`
}

// Allow is the zero-friction allowed result
func Allow() *GateResult {
	return &GateResult{Allowed: true}
}

// Deny builds a denial result with a reason code
func Deny(reason string) *GateResult {
	return &GateResult{Allowed: false, Reason: reason}
}

// Defer builds a quiet-hours deferral due again at next
func Defer(reason string, next time.Time) *GateResult {
	return &GateResult{Allowed: false, Deferred: true, Reason: reason, NextAllowedAt: &next}
}

// ProviderChoice is the routing resolver's answer for one attempt
type ProviderChoice struct {
	Provider string
	Config   *models.ChannelRoutingConfig
	// IsFallback is true when the chosen provider is not the config's primary
	IsFallback bool
	// PrimaryRateLimited records that the primary was skipped because its
	// admission window was saturated, which decides the fallback reason.
	PrimaryRateLimited bool
}

// DispatchOutcome summarizes one completed dispatch cycle for a message
type DispatchOutcome struct {
	MessageID     uint                 `json:"message_id"`
	Status        models.MessageStatus `json:"status"`
	AttemptNumber int                  `json:"attempt_number,omitempty"`
	Provider      string               `json:"provider,omitempty"`
	Deferred      bool                 `json:"deferred"`
	NextAttemptAt *time.Time           `json:"next_attempt_at,omitempty"`
	Reason        string               `json:"reason,omitempty"`
}
