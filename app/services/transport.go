// Package services provides external service integrations and technical concerns like provider transports
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/relaymark/courier/models"
)

// SendRequest carries everything a transport needs to deliver one message
type SendRequest struct {
	MessageID uint
	// IdempotencyKey is forwarded to providers that support deduplication,
	// so a replayed dispatch cycle cannot double-send.
	IdempotencyKey string
	Channel        models.Channel
	Recipient      string
	Subject        string
	Body           string
	MediaURL       string
}

// SendOutcome is the provider's answer to a successful submission
type SendOutcome struct {
	ExternalID string
	CostAmount float64
}

// ProviderTransport abstracts one delivery vendor. Implementations must
// honor ctx cancellation and deadlines; a deadline hit is reported as a
// context.DeadlineExceeded-wrapped error.
type ProviderTransport interface {
	Name() string
	Send(ctx context.Context, req SendRequest) (SendOutcome, error)
}

// SendError is a provider-signaled failure with a vendor error code
type SendError struct {
	Code    string
	Message string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

// ErrorCode extracts the vendor error code from err, if any
func ErrorCode(err error) string {
	var se *SendError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// ErrUnknownProvider means a routing config references a transport that was
// never registered.
var ErrUnknownProvider = errors.New("unknown provider transport")

// Registry maps provider names to transports. Selection is data-driven from
// routing configs; the registry is populated once at startup and read-only
// afterwards.
type Registry struct {
	transports map[string]ProviderTransport
}

func NewRegistry(transports ...ProviderTransport) *Registry {
	r := &Registry{transports: make(map[string]ProviderTransport, len(transports))}
	for _, t := range transports {
		r.transports[t.Name()] = t
	}
	return r
}

// Register adds or replaces a transport by name
func (r *Registry) Register(t ProviderTransport) {
	r.transports[t.Name()] = t
}

// Lookup returns the transport for a provider name
func (r *Registry) Lookup(name string) (ProviderTransport, error) {
	t, ok := r.transports[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return t, nil
}

// Names lists the registered provider names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.transports))
	for name := range r.transports {
		names = append(names, name)
	}
	return names
}
