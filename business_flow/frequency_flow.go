package businessflow

import (
	"context"
	"time"

	"github.com/relaymark/courier/repository"
)

// FrequencyFlow guards per-contact daily, weekly and monthly send caps.
// A reservation is taken before the send and released if the attempt never
// reaches a provider, so failed cycles do not burn the contact's budget.
type FrequencyFlow interface {
	Reserve(ctx context.Context, tenantID, contactID uint, now time.Time) (*GateResult, error)
	Release(ctx context.Context, tenantID, contactID uint) error
}

type frequencyFlow struct {
	repo repository.FrequencyControlRepository
}

func NewFrequencyFlow(repo repository.FrequencyControlRepository) FrequencyFlow {
	return &frequencyFlow{repo: repo}
}

func (f *frequencyFlow) Reserve(ctx context.Context, tenantID, contactID uint, now time.Time) (*GateResult, error) {
	admitted, err := f.repo.Reserve(ctx, tenantID, contactID, now)
	if err != nil {
		return nil, err
	}
	if !admitted {
		return Deny(ReasonFrequencyCapped), nil
	}
	return Allow(), nil
}

func (f *frequencyFlow) Release(ctx context.Context, tenantID, contactID uint) error {
	return f.repo.Release(ctx, tenantID, contactID)
}
