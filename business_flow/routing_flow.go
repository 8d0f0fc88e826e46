package businessflow

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/relaymark/courier/models"
	"github.com/relaymark/courier/repository"
	"github.com/relaymark/courier/utils"
)

// RoutingFlow resolves the provider for one dispatch attempt, honoring the
// channel's routing strategy, per-provider admission windows and the cost
// threshold filter.
type RoutingFlow interface {
	// SelectProvider picks a provider for the attempt. skipProvider names a
	// provider that must not be chosen again, used when escalating away from
	// a provider that just failed. Returns ErrNoRoutingConfig when the
	// channel has no active config, ErrRoutingConfigInvalid when every
	// config fails validation, and ErrNoProviderAvailable when every
	// candidate is rate limited or filtered out.
	SelectProvider(ctx context.Context, channel models.Channel, tenantID uint, attemptNumber int, skipProvider string) (*ProviderChoice, error)
}

type routingFlow struct {
	repo      repository.RoutingConfigRepository
	rateLimit repository.RateLimitRepository
	// costs maps provider name to per-message cost, fed from static provider
	// configuration. Providers missing from the map cost zero.
	costs    map[string]float64
	validate *validator.Validate
	now      func() time.Time
}

func NewRoutingFlow(repo repository.RoutingConfigRepository, rateLimit repository.RateLimitRepository, costs map[string]float64) RoutingFlow {
	if costs == nil {
		costs = map[string]float64{}
	}
	return &routingFlow{
		repo:      repo,
		rateLimit: rateLimit,
		costs:     costs,
		validate:  validator.New(),
		now:       utils.UTCNow,
	}
}

func (f *routingFlow) SelectProvider(ctx context.Context, channel models.Channel, tenantID uint, attemptNumber int, skipProvider string) (*ProviderChoice, error) {
	configs, err := f.repo.ListActiveByChannel(ctx, channel, tenantID)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, ErrNoRoutingConfig
	}

	primaryRateLimited := false
	validConfigs := 0
	for _, cfg := range configs {
		if err := f.validate.Struct(cfg); err != nil {
			continue
		}
		validConfigs++
		for _, candidate := range f.candidates(cfg, attemptNumber) {
			if candidate == "" || candidate == skipProvider {
				continue
			}
			if threshold := cfg.CostThreshold; threshold != nil && f.costs[candidate] > *threshold {
				continue
			}
			admitted, err := f.rateLimit.Admit(ctx, candidate, channel, tenantID, f.now())
			if err != nil {
				return nil, err
			}
			if !admitted {
				if candidate == cfg.PrimaryProvider {
					primaryRateLimited = true
				}
				continue
			}
			return &ProviderChoice{
				Provider:           candidate,
				Config:             cfg,
				IsFallback:         candidate != cfg.PrimaryProvider,
				PrimaryRateLimited: primaryRateLimited,
			}, nil
		}
	}

	if validConfigs == 0 {
		return nil, ErrRoutingConfigInvalid
	}
	return nil, ErrNoProviderAvailable
}

// candidates orders the config's primary and fallback providers for the
// attempt according to the routing strategy.
func (f *routingFlow) candidates(cfg *models.ChannelRoutingConfig, attemptNumber int) []string {
	primary := cfg.PrimaryProvider
	fallback := ""
	if cfg.EnableFallback && cfg.FallbackProvider != nil {
		fallback = *cfg.FallbackProvider
	}
	if fallback == "" {
		return []string{primary}
	}

	switch cfg.RoutingStrategy {
	case models.RoutingStrategyRoundRobin:
		if attemptNumber%2 == 0 {
			return []string{fallback, primary}
		}
		return []string{primary, fallback}
	case models.RoutingStrategyLeastCost:
		if f.costs[fallback] < f.costs[primary] {
			return []string{fallback, primary}
		}
		return []string{primary, fallback}
	default:
		return []string{primary, fallback}
	}
}
