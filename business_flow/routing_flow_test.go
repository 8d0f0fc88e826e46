package businessflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymark/courier/models"
	"github.com/relaymark/courier/utils"
)

func routingConfig(strategy models.RoutingStrategy) *models.ChannelRoutingConfig {
	return &models.ChannelRoutingConfig{
		ID:                       1,
		Channel:                  models.ChannelSMS,
		Priority:                 100,
		IsActive:                 utils.ToPtr(true),
		PrimaryProvider:          "twilio",
		FallbackProvider:         utils.ToPtr("vonage"),
		EnableFallback:           true,
		RoutingStrategy:          strategy,
		RetryStrategy:            models.RetryStrategyExponential,
		InitialRetryDelaySeconds: 30,
		MaxRetryDelaySeconds:     3600,
	}
}

func newRoutingHarness(costs map[string]float64, configs ...*models.ChannelRoutingConfig) (RoutingFlow, *fakeRateLimitRepo) {
	rateRepo := newFakeRateLimitRepo()
	return NewRoutingFlow(&fakeRoutingRepo{configs: configs}, rateRepo, costs), rateRepo
}

func TestSelectProviderPriorityStrategy(t *testing.T) {
	flow, _ := newRoutingHarness(nil, routingConfig(models.RoutingStrategyPriority))

	choice, err := flow.SelectProvider(context.Background(), models.ChannelSMS, 7, 1, "")
	require.NoError(t, err)

	assert.Equal(t, "twilio", choice.Provider)
	assert.False(t, choice.IsFallback)
	assert.False(t, choice.PrimaryRateLimited)
}

func TestSelectProviderRoundRobinAlternates(t *testing.T) {
	flow, _ := newRoutingHarness(nil, routingConfig(models.RoutingStrategyRoundRobin))

	first, err := flow.SelectProvider(context.Background(), models.ChannelSMS, 7, 1, "")
	require.NoError(t, err)
	assert.Equal(t, "twilio", first.Provider)

	second, err := flow.SelectProvider(context.Background(), models.ChannelSMS, 7, 2, "")
	require.NoError(t, err)
	assert.Equal(t, "vonage", second.Provider)
	assert.True(t, second.IsFallback)
}

func TestSelectProviderLeastCostPrefersCheaper(t *testing.T) {
	costs := map[string]float64{"twilio": 0.05, "vonage": 0.01}
	flow, _ := newRoutingHarness(costs, routingConfig(models.RoutingStrategyLeastCost))

	choice, err := flow.SelectProvider(context.Background(), models.ChannelSMS, 7, 1, "")
	require.NoError(t, err)

	assert.Equal(t, "vonage", choice.Provider)
	assert.True(t, choice.IsFallback)
}

func TestSelectProviderSkipsNamedProvider(t *testing.T) {
	flow, _ := newRoutingHarness(nil, routingConfig(models.RoutingStrategyPriority))

	choice, err := flow.SelectProvider(context.Background(), models.ChannelSMS, 7, 2, "twilio")
	require.NoError(t, err)

	assert.Equal(t, "vonage", choice.Provider)
	assert.True(t, choice.IsFallback)
}

func TestSelectProviderRateLimitedPrimary(t *testing.T) {
	flow, rateRepo := newRoutingHarness(nil, routingConfig(models.RoutingStrategyPriority))
	rateRepo.remaining["twilio"] = 0

	choice, err := flow.SelectProvider(context.Background(), models.ChannelSMS, 7, 1, "")
	require.NoError(t, err)

	assert.Equal(t, "vonage", choice.Provider)
	assert.True(t, choice.IsFallback)
	assert.True(t, choice.PrimaryRateLimited)
}

func TestSelectProviderAllSaturated(t *testing.T) {
	flow, rateRepo := newRoutingHarness(nil, routingConfig(models.RoutingStrategyPriority))
	rateRepo.remaining["twilio"] = 0
	rateRepo.remaining["vonage"] = 0

	_, err := flow.SelectProvider(context.Background(), models.ChannelSMS, 7, 1, "")
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
}

func TestSelectProviderNoConfig(t *testing.T) {
	flow, _ := newRoutingHarness(nil)

	_, err := flow.SelectProvider(context.Background(), models.ChannelSMS, 7, 1, "")
	assert.ErrorIs(t, err, ErrNoRoutingConfig)
}

func TestSelectProviderCostThresholdFilters(t *testing.T) {
	cfg := routingConfig(models.RoutingStrategyPriority)
	cfg.CostThreshold = utils.ToPtr(0.02)
	costs := map[string]float64{"twilio": 0.05, "vonage": 0.01}

	flow, _ := newRoutingHarness(costs, cfg)

	choice, err := flow.SelectProvider(context.Background(), models.ChannelSMS, 7, 1, "")
	require.NoError(t, err)

	// The primary is priced over the threshold, so only the fallback qualifies
	assert.Equal(t, "vonage", choice.Provider)
	assert.True(t, choice.IsFallback)
}

func TestSelectProviderSkipsInvalidConfig(t *testing.T) {
	broken := routingConfig(models.RoutingStrategyPriority)
	broken.Priority = 10
	broken.PrimaryProvider = ""

	healthy := routingConfig(models.RoutingStrategyPriority)
	healthy.ID = 2
	healthy.Priority = 20
	healthy.PrimaryProvider = "plivo"
	healthy.FallbackProvider = nil
	healthy.EnableFallback = false

	flow, _ := newRoutingHarness(nil, broken, healthy)

	choice, err := flow.SelectProvider(context.Background(), models.ChannelSMS, 7, 1, "")
	require.NoError(t, err)

	assert.Equal(t, "plivo", choice.Provider)
}

func TestSelectProviderAllConfigsInvalid(t *testing.T) {
	broken := routingConfig(models.RoutingStrategyPriority)
	broken.PrimaryProvider = ""

	flow, _ := newRoutingHarness(nil, broken)

	_, err := flow.SelectProvider(context.Background(), models.ChannelSMS, 7, 1, "")
	assert.ErrorIs(t, err, ErrRoutingConfigInvalid)
}

func TestSelectProviderFallbackDisabled(t *testing.T) {
	cfg := routingConfig(models.RoutingStrategyPriority)
	cfg.EnableFallback = false

	flow, rateRepo := newRoutingHarness(nil, cfg)
	rateRepo.remaining["twilio"] = 0

	_, err := flow.SelectProvider(context.Background(), models.ChannelSMS, 7, 1, "")
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
}
