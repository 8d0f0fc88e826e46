package repository

import (
	"context"
	"errors"
	"time"

	"github.com/relaymark/courier/models"
	"github.com/relaymark/courier/utils"
	"gorm.io/gorm"
)

// RateLimitRepositoryImpl implements RateLimitRepository
type RateLimitRepositoryImpl struct {
	*BaseRepository[models.ProviderRateLimit, models.ProviderRateLimitFilter]
}

func NewRateLimitRepository(db *gorm.DB) RateLimitRepository {
	return &RateLimitRepositoryImpl{BaseRepository: NewBaseRepository[models.ProviderRateLimit, models.ProviderRateLimitFilter](db)}
}

func (r *RateLimitRepositoryImpl) Get(ctx context.Context, providerName string, providerType models.Channel, userID uint) (*models.ProviderRateLimit, error) {
	db := r.getDB(ctx)
	var row models.ProviderRateLimit
	err := db.Where("provider_name = ? AND provider_type = ? AND user_id = ?", providerName, providerType, userID).
		Last(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Admit implements admission as two conditional UPDATEs so that concurrent
// dispatchers never lose increments:
//
//  1. reset the window iff it has elapsed (idempotent across racers);
//  2. increment the counter iff it is still under the cap.
//
// The second statement's WHERE carries the cap check, so the row count tells
// us whether this caller won a slot.
func (r *RateLimitRepositoryImpl) Admit(ctx context.Context, providerName string, providerType models.Channel, userID uint, now time.Time) (bool, error) {
	limit, err := r.Get(ctx, providerName, providerType, userID)
	if err != nil {
		return false, err
	}
	if limit == nil && userID != 0 {
		// No tenant-scoped window; the provider-wide row (user id 0) still
		// binds every tenant
		limit, err = r.Get(ctx, providerName, providerType, 0)
		if err != nil {
			return false, err
		}
	}
	if limit == nil {
		// unconfigured providers are not rate limited
		return true, nil
	}

	db := r.getDB(ctx)
	now = utils.TimeToUTC(now)
	windowStart := now.Add(-time.Duration(limit.TimeWindowSeconds) * time.Second)

	if err := db.Model(&models.ProviderRateLimit{}).
		Where("id = ? AND window_start_time <= ?", limit.ID, windowStart).
		Updates(map[string]any{
			"current_request_count": 0,
			"window_start_time":     now,
			"updated_at":            now,
		}).Error; err != nil {
		return false, err
	}

	res := db.Model(&models.ProviderRateLimit{}).
		Where("id = ? AND current_request_count < max_requests", limit.ID).
		Updates(map[string]any{
			"current_request_count": gorm.Expr("current_request_count + 1"),
			"updated_at":            now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
