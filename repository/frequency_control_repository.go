package repository

import (
	"context"
	"errors"
	"time"

	"github.com/relaymark/courier/models"
	"github.com/relaymark/courier/utils"
	"gorm.io/gorm"
)

// FrequencyControlRepositoryImpl implements FrequencyControlRepository
type FrequencyControlRepositoryImpl struct {
	db *gorm.DB
}

func NewFrequencyControlRepository(db *gorm.DB) FrequencyControlRepository {
	return &FrequencyControlRepositoryImpl{db: db}
}

func (r *FrequencyControlRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

func (r *FrequencyControlRepositoryImpl) Get(ctx context.Context, tenantID, contactID uint) (*models.FrequencyControl, error) {
	db := r.getDB(ctx)
	var row models.FrequencyControl
	err := db.Where("tenant_id = ? AND contact_id = ?", tenantID, contactID).Last(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *FrequencyControlRepositoryImpl) Save(ctx context.Context, fc *models.FrequencyControl) error {
	db := r.getDB(ctx)
	return db.Save(fc).Error
}

// Reserve rolls over elapsed periods with idempotent conditional UPDATEs,
// then takes one slot in every period with a single cap-guarded increment.
// The guard lives in the WHERE clause, so two racing dispatchers can never
// both take the last slot.
func (r *FrequencyControlRepositoryImpl) Reserve(ctx context.Context, tenantID, contactID uint, now time.Time) (bool, error) {
	fc, err := r.Get(ctx, tenantID, contactID)
	if err != nil {
		return false, err
	}
	if fc == nil {
		// no control row means the contact is uncapped
		return true, nil
	}

	db := r.getDB(ctx)
	now = utils.TimeToUTC(now)

	rollovers := []struct {
		counter string
		anchor  string
		elapsed time.Duration
	}{
		{"sent_today", "day_started_at", 24 * time.Hour},
		{"sent_this_week", "week_started_at", 7 * 24 * time.Hour},
		{"sent_this_month", "month_started_at", 30 * 24 * time.Hour},
	}
	for _, p := range rollovers {
		if err := db.Model(&models.FrequencyControl{}).
			Where("id = ? AND "+p.anchor+" <= ?", fc.ID, now.Add(-p.elapsed)).
			Updates(map[string]any{
				p.counter:    0,
				p.anchor:     now,
				"updated_at": now,
			}).Error; err != nil {
			return false, err
		}
	}

	res := db.Model(&models.FrequencyControl{}).
		Where("id = ?", fc.ID).
		Where("(max_per_day = 0 OR sent_today < max_per_day)").
		Where("(max_per_week = 0 OR sent_this_week < max_per_week)").
		Where("(max_per_month = 0 OR sent_this_month < max_per_month)").
		Updates(map[string]any{
			"sent_today":      gorm.Expr("sent_today + 1"),
			"sent_this_week":  gorm.Expr("sent_this_week + 1"),
			"sent_this_month": gorm.Expr("sent_this_month + 1"),
			"last_sent_at":    now,
			"updated_at":      now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Release gives back a reserved slot after a failed send attempt. Counters
// never go negative even if a rollover happened between reserve and release.
func (r *FrequencyControlRepositoryImpl) Release(ctx context.Context, tenantID, contactID uint) error {
	fc, err := r.Get(ctx, tenantID, contactID)
	if err != nil || fc == nil {
		return err
	}
	db := r.getDB(ctx)
	return db.Model(&models.FrequencyControl{}).
		Where("id = ?", fc.ID).
		Updates(map[string]any{
			"sent_today":      gorm.Expr("GREATEST(sent_today - 1, 0)"),
			"sent_this_week":  gorm.Expr("GREATEST(sent_this_week - 1, 0)"),
			"sent_this_month": gorm.Expr("GREATEST(sent_this_month - 1, 0)"),
			"updated_at":      utils.UTCNow(),
		}).Error
}
