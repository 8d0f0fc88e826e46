package repository

import (
	"context"
	"errors"

	"github.com/relaymark/courier/models"
	"gorm.io/gorm"
)

// RoutingConfigRepositoryImpl implements RoutingConfigRepository
type RoutingConfigRepositoryImpl struct {
	*BaseRepository[models.ChannelRoutingConfig, models.ChannelRoutingConfigFilter]
}

func NewRoutingConfigRepository(db *gorm.DB) RoutingConfigRepository {
	return &RoutingConfigRepositoryImpl{BaseRepository: NewBaseRepository[models.ChannelRoutingConfig, models.ChannelRoutingConfigFilter](db)}
}

func (r *RoutingConfigRepositoryImpl) ByID(ctx context.Context, id uint) (*models.ChannelRoutingConfig, error) {
	db := r.getDB(ctx)
	var row models.ChannelRoutingConfig
	if err := db.Last(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ListActiveByChannel returns tenant-scoped and global active configs for a
// channel, most specific first within each priority tier.
func (r *RoutingConfigRepositoryImpl) ListActiveByChannel(ctx context.Context, channel models.Channel, tenantID uint) ([]*models.ChannelRoutingConfig, error) {
	db := r.getDB(ctx)
	var rows []*models.ChannelRoutingConfig
	err := db.Where("channel = ? AND is_active = ?", channel, true).
		Where("tenant_id = ? OR tenant_id IS NULL", tenantID).
		Order("priority ASC, tenant_id ASC NULLS LAST, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *RoutingConfigRepositoryImpl) applyFilter(db *gorm.DB, f models.ChannelRoutingConfigFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.TenantID != nil {
		db = db.Where("tenant_id = ?", *f.TenantID)
	}
	if f.Channel != nil {
		db = db.Where("channel = ?", *f.Channel)
	}
	if f.IsActive != nil {
		db = db.Where("is_active = ?", *f.IsActive)
	}
	return db
}

func (r *RoutingConfigRepositoryImpl) ByFilter(ctx context.Context, filter models.ChannelRoutingConfigFilter, orderBy string, limit, offset int) ([]*models.ChannelRoutingConfig, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ChannelRoutingConfig{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.ChannelRoutingConfig
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *RoutingConfigRepositoryImpl) Count(ctx context.Context, filter models.ChannelRoutingConfigFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ChannelRoutingConfig{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *RoutingConfigRepositoryImpl) Exists(ctx context.Context, filter models.ChannelRoutingConfigFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
