package repository

import (
	"context"
	"errors"

	"github.com/relaymark/courier/models"
	"github.com/relaymark/courier/utils"
	"gorm.io/gorm"
)

// CampaignVariantRepositoryImpl implements CampaignVariantRepository
type CampaignVariantRepositoryImpl struct {
	db *gorm.DB
}

func NewCampaignVariantRepository(db *gorm.DB) CampaignVariantRepository {
	return &CampaignVariantRepositoryImpl{db: db}
}

func (r *CampaignVariantRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

func (r *CampaignVariantRepositoryImpl) ByID(ctx context.Context, id uint) (*models.CampaignVariant, error) {
	db := r.getDB(ctx)
	var row models.CampaignVariant
	if err := db.Last(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *CampaignVariantRepositoryImpl) Save(ctx context.Context, variant *models.CampaignVariant) error {
	db := r.getDB(ctx)
	return db.Save(variant).Error
}

func (r *CampaignVariantRepositoryImpl) increment(ctx context.Context, id uint, column string) error {
	db := r.getDB(ctx)
	return db.Model(&models.CampaignVariant{}).
		Where("id = ?", id).
		Updates(map[string]any{
			column:       gorm.Expr(column + " + 1"),
			"updated_at": utils.UTCNow(),
		}).Error
}

func (r *CampaignVariantRepositoryImpl) IncrementSent(ctx context.Context, id uint) error {
	return r.increment(ctx, id, "sent_count")
}

func (r *CampaignVariantRepositoryImpl) IncrementDelivered(ctx context.Context, id uint) error {
	return r.increment(ctx, id, "delivered_count")
}

func (r *CampaignVariantRepositoryImpl) IncrementFailed(ctx context.Context, id uint) error {
	return r.increment(ctx, id, "failed_count")
}
