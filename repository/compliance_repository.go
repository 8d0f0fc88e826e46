package repository

import (
	"context"
	"errors"

	"github.com/relaymark/courier/models"
	"gorm.io/gorm"
)

// ComplianceRepositoryImpl implements ComplianceRepository
type ComplianceRepositoryImpl struct {
	db *gorm.DB
}

func NewComplianceRepository(db *gorm.DB) ComplianceRepository {
	return &ComplianceRepositoryImpl{db: db}
}

func (r *ComplianceRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

func (r *ComplianceRepositoryImpl) ByTenant(ctx context.Context, tenantID uint) (*models.ComplianceSetting, error) {
	db := r.getDB(ctx)
	var row models.ComplianceSetting
	if err := db.Where("tenant_id = ?", tenantID).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *ComplianceRepositoryImpl) Save(ctx context.Context, setting *models.ComplianceSetting) error {
	db := r.getDB(ctx)
	return db.Save(setting).Error
}
