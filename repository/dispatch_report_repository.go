package repository

import (
	"context"
	"errors"

	"github.com/relaymark/courier/models"
	"gorm.io/gorm"
)

// DispatchReportRepositoryImpl implements DispatchReportRepository
type DispatchReportRepositoryImpl struct {
	db *gorm.DB
}

func NewDispatchReportRepository(db *gorm.DB) DispatchReportRepository {
	return &DispatchReportRepositoryImpl{db: db}
}

func (r *DispatchReportRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

func (r *DispatchReportRepositoryImpl) Append(ctx context.Context, record *models.DispatchReportRecord) error {
	db := r.getDB(ctx)
	return db.Create(record).Error
}

func (r *DispatchReportRepositoryImpl) ByMessage(ctx context.Context, messageID uint) (*models.DispatchReportRecord, error) {
	db := r.getDB(ctx)
	var row models.DispatchReportRecord
	if err := db.Where("message_id = ?", messageID).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
