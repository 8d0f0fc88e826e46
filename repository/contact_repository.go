package repository

import (
	"context"
	"errors"

	"github.com/relaymark/courier/models"
	"gorm.io/gorm"
)

// ContactRepositoryImpl implements ContactRepository
type ContactRepositoryImpl struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) ContactRepository {
	return &ContactRepositoryImpl{db: db}
}

func (r *ContactRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

func (r *ContactRepositoryImpl) ByID(ctx context.Context, id uint) (*models.Contact, error) {
	db := r.getDB(ctx)
	var row models.Contact
	if err := db.Last(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *ContactRepositoryImpl) Save(ctx context.Context, contact *models.Contact) error {
	db := r.getDB(ctx)
	return db.Save(contact).Error
}
