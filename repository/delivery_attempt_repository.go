package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/relaymark/courier/models"
	"gorm.io/gorm"
)

// DeliveryAttemptRepositoryImpl implements DeliveryAttemptRepository.
// The ledger is append-only: no update or delete paths exist on purpose.
type DeliveryAttemptRepositoryImpl struct {
	*BaseRepository[models.MessageDeliveryAttempt, models.MessageDeliveryAttemptFilter]
}

func NewDeliveryAttemptRepository(db *gorm.DB) DeliveryAttemptRepository {
	return &DeliveryAttemptRepositoryImpl{BaseRepository: NewBaseRepository[models.MessageDeliveryAttempt, models.MessageDeliveryAttemptFilter](db)}
}

// Append writes one ledger row. The unique (message_id, attempt_number)
// index turns a replayed cycle into ErrAttemptExists instead of a
// double-counted attempt.
func (r *DeliveryAttemptRepositoryImpl) Append(ctx context.Context, attempt *models.MessageDeliveryAttempt) error {
	err := r.Save(ctx, attempt)
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "uk_delivery_attempts_message_attempt") {
		return ErrAttemptExists
	}
	return err
}

func (r *DeliveryAttemptRepositoryImpl) ListByMessage(ctx context.Context, messageID uint) ([]*models.MessageDeliveryAttempt, error) {
	db := r.getDB(ctx)
	var rows []*models.MessageDeliveryAttempt
	if err := db.Where("message_id = ?", messageID).
		Order("attempt_number ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// NextAttemptNumber derives the next 1-based attempt number from the ledger
// itself, so numbering survives a cycle that died between send and ledger.
func (r *DeliveryAttemptRepositoryImpl) NextAttemptNumber(ctx context.Context, messageID uint) (int, error) {
	db := r.getDB(ctx)
	var max int
	err := db.Model(&models.MessageDeliveryAttempt{}).
		Where("message_id = ?", messageID).
		Select("COALESCE(MAX(attempt_number), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (r *DeliveryAttemptRepositoryImpl) TotalCost(ctx context.Context, messageID uint) (float64, error) {
	db := r.getDB(ctx)
	var total float64
	err := db.Model(&models.MessageDeliveryAttempt{}).
		Where("message_id = ?", messageID).
		Select("COALESCE(SUM(cost_amount), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
