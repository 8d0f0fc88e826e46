package repository

import (
	"context"
	"errors"
	"time"

	"github.com/relaymark/courier/models"
	"github.com/relaymark/courier/utils"
	"gorm.io/gorm"
)

// SuppressionRepositoryImpl implements SuppressionRepository
type SuppressionRepositoryImpl struct {
	db *gorm.DB
}

func NewSuppressionRepository(db *gorm.DB) SuppressionRepository {
	return &SuppressionRepositoryImpl{db: db}
}

func (r *SuppressionRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

// IsListed checks the materialized list first; an effective entry short-
// circuits rule evaluation entirely.
func (r *SuppressionRepositoryImpl) IsListed(ctx context.Context, recipient string, channel models.Channel, tenantID uint) (*models.SuppressionEntry, error) {
	db := r.getDB(ctx)
	var row models.SuppressionEntry
	err := db.Where("recipient = ? AND reversed = ?", recipient, false).
		Where("channel IN ?", []models.Channel{channel, models.ChannelAll}).
		Where("tenant_id = ? OR tenant_id IS NULL", tenantID).
		Order("id DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ActiveRules returns tenant and global rules for the channel in evaluation
// order: ascending priority, ties broken by id for determinism.
func (r *SuppressionRepositoryImpl) ActiveRules(ctx context.Context, channel models.Channel, tenantID uint) ([]*models.SuppressionRule, error) {
	db := r.getDB(ctx)
	var rows []*models.SuppressionRule
	err := db.Where("is_active = ?", true).
		Where("channel IN ?", []models.Channel{channel, models.ChannelAll}).
		Where("tenant_id = ? OR tenant_id IS NULL", tenantID).
		Order("priority ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkTriggered increments the rule counter in the database, not in Go, so
// concurrent matches on the same rule never lose updates.
func (r *SuppressionRepositoryImpl) MarkTriggered(ctx context.Context, ruleID uint, at time.Time) error {
	db := r.getDB(ctx)
	return db.Model(&models.SuppressionRule{}).
		Where("id = ?", ruleID).
		Updates(map[string]any{
			"trigger_count":     gorm.Expr("trigger_count + 1"),
			"last_triggered_at": utils.TimeToUTC(at),
			"updated_at":        utils.UTCNow(),
		}).Error
}

func (r *SuppressionRepositoryImpl) AddEntry(ctx context.Context, entry *models.SuppressionEntry) error {
	db := r.getDB(ctx)
	return db.Create(entry).Error
}

func (r *SuppressionRepositoryImpl) SaveRule(ctx context.Context, rule *models.SuppressionRule) error {
	db := r.getDB(ctx)
	return db.Save(rule).Error
}
