package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relaymark/courier/models"
	"github.com/relaymark/courier/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CampaignMessageRepositoryImpl implements CampaignMessageRepository
type CampaignMessageRepositoryImpl struct {
	*BaseRepository[models.CampaignMessage, models.CampaignMessageFilter]
}

func NewCampaignMessageRepository(db *gorm.DB) CampaignMessageRepository {
	return &CampaignMessageRepositoryImpl{BaseRepository: NewBaseRepository[models.CampaignMessage, models.CampaignMessageFilter](db)}
}

func (r *CampaignMessageRepositoryImpl) ByID(ctx context.Context, id uint) (*models.CampaignMessage, error) {
	db := r.getDB(ctx)
	var row models.CampaignMessage
	if err := db.Last(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ListDue returns pending messages whose due time has arrived. Rows already
// claimed by a concurrent sweep are skipped rather than waited on.
func (r *CampaignMessageRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.CampaignMessage, error) {
	if limit <= 0 {
		limit = utils.DefaultSweepBatchSize
	}
	db := r.getDB(ctx)
	var rows []*models.CampaignMessage
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", models.MessageStatusPending).
		Where("(next_attempt_at IS NULL AND scheduled_at <= ?) OR next_attempt_at <= ?", now, now).
		Order("scheduled_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Transition applies mutate to the in-memory message, then persists it with
// a WHERE fence on (id, status, lock_version). Zero matched rows means a
// concurrent cycle won the race and the caller must drop its work.
func (r *CampaignMessageRepositoryImpl) Transition(ctx context.Context, msg *models.CampaignMessage, next models.MessageStatus, mutate func(*models.CampaignMessage)) error {
	if !msg.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal transition %s -> %s for message %d", msg.Status, next, msg.ID)
	}

	prevStatus := msg.Status
	prevVersion := msg.LockVersion

	msg.Status = next
	msg.LockVersion = prevVersion + 1
	msg.UpdatedAt = utils.UTCNow()
	if mutate != nil {
		mutate(msg)
	}

	db := r.getDB(ctx)
	res := db.Model(&models.CampaignMessage{}).
		Where("id = ? AND status = ? AND lock_version = ?", msg.ID, prevStatus, prevVersion).
		Select("*").
		Omit("id", "created_at", "deleted_at").
		Updates(msg)
	if res.Error != nil {
		msg.Status = prevStatus
		msg.LockVersion = prevVersion
		return res.Error
	}
	if res.RowsAffected == 0 {
		msg.Status = prevStatus
		msg.LockVersion = prevVersion
		return ErrStaleMessage
	}
	return nil
}

// Reschedule returns a sending message to pending, due again at dueAt
func (r *CampaignMessageRepositoryImpl) Reschedule(ctx context.Context, msg *models.CampaignMessage, dueAt time.Time) error {
	return r.Transition(ctx, msg, models.MessageStatusPending, func(m *models.CampaignMessage) {
		due := utils.TimeToUTC(dueAt)
		m.NextAttemptAt = &due
	})
}

// RequeueStale recovers messages a crashed dispatcher left in Sending: any
// row that has not been touched for olderThan goes back to pending, due
// immediately. The bumped lock version fences out the dead cycle should it
// ever resume.
func (r *CampaignMessageRepositoryImpl) RequeueStale(ctx context.Context, now time.Time, olderThan time.Duration) (int64, error) {
	now = utils.TimeToUTC(now)
	db := r.getDB(ctx)
	res := db.Model(&models.CampaignMessage{}).
		Where("status = ? AND updated_at < ?", models.MessageStatusSending, now.Add(-olderThan)).
		Updates(map[string]any{
			"status":          models.MessageStatusPending,
			"next_attempt_at": now,
			"lock_version":    gorm.Expr("lock_version + 1"),
			"updated_at":      now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// MarkCanceledByCampaign cancels every still-pending message of a campaign.
// Messages mid-flight stay untouched; their cycle observes the pause flag.
func (r *CampaignMessageRepositoryImpl) MarkCanceledByCampaign(ctx context.Context, campaignID uint) (int64, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.CampaignMessage{}).
		Where("campaign_id = ? AND status = ?", campaignID, models.MessageStatusPending).
		Updates(map[string]any{
			"status":       models.MessageStatusCanceled,
			"lock_version": gorm.Expr("lock_version + 1"),
			"updated_at":   utils.UTCNow(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *CampaignMessageRepositoryImpl) applyFilter(db *gorm.DB, f models.CampaignMessageFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.TenantID != nil {
		db = db.Where("tenant_id = ?", *f.TenantID)
	}
	if f.CampaignID != nil {
		db = db.Where("campaign_id = ?", *f.CampaignID)
	}
	if f.ContactID != nil {
		db = db.Where("contact_id = ?", *f.ContactID)
	}
	if f.Channel != nil {
		db = db.Where("channel = ?", *f.Channel)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *CampaignMessageRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignMessageFilter, orderBy string, limit, offset int) ([]*models.CampaignMessage, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.CampaignMessage{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.CampaignMessage
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *CampaignMessageRepositoryImpl) Count(ctx context.Context, filter models.CampaignMessageFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.CampaignMessage{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *CampaignMessageRepositoryImpl) Exists(ctx context.Context, filter models.CampaignMessageFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
