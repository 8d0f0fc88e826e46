// Package scheduler
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaymark/courier/app/middleware"
	businessflow "github.com/relaymark/courier/business_flow"
	"github.com/relaymark/courier/models"
	"github.com/relaymark/courier/repository"
	"github.com/relaymark/courier/utils"
)

// DispatchScheduler periodically sweeps due campaign messages and runs a
// dispatch cycle for each one. Multiple instances may sweep the same table:
// row locks skip contended rows and a Redis lock serializes per-message work
// across instances.
type DispatchScheduler struct {
	msgRepo  repository.CampaignMessageRepository
	dispatch businessflow.DispatchFlow
	rdb      *redis.Client
	logger   *log.Logger
	interval time.Duration
	batch    int
	workers  int

	logFile *os.File
}

func NewDispatchScheduler(
	msgRepo repository.CampaignMessageRepository,
	dispatch businessflow.DispatchFlow,
	rdb *redis.Client,
	logger *log.Logger,
	interval time.Duration,
	batch int,
	workers int,
) *DispatchScheduler {
	if interval <= 0 {
		interval = utils.DefaultSweepInterval
	}
	if batch <= 0 {
		batch = utils.DefaultSweepBatchSize
	}
	if workers <= 0 {
		workers = 16
	}

	s := &DispatchScheduler{
		msgRepo:  msgRepo,
		dispatch: dispatch,
		rdb:      rdb,
		logger:   logger,
		interval: interval,
		batch:    batch,
		workers:  workers,
	}

	// Initialize scheduler-specific logger (to stdout and persistent file)
	if s.logger == nil {
		if err := s.initSchedulerLogger(); err != nil {
			// Fallback to default stdout logger if file logger init fails
			s.logger = log.Default()
			s.logger.Printf("dispatcher: failed to initialize file logger: %v", err)
		}
	}

	return s
}

// initSchedulerLogger configures a logger that writes to both stdout and a persistent file under data/ (or /data)
func (s *DispatchScheduler) initSchedulerLogger() error {
	// Prefer relative data/ then fallback to /data for containerized environments
	candidates := []string{
		filepath.Join("data"),
		"/data",
	}
	for _, dir := range candidates {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			continue
		}
		logPath := filepath.Join(dir, "dispatcher.log")
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			continue
		}
		// Success
		s.logFile = f
		mw := io.MultiWriter(os.Stdout, f)
		// log.Logger is goroutine-safe; include timestamps with microseconds and UTC
		s.logger = log.New(mw, "dispatcher ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
		return nil
	}
	return fmt.Errorf("could not create dispatcher log file in any candidate directory")
}

// Start launches the sweep loop in a background goroutine and returns a stop function
func (s *DispatchScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				if s.logFile != nil {
					s.logFile.Close()
				}
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

func (s *DispatchScheduler) runOnce(ctx context.Context) {
	now := utils.UTCNow()

	// Recover cycles a crashed instance left mid-flight
	if n, err := s.msgRepo.RequeueStale(ctx, now, utils.StaleSendingAfter); err != nil {
		s.logger.Printf("dispatcher: stale requeue failed: %v", err)
	} else if n > 0 {
		s.logger.Printf("dispatcher: requeued %d stale sending messages", n)
	}

	due, err := s.msgRepo.ListDue(ctx, now, s.batch)
	if err != nil {
		s.logger.Printf("dispatcher: list due messages failed: %v", err)
		return
	}
	middleware.SetDispatchBacklog(len(due))
	if len(due) == 0 {
		return
	}
	s.logger.Printf("dispatcher: claimed %d due messages", len(due))

	// Bounded fan-out; the sweep returns once every claimed message finished
	sem := make(chan struct{}, s.workers)
claim:
	for _, msg := range due {
		m := msg
		select {
		case <-ctx.Done():
			break claim
		case sem <- struct{}{}:
		}
		go func() {
			defer func() { <-sem }()
			s.dispatchOne(ctx, m)
		}()
	}
	// Drain even when cancelled mid-claim so no worker outlives the sweep
	for i := 0; i < s.workers; i++ {
		sem <- struct{}{}
	}
}

// dispatchOne runs one full dispatch cycle under the per-message Redis lock
func (s *DispatchScheduler) dispatchOne(ctx context.Context, msg *models.CampaignMessage) {
	if paused, err := s.IsCampaignPaused(ctx, msg.CampaignID); err != nil {
		s.logger.Printf("dispatcher: pause check failed for message id=%d: %v", msg.ID, err)
		return
	} else if paused {
		return
	}

	lockKey := utils.MessageLockPrefix + strconv.FormatUint(uint64(msg.ID), 10)
	locked, err := s.rdb.SetNX(ctx, lockKey, "1", utils.MessageLockTTL).Result()
	if err != nil {
		s.logger.Printf("dispatcher: lock acquire failed for message id=%d: %v", msg.ID, err)
		return
	}
	if !locked {
		// Another instance owns this cycle
		return
	}
	defer s.rdb.Del(ctx, lockKey)

	started := time.Now()
	outcome, err := s.dispatch.Dispatch(ctx, msg)
	if err != nil {
		if errors.Is(err, businessflow.ErrMessageClaimed) {
			return
		}
		middleware.ObserveDispatch("error")
		s.logger.Printf("dispatcher: dispatch failed for message id=%d: %v", msg.ID, err)
		return
	}

	if outcome.Provider != "" {
		middleware.ObserveProviderSend(outcome.Provider, time.Since(started))
	}
	middleware.ObserveDispatch(s.resultLabel(outcome))

	switch {
	case outcome.Status == models.MessageStatusDelivered:
		s.logger.Printf("dispatcher: message id=%d delivered via %s attempt=%d", msg.ID, outcome.Provider, outcome.AttemptNumber)
	case outcome.Deferred:
		s.logger.Printf("dispatcher: message id=%d deferred until %s (%s)", msg.ID, outcome.NextAttemptAt.Format(time.RFC3339), outcome.Reason)
	case outcome.Status == models.MessageStatusPending:
		s.logger.Printf("dispatcher: message id=%d retry scheduled for %s (%s)", msg.ID, outcome.NextAttemptAt.Format(time.RFC3339), outcome.Reason)
	default:
		s.logger.Printf("dispatcher: message id=%d finished status=%s reason=%q", msg.ID, outcome.Status, outcome.Reason)
	}
}

func (s *DispatchScheduler) resultLabel(out *businessflow.DispatchOutcome) string {
	switch {
	case out.Deferred:
		return "deferred"
	case out.Status == models.MessageStatusPending:
		return "retried"
	default:
		return out.Status.String()
	}
}

// PauseCampaign sets the shared pause flag observed by every instance's
// sweeps. In-flight cycles finish; nothing new starts for the campaign.
func (s *DispatchScheduler) PauseCampaign(ctx context.Context, campaignID uint) error {
	key := utils.CampaignPausePrefix + strconv.FormatUint(uint64(campaignID), 10)
	return s.rdb.Set(ctx, key, "1", 0).Err()
}

// ResumeCampaign clears the pause flag
func (s *DispatchScheduler) ResumeCampaign(ctx context.Context, campaignID uint) error {
	key := utils.CampaignPausePrefix + strconv.FormatUint(uint64(campaignID), 10)
	return s.rdb.Del(ctx, key).Err()
}

// IsCampaignPaused reads the shared pause flag
func (s *DispatchScheduler) IsCampaignPaused(ctx context.Context, campaignID uint) (bool, error) {
	key := utils.CampaignPausePrefix + strconv.FormatUint(uint64(campaignID), 10)
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CancelCampaign pauses the campaign and cancels every still-pending message
func (s *DispatchScheduler) CancelCampaign(ctx context.Context, campaignID uint) (int64, error) {
	if err := s.PauseCampaign(ctx, campaignID); err != nil {
		return 0, err
	}
	n, err := s.msgRepo.MarkCanceledByCampaign(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	s.logger.Printf("dispatcher: campaign id=%d canceled, %d pending messages marked", campaignID, n)
	return n, nil
}
