package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/schoolfeedback/feedbackd/internal/config"
	"github.com/schoolfeedback/feedbackd/internal/models"
	"github.com/schoolfeedback/feedbackd/pkg/logger"
	"gorm.io/gorm"
)

// SubmissionRecorder stores the outcome of a submission. Implementations
// must not fail the request: errors are logged and dropped.
type SubmissionRecorder interface {
	Record(ctx context.Context, entry *models.SubmissionLog)
}

// NopRecorder is used when the database is disabled.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *models.SubmissionLog) {}

type SubmissionLogService struct {
	db            *gorm.DB
	retentionDays int
	cleanupSpec   string
	scheduler     *cron.Cron
}

func NewSubmissionLogService(db *gorm.DB, cfg *config.DatabaseConfig) *SubmissionLogService {
	return &SubmissionLogService{
		db:            db,
		retentionDays: cfg.RetentionDays,
		cleanupSpec:   cfg.CleanupCron,
	}
}

func (s *SubmissionLogService) Record(ctx context.Context, entry *models.SubmissionLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	// The entry is written even when the client has already gone away.
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Create(entry).Error; err != nil {
		logger.Warn().Err(err).Str("request_id", entry.RequestID).Msg("[SubmissionLog] Failed to record submission")
	}
}

// Ping checks the database connection.
func (s *SubmissionLogService) Ping() error {
	return models.Ping(s.db)
}

// CleanupOldLogs deletes entries older than retentionDays and returns the
// number of deleted rows.
func (s *SubmissionLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result := s.db.Where("created_at < ?", cutoff).Delete(&models.SubmissionLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// StartCleanupScheduler runs the retention cleanup once, then on the
// configured cron schedule.
func (s *SubmissionLogService) StartCleanupScheduler() error {
	if s.retentionDays <= 0 {
		logger.Info().Msg("[SubmissionLog] Cleanup disabled (retention_days <= 0)")
		return nil
	}

	s.scheduler = cron.New()
	if _, err := s.scheduler.AddFunc(s.cleanupSpec, s.runCleanup); err != nil {
		return err
	}

	s.runCleanup()
	s.scheduler.Start()
	logger.Infof("[SubmissionLog] Cleanup scheduled (cron: %s, retention: %d days)", s.cleanupSpec, s.retentionDays)
	return nil
}

func (s *SubmissionLogService) StopCleanupScheduler() {
	if s.scheduler != nil {
		<-s.scheduler.Stop().Done()
	}
}

func (s *SubmissionLogService) runCleanup() {
	deleted, err := s.CleanupOldLogs(s.retentionDays)
	if err != nil {
		logger.Errorf("[SubmissionLog] Failed to cleanup old entries: %v", err)
		return
	}
	if deleted > 0 {
		logger.Infof("[SubmissionLog] Cleaned up %d entries older than %d days", deleted, s.retentionDays)
	}
}
