package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/duka/supermarket-backend/pkg/logger"
)

// OutboxRetentionJobName labels the outbox cleanup in logs and metrics.
const OutboxRetentionJobName = "outbox-retention"

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultTerminalAttempt = 10
)

type OutboxRetentionJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Repo      outboxPurger
	Retention time.Duration
	// MaxAttempts matches the publisher limit; unpublished rows at or over
	// it are dead-lettered and safe to drop.
	MaxAttempts int
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (*OutboxRetentionJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultTerminalAttempt
	}
	return &OutboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repo,
		retention:   retention,
		maxAttempts: attempts,
		now:         time.Now,
	}, nil
}

// OutboxRetentionJob purges delivered and dead-lettered outbox rows.
type OutboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxPurger
	retention   time.Duration
	maxAttempts int
	now         func() time.Time
}

func (j *OutboxRetentionJob) Name() string { return OutboxRetentionJobName }

func (j *OutboxRetentionJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.maxAttempts)
		deleted = rows
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("outbox retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"max_attempts": j.maxAttempts,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "cron.outbox.purged")
	return deleted, nil
}
