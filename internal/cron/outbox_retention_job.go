package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/lastmile-backend/pkg/enums"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultParkedAttempts  = 10
)

type outboxPruner interface {
	PruneBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type dlqCounter interface {
	CountByReasonSince(ctx context.Context, since time.Time) (map[enums.OutboxDLQErrorReason]int64, error)
}

type OutboxRetentionJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Outbox    outboxPruner
	Retention time.Duration
	// ParkedAttempts is the attempt count after which an unpublished row
	// has been copied to the DLQ and may be pruned too.
	ParkedAttempts int
	// DLQ is optional. When set, each run logs parked counts within the
	// retention window.
	DLQ dlqCounter
}

type outboxRetentionJob struct {
	logg           *logger.Logger
	db             txRunner
	outbox         outboxPruner
	retention      time.Duration
	parkedAttempts int
	dlq            dlqCounter
	now            func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:           params.Logger,
		db:             params.DB,
		outbox:         params.Outbox,
		retention:      params.Retention,
		parkedAttempts: params.ParkedAttempts,
		dlq:            params.DLQ,
		now:            time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.parkedAttempts <= 0 {
		job.parkedAttempts = defaultParkedAttempts
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var pruned int64
	if err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		pruned, err = j.outbox.PruneBefore(ctx, tx, cutoff, j.parkedAttempts)
		return err
	}); err != nil {
		return fmt.Errorf("prune outbox: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": pruned,
	}), "outbox pruned")
	j.reportParked(ctx, cutoff)
	return nil
}

func (j *outboxRetentionJob) reportParked(ctx context.Context, since time.Time) {
	if j.dlq == nil {
		return
	}
	counts, err := j.dlq.CountByReasonSince(ctx, since)
	if err != nil {
		j.logg.Warn(j.logg.WithField(ctx, "error", err.Error()), "outbox dlq count failed")
		return
	}
	if len(counts) == 0 {
		return
	}
	fields := make(map[string]any, len(counts))
	for reason, n := range counts {
		fields["dlq_"+string(reason)] = n
	}
	j.logg.Warn(j.logg.WithFields(ctx, fields), "outbox events parked")
}
