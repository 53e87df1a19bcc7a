package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/lastmile-backend/internal/completion"
	"github.com/angelmondragon/lastmile-backend/pkg/logger"
)

type completionReconciler interface {
	ReconcileBatch(ctx context.Context, limit int) (completion.BatchResult, error)
}

type completionReconcileJob struct {
	logg       *logger.Logger
	completion completionReconciler
	batch      int
}

// NewCompletionReconcileJob retries delivered shipments whose earning or
// settlement posting has not landed yet.
func NewCompletionReconcileJob(logg *logger.Logger, svc completionReconciler, batch int) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if svc == nil {
		return nil, fmt.Errorf("completion service required")
	}
	if batch <= 0 {
		batch = 100
	}
	return &completionReconcileJob{logg: logg, completion: svc, batch: batch}, nil
}

func (j *completionReconcileJob) Name() string { return "completion-reconcile" }

func (j *completionReconcileJob) Run(ctx context.Context) error {
	result, err := j.completion.ReconcileBatch(ctx, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":   result.Scanned,
		"completed": result.Completed,
		"failed":    result.Failed,
	})
	if err != nil {
		j.logg.Warn(logCtx, "completion reconcile left rows open")
		return err
	}
	if result.Scanned > 0 {
		j.logg.Info(logCtx, "completion reconcile pass done")
	}
	return nil
}
