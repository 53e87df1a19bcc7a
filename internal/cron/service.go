package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/lastmile-backend/pkg/logger"
	"github.com/angelmondragon/lastmile-backend/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

// ErrUnknownJob is returned by RunJob for a name nothing registered.
var ErrUnknownJob = errors.New("unknown cron job")

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locker   Locker
	// Metrics is optional.
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs each registered job under its own lease once per interval,
// so replicas split work per job rather than per cycle.
type Service struct {
	ServiceParams
}

func NewService(p ServiceParams) (*Service, error) {
	var missing []error
	if p.Logger == nil {
		missing = append(missing, errors.New("logger required"))
	}
	if p.Locker == nil {
		missing = append(missing, errors.New("locker required"))
	}
	if p.Registry == nil {
		missing = append(missing, errors.New("registry required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}
	if p.Interval <= 0 {
		p.Interval = defaultInterval
	}
	return &Service{ServiceParams: p}, nil
}

// Run runs a cycle immediately and then every interval until ctx ends. A
// cycle that overruns the interval starts the next one right away.
func (s *Service) Run(ctx context.Context) error {
	s.Logger.Info(s.Logger.WithField(ctx, "interval", s.Interval.String()), "cron service started")
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Logger.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-timer.C:
			started := time.Now()
			s.runCycle(ctx)
			timer.Reset(max(s.Interval-time.Since(started), 0))
		}
	}
}

// RunJob runs one job immediately, still honouring its lease.
func (s *Service) RunJob(ctx context.Context, name string) error {
	job, ok := s.Registry.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	_, err := s.runLeased(ctx, job)
	return err
}

func (s *Service) runCycle(ctx context.Context) {
	for _, job := range s.Registry.Jobs() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.runLeased(ctx, job); err != nil {
			s.Logger.Error(s.Logger.WithField(ctx, "job", job.Name()), "cron job failed", err)
		}
	}
}

// runLeased reports whether the job ran; false means another replica holds it.
func (s *Service) runLeased(ctx context.Context, job Job) (ran bool, err error) {
	name := job.Name()
	ctx = s.Logger.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})

	lease, acquired, err := s.Locker.Acquire(ctx, name)
	switch {
	case err != nil:
		return false, fmt.Errorf("acquire lease: %w", err)
	case !acquired:
		s.Logger.Debug(ctx, "job held by another worker")
		s.Metrics.Skipped(name)
		return false, nil
	}
	defer func() {
		if relErr := lease.Release(ctx); relErr != nil {
			s.Logger.Error(ctx, "failed to release job lease", relErr)
		}
	}()

	began := time.Now()
	err = job.Run(ctx)
	took := time.Since(began)
	s.Metrics.Ran(name, took, err)
	if err == nil {
		s.Logger.Info(s.Logger.WithField(ctx, "duration_ms", took.Milliseconds()), "job completed")
	}
	return true, err
}
