package cron

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/lastmile-backend/pkg/logger"
)

type memLocker struct {
	held     map[string]bool
	released []string
}

func (m *memLocker) Acquire(_ context.Context, job string) (Lease, bool, error) {
	if m.held[job] {
		return nil, false, nil
	}
	m.held[job] = true
	return leaseFunc(func() { delete(m.held, job); m.released = append(m.released, job) }), true, nil
}

type leaseFunc func()

func (f leaseFunc) Release(context.Context) error { f(); return nil }

type countingJob struct {
	name string
	err  error
	runs int
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func newTestService(t *testing.T, locker Locker, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Locker: locker})
	require.NoError(t, err)
	return svc
}

func TestCycleRunsEveryJobDespiteFailures(t *testing.T) {
	ok := &countingJob{name: "ok"}
	failing := &countingJob{name: "failing", err: errors.New("boom")}
	locker := &memLocker{held: map[string]bool{}}
	svc := newTestService(t, locker, failing, ok)

	svc.runCycle(context.Background())
	require.Equal(t, 1, ok.runs)
	require.Equal(t, 1, failing.runs)
	require.ElementsMatch(t, []string{"ok", "failing"}, locker.released)
	require.Empty(t, locker.held)
}

func TestHeldJobIsSkipped(t *testing.T) {
	busy := &countingJob{name: "busy"}
	free := &countingJob{name: "free"}
	locker := &memLocker{held: map[string]bool{"busy": true}}
	svc := newTestService(t, locker, busy, free)

	svc.runCycle(context.Background())
	require.Zero(t, busy.runs)
	require.Equal(t, 1, free.runs)
}

func TestRunJobByName(t *testing.T) {
	job := &countingJob{name: "wallet-audit", err: errors.New("drift")}
	svc := newTestService(t, &memLocker{held: map[string]bool{}}, job)

	require.EqualError(t, svc.RunJob(context.Background(), "wallet-audit"), "drift")
	require.Equal(t, 1, job.runs)
	require.ErrorIs(t, svc.RunJob(context.Background(), "nope"), ErrUnknownJob)
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	_, err := NewRegistry(&countingJob{name: "a"}, &countingJob{name: "a"})
	require.Error(t, err)

	registry, err := NewRegistry(&countingJob{name: "a"}, nil, &countingJob{name: "b"})
	require.NoError(t, err)
	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	jobs[0] = nil
	require.NotNil(t, registry.Jobs()[0])
	_, found := registry.Lookup("b")
	require.True(t, found)
}
