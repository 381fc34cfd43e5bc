package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/invitely/backend/internal/application/reconciliation"
	apptrade "github.com/invitely/backend/internal/application/trade"
)

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) Run(ctx context.Context, opts reconciliation.RunOptions) (*reconciliation.Report, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Report), args.Error(1)
}

type mockRetrier struct {
	mock.Mock
}

func (m *mockRetrier) RetryPending(ctx context.Context, limit int) (*apptrade.SideEffectReport, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apptrade.SideEffectReport), args.Error(1)
}

func TestReconciliationRunner(t *testing.T) {
	opts := reconciliation.BackfillOptions{DryRun: true, ChunkSize: 100, IncludeOrphaned: true}

	t.Run("runs all jobs with configured options", func(t *testing.T) {
		reconciler := &mockReconciler{}
		reconciler.On("Run", mock.Anything, reconciliation.RunOptions{BackfillOptions: opts, Job: reconciliation.JobAll}).
			Return(&reconciliation.Report{DryRun: true, Scanned: 3, Failed: 1}, nil)

		changed, err := ReconciliationRunner(reconciler, opts, nil)(context.Background())
		require.NoError(t, err)
		assert.Zero(t, changed)
		reconciler.AssertExpectations(t)
	})

	t.Run("propagates run errors", func(t *testing.T) {
		reconciler := &mockReconciler{}
		reconciler.On("Run", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		_, err := ReconciliationRunner(reconciler, opts, nil)(context.Background())
		assert.EqualError(t, err, "db down")
	})

	t.Run("reports changed rows of a live run", func(t *testing.T) {
		live := opts
		live.DryRun = false
		reconciler := &mockReconciler{}
		reconciler.On("Run", mock.Anything, mock.Anything).Return(&reconciliation.Report{Scanned: 9, Changed: 4}, nil)

		changed, err := ReconciliationRunner(reconciler, live, nil)(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 4, changed)
	})
}

func TestCancellationRetryRunner(t *testing.T) {
	retrier := &mockRetrier{}
	retrier.On("RetryPending", mock.Anything, 50).Return(&apptrade.SideEffectReport{Scanned: 2, Refunded: 1}, nil).Once()
	retrier.On("RetryPending", mock.Anything, 5).Return(nil, errors.New("db down")).Once()

	changed, err := CancellationRetryRunner(retrier, 0)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	_, err = CancellationRetryRunner(retrier, 5)(context.Background())
	assert.Error(t, err)
	retrier.AssertExpectations(t)
}

type recordedRun struct {
	job     string
	changed int
}

type fakeRecorder struct {
	runs []recordedRun
}

func (f *fakeRecorder) RecordJob(_ context.Context, job string, _ time.Duration, changed int) {
	f.runs = append(f.runs, recordedRun{job: job, changed: changed})
}

func TestDispatcher(t *testing.T) {
	recorder := &fakeRecorder{}
	d := NewDispatcher().
		Register(JobKindReconciliation, func(context.Context) (int, error) { return 3, nil }).
		WithRecorder(recorder)

	require.NoError(t, d.Execute(context.Background(), &Job{Kind: JobKindReconciliation}))
	assert.Equal(t, []recordedRun{{job: "reconciliation", changed: 3}}, recorder.runs)

	err := d.Execute(context.Background(), &Job{Kind: JobKindCancellationRetry})
	assert.ErrorIs(t, err, ErrUnknownJobKind)
	assert.ElementsMatch(t, []JobKind{JobKindReconciliation}, d.Kinds())
}
