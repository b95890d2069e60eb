package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cageside/internal/domain"
	"cageside/internal/eventbus"
	"cageside/internal/pkg/worker"
	"cageside/internal/stats"
	"cageside/internal/testutil"

	"github.com/riverqueue/river"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T) (*testutil.MemStore, *Scheduler) {
	t.Helper()
	st := testutil.NewMemStore()
	ctx := context.Background()
	_, err := st.EnsureBout(ctx, domain.Bout{ID: "b1", RedFighterID: "red-x", BlueFighterID: "blue-y", ScheduledRounds: 3})
	require.NoError(t, err)
	for round := 1; round <= 2; round++ {
		for _, c := range []domain.Corner{domain.CornerRed, domain.CornerBlue} {
			_, _, err := st.InsertEvent(ctx, domain.Event{BoutID: "b1", RoundNumber: round, Corner: c, Aspect: domain.AspectStriking, EventType: "JAB"})
			require.NoError(t, err)
		}
	}
	return st, NewScheduler(st, stats.NewPipeline(st), nil)
}

func TestManualRoundJobLifecycle(t *testing.T) {
	st, s := newFixture(t)
	jobs, err := s.Manual(context.Background(), ManualRequest{JobType: domain.JobTypeRound, BoutID: "b1", RoundNumber: 1, SubjectID: "red-x"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	job := jobs[0]
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, domain.TriggerManual, job.Trigger)
	assert.Equal(t, 1, job.RowsProcessed)
	assert.Equal(t, 1, job.RowsUpdated)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.Errors)

	stored, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, stored.Status)
}

func TestManualValidation(t *testing.T) {
	_, s := newFixture(t)
	ctx := context.Background()
	cases := []ManualRequest{
		{JobType: "weekly"},
		{JobType: domain.JobTypeRound, BoutID: "b1", SubjectID: "red-x"},
		{JobType: domain.JobTypeFight, BoutID: "b1"},
		{JobType: domain.JobTypeCareer},
		{Full: true},
	}
	for _, req := range cases {
		_, err := s.Manual(ctx, req)
		assert.ErrorIs(t, err, domain.ErrValidation, "%+v", req)
	}
}

func TestManualFailureRecordedOnJob(t *testing.T) {
	_, s := newFixture(t)
	jobs, err := s.Manual(context.Background(), ManualRequest{JobType: domain.JobTypeRound, BoutID: "b1", RoundNumber: 1, SubjectID: "nobody"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobFailed, jobs[0].Status)
	require.Len(t, jobs[0].Errors, 1)
	assert.Contains(t, jobs[0].Errors[0], "round aggregation b1/1/nobody")
}

func TestFullRecalculationOrderAndCount(t *testing.T) {
	st, s := newFixture(t)
	jobs, err := s.Manual(context.Background(), ManualRequest{Full: true, BoutID: "b1"})
	require.NoError(t, err)
	// 2 rounds x 2 subjects, then 2 fights, then 2 careers.
	require.Len(t, jobs, 8)
	for i, j := range jobs {
		assert.Equal(t, domain.JobCompleted, j.Status, "job %d", i)
	}
	for _, j := range jobs[:4] {
		assert.Equal(t, domain.JobTypeRound, j.JobType)
	}
	for _, j := range jobs[4:6] {
		assert.Equal(t, domain.JobTypeFight, j.JobType)
	}
	for _, j := range jobs[6:] {
		assert.Equal(t, domain.JobTypeCareer, j.JobType)
	}

	fight, err := st.GetFightStats(context.Background(), "b1", "red-x")
	require.NoError(t, err)
	assert.Equal(t, 2, fight.StrikesLanded)
	career, err := st.GetCareerStats(context.Background(), "blue-y")
	require.NoError(t, err)
	assert.Equal(t, 1, career.TotalFights)
}

func TestSiblingFailureDoesNotBlockOthers(t *testing.T) {
	st, s := newFixture(t)
	st.FailIf = func(method, key string) error {
		if method == "UpsertRoundStats" && key == "b1/1/red-x" {
			return errors.New("disk full")
		}
		return nil
	}
	jobs, err := s.RoundLocked(context.Background(), "b1", 1)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	statuses := map[string]domain.JobStatus{}
	for _, j := range jobs {
		statuses[j.SubjectID] = j.Status
	}
	assert.Equal(t, domain.JobFailed, statuses["red-x"])
	assert.Equal(t, domain.JobCompleted, statuses["blue-y"])
}

func TestNightlyCoversBoutsAndSubjects(t *testing.T) {
	st, s := newFixture(t)
	_, err := s.RoundLocked(context.Background(), "b1", 1)
	require.NoError(t, err)

	jobs, err := s.Nightly(context.Background())
	require.NoError(t, err)
	// 2 fights for b1, then a career per subject with fight stats.
	require.Len(t, jobs, 4)
	for _, j := range jobs {
		assert.Equal(t, domain.TriggerNightly, j.Trigger)
		assert.Equal(t, domain.JobCompleted, j.Status)
	}
	_, err = st.GetCareerStats(context.Background(), "red-x")
	require.NoError(t, err)
}

func TestJobFinishedPublished(t *testing.T) {
	st := testutil.NewMemStore()
	_, err := st.EnsureBout(context.Background(), domain.Bout{ID: "b1", RedFighterID: "r", BlueFighterID: "b"})
	require.NoError(t, err)
	bus := eventbus.New(10)
	defer bus.Close()
	sub := bus.Subscribe(eventbus.KindIn(eventbus.KindJobFinished))
	defer sub.Close()

	s := NewScheduler(st, stats.NewPipeline(st), bus)
	_, err = s.Manual(context.Background(), ManualRequest{JobType: domain.JobTypeCareer, SubjectID: "r"})
	require.NoError(t, err)

	select {
	case n := <-sub.C():
		job, ok := n.Data.(domain.AggregationJob)
		require.True(t, ok)
		assert.Equal(t, domain.JobTypeCareer, job.JobType)
	case <-time.After(time.Second):
		t.Fatal("job_finished not published")
	}
}

type recordingDispatcher struct {
	mu   sync.Mutex
	reqs []Request
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reqs = append(d.reqs, req)
	return nil
}

func TestTriggersUseDispatcher(t *testing.T) {
	_, s := newFixture(t)
	d := &recordingDispatcher{}
	s.SetDispatcher(d)
	ctx := context.Background()

	require.NoError(t, s.TriggerRoundLocked(ctx, "b1", 2))
	require.NoError(t, s.TriggerPostFight(ctx, "b1"))
	require.NoError(t, s.TriggerNightly(ctx))
	assert.ErrorIs(t, s.TriggerRoundLocked(ctx, "b1", 0), domain.ErrValidation)
	assert.ErrorIs(t, s.TriggerPostFight(ctx, ""), domain.ErrValidation)

	assert.Equal(t, []Request{
		{Trigger: domain.TriggerRoundLocked, BoutID: "b1", RoundNumber: 2},
		{Trigger: domain.TriggerPostFight, BoutID: "b1"},
		{Trigger: domain.TriggerNightly},
	}, d.reqs)
}

func TestPoolBackendRunsExecute(t *testing.T) {
	st, s := newFixture(t)
	pool, err := worker.NewPool("jobs-test", 2, time.Second)
	require.NoError(t, err)
	defer func() { _ = pool.Release(time.Second) }()
	s.SetDispatcher(NewPoolBackend(pool, s))

	require.NoError(t, s.TriggerRoundLocked(context.Background(), "b1", 1))
	require.Eventually(t, func() bool {
		done := 0
		for _, j := range st.Jobs() {
			if j.Status.Terminal() {
				done++
			}
		}
		return done == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestExecuteRejectsUnknownTrigger(t *testing.T) {
	_, s := newFixture(t)
	err := s.Execute(context.Background(), Request{Trigger: domain.TriggerManual})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAggregateArgs(t *testing.T) {
	if got := (AggregateArgs{}).Kind(); got != "stats_aggregate" {
		t.Fatalf("Kind() = %q, want %q", got, "stats_aggregate")
	}
	opts := (AggregateArgs{}).InsertOpts()
	if opts.Queue != river.QueueDefault {
		t.Fatalf("Queue = %q, want %q", opts.Queue, river.QueueDefault)
	}
	if !opts.UniqueOpts.ByArgs {
		t.Fatal("UniqueOpts.ByArgs = false, want true")
	}
}

func TestAggregateWorkerUninitialized(t *testing.T) {
	var w *AggregateWorker
	err := w.Work(context.Background(), &river.Job[AggregateArgs]{})
	if err == nil {
		t.Fatal("expected error from uninitialized worker")
	}
}
