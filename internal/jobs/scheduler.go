// Package jobs schedules stat aggregation and records every step as an
// aggregation job.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cageside/internal/domain"
	"cageside/internal/eventbus"
	"cageside/internal/stats"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Store interface {
	CreateJob(ctx context.Context, j domain.AggregationJob) (domain.AggregationJob, error)
	UpdateJob(ctx context.Context, j domain.AggregationJob) error
	GetJob(ctx context.Context, id string) (*domain.AggregationJob, error)
	ListJobs(ctx context.Context, limit, offset int) ([]domain.AggregationJob, error)
	ListBoutsWithRoundStats(ctx context.Context) ([]domain.Bout, error)
	ListStatSubjects(ctx context.Context) ([]string, error)
}

type Aggregator interface {
	Subjects(ctx context.Context, boutID string) ([]string, error)
	Rounds(ctx context.Context, boutID string) ([]int, error)
	AggregateRound(ctx context.Context, boutID string, round int, subjectID string) (stats.Outcome, error)
	AggregateFight(ctx context.Context, boutID, subjectID string) (stats.Outcome, error)
	AggregateCareer(ctx context.Context, subjectID string) (stats.Outcome, error)
}

type Publisher interface {
	Publish(kind eventbus.Kind, boutID string, round int, data any) eventbus.Notification
}

// Request names an asynchronous trigger. It is what the dispatch backends
// carry between the HTTP handler and the worker that runs it.
type Request struct {
	Trigger     domain.JobTrigger `json:"trigger"`
	BoutID      string            `json:"bout_id,omitempty"`
	RoundNumber int               `json:"round_number,omitempty"`
}

// Dispatcher hands a request to a background backend.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

// ManualRequest is the body of a manual trigger.
type ManualRequest struct {
	JobType     domain.JobType `json:"job_type"`
	BoutID      string         `json:"bout_id"`
	RoundNumber int            `json:"round_number"`
	SubjectID   string         `json:"subject_id"`
	Full        bool           `json:"full"`
}

type Scheduler struct {
	store      Store
	agg        Aggregator
	bus        Publisher
	dispatcher Dispatcher
	now        func() time.Time
}

func NewScheduler(st Store, agg Aggregator, bus Publisher) *Scheduler {
	return &Scheduler{store: st, agg: agg, bus: bus, now: time.Now}
}

// SetDispatcher installs the async backend. Without one, async triggers run
// on a detached goroutine.
func (s *Scheduler) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

func (s *Scheduler) ListJobs(ctx context.Context, limit, offset int) ([]domain.AggregationJob, error) {
	return s.store.ListJobs(ctx, limit, offset)
}

func (s *Scheduler) GetJob(ctx context.Context, id string) (*domain.AggregationJob, error) {
	return s.store.GetJob(ctx, id)
}

// Manual runs synchronously and returns every job it recorded.
func (s *Scheduler) Manual(ctx context.Context, req ManualRequest) ([]domain.AggregationJob, error) {
	if req.Full {
		if req.BoutID == "" {
			return nil, domain.Invalid("bout_id", "required for a full recalculation")
		}
		return s.FullRecalculation(ctx, domain.TriggerManual, req.BoutID)
	}
	switch req.JobType {
	case domain.JobTypeRound:
		if req.BoutID == "" || req.SubjectID == "" {
			return nil, domain.Invalid("job_type", "round needs bout_id and subject_id")
		}
		if req.RoundNumber < 1 {
			return nil, domain.Invalid("round_number", "must be positive")
		}
	case domain.JobTypeFight:
		if req.BoutID == "" || req.SubjectID == "" {
			return nil, domain.Invalid("job_type", "fight needs bout_id and subject_id")
		}
	case domain.JobTypeCareer:
		if req.SubjectID == "" {
			return nil, domain.Invalid("subject_id", "required")
		}
	default:
		return nil, domain.Invalid("job_type", fmt.Sprintf("unknown job type %q", req.JobType))
	}
	job, err := s.RunStep(ctx, domain.TriggerManual, req.JobType, req.BoutID, req.RoundNumber, req.SubjectID)
	if err != nil {
		return nil, err
	}
	return []domain.AggregationJob{job}, nil
}

// RunStep records one aggregation step from pending to a terminal status.
// An aggregation failure lands in the job's errors and is not returned;
// only failures to record the job itself are.
func (s *Scheduler) RunStep(ctx context.Context, trigger domain.JobTrigger, jobType domain.JobType, boutID string, round int, subjectID string) (domain.AggregationJob, error) {
	job, err := s.store.CreateJob(ctx, domain.AggregationJob{
		JobType:     jobType,
		Trigger:     trigger,
		BoutID:      boutID,
		RoundNumber: round,
		SubjectID:   subjectID,
		Status:      domain.JobPending,
	})
	if err != nil {
		return domain.AggregationJob{}, fmt.Errorf("create %s job: %w", jobType, err)
	}

	started := s.now().UTC()
	job.Status = domain.JobRunning
	job.StartedAt = &started
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return job, fmt.Errorf("mark job %s running: %w", job.ID, err)
	}

	out, runErr := s.execute(ctx, jobType, boutID, round, subjectID)
	finished := s.now().UTC()
	job.CompletedAt = &finished
	job.RowsProcessed = out.RowsProcessed
	job.RowsUpdated = out.RowsUpdated
	job.Warnings = append([]string{}, out.Warnings...)
	if runErr != nil {
		aggErr := &domain.AggregationError{JobType: jobType, Key: stepKey(boutID, round, subjectID), Err: runErr}
		job.Status = domain.JobFailed
		job.Errors = []string{aggErr.Error()}
		log.Error().Err(aggErr).Str("job_id", job.ID).Str("trigger", string(trigger)).Msg("aggregation_job_failed")
	} else {
		job.Status = domain.JobCompleted
		job.Errors = []string{}
	}
	if err := s.store.UpdateJob(context.WithoutCancel(ctx), job); err != nil {
		return job, fmt.Errorf("finish job %s: %w", job.ID, err)
	}

	jobsFinished.WithLabelValues(string(jobType), string(job.Status)).Inc()
	jobSeconds.WithLabelValues(string(jobType)).Observe(finished.Sub(started).Seconds())
	if s.bus != nil {
		s.bus.Publish(eventbus.KindJobFinished, boutID, round, job)
	}
	log.Debug().
		Str("job_id", job.ID).
		Str("job_type", string(jobType)).
		Str("status", string(job.Status)).
		Int("rows_processed", job.RowsProcessed).
		Msg("aggregation_job_finished")
	return job, nil
}

func (s *Scheduler) execute(ctx context.Context, jobType domain.JobType, boutID string, round int, subjectID string) (stats.Outcome, error) {
	switch jobType {
	case domain.JobTypeRound:
		return s.agg.AggregateRound(ctx, boutID, round, subjectID)
	case domain.JobTypeFight:
		return s.agg.AggregateFight(ctx, boutID, subjectID)
	case domain.JobTypeCareer:
		return s.agg.AggregateCareer(ctx, subjectID)
	default:
		return stats.Outcome{}, domain.Invalid("job_type", string(jobType))
	}
}

func stepKey(boutID string, round int, subjectID string) string {
	switch {
	case boutID == "":
		return subjectID
	case round > 0:
		return fmt.Sprintf("%s/%d/%s", boutID, round, subjectID)
	default:
		return boutID + "/" + subjectID
	}
}

type step struct {
	jobType domain.JobType
	boutID  string
	round   int
	subject string
}

// runPhase runs sibling steps concurrently. A failed step never stops the
// others; recording errors are joined and returned.
func (s *Scheduler) runPhase(ctx context.Context, trigger domain.JobTrigger, steps []step) ([]domain.AggregationJob, error) {
	results := make([]domain.AggregationJob, len(steps))
	recordErrs := make([]error, len(steps))
	var g errgroup.Group
	g.SetLimit(4)
	for i, st := range steps {
		g.Go(func() error {
			results[i], recordErrs[i] = s.RunStep(ctx, trigger, st.jobType, st.boutID, st.round, st.subject)
			return nil
		})
	}
	_ = g.Wait()
	out := make([]domain.AggregationJob, 0, len(steps))
	for i := range results {
		if results[i].ID != "" {
			out = append(out, results[i])
		}
	}
	return out, errors.Join(recordErrs...)
}

// RoundLocked aggregates one round for both subjects of the bout.
func (s *Scheduler) RoundLocked(ctx context.Context, boutID string, round int) ([]domain.AggregationJob, error) {
	subjects, err := s.agg.Subjects(ctx, boutID)
	if err != nil {
		return nil, err
	}
	steps := make([]step, 0, len(subjects))
	for _, subj := range subjects {
		steps = append(steps, step{jobType: domain.JobTypeRound, boutID: boutID, round: round, subject: subj})
	}
	return s.runPhase(ctx, domain.TriggerRoundLocked, steps)
}

// FullRecalculation aggregates every round for both subjects, then both
// fights, then both careers. Each phase waits for the previous one.
func (s *Scheduler) FullRecalculation(ctx context.Context, trigger domain.JobTrigger, boutID string) ([]domain.AggregationJob, error) {
	subjects, err := s.agg.Subjects(ctx, boutID)
	if err != nil {
		return nil, err
	}
	rounds, err := s.agg.Rounds(ctx, boutID)
	if err != nil {
		return nil, err
	}

	var roundSteps, fightSteps, careerSteps []step
	for _, r := range rounds {
		for _, subj := range subjects {
			roundSteps = append(roundSteps, step{jobType: domain.JobTypeRound, boutID: boutID, round: r, subject: subj})
		}
	}
	for _, subj := range subjects {
		fightSteps = append(fightSteps, step{jobType: domain.JobTypeFight, boutID: boutID, subject: subj})
		careerSteps = append(careerSteps, step{jobType: domain.JobTypeCareer, subject: subj})
	}

	var all []domain.AggregationJob
	var errs []error
	for _, phase := range [][]step{roundSteps, fightSteps, careerSteps} {
		jobs, err := s.runPhase(ctx, trigger, phase)
		all = append(all, jobs...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return all, errors.Join(errs...)
}

// Nightly refreshes fight stats for every bout that has round stats, then
// career stats for every subject.
func (s *Scheduler) Nightly(ctx context.Context) ([]domain.AggregationJob, error) {
	bouts, err := s.store.ListBoutsWithRoundStats(ctx)
	if err != nil {
		return nil, err
	}
	var fightSteps []step
	for _, b := range bouts {
		for _, subj := range []string{b.RedFighterID, b.BlueFighterID} {
			fightSteps = append(fightSteps, step{jobType: domain.JobTypeFight, boutID: b.ID, subject: subj})
		}
	}
	all, fightErr := s.runPhase(ctx, domain.TriggerNightly, fightSteps)

	subjects, err := s.store.ListStatSubjects(ctx)
	if err != nil {
		return all, errors.Join(fightErr, err)
	}
	careerSteps := make([]step, 0, len(subjects))
	for _, subj := range subjects {
		careerSteps = append(careerSteps, step{jobType: domain.JobTypeCareer, subject: subj})
	}
	careers, careerErr := s.runPhase(ctx, domain.TriggerNightly, careerSteps)
	log.Info().Int("bouts", len(bouts)).Int("subjects", len(subjects)).Msg("nightly_aggregation_done")
	return append(all, careers...), errors.Join(fightErr, careerErr)
}

// Execute runs an asynchronous request in the calling goroutine. Dispatch
// backends call it from their workers.
func (s *Scheduler) Execute(ctx context.Context, req Request) error {
	var err error
	switch req.Trigger {
	case domain.TriggerRoundLocked:
		_, err = s.RoundLocked(ctx, req.BoutID, req.RoundNumber)
	case domain.TriggerPostFight:
		_, err = s.FullRecalculation(ctx, domain.TriggerPostFight, req.BoutID)
	case domain.TriggerNightly:
		_, err = s.Nightly(ctx)
	default:
		err = domain.Invalid("trigger", string(req.Trigger))
	}
	return err
}

func (s *Scheduler) TriggerRoundLocked(ctx context.Context, boutID string, round int) error {
	if boutID == "" {
		return domain.Invalid("bout_id", "required")
	}
	if round < 1 {
		return domain.Invalid("round_number", "must be positive")
	}
	return s.dispatch(ctx, Request{Trigger: domain.TriggerRoundLocked, BoutID: boutID, RoundNumber: round})
}

func (s *Scheduler) TriggerPostFight(ctx context.Context, boutID string) error {
	if boutID == "" {
		return domain.Invalid("bout_id", "required")
	}
	return s.dispatch(ctx, Request{Trigger: domain.TriggerPostFight, BoutID: boutID})
}

func (s *Scheduler) TriggerNightly(ctx context.Context) error {
	return s.dispatch(ctx, Request{Trigger: domain.TriggerNightly})
}

func (s *Scheduler) dispatch(ctx context.Context, req Request) error {
	triggersDispatched.WithLabelValues(string(req.Trigger)).Inc()
	if s.dispatcher != nil {
		return s.dispatcher.Dispatch(ctx, req)
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		if err := s.Execute(detached, req); err != nil {
			log.Error().Err(err).Str("trigger", string(req.Trigger)).Msg("aggregation_trigger_failed")
		}
	}()
	return nil
}
