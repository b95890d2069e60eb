package store

import (
	"context"
	"errors"

	"cageside/internal/domain"

	"github.com/jackc/pgx/v5/pgtype"
)

// ErrJobTerminal is returned when an update targets a completed or failed job.
var ErrJobTerminal = errors.New("job_terminal")

const jobColumns = `id, job_type, trigger, bout_id, round_number, subject_id, status, started_at, completed_at, rows_processed, rows_updated, errors, warnings, created_at`

func scanJob(row rowScanner) (domain.AggregationJob, error) {
	var (
		j                   domain.AggregationJob
		jobType, trig, stat string
		bout, subject       pgtype.Text
		round               pgtype.Int4
		started, completed  pgtype.Timestamptz
	)
	if err := row.Scan(&j.ID, &jobType, &trig, &bout, &round, &subject, &stat, &started, &completed,
		&j.RowsProcessed, &j.RowsUpdated, &j.Errors, &j.Warnings, &j.CreatedAt); err != nil {
		return domain.AggregationJob{}, err
	}
	j.JobType = domain.JobType(jobType)
	j.Trigger = domain.JobTrigger(trig)
	j.Status = domain.JobStatus(stat)
	j.BoutID = textVal(bout)
	j.RoundNumber = int4Val(round)
	j.SubjectID = textVal(subject)
	j.StartedAt = timePtrVal(started)
	j.CompletedAt = timePtrVal(completed)
	return j, nil
}

func (s *Store) CreateJob(ctx context.Context, j domain.AggregationJob) (domain.AggregationJob, error) {
	if j.ID == "" {
		j.ID = NewID()
	}
	if j.Status == "" {
		j.Status = domain.JobPending
	}
	return scanJob(s.Pool.QueryRow(ctx, `
INSERT INTO aggregation_jobs (id, job_type, trigger, bout_id, round_number, subject_id, status, errors, warnings)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING `+jobColumns,
		j.ID, string(j.JobType), string(j.Trigger), textParam(j.BoutID), int4Param(j.RoundNumber), textParam(j.SubjectID),
		string(j.Status), nonNilStrings(j.Errors), nonNilStrings(j.Warnings)))
}

// UpdateJob persists status and counters. Terminal rows never reopen.
func (s *Store) UpdateJob(ctx context.Context, j domain.AggregationJob) error {
	tag, err := s.Pool.Exec(ctx, `
UPDATE aggregation_jobs SET
  status = $2,
  started_at = $3,
  completed_at = $4,
  rows_processed = $5,
  rows_updated = $6,
  errors = $7,
  warnings = $8
WHERE id = $1 AND status NOT IN ('completed', 'failed')`,
		j.ID, string(j.Status), timeParam(j.StartedAt), timeParam(j.CompletedAt), j.RowsProcessed, j.RowsUpdated,
		nonNilStrings(j.Errors), nonNilStrings(j.Warnings))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetJob(ctx, j.ID); err != nil {
			return err
		}
		return ErrJobTerminal
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*domain.AggregationJob, error) {
	j, err := scanJob(s.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM aggregation_jobs WHERE id = $1`, id))
	if err != nil {
		return nil, mapNotFound(err, "job", id)
	}
	return &j, nil
}

func (s *Store) ListJobs(ctx context.Context, limit, offset int) ([]domain.AggregationJob, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+jobColumns+` FROM aggregation_jobs ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.AggregationJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
