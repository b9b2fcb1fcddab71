package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"letmaster-backend/internal/apperr"
	"letmaster-backend/internal/models"
)

type ScheduledJobRepository struct {
	DB *pgxpool.Pool
}

func NewScheduledJobRepository(db *pgxpool.Pool) *ScheduledJobRepository {
	return &ScheduledJobRepository{DB: db}
}

func (r *ScheduledJobRepository) Get(ctx context.Context, jobName string) (*models.ScheduledJob, error) {
	row := r.DB.QueryRow(ctx,
		`SELECT job_name, next_run_time FROM scheduled_jobs WHERE job_name=$1`, jobName)

	var job models.ScheduledJob
	err := row.Scan(&job.JobName, &job.NextRunTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("scheduled job %q not found", jobName)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Ensure creates the cursor row if it does not exist yet. An existing row is
// left untouched so a restart never moves the schedule.
func (r *ScheduledJobRepository) Ensure(ctx context.Context, jobName string, nextRun time.Time) error {
	_, err := r.DB.Exec(ctx,
		`INSERT INTO scheduled_jobs(job_name, next_run_time) VALUES($1, $2)
         ON CONFLICT (job_name) DO NOTHING`, jobName, nextRun)
	return err
}

// UpdateNextRun advances the cursor. The guard only lets the cursor move
// forward from a due slot, so two instances racing past the same slot cannot
// both claim it.
func (r *ScheduledJobRepository) UpdateNextRun(ctx context.Context, jobName string, from, next time.Time) (bool, error) {
	tag, err := r.DB.Exec(ctx,
		`UPDATE scheduled_jobs SET next_run_time=$1
         WHERE job_name=$2 AND next_run_time <= $3`, next, jobName, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
