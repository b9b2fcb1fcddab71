package models

import "time"

// ScheduledJob is a named cron-like cursor. One row per recurring job;
// NextRunTime only ever advances.
type ScheduledJob struct {
	JobName     string    `json:"job_name"`
	NextRunTime time.Time `json:"next_run_time"`
}
