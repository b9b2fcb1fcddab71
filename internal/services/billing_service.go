package services

import (
	"context"
	"log"
	"math/rand"
	"time"

	"letmaster-backend/internal/config"
	"letmaster-backend/internal/metrics"
	"letmaster-backend/internal/models"
	"letmaster-backend/internal/timeutil"
)

// JobMonthlyBilling is the shared scheduler cursor: one row drives both the
// billing run on the 1st and the arrears run on the 20th.
const JobMonthlyBilling = "MonthlyBilling"

type billingStore interface {
	BillActiveAccounts(ctx context.Context, period time.Time, createdBy string) (int, error)
	ListArrears(ctx context.Context) ([]*models.ArrearsTenant, error)
}

type jobStore interface {
	Get(ctx context.Context, jobName string) (*models.ScheduledJob, error)
	Ensure(ctx context.Context, jobName string, nextRun time.Time) error
	UpdateNextRun(ctx context.Context, jobName string, from, next time.Time) (bool, error)
}

type arrearsNotifier interface {
	ArrearsReminder(ctx context.Context, t *models.ArrearsTenant)
}

// BillingService runs the monthly schedule: rent bills on the 1st, arrears
// reminders on the 20th. The cursor lives in the database, so restarts and
// multiple instances never double-run a slot.
type BillingService struct {
	accounts  billingStore
	jobs      jobStore
	notifier  arrearsNotifier
	templates config.Templates

	nowFunc func() time.Time
	// jitterFunc delays catch-up runs so instances starting together do not
	// hit the claim at the same instant.
	jitterFunc func() time.Duration
}

func NewBillingService(accounts billingStore, jobs jobStore, notifier arrearsNotifier, templates config.Templates) *BillingService {
	return &BillingService{
		accounts:  accounts,
		jobs:      jobs,
		notifier:  notifier,
		templates: templates,
		nowFunc:   timeutil.Now,
		jitterFunc: func() time.Duration {
			return time.Duration(rand.Intn(30)) * time.Second
		},
	}
}

// NextRunTime returns the slot after now: the 20th of the current month if
// now is before the 20th, otherwise the 1st of the next month. Slots are
// midnight EAT.
func (s *BillingService) NextRunTime(now time.Time) time.Time {
	day := timeutil.StartOfDay(now)
	if day.Day() < 20 {
		return day.AddDate(0, 0, 20-day.Day())
	}
	return day.AddDate(0, 1, 1-day.Day())
}

// Run drives the schedule until ctx is cancelled. A single timer sleeps to
// the persisted slot; when the slot is due, the instance that wins the
// cursor advance executes it.
func (s *BillingService) Run(ctx context.Context) error {
	if err := s.jobs.Ensure(ctx, JobMonthlyBilling, s.NextRunTime(s.nowFunc())); err != nil {
		return err
	}
	log.Printf("[Billing] scheduler started")

	for {
		job, err := s.jobs.Get(ctx, JobMonthlyBilling)
		if err != nil {
			log.Printf("[Billing] read cursor failed: %v", err)
			if !sleepCtx(ctx, time.Minute) {
				return ctx.Err()
			}
			continue
		}

		now := s.nowFunc()
		if now.Before(job.NextRunTime) {
			if !sleepCtx(ctx, job.NextRunTime.Sub(now)) {
				return ctx.Err()
			}
			continue
		}

		// Catch-up: the slot was due before we woke (restart or downtime).
		// Spread instances out before racing for the claim.
		if now.Sub(job.NextRunTime) > time.Minute {
			if !sleepCtx(ctx, s.jitterFunc()) {
				return ctx.Err()
			}
		}

		claimed, err := s.jobs.UpdateNextRun(ctx, JobMonthlyBilling, job.NextRunTime, s.NextRunTime(s.nowFunc()))
		if err != nil {
			log.Printf("[Billing] advance cursor failed: %v", err)
			if !sleepCtx(ctx, time.Minute) {
				return ctx.Err()
			}
			continue
		}
		if !claimed {
			// Another instance took this slot.
			continue
		}
		s.runSlot(ctx, job.NextRunTime)
	}
}

func (s *BillingService) runSlot(ctx context.Context, slot time.Time) {
	switch timeutil.ToEAT(slot).Day() {
	case 1:
		if err := s.GenerateBills(ctx, slot); err != nil {
			log.Printf("[Billing] billing run for %s failed: %v", slot.Format("2006-01"), err)
		}
	case 20:
		if err := s.SendArrearsReminders(ctx); err != nil {
			log.Printf("[Billing] arrears run failed: %v", err)
		}
	default:
		log.Printf("[Billing] slot %s has no action, skipping", slot.Format(timeutil.DateLayout))
	}
}

// GenerateBills debits every active account by its agreed rate for the
// period's month. All accounts commit together or not at all.
func (s *BillingService) GenerateBills(ctx context.Context, period time.Time) error {
	n, err := s.accounts.BillActiveAccounts(ctx, timeutil.ToEAT(period), models.TxnModeSystem)
	if err != nil {
		metrics.BillingRuns.WithLabelValues("error").Inc()
		return err
	}
	metrics.BillingRuns.WithLabelValues("ok").Inc()
	log.Printf("[Billing] billed %d account(s) for %s", n, timeutil.ToEAT(period).Format("2006-01"))
	return nil
}

// SendArrearsReminders notifies every tenant whose balance exceeds the
// agreed rate. With both arrears templates empty the whole pass is skipped.
func (s *BillingService) SendArrearsReminders(ctx context.Context) error {
	if s.templates.ArrearsSMS == "" && s.templates.ArrearsEmail == "" {
		log.Printf("[Billing] arrears templates not configured, skipping")
		return nil
	}

	tenants, err := s.accounts.ListArrears(ctx)
	if err != nil {
		return err
	}
	for _, t := range tenants {
		metrics.ArrearsNotices.Inc()
		s.notifier.ArrearsReminder(ctx, t)
	}
	log.Printf("[Billing] arrears reminders sent to %d tenant(s)", len(tenants))
	return nil
}

// sleepCtx sleeps for d or until ctx is done; returns false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
