// Package scheduler runs the periodic report jobs: weekly on Monday 00:00
// UTC, monthly on the 1st at 00:10 UTC. Each firing takes a
// Postgres advisory lock keyed by the period, so overlapping replicas (or
// a restart mid-run) generate each report exactly once; the unique period
// column in the report tables backs the same guarantee at the data layer.
//
// Two fixed UTC schedules don't warrant a cron-expression dependency; the
// loop just sleeps until the next computed fire time.
package scheduler

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/clock"
	"github.com/mindatlas/backend/internal/model"
	"github.com/mindatlas/backend/internal/report"
)

// AdvisoryLocker scopes a job body to a session-level Postgres advisory
// lock; the body is skipped if the context dies before the lock arrives.
type AdvisoryLocker interface {
	WithAdvisoryLock(ctx context.Context, key int64, fn func(ctx context.Context) error) error
}

// Scheduler owns the report jobs' timing loop.
type Scheduler struct {
	weekly  *report.WeeklyService
	monthly *report.MonthlyService
	locker  AdvisoryLocker
	log     zerolog.Logger
}

func New(weekly *report.WeeklyService, monthly *report.MonthlyService, locker AdvisoryLocker, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		weekly:  weekly,
		monthly: monthly,
		locker:  locker,
		log:     log.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks until ctx is canceled, firing each job at its next scheduled
// time. A job failure is logged and the loop keeps going; the next firing
// (or a manual generate call) retries naturally since generation is
// idempotent per period.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().
		Time("next_weekly", NextWeeklyRun(clock.Now())).
		Time("next_monthly", NextMonthlyRun(clock.Now())).
		Msg("scheduler starting")

	for {
		now := clock.Now()
		nextWeekly := NextWeeklyRun(now)
		nextMonthly := NextMonthlyRun(now)

		next := nextWeekly
		runWeekly := true
		if nextMonthly.Before(nextWeekly) {
			next = nextMonthly
			runWeekly = false
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info().Msg("scheduler stopping")
			return nil
		case <-timer.C:
		}

		if runWeekly {
			s.runWeeklyJob(ctx)
		} else {
			s.runMonthlyJob(ctx)
		}
	}
}

// NextWeeklyRun returns the next Monday 00:00 UTC strictly after now.
func NextWeeklyRun(now time.Time) time.Time {
	u := now.UTC()
	day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(time.Monday) - int(day.Weekday()) + 7) % 7
	candidate := day.AddDate(0, 0, offset)
	if !candidate.After(u) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}

// NextMonthlyRun returns the next 1st-of-month 00:10 UTC strictly after
// now; the 10-minute offset keeps it clear of the weekly job when the 1st
// lands on a Monday.
func NextMonthlyRun(now time.Time) time.Time {
	u := now.UTC()
	candidate := time.Date(u.Year(), u.Month(), 1, 0, 10, 0, 0, time.UTC)
	if !candidate.After(u) {
		candidate = candidate.AddDate(0, 1, 0)
	}
	return candidate
}

func (s *Scheduler) runWeeklyJob(ctx context.Context) {
	weekStart := report.LastMonday(clock.Now())
	lockKey, _ := strconv.ParseInt(weekStart.Format("20060102"), 10, 64)

	err := s.locker.WithAdvisoryLock(ctx, lockKey, func(ctx context.Context) error {
		r, err := s.weekly.GetOrCreate(ctx, weekStart)
		if err != nil {
			return err
		}
		if r.Status == model.ReportCompleted {
			s.log.Info().Str("week_start", weekStart.Format("2006-01-02")).Msg("weekly report already completed")
			return nil
		}
		r, err = s.weekly.Generate(ctx, r)
		if err != nil {
			return err
		}
		s.log.Info().Str("week_start", weekStart.Format("2006-01-02")).Str("status", string(r.Status)).Msg("weekly report generated")
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Msg("weekly report job failed")
	}
}

func (s *Scheduler) runMonthlyJob(ctx context.Context) {
	monthStart := report.LastMonthStart(clock.Now())
	lockKey, _ := strconv.ParseInt(monthStart.Format("200601"), 10, 64)

	err := s.locker.WithAdvisoryLock(ctx, lockKey, func(ctx context.Context) error {
		r, err := s.monthly.GetOrCreate(ctx, monthStart)
		if err != nil {
			return err
		}
		if r.Status == model.ReportCompleted {
			s.log.Info().Str("month_start", monthStart.Format("2006-01-02")).Msg("monthly report already completed")
			return nil
		}
		r, err = s.monthly.Generate(ctx, r)
		if err != nil {
			return err
		}
		s.log.Info().Str("month_start", monthStart.Format("2006-01-02")).Str("status", string(r.Status)).Msg("monthly report generated")
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Msg("monthly report job failed")
	}
}
