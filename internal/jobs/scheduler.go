// Package jobs runs background work on a cron schedule.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/emilythestrangee/feedbackloop/backend/internal/cache"
	"github.com/emilythestrangee/feedbackloop/backend/internal/events"
	"github.com/emilythestrangee/feedbackloop/backend/internal/notify"
	"github.com/emilythestrangee/feedbackloop/backend/internal/reporting"
)

// WeeklyReport builds last week's summary and hands it to the cache, the
// event stream and the SMS digest.
type WeeklyReport struct {
	Reporter  *reporting.Reporter
	Summaries cache.Summaries
	Events    events.Publisher
	Notifier  notify.Notifier
	Now       func() time.Time
}

// Run reports on the week before the current one. Delivery failures are
// joined into the returned error after every channel has been tried.
func (j *WeeklyReport) Run(ctx context.Context) error {
	week := j.Reporter.CurrentWeek().Previous()
	summary, err := j.Reporter.Build(ctx, week)
	if err != nil {
		return fmt.Errorf("build weekly report: %w", err)
	}

	j.Summaries.Set(ctx, week, summary)

	now := time.Now
	if j.Now != nil {
		now = j.Now
	}

	var errs []error
	if err := j.Events.PublishSummary(ctx, events.SummaryEvent{Stats: summary.Stats, GeneratedAt: now()}); err != nil {
		errs = append(errs, err)
	}
	if err := j.Notifier.SendDigest(ctx, summary); err != nil {
		errs = append(errs, err)
	}

	log.WithFields(log.Fields{
		"week_start":     week.Start,
		"total_feedback": summary.Stats.TotalFeedback,
		"total_votes":    summary.Stats.TotalVotes,
		"total_comments": summary.Stats.TotalComments,
	}).Info("[CRON] weekly report generated")

	return errors.Join(errs...)
}

type Scheduler struct {
	cron   *cron.Cron
	report *WeeklyReport
	spec   string
}

// NewScheduler evaluates spec in loc, the same zone the report weeks use.
func NewScheduler(spec string, loc *time.Location, report *WeeklyReport) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		report: report,
		spec:   spec,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		log.Info("[CRON] weekly report")
		if err := s.report.Run(ctx); err != nil {
			log.WithError(err).Error("[CRON] weekly report failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid REPORT_CRON %q: %w", s.spec, err)
	}

	s.cron.Start()
	log.WithField("schedule", s.spec).Info("scheduler started")
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("scheduler stopped")
}
