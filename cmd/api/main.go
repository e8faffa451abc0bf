package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/emilythestrangee/feedbackloop/backend/internal/auth"
	"github.com/emilythestrangee/feedbackloop/backend/internal/cache"
	"github.com/emilythestrangee/feedbackloop/backend/internal/config"
	"github.com/emilythestrangee/feedbackloop/backend/internal/database"
	"github.com/emilythestrangee/feedbackloop/backend/internal/events"
	"github.com/emilythestrangee/feedbackloop/backend/internal/handlers"
	"github.com/emilythestrangee/feedbackloop/backend/internal/jobs"
	"github.com/emilythestrangee/feedbackloop/backend/internal/notify"
	"github.com/emilythestrangee/feedbackloop/backend/internal/reporting"
	"github.com/emilythestrangee/feedbackloop/backend/internal/server"
	"github.com/emilythestrangee/feedbackloop/backend/internal/voting"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	cfg.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := database.Open(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}

	ledger := voting.NewLedger(repo,
		voting.WithTimeout(cfg.StoreTimeout),
		voting.WithMaxAttempts(cfg.VoteMaxAttempts),
	)
	reporter := reporting.NewReporter(repo, reporting.WithLocation(cfg.Location()))

	summaries := openCache(ctx, cfg)
	publisher := openEvents(cfg)
	notifier := openNotifier(cfg)

	var scheduler *jobs.Scheduler
	if cfg.ReportCron != "" {
		scheduler = jobs.NewScheduler(cfg.ReportCron, cfg.Location(), &jobs.WeeklyReport{
			Reporter:  reporter,
			Summaries: summaries,
			Events:    publisher,
			Notifier:  notifier,
		})
		if err := scheduler.Start(ctx); err != nil {
			log.WithError(err).Fatal("failed to start scheduler")
		}
	}

	srv := server.NewServer(cfg, handlers.Deps{
		Repo:        repo,
		Ledger:      ledger,
		Reporter:    reporter,
		Tokens:      auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL),
		Summaries:   summaries,
		Events:      publisher,
		VoteRetries: 2,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		log.Info("shutting down gracefully, press Ctrl+C again to force")
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("server forced to shutdown")
		}
	}()

	log.WithField("addr", srv.Addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("http server error")
	}
	<-done

	if scheduler != nil {
		scheduler.Stop()
	}
	if err := errors.Join(summaries.Close(), publisher.Close(), repo.Close()); err != nil {
		log.WithError(err).Error("shutdown cleanup failed")
	}
	log.Info("graceful shutdown complete")
}

// openCache falls back to no caching when redis is unset or unreachable.
func openCache(ctx context.Context, cfg *config.Config) cache.Summaries {
	if cfg.RedisAddr == "" {
		return cache.Nop{}
	}
	summaries, err := cache.NewRedisSummaries(ctx, cache.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.SummaryCacheTTL,
	})
	if err != nil {
		log.WithError(err).Warn("redis unavailable, summary cache disabled")
		return cache.Nop{}
	}
	return summaries
}

func openEvents(cfg *config.Config) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.Nop{}
	}
	log.WithField("brokers", cfg.KafkaBrokers).Info("publishing events to kafka")
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaVoteTopic, cfg.KafkaSummaryTopic)
}

func openNotifier(cfg *config.Config) notify.Notifier {
	if !cfg.SMSEnabled() {
		return notify.Nop{}
	}
	return notify.NewSMS(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom, cfg.ReportSMSTo)
}
