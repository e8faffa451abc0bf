// Package cache keeps rendered weekly summaries in redis so repeated admin
// requests do not rescan the week.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"github.com/emilythestrangee/feedbackloop/backend/internal/reporting"
)

const summaryKeyPrefix = "feedback:summary:week:"

// Summaries caches weekly summaries by the start of their window.
type Summaries interface {
	Get(ctx context.Context, w reporting.Window) (*reporting.Summary, bool)
	Set(ctx context.Context, w reporting.Window, s *reporting.Summary)
	Invalidate(ctx context.Context, w reporting.Window)
	Close() error
}

// Fetch returns the cached summary for w or builds and stores it.
func Fetch(ctx context.Context, c Summaries, w reporting.Window, build func(context.Context, reporting.Window) (*reporting.Summary, error)) (*reporting.Summary, error) {
	if s, ok := c.Get(ctx, w); ok {
		return s, nil
	}
	s, err := build(ctx, w)
	if err != nil {
		return nil, err
	}
	c.Set(ctx, w, s)
	return s, nil
}

func summaryKey(w reporting.Window) string {
	return summaryKeyPrefix + w.Start.UTC().Format(time.RFC3339)
}

// RedisSummaries is the redis-backed cache. Redis errors are logged and
// treated as misses so reports keep working when redis is down.
type RedisSummaries struct {
	client *redis.Client
	ttl    time.Duration
	logger log.FieldLogger
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewRedisSummaries(ctx context.Context, opts RedisOptions) (*RedisSummaries, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisSummaries{client: client, ttl: ttl, logger: log.WithField("component", "summary_cache")}, nil
}

func (r *RedisSummaries) Get(ctx context.Context, w reporting.Window) (*reporting.Summary, bool) {
	raw, err := r.client.Get(ctx, summaryKey(w)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.logger.WithError(err).Warn("summary cache read failed")
		return nil, false
	}

	var s reporting.Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		r.logger.WithError(err).Warn("dropping undecodable cached summary")
		r.Invalidate(ctx, w)
		return nil, false
	}
	return &s, true
}

func (r *RedisSummaries) Set(ctx context.Context, w reporting.Window, s *reporting.Summary) {
	raw, err := json.Marshal(s)
	if err != nil {
		r.logger.WithError(err).Warn("summary cache encode failed")
		return
	}
	if err := r.client.Set(ctx, summaryKey(w), raw, r.ttl).Err(); err != nil {
		r.logger.WithError(err).Warn("summary cache write failed")
	}
}

func (r *RedisSummaries) Invalidate(ctx context.Context, w reporting.Window) {
	if err := r.client.Del(ctx, summaryKey(w)).Err(); err != nil {
		r.logger.WithError(err).Warn("summary cache invalidate failed")
	}
}

func (r *RedisSummaries) Close() error {
	return r.client.Close()
}

// Nop never caches.
type Nop struct{}

func (Nop) Get(context.Context, reporting.Window) (*reporting.Summary, bool) { return nil, false }
func (Nop) Set(context.Context, reporting.Window, *reporting.Summary)        {}
func (Nop) Invalidate(context.Context, reporting.Window)                     {}
func (Nop) Close() error                                                     { return nil }
