package ratelimit

import (
	"context"
	"fmt"
	"time"

	domrepo "Indicium/internal/domain/repository"
	domsvc "Indicium/internal/domain/service"
	"Indicium/pkg/cache"
	applogger "Indicium/pkg/logger"
	"Indicium/pkg/metrics"
	"Indicium/pkg/util"
)

const (
	KindMinute = "RATE_LIMIT_EXCEEDED"
	KindDaily  = "DAILY_LIMIT_EXCEEDED"

	minuteMillis = int64(60_000)
	dayMillis    = int64(86_400_000)
)

// LimitError is returned when a window quota is exhausted.
type LimitError struct {
	Kind       string
	Limit      int
	RetryAfter int
}

func (e *LimitError) Error() string {
	if e.Kind == KindDaily {
		return fmt.Sprintf("Daily limit of %d requests exceeded", e.Limit)
	}
	return fmt.Sprintf("Rate limit of %d requests per minute exceeded", e.Limit)
}

// Option configures Limiter.
type Option func(*Limiter)

// WithClock overrides the wall clock used to pick windows.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithDailyLimit enables the per-day window. Zero disables it.
func WithDailyLimit(perDay int) Option {
	return func(l *Limiter) { l.perDay = perDay }
}

func WithMetrics(m domrepo.Metrics) Option {
	return func(l *Limiter) {
		if m != nil {
			l.metrics = m
		}
	}
}

func WithLogger(lg *applogger.Logger) Option {
	return func(l *Limiter) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// Limiter is a fixed-window counter limiter over a shared counter store.
// A burst straddling a window boundary can admit up to twice the limit.
type Limiter struct {
	store     domrepo.CounterStore
	perMinute int
	perDay    int
	now       func() time.Time
	logger    *applogger.Logger
	metrics   domrepo.Metrics
}

var _ domsvc.RateLimiter = (*Limiter)(nil)

func New(store domrepo.CounterStore, perMinute int, opts ...Option) *Limiter {
	l := &Limiter{
		store:     store,
		perMinute: perMinute,
		now:       time.Now,
		logger:    applogger.NewNop(),
		metrics:   metrics.Nop{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check applies the per-minute window and, when enabled, the per-day window.
func (l *Limiter) Check(ctx context.Context, token string) (domsvc.RateDecision, error) {
	d, err := l.CheckMinute(ctx, token, l.perMinute)
	if err != nil || l.perDay <= 0 {
		return d, err
	}
	if dd, err := l.CheckDaily(ctx, token, l.perDay); err != nil {
		return dd, err
	}
	return d, nil
}

// CheckMinute counts the request in the current wall-clock minute.
func (l *Limiter) CheckMinute(ctx context.Context, token string, limit int) (domsvc.RateDecision, error) {
	now := l.now()
	window := now.UnixMilli() / minuteMillis
	key := cache.GenerateKeyWithParams("ratelimit", token, window)
	retryAfter := 60 - now.Second()

	return l.check(ctx, key, token, limit, time.Minute, retryAfter, KindMinute)
}

// CheckDaily counts the request in the current UTC day.
func (l *Limiter) CheckDaily(ctx context.Context, token string, limit int) (domsvc.RateDecision, error) {
	now := l.now().UTC()
	window := now.UnixMilli() / dayMillis
	key := cache.GenerateKeyWithParams("ratelimit-daily", token, window)
	retryAfter := int(util.NextUTCMidnight(now).Sub(now).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	return l.check(ctx, key, token, limit, 24*time.Hour, retryAfter, KindDaily)
}

func (l *Limiter) check(ctx context.Context, key, token string, limit int, ttl time.Duration, retryAfter int, kind string) (domsvc.RateDecision, error) {
	n, err := l.store.Increment(ctx, key, ttl)
	if err != nil {
		// Counter store outage must not block traffic.
		l.logger.Warn("rate limit store unavailable, allowing request",
			applogger.String("token", util.MaskToken(token)),
			applogger.String("window", kind),
			applogger.Error(err),
		)
		l.metrics.RecordRateLimit("fail_open")
		return domsvc.RateDecision{Allowed: true, Limit: limit, Remaining: limit, FailOpen: true}, nil
	}

	if n > int64(limit) {
		l.metrics.RecordRateLimit("denied")
		return domsvc.RateDecision{Limit: limit, RetryAfter: retryAfter},
			&LimitError{Kind: kind, Limit: limit, RetryAfter: retryAfter}
	}

	l.metrics.RecordRateLimit("allowed")
	return domsvc.RateDecision{Allowed: true, Limit: limit, Remaining: limit - int(n)}, nil
}
