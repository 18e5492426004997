package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"Indicium/internal/domain/models"
	domrepo "Indicium/internal/domain/repository"
	domsvc "Indicium/internal/domain/service"
	applogger "Indicium/pkg/logger"
	"Indicium/pkg/metrics"
)

// ErrRefreshCancelled is reported when the caller's context ends before the fetch completes.
var ErrRefreshCancelled = errors.New("refresh cancelled")

// RefresherConfig holds scheduling and snapshot settings.
type RefresherConfig struct {
	Interval     time.Duration
	Timeout      time.Duration
	WriteTimeout time.Duration
	Builder      SnapshotBuilder
}

// Refresher is the only writer of the snapshot cache. Each run fetches from the
// warehouse, falls back to sample data on failure, and overwrites the snapshot.
type Refresher struct {
	source    domrepo.SignalSource
	store     domrepo.SnapshotStore
	publisher domrepo.Publisher
	metrics   domrepo.Metrics
	logger    *applogger.Logger
	cfg       RefresherConfig
	now       func() time.Time

	inFlight atomic.Bool
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

var _ domsvc.Refresher = (*Refresher)(nil)

func NewRefresher(source domrepo.SignalSource, store domrepo.SnapshotStore, publisher domrepo.Publisher, m domrepo.Metrics, logger *applogger.Logger, cfg RefresherConfig) *Refresher {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &Refresher{
		source:    source,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetClock overrides the wall clock used for timestamps.
func (r *Refresher) SetClock(now func() time.Time) { r.now = now }

// Run performs one refresh. It never panics and never returns an error;
// the outcome is reported in the result.
func (r *Refresher) Run(ctx context.Context) (res models.RefreshResult) {
	start := r.now()
	res.Source = models.SourceFallback

	defer func() {
		if p := recover(); p != nil {
			res.Success = false
			res.Error = fmt.Sprintf("refresh panic: %v", p)
			r.logger.Error("refresh panicked", applogger.Any("panic", p))
		}
		res.Duration = r.now().Sub(start)
		res.DurationMS = res.Duration.Milliseconds()
		res.FinishedAt = r.now().UTC()
		r.metrics.RecordRefresh(res.Source, res.Success, res.Duration.Seconds(), res.SignalsCount)
	}()

	snap, fetchErr := r.fetch(ctx)
	if fetchErr != nil && ctx.Err() != nil {
		// Shutdown is not an upstream failure; the cached snapshot stays as it is.
		res.Source = r.sourceName()
		res.Error = ErrRefreshCancelled.Error()
		r.logger.Warn("refresh cancelled, keeping cached snapshot",
			applogger.String("source", res.Source),
			applogger.Error(fetchErr),
		)
		return res
	}
	if fetchErr != nil {
		r.logger.Error("warehouse fetch failed, serving fallback signals",
			applogger.String("source", r.sourceName()),
			applogger.Duration("elapsed", r.now().Sub(start)),
			applogger.Error(fetchErr),
		)
		now := r.now()
		snap = r.cfg.Builder.Build(FallbackSignals(now), models.SourceFallback, FallbackSourceView, now)
		res.Error = fetchErr.Error()
	} else {
		res.Success = true
	}
	res.Source = snap.Meta.Source
	res.SignalsCount = snap.Meta.TotalCount

	// The write must not be torn by caller cancellation.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.WriteTimeout)
	defer cancel()

	if err := r.store.Save(wctx, snap); err != nil {
		r.logger.Error("snapshot write failed", applogger.Error(err))
		res.Success = false
		res.Error = joinErr(res.Error, err.Error())
	}

	health := models.RefreshHealth{
		LastRun:    r.now().UTC(),
		Source:     res.Source,
		RowCount:   res.SignalsCount,
		DurationMS: r.now().Sub(start).Milliseconds(),
		Status:     "success",
	}
	if !res.Success {
		health.Status = "error"
		health.Error = res.Error
	}
	if err := r.store.SaveHealth(wctx, health); err != nil {
		r.logger.Warn("refresh health write failed", applogger.Error(err))
	}

	ev := models.RefreshEvent{
		GeneratedAt: snap.Meta.GeneratedAt,
		Source:      snap.Meta.Source,
		TotalCount:  snap.Meta.TotalCount,
		Stats:       snap.Stats,
		Success:     res.Success,
	}
	if err := r.publisher.PublishRefresh(wctx, ev); err != nil {
		r.logger.Warn("refresh event publish failed", applogger.Error(err))
	}

	r.logger.Info("snapshot refreshed",
		applogger.String("source", res.Source),
		applogger.Bool("success", res.Success),
		applogger.Int("signals", res.SignalsCount),
		applogger.Duration("duration", r.now().Sub(start)),
	)
	return res
}

func (r *Refresher) fetch(ctx context.Context) (snap *models.Snapshot, err error) {
	defer func() {
		if p := recover(); p != nil {
			snap, err = nil, fmt.Errorf("signal source panic: %v", p)
		}
	}()
	if r.source == nil {
		return nil, fmt.Errorf("no signal source configured")
	}
	fctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	signals, ferr := r.source.FetchSignals(fctx)
	if ferr != nil {
		return nil, ferr
	}
	if len(signals) == 0 {
		return nil, fmt.Errorf("%s returned no data", r.source.Name())
	}
	return r.cfg.Builder.Build(signals, r.source.Name(), r.source.View(), r.now()), nil
}

func (r *Refresher) sourceName() string {
	if r.source == nil {
		return "none"
	}
	return r.source.Name()
}

// Start runs once immediately, then on every interval until ctx is done or Stop is called.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.Warn("refresher already running")
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	stopCh := r.stopCh
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.tick(ctx)

		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				r.tick(ctx)
			}
		}
	}()

	r.logger.Info("refresher started", applogger.Duration("interval", r.cfg.Interval))
}

// TriggerNow runs a refresh synchronously unless one is in flight.
// The bool reports whether a run happened.
func (r *Refresher) TriggerNow(ctx context.Context) (models.RefreshResult, bool) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return models.RefreshResult{}, false
	}
	defer r.inFlight.Store(false)
	return r.Run(ctx), true
}

// tick runs a refresh in its own goroutine unless one is still in flight.
func (r *Refresher) tick(ctx context.Context) {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.logger.Warn("previous refresh still running, skipping tick")
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.inFlight.Store(false)
		r.Run(ctx)
	}()
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	close(r.stopCh)
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("refresher stopped")
}

func joinErr(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

type noopPublisher struct{}

func (noopPublisher) PublishRefresh(context.Context, models.RefreshEvent) error { return nil }
func (noopPublisher) Close() error                                              { return nil }
