package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"Indicium/internal/domain/models"
	"Indicium/pkg/queue"
)

type capturePublisher struct {
	msgType string
	payload interface{}
}

func (c *capturePublisher) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	c.msgType, c.payload = msgType, payload
	return nil
}

func TestRefreshJobSuccess(t *testing.T) {
	src := &fakeSource{signals: []models.Signal{{ID: "a", Ticker: "NVDA", Signal: models.SignalInfo{Type: models.SignalBuy}}}}
	r, store, _ := newTestRefresher(t, src)
	job := NewRefreshJob(r, nil)

	msg, _ := queue.NewMessage(RefreshJobType, RefreshRequest{RequestedBy: "cli"}, time.Now())
	if err := job.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if snap, err := store.Load(context.Background()); err != nil || snap.Meta.Source != "bigquery" {
		t.Fatalf("expected warehouse snapshot, got %v", err)
	}
}

func TestRefreshJobFallbackIsRetried(t *testing.T) {
	r, _, _ := newTestRefresher(t, &fakeSource{err: errors.New("down")})
	job := NewRefreshJob(r, nil)

	if err := job.Handle(context.Background(), queue.Message{Type: RefreshJobType}); err == nil {
		t.Fatalf("expected error so the queue retries")
	}
}

func TestRefreshJobCancelledKeepsSnapshot(t *testing.T) {
	src := &fakeSource{signals: []models.Signal{{ID: "a", Ticker: "NVDA", Signal: models.SignalInfo{Type: models.SignalBuy}}}}
	r, store, _ := newTestRefresher(t, src)
	r.Run(context.Background())

	src.delay = 500 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := NewRefreshJob(r, nil).Handle(ctx, queue.Message{Type: RefreshJobType})
	if !errors.Is(err, ErrRefreshCancelled) {
		t.Fatalf("expected ErrRefreshCancelled, got %v", err)
	}
	if snap, _ := store.Load(context.Background()); snap == nil || snap.Meta.Source != "bigquery" {
		t.Fatalf("expected live snapshot to survive a cancelled job")
	}
}

func TestRefreshJobSkipsWhileInFlight(t *testing.T) {
	src := &fakeSource{}
	r, _, _ := newTestRefresher(t, src)
	r.inFlight.Store(true)

	if err := NewRefreshJob(r, nil).Handle(context.Background(), queue.Message{Type: RefreshJobType}); err != nil {
		t.Fatalf("expected nil when a run is in flight, got %v", err)
	}
	if src.calls.Load() != 0 {
		t.Fatalf("expected no fetch while another run is in flight")
	}
}

func TestRequestRefresh(t *testing.T) {
	pub := &capturePublisher{}
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := RequestRefresh(context.Background(), pub, "ops", now); err != nil {
		t.Fatalf("request: %v", err)
	}
	req, ok := pub.payload.(RefreshRequest)
	if pub.msgType != RefreshJobType || !ok || req.RequestedBy != "ops" || !req.RequestedAt.Equal(now) {
		t.Fatalf("unexpected enqueue %q %+v", pub.msgType, pub.payload)
	}
}
