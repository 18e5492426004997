package usecase

import (
	"testing"
	"time"

	"Indicium/internal/domain/models"
)

func TestFallbackSignals(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 30, 0, 0, time.UTC)
	signals := FallbackSignals(now)

	if len(signals) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(signals))
	}

	wantAvg := map[string]float64{"NVDA": 85, "AAPL": 76, "TSLA": 41.7, "MSFT": 84, "JNJ": 65}
	wantDate := map[string]string{
		"NVDA": "2025-06-10",
		"AAPL": "2025-06-09",
		"TSLA": "2025-06-08",
		"MSFT": "2025-06-10",
		"JNJ":  "2025-06-07",
	}
	for _, s := range signals {
		if s.Scores.Average != wantAvg[s.Ticker] {
			t.Errorf("%s: expected average %v, got %v", s.Ticker, wantAvg[s.Ticker], s.Scores.Average)
		}
		if s.Dates.SignalDate != wantDate[s.Ticker] {
			t.Errorf("%s: expected signal date %s, got %s", s.Ticker, wantDate[s.Ticker], s.Dates.SignalDate)
		}
		if s.Dates.LastUpdated != "2025-06-10T08:30:00Z" {
			t.Errorf("%s: unexpected lastUpdated %s", s.Ticker, s.Dates.LastUpdated)
		}
		if s.Price.Target == nil || s.Fundamentals.PERatio == nil {
			t.Errorf("%s: expected populated optional fields", s.Ticker)
		}
	}
}

func TestFallbackSignalsAreIndependentCopies(t *testing.T) {
	a := FallbackSignals(time.Now())
	b := FallbackSignals(time.Now())
	*a[0].Price.Target = 1
	if *b[0].Price.Target == 1 {
		t.Fatalf("expected pointer fields not to be shared between calls")
	}
}

func TestFallbackSnapshotStats(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 30, 0, 0, time.UTC)
	snap := SnapshotBuilder{TTLSeconds: 600}.Build(FallbackSignals(now), models.SourceFallback, FallbackSourceView, now)

	want := models.Stats{BuySignals: 2, SellSignals: 1, HoldSignals: 2, AvgTrinityScore: 70.3}
	if snap.Stats != want {
		t.Fatalf("expected %+v, got %+v", want, snap.Stats)
	}
	if snap.Meta.Source != "fallback" || snap.Meta.SourceView != "fallback_sample" {
		t.Fatalf("unexpected meta %+v", snap.Meta)
	}
}
