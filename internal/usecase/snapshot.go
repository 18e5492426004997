package usecase

import (
	"time"

	"Indicium/internal/domain/models"
	"Indicium/pkg/util"
)

// SnapshotBuilder wraps a signal list with metadata and aggregate stats.
type SnapshotBuilder struct {
	TTLSeconds             int
	APIVersion             string
	RefreshIntervalMinutes int
}

func (b SnapshotBuilder) Build(signals []models.Signal, source, view string, generatedAt time.Time) *models.Snapshot {
	if signals == nil {
		signals = []models.Signal{}
	}
	return &models.Snapshot{
		Meta: models.SnapshotMeta{
			GeneratedAt:            generatedAt.UTC(),
			TotalCount:             len(signals),
			TTLSeconds:             b.TTLSeconds,
			SourceView:             view,
			Source:                 source,
			APIVersion:             b.APIVersion,
			RefreshIntervalMinutes: b.RefreshIntervalMinutes,
		},
		Stats: ComputeStats(signals),
		Data:  signals,
	}
}

// ComputeStats counts signal types and averages the trinity scores to one decimal.
// Types other than BUY and SELL count as HOLD so the three counts always sum to the total.
func ComputeStats(signals []models.Signal) models.Stats {
	var st models.Stats
	avgs := make([]float64, 0, len(signals))
	for _, s := range signals {
		switch s.Signal.Type {
		case models.SignalBuy:
			st.BuySignals++
		case models.SignalSell:
			st.SellSignals++
		default:
			st.HoldSignals++
		}
		avgs = append(avgs, s.Scores.Average)
	}
	st.AvgTrinityScore = util.MeanRounded(avgs, 1)
	return st
}
