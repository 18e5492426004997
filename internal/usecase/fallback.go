package usecase

import (
	"time"

	"Indicium/internal/domain/models"
	"Indicium/pkg/util"
)

// FallbackSourceView is reported as meta.source_view for sample snapshots.
const FallbackSourceView = "fallback_sample"

type sample struct {
	id, ticker, company, sector string
	kind, author                string
	strength, confidence        float64
	price, change               float64
	target, stop                float64
	lynch, oneil, graham        float64
	risk, marketCap             string
	pe, eps, dividend           float64
	volume                      int64
	daysAgo                     int
	reasoning                   string
}

var samples = []sample{
	{
		id: "sig-001", ticker: "NVDA", company: "NVIDIA Corporation", sector: "Technology",
		kind: models.SignalBuy, author: "O'Neil", strength: 95, confidence: 92,
		price: 495.50, change: 3.2, target: 575.00, stop: 445.00,
		lynch: 88, oneil: 95, graham: 72,
		risk: "Aggressive", marketCap: "$2.5T", pe: 78.5, eps: 6.32, dividend: 0.05, volume: 45230000,
		reasoning: "Strong momentum breakout above 52-week high. Institutional accumulation increasing. AI growth story intact.",
	},
	{
		id: "sig-002", ticker: "AAPL", company: "Apple Inc.", sector: "Technology",
		kind: models.SignalHold, author: "Graham", strength: 72, confidence: 78,
		price: 178.25, change: -0.5, target: 195.00, stop: 165.00,
		lynch: 75, oneil: 68, graham: 85,
		risk: "Moderate", marketCap: "$2.8T", pe: 29.5, eps: 6.05, dividend: 0.52, volume: 52340000,
		daysAgo:   1,
		reasoning: "Solid fundamentals with stable earnings. Premium valuation limits upside. Wait for better entry point.",
	},
	{
		id: "sig-003", ticker: "TSLA", company: "Tesla Inc.", sector: "Consumer Cyclical",
		kind: models.SignalSell, author: "Graham", strength: 82, confidence: 75,
		price: 242.80, change: -2.1, target: 195.00, stop: 260.00,
		lynch: 42, oneil: 55, graham: 28,
		risk: "Aggressive", marketCap: "$771B", pe: 75.2, eps: 3.23, dividend: 0.0, volume: 98560000,
		daysAgo:   2,
		reasoning: "Valuation stretched relative to earnings growth. Technical breakdown below key support. Rising inventory levels.",
	},
	{
		id: "sig-004", ticker: "MSFT", company: "Microsoft Corporation", sector: "Technology",
		kind: models.SignalBuy, author: "Lynch", strength: 88, confidence: 85,
		price: 415.30, change: 1.8, target: 475.00, stop: 385.00,
		lynch: 92, oneil: 82, graham: 78,
		risk: "Moderate", marketCap: "$3.1T", pe: 35.8, eps: 11.60, dividend: 0.75, volume: 28450000,
		reasoning: "Cloud computing growth accelerating. AI integration driving revenue. Stable dividend yield with growth potential.",
	},
	{
		id: "sig-005", ticker: "JNJ", company: "Johnson & Johnson", sector: "Healthcare",
		kind: models.SignalHold, author: "Graham", strength: 65, confidence: 70,
		price: 157.40, change: 0.3, target: 170.00, stop: 145.00,
		lynch: 62, oneil: 58, graham: 75,
		risk: "Conservative", marketCap: "$390B", pe: 24.5, eps: 6.42, dividend: 3.05, volume: 8920000,
		daysAgo:   3,
		reasoning: "Defensive healthcare stock with consistent dividend. Litigation overhang limiting upside. Good for conservative portfolios.",
	},
}

// FallbackSignals returns the static sample set with dates stamped relative to now.
func FallbackSignals(now time.Time) []models.Signal {
	now = now.UTC()
	out := make([]models.Signal, 0, len(samples))
	for _, s := range samples {
		target, stop, pe, eps := s.target, s.stop, s.pe, s.eps
		out = append(out, models.Signal{
			ID:          s.id,
			Ticker:      s.ticker,
			CompanyName: s.company,
			Sector:      s.sector,
			Signal: models.SignalInfo{
				Type:           s.kind,
				Strength:       s.strength,
				DominantAuthor: s.author,
				Confidence:     s.confidence,
			},
			Price: models.PriceInfo{
				Current:       s.price,
				ChangePercent: s.change,
				Target:        &target,
				StopLoss:      &stop,
			},
			Scores: models.TrinityScores{
				Lynch:   s.lynch,
				ONeil:   s.oneil,
				Graham:  s.graham,
				Average: util.MeanRounded([]float64{s.lynch, s.oneil, s.graham}, 1),
			},
			RiskProfile: s.risk,
			Fundamentals: models.Fundamentals{
				MarketCap:     s.marketCap,
				PERatio:       &pe,
				EPS:           &eps,
				DividendYield: s.dividend,
				Volume:        s.volume,
			},
			Dates: models.SignalDates{
				SignalDate:  now.AddDate(0, 0, -s.daysAgo).Format(time.DateOnly),
				LastUpdated: now.Format(time.RFC3339),
			},
			Reasoning: s.reasoning,
		})
	}
	return out
}
