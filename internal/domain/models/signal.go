package models

import "time"

// Signal types.
const (
	SignalBuy  = "BUY"
	SignalHold = "HOLD"
	SignalSell = "SELL"
)

// Snapshot sources.
const (
	SourceBigQuery   = "bigquery"
	SourceClickHouse = "clickhouse"
	SourceFallback   = "fallback"
)

// Signal is a single pre-computed trading recommendation for one ticker.
type Signal struct {
	ID           string        `json:"id"`
	Ticker       string        `json:"ticker"`
	CompanyName  string        `json:"companyName"`
	Sector       string        `json:"sector"`
	Signal       SignalInfo    `json:"signal"`
	Price        PriceInfo     `json:"price"`
	Scores       TrinityScores `json:"trinityScores"`
	RiskProfile  string        `json:"riskProfile,omitempty"`
	Fundamentals Fundamentals  `json:"fundamentals"`
	Dates        SignalDates   `json:"dates"`
	Reasoning    string        `json:"reasoning"`
}

type SignalInfo struct {
	Type           string  `json:"type"`
	Strength       float64 `json:"strength"`
	DominantAuthor string  `json:"dominantAuthor"`
	Confidence     float64 `json:"confidence"`
}

// PriceInfo carries nil Target/StopLoss when the warehouse has no level.
type PriceInfo struct {
	Current       float64  `json:"current"`
	ChangePercent float64  `json:"changePercent"`
	Target        *float64 `json:"target"`
	StopLoss      *float64 `json:"stopLoss"`
}

// TrinityScores are the three heuristic scores and their mean rounded to one decimal.
type TrinityScores struct {
	Lynch   float64 `json:"lynch"`
	ONeil   float64 `json:"oneil"`
	Graham  float64 `json:"graham"`
	Average float64 `json:"average"`
}

type Fundamentals struct {
	MarketCap     string   `json:"marketCap"`
	PERatio       *float64 `json:"peRatio"`
	EPS           *float64 `json:"eps"`
	DividendYield float64  `json:"dividendYield"`
	Volume        int64    `json:"volume"`
}

type SignalDates struct {
	SignalDate  string `json:"signalDate"`
	LastUpdated string `json:"lastUpdated"`
}

// Snapshot is the complete cached payload served by the signals endpoint.
type Snapshot struct {
	Meta  SnapshotMeta `json:"meta"`
	Stats Stats        `json:"stats"`
	Data  []Signal     `json:"data"`
}

type SnapshotMeta struct {
	GeneratedAt            time.Time `json:"generated_at"`
	TotalCount             int       `json:"total_count"`
	TTLSeconds             int       `json:"ttl_seconds"`
	SourceView             string    `json:"source_view"`
	Source                 string    `json:"source"`
	APIVersion             string    `json:"api_version"`
	RefreshIntervalMinutes int       `json:"refresh_interval_minutes"`
}

type Stats struct {
	BuySignals      int     `json:"buy_signals"`
	SellSignals     int     `json:"sell_signals"`
	HoldSignals     int     `json:"hold_signals"`
	AvgTrinityScore float64 `json:"avg_trinity_score"`
}

// TokenRecord is the stored state of an API token. Read-only for this service.
type TokenRecord struct {
	Token     string     `json:"token"`
	IsActive  bool       `json:"is_active"`
	Name      string     `json:"name,omitempty"`
	Tier      string     `json:"tier,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// RefreshResult summarizes one refresher run.
type RefreshResult struct {
	Success      bool          `json:"success"`
	Source       string        `json:"source"`
	SignalsCount int           `json:"signals_count"`
	Duration     time.Duration `json:"-"`
	DurationMS   int64         `json:"duration_ms"`
	Error        string        `json:"error,omitempty"`
	FinishedAt   time.Time     `json:"finished_at"`
}

// RefreshHealth is persisted after every run so operators can see the last outcome.
type RefreshHealth struct {
	LastRun    time.Time `json:"last_run"`
	Status     string    `json:"status"`
	Source     string    `json:"source"`
	RowCount   int       `json:"rowcount"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

// RefreshEvent is published after the snapshot is written.
type RefreshEvent struct {
	GeneratedAt time.Time `json:"generated_at"`
	Source      string    `json:"source"`
	TotalCount  int       `json:"total_count"`
	Stats       Stats     `json:"stats"`
	Success     bool      `json:"success"`
}
