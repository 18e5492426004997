package repository

import (
	"context"
	"time"

	"Indicium/internal/domain/models"
)

// SignalSource fetches the current signal set from a warehouse.
type SignalSource interface {
	FetchSignals(ctx context.Context) ([]models.Signal, error)
	// Name is reported as meta.source of snapshots built from this source.
	Name() string
	// View identifies the queried table or view, reported as meta.source_view.
	View() string
}

// SnapshotStore persists the single latest snapshot. Last writer wins.
type SnapshotStore interface {
	Load(ctx context.Context) (*models.Snapshot, error)
	Save(ctx context.Context, s *models.Snapshot) error
	SaveHealth(ctx context.Context, h models.RefreshHealth) error
}

// TokenStore looks up API tokens. A nil record with nil error means unknown token.
type TokenStore interface {
	GetToken(ctx context.Context, token string) (*models.TokenRecord, error)
}

// CounterStore is the shared counter backend for rate windows.
type CounterStore interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string, dest interface{}) error
}

type Publisher interface {
	PublishRefresh(ctx context.Context, ev models.RefreshEvent) error
	Close() error
}

type Metrics interface {
	RecordRefresh(source string, success bool, seconds float64, count int)
	RecordRateLimit(decision string)
	RecordAuthFailure(kind string)
	RecordUpstreamError(op string, retryable bool)
}
