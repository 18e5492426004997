package service

import (
	"context"

	"Indicium/internal/domain/models"
)

// TokenValidator authenticates API tokens.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*models.TokenRecord, error)
}

// RateDecision is the outcome of a rate window check.
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter int // seconds, set when not allowed
	FailOpen   bool
}

// RateLimiter enforces per-token request quotas.
type RateLimiter interface {
	Check(ctx context.Context, token string) (RateDecision, error)
}

// SnapshotReader serves the cached snapshot to request handlers.
type SnapshotReader interface {
	Load(ctx context.Context) (*models.Snapshot, error)
}

// Refresher rebuilds the cached snapshot.
type Refresher interface {
	Run(ctx context.Context) models.RefreshResult
}
