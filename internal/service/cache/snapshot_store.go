package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Indicium/internal/domain/models"
	domrepo "Indicium/internal/domain/repository"
	kv "Indicium/pkg/cache"
)

const (
	SnapshotKey = "signals:latest"
	HealthKey   = "cron:health"

	healthTTL = 30 * time.Minute
)

// ErrCacheEmpty means the refresher has not written a snapshot yet.
var ErrCacheEmpty = errors.New("snapshot cache is empty")

// SnapshotStore keeps the latest snapshot under a single key. Last writer wins.
type SnapshotStore struct {
	kv kv.Service
}

var _ domrepo.SnapshotStore = (*SnapshotStore)(nil)

func NewSnapshotStore(svc kv.Service) *SnapshotStore {
	return &SnapshotStore{kv: svc}
}

func (s *SnapshotStore) Load(ctx context.Context) (*models.Snapshot, error) {
	snap, err := kv.GetTyped[models.Snapshot](ctx, s.kv, SnapshotKey)
	if errors.Is(err, kv.ErrCacheMiss) {
		return nil, ErrCacheEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, nil
}

// Save overwrites the snapshot with no expiry.
func (s *SnapshotStore) Save(ctx context.Context, snap *models.Snapshot) error {
	if snap == nil {
		return errors.New("save snapshot: nil snapshot")
	}
	if err := s.kv.Set(ctx, SnapshotKey, snap, 0); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) SaveHealth(ctx context.Context, h models.RefreshHealth) error {
	if err := s.kv.Set(ctx, HealthKey, h, healthTTL); err != nil {
		return fmt.Errorf("save refresh health: %w", err)
	}
	return nil
}

// Health returns the last persisted refresher outcome, if any.
func (s *SnapshotStore) Health(ctx context.Context) (*models.RefreshHealth, error) {
	h, err := kv.GetTyped[models.RefreshHealth](ctx, s.kv, HealthKey)
	if errors.Is(err, kv.ErrCacheMiss) {
		return nil, nil
	}
	return h, err
}
