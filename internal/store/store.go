package store

//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks

import (
	"context"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
)

// ErrCorrupt is returned by Get when the persisted value is unreadable.
var ErrCorrupt = model.ErrCorruptWatermark

// WatermarkStore persists the last fully dispatched round per subscription.
// The subscription loop is its only writer; two processes sharing one
// subscription name are not supported.
type WatermarkStore interface {
	// Get returns the watermark for name, or 0 when none was ever stored.
	Get(ctx context.Context, name string) (model.Round, error)
	// Set persists round durably before returning.
	Set(ctx context.Context, name string, round model.Round) error
	Close() error
}
