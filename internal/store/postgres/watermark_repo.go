package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
)

// WatermarkRepo stores subscription watermarks in subscription_watermarks.
type WatermarkRepo struct {
	db *DB
}

func NewWatermarkRepo(db *DB) *WatermarkRepo {
	return &WatermarkRepo{db: db}
}

func (r *WatermarkRepo) Get(ctx context.Context, name string) (model.Round, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var round sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT round FROM subscription_watermarks WHERE name = $1
	`, name).Scan(&round)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get watermark %s: %w", name, err)
	}
	if !round.Valid || round.Int64 < 0 {
		return 0, fmt.Errorf("watermark %s: %w", name, model.ErrCorruptWatermark)
	}
	return model.Round(round.Int64), nil
}

// Set upserts the watermark; GREATEST keeps it from moving backwards.
func (r *WatermarkRepo) Set(ctx context.Context, name string, round model.Round) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscription_watermarks (id, name, round)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			round = GREATEST(subscription_watermarks.round, $3),
			updated_at = now()
	`, uuid.New(), name, int64(round))
	if err != nil {
		return fmt.Errorf("set watermark %s: %w", name, err)
	}
	return nil
}

func (r *WatermarkRepo) Close() error {
	return r.db.Close()
}
