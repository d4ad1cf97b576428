package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-fulfillment/internal/orders"
	"github.com/angelmondragon/storefront-fulfillment/pkg/logger"
)

const defaultTrackingBatch = 100

type trackingSyncer interface {
	SyncTracking(ctx context.Context, batch int) (*orders.TrackingSyncResult, error)
}

type TrackingSyncJobParams struct {
	Logger *logger.Logger
	Orders trackingSyncer
	Batch  int
}

// NewTrackingSyncJob polls the carrier for shipped orders and marks the
// delivered ones.
func NewTrackingSyncJob(params TrackingSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultTrackingBatch
	}
	return &trackingSyncJob{logg: params.Logger, orders: params.Orders, batch: batch}, nil
}

type trackingSyncJob struct {
	logg   *logger.Logger
	orders trackingSyncer
	batch  int
}

func (j *trackingSyncJob) Name() string { return "tracking-sync" }

func (j *trackingSyncJob) Run(ctx context.Context) error {
	result, err := j.orders.SyncTracking(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("tracking sync: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"batch":     j.batch,
		"checked":   result.Checked,
		"delivered": result.Delivered,
		"failed":    result.Failed,
	})
	if result.Failed > 0 {
		j.logg.Warn(logCtx, "tracking sync finished with carrier failures")
		return nil
	}
	j.logg.Info(logCtx, "tracking sync complete")
	return nil
}
