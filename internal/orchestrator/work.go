package orchestrator

import (
	"context"
	"time"

	"github.com/goforbroke1006/stagechain"
	"github.com/goforbroke1006/stagechain/internal/logging"
)

// SimulatedWork stands in for real stage processing: it logs the input id and holds the
// stage for d.
func SimulatedWork(d time.Duration, logger *logging.Logger) stagechain.StageFn {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return func(ctx context.Context, req stagechain.StageRequest) error {
		logger.Info("processing", "stage", string(req.Kind()), "input_id", req.InputID())

		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
