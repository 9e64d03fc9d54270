package scheduler

import (
	"context"
	"time"

	"github.com/username/callrecon/backend/src/logger"
	"github.com/username/callrecon/backend/src/models"
	"github.com/username/callrecon/backend/src/services"
)

// Scheduler invokes the reconciliation service at a fixed interval over a
// sliding "past N days" window. Consecutive windows overlap; the engine's
// idempotency guards make the repetition safe.
type Scheduler struct {
	service      services.ReconciliationService
	interval     time.Duration
	lookbackDays int
	categories   []models.Category
}

func New(service services.ReconciliationService, interval time.Duration, lookbackDays int, categories []models.Category) *Scheduler {
	return &Scheduler{
		service:      service,
		interval:     interval,
		lookbackDays: lookbackDays,
		categories:   categories,
	}
}

// Run blocks until ctx is cancelled, reconciling every category once per
// interval. Categories have disjoint candidate pools, but runs stay
// sequential: matching within a run is single-threaded.
func (s *Scheduler) Run(ctx context.Context) {
	logger.L.Info("Scheduler started",
		"interval", s.interval, "lookbackDays", s.lookbackDays, "categories", len(s.categories))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runAll(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.L.Info("Scheduler stopped", "reason", ctx.Err())
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Scheduler) runAll(ctx context.Context) {
	now := time.Now()
	window := models.DateWindow{
		Start: now.AddDate(0, 0, -s.lookbackDays),
		End:   now,
	}

	for _, category := range s.categories {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.service.RunReconciliation(ctx, window, category); err != nil {
			logger.L.Error("Scheduled reconciliation failed", "category", category, "error", err)
		}
	}
}
