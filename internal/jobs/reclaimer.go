// reclaimer.go implements the StuckRunReclaimer background job. QA runs have
// no mid-run cancellation, so a worker crash can strand a module in
// qa_in_progress; lost enqueues can strand one in pending. The reclaimer
// periodically rescues both: stuck runs are reset to pending past a grace
// period, and aged pending modules are re-enqueued.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/marketplace-registry/marketplace-registry/internal/config"
	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
	"github.com/marketplace-registry/marketplace-registry/internal/db/repositories"
	"github.com/marketplace-registry/marketplace-registry/internal/queue"
)

// StuckRunReclaimer periodically rescues stranded modules.
type StuckRunReclaimer struct {
	cfg      *config.WorkerConfig
	logger   *slog.Logger
	modules  *repositories.ModuleRepository
	queue    queue.Queue
	stopChan chan struct{}
}

// NewStuckRunReclaimer creates the reclaimer.
func NewStuckRunReclaimer(cfg *config.WorkerConfig, logger *slog.Logger, modules *repositories.ModuleRepository, q queue.Queue) *StuckRunReclaimer {
	return &StuckRunReclaimer{
		cfg:      cfg,
		logger:   logger,
		modules:  modules,
		queue:    q,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background reclaim loop. It runs an initial scan
// immediately, then repeats on the configured interval. The loop exits when
// ctx is cancelled or Stop is called.
func (r *StuckRunReclaimer) Start(ctx context.Context) {
	interval := r.cfg.ReclaimInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("stuck-run reclaimer started", "interval", interval)
	r.runScan(ctx)

	for {
		select {
		case <-ticker.C:
			r.runScan(ctx)
		case <-r.stopChan:
			r.logger.Info("stuck-run reclaimer stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop signals the background loop to exit.
func (r *StuckRunReclaimer) Stop() {
	close(r.stopChan)
}

func (r *StuckRunReclaimer) runScan(ctx context.Context) {
	r.resetStuckRuns(ctx)
	r.requeueAgedPending(ctx)
}

// resetStuckRuns moves modules orphaned in qa_in_progress back to pending and
// re-enqueues them.
func (r *StuckRunReclaimer) resetStuckRuns(ctx context.Context) {
	grace := r.cfg.StuckGraceMinutes
	if grace <= 0 {
		grace = 30
	}

	stuck, err := r.modules.FindStuckInQA(ctx, grace)
	if err != nil {
		r.logger.Error("failed to scan for stuck QA runs", "error", err)
		return
	}

	for _, module := range stuck {
		msg := "reset after stalled QA run"
		err := r.modules.TransitionStatus(ctx, module.ID.String(),
			[]models.ModuleStatus{models.StatusQAInProgress}, models.StatusPending, &msg)
		if err != nil {
			// A worker may have finished between the scan and the reset.
			r.logger.Warn("could not reset stuck module", "module_id", module.ID, "error", err)
			continue
		}
		r.logger.Info("reset stalled QA run", "module_id", module.ID, "slug", module.Slug)

		if err := r.queue.Enqueue(ctx, module.ID); err != nil {
			r.logger.Warn("failed to re-enqueue reset module", "module_id", module.ID, "error", err)
		}
	}
}

// requeueAgedPending re-enqueues pending modules that have waited past the
// configured age, covering enqueues lost to restarts or a full queue.
func (r *StuckRunReclaimer) requeueAgedPending(ctx context.Context) {
	age := r.cfg.PendingAgeMinutes
	if age <= 0 {
		age = 10
	}

	aged, err := r.modules.FindAgedPending(ctx, age)
	if err != nil {
		r.logger.Error("failed to scan for aged pending modules", "error", err)
		return
	}

	for _, module := range aged {
		if err := r.queue.Enqueue(ctx, module.ID); err != nil {
			r.logger.Warn("failed to re-enqueue pending module", "module_id", module.ID, "error", err)
			continue
		}
		r.logger.Info("re-enqueued aged pending module", "module_id", module.ID, "slug", module.Slug)
	}
}
