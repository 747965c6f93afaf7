// qa_worker.go implements the QAWorker background job: the asynchronous
// consumer that drains the registration queue, claims modules via the atomic
// status CAS, runs the analyzer and scoring engine, persists the result, and
// moves the module to its post-QA status. The claim guarantees at most one
// concurrent run per module even with several worker instances.
package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/marketplace-registry/marketplace-registry/internal/analysis"
	"github.com/marketplace-registry/marketplace-registry/internal/config"
	"github.com/marketplace-registry/marketplace-registry/internal/db/models"
	"github.com/marketplace-registry/marketplace-registry/internal/db/repositories"
	"github.com/marketplace-registry/marketplace-registry/internal/ingest"
	"github.com/marketplace-registry/marketplace-registry/internal/notify"
	"github.com/marketplace-registry/marketplace-registry/internal/queue"
	"github.com/marketplace-registry/marketplace-registry/internal/scoring"
	"github.com/marketplace-registry/marketplace-registry/internal/storage"
	"github.com/marketplace-registry/marketplace-registry/internal/telemetry"
)

// QAWorker consumes queued module IDs and runs the quality pipeline on each.
type QAWorker struct {
	cfg      *config.Config
	logger   *slog.Logger
	queue    queue.Queue
	modules  *repositories.ModuleRepository
	results  *repositories.QARepository
	users    *repositories.UserRepository
	store    storage.Store
	analyzer *analysis.Analyzer
	engine   *scoring.Engine
	notifier notify.Notifier
	stopChan chan struct{}
}

// NewQAWorker creates the worker.
func NewQAWorker(
	cfg *config.Config,
	logger *slog.Logger,
	q queue.Queue,
	modules *repositories.ModuleRepository,
	results *repositories.QARepository,
	users *repositories.UserRepository,
	store storage.Store,
	analyzer *analysis.Analyzer,
	engine *scoring.Engine,
	notifier notify.Notifier,
) *QAWorker {
	return &QAWorker{
		cfg:      cfg,
		logger:   logger,
		queue:    q,
		modules:  modules,
		results:  results,
		users:    users,
		store:    store,
		analyzer: analyzer,
		engine:   engine,
		notifier: notifier,
		stopChan: make(chan struct{}),
	}
}

// Start consumes the queue until ctx is cancelled or Stop is called.
func (w *QAWorker) Start(ctx context.Context) {
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-workCtx.Done():
		}
	}()

	w.logger.Info("QA worker started")
	for {
		moduleID, err := w.queue.Dequeue(workCtx)
		if err != nil {
			if workCtx.Err() != nil {
				w.logger.Info("QA worker stopped")
				return
			}
			w.logger.Error("failed to dequeue", "error", err)
			time.Sleep(time.Second)
			continue
		}

		if depth, err := w.queue.Depth(workCtx); err == nil {
			telemetry.QAQueueDepth.Set(float64(depth))
		}

		w.Process(workCtx, moduleID)
	}
}

// Stop signals the consume loop to exit.
func (w *QAWorker) Stop() {
	close(w.stopChan)
}

// Process runs one claimed QA cycle. An unclaimable module (already running,
// already decided, or deleted) is skipped silently; any processing failure
// parks the module in qa_error with the message preserved for operators.
func (w *QAWorker) Process(ctx context.Context, moduleID uuid.UUID) {
	module, err := w.modules.ClaimForQA(ctx, moduleID.String())
	if err != nil {
		w.logger.Error("failed to claim module", "module_id", moduleID, "error", err)
		return
	}
	if module == nil {
		w.logger.Debug("module not claimable", "module_id", moduleID)
		return
	}

	start := time.Now()
	result, runErr := w.runPipeline(ctx, module)
	telemetry.QARunDuration.Observe(time.Since(start).Seconds())

	if runErr != nil {
		telemetry.QARunsTotal.WithLabelValues("error").Inc()
		w.logger.Error("QA run failed", "module_id", module.ID, "error", runErr)

		msg := runErr.Error()
		if err := w.modules.TransitionStatus(ctx, module.ID.String(),
			[]models.ModuleStatus{models.StatusQAInProgress}, models.StatusQAError, &msg); err != nil {
			w.logger.Error("failed to record qa_error status", "module_id", module.ID, "error", err)
		}
		return
	}

	telemetry.QARunsTotal.WithLabelValues(string(result.Recommendation)).Inc()
	telemetry.QAOverallScore.Observe(result.OverallScore)

	target := statusForRecommendation(result.Recommendation)
	var message *string
	if result.Recommendation == models.RecommendReject {
		msg := fmt.Sprintf("rejected by QA with overall score %.1f", result.OverallScore)
		message = &msg
	}
	if err := w.modules.TransitionStatus(ctx, module.ID.String(),
		[]models.ModuleStatus{models.StatusQAInProgress}, target, message); err != nil {
		w.logger.Error("failed to record QA outcome", "module_id", module.ID, "status", target, "error", err)
		return
	}
	module.Status = target

	w.logger.Info("QA run completed",
		"module_id", module.ID,
		"slug", module.Slug,
		"overall_score", result.OverallScore,
		"recommendation", result.Recommendation)

	w.sendCompletionMail(ctx, module, result)
}

// runPipeline stages the stored archive, analyses it, scores it, and persists
// the immutable result row. A panic anywhere in the cycle is converted to an
// error so the worker loop survives.
func (w *QAWorker) runPipeline(ctx context.Context, module *models.Module) (result *models.QAResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("QA pipeline panicked: %v", r)
		}
	}()

	reader, err := w.store.Get(ctx, module.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stored package: %w", err)
	}
	data, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read stored package: %w", err)
	}

	stage, err := os.MkdirTemp(w.cfg.Ingestion.ScratchDir, "qa-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(stage); rmErr != nil {
			w.logger.Warn("failed to clean QA staging dir", "dir", stage, "error", rmErr)
		}
	}()

	if err := ingest.ExtractPackage(data, w.cfg.Ingestion.MaxArchiveBytes(), stage); err != nil {
		return nil, fmt.Errorf("failed to unpack stored package: %w", err)
	}

	report := w.analyzer.Analyze(ctx, stage)
	overall, recommendation := w.engine.Evaluate(report)

	result = &models.QAResult{
		ModuleID:       module.ID,
		Tests:          models.JSONB[models.TestResults]{Data: report.Tests},
		Findings:       models.JSONB[[]models.SecurityFinding]{Data: report.Findings},
		SecurityScore:  report.SecurityScore,
		Quality:        models.JSONB[models.QualityMetrics]{Data: report.Quality},
		OverallScore:   overall,
		Recommendation: recommendation,
		DegradedProbes: models.JSONB[[]string]{Data: report.DegradedProbes},
	}
	if err := w.results.Create(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to persist QA result: %w", err)
	}
	return result, nil
}

func (w *QAWorker) sendCompletionMail(ctx context.Context, module *models.Module, result *models.QAResult) {
	var recipients []string

	if module.SubmittedBy != nil {
		if submitter, err := w.users.GetUserByID(ctx, module.SubmittedBy.String()); err != nil {
			w.logger.Warn("failed to load submitter", "module_id", module.ID, "error", err)
		} else if submitter != nil {
			recipients = append(recipients, submitter.Email)
		}
	}

	admins, err := w.users.ListAdmins(ctx)
	if err != nil {
		w.logger.Warn("failed to list admins for notification", "error", err)
	}
	for _, admin := range admins {
		recipients = append(recipients, admin.Email)
	}

	if err := w.notifier.QACompleted(ctx, recipients, module, result); err != nil {
		w.logger.Warn("failed to send QA completion mail", "module_id", module.ID, "error", err)
	}
}

func statusForRecommendation(rec models.Recommendation) models.ModuleStatus {
	switch rec {
	case models.RecommendApprove:
		return models.StatusQAPassed
	case models.RecommendReview:
		return models.StatusQAReviewNeeded
	default:
		return models.StatusQAFailed
	}
}
