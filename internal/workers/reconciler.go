package workers

import (
	"context"
	"fmt"
	"time"

	logpkg "github.com/rubenelhore/simonkey-identity/internal/logger"
	"github.com/rubenelhore/simonkey-identity/internal/queue"
	"github.com/rubenelhore/simonkey-identity/internal/reconcile"
	"github.com/rubenelhore/simonkey-identity/internal/store"
	"go.uber.org/zap"
)

// ReconcileWorker processes duplicate-reconciliation jobs
type ReconcileWorker struct {
	reconciler *reconcile.Reconciler
	jobQueue   queue.JobQueue // For re-enqueueing jobs with delays
	logger     *zap.Logger
}

// NewReconcileWorker creates a new reconcile worker
func NewReconcileWorker(reconciler *reconcile.Reconciler, jobQueue queue.JobQueue, logger *zap.Logger) *ReconcileWorker {
	return &ReconcileWorker{
		reconciler: reconciler,
		jobQueue:   jobQueue,
		logger:     logger,
	}
}

// ProcessReconcileAllJob runs a full duplicate scan
func (w *ReconcileWorker) ProcessReconcileAllJob(ctx context.Context, job *queue.Job) error {
	report, err := w.reconciler.ReconcileAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to run reconciliation pass: %w", err)
	}

	w.logger.Info("reconcile_all_completed",
		zap.String("job_id", job.ID.String()),
		zap.Int("scanned_groups", report.ScannedGroups),
		zap.Int("deleted_records", report.DeletedRecords),
		zap.Int("failed_records", report.FailedRecords),
	)

	// Records that failed to delete stay behind; the next pass picks them up.
	if report.FailedRecords > 0 {
		for _, group := range report.Groups {
			if !group.HasErrors() {
				continue
			}
			w.logger.Warn("reconcile_group_partial",
				zap.String("email", logpkg.SanitizeEmail(group.Email)),
				zap.String("canonical_id", group.CanonicalID),
				zap.Int("failed", len(group.Errors)),
			)
		}
	}
	return nil
}

// ProcessReconcileEmailJob reconciles a single email group
func (w *ReconcileWorker) ProcessReconcileEmailJob(ctx context.Context, job *queue.Job) error {
	if job.Email == "" {
		return fmt.Errorf("email is required for reconcile_email job")
	}

	report, err := w.reconciler.ReconcileEmail(ctx, job.Email)
	if err != nil {
		return fmt.Errorf("failed to reconcile email group: %w", err)
	}

	w.logger.Info("reconcile_email_completed",
		zap.String("job_id", job.ID.String()),
		zap.String("email", logpkg.SanitizeEmail(job.Email)),
		zap.String("canonical_id", report.CanonicalID),
		zap.Int("deleted", len(report.DeletedIDs)),
		zap.Int("failed", len(report.Errors)),
	)
	return nil
}

// ProcessJob processes a job based on its type
func (w *ReconcileWorker) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	switch job.Type {
	case queue.JobTypeReconcileAll:
		if err := w.ProcessReconcileAllJob(ctx, job); err != nil {
			return w.handleJobError(ctx, msg, job, err)
		}
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		return nil

	case queue.JobTypeReconcileEmail:
		if err := w.ProcessReconcileEmailJob(ctx, job); err != nil {
			return w.handleJobError(ctx, msg, job, err)
		}
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		return nil

	default:
		if nackErr := msg.Nack(false); nackErr != nil { // Unknown job type, send to DLQ
			w.logger.Error("failed_to_nack_unknown_job", zap.Error(nackErr))
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// handleJobError retries transient failures with a delay and dead-letters the rest
func (w *ReconcileWorker) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	if store.IsTransient(err) && job.CanRetry() && w.jobQueue != nil {
		// Backend hiccup: re-enqueue with backoff instead of hammering it
		// through an immediate requeue.
		retryDelay := time.Duration(job.RetryCount+1) * 30 * time.Second
		notBefore := time.Now().Add(retryDelay)

		delayedJob := &queue.Job{
			ID:         job.ID,
			Type:       job.Type,
			Email:      job.Email,
			NotBefore:  &notBefore,
			NotAfter:   job.NotAfter,
			Metadata:   job.Metadata,
			CreatedAt:  job.CreatedAt,
			RetryCount: job.RetryCount + 1,
			MaxRetries: job.MaxRetries,
		}

		if ackErr := msg.Ack(); ackErr != nil {
			w.logger.Error("failed_to_ack_before_reenqueue", zap.Error(ackErr))
		}

		if enqueueErr := w.jobQueue.Enqueue(ctx, delayedJob); enqueueErr != nil {
			w.logger.Error("failed_to_reenqueue_job",
				zap.String("job_id", job.ID.String()),
				zap.Error(enqueueErr),
			)
			return fmt.Errorf("transient failure, failed to re-enqueue: %w", enqueueErr)
		}

		w.logger.Warn("job_retry_scheduled",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.Type)),
			zap.Time("not_before", notBefore),
			zap.Int("attempt", delayedJob.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		return nil
	}

	if job.CanRetry() {
		job.IncrementRetry()
		w.logger.Warn("job_failed_will_retry",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.Type)),
			zap.Int("attempt", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		if nackErr := msg.Nack(true); nackErr != nil {
			w.logger.Error("failed_to_nack_job", zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (will retry): %w", err)
	}

	// Max retries exceeded, send to DLQ
	w.logger.Error("job_failed_max_retries",
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.Int("max_retries", job.MaxRetries),
		zap.String("error", logpkg.SanitizeError(err)),
	)
	if nackErr := msg.Nack(false); nackErr != nil {
		w.logger.Error("failed_to_nack_job_to_dlq", zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (max retries): %w", err)
}
