package automation

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"visadesk_backend/internal/events"
	"visadesk_backend/platform/config"
	"visadesk_backend/platform/logger"
)

// retryBackoff is the base of the linear retry delay; attempt n waits
// n * retryBackoff.
const retryBackoff = 30 * time.Second

// Pool runs the polling workers that drain the job queue. Each worker
// claims a batch, processes it, and polls again; claims are serialized by
// the database so pool instances can run on multiple hosts.
type Pool struct {
	jobs      *JobRepository
	processor *ReplyProcessor
	bus       events.Bus
	cfg       config.AutomationConfig
	log       *logger.Logger
}

func NewPool(jobs *JobRepository, processor *ReplyProcessor, bus events.Bus, cfg config.AutomationConfig, log *logger.Logger) *Pool {
	return &Pool{
		jobs:      jobs,
		processor: processor,
		bus:       bus,
		cfg:       cfg,
		log:       log,
	}
}

// Run blocks until the context is cancelled or a worker returns an error.
func (p *Pool) Run(ctx context.Context) error {
	count := p.cfg.GetWorkerCount()
	if count < 1 {
		count = 2
	}
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		workerID := fmt.Sprintf("%s-%d", host, i)
		g.Go(func() error {
			return p.runWorker(ctx, workerID)
		})
	}
	p.log.Info("worker pool started", "workers", count, "host", host)
	return g.Wait()
}

func (p *Pool) runWorker(ctx context.Context, workerID string) error {
	log := p.log.WithWorkerID(workerID)

	interval := p.cfg.GetWorkerPollInterval()
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batchSize := p.cfg.GetWorkerBatchSize()
	if batchSize < 1 {
		batchSize = 10
	}

	for {
		jobs, err := p.jobs.ClaimBatch(ctx, workerID, batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("failed to claim job batch", "error", err)
		}
		for _, job := range jobs {
			p.handle(ctx, log, job)
		}
		// A full batch means the queue is likely still backed up; skip the
		// poll delay and claim again.
		if len(jobs) == batchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Pool) handle(ctx context.Context, log *logger.Logger, job Job) {
	start := time.Now()
	err := p.processor.Process(ctx, job)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		if err := p.jobs.MarkCompleted(ctx, job.ID); err != nil {
			log.Error("failed to mark job completed", "error", err, "jobId", job.ID)
			return
		}
		log.Info("job completed", "jobId", job.ID, "type", job.Type, "attempt", job.Attempts, "durationMs", elapsed.Milliseconds())

	case IsNoRetry(err):
		if markErr := p.jobs.MarkFailedTerminal(ctx, job.ID, err.Error()); markErr != nil {
			log.Error("failed to mark job terminally failed", "error", markErr, "jobId", job.ID)
		}
		log.Error("job failed terminally", "error", err, "jobId", job.ID, "type", job.Type, "attempt", job.Attempts)
		p.publishTerminalFailure(ctx, job, err)

	default:
		status, markErr := p.jobs.MarkFailed(ctx, job.ID, err.Error(), p.cfg.GetJobMaxAttempts(), retryBackoff)
		if markErr != nil {
			log.Error("failed to mark job failed", "error", markErr, "jobId", job.ID)
			return
		}
		if status == JobFailed {
			log.Error("job exhausted retry budget", "error", err, "jobId", job.ID, "type", job.Type, "attempt", job.Attempts)
			p.publishTerminalFailure(ctx, job, err)
			return
		}
		log.Warn("job attempt failed, will retry", "error", err, "jobId", job.ID, "type", job.Type, "attempt", job.Attempts)
	}
}

func (p *Pool) publishTerminalFailure(ctx context.Context, job Job, cause error) {
	p.bus.Publish(ctx, events.JobFailedTerminally{
		BaseEvent: events.NewBaseEvent(),
		JobID:     job.ID,
		JobType:   job.Type,
		Reason:    cause.Error(),
	})
}
