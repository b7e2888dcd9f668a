package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"visadesk_backend/internal/automation"
	"visadesk_backend/internal/leads"
	"visadesk_backend/internal/messaging"
	"visadesk_backend/internal/tasks"
	"visadesk_backend/platform/config"
	"visadesk_backend/platform/logger"
)

// Maintenance horizons. The reconcile horizon is deliberately much longer
// than any legitimate dispatch, so a pending claim it catches is a crash
// remnant, not an in-flight send.
const (
	outboundReconcileHorizon = time.Hour
	inboundRetention         = 30 * 24 * time.Hour
	followUpBatchSize        = 100
)

// Worker consumes the periodic maintenance tasks.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	jobs     *automation.JobRepository
	store    *messaging.IdempotencyStore
	leadRepo *leads.Repository
	taskRepo *tasks.Repository
	autoCfg  config.AutomationConfig
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, autoCfg config.AutomationConfig, pool *pgxpool.Pool, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		jobs:     automation.NewJobRepository(pool),
		store:    messaging.NewIdempotencyStore(pool),
		leadRepo: leads.NewRepository(pool),
		taskRepo: tasks.NewRepository(pool),
		autoCfg:  autoCfg,
		log:      log,
	}

	mux.HandleFunc(TaskReclaimStale, w.handleReclaimStale)
	mux.HandleFunc(TaskOutboundReconcile, w.handleOutboundReconcile)
	mux.HandleFunc(TaskInboundPrune, w.handleInboundPrune)
	mux.HandleFunc(TaskFollowUpScan, w.handleFollowUpScan)

	return w, nil
}

// Run blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleReclaimStale(ctx context.Context, _ *asynq.Task) error {
	count, err := w.jobs.ReclaimStale(ctx, w.autoCfg.GetJobLeaseTimeout())
	if err != nil {
		return err
	}
	if count > 0 {
		w.log.Warn("reclaimed stale automation jobs", "count", count)
	}
	return nil
}

// handleOutboundReconcile flags reply claims that never completed. It opens
// one operator task per sweep; the operator decides per conversation whether
// a manual reply is needed. Nothing is ever resent automatically.
func (w *Worker) handleOutboundReconcile(ctx context.Context, _ *asynq.Task) error {
	count, err := w.store.AbandonStaleOutbound(ctx, outboundReconcileHorizon)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	w.log.Warn("abandoned stale outbound reply claims", "count", count)
	reason := fmt.Sprintf("%d outbound replies stayed pending past %s and were flagged; check the affected conversations for missed replies", count, outboundReconcileHorizon)
	if _, err := w.taskRepo.Create(ctx, tasks.KindStaleOutbound, nil, nil, reason); err != nil {
		return err
	}
	return nil
}

func (w *Worker) handleInboundPrune(ctx context.Context, _ *asynq.Task) error {
	count, err := w.store.PruneInboundEvents(ctx, inboundRetention)
	if err != nil {
		return err
	}
	if count > 0 {
		w.log.Info("pruned processed inbound events", "count", count)
	}
	return nil
}

// handleFollowUpScan moves due lead follow-ups into the durable job queue.
// ClaimDueFollowUps clears the timer inside the claiming statement, so a
// lead is enqueued once even with concurrent scheduler instances.
func (w *Worker) handleFollowUpScan(ctx context.Context, _ *asynq.Task) error {
	due, err := w.leadRepo.ClaimDueFollowUps(ctx, followUpBatchSize)
	if err != nil {
		return err
	}

	for _, lead := range due {
		if _, err := w.jobs.Enqueue(ctx, automation.JobTypeLeadFollowUp, automation.FollowUpJobPayload{LeadID: lead.ID}, 0); err != nil {
			w.log.Error("failed to enqueue follow-up job", "error", err, "leadId", lead.ID)
			continue
		}
	}
	if len(due) > 0 {
		w.log.Info("enqueued lead follow-ups", "count", len(due))
	}
	return nil
}
