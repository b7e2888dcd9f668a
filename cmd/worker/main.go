package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"visadesk_backend/internal/automation"
	"visadesk_backend/internal/email"
	"visadesk_backend/internal/events"
	"visadesk_backend/internal/flow"
	"visadesk_backend/internal/leads"
	"visadesk_backend/internal/media"
	"visadesk_backend/internal/messaging"
	"visadesk_backend/internal/notification"
	"visadesk_backend/internal/reply"
	"visadesk_backend/internal/scheduler"
	"visadesk_backend/internal/tasks"
	"visadesk_backend/internal/whatsapp"
	"visadesk_backend/platform/config"
	"visadesk_backend/platform/db"
	"visadesk_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)

	// ========================================================================
	// Repositories and adapters
	// ========================================================================

	msgRepo := messaging.NewRepository(pool)
	store := messaging.NewIdempotencyStore(pool)
	leadRepo := leads.NewRepository(pool)
	taskRepo := tasks.NewRepository(pool)
	jobRepo := automation.NewJobRepository(pool)

	waClient := whatsapp.NewClient(cfg, log)

	generator, err := reply.NewGenerator(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize reply generator", "error", err)
		panic("failed to initialize reply generator: " + err.Error())
	}
	if generator == nil {
		log.Warn("GENAI_API_KEY not configured; replies use scripted text only")
	}

	mediaStore, err := media.NewStore(cfg, log)
	if err != nil {
		log.Error("failed to initialize media storage", "error", err)
		panic("failed to initialize media storage: " + err.Error())
	}
	if mediaStore != nil {
		if err := withRetry(ctx, log, "ensure media bucket", 5, 2*time.Second, func() error {
			return mediaStore.EnsureBucket(ctx)
		}); err != nil {
			log.Error("failed to ensure media bucket", "error", err)
			panic("failed to ensure media bucket: " + err.Error())
		}
	} else {
		log.Warn("media storage not configured; inbound media is skipped")
	}

	mailer := email.NewAlertMailer(cfg, log)
	if mailer == nil {
		log.Warn("SMTP not configured; operator alerts are log-only")
	}

	notificationModule := notification.New(mailer, taskRepo, log)
	notificationModule.RegisterHandlers(eventBus)

	// ========================================================================
	// Automation pipeline
	// ========================================================================

	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}

	dispatcher := automation.NewDispatcher(
		store, msgRepo, waClient, taskRepo, eventBus,
		cfg.GetSendRatePerSecond(), cfg.GetConversationLeaseTTL(), host, log,
	)
	machine := flow.NewMachine(cfg.GetMaxQuestionsPerFlow())
	processor := automation.NewReplyProcessor(msgRepo, leadRepo, taskRepo, dispatcher, machine, generator, mediaStore, eventBus, log)
	workerPool := automation.NewPool(jobRepo, processor, eventBus, cfg, log)

	// ========================================================================
	// Periodic maintenance (Redis-backed)
	// ========================================================================

	if cfg.GetRedisURL() != "" {
		maintenanceWorker, err := scheduler.NewWorker(cfg, cfg, pool, log)
		if err != nil {
			log.Error("failed to initialize maintenance worker", "error", err)
			panic("failed to initialize maintenance worker: " + err.Error())
		}
		go maintenanceWorker.Run(ctx)

		periodic, err := scheduler.NewPeriodic(cfg, log)
		if err != nil {
			log.Error("failed to initialize periodic scheduler", "error", err)
			panic("failed to initialize periodic scheduler: " + err.Error())
		}
		go periodic.Run(ctx)
	} else {
		log.Warn("REDIS_URL not configured; maintenance sweeps disabled")
	}

	if err := workerPool.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker pool stopped", "error", err)
		panic("worker pool stopped: " + err.Error())
	}
	log.Info("worker shut down")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
