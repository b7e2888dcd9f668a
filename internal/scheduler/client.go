// Package scheduler drives the periodic maintenance sweeps over Redis. The
// cron side lives here; the actual work happens in the Worker handlers.
package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"visadesk_backend/platform/config"
	"visadesk_backend/platform/logger"
)

// Periodic registers the cron entries for the maintenance tasks and keeps
// them flowing into the queue while it runs.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
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

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{})

	entries := []struct {
		spec     string
		taskType string
	}{
		{"@every 1m", TaskReclaimStale},
		{"@every 1m", TaskFollowUpScan},
		{"@every 5m", TaskOutboundReconcile},
		{"@every 1h", TaskInboundPrune},
	}
	for _, e := range entries {
		if _, err := scheduler.Register(e.spec, asynq.NewTask(e.taskType, nil), asynq.Queue(queue)); err != nil {
			return nil, fmt.Errorf("register %s: %w", e.taskType, err)
		}
	}

	return &Periodic{scheduler: scheduler, log: log}, nil
}

// Run blocks until the context is cancelled.
func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	go func() {
		<-ctx.Done()
		p.scheduler.Shutdown()
	}()

	if err := p.scheduler.Run(); err != nil {
		p.log.Error("periodic scheduler stopped", "error", err)
	}
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
