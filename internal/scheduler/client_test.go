package scheduler

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
)

func TestRedisClientOpt(t *testing.T) {
	opt, err := redisClientOpt("redis://:secret@localhost:6380/2", false)
	if err != nil {
		t.Fatalf("redisClientOpt() error = %v", err)
	}
	if opt.Addr != "localhost:6380" {
		t.Errorf("Addr = %q, want localhost:6380", opt.Addr)
	}
	if opt.Password != "secret" {
		t.Errorf("Password = %q", opt.Password)
	}
	if opt.DB != 2 {
		t.Errorf("DB = %d, want 2", opt.DB)
	}
	if opt.TLSConfig != nil {
		t.Error("TLSConfig should be nil for redis:// URL")
	}
}

func TestRedisClientOptTLSInsecure(t *testing.T) {
	opt, err := redisClientOpt("rediss://localhost:6380", true)
	if err != nil {
		t.Fatalf("redisClientOpt() error = %v", err)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Error("expected TLS config with InsecureSkipVerify")
	}
}

func TestRedisClientOptInvalidURL(t *testing.T) {
	if _, err := redisClientOpt("not a url", false); err == nil {
		t.Fatal("expected error for malformed URL")
	}
}

func TestMaintenanceTaskEnqueue(t *testing.T) {
	mr := miniredis.RunT(t)

	opt, err := redisClientOpt("redis://"+mr.Addr(), false)
	if err != nil {
		t.Fatalf("redisClientOpt() error = %v", err)
	}

	client := asynq.NewClient(opt)
	defer client.Close()

	info, err := client.EnqueueContext(context.Background(), asynq.NewTask(TaskOutboundReconcile, nil), asynq.Queue("maintenance"))
	if err != nil {
		t.Fatalf("EnqueueContext() error = %v", err)
	}
	if info.Queue != "maintenance" {
		t.Errorf("queue = %q, want maintenance", info.Queue)
	}
	if info.Type != TaskOutboundReconcile {
		t.Errorf("type = %q, want %q", info.Type, TaskOutboundReconcile)
	}
}
