// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetInternalAPIKey() string
}

// WebhookConfig provides settings for inbound webhook verification.
type WebhookConfig interface {
	GetWebhookSecret() string
}

// WhatsAppConfig provides settings for the outbound WhatsApp transport.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
}

// GenAIConfig provides settings for the reply generation model.
type GenAIConfig interface {
	GetGenAIAPIKey() string
	GetGenAIModel() string
	GetGenAITimeout() time.Duration
	IsGenAIEnabled() bool
}

// SchedulerConfig provides settings for the asynq scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// AutomationConfig provides tuning knobs for the job queue and workers.
type AutomationConfig interface {
	GetWorkerCount() int
	GetWorkerPollInterval() time.Duration
	GetWorkerBatchSize() int
	GetJobMaxAttempts() int
	GetJobLeaseTimeout() time.Duration
	GetConversationLeaseTTL() time.Duration
	GetSendRatePerSecond() float64
}

// FlowConfig provides conversation flow tuning.
type FlowConfig interface {
	GetLeadReuseWindow() time.Duration
	GetMaxQuestionsPerFlow() int
}

// MediaConfig provides settings for inbound media storage.
type MediaConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMediaBucket() string
	IsMediaStorageEnabled() bool
}

// AlertConfig provides settings for operator alert email.
type AlertConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetAlertFromAddress() string
	GetAlertToAddress() string
	IsAlertEmailEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                  string
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowAll         bool
	CORSOrigins          []string
	InternalAPIKey       string
	WebhookSecret        string
	WhatsAppURL          string
	WhatsAppKey          string
	WhatsAppDeviceID     string
	GenAIAPIKey          string
	GenAIModel           string
	GenAITimeout         time.Duration
	RedisURL             string
	RedisTLSInsecure     bool
	AsynqQueueName       string
	AsynqConcurrency     int
	WorkerCount          int
	WorkerPollInterval   time.Duration
	WorkerBatchSize      int
	JobMaxAttempts       int
	JobLeaseTimeout      time.Duration
	ConversationLeaseTTL time.Duration
	SendRatePerSecond    float64
	LeadReuseWindow      time.Duration
	MaxQuestionsPerFlow  int
	MinIOEndpoint        string
	MinIOAccessKey       string
	MinIOSecretKey       string
	MinIOUseSSL          bool
	MediaBucket          string
	SMTPHost             string
	SMTPPort             int
	SMTPUsername         string
	SMTPPassword         string
	AlertFromAddress     string
	AlertToAddress       string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string       { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool     { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string  { return c.CORSOrigins }
func (c *Config) GetInternalAPIKey() string { return c.InternalAPIKey }

// WebhookConfig implementation
func (c *Config) GetWebhookSecret() string { return c.WebhookSecret }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string      { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string      { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }

// GenAIConfig implementation
func (c *Config) GetGenAIAPIKey() string         { return c.GenAIAPIKey }
func (c *Config) GetGenAIModel() string          { return c.GenAIModel }
func (c *Config) GetGenAITimeout() time.Duration { return c.GenAITimeout }
func (c *Config) IsGenAIEnabled() bool           { return c.GenAIAPIKey != "" }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// AutomationConfig implementation
func (c *Config) GetWorkerCount() int                    { return c.WorkerCount }
func (c *Config) GetWorkerPollInterval() time.Duration   { return c.WorkerPollInterval }
func (c *Config) GetWorkerBatchSize() int                { return c.WorkerBatchSize }
func (c *Config) GetJobMaxAttempts() int                 { return c.JobMaxAttempts }
func (c *Config) GetJobLeaseTimeout() time.Duration      { return c.JobLeaseTimeout }
func (c *Config) GetConversationLeaseTTL() time.Duration { return c.ConversationLeaseTTL }
func (c *Config) GetSendRatePerSecond() float64          { return c.SendRatePerSecond }

// FlowConfig implementation
func (c *Config) GetLeadReuseWindow() time.Duration { return c.LeadReuseWindow }
func (c *Config) GetMaxQuestionsPerFlow() int       { return c.MaxQuestionsPerFlow }

// MediaConfig implementation
func (c *Config) GetMinIOEndpoint() string  { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool      { return c.MinIOUseSSL }
func (c *Config) GetMediaBucket() string    { return c.MediaBucket }
func (c *Config) IsMediaStorageEnabled() bool {
	return c.MinIOEndpoint != "" && c.MediaBucket != ""
}

// AlertConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetAlertFromAddress() string { return c.AlertFromAddress }
func (c *Config) GetAlertToAddress() string   { return c.AlertToAddress }
func (c *Config) IsAlertEmailEnabled() bool {
	return c.SMTPHost != "" && c.AlertToAddress != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		CORSAllowAll:         corsAllowAll,
		CORSOrigins:          corsOrigins,
		InternalAPIKey:       getEnv("INTERNAL_API_KEY", ""),
		WebhookSecret:        getEnv("WEBHOOK_SECRET", ""),
		WhatsAppURL:          getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:          getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID:     getEnv("WHATSAPP_DEVICE_ID", ""),
		GenAIAPIKey:          getEnv("GENAI_API_KEY", ""),
		GenAIModel:           getEnv("GENAI_MODEL", "gemini-2.0-flash"),
		GenAITimeout:         mustDuration(getEnv("GENAI_TIMEOUT", "12s")),
		RedisURL:             getEnv("REDIS_URL", ""),
		RedisTLSInsecure:     strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:       getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:     mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		WorkerCount:          mustInt(getEnv("WORKER_COUNT", "4")),
		WorkerPollInterval:   mustDuration(getEnv("WORKER_POLL_INTERVAL", "2s")),
		WorkerBatchSize:      mustInt(getEnv("WORKER_BATCH_SIZE", "10")),
		JobMaxAttempts:       mustInt(getEnv("JOB_MAX_ATTEMPTS", "3")),
		JobLeaseTimeout:      mustDuration(getEnv("JOB_LEASE_TIMEOUT", "5m")),
		ConversationLeaseTTL: mustDuration(getEnv("CONVERSATION_LEASE_TTL", "30s")),
		SendRatePerSecond:    mustFloat(getEnv("SEND_RATE_PER_SECOND", "5")),
		LeadReuseWindow:      mustDuration(getEnv("LEAD_REUSE_WINDOW", "720h")),
		MaxQuestionsPerFlow:  mustInt(getEnv("MAX_QUESTIONS_PER_FLOW", "5")),
		MinIOEndpoint:        getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:       getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:       getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:          strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MediaBucket:          getEnv("MINIO_BUCKET_MEDIA", "inbound-media"),
		SMTPHost:             getEnv("SMTP_HOST", ""),
		SMTPPort:             mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:         getEnv("SMTP_USERNAME", ""),
		SMTPPassword:         getEnv("SMTP_PASSWORD", ""),
		AlertFromAddress:     getEnv("ALERT_FROM_ADDRESS", ""),
		AlertToAddress:       getEnv("ALERT_TO_ADDRESS", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.WebhookSecret == "" && strings.EqualFold(cfg.Env, "production") {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required in production")
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if cfg.JobMaxAttempts < 1 {
		return nil, fmt.Errorf("JOB_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.MaxQuestionsPerFlow < 1 {
		return nil, fmt.Errorf("MAX_QUESTIONS_PER_FLOW must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
