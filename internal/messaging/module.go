// Package messaging provides the inbound messaging bounded context module.
// This file defines the module that encapsulates setup and route registration.
package messaging

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"visadesk_backend/internal/events"
	apphttp "visadesk_backend/internal/http"
	"visadesk_backend/platform/config"
	"visadesk_backend/platform/httpkit"
	"visadesk_backend/platform/logger"
	"visadesk_backend/platform/validator"
)

// ModuleConfig combines the config interfaces the messaging module needs.
type ModuleConfig interface {
	config.WebhookConfig
	config.FlowConfig
}

// Module is the messaging bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
	repo    *Repository
	store   *IdempotencyStore
	cfg     ModuleConfig
	limiter *httpkit.IPRateLimiter
}

// NewModule creates and initializes the messaging module with all its dependencies.
func NewModule(pool *pgxpool.Pool, leadRepo LeadAllocator, jobs JobEnqueuer, eventBus events.Bus, val *validator.Validator, cfg ModuleConfig, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	store := NewIdempotencyStore(pool)
	service := NewService(repo, store, leadRepo, jobs, eventBus, cfg, log)
	handler := NewHandler(service, repo, val)

	return &Module{
		handler: handler,
		service: service,
		repo:    repo,
		store:   store,
		cfg:     cfg,
		limiter: httpkit.NewIPRateLimiter(rate.Limit(20), 40, log),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "messaging"
}

// RegisterRoutes mounts messaging routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Provider-facing webhook (HMAC shared-secret auth, outside /api)
	webhookGroup := ctx.Engine.Group("/webhook")
	webhookGroup.Use(m.limiter.RateLimit())
	webhookGroup.Use(WebhookSignatureMiddleware(m.cfg))
	webhookGroup.POST("/:channel", m.handler.HandleWebhook)

	// Operator read API (internal API key)
	ctx.Internal.GET("/conversations", m.handler.HandleListConversations)
	ctx.Internal.GET("/conversations/:conversationId/messages", m.handler.HandleListMessages)
}

// Repository exposes the repository for cross-module wiring.
func (m *Module) Repository() *Repository {
	return m.repo
}

// IdempotencyStore exposes the dedup store for the worker's dispatch guard.
func (m *Module) IdempotencyStore() *IdempotencyStore {
	return m.store
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
