package tasks

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	apphttp "visadesk_backend/internal/http"
	"visadesk_backend/platform/httpkit"
)

// Module is the human-task module implementing http.Module.
type Module struct {
	repo *Repository
}

func NewModule(pool *pgxpool.Pool) *Module {
	return &Module{repo: NewRepository(pool)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "tasks"
}

// RegisterRoutes mounts task routes on the internal API-key group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Internal.GET("/tasks", m.handleList)
	ctx.Internal.POST("/tasks/:taskId/resolve", m.handleResolve)
}

// Repository exposes the repository for cross-module wiring.
func (m *Module) Repository() *Repository {
	return m.repo
}

// handleList returns open tasks.
// GET /api/v1/tasks
func (m *Module) handleList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	open, err := m.repo.ListOpen(c.Request.Context(), limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, open)
}

// handleResolve closes one task.
// POST /api/v1/tasks/:taskId/resolve
func (m *Module) handleResolve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("taskId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid task ID", nil)
		return
	}

	if err := m.repo.Resolve(c.Request.Context(), id); err != nil {
		if err == ErrNotFound {
			httpkit.Error(c, http.StatusNotFound, "task not found", nil)
			return
		}
		if httpkit.HandleError(c, err) {
			return
		}
	}
	httpkit.OK(c, gin.H{"resolved": true})
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
