package messaging

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"visadesk_backend/platform/httpkit"
	"visadesk_backend/platform/validator"
)

// Handler handles webhook ingress and the operator read API.
type Handler struct {
	service *Service
	repo    *Repository
	val     *validator.Validator
}

func NewHandler(service *Service, repo *Repository, val *validator.Validator) *Handler {
	return &Handler{service: service, repo: repo, val: val}
}

// knownChannels limits the webhook path parameter to supported channels.
var knownChannels = map[string]bool{
	"whatsapp": true,
}

// HandleWebhook ingests one provider delivery.
// POST /webhook/:channel
// Must answer fast: idempotency plus light resolution only, everything else
// is deferred to the job queue. A non-2xx is returned only when the
// idempotency store is unreachable, so provider retries stay safe.
func (h *Handler) HandleWebhook(c *gin.Context) {
	channel := c.Param("channel")
	if !knownChannels[channel] {
		httpkit.Error(c, http.StatusNotFound, "unknown channel", nil)
		return
	}

	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	result, err := h.service.Ingest(c.Request.Context(), channel, req.Events)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

// HandleListConversations returns recent conversations.
// GET /api/v1/conversations
func (h *Handler) HandleListConversations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	conversations, err := h.repo.ListConversations(c.Request.Context(), limit, offset)
	if httpkit.HandleError(c, err) {
		return
	}

	result := make([]ConversationResponse, len(conversations))
	for i, conv := range conversations {
		result[i] = toConversationResponse(conv)
	}
	httpkit.OK(c, result)
}

// HandleListMessages returns one conversation's messages, oldest first.
// GET /api/v1/conversations/:conversationId/messages
func (h *Handler) HandleListMessages(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid conversation ID", nil)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	messages, err := h.repo.ListMessages(c.Request.Context(), conversationID, limit, offset)
	if httpkit.HandleError(c, err) {
		return
	}

	result := make([]MessageResponse, len(messages))
	for i, m := range messages {
		result[i] = toMessageResponse(m)
	}
	httpkit.OK(c, result)
}
