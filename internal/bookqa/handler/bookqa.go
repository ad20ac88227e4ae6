// Package handler provides HTTP handlers for the BookQA service.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/bookqa/internal/bookqa/biz"
	"github.com/kart-io/bookqa/internal/bookqa/metrics"
	"github.com/kart-io/bookqa/internal/model"
	"github.com/kart-io/bookqa/pkg/component/storage"
)

// queryTimeout bounds a single question-answering request.
const queryTimeout = 60 * time.Second

// Fixed client-facing failure messages. Raw upstream error text stays in
// the structured logs and never reaches the response body.
const (
	msgInternalError       = "internal error"
	msgUpstreamUnavailable = "upstream provider temporarily unavailable, please retry"
)

// writeInternalError logs the failure detail and answers with a generic 500.
func writeInternalError(c *gin.Context, op string, err error) {
	logger.Errorw("request failed", "op", op, "error", err.Error())
	c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: msgInternalError})
}

// Handler handles BookQA HTTP requests.
type Handler struct {
	service  biz.Service
	backends *storage.Manager
}

// New creates a new Handler. The backends manager may be nil, in which case
// Healthz reports liveness only.
func New(service biz.Service, backends *storage.Manager) *Handler {
	return &Handler{service: service, backends: backends}
}

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// IngestRequest represents a document ingestion request.
type IngestRequest struct {
	SourceLocator string `json:"source_locator" binding:"required"`
	Content       string `json:"content" binding:"required"`
}

// Ingest chunks, embeds, and stores one document source.
func (h *Handler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	report, err := h.service.Ingest(c.Request.Context(), &model.Document{
		SourceLocator: req.SourceLocator,
		Content:       req.Content,
	})
	if err != nil {
		writeInternalError(c, "ingest", err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: report})
}

// QueryRequest represents a question-answering request.
type QueryRequest struct {
	SessionID    string `json:"session_id"`
	Mode         string `json:"mode" binding:"required,qamode"`
	Question     string `json:"question" binding:"required"`
	SelectedText string `json:"selected_text"`
}

// Query answers a question in whole-corpus or selected-text mode.
func (h *Handler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	result, err := h.service.Query(ctx, &biz.QueryRequest{
		SessionID:    req.SessionID,
		Mode:         model.Mode(req.Mode),
		Question:     req.Question,
		SelectedText: req.SelectedText,
	})
	if err != nil {
		h.writeQueryError(c, ctx, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: result})
}

func (h *Handler) writeQueryError(c *gin.Context, ctx context.Context, err error) {
	if ctx.Err() == context.DeadlineExceeded {
		c.JSON(http.StatusRequestTimeout, ErrorResponse{
			Code:    408,
			Message: "Query timeout: the request took too long to process. Please try again or simplify your question.",
		})
		return
	}
	if errors.Is(err, biz.ErrInvalidRequest) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}
	var transient *biz.TransientProviderError
	if errors.As(err, &transient) {
		logger.Warnw("query hit transient provider failure", "provider", transient.Provider, "error", err.Error())
		c.JSON(http.StatusBadGateway, ErrorResponse{Code: 502, Message: msgUpstreamUnavailable})
		return
	}
	logger.Errorw("query failed", "error", err.Error())
	c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: msgInternalError})
}

// PurgeSource removes all units of a document source.
func (h *Handler) PurgeSource(c *gin.Context) {
	locator := c.Param("locator")
	if locator == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "source locator is required"})
		return
	}

	if err := h.service.PurgeSource(c.Request.Context(), locator); err != nil {
		writeInternalError(c, "purge_source", err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success"})
}

// CreateSession creates a new query session.
func (h *Handler) CreateSession(c *gin.Context) {
	sessionID, err := h.service.CreateSession(c.Request.Context())
	if err != nil {
		writeInternalError(c, "create_session", err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Code:    0,
		Message: "success",
		Data:    gin.H{"session_id": sessionID},
	})
}

// SessionHistory returns the ordered turn history of a session.
func (h *Handler) SessionHistory(c *gin.Context) {
	turns, err := h.service.SessionHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, biz.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Code: 404, Message: err.Error()})
			return
		}
		writeInternalError(c, "session_history", err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: turns})
}

// Stats returns service statistics.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		writeInternalError(c, "stats", err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: stats})
}

// healthCheckTimeout bounds backend pings on the health endpoint.
const healthCheckTimeout = 5 * time.Second

// Healthz reports service liveness and the health of registered storage
// backends. It returns 503 when any backend fails its ping.
func (h *Handler) Healthz(c *gin.Context) {
	if h.backends == nil || h.backends.Count() == 0 {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	statuses := h.backends.HealthCheckAll(ctx)
	backends := make(map[string]gin.H, len(statuses))
	healthy := true
	for name, status := range statuses {
		entry := gin.H{
			"healthy": status.Healthy,
			"latency": status.Latency.String(),
		}
		if status.Error != nil {
			entry["error"] = status.Error.Error()
			healthy = false
		}
		backends[name] = entry
	}

	code := http.StatusOK
	overall := "ok"
	if !healthy {
		code = http.StatusServiceUnavailable
		overall = "degraded"
	}
	c.JSON(code, gin.H{"status": overall, "backends": backends})
}

// Metrics exposes counters in Prometheus text format.
func (h *Handler) Metrics(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8",
		[]byte(metrics.Get().Export("bookqa", "")))
}
