// Package http exposes read-only views of exchange flows, their history and the
// registered protocols on the ops server.
package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/allisson/credx/internal/exchange/http/dto"
	exchangeUseCase "github.com/allisson/credx/internal/exchange/usecase"
	"github.com/allisson/credx/internal/httputil"
)

// ExchangeHandler serves the exchange read endpoints.
type ExchangeHandler struct {
	exchangeUseCase exchangeUseCase.ExchangeUseCase
	logger          *slog.Logger
}

// NewExchangeHandler creates a new exchange handler.
func NewExchangeHandler(useCase exchangeUseCase.ExchangeUseCase, logger *slog.Logger) *ExchangeHandler {
	return &ExchangeHandler{exchangeUseCase: useCase, logger: logger}
}

// RegisterRoutes mounts the handler under group.
func (h *ExchangeHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/protocols", h.ListProtocolsHandler)
	group.GET("/flows/:id", h.GetFlowHandler)
	group.GET("/threads/:id/flows", h.ListThreadFlowsHandler)
	group.GET("/threads/:id/children", h.ListChildFlowsHandler)
	group.GET("/threads/:id/history", h.ThreadHistoryHandler)
	group.GET("/participants/:id/history", h.ParticipantHistoryHandler)
}

// ListProtocolsHandler lists the registered protocols and their operations.
// GET /v1/exchange/protocols
func (h *ExchangeHandler) ListProtocolsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, dto.MapProtocolsToResponse(h.exchangeUseCase.Protocols(c.Request.Context())))
}

// GetFlowHandler returns one flow.
// GET /v1/exchange/flows/:id
func (h *ExchangeHandler) GetFlowHandler(c *gin.Context) {
	id, ok := h.param(c)
	if !ok {
		return
	}

	flow, err := h.exchangeUseCase.Flow(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapFlowToResponse(flow))
}

// ListThreadFlowsHandler returns the flows of a thread.
// GET /v1/exchange/threads/:id/flows
func (h *ExchangeHandler) ListThreadFlowsHandler(c *gin.Context) {
	id, ok := h.param(c)
	if !ok {
		return
	}

	flows, err := h.exchangeUseCase.FlowsByThread(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapFlowsToResponse(flows))
}

// ListChildFlowsHandler returns the flows whose parent thread is :id.
// GET /v1/exchange/threads/:id/children
func (h *ExchangeHandler) ListChildFlowsHandler(c *gin.Context) {
	id, ok := h.param(c)
	if !ok {
		return
	}

	flows, err := h.exchangeUseCase.ChildFlows(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapFlowsToResponse(flows))
}

// ThreadHistoryHandler returns a page of the thread's flow log, oldest first.
// GET /v1/exchange/threads/:id/history?offset=0&limit=50
func (h *ExchangeHandler) ThreadHistoryHandler(c *gin.Context) {
	id, ok := h.param(c)
	if !ok {
		return
	}
	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	records, err := h.exchangeUseCase.History(c.Request.Context(), id, offset, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapFlowRecordsToResponse(records))
}

// ParticipantHistoryHandler returns a page of the records sent or received by a participant.
// GET /v1/exchange/participants/:id/history?offset=0&limit=50
func (h *ExchangeHandler) ParticipantHistoryHandler(c *gin.Context) {
	id, ok := h.param(c)
	if !ok {
		return
	}
	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	records, err := h.exchangeUseCase.ParticipantHistory(c.Request.Context(), id, offset, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapFlowRecordsToResponse(records))
}

func (h *ExchangeHandler) param(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		httputil.HandleBadRequestGin(c, fmt.Errorf("id cannot be empty"), h.logger)
		return "", false
	}
	return id, true
}
