package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/EternisAI/keygate/internal/api/http/dto"
	"github.com/gin-gonic/gin"
)

const serviceName = "keygate"

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store Pinger
}

func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{store: store}
}

func (h *HealthHandler) Check(ctx *gin.Context) {
	resp := dto.HealthResponse{
		Status:    "ok",
		Service:   serviceName,
		Database:  "connected",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.store.Ping(ctx.Request.Context()); err != nil {
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Error = err.Error()
		ctx.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}
