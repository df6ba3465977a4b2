package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/EternisAI/keygate/internal/api/http/dto"
	"github.com/EternisAI/keygate/internal/sessions"
	"github.com/gin-gonic/gin"
)

const (
	defaultThresholdMinutes = 30
	maxThresholdMinutes     = 24 * 60
)

type SessionHandler struct {
	tracker *sessions.Tracker
}

func NewSessionHandler(tracker *sessions.Tracker) *SessionHandler {
	return &SessionHandler{tracker: tracker}
}

func (h *SessionHandler) ListActive(c *gin.Context) {
	threshold := defaultThresholdMinutes
	if raw := c.Query("threshold_minutes"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > maxThresholdMinutes {
			badRequest(c, "threshold_minutes must be between 1 and 1440", nil)
			return
		}
		threshold = v
	}

	entries := h.tracker.ListActive(time.Duration(threshold) * time.Minute)
	items := make([]dto.SessionResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, dto.SessionResponse{
			SessionID:    e.ID,
			Key:          e.Key,
			UserAgent:    e.UserAgent,
			IP:           e.IP,
			LastActivity: e.LastActivity,
			KeyDetails: dto.SessionKeyDetails{
				Description: e.Details.Description,
				ExpiresAt:   e.Details.ExpiresAt,
				UsageCount:  e.Details.UsageCount,
			},
		})
	}

	c.JSON(http.StatusOK, dto.OK("", dto.ActiveSessionsResponse{
		Sessions:         items,
		Count:            len(items),
		ThresholdMinutes: threshold,
	}))
}
