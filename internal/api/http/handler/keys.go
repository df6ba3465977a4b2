package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/EternisAI/keygate/internal/api/http/dto"
	"github.com/EternisAI/keygate/internal/api/http/middleware"
	"github.com/EternisAI/keygate/internal/auth"
	"github.com/EternisAI/keygate/internal/keys"
	"github.com/EternisAI/keygate/internal/metrics"
	"github.com/gin-gonic/gin"
)

// KeyHandler serves the public key endpoints used by clients.
type KeyHandler struct {
	keys         *keys.Service
	tokens       auth.Config
	metrics      *metrics.Metrics
	onlineWindow time.Duration
	now          func() time.Time
}

func NewKeyHandler(svc *keys.Service, tokens auth.Config, m *metrics.Metrics, onlineWindow time.Duration) *KeyHandler {
	return &KeyHandler{
		keys:         svc,
		tokens:       tokens,
		metrics:      m,
		onlineWindow: onlineWindow,
		now:          time.Now,
	}
}

func (h *KeyHandler) observe(err error) {
	if h.metrics != nil {
		h.metrics.Validations.WithLabelValues(validationResult(err)).Inc()
	}
}

func bindKey(c *gin.Context) (string, bool) {
	var req dto.KeyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Key) == "" {
		badRequest(c, "key is required", nil)
		return "", false
	}
	return strings.TrimSpace(req.Key), true
}

func (h *KeyHandler) Validate(c *gin.Context) {
	key, ok := bindKey(c)
	if !ok {
		return
	}

	v, err := h.keys.ValidateSession(c.Request.Context(), key, clientMeta(c))
	h.observe(err)
	if err != nil {
		respondError(c, err, h.now())
		return
	}

	c.JSON(http.StatusOK, dto.OK("key validated", dto.ValidationResponse{
		KeyResponse: dto.NewKeyResponse(v.Record, h.now(), h.onlineWindow),
		SessionID:   v.SessionID,
	}))
}

func (h *KeyHandler) CheckUsage(c *gin.Context) {
	key, ok := bindKey(c)
	if !ok {
		return
	}

	res, err := h.keys.CheckUsageAndAutoRegister(c.Request.Context(), key)
	if err != nil {
		respondError(c, err, h.now())
		return
	}

	now := h.now()
	data := dto.NewKeyResponse(res.Record, now, h.onlineWindow)
	if res.Existing {
		expired := res.Record.Status == keys.StatusExpired || res.Record.IsExpiredAt(now)
		message := "key has already been used"
		if expired {
			message = "key has expired"
		}
		c.JSON(http.StatusOK, dto.CheckUsageResponse{
			Success: false,
			Exists:  true,
			Used:    true,
			Expired: expired,
			Message: message,
			Data:    data,
		})
		return
	}

	if h.metrics != nil {
		h.metrics.AutoRegistered.Inc()
	}
	c.JSON(http.StatusOK, dto.CheckUsageResponse{
		Success:        true,
		AutoRegistered: true,
		Message:        "key is valid and has been registered",
		Data:           data,
	})
}

func (h *KeyHandler) ValidateAndRegister(c *gin.Context) {
	key, ok := bindKey(c)
	if !ok {
		return
	}

	v, err := h.keys.ValidateAndRegister(c.Request.Context(), key, clientMeta(c))
	h.observe(err)
	if err != nil {
		if errors.Is(err, keys.ErrConflict) {
			h.rejectUsed(c, err)
			return
		}
		respondError(c, err, h.now())
		return
	}
	if h.metrics != nil {
		h.metrics.AutoRegistered.Inc()
	}

	resp := dto.ValidationResponse{
		KeyResponse:    dto.NewKeyResponse(v.Record, h.now(), h.onlineWindow),
		SessionID:      v.SessionID,
		AutoRegistered: v.AutoRegistered,
	}
	if h.tokens.JWTSecret != "" {
		token, err := auth.IssueSessionToken(h.tokens, v.Record.Key, v.SessionID, v.Record.ExpiresAt)
		if err != nil {
			slog.Error("Failed to issue session token", "key", keys.MaskKey(v.Record.Key), "error", err)
		} else {
			resp.SessionToken = token
		}
	}

	c.JSON(http.StatusOK, dto.OK("key validated and registered", resp))
}

// rejectUsed reports a key that was registered before this request. Keys are
// single-use for this endpoint.
func (h *KeyHandler) rejectUsed(c *gin.Context, err error) {
	now := h.now()
	rec := keys.RecordOf(err)

	message := "key has already been used"
	if rec != nil && (rec.Status == keys.StatusExpired || rec.IsExpiredAt(now)) {
		message = "key has expired"
	}

	resp := dto.Fail(message, nil)
	if state := dto.NewKeyStateResponse(rec, now); state != nil {
		resp.Data = state
	}
	c.JSON(http.StatusConflict, resp)
}

func (h *KeyHandler) Heartbeat(c *gin.Context) {
	var req dto.HeartbeatRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body", err)
			return
		}
	}

	key := strings.TrimSpace(req.Key)
	if v, ok := c.Get(middleware.ContextSessionClaims); ok {
		claims := v.(*auth.SessionClaims)
		if key != "" && key != claims.Key {
			c.JSON(http.StatusUnauthorized, dto.Fail("session token does not match key", nil))
			return
		}
		key = claims.Key
	}
	if key == "" {
		badRequest(c, "key is required", nil)
		return
	}

	at, err := h.keys.Heartbeat(c.Request.Context(), key, req.DeviceID)
	if err != nil {
		respondError(c, err, h.now())
		return
	}
	if h.metrics != nil {
		h.metrics.Heartbeats.Inc()
	}

	c.JSON(http.StatusOK, dto.OK("heartbeat recorded", dto.HeartbeatResponse{
		Key:        key,
		DeviceID:   strings.TrimSpace(req.DeviceID),
		LastOnline: at,
	}))
}
