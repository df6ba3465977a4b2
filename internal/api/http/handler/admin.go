package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/EternisAI/keygate/internal/api/http/dto"
	"github.com/EternisAI/keygate/internal/keys"
	"github.com/EternisAI/keygate/internal/metrics"
	"github.com/gin-gonic/gin"
)

// AdminHandler serves key management endpoints behind the admin key.
type AdminHandler struct {
	keys         *keys.Service
	metrics      *metrics.Metrics
	onlineWindow time.Duration
	now          func() time.Time
}

func NewAdminHandler(svc *keys.Service, m *metrics.Metrics, onlineWindow time.Duration) *AdminHandler {
	return &AdminHandler{
		keys:         svc,
		metrics:      m,
		onlineWindow: onlineWindow,
		now:          time.Now,
	}
}

func (h *AdminHandler) CreateKey(c *gin.Context) {
	var req dto.CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "duration and unit are required", err)
		return
	}

	rec, err := h.keys.Create(c.Request.Context(), keys.CreateParams{
		Duration:    req.Duration,
		Unit:        keys.Unit(req.Unit),
		Description: req.Description,
		CustomKey:   req.CustomKey,
		CreatedBy:   c.ClientIP(),
	})
	if err != nil {
		respondError(c, err, h.now())
		return
	}
	if h.metrics != nil {
		h.metrics.KeysCreated.Inc()
	}

	c.JSON(http.StatusCreated, dto.OK("key created", dto.NewKeyResponse(rec, h.now(), h.onlineWindow)))
}

func (h *AdminHandler) ListKeys(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	page, limit = keys.NormalizePage(page, limit)

	recs, total, err := h.keys.List(c.Request.Context(), keys.ListParams{
		Status: keys.Status(c.Query("status")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		respondError(c, err, h.now())
		return
	}

	now := h.now()
	items := make([]dto.KeyResponse, 0, len(recs))
	for i := range recs {
		items = append(items, dto.NewKeyResponse(&recs[i], now, h.onlineWindow))
	}

	c.JSON(http.StatusOK, dto.OK("", dto.ListKeysResponse{
		Keys:       items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + int64(limit) - 1) / int64(limit),
	}))
}

func (h *AdminHandler) GetKey(c *gin.Context) {
	rec, err := h.keys.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, err, h.now())
		return
	}
	c.JSON(http.StatusOK, dto.OK("", dto.NewKeyResponse(rec, h.now(), h.onlineWindow)))
}

func (h *AdminHandler) UpdateKey(c *gin.Context) {
	var req dto.UpdateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	if req.Description == nil && req.Status == nil {
		badRequest(c, "nothing to update", nil)
		return
	}

	params := keys.UpdateParams{Description: req.Description}
	if req.Status != nil {
		st := keys.Status(*req.Status)
		params.Status = &st
	}

	rec, err := h.keys.Update(c.Request.Context(), c.Param("key"), params)
	if err != nil {
		respondError(c, err, h.now())
		return
	}
	c.JSON(http.StatusOK, dto.OK("key updated", dto.NewKeyResponse(rec, h.now(), h.onlineWindow)))
}

func (h *AdminHandler) ExtendKey(c *gin.Context) {
	var req dto.ExtendKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "duration and unit are required", err)
		return
	}

	rec, err := h.keys.Extend(c.Request.Context(), c.Param("key"), req.Duration, keys.Unit(req.Unit), c.ClientIP())
	if err != nil {
		respondError(c, err, h.now())
		return
	}
	if h.metrics != nil {
		h.metrics.KeysExtended.Inc()
	}
	c.JSON(http.StatusOK, dto.OK("key extended", dto.NewKeyResponse(rec, h.now(), h.onlineWindow)))
}

func (h *AdminHandler) DeleteKey(c *gin.Context) {
	removed, err := h.keys.Delete(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, err, h.now())
		return
	}
	if !removed {
		respondError(c, keys.ErrNotFound, h.now())
		return
	}
	if h.metrics != nil {
		h.metrics.KeysDeleted.Inc()
	}
	c.JSON(http.StatusOK, dto.OK("key deleted", nil))
}

func (h *AdminHandler) Stats(c *gin.Context) {
	st, err := h.keys.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err, h.now())
		return
	}
	c.JSON(http.StatusOK, dto.OK("", dto.StatsResponse{
		Total:   st.Total,
		Active:  st.Active,
		Expired: st.Expired,
		Used:    st.Used,
		Unused:  st.Unused,
	}))
}

func (h *AdminHandler) Online(c *gin.Context) {
	recs, since, err := h.keys.ListOnline(c.Request.Context())
	if err != nil {
		respondError(c, err, h.now())
		return
	}

	now := h.now()
	items := make([]dto.OnlineKeyResponse, 0, len(recs))
	for _, rec := range recs {
		items = append(items, dto.OnlineKeyResponse{
			Key:                rec.Key,
			Description:        rec.Description,
			LastOnline:         rec.LastOnline,
			LastOnlineDeviceID: rec.LastOnlineDeviceID,
			ExpiresAt:          rec.ExpiresAt,
			RemainingTime:      dto.FormatDuration(rec.RemainingTime(now)),
		})
	}

	c.JSON(http.StatusOK, dto.OK("", dto.OnlineResponse{
		Keys:          items,
		Count:         len(items),
		Since:         since,
		WindowSeconds: int64(h.onlineWindow / time.Second),
	}))
}

func (h *AdminHandler) Cleanup(c *gin.Context) {
	var req dto.CleanupRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body", err)
			return
		}
	}

	res, err := h.keys.Cleanup(c.Request.Context(), req.DeleteExpiredOlderThanDays)
	if err != nil {
		respondError(c, err, h.now())
		return
	}
	if h.metrics != nil {
		h.metrics.KeysExpired.Add(float64(res.UpdatedExpired))
		h.metrics.KeysDeleted.Add(float64(res.DeletedExpired))
	}

	c.JSON(http.StatusOK, dto.OK("cleanup finished", dto.CleanupResponse{
		UpdatedExpired: res.UpdatedExpired,
		DeletedExpired: res.DeletedExpired,
	}))
}
