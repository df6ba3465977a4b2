package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/EternisAI/keygate/internal/api/http/dto"
	"github.com/EternisAI/keygate/internal/keys"
	"github.com/EternisAI/keygate/internal/metrics"
	"github.com/gin-gonic/gin"
)

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, keys.ErrFormat):
		return http.StatusBadRequest, "invalid key format"
	case errors.Is(err, keys.ErrChecksum):
		return http.StatusBadRequest, "key checksum mismatch"
	case errors.Is(err, keys.ErrInvalidDuration):
		return http.StatusBadRequest, "invalid duration"
	case errors.Is(err, keys.ErrInvalidStatus):
		return http.StatusBadRequest, "invalid status"
	case errors.Is(err, keys.ErrInvalidState):
		return http.StatusForbidden, "key is not active"
	case errors.Is(err, keys.ErrNotFound):
		return http.StatusNotFound, "key not found"
	case errors.Is(err, keys.ErrConflict):
		return http.StatusConflict, "key already exists"
	case errors.Is(err, keys.ErrExpired):
		return http.StatusGone, "key has expired"
	case errors.Is(err, keys.ErrUnavailable):
		return http.StatusServiceUnavailable, "key store unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

// validationResult labels a validation outcome for metrics.
func validationResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, keys.ErrExpired):
		return metrics.ResultExpired
	case errors.Is(err, keys.ErrNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, keys.ErrConflict):
		return metrics.ResultConflict
	case errors.Is(err, keys.ErrFormat), errors.Is(err, keys.ErrChecksum), errors.Is(err, keys.ErrInvalidState):
		return metrics.ResultInvalid
	}
	return metrics.ResultError
}

// respondError writes the error envelope for err. Records attached to the
// error are returned as partial state in data.
func respondError(c *gin.Context, err error, now time.Time) {
	status, message := statusOf(err)
	resp := dto.Fail(message, nil)

	switch status {
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		slog.Error("Key request failed", "path", c.FullPath(), "status", status, "error", err)
	default:
		resp.Error = err.Error()
	}
	if state := dto.NewKeyStateResponse(keys.RecordOf(err), now); state != nil {
		resp.Data = state
	}

	c.JSON(status, resp)
}

func badRequest(c *gin.Context, message string, err error) {
	resp := dto.Fail(message, nil)
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

func clientMeta(c *gin.Context) keys.ClientMeta {
	ua := c.Request.UserAgent()
	if ua == "" {
		ua = "Unknown"
	}
	return keys.ClientMeta{UserAgent: ua, IP: c.ClientIP()}
}
