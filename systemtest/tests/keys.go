package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/EternisAI/keygate/internal/api/http/dto"
	"github.com/EternisAI/keygate/internal/keycodec"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func TestHealthCheck(t *testing.T, router *gin.Engine) {
	rr := doJSON(router, "GET", "/health", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "keygate", resp.Service)
	assert.Equal(t, "connected", resp.Database)

	assert.Equal(t, http.StatusOK, doJSON(router, "GET", "/ready", nil, "").Code)
}

func TestKeyLifecycle(t *testing.T, router *gin.Engine, adminKey string) {
	var created dto.KeyResponse

	t.Run("create", func(t *testing.T) {
		body := dto.CreateKeyRequest{Duration: 2, Unit: "hours", Description: "system test"}
		rr := doJSON(router, "POST", "/api/admin/keys", body, adminKey)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		decodeData(t, rr, &created)
		assert.Equal(t, "active", created.Status)
		assert.Len(t, created.Key, keycodec.KeyLength)
	})

	t.Run("validate", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/keys/validate", dto.KeyRequest{Key: created.Key}, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var v dto.ValidationResponse
		decodeData(t, rr, &v)
		assert.Equal(t, int64(1), v.UsageCount)
		assert.NotNil(t, v.ActivatedAt)
	})

	t.Run("extend", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/admin/keys/"+created.Key+"/extend", dto.ExtendKeyRequest{Duration: 1, Unit: "days"}, adminKey)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var ext dto.KeyResponse
		decodeData(t, rr, &ext)
		require.Len(t, ext.ExtensionHistory, 1)
		assert.Equal(t, "days", ext.ExtensionHistory[0].Unit)
		assert.True(t, ext.ExpiresAt.After(created.ExpiresAt))
	})

	t.Run("heartbeat and online", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/keys/heartbeat", dto.HeartbeatRequest{Key: created.Key, DeviceID: "device-1"}, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr = doJSON(router, "GET", "/api/admin/online", nil, adminKey)
		require.Equal(t, http.StatusOK, rr.Code)
		var online dto.OnlineResponse
		decodeData(t, rr, &online)
		require.Equal(t, 1, online.Count)
		assert.Equal(t, "device-1", online.Keys[0].LastOnlineDeviceID)
	})

	t.Run("disable", func(t *testing.T) {
		status := "disabled"
		rr := doJSON(router, "PUT", "/api/admin/keys/"+created.Key, dto.UpdateKeyRequest{Status: &status}, adminKey)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr = doJSON(router, "POST", "/api/keys/validate", dto.KeyRequest{Key: created.Key}, "")
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("stats", func(t *testing.T) {
		rr := doJSON(router, "GET", "/api/admin/stats", nil, adminKey)
		require.Equal(t, http.StatusOK, rr.Code)
		var st dto.StatsResponse
		decodeData(t, rr, &st)
		assert.Equal(t, int64(1), st.Total)
		assert.Equal(t, int64(1), st.Used)
	})

	t.Run("delete", func(t *testing.T) {
		rr := doJSON(router, "DELETE", "/api/admin/keys/"+created.Key, nil, adminKey)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSON(router, "GET", "/api/admin/keys/"+created.Key, nil, adminKey)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestAutoRegistration(t *testing.T, router *gin.Engine) {
	key, err := keycodec.Mint(3 * 24 * 60 * 60)
	require.NoError(t, err)

	const workers = 8
	codes := make([]int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = doJSON(router, "POST", "/api/keys/validate-and-register", dto.KeyRequest{Key: key}, "").Code
		}(i)
	}
	wg.Wait()

	var ok, conflict int
	for _, c := range codes {
		switch c {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
			conflict++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflict)

	rr := doJSON(router, "POST", "/api/keys/check-usage", dto.KeyRequest{Key: key}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var check dto.CheckUsageResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &check))
	assert.True(t, check.Exists)
	assert.True(t, check.Data.AutoRegistered)
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.True(t, env.Success, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func doJSON(router *gin.Engine, method, path string, body any, adminKey string) *httptest.ResponseRecorder {
	var b []byte
	if body != nil {
		b, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if adminKey != "" {
		req.Header.Set("X-Admin-Key", adminKey)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}
