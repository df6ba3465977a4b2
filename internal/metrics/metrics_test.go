package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstancesAreIndependent(t *testing.T) {
	a := New()
	b := New()

	a.KeysCreated.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.KeysCreated))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.KeysCreated))
}

func TestMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/admin/keys/:key", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/admin/keys/abc", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/admin/keys/:key", "404")))
}

func TestHandlerExposesSessionsGauge(t *testing.T) {
	m := New()
	m.TrackSessions(func() int { return 7 })
	m.Validations.WithLabelValues(ResultOK).Inc()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "keygate_sessions_active 7"))
	assert.True(t, strings.Contains(body, `keygate_key_validations_total{result="ok"} 1`))
}
