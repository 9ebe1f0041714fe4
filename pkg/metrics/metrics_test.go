package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordBusinessMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordTransition("activated")
	m.RecordTransition("activated")
	m.RecordDelivery(OutcomeFailed)
	m.RecordGeocode("ok")
	m.RecordAdminNotifications(3)
	m.RecordAdminNotifications(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.alertTransitions.WithLabelValues("activated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.geocodes.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.adminNotifications))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTransition("activated")
		m.RecordDelivery(OutcomeDelivered)
		m.RecordGeocode("error")
		m.RecordAdminNotifications(1)
		m.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
	})
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/ping/:id", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping/1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/ping/:id", "200")))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
