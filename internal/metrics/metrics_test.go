package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAccumulate(t *testing.T) {
	before := testutil.ToFloat64(AgentTicks.WithLabelValues("trading-agent"))
	AgentTicks.WithLabelValues("trading-agent").Inc()
	AgentTicks.WithLabelValues("trading-agent").Inc()
	assert.Equal(t, before+2, testutil.ToFloat64(AgentTicks.WithLabelValues("trading-agent")))

	before = testutil.ToFloat64(PriceFetches.WithLabelValues("cache"))
	PriceFetches.WithLabelValues("cache").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(PriceFetches.WithLabelValues("cache")))
}

func TestGaugeSet(t *testing.T) {
	HubSubscribers.Set(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(HubSubscribers))
	ConsensusNormalized.Set(-0.42)
	assert.Equal(t, -0.42, testutil.ToFloat64(ConsensusNormalized))
}

func TestGinMiddlewareRecordsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddleware())
	router.GET("/api/state", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	count := testutil.CollectAndCount(HTTPRequestDuration)
	assert.GreaterOrEqual(t, count, 1)
}

func TestServerServesMetricsAndHealth(t *testing.T) {
	s := NewServer(0)
	s.Start() // disabled, no listener
	require.NoError(t, s.Shutdown(context.Background()))

	// Exercise the handler wiring directly via promhttp through a live server.
	s = NewServer(49173)
	s.Start()
	defer s.Shutdown(context.Background())
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:49173/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp2, err := http.Get("http://127.0.0.1:49173/metrics")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}
