package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observation struct {
	method string
	path   string
	status int
}

type requestObserverStub struct {
	seen []observation
}

func (s *requestObserverStub) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	s.seen = append(s.seen, observation{method: method, path: path, status: status})
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &requestObserverStub{}
	router := gin.New()
	router.Use(Metrics(observer))
	router.GET("/schedule/allocation/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/schedule/allocation/a1", "/schedule/allocation/a2", "/nope"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Len(t, observer.seen, 3)
	assert.Equal(t, observation{http.MethodGet, "/schedule/allocation/:id", http.StatusOK}, observer.seen[0])
	assert.Equal(t, "/schedule/allocation/:id", observer.seen[1].path)
	assert.Equal(t, observation{http.MethodGet, unmatchedRoute, http.StatusNotFound}, observer.seen[2])
}

func TestResponseMetaCollectsValues(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var captured map[string]interface{}
	router := gin.New()
	router.Use(WithResponseMeta())
	router.GET("/day", func(c *gin.Context) {
		SetCacheHit(c, true)
		SetMeta(c, "date", "2025-04-10")
		captured = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/day", nil))

	require.NotNil(t, captured)
	assert.Equal(t, true, captured[MetaCacheHit])
	assert.Equal(t, "2025-04-10", captured["date"])
	assert.Contains(t, captured, MetaProcessingTime)
}
