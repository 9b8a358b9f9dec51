package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/cartas/:n", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/cartas/:n", "418"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cartas/7", nil))
	require.Equal(t, http.StatusTeapot, w.Code)

	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/cartas/:n", "418"))
	assert.Equal(t, before+1, after)
}

func TestObserveTransitionAndTask(t *testing.T) {
	before := testutil.ToFloat64(transitions.WithLabelValues("adopt", "rejected"))
	ObserveTransition("adopt", "rejected")
	assert.Equal(t, before+1, testutil.ToFloat64(transitions.WithLabelValues("adopt", "rejected")))

	beforeErr := testutil.ToFloat64(tasks.WithLabelValues("attachment:thumbnail", "error"))
	ObserveTask("attachment:thumbnail", errors.New("boom"))
	assert.Equal(t, beforeErr+1, testutil.ToFloat64(tasks.WithLabelValues("attachment:thumbnail", "error")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	ObserveTransition("deliver", "ok")

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "noel_cartas_transitions_total")
}
