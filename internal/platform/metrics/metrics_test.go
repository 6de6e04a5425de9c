package metrics

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"certreg/pkg/testutil"
)

func TestHTTPMiddleware(t *testing.T) {
	m := NewHTTP(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/certificates/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/admin", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{}"))
	})

	testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/certificates/1"))
	testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/certificates/2"))
	testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/admin"))

	assert.Equal(t, float64(2), promtestutil.ToFloat64(m.Requests.WithLabelValues("/certificates/{id}", "4xx")))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(m.Requests.WithLabelValues("/admin", "2xx")))
}
