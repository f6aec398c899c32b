package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.ObserveHTTP("/api/requests", "GET", "200", 5*time.Millisecond)
	m.ObserveHTTP("/api/requests", "GET", "200", 7*time.Millisecond)
	m.Transition("Pendiente", "En progreso")
	m.Login("ok")
	m.SetTrashSize(3)
	m.TrashPurged(2)
	m.TrashPurged(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/requests", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("Pendiente", "En progreso")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.trashSize))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.trashPurged))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Transition("En revisión", "Finalizada")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "mesa_workflow_transitions_total"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveHTTP("/", "GET", "200", time.Millisecond)
		m.Transition("a", "b")
		m.Login("ok")
		m.SetTrashSize(1)
		m.TrashPurged(1)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
