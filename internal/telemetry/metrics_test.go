package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestInstrumentCountsByStatusClass(t *testing.T) {
	h := Instrument("probe", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Contains(t, scrape(t), `zephyrmesh_requests_total{op="probe",status="4xx"} 1`)
}

func TestObserveMessage(t *testing.T) {
	ObserveMessage("in", "degree")
	ObserveMessage("in", "degree")
	assert.Contains(t, scrape(t), `zephyrmesh_overlay_messages_total{direction="in",type="degree"} 2`)
}
