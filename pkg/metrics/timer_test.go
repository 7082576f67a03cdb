package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestSince_Histogram(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_since_seconds",
		Help: "Since helper under test",
	})

	start := time.Now().Add(-250 * time.Millisecond)
	Since(h, start)

	m := &dto.Metric{}
	if err := h.Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := m.GetHistogram().GetSampleCount(); got != 1 {
		t.Fatalf("sample count = %d, want 1", got)
	}
	if sum := m.GetHistogram().GetSampleSum(); sum < 0.25 {
		t.Errorf("sample sum = %v, want >= 0.25", sum)
	}
}

func TestSince_HistogramVec(t *testing.T) {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "test_since_vec_seconds",
		Help: "Since helper with labels under test",
	}, []string{"operation"})

	Since(vec.WithLabelValues("live_note"), time.Now())
	Since(vec.WithLabelValues("live_note"), time.Now())
	Since(vec.WithLabelValues("bank_read"), time.Now())

	counts := map[string]uint64{}
	ch := make(chan prometheus.Metric, 8)
	vec.Collect(ch)
	close(ch)
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil {
			t.Fatalf("write metric: %v", err)
		}
		for _, label := range m.GetLabel() {
			if label.GetName() == "operation" {
				counts[label.GetValue()] = m.GetHistogram().GetSampleCount()
			}
		}
	}

	if counts["live_note"] != 2 {
		t.Errorf("live_note samples = %d, want 2", counts["live_note"])
	}
	if counts["bank_read"] != 1 {
		t.Errorf("bank_read samples = %d, want 1", counts["bank_read"])
	}
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	NotesWritten.Inc()
	Since(ToolCallDuration.WithLabelValues("system_health"), time.Now())

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{
		"livemem_notes_written_total",
		"livemem_tool_call_duration_seconds",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
