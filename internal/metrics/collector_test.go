package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounter_SameKeyReturnsSameInstance(t *testing.T) {
	c := NewMetricsCollector()
	a := c.Counter("test_total", "help", "")
	b := c.Counter("test_total", "help", "")
	a.Inc()
	b.Add(2)
	if a.Value() != 3 {
		t.Errorf("expected shared counter, got %d", a.Value())
	}
}

func TestGauge_SetIncDec(t *testing.T) {
	c := NewMetricsCollector()
	g := c.Gauge("test_gauge", "help", "")
	g.Set(5)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 4 {
		t.Errorf("gauge = %d, want 4", g.Value())
	}
}

func TestHistogram_Observe(t *testing.T) {
	c := NewMetricsCollector()
	h := c.Histogram("test_seconds", "help", "", []float64{1, 10})
	h.Observe(0.5)
	h.Observe(5)
	h.Observe(50)
	if h.count != 3 {
		t.Errorf("count = %d", h.count)
	}
	if h.buckets[0].count != 1 || h.buckets[1].count != 2 {
		t.Errorf("buckets = %+v", h.buckets)
	}
}

func TestHandler_RendersPrometheusText(t *testing.T) {
	c := NewMetricsCollector()
	c.Counter("roomchat_test_total", "A test counter", `status="ok"`).Inc()
	c.Gauge("roomchat_test_gauge", "A test gauge", "").Set(7)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	c.Handler()(w, req)

	body := w.Body.String()
	for _, want := range []string{
		"roomchat_uptime_seconds",
		`roomchat_test_total{status="ok"} 1`,
		"roomchat_test_gauge 7",
		"# TYPE roomchat_test_total counter",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition output missing %q:\n%s", want, body)
		}
	}
}
