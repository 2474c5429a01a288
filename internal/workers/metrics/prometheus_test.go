package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		m := f.GetMetric()[0]
		switch {
		case m.Counter != nil:
			return m.Counter.GetValue()
		case m.Gauge != nil:
			return m.Gauge.GetValue()
		}
	}
	t.Fatalf("metric %q not found", name)
	return 0
}

func gatherHistogram(t *testing.T, reg *prometheus.Registry, name string) *dto.Histogram {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].Histogram
		}
	}
	t.Fatalf("histogram %q not found", name)
	return nil
}

func TestPrometheusProvider_Counter_ReusedAndAccumulates(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusProvider("vessale", reg)

	c1 := p.Counter("tasks_enqueued")
	c2 := p.Counter("tasks_enqueued")
	if c1 != c2 {
		t.Fatalf("expected same counter instance for same name")
	}

	c1.Add(3)
	c2.Add(2)

	if got := gatherValue(t, reg, "vessale_tasks_enqueued"); got != 5 {
		t.Fatalf("counter value = %v, want 5", got)
	}
}

func TestPrometheusProvider_UpDownCounter_Moves(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusProvider("vessale", reg)

	u := p.UpDownCounter("inflight")
	u.Add(3)
	u.Add(-1)

	if got := gatherValue(t, reg, "vessale_inflight"); got != 2 {
		t.Fatalf("updown value = %v, want 2", got)
	}
}

func TestPrometheusProvider_Histogram_RecordsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusProvider("vessale", reg)

	h := p.Histogram("exec_seconds")
	h.Record(0.1)
	h.Record(0.2)

	hist := gatherHistogram(t, reg, "vessale_exec_seconds")
	if hist.GetSampleCount() != 2 {
		t.Fatalf("sample count = %d, want 2", hist.GetSampleCount())
	}
}

func TestPrometheusProvider_DistinctAttributes_DistinctSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusProvider("vessale", reg)

	a := p.Counter("printed_jobs", WithAttributes(map[string]string{"tenant": "acme"}))
	b := p.Counter("printed_jobs", WithAttributes(map[string]string{"tenant": "globex"}))
	if a == b {
		t.Fatalf("expected distinct series for distinct const labels")
	}

	a.Add(1)
	b.Add(1)
	b.Add(1)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, f := range families {
		if f.GetName() != "vessale_printed_jobs" {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.Counter.GetValue()
		}
	}
	if total != 3 {
		t.Fatalf("total = %v, want 3", total)
	}
}
