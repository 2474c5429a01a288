package metrics

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusProvider adapts Provider to github.com/prometheus/client_golang.
// Instruments are registered with reg on first use and reused for the same
// name; Attributes passed via WithAttributes become const labels on the
// underlying collector, so keep their cardinality bounded per InstrumentConfig's
// contract.
type PrometheusProvider struct {
	namespace string
	reg       prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*promCounter
	updowns    map[string]*promUpDownCounter
	histograms map[string]*promHistogram
}

// NewPrometheusProvider constructs a Provider that registers instruments on reg.
// namespace prefixes every metric name (e.g. "vessale").
func NewPrometheusProvider(namespace string, reg prometheus.Registerer) *PrometheusProvider {
	return &PrometheusProvider{
		namespace:  namespace,
		reg:        reg,
		counters:   make(map[string]*promCounter),
		updowns:    make(map[string]*promUpDownCounter),
		histograms: make(map[string]*promHistogram),
	}
}

func constLabels(attrs map[string]string) prometheus.Labels {
	if len(attrs) == 0 {
		return nil
	}
	labels := make(prometheus.Labels, len(attrs))
	for k, v := range attrs {
		labels[k] = v
	}
	return labels
}

func cacheKey(name string, attrs map[string]string) string {
	if len(attrs) == 0 {
		return name
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(attrs[k])
	}
	return b.String()
}

func (p *PrometheusProvider) Counter(name string, opts ...InstrumentOption) Counter {
	cfg := applyOptions(opts)
	key := cacheKey(name, cfg.Attributes)

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.counters[key]; ok {
		return c
	}

	vec := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   p.namespace,
		Name:        name,
		Help:        cfg.Description,
		ConstLabels: constLabels(cfg.Attributes),
	})
	if p.reg != nil {
		p.reg.MustRegister(vec)
	}
	c := &promCounter{c: vec}
	p.counters[key] = c
	return c
}

func (p *PrometheusProvider) UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter {
	cfg := applyOptions(opts)
	key := cacheKey(name, cfg.Attributes)

	p.mu.Lock()
	defer p.mu.Unlock()

	if u, ok := p.updowns[key]; ok {
		return u
	}

	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   p.namespace,
		Name:        name,
		Help:        cfg.Description,
		ConstLabels: constLabels(cfg.Attributes),
	})
	if p.reg != nil {
		p.reg.MustRegister(g)
	}
	u := &promUpDownCounter{g: g}
	p.updowns[key] = u
	return u
}

func (p *PrometheusProvider) Histogram(name string, opts ...InstrumentOption) Histogram {
	cfg := applyOptions(opts)
	key := cacheKey(name, cfg.Attributes)

	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.histograms[key]; ok {
		return h
	}

	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   p.namespace,
		Name:        name,
		Help:        cfg.Description,
		ConstLabels: constLabels(cfg.Attributes),
		Buckets:     prometheus.DefBuckets,
	})
	if p.reg != nil {
		p.reg.MustRegister(hist)
	}
	h := &promHistogram{h: hist}
	p.histograms[key] = h
	return h
}

type promCounter struct{ c prometheus.Counter }

func (c *promCounter) Add(n int64) { c.c.Add(float64(n)) }

type promUpDownCounter struct{ g prometheus.Gauge }

func (u *promUpDownCounter) Add(n int64) { u.g.Add(float64(n)) }

type promHistogram struct{ h prometheus.Histogram }

func (h *promHistogram) Record(v float64) { h.h.Observe(v) }
