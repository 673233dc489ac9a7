package monitoring

import (
	"math"
	"runtime"
	"sort"
	"sync"
	"time"
)

// latencyWindow bounds the samples kept per route.
const latencyWindow = 1000

// Collector keeps in-process request and prediction statistics for /metrics.
// A nil *Collector accepts observations and reports nothing.
type Collector struct {
	mu          sync.RWMutex
	latencies   map[string][]float64
	requests    map[string]int64
	errors      map[string]int64
	predictions map[string]int64
	gauges      map[string]func() float64

	startTime time.Time
	now       func() time.Time
}

// RouteStats summarizes one route. Latencies are in milliseconds.
type RouteStats struct {
	Route  string  `json:"route"`
	Count  int64   `json:"count"`
	Errors int64   `json:"errors"`
	AvgMs  float64 `json:"avg_ms"`
	MinMs  float64 `json:"min_ms"`
	MaxMs  float64 `json:"max_ms"`
	P95Ms  float64 `json:"p95_ms"`
}

type MemoryStats struct {
	HeapAlloc uint64 `json:"heap_alloc"`
	HeapSys   uint64 `json:"heap_sys"`
	GCCount   uint32 `json:"gc_count"`
}

// Stats is the /metrics response.
type Stats struct {
	Uptime      string             `json:"uptime"`
	Goroutines  int                `json:"goroutines"`
	Memory      MemoryStats        `json:"memory"`
	Routes      []RouteStats       `json:"routes"`
	Predictions map[string]int64   `json:"predictions"`
	Gauges      map[string]float64 `json:"gauges"`
}

// NewCollector starts the uptime clock.
func NewCollector() *Collector {
	return &Collector{
		latencies:   make(map[string][]float64),
		requests:    make(map[string]int64),
		errors:      make(map[string]int64),
		predictions: make(map[string]int64),
		gauges:      make(map[string]func() float64),
		startTime:   time.Now(),
		now:         time.Now,
	}
}

// ObserveRequest records one served request. Statuses of 500 and above count as errors.
func (c *Collector) ObserveRequest(route string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests[route]++
	if status >= 500 {
		c.errors[route]++
	}
	samples := append(c.latencies[route], float64(duration)/float64(time.Millisecond))
	if len(samples) > latencyWindow {
		samples = samples[len(samples)-latencyWindow:]
	}
	c.latencies[route] = samples
}

// ObservePrediction counts one served label.
func (c *Collector) ObservePrediction(label string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.predictions[label]++
}

// RegisterGauge adds a value sampled on every Snapshot.
func (c *Collector) RegisterGauge(name string, fn func() float64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[name] = fn
}

// Snapshot reports runtime stats and the collected metrics. Routes are sorted by name.
func (c *Collector) Snapshot() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats := Stats{
		Goroutines: runtime.NumGoroutine(),
		Memory: MemoryStats{
			HeapAlloc: m.HeapAlloc,
			HeapSys:   m.HeapSys,
			GCCount:   m.NumGC,
		},
		Routes:      []RouteStats{},
		Predictions: map[string]int64{},
		Gauges:      map[string]float64{},
	}
	if c == nil {
		return stats
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	stats.Uptime = c.now().Sub(c.startTime).Round(time.Second).String()
	for route, count := range c.requests {
		stats.Routes = append(stats.Routes, summarize(route, count, c.errors[route], c.latencies[route]))
	}
	sort.Slice(stats.Routes, func(i, j int) bool { return stats.Routes[i].Route < stats.Routes[j].Route })
	for label, n := range c.predictions {
		stats.Predictions[label] = n
	}
	for name, fn := range c.gauges {
		stats.Gauges[name] = fn()
	}
	return stats
}

func summarize(route string, count, errors int64, samples []float64) RouteStats {
	out := RouteStats{Route: route, Count: count, Errors: errors}
	if len(samples) == 0 {
		return out
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	out.AvgMs = sum / float64(len(sorted))
	out.MinMs = sorted[0]
	out.MaxMs = sorted[len(sorted)-1]
	out.P95Ms = percentile(sorted, 0.95)
	return out
}

// percentile uses the nearest-rank method on sorted samples.
func percentile(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}
