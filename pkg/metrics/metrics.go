// Package metrics is a small hand-rolled registry exposed as JSON and
// Prometheus text. It tracks per-endpoint request stats plus taxonomy
// operation and per-entity error counters.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type Registry struct {
	mu          sync.RWMutex
	endpoint    map[string]*EndpointStat
	operations  map[string]int64
	entityError map[string]int64
	gauges      map[string]float64
}

type EndpointStat struct {
	Count          int64   `json:"count"`
	ErrorCount     int64   `json:"error_count"`
	TotalMillis    int64   `json:"total_millis"`
	MaxMillis      int64   `json:"max_millis"`
	AverageMillis  float64 `json:"average_millis"`
	LastStatusCode int     `json:"last_status_code"`
}

type Snapshot struct {
	GeneratedAt  string                  `json:"generated_at"`
	Endpoints    map[string]EndpointStat `json:"endpoints"`
	Operations   map[string]int64        `json:"operations"`
	EntityErrors map[string]int64        `json:"entity_errors"`
	Gauges       map[string]float64      `json:"gauges"`
}

func NewRegistry() *Registry {
	return &Registry{
		endpoint:    map[string]*EndpointStat{},
		operations:  map[string]int64{},
		entityError: map[string]int64{},
		gauges:      map[string]float64{},
	}
}

func (r *Registry) Observe(path string, status int, d time.Duration) {
	millis := d.Milliseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	stat, ok := r.endpoint[path]
	if !ok {
		stat = &EndpointStat{}
		r.endpoint[path] = stat
	}
	stat.Count++
	if status >= 400 {
		stat.ErrorCount++
	}
	stat.TotalMillis += millis
	if millis > stat.MaxMillis {
		stat.MaxMillis = millis
	}
	stat.LastStatusCode = status
	stat.AverageMillis = float64(stat.TotalMillis) / float64(stat.Count)
}

// IncOperation counts one taxonomy operation (fetch, send, tag
// mutation) by name.
func (r *Registry) IncOperation(op string) {
	if op == "" {
		return
	}
	r.mu.Lock()
	r.operations[op]++
	r.mu.Unlock()
}

// IncEntityError counts a per-entity error by code, as embedded in
// result maps.
func (r *Registry) IncEntityError(code string) {
	if code == "" {
		return
	}
	r.mu.Lock()
	r.entityError[code]++
	r.mu.Unlock()
}

func (r *Registry) SetGauge(name string, value float64) {
	if name == "" {
		return
	}
	r.mu.Lock()
	r.gauges[name] = value
	r.mu.Unlock()
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Snapshot{
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
		Endpoints:    make(map[string]EndpointStat, len(r.endpoint)),
		Operations:   make(map[string]int64, len(r.operations)),
		EntityErrors: make(map[string]int64, len(r.entityError)),
		Gauges:       make(map[string]float64, len(r.gauges)),
	}
	for k, v := range r.endpoint {
		out.Endpoints[k] = *v
	}
	for k, v := range r.operations {
		out.Operations[k] = v
	}
	for k, v := range r.entityError {
		out.EntityErrors[k] = v
	}
	for k, v := range r.gauges {
		out.Gauges[k] = v
	}
	return out
}

func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(snap)
	}
}

func (r *Registry) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		b := &strings.Builder{}
		b.WriteString("# HELP foxbox_endpoint_count total requests by endpoint\n")
		b.WriteString("# TYPE foxbox_endpoint_count counter\n")
		for _, ep := range sortedKeys(snap.Endpoints) {
			fmt.Fprintf(b, "foxbox_endpoint_count{endpoint=%q} %d\n", ep, snap.Endpoints[ep].Count)
		}
		b.WriteString("# HELP foxbox_endpoint_error_count total endpoint errors\n")
		b.WriteString("# TYPE foxbox_endpoint_error_count counter\n")
		for _, ep := range sortedKeys(snap.Endpoints) {
			fmt.Fprintf(b, "foxbox_endpoint_error_count{endpoint=%q} %d\n", ep, snap.Endpoints[ep].ErrorCount)
		}
		b.WriteString("# HELP foxbox_endpoint_avg_millis endpoint average latency in milliseconds\n")
		b.WriteString("# TYPE foxbox_endpoint_avg_millis gauge\n")
		for _, ep := range sortedKeys(snap.Endpoints) {
			fmt.Fprintf(b, "foxbox_endpoint_avg_millis{endpoint=%q} %.3f\n", ep, snap.Endpoints[ep].AverageMillis)
		}
		b.WriteString("# HELP foxbox_operation_total taxonomy operations by name\n")
		b.WriteString("# TYPE foxbox_operation_total counter\n")
		for _, op := range sortedKeys(snap.Operations) {
			fmt.Fprintf(b, "foxbox_operation_total{operation=%q} %d\n", op, snap.Operations[op])
		}
		b.WriteString("# HELP foxbox_entity_error_total per-entity errors by code\n")
		b.WriteString("# TYPE foxbox_entity_error_total counter\n")
		for _, code := range sortedKeys(snap.EntityErrors) {
			fmt.Fprintf(b, "foxbox_entity_error_total{code=%q} %d\n", code, snap.EntityErrors[code])
		}
		b.WriteString("# HELP foxbox_gauge operational gauge metrics\n")
		b.WriteString("# TYPE foxbox_gauge gauge\n")
		for _, name := range sortedKeys(snap.Gauges) {
			fmt.Fprintf(b, "foxbox_gauge{name=%q} %.3f\n", name, snap.Gauges[name])
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(b.String()))
	}
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
