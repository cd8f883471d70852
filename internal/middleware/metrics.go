package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      atomic.Uint64
	RequestsInProgress atomic.Int64
	RequestsSuccess    atomic.Uint64
	RequestsFailed     atomic.Uint64
	DocumentsProcessed atomic.Uint64
	DocumentsFailed    atomic.Uint64
	StartTime          time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

// DocumentProcessed counts a successful pipeline run.
func (m *Metrics) DocumentProcessed() { m.DocumentsProcessed.Add(1) }

// DocumentFailed counts a failed pipeline run.
func (m *Metrics) DocumentFailed() { m.DocumentsFailed.Add(1) }

// Snapshot returns current metrics
func (m *Metrics) Snapshot() map[string]any {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]any{
		"requests_total":       m.RequestsTotal.Load(),
		"requests_in_progress": m.RequestsInProgress.Load(),
		"requests_success":     m.RequestsSuccess.Load(),
		"requests_failed":      m.RequestsFailed.Load(),
		"documents_processed":  m.DocumentsProcessed.Load(),
		"documents_failed":     m.DocumentsFailed.Load(),
		"uptime_seconds":       time.Since(m.StartTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes":       mem.Alloc,
			"total_alloc_bytes": mem.TotalAlloc,
			"sys_bytes":         mem.Sys,
			"num_gc":            mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsTotal.Add(1)
		m.RequestsInProgress.Add(1)
		defer m.RequestsInProgress.Add(-1)

		wrapped := wrapWriter(w)
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			m.RequestsSuccess.Add(1)
		} else {
			m.RequestsFailed.Add(1)
		}
	})
}

// Handler returns metrics as JSON
func (m *Metrics) Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}
