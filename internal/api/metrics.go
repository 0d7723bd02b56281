package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/oakmoor/sparkedge/internal/buffer"
	"github.com/oakmoor/sparkedge/internal/connection"
)

// SystemMetrics is the complete metrics response.
type SystemMetrics struct {
	Timestamp     string             `json:"timestamp"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Runtime       RuntimeMetrics     `json:"runtime"`
	Connection    connection.Metrics `json:"connection"`
	Buffer        BufferMetrics      `json:"buffer"`
	Tags          TagMetrics         `json:"tags"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// BufferMetrics describes store-and-forward buffer occupancy.
type BufferMetrics struct {
	Count           int64  `json:"count"`
	Bytes           int64  `json:"bytes"`
	CeilingBytes    int64  `json:"ceiling_bytes"`
	OldestTimestamp string `json:"oldest_timestamp,omitempty"`
}

// TagMetrics contains tag registry statistics.
type TagMetrics struct {
	Configured int `json:"configured"`
	Tracked    int `json:"tracked"`
}

const bytesPerMB = 1024 * 1024

// handleMetrics returns a full snapshot of runtime, connection, buffer,
// and tag statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	bufMetrics, err := s.store.Metrics(r.Context())
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
		Connection: s.conn.Metrics(),
		Buffer:     bufferMetricsResponse(bufMetrics),
		Tags: TagMetrics{
			Configured: s.registry.Count(),
			Tracked:    s.filter.TrackedTags(),
		},
	}

	writeJSON(w, http.StatusOK, metrics)
}

// bufferMetricsResponse converts buffer metrics to the JSON response shape.
func bufferMetricsResponse(m buffer.Metrics) BufferMetrics {
	out := BufferMetrics{
		Count:        m.Count,
		Bytes:        m.Bytes,
		CeilingBytes: m.CeilingBytes,
	}
	if !m.OldestTimestamp.IsZero() {
		out.OldestTimestamp = m.OldestTimestamp.UTC().Format(time.RFC3339Nano)
	}
	return out
}
