// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Items     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	Items       int64   `json:"items,omitempty"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
}

// Snapshot represents the process statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	Embedding     *OperationSnapshot `json:"embedding,omitempty"`
	StoreWrite    *OperationSnapshot `json:"store_write,omitempty"`
	StoreScan     *OperationSnapshot `json:"store_scan,omitempty"`
	StoreSearch   *OperationSnapshot `json:"store_search,omitempty"`
	BatchesOK     int64              `json:"batches_ok"`
	BatchesFailed int64              `json:"batches_failed"`
}

// Operation names for the collector.
const (
	OpEmbedding   = "embedding"
	OpStoreWrite  = "store_write"
	OpStoreScan   = "store_scan"
	OpStoreSearch = "store_search"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe and a nil Collector discards everything.
type Collector struct {
	mu            sync.RWMutex
	startTime     time.Time
	ops           map[string]*OperationMetrics
	batchesOK     int64
	batchesFailed int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.RecordItems(op, duration, 0)
}

// RecordItems records timing for an operation that handled n items
// (texts embedded, rows written or rows returned).
func (c *Collector) RecordItems(op string, duration time.Duration, n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.Items += int64(n)
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordBatch counts one vectorization batch outcome.
func (c *Collector) RecordBatch(ok bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if ok {
		c.batchesOK++
	} else {
		c.batchesFailed++
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	return &OperationSnapshot{
		Count:       m.Count,
		Items:       m.Items,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Embedding:     snapshotOp(c.ops[OpEmbedding]),
		StoreWrite:    snapshotOp(c.ops[OpStoreWrite]),
		StoreScan:     snapshotOp(c.ops[OpStoreScan]),
		StoreSearch:   snapshotOp(c.ops[OpStoreSearch]),
		BatchesOK:     c.batchesOK,
		BatchesFailed: c.batchesFailed,
	}
}
