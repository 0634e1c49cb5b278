package events

import (
	"context"
	"sync/atomic"
	"time"
)

// MetricsCollector defines the interface for collecting publish metrics
type MetricsCollector interface {
	RecordPublish(success bool, duration time.Duration)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordPublish(success bool, duration time.Duration) {}

// PublishStats is a point-in-time copy of CountingMetrics.
type PublishStats struct {
	Published     uint64        `json:"published"`
	Failed        uint64        `json:"failed"`
	TotalDuration time.Duration `json:"total_duration_ns"`
	LastPublish   time.Time     `json:"last_publish,omitzero"`
}

// CountingMetrics keeps in-process counters, served on /stats.
type CountingMetrics struct {
	published     atomic.Uint64
	failed        atomic.Uint64
	totalDuration atomic.Int64
	lastPublish   atomic.Int64
}

func NewCountingMetrics() *CountingMetrics {
	return &CountingMetrics{}
}

func (m *CountingMetrics) RecordPublish(success bool, duration time.Duration) {
	if success {
		m.published.Add(1)
		m.lastPublish.Store(time.Now().UnixNano())
	} else {
		m.failed.Add(1)
	}
	m.totalDuration.Add(int64(duration))
}

func (m *CountingMetrics) Snapshot() PublishStats {
	stats := PublishStats{
		Published:     m.published.Load(),
		Failed:        m.failed.Load(),
		TotalDuration: time.Duration(m.totalDuration.Load()),
	}
	if ns := m.lastPublish.Load(); ns != 0 {
		stats.LastPublish = time.Unix(0, ns).UTC()
	}
	return stats
}

// MetricPublisher wraps a Publisher with metrics collection
type MetricPublisher struct {
	publisher Publisher
	metrics   MetricsCollector
}

func NewMetricPublisher(publisher Publisher, metrics MetricsCollector) *MetricPublisher {
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	return &MetricPublisher{
		publisher: publisher,
		metrics:   metrics,
	}
}

func (p *MetricPublisher) Publish(ctx context.Context, event GroupChanged) error {
	start := time.Now()

	err := p.publisher.Publish(ctx, event)

	p.metrics.RecordPublish(err == nil, time.Since(start))
	return err
}
