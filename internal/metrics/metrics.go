package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/faciam-dev/gcdisk/internal/logger"
)

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gcdisk_api_requests_total",
			Help: "Number of API requests",
		},
		[]string{"method", "path", "status"},
	)
	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gcdisk_api_latency_seconds",
			Help:    "API latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	Disks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gcdisk_disks_total",
			Help: "Number of disks by type",
		},
		[]string{"type"},
	)
	DiskUsedBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gcdisk_disk_used_bytes",
			Help: "Used bytes summed by disk type",
		},
		[]string{"type"},
	)
	UsageRefreshErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gcdisk_usage_refresh_errors_total",
			Help: "Failed usage measurements by driver",
		},
		[]string{"driver"},
	)
	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gcdisk_schema_cache_hits_total",
			Help: "Schema cache hits",
		},
	)
	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gcdisk_schema_cache_misses_total",
			Help: "Schema cache misses",
		},
	)
	AuditEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gcdisk_audit_events_total",
			Help: "Audit log events",
		},
		[]string{"action"},
	)
	AuditErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gcdisk_audit_errors_total",
			Help: "Audit write errors",
		},
		[]string{"action"},
	)
	EventsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gcdisk_events_failed_total",
			Help: "Event deliveries that failed permanently or exhausted their retries",
		},
		[]string{"name", "sink"},
	)
)

func init() {
	prometheus.MustRegister(
		APIRequests,
		APILatency,
		Disks,
		DiskUsedBytes,
		UsageRefreshErrors,
		CacheHits,
		CacheMisses,
		AuditEvents,
		AuditErrors,
		EventsFailed,
	)
}

// TypeStat is the per disk type aggregate exported as gauges.
type TypeStat struct {
	Type  string `db:"type"`
	Count int64  `db:"disks"`
	Used  int64  `db:"used"`
}

// DiskCounter is implemented by repositories able to aggregate disks per type.
type DiskCounter interface {
	StatsByType(ctx context.Context) ([]TypeStat, error)
}

// UpdateDiskGauges refreshes the disk gauges once.
func UpdateDiskGauges(ctx context.Context, repo DiskCounter) error {
	stats, err := repo.StatsByType(ctx)
	if err != nil {
		return err
	}
	Disks.Reset()
	DiskUsedBytes.Reset()
	for _, s := range stats {
		Disks.WithLabelValues(s.Type).Set(float64(s.Count))
		DiskUsedBytes.WithLabelValues(s.Type).Set(float64(s.Used))
	}
	return nil
}

// StartDiskGauge starts a background job that updates the disk gauges every
// interval until ctx is done.
func StartDiskGauge(ctx context.Context, repo DiskCounter, interval time.Duration) {
	if repo == nil {
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := UpdateDiskGauges(ctx, repo); err != nil {
					logger.L.Error("update disk gauges", "err", err)
				}
			}
		}
	}()
}
