package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "rewards"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"

	Follower   = "follower"
	Window     = "window"
	Source     = "source"
	Checkpoint = "checkpoint"
	Publisher  = "publisher"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple follower instances.
type Labels struct {
	ChainID       string // Chain the follower tracks (e.g., "C", "43114")
	Key           string // Checkpoint key
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.ChainID != "" {
		labels["chain_id"] = l.ChainID
	}
	if l.Key != "" {
		labels["checkpoint_key"] = l.Key
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Follower progress
	cursor          prometheus.Gauge
	recordsApplied  prometheus.Counter
	recordsUndone   prometheus.Counter
	applyDuration   prometheus.Histogram
	reorgs          prometheus.Counter
	reorgDepth      prometheus.Histogram
	recordsSkipped  prometheus.Counter
	checkpointSaves *prometheus.CounterVec
	saveDuration    prometheus.Histogram
	snapshotSaves   *prometheus.CounterVec

	// Prefetch window state
	lowest   prometheus.Gauge
	highest  prometheus.Gauge
	buffered prometheus.Gauge

	// Source metrics
	sourceRetries *prometheus.CounterVec
	rpcCalls      *prometheus.CounterVec
	rpcDuration   *prometheus.HistogramVec
	rpcInFlight   prometheus.Gauge

	// Event publishing
	eventsPublished *prometheus.CounterVec
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
// For metrics with constant labels (e.g., chain_id), use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Follower,
			Name:      "cursor_height",
			Help:      "Height of the last committed record",
		}),
		recordsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Follower,
			Name:      "records_applied_total",
			Help:      "Total records applied and committed",
		}),
		recordsUndone: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Follower,
			Name:      "records_undone_total",
			Help:      "Total records undone during reorgs",
		}),
		applyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Follower,
			Name:      "apply_duration_seconds",
			Help:      "Time to apply and commit a single record",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		reorgs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Follower,
			Name:      "reorgs_total",
			Help:      "Total reorgs detected",
		}),
		reorgDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Follower,
			Name:      "reorg_depth",
			Help:      "Number of records rolled back per reorg",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 89},
		}),
		recordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Follower,
			Name:      "malformed_records_total",
			Help:      "Total fetches skipped because the record was malformed or stale",
		}),
		checkpointSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Checkpoint,
			Name:      "writes_total",
			Help:      "Total checkpoint saves by status",
		}, []string{"status"}),
		saveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Checkpoint,
			Name:      "write_duration_seconds",
			Help:      "Time to save a checkpoint including retries",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		snapshotSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Checkpoint,
			Name:      "snapshots_total",
			Help:      "Total periodic snapshot copies by status",
		}, []string{"status"}),
		lowest: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "lowest",
			Help:      "Next height the follower will consume",
		}),
		highest: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "highest",
			Help:      "Highest source tip seen by the prefetch window",
		}),
		buffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "buffered",
			Help:      "Number of prefetched records waiting to be consumed",
		}),
		sourceRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Source,
			Name:      "retries_total",
			Help:      "Total retried source calls by operation",
		}, []string{"op"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Total RPC calls by method and status",
		}, []string{"method", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "duration_seconds",
			Help:      "RPC call duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		rpcInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "in_flight",
			Help:      "Number of RPC calls currently in progress",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Publisher,
			Name:      "events_total",
			Help:      "Total reward events published by status",
		}, []string{"status"}),
	}

	err := errors.Join(
		reg.Register(m.cursor),
		reg.Register(m.recordsApplied),
		reg.Register(m.recordsUndone),
		reg.Register(m.applyDuration),
		reg.Register(m.reorgs),
		reg.Register(m.reorgDepth),
		reg.Register(m.recordsSkipped),
		reg.Register(m.checkpointSaves),
		reg.Register(m.saveDuration),
		reg.Register(m.snapshotSaves),
		reg.Register(m.lowest),
		reg.Register(m.highest),
		reg.Register(m.buffered),
		reg.Register(m.sourceRetries),
		reg.Register(m.rpcCalls),
		reg.Register(m.rpcDuration),
		reg.Register(m.rpcInFlight),
		reg.Register(m.eventsPublished),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// SetCursor records the committed cursor height.
func (m *Metrics) SetCursor(height uint64) {
	if m == nil {
		return
	}
	m.cursor.Set(float64(height))
}

// RecordApplied records one applied record and how long it took to commit.
func (m *Metrics) RecordApplied(d time.Duration) {
	if m == nil {
		return
	}
	m.recordsApplied.Inc()
	m.applyDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordUndone() {
	if m == nil {
		return
	}
	m.recordsUndone.Inc()
}

// RecordReorg records a detected reorg and how many records it rolls back.
func (m *Metrics) RecordReorg(depth int) {
	if m == nil {
		return
	}
	m.reorgs.Inc()
	m.reorgDepth.Observe(float64(depth))
}

func (m *Metrics) RecordMalformed() {
	if m == nil {
		return
	}
	m.recordsSkipped.Inc()
}

// RecordCheckpointWrite records a checkpoint save outcome.
// Pass nil error for successful saves, non-nil for failures.
func (m *Metrics) RecordCheckpointWrite(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.checkpointSaves.WithLabelValues(status(err)).Inc()
	m.saveDuration.Observe(d.Seconds())
}

// RecordSnapshot records a periodic snapshot copy outcome.
func (m *Metrics) RecordSnapshot(err error) {
	if m == nil {
		return
	}
	m.snapshotSaves.WithLabelValues(status(err)).Inc()
}

// UpdateWindow updates prefetch window gauges.
func (m *Metrics) UpdateWindow(lowest, highest uint64, buffered int) {
	if m == nil {
		return
	}
	m.lowest.Set(float64(lowest))
	m.highest.Set(float64(highest))
	m.buffered.Set(float64(buffered))
}

// IncSourceRetry increments the retry counter for a source operation.
func (m *Metrics) IncSourceRetry(op string) {
	if m == nil {
		return
	}
	m.sourceRetries.WithLabelValues(op).Inc()
}

// IncRPCInFlight increments the in-flight RPC gauge.
func (m *Metrics) IncRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Inc()
}

// DecRPCInFlight decrements the in-flight RPC gauge.
func (m *Metrics) DecRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Dec()
}

// RecordRPCCall records an RPC call outcome.
func (m *Metrics) RecordRPCCall(method string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	m.rpcCalls.WithLabelValues(method, status(err)).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordPublish records a reward event publish outcome.
func (m *Metrics) RecordPublish(err error) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(status(err)).Inc()
}
