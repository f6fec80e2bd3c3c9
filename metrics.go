package authflow

import (
	"sync/atomic"
	"time"
)

// MetricID names one engine counter.
type MetricID uint16

const (
	MetricRegisterAccepted MetricID = iota
	MetricRegisterRejected
	MetricEmailVerifySuccess
	MetricEmailVerifyFailure
	MetricCredentialSuccess
	MetricCredentialFailure
	MetricSecondFactorRequired
	MetricSecondFactorSuccess
	MetricSecondFactorFailure
	MetricTOTPReplayRejected
	MetricBackupCodeUsed
	MetricBackupCodeFailed
	MetricBackupCodeRegenerated
	MetricLoginCompleted
	MetricLoginBridgeRejected
	MetricResetRequested
	MetricResetCompleted
	MetricResetFailure
	MetricEnrollmentStarted
	MetricEnrollmentVerified
	MetricEnrollmentDisabled
	MetricRateLimitHit
	MetricSessionCreated
	MetricSessionRevoked
	MetricSessionRejected
	MetricMailFailure
	MetricCredentialLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters. A nil or disabled Metrics
// records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter. Histograms holds
// bucket counts for latency metrics when latency recording is enabled.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the latency histogram of id. Only
// MetricCredentialLatency carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricCredentialLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricCredentialLatency].buckets[i])
		}
		s.Histograms[MetricCredentialLatency] = buckets
	}
	return s
}

// Bucket upper bounds are 5, 10, 25, 50, 100, 250, 500 ms and +Inf. Credential
// checks are dominated by the password hash, so the upper buckets matter.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
