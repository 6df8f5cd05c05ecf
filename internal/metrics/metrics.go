package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Границы бакетов гистограммы задержки отправки, мс.
var latencyBucketsMs = []int64{50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Reporter — внутрипроцессный сток метрик ядра. Отдаётся как JSON на админ
// HTTP (/stats): счётчики pipeline/диспетчеров, гистограмма латентности
// отправки и глубина очереди по каналам (периодически снимается с Postgres).
type Reporter struct {
	jobsEnqueued         atomic.Int64
	jobsSucceeded        atomic.Int64
	jobsRetried          atomic.Int64
	jobsDead             atomic.Int64
	duplicatesSuppressed atomic.Int64
	inputErrors          atomic.Int64

	latencyBuckets []atomic.Int64 // len(latencyBucketsMs)+1, последний = overflow
	latencyCount   atomic.Int64
	latencySumMs   atomic.Int64

	depthMu    sync.Mutex
	queueDepth map[string]int64
}

func NewReporter() *Reporter {
	return &Reporter{
		latencyBuckets: make([]atomic.Int64, len(latencyBucketsMs)+1),
		queueDepth:     map[string]int64{},
	}
}

func (r *Reporter) JobEnqueued()         { r.jobsEnqueued.Add(1) }
func (r *Reporter) JobSucceeded()        { r.jobsSucceeded.Add(1) }
func (r *Reporter) JobRetried()          { r.jobsRetried.Add(1) }
func (r *Reporter) JobDead()             { r.jobsDead.Add(1) }
func (r *Reporter) DuplicateSuppressed() { r.duplicatesSuppressed.Add(1) }
func (r *Reporter) InputError()          { r.inputErrors.Add(1) }

func (r *Reporter) ObserveSendLatency(d time.Duration) {
	ms := d.Milliseconds()
	idx := len(latencyBucketsMs)
	for i, b := range latencyBucketsMs {
		if ms <= b {
			idx = i
			break
		}
	}
	r.latencyBuckets[idx].Add(1)
	r.latencyCount.Add(1)
	r.latencySumMs.Add(ms)
}

func (r *Reporter) SetQueueDepth(depth map[string]int64) {
	cp := make(map[string]int64, len(depth))
	for k, v := range depth {
		cp[k] = v
	}
	r.depthMu.Lock()
	r.queueDepth = cp
	r.depthMu.Unlock()
}

type LatencyBucket struct {
	LeMs  int64 `json:"le_ms"` // 0 = +Inf
	Count int64 `json:"count"`
}

type Snapshot struct {
	JobsEnqueued         int64            `json:"jobs_enqueued"`
	JobsSucceeded        int64            `json:"jobs_succeeded"`
	JobsRetried          int64            `json:"jobs_retried"`
	JobsDead             int64            `json:"jobs_dead"`
	DuplicatesSuppressed int64            `json:"duplicates_suppressed"`
	InputErrors          int64            `json:"input_errors"`
	QueueDepthByChannel  map[string]int64 `json:"queue_depth_by_channel"`
	SendLatency          []LatencyBucket  `json:"send_latency_ms"`
	SendLatencyCount     int64            `json:"send_latency_count"`
	SendLatencySumMs     int64            `json:"send_latency_sum_ms"`
}

func (r *Reporter) Snapshot() Snapshot {
	s := Snapshot{
		JobsEnqueued:         r.jobsEnqueued.Load(),
		JobsSucceeded:        r.jobsSucceeded.Load(),
		JobsRetried:          r.jobsRetried.Load(),
		JobsDead:             r.jobsDead.Load(),
		DuplicatesSuppressed: r.duplicatesSuppressed.Load(),
		InputErrors:          r.inputErrors.Load(),
		SendLatencyCount:     r.latencyCount.Load(),
		SendLatencySumMs:     r.latencySumMs.Load(),
	}

	for i := range r.latencyBuckets {
		b := LatencyBucket{Count: r.latencyBuckets[i].Load()}
		if i < len(latencyBucketsMs) {
			b.LeMs = latencyBucketsMs[i]
		}
		s.SendLatency = append(s.SendLatency, b)
	}

	r.depthMu.Lock()
	s.QueueDepthByChannel = make(map[string]int64, len(r.queueDepth))
	for k, v := range r.queueDepth {
		s.QueueDepthByChannel[k] = v
	}
	r.depthMu.Unlock()

	return s
}
