package worker

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"
)

const (
	latencySampleSize    = 256
	throughputWindowSize = time.Minute
)

// ErrorCategory buckets pipeline failures for stats reporting.
type ErrorCategory string

const (
	ErrorCategoryNone     ErrorCategory = "none"
	ErrorCategoryEnvelope ErrorCategory = "envelope"
	ErrorCategoryRouting  ErrorCategory = "routing"
	ErrorCategoryContent  ErrorCategory = "content"
	ErrorCategoryHandler  ErrorCategory = "handler"
	ErrorCategoryOther    ErrorCategory = "other"
)

// ErrorClassifier maps a pipeline error to a category.
type ErrorClassifier func(error) ErrorCategory

func defaultErrorClassifier(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}
	var pe *pipelineError
	if errors.As(err, &pe) {
		switch pe.stage {
		case stageEnvelope:
			return ErrorCategoryEnvelope
		case stageRouting:
			return ErrorCategoryRouting
		case stageContent:
			return ErrorCategoryContent
		case stageHandler:
			return ErrorCategoryHandler
		}
	}
	return ErrorCategoryOther
}

// TypeStats aggregates processing statistics for one message type.
type TypeStats struct {
	mu sync.Mutex

	MessagesProcessed   uint64    `json:"messages_processed"`
	MessagesFailed      uint64    `json:"messages_failed"`
	TotalProcessingTime int64     `json:"total_processing_time_ns"`
	LastProcessedAt     time.Time `json:"last_processed_at"`

	Latency    LatencyMetrics    `json:"latency"`
	Throughput ThroughputMetrics `json:"throughput"`
	Errors     ErrorBreakdown    `json:"errors"`

	latencyWindow    *latencyWindow
	throughputWindow *throughputWindow
}

// LatencyMetrics reports rolling latency percentiles.
type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

// ThroughputMetrics reports rolling message throughput.
type ThroughputMetrics struct {
	CurrentRPS       float64 `json:"current_rps"`
	WindowSeconds    float64 `json:"window_seconds"`
	MessagesInWindow uint64  `json:"messages_in_window"`
	TotalMessages    uint64  `json:"total_messages"`
}

// ErrorBreakdown counts failures per category.
type ErrorBreakdown struct {
	Envelope  uint64 `json:"envelope"`
	Routing   uint64 `json:"routing"`
	Content   uint64 `json:"content"`
	Handler   uint64 `json:"handler"`
	Other     uint64 `json:"other"`
	LastError string `json:"last_error,omitempty"`
}

func (e *ErrorBreakdown) record(category ErrorCategory, err error) {
	switch category {
	case ErrorCategoryNone:
		if err == nil {
			return
		}
		e.Other++
	case ErrorCategoryEnvelope:
		e.Envelope++
	case ErrorCategoryRouting:
		e.Routing++
	case ErrorCategoryContent:
		e.Content++
	case ErrorCategoryHandler:
		e.Handler++
	default:
		e.Other++
	}
	if err != nil {
		e.LastError = err.Error()
	}
}

func newTypeStats() *TypeStats {
	return &TypeStats{
		latencyWindow:    newLatencyWindow(latencySampleSize),
		throughputWindow: newThroughputWindow(throughputWindowSize),
	}
}

func (s *TypeStats) onMessageFinish(duration time.Duration, err error, classifier ErrorClassifier) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.MessagesProcessed++
	if err != nil {
		s.MessagesFailed++
	}
	s.TotalProcessingTime += int64(duration)
	s.LastProcessedAt = time.Now().UTC()

	if s.latencyWindow != nil {
		s.latencyWindow.Add(duration)
		snapshot := s.latencyWindow.Snapshot()
		snapshot.LastNs = int64(duration)
		if s.MessagesProcessed > 0 {
			snapshot.AverageNs = s.TotalProcessingTime / int64(s.MessagesProcessed)
		}
		s.Latency = snapshot
	}

	if s.throughputWindow != nil {
		snapshot := s.throughputWindow.AddAndSnapshot(time.Now())
		s.Throughput.CurrentRPS = snapshot.CurrentRPS
		s.Throughput.WindowSeconds = snapshot.WindowSeconds
		s.Throughput.MessagesInWindow = uint64(snapshot.Count)
	}
	s.Throughput.TotalMessages = s.MessagesProcessed

	if classifier == nil {
		classifier = defaultErrorClassifier
	}
	s.Errors.record(classifier(err), err)
}

// Snapshot returns a copy of the stats safe to read without holding locks.
func (s *TypeStats) Snapshot() TypeStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return TypeStats{
		MessagesProcessed:   s.MessagesProcessed,
		MessagesFailed:      s.MessagesFailed,
		TotalProcessingTime: s.TotalProcessingTime,
		LastProcessedAt:     s.LastProcessedAt,
		Latency:             s.Latency,
		Throughput:          s.Throughput,
		Errors:              s.Errors,
	}
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	if lw == nil || len(lw.samples) == 0 {
		return
	}
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	var metrics LatencyMetrics
	if lw == nil {
		return metrics
	}
	if lw.filled == 0 {
		metrics.LastNs = lw.last
		return metrics
	}
	samples := make([]int64, lw.filled)
	for i := 0; i < lw.filled; i++ {
		idx := lw.next - lw.filled + i
		if idx < 0 {
			idx += len(lw.samples)
		}
		samples[i] = lw.samples[idx]
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	metrics.SampleSize = lw.filled
	metrics.P50Ns = percentile(samples, 0.50)
	metrics.P95Ns = percentile(samples, 0.95)
	metrics.P99Ns = percentile(samples, 0.99)
	var sum int64
	for _, v := range samples {
		sum += v
	}
	metrics.AverageNs = sum / int64(len(samples))
	metrics.LastNs = lw.last
	return metrics
}

func percentile(samples []int64, quantile float64) int64 {
	if len(samples) == 0 {
		return 0
	}
	if quantile <= 0 {
		return samples[0]
	}
	if quantile >= 1 {
		return samples[len(samples)-1]
	}
	pos := quantile * float64(len(samples)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return samples[lower]
	}
	frac := pos - float64(lower)
	return samples[lower] + int64(float64(samples[upper]-samples[lower])*frac)
}

type throughputWindow struct {
	horizon time.Duration
	samples []time.Time
}

type throughputSnapshot struct {
	Count         int
	WindowSeconds float64
	CurrentRPS    float64
}

func newThroughputWindow(horizon time.Duration) *throughputWindow {
	return &throughputWindow{
		horizon: horizon,
		samples: make([]time.Time, 0, 64),
	}
}

func (tw *throughputWindow) AddAndSnapshot(now time.Time) throughputSnapshot {
	if tw == nil {
		return throughputSnapshot{}
	}
	tw.samples = append(tw.samples, now)
	tw.cleanup(now)
	return tw.snapshot(now)
}

func (tw *throughputWindow) cleanup(now time.Time) {
	if tw == nil || len(tw.samples) == 0 {
		return
	}
	cutoff := now.Add(-tw.horizon)
	idx := 0
	for idx < len(tw.samples) && tw.samples[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		copy(tw.samples, tw.samples[idx:])
		tw.samples = tw.samples[:len(tw.samples)-idx]
	}
}

func (tw *throughputWindow) snapshot(now time.Time) throughputSnapshot {
	if tw == nil || len(tw.samples) == 0 {
		return throughputSnapshot{}
	}
	span := now.Sub(tw.samples[0])
	if span <= 0 {
		span = time.Nanosecond
	}
	count := len(tw.samples)
	return throughputSnapshot{
		Count:         count,
		WindowSeconds: span.Seconds(),
		CurrentRPS:    float64(count) / span.Seconds(),
	}
}
