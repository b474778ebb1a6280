package exprvec

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    runCounter   prometheus.Counter
//	    runHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordRun(duration time.Duration, err error) {
//	    p.runCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordIngest is called after each ingest operation.
	// duration is the total time taken, err is nil if successful.
	RecordIngest(duration time.Duration, err error)

	// RecordRun is called after each pipeline run.
	RecordRun(duration time.Duration, err error)

	// RecordRunStage is called on every pipeline stage transition,
	// including the FAILED transition.
	RecordRunStage(stage Stage)

	// RecordTrain is called after each training run.
	RecordTrain(duration time.Duration, err error)

	// RecordTrainEpoch is called after each completed training epoch.
	RecordTrainEpoch(valLoss float64)

	// RecordVisualization is called after each visualization request.
	RecordVisualization(duration time.Duration, err error)

	// RecordPersistedBytes is called when artifacts are written, with the
	// payload size before compression.
	RecordPersistedBytes(n int64)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordIngest(time.Duration, error)        {}
func (NoopMetricsCollector) RecordRun(time.Duration, error)           {}
func (NoopMetricsCollector) RecordRunStage(Stage)                     {}
func (NoopMetricsCollector) RecordTrain(time.Duration, error)         {}
func (NoopMetricsCollector) RecordTrainEpoch(float64)                 {}
func (NoopMetricsCollector) RecordVisualization(time.Duration, error) {}
func (NoopMetricsCollector) RecordPersistedBytes(int64)               {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	IngestCount         atomic.Int64
	IngestErrors        atomic.Int64
	IngestTotalNanos    atomic.Int64
	RunCount            atomic.Int64
	RunErrors           atomic.Int64
	RunTotalNanos       atomic.Int64
	TrainCount          atomic.Int64
	TrainErrors         atomic.Int64
	TrainEpochs         atomic.Int64
	VisualizationCount  atomic.Int64
	VisualizationErrors atomic.Int64
	PersistedBytes      atomic.Int64

	stageMu     sync.Mutex
	stageCounts map[Stage]int64
}

// RecordIngest implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIngest(duration time.Duration, err error) {
	b.IngestCount.Add(1)
	b.IngestTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.IngestErrors.Add(1)
	}
}

// RecordRun implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRun(duration time.Duration, err error) {
	b.RunCount.Add(1)
	b.RunTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RunErrors.Add(1)
	}
}

// RecordRunStage implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRunStage(stage Stage) {
	b.stageMu.Lock()
	defer b.stageMu.Unlock()

	if b.stageCounts == nil {
		b.stageCounts = make(map[Stage]int64)
	}
	b.stageCounts[stage]++
}

// RecordTrain implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTrain(duration time.Duration, err error) {
	b.TrainCount.Add(1)
	if err != nil {
		b.TrainErrors.Add(1)
	}
}

// RecordTrainEpoch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTrainEpoch(valLoss float64) {
	b.TrainEpochs.Add(1)
}

// RecordVisualization implements MetricsCollector.
func (b *BasicMetricsCollector) RecordVisualization(duration time.Duration, err error) {
	b.VisualizationCount.Add(1)
	if err != nil {
		b.VisualizationErrors.Add(1)
	}
}

// RecordPersistedBytes implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPersistedBytes(n int64) {
	b.PersistedBytes.Add(n)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	b.stageMu.Lock()
	stages := make(map[Stage]int64, len(b.stageCounts))
	for s, n := range b.stageCounts {
		stages[s] = n
	}
	b.stageMu.Unlock()

	return BasicMetricsStats{
		IngestCount:         b.IngestCount.Load(),
		IngestErrors:        b.IngestErrors.Load(),
		IngestAvgNanos:      avgNanos(&b.IngestTotalNanos, &b.IngestCount),
		RunCount:            b.RunCount.Load(),
		RunErrors:           b.RunErrors.Load(),
		RunAvgNanos:         avgNanos(&b.RunTotalNanos, &b.RunCount),
		StageCounts:         stages,
		TrainCount:          b.TrainCount.Load(),
		TrainErrors:         b.TrainErrors.Load(),
		TrainEpochs:         b.TrainEpochs.Load(),
		VisualizationCount:  b.VisualizationCount.Load(),
		VisualizationErrors: b.VisualizationErrors.Load(),
		PersistedBytes:      b.PersistedBytes.Load(),
	}
}

func avgNanos(total, count *atomic.Int64) int64 {
	n := count.Load()
	if n == 0 {
		return 0
	}
	return total.Load() / n
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	IngestCount         int64
	IngestErrors        int64
	IngestAvgNanos      int64
	RunCount            int64
	RunErrors           int64
	RunAvgNanos         int64
	StageCounts         map[Stage]int64
	TrainCount          int64
	TrainErrors         int64
	TrainEpochs         int64
	VisualizationCount  int64
	VisualizationErrors int64
	PersistedBytes      int64
}
