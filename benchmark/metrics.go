// Package benchmark - Functionality for running benchmarks.
package benchmark

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/nvr-ai/tumorclassifier/models"
)

// PerformanceMetrics captures detailed performance data
type PerformanceMetrics struct {
	Scenario           Scenario       `json:"scenario"`
	Timestamp          time.Time      `json:"timestamp"`
	TotalDuration      time.Duration  `json:"total_duration"`
	PreprocessDuration time.Duration  `json:"preprocess_duration"`
	ClassifyDuration   time.Duration  `json:"classify_duration"`
	ImagesPerSecond    float64        `json:"images_per_second"`
	Models             []ModelMetrics `json:"models"`
	MemoryStats        MemoryMetrics  `json:"memory_stats"`
	CPUStats           CPUMetrics     `json:"cpu_stats"`
	ErrorRate          float64        `json:"error_rate"`
}

// ModelMetrics summarizes the forward passes of one model.
type ModelMetrics struct {
	Model    models.Name   `json:"model"`
	Runs     int           `json:"runs"`
	Failures int           `json:"failures"`
	Mean     time.Duration `json:"mean"`
	Min      time.Duration `json:"min"`
	Max      time.Duration `json:"max"`
	P95      time.Duration `json:"p95"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
}

// CPUMetrics captures CPU usage statistics of the process during a scenario.
type CPUMetrics struct {
	UserTime   time.Duration `json:"user_time"`
	SystemTime time.Duration `json:"system_time"`
	NumCPU     int           `json:"num_cpu"`
}

// Recorder collects per-model forward pass timings. It implements
// inference.Observer and is passed to the dispatcher with WithObserver.
type Recorder struct {
	mu       sync.Mutex
	order    []models.Name
	samples  map[models.Name][]time.Duration
	failures map[models.Name]int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	r := &Recorder{}
	r.Reset()
	return r
}

// ObserveInference records one forward pass.
func (r *Recorder) ObserveInference(model models.Name, elapsed time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.samples[model]; !ok {
		if _, failed := r.failures[model]; !failed {
			r.order = append(r.order, model)
		}
	}
	if err != nil {
		r.failures[model]++
		return
	}
	r.samples[model] = append(r.samples[model], elapsed)
}

// Reset discards everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.samples = map[models.Name][]time.Duration{}
	r.failures = map[models.Name]int{}
}

// Snapshot summarizes the recorded timings in first-seen model order.
func (r *Recorder) Snapshot() []ModelMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ModelMetrics, 0, len(r.order))
	for _, name := range r.order {
		m := summarize(r.samples[name])
		m.Model = name
		m.Failures = r.failures[name]
		out = append(out, m)
	}
	return out
}

func summarize(samples []time.Duration) ModelMetrics {
	if len(samples) == 0 {
		return ModelMetrics{}
	}

	data := make(stats.Float64Data, len(samples))
	for i, d := range samples {
		data[i] = float64(d)
	}

	// Errors only occur on empty input.
	mean, _ := data.Mean()
	low, _ := data.Min()
	high, _ := data.Max()
	p95, _ := data.PercentileNearestRank(95)

	return ModelMetrics{
		Runs: len(samples),
		Mean: time.Duration(mean),
		Min:  time.Duration(low),
		Max:  time.Duration(high),
		P95:  time.Duration(p95),
	}
}
