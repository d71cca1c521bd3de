package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/nvr-ai/tumorclassifier/images"
	"github.com/nvr-ai/tumorclassifier/inference"
	"github.com/nvr-ai/tumorclassifier/util"
)

// ErrEmptyCorpus is returned when a scenario runs without images.
var ErrEmptyCorpus = errors.New("benchmark corpus is empty")

// Suite manages and executes benchmark scenarios
type Suite struct {
	dispatcher *inference.Dispatcher
	recorder   *Recorder
	outputDir  string
	log        *zap.SugaredLogger

	mu        sync.RWMutex
	corpus    []util.ImageFile
	scenarios []Scenario
	results   []PerformanceMetrics
}

// NewSuiteArgs represents the arguments for creating a new benchmark suite.
type NewSuiteArgs struct {
	// Dispatcher runs the classifications.
	Dispatcher *inference.Dispatcher
	// Recorder must be the observer the dispatcher was built with.
	Recorder *Recorder
	// OutputDir receives the result files.
	OutputDir string
	// Logger is optional.
	Logger *zap.SugaredLogger
}

// NewSuite creates a new benchmark suite.
//
// Arguments:
//   - args: The arguments for creating a new benchmark suite.
//
// Returns:
//   - *Suite: The benchmark suite.
func NewSuite(args NewSuiteArgs) *Suite {
	if args.Recorder == nil {
		args.Recorder = NewRecorder()
	}
	if args.Logger == nil {
		args.Logger = zap.NewNop().Sugar()
	}
	return &Suite{
		dispatcher: args.Dispatcher,
		recorder:   args.Recorder,
		outputDir:  args.OutputDir,
		log:        args.Logger,
	}
}

// SetCorpus replaces the images classified by every scenario.
func (bs *Suite) SetCorpus(files []util.ImageFile) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.corpus = append([]util.ImageFile(nil), files...)
}

// AddScenario adds a scenario to the benchmark suite
func (bs *Suite) AddScenario(scenario Scenario) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.scenarios = append(bs.scenarios, scenario)
}

// RunScenario executes a single benchmark scenario.
//
// Arguments:
//   - ctx: Cancels the run between classifications.
//   - scenario: The scenario to run.
//
// Returns:
//   - *PerformanceMetrics: The measurements.
//   - error: ErrEmptyCorpus, an invalid scenario, or a context error.
func (bs *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	bs.mu.RLock()
	corpus := bs.corpus
	bs.mu.RUnlock()

	if len(corpus) == 0 {
		return nil, ErrEmptyCorpus
	}
	if scenario.Iterations <= 0 {
		return nil, errors.Errorf("scenario %s: iterations must be positive", scenario.Name)
	}

	// Warmup runs
	for i := 0; i < scenario.WarmupRuns; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, _, _ = bs.processImage(ctx, corpus[i%len(corpus)])
	}
	bs.recorder.Reset()

	metrics := &PerformanceMetrics{
		Scenario:  scenario,
		Timestamp: time.Now(),
	}

	// Capture initial memory and CPU stats
	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)
	startUser, startSystem := bs.cpuTimes()

	startTime := time.Now()
	failures := 0

	for i := 0; i < scenario.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		file := corpus[i%len(corpus)]
		pre, cls, err := bs.processImage(ctx, file)
		metrics.PreprocessDuration += pre
		metrics.ClassifyDuration += cls
		if err != nil {
			failures++
			bs.log.Debugw("Benchmark classification failed", "file", file.Name, "error", err)
		}
	}

	totalDuration := time.Since(startTime)

	// Capture final memory and CPU stats
	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)
	endUser, endSystem := bs.cpuTimes()

	metrics.TotalDuration = totalDuration
	metrics.ImagesPerSecond = float64(scenario.Iterations) / totalDuration.Seconds()
	metrics.ErrorRate = float64(failures) / float64(scenario.Iterations)
	metrics.Models = bs.recorder.Snapshot()
	metrics.MemoryStats = MemoryMetrics{
		AllocBytes:      endMem.Alloc,
		TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
		SysBytes:        endMem.Sys,
		NumGC:           endMem.NumGC - startMem.NumGC,
		HeapAllocBytes:  endMem.HeapAlloc,
		HeapSysBytes:    endMem.HeapSys,
	}
	metrics.CPUStats = CPUMetrics{
		UserTime:   endUser - startUser,
		SystemTime: endSystem - startSystem,
		NumCPU:     runtime.NumCPU(),
	}

	return metrics, nil
}

// cpuTimes returns the user and system CPU time consumed by this process,
// zero when the platform does not report them.
func (bs *Suite) cpuTimes() (time.Duration, time.Duration) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, 0
	}
	times, err := p.Times()
	if err != nil {
		bs.log.Debugw("CPU times unavailable", "error", err)
		return 0, 0
	}
	seconds := func(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }
	return seconds(times.User), seconds(times.System)
}

// processImage classifies one file and splits the elapsed time into
// preprocessing and model time. Demo mode has no preprocessing step.
func (bs *Suite) processImage(ctx context.Context, file util.ImageFile) (time.Duration, time.Duration, error) {
	if bs.dispatcher.DemoMode() {
		start := time.Now()
		_, err := bs.dispatcher.ClassifyFile(ctx, file.Path)
		return 0, time.Since(start), err
	}

	start := time.Now()
	input, err := images.Preprocess(file.Path, bs.dispatcher.PreprocessConfig())
	pre := time.Since(start)
	if err != nil {
		return pre, 0, err
	}

	start = time.Now()
	_, err = bs.dispatcher.Dispatch(ctx, input)
	return pre, time.Since(start), err
}

// RunAllScenarios executes all configured scenarios and saves the results.
//
// Arguments:
//   - ctx: Cancels the run.
//
// Returns:
//   - error: A context error or a failure writing the results.
func (bs *Suite) RunAllScenarios(ctx context.Context) error {
	bs.mu.RLock()
	scenarios := make([]Scenario, len(bs.scenarios))
	copy(scenarios, bs.scenarios)
	bs.mu.RUnlock()

	for _, scenario := range scenarios {
		metrics, err := bs.RunScenario(ctx, scenario)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			bs.log.Warnw("Scenario failed", "scenario", scenario.Name, "error", err)
			continue
		}

		bs.mu.Lock()
		bs.results = append(bs.results, *metrics)
		bs.mu.Unlock()

		bs.log.Infow("Scenario completed",
			"scenario", scenario.Name,
			"images_per_second", fmt.Sprintf("%.2f", metrics.ImagesPerSecond),
		)
	}

	if bs.outputDir == "" {
		return nil
	}
	return bs.SaveResults()
}

// SaveResults persists results as JSON and a CSV summary in the output directory.
func (bs *Suite) SaveResults() error {
	results := bs.GetResults()

	if err := os.MkdirAll(bs.outputDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_results_%s.json", timestamp))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal results")
	}
	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write results file")
	}

	summaryFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))
	f, err := os.Create(summaryFile)
	if err != nil {
		return errors.Wrap(err, "failed to create summary file")
	}
	defer f.Close()
	if err := WriteSummaryCSV(f, results); err != nil {
		return errors.Wrap(err, "failed to save summary CSV")
	}

	bs.log.Infow("Benchmark results saved", "results", resultsFile, "summary", summaryFile)
	return nil
}

// SummaryRow is one line of the CSV summary: a model within a scenario.
type SummaryRow struct {
	Scenario        string  `csv:"Scenario"`
	Model           string  `csv:"Model"`
	Runs            int     `csv:"Runs"`
	Failures        int     `csv:"Failures"`
	MeanMS          float64 `csv:"Mean_ms"`
	P95MS           float64 `csv:"P95_ms"`
	ImagesPerSecond float64 `csv:"Images_per_s"`
	ErrorRate       float64 `csv:"Error_Rate"`
}

func (r SummaryRow) values() []string {
	return []string{
		r.Scenario,
		r.Model,
		strconv.Itoa(r.Runs),
		strconv.Itoa(r.Failures),
		strconv.FormatFloat(r.MeanMS, 'f', 2, 64),
		strconv.FormatFloat(r.P95MS, 'f', 2, 64),
		strconv.FormatFloat(r.ImagesPerSecond, 'f', 2, 64),
		strconv.FormatFloat(r.ErrorRate, 'f', 4, 64),
	}
}

var summaryHeader = []string{"Scenario", "Model", "Runs", "Failures", "Mean_ms", "P95_ms", "Images_per_s", "Error_Rate"}

// SummaryRows flattens results into one row per scenario and model.
func SummaryRows(results []PerformanceMetrics) []SummaryRow {
	ms := func(d time.Duration) float64 {
		return float64(d.Nanoseconds()) / 1e6
	}

	var rows []SummaryRow
	for _, r := range results {
		for _, m := range r.Models {
			rows = append(rows, SummaryRow{
				Scenario:        r.Scenario.Name,
				Model:           string(m.Model),
				Runs:            m.Runs,
				Failures:        m.Failures,
				MeanMS:          ms(m.Mean),
				P95MS:           ms(m.P95),
				ImagesPerSecond: r.ImagesPerSecond,
				ErrorRate:       r.ErrorRate,
			})
		}
	}
	return rows
}

// WriteSummaryCSV writes one CSV row per scenario and model.
func WriteSummaryCSV(w io.Writer, results []PerformanceMetrics) error {
	rows := SummaryRows(results)
	if len(rows) == 0 {
		_, err := io.WriteString(w, strings.Join(summaryHeader, ",")+"\n")
		return err
	}
	return gocsv.Marshal(rows, w)
}

// WriteSummaryTable renders the summary as a text table.
func WriteSummaryTable(w io.Writer, results []PerformanceMetrics) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(summaryHeader)
	for _, row := range SummaryRows(results) {
		table.Append(row.values())
	}
	table.Render()
}

// GetResults returns all benchmark results
func (bs *Suite) GetResults() []PerformanceMetrics {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	results := make([]PerformanceMetrics, len(bs.results))
	copy(results, bs.results)
	return results
}
