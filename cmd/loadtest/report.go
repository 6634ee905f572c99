package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"text/tabwriter"
	"time"

	"google.golang.org/grpc/codes"
)

// sample — один замер вызова или целого сценария.
type sample struct {
	step string
	took time.Duration
	code codes.Code
}

// collector собирает замеры из всех воркеров.
type collector struct {
	mu      sync.Mutex
	samples []sample
}

func newCollector() *collector {
	return &collector{}
}

func (c *collector) record(step string, took time.Duration, code codes.Code) {
	c.mu.Lock()
	c.samples = append(c.samples, sample{step: step, took: took, code: code})
	c.mu.Unlock()
}

type latencyMs struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

type stepReport struct {
	Calls   int64            `json:"calls"`
	Failed  int64            `json:"failed"`
	Codes   map[string]int64 `json:"codes"`
	Latency latencyMs        `json:"latency_ms"`
}

type report struct {
	Mode       string                `json:"mode"`
	StartedAt  time.Time             `json:"started_at"`
	ElapsedSec float64               `json:"elapsed_sec"`
	Scenarios  int64                 `json:"scenarios"`
	Failed     int64                 `json:"failed"`
	Throughput float64               `json:"scenarios_per_sec"`
	Steps      map[string]stepReport `json:"steps"`
}

func (c *collector) buildReport(startedAt time.Time, elapsed time.Duration) report {
	c.mu.Lock()
	samples := slices.Clone(c.samples)
	c.mu.Unlock()

	grouped := make(map[string][]sample)
	for _, s := range samples {
		grouped[s.step] = append(grouped[s.step], s)
	}

	result := report{
		StartedAt:  startedAt.UTC(),
		ElapsedSec: elapsed.Seconds(),
		Steps:      make(map[string]stepReport, len(grouped)),
	}
	for step, group := range grouped {
		result.Steps[step] = summarizeStep(group)
	}

	scenario := result.Steps[scenarioMethod]
	result.Scenarios = scenario.Calls
	result.Failed = scenario.Failed
	if elapsed > 0 {
		result.Throughput = float64(result.Scenarios) / elapsed.Seconds()
	}
	return result
}

func summarizeStep(group []sample) stepReport {
	out := stepReport{Codes: make(map[string]int64)}
	millis := make([]float64, 0, len(group))
	for _, s := range group {
		out.Calls++
		if s.code != codes.OK {
			out.Failed++
		}
		out.Codes[s.code.String()]++
		millis = append(millis, float64(s.took)/float64(time.Millisecond))
	}
	out.Latency = buildLatencySummary(millis)
	return out
}

func buildLatencySummary(values []float64) latencyMs {
	if len(values) == 0 {
		return latencyMs{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return latencyMs{
		Min: sorted[0],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P90: percentile(sorted, 90),
		P99: percentile(sorted, 99),
		Max: sorted[len(sorted)-1],
	}
}

// percentile возвращает значение по методу ближайшего ранга; sorted должен быть отсортирован.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	rank = min(max(rank, 1), len(sorted))
	return sorted[rank-1]
}

func printReport(w io.Writer, result report) {
	_, _ = fmt.Fprintf(w, "mode=%s scenarios=%d failed=%d elapsed=%.2fs throughput=%.1f/s\n",
		result.Mode, result.Scenarios, result.Failed, result.ElapsedSec, result.Throughput)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STEP\tCALLS\tFAILED\tP50 ms\tP90 ms\tP99 ms\tMAX ms")
	steps := make([]string, 0, len(result.Steps))
	for step := range result.Steps {
		steps = append(steps, step)
	}
	slices.Sort(steps)
	for _, step := range steps {
		s := result.Steps[step]
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\n",
			step, s.Calls, s.Failed, s.Latency.P50, s.Latency.P90, s.Latency.P99, s.Latency.Max)
	}
	_ = tw.Flush()
}

// writeJSONReport пишет отчёт в файл внутри текущего каталога.
func writeJSONReport(path string, result report) error {
	clean := filepath.Clean(path)
	if !filepath.IsLocal(clean) {
		return fmt.Errorf("report path must be a file inside the working directory: %q", path)
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(clean, append(data, '\n'), 0o644)
}
