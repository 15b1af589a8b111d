package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// transportFailure: код для запросов, не получивших HTTP-ответа.
const transportFailure = 0

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type stepReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time             `json:"started_at"`
	DurationSeconds   float64               `json:"duration_seconds"`
	TotalScenarios    int64                 `json:"total_scenarios"`
	SuccessScenarios  int64                 `json:"success_scenarios"`
	FailedScenarios   int64                 `json:"failed_scenarios"`
	ErrorRate         float64               `json:"error_rate"`
	RPS               float64               `json:"rps"`
	ScenarioLatencyMs latencySummary        `json:"scenario_latency_ms"`
	Steps             map[string]stepReport `json:"steps"`
}

// stepStats копит вызовы одного шага; защищён мьютексом collector.
type stepStats struct {
	calls, success int64
	statuses       map[string]int64
	latencies      []float64
}

func (s *stepStats) add(latency time.Duration, status int) {
	s.calls++
	if status >= 200 && status < 300 {
		s.success++
	}
	s.statuses[statusLabel(status)]++
	s.latencies = append(s.latencies, float64(latency.Microseconds())/1000)
}

func (s *stepStats) report() stepReport {
	failed := s.calls - s.success
	return stepReport{
		Calls:     s.calls,
		Success:   s.success,
		Failed:    failed,
		ErrorRate: ratio(failed, s.calls),
		Statuses:  maps.Clone(s.statuses),
		LatencyMs: buildLatencySummary(s.latencies),
	}
}

type collector struct {
	mu    sync.Mutex
	steps map[string]*stepStats
}

func newCollector() *collector {
	return &collector{steps: make(map[string]*stepStats)}
}

// record учитывает один вызов; успешным считается ответ 2xx.
func (c *collector) record(step string, latency time.Duration, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.steps[step]
	if stats == nil {
		stats = &stepStats{statuses: make(map[string]int64)}
		c.steps[step] = stats
	}
	stats.add(latency, status)
}

func (c *collector) buildReport(startedAt time.Time, elapsed time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Steps:           make(map[string]stepReport, len(c.steps)),
	}
	for name, stats := range c.steps {
		result.Steps[name] = stats.report()
	}

	scenario := result.Steps[stepScenario]
	result.TotalScenarios = scenario.Calls
	result.SuccessScenarios = scenario.Success
	result.FailedScenarios = scenario.Failed
	result.ErrorRate = scenario.ErrorRate
	result.ScenarioLatencyMs = scenario.LatencyMs
	if elapsed > 0 {
		result.RPS = float64(result.TotalScenarios) / elapsed.Seconds()
	}
	return result
}

func statusLabel(status int) string {
	if status == transportFailure {
		return "transport_error"
	}
	return strconv.Itoa(status)
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(out io.Writer, result report, cfg config) {
	lat := result.ScenarioLatencyMs
	_, _ = fmt.Fprintf(out, "Load test summary\nmode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode, runTarget(cfg), result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.ErrorRate)
	_, _ = fmt.Fprintf(out, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(out, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		lat.Min, lat.Avg, lat.P50, lat.P95, lat.P99, lat.Max)

	for _, name := range slices.Sorted(maps.Keys(result.Steps)) {
		if name == stepScenario {
			continue
		}
		step := result.Steps[name]
		_, _ = fmt.Fprintf(out, "%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name, step.Calls, step.Success, step.Failed, step.ErrorRate, step.LatencyMs.P95)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

// percentile интерполирует линейно между соседними рангами отсортированной выборки.
func percentile(sorted []float64, p float64) float64 {
	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := min(lower+1, len(sorted)-1)
	return sorted[lower] + (sorted[upper]-sorted[lower])*(rank-float64(lower))
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
