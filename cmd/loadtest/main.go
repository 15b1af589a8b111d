// Command loadtest нагружает REST API магазина сценариями жизненного цикла заказа.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type loadMode string

const (
	modeCreate       loadMode = "create"
	modeCreateCancel loadMode = "create-cancel"
	modeLifecycle    loadMode = "lifecycle"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	userID      string
	productID   string
	quantity    int
	outputPath  string
}

func parseConfig(args []string, output io.Writer) (config, error) {
	var cfg config
	var modeValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080/api/v1", "REST API base URL")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-cancel | lifecycle")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for create mode (0..100)")
	fs.StringVar(&cfg.userID, "user-id", "", "id of an active user placing orders")
	fs.StringVar(&cfg.productID, "product-id", "", "id of an active product to order")
	fs.IntVar(&cfg.quantity, "quantity", 1, "quantity per order")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	switch {
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.quantity <= 0:
		return cfg, errors.New("quantity must be > 0")
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	case strings.TrimSpace(cfg.userID) == "":
		return cfg, errors.New("user-id is required")
	case strings.TrimSpace(cfg.productID) == "":
		return cfg, errors.New("product-id is required")
	case !strings.HasPrefix(cfg.baseURL, "http://") && !strings.HasPrefix(cfg.baseURL, "https://"):
		return cfg, fmt.Errorf("base-url must be an http(s) URL: %s", cfg.baseURL)
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCreate, modeCreateCancel, modeLifecycle:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result := run(cfg, newAPIClient(cfg.baseURL, cfg.timeout))
	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// run гоняет сценарии пулом из cfg.concurrency воркеров и собирает отчёт.
func run(cfg config, client *apiClient) report {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)

	var (
		g        errgroup.Group
		failures atomic.Int64
	)
	for range cfg.concurrency {
		g.Go(func() error {
			for id := range jobs {
				if err := runScenario(client, cfg, id, runID, col); err != nil {
					failures.Add(1)
				}
			}
			return nil
		})
	}
	dispatchJobs(jobs, cfg)
	_ = g.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	if result.FailedScenarios == 0 && failures.Load() > 0 {
		result.FailedScenarios = failures.Load()
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}
	return result
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}
