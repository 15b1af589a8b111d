package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeShop struct {
	mu        sync.Mutex
	created   atomic.Int64
	keys      map[string]int
	statuses  map[string][]string
	cancelled map[string]bool
	createErr int
}

func newFakeShop() *fakeShop {
	return &fakeShop{
		keys:      make(map[string]int),
		statuses:  make(map[string][]string),
		cancelled: make(map[string]bool),
	}
}

func (f *fakeShop) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		if f.createErr != 0 {
			writeEnvelope(w, f.createErr, "Insufficient stock", nil)
			return
		}
		var body struct {
			UserID string `json:"userId"`
			Items  []struct {
				ProductID string `json:"productId"`
				Quantity  int    `json:"quantity"`
			} `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" || len(body.Items) != 1 {
			writeEnvelope(w, http.StatusBadRequest, "bad order", nil)
			return
		}
		f.mu.Lock()
		f.keys[r.Header.Get(idempotencyHeader)]++
		f.mu.Unlock()
		id := fmt.Sprintf("order-%d", f.created.Add(1))
		writeEnvelope(w, http.StatusCreated, "Order created successfully", orderPayload{ID: id, Status: "pending"})
	})
	mux.HandleFunc("PATCH /api/v1/orders/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["status"] == "shipped" && body["trackingNumber"] == "" {
			writeEnvelope(w, http.StatusBadRequest, "tracking number required", nil)
			return
		}
		f.mu.Lock()
		f.statuses[r.PathValue("id")] = append(f.statuses[r.PathValue("id")], body["status"])
		f.mu.Unlock()
		writeEnvelope(w, http.StatusOK, "Order status updated", orderPayload{ID: r.PathValue("id"), Status: body["status"]})
	})
	mux.HandleFunc("PATCH /api/v1/orders/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.cancelled[r.PathValue("id")] = true
		f.mu.Unlock()
		writeEnvelope(w, http.StatusOK, "Order cancelled", orderPayload{ID: r.PathValue("id"), Status: "cancelled"})
	})
	return mux
}

func writeEnvelope(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"statusCode": status, "message": message, "data": data})
}

func baseArgs(baseURL string, extra ...string) []string {
	return append([]string{"-base-url=" + baseURL, "-user-id=u-1", "-product-id=p-1"}, extra...)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    loadMode
		wantErr bool
	}{
		{input: "create", want: modeCreate},
		{input: " create-cancel ", want: modeCreateCancel},
		{input: "lifecycle", want: modeLifecycle},
		{input: "create-pay", wantErr: true},
	}
	for _, tc := range tests {
		got, err := parseMode(tc.input)
		if tc.wantErr {
			if err == nil || !strings.Contains(err.Error(), "unsupported mode") {
				t.Fatalf("%q: expected unsupported mode error, got %v", tc.input, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %q, %v", tc.input, got, err)
		}
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig(baseArgs("http://shop:8080/api/v1", "-mode=lifecycle", "-duration=1m", "-total=10"), io.Discard)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if cfg.mode != modeLifecycle || cfg.duration != time.Minute || !cfg.totalSet || cfg.total != 10 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if got := runTarget(cfg); got != "duration:1m0s,max-total:10" {
		t.Fatalf("unexpected run target: %s", got)
	}

	invalid := map[string][]string{
		"user-id is required":     {"-base-url=http://x", "-product-id=p"},
		"product-id is required":  {"-base-url=http://x", "-user-id=u"},
		"concurrency must be > 0": baseArgs("http://x", "-concurrency=0"),
		"cancel-rate must be":     baseArgs("http://x", "-cancel-rate=101"),
		"quantity must be > 0":    baseArgs("http://x", "-quantity=0"),
		"base-url must be":        baseArgs("shop:8080"),
		"total must be > 0":       baseArgs("http://x", "-total=0"),
		"unsupported mode":        baseArgs("http://x", "-mode=pay"),
		"timeout must be > 0":     baseArgs("http://x", "-timeout=0s"),
		"duration must be >= 0":   baseArgs("http://x", "-duration=-1s"),
	}
	for want, args := range invalid {
		if _, err := parseConfig(args, io.Discard); err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q, got %v", want, err)
		}
	}
}

func TestDispatchJobs(t *testing.T) {
	jobs := make(chan int, 10)
	dispatchJobs(jobs, config{total: 3})
	var got []int
	for id := range jobs {
		got = append(got, id)
	}
	if len(got) != 3 || got[2] != 2 {
		t.Fatalf("unexpected jobs: %v", got)
	}

	limited := make(chan int, 10)
	dispatchJobs(limited, config{duration: time.Second, total: 2, totalSet: true})
	count := 0
	for range limited {
		count++
	}
	if count != 2 {
		t.Fatalf("expected total to cap duration mode, got %d", count)
	}
}

func TestRun_LifecycleAgainstAPI(t *testing.T) {
	shop := newFakeShop()
	srv := httptest.NewServer(shop.handler())
	defer srv.Close()

	cfg, err := parseConfig(baseArgs(srv.URL+"/api/v1", "-mode=lifecycle", "-total=5", "-concurrency=2"), io.Discard)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	result := run(cfg, newAPIClient(cfg.baseURL, cfg.timeout))

	if result.TotalScenarios != 5 || result.FailedScenarios != 0 {
		t.Fatalf("unexpected scenarios: %+v", result)
	}
	if got := result.Steps[stepUpdateStatus].Calls; got != 20 {
		t.Fatalf("expected 4 status updates per order, got %d", got)
	}
	for id, statuses := range shop.statuses {
		if strings.Join(statuses, ",") != "confirmed,processing,shipped,delivered" {
			t.Fatalf("order %s went through %v", id, statuses)
		}
	}
	for key, n := range shop.keys {
		if !strings.HasPrefix(key, "lt-create-") || n != 1 {
			t.Fatalf("idempotency key %q used %d times", key, n)
		}
	}
}

func TestRun_CreateWithCancelRate(t *testing.T) {
	shop := newFakeShop()
	srv := httptest.NewServer(shop.handler())
	defer srv.Close()

	cfg, err := parseConfig(baseArgs(srv.URL+"/api/v1", "-total=4", "-concurrency=1", "-cancel-rate=100"), io.Discard)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	result := run(cfg, newAPIClient(cfg.baseURL, cfg.timeout))
	if result.Steps[stepCancelOrder].Success != 4 || len(shop.cancelled) != 4 {
		t.Fatalf("expected every order cancelled: %+v", result.Steps)
	}
}

func TestRun_RecordsAPIErrors(t *testing.T) {
	shop := newFakeShop()
	shop.createErr = http.StatusConflict
	srv := httptest.NewServer(shop.handler())
	defer srv.Close()

	cfg, err := parseConfig(baseArgs(srv.URL+"/api/v1", "-total=3", "-concurrency=1"), io.Discard)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	result := run(cfg, newAPIClient(cfg.baseURL, cfg.timeout))
	if result.FailedScenarios != 3 || result.ErrorRate != 1 {
		t.Fatalf("expected all scenarios failed: %+v", result)
	}
	if got := result.Steps[stepCreateOrder].Statuses["409"]; got != 3 {
		t.Fatalf("expected 409 statuses, got %v", result.Steps[stepCreateOrder].Statuses)
	}
}

func TestRun_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg, err := parseConfig(baseArgs(url, "-total=1", "-concurrency=1", "-timeout=500ms"), io.Discard)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	result := run(cfg, newAPIClient(cfg.baseURL, cfg.timeout))
	if result.Steps[stepCreateOrder].Statuses["transport_error"] != 1 {
		t.Fatalf("expected transport error, got %+v", result.Steps)
	}
}

func TestLatencyHelpers(t *testing.T) {
	summary := buildLatencySummary([]float64{4, 1, 3, 2})
	if summary.Min != 1 || summary.Max != 4 || summary.Avg != 2.5 || summary.P50 != 2.5 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if buildLatencySummary(nil) != (latencySummary{}) {
		t.Fatal("empty input must yield zero summary")
	}
	if ratio(1, 0) != 0 || ratio(1, 4) != 0.25 {
		t.Fatal("unexpected ratio")
	}
	if !shouldCancelScenario(5, 10) || shouldCancelScenario(15, 10) || shouldCancelScenario(1, 0) {
		t.Fatal("unexpected cancel decision")
	}
}

func TestPrintAndWriteReport(t *testing.T) {
	col := newCollector()
	col.record(stepScenario, 10*time.Millisecond, http.StatusOK)
	col.record(stepCreateOrder, 5*time.Millisecond, http.StatusCreated)
	col.record(stepCreateOrder, 7*time.Millisecond, transportFailure)
	result := col.buildReport(time.Now(), time.Second)

	var out bytes.Buffer
	printReport(&out, result, config{mode: modeCreate, total: 1})
	text := out.String()
	if !strings.Contains(text, "mode=create run=count:1 total=1") || !strings.Contains(text, "CreateOrder: calls=2 success=1 failed=1") {
		t.Fatalf("unexpected report:\n%s", text)
	}

	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	if err := writeJSONReport("report.json", result); err != nil {
		t.Fatalf("writeJSONReport: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "report.json"))
	if err != nil {
		t.Fatal(err)
	}
	var decoded report
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.TotalScenarios != 1 {
		t.Fatalf("unexpected written report: %v %+v", err, decoded)
	}
	if err := writeJSONReport("../escape.json", result); err == nil {
		t.Fatal("expected error for path outside working directory")
	}
	if err := writeJSONReport(".", result); err == nil {
		t.Fatal("expected error for directory path")
	}
}
