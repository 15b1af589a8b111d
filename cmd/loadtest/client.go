package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	idempotencyHeader = "Idempotency-Key"

	stepScenario     = "scenario"
	stepCreateOrder  = "CreateOrder"
	stepCancelOrder  = "CancelOrder"
	stepUpdateStatus = "UpdateStatus"
)

// lifecycleStatuses: путь заказа от pending до delivered.
var lifecycleStatuses = []string{"confirmed", "processing", "shipped", "delivered"}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

type orderPayload struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
}

// apiError: ответ API с кодом вне 2xx.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api responded %d: %s", e.Status, e.Message)
}

type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// do отправляет JSON-запрос и раскладывает data из конверта ответа в out.
// Возвращает HTTP-код или transportFailure, если ответа не было.
func (c *apiClient) do(ctx context.Context, method, path, key string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return transportFailure, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return transportFailure, err
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportFailure, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &apiError{Status: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode data: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *apiClient) call(step string, timeout time.Duration, col *collector, method, path, key string, body, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	status, err := c.do(ctx, method, path, key, body, out)
	if err != nil && status >= 200 && status < 300 {
		status = transportFailure
	}
	col.record(step, time.Since(start), status)
	return err
}

func runScenario(client *apiClient, cfg config, index int, runID string, col *collector) error {
	scenarioStart := time.Now()
	scenarioStatus := http.StatusOK
	defer func() {
		col.record(stepScenario, time.Since(scenarioStart), scenarioStatus)
	}()
	fail := func(err error) error {
		scenarioStatus = transportFailure
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			scenarioStatus = apiErr.Status
		}
		return err
	}

	var order orderPayload
	createBody := map[string]any{
		"userId":          cfg.userID,
		"items":           []map[string]any{{"productId": cfg.productID, "quantity": cfg.quantity}},
		"shippingAddress": "1 Load Test Way",
		"shippingMethod":  "standard",
		"paymentMethod":   "credit_card",
	}
	key := fmt.Sprintf("lt-create-%s-%d", runID, index)
	if err := client.call(stepCreateOrder, cfg.timeout, col, http.MethodPost, "/orders", key, createBody, &order); err != nil {
		return fail(err)
	}
	if order.ID == "" {
		return fail(errors.New("create response returned empty order id"))
	}

	switch {
	case cfg.mode == modeCreateCancel || (cfg.mode == modeCreate && shouldCancelScenario(index, cfg.cancelRate)):
		body := map[string]string{"reason": "load-cancel"}
		if err := client.call(stepCancelOrder, cfg.timeout, col, http.MethodPatch, "/orders/"+order.ID+"/cancel", "", body, nil); err != nil {
			return fail(err)
		}
	case cfg.mode == modeLifecycle:
		for _, status := range lifecycleStatuses {
			body := map[string]string{"status": status}
			if status == "shipped" {
				body["trackingNumber"] = fmt.Sprintf("LT-%s-%d", runID, index)
			}
			if err := client.call(stepUpdateStatus, cfg.timeout, col, http.MethodPatch, "/orders/"+order.ID+"/status", "", body, nil); err != nil {
				return fail(err)
			}
		}
	}
	return nil
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}
