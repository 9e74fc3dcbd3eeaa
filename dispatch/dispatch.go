// Package dispatch delivers validated actions to capability services
// over HTTP. Each action becomes one POST to the owning service, with
// bounded retries for transient failures.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/yairfalse/reitti/registry"
	"github.com/yairfalse/reitti/telemetry"
	"github.com/yairfalse/reitti/types"
)

// Dispatcher delivers a single action to its capability service
type Dispatcher interface {
	Dispatch(ctx context.Context, eventID string, action *types.Action) *types.DispatchResult
}

// Options controls retry and timeout behavior
type Options struct {
	MaxRetries int
	Timeout    time.Duration
}

// Client is the HTTP dispatcher. Auth material is injected per service
// and never appears in results or logs.
type Client struct {
	registry *registry.Registry
	client   *http.Client
	options  Options
	logger   *telemetry.Logger
	backOff  func() backoff.BackOff
}

// NewClient creates a dispatcher backed by the service registry
func NewClient(reg *registry.Registry, options Options, logger *telemetry.Logger) *Client {
	if options.Timeout <= 0 {
		options.Timeout = 30 * time.Second
	}
	return &Client{
		registry: reg,
		client:   &http.Client{},
		options:  options,
		logger:   logger,
		backOff:  func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Dispatch posts one action to its service. The returned result is
// always non-nil; failures are recorded in it rather than returned.
func (c *Client) Dispatch(ctx context.Context, eventID string, action *types.Action) *types.DispatchResult {
	start := time.Now()
	result := &types.DispatchResult{Action: action}

	svc, ok := c.registry.Lookup(action.Service)
	if !ok || !c.registry.Has(action.Service, action.Operation) {
		result.Status = types.StatusSkipped
		result.SkipReason = types.SkipUnknownCapability
		result.Latency = time.Since(start)
		return result
	}

	body, err := json.Marshal(action.Parameters)
	if err != nil {
		result.Status = types.StatusFailed
		result.Error = fmt.Sprintf("failed to encode parameters: %v", err)
		result.Latency = time.Since(start)
		return result
	}

	attempts := 0
	response, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempts++
		return c.post(ctx, svc, action.Operation, body)
	},
		backoff.WithBackOff(c.backOff()),
		backoff.WithMaxTries(uint(c.options.MaxRetries+1)),
	)

	result.Attempts = attempts
	result.Latency = time.Since(start)

	if err != nil {
		if ctx.Err() != nil && attempts == 0 {
			result.Status = types.StatusSkipped
			result.SkipReason = types.SkipCancelled
		} else {
			result.Status = types.StatusFailed
			result.Error = err.Error()
		}
	} else {
		result.Status = types.StatusSuccess
		result.Response = response
	}

	if c.logger != nil {
		c.logger.LogDispatch(ctx, eventID, action.Service, action.Operation,
			string(result.Status), attempts)
	}
	telemetry.RecordDispatch(ctx, action.Service, string(result.Status),
		float64(result.Latency.Milliseconds()))

	return result
}

// post performs one HTTP attempt. 4xx responses are permanent errors;
// 5xx and transport errors are retryable.
func (c *Client) post(ctx context.Context, svc *registry.Service, operation string, body []byte) ([]byte, error) {
	timeout := svc.Timeout
	if timeout <= 0 {
		timeout = c.options.Timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s", svc.Endpoint, operation)
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if svc.AuthHeader != "" {
		req.Header.Set(svc.AuthHeader, svc.AuthValue())
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, &types.DispatchError{
			Service:   svc.Name,
			Operation: operation,
			Err:       err,
		}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, &types.DispatchError{
			Service:   svc.Name,
			Operation: operation,
			Status:    resp.StatusCode,
			Err:       err,
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return payload, nil
	}

	dispatchErr := &types.DispatchError{
		Service:   svc.Name,
		Operation: operation,
		Status:    resp.StatusCode,
		Err:       fmt.Errorf("unexpected status %d", resp.StatusCode),
	}
	if !dispatchErr.Retryable() {
		return nil, backoff.Permanent(dispatchErr)
	}
	return nil, dispatchErr
}
