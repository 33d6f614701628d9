// Package evaluator holds the pluggable grading boundary and the
// delegated-credential exchange used to invoke it.
package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zxkane/contest-checker/pkg/metrics"
)

// ExternalID is the fixed external-id constant presented on every
// delegated-role exchange.
const ExternalID = "contest"

// Evaluator grades normalized submission content. A transport failure or
// a reported evaluator-side failure is fatal to the enclosing request.
type Evaluator interface {
	// Evaluate returns true for pass, false for fail.
	Evaluate(ctx context.Context, endpoint, content string, creds *Credentials) (bool, error)
}

// Credentials are short-lived scoped credentials from a role exchange.
type Credentials struct {
	Token     string
	ExpiresAt time.Time
}

// CredentialProvider exchanges a delegated-role identifier for temporary
// credentials. The session name is bound to the request's trace id.
type CredentialProvider interface {
	Assume(ctx context.Context, role, sessionName string) (Credentials, error)
}

// evaluatorRequest is the wire payload sent to the grading endpoint.
type evaluatorRequest struct {
	Content string `json:"content"`
}

// evaluatorResponse is the wire result reported back.
type evaluatorResponse struct {
	Result string `json:"result"`
}

// HTTPEvaluator dispatches synchronous grading calls over HTTP.
type HTTPEvaluator struct {
	client *http.Client
}

// HTTPOption applies a configuration option to the HTTPEvaluator.
type HTTPOption func(*HTTPEvaluator)

// WithTimeout bounds a single evaluator round trip.
func WithTimeout(d time.Duration) HTTPOption {
	return func(e *HTTPEvaluator) {
		if d > 0 {
			e.client.Timeout = d
		}
	}
}

// WithHTTPClient substitutes the underlying client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(e *HTTPEvaluator) {
		if c != nil {
			e.client = c
		}
	}
}

// NewHTTPEvaluator creates an HTTP evaluator client.
func NewHTTPEvaluator(opts ...HTTPOption) *HTTPEvaluator {
	e := &HTTPEvaluator{
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate posts {"content": ...} to the endpoint and reads the verdict.
func (e *HTTPEvaluator) Evaluate(ctx context.Context, endpoint, content string, creds *Credentials) (bool, error) {
	start := time.Now()
	metrics.RecordEvaluatorCall()

	payload, err := json.Marshal(evaluatorRequest{Content: content})
	if err != nil {
		return false, fmt.Errorf("%w: encoding payload: %w", ErrEvaluation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("%w: building request: %w", ErrEvaluation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if creds != nil && creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		metrics.RecordEvaluatorError()
		return false, fmt.Errorf("%w: transport failure: %w", ErrEvaluation, err)
	}
	defer resp.Body.Close()
	metrics.RecordEvaluatorLatency(float64(time.Since(start).Milliseconds()))

	if resp.StatusCode != http.StatusOK {
		metrics.RecordEvaluatorError()
		return false, fmt.Errorf("%w: evaluator returned status %d", ErrEvaluation, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordEvaluatorError()
		return false, fmt.Errorf("%w: reading response: %w", ErrEvaluation, err)
	}
	var verdict evaluatorResponse
	if err := json.Unmarshal(body, &verdict); err != nil {
		metrics.RecordEvaluatorError()
		return false, fmt.Errorf("%w: decoding response: %w", ErrEvaluation, err)
	}
	switch verdict.Result {
	case "pass":
		return true, nil
	case "fail":
		return false, nil
	default:
		metrics.RecordEvaluatorError()
		return false, fmt.Errorf("%w: unexpected verdict %q", ErrEvaluation, verdict.Result)
	}
}
