package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zxkane/contest-checker/pkg/metrics"
)

// exchangeRequest is the wire payload of a token exchange.
type exchangeRequest struct {
	Role        string `json:"role"`
	SessionName string `json:"session_name"`
	ExternalID  string `json:"external_id"`
}

// exchangeResponse is the issued credential shape.
type exchangeResponse struct {
	Token       string `json:"token"`
	ExpiresAtMS int64  `json:"expires_at_ms"`
}

// HTTPCredentialProvider exchanges roles for tokens over HTTP.
type HTTPCredentialProvider struct {
	endpoint string
	client   *http.Client
}

// NewHTTPCredentialProvider creates a provider against the exchange endpoint.
func NewHTTPCredentialProvider(endpoint string) *HTTPCredentialProvider {
	return &HTTPCredentialProvider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Assume exchanges role for short-lived credentials. The session name
// carries the request's trace id; the external id is fixed.
func (p *HTTPCredentialProvider) Assume(ctx context.Context, role, sessionName string) (Credentials, error) {
	payload, err := json.Marshal(exchangeRequest{
		Role:        role,
		SessionName: sessionName,
		ExternalID:  ExternalID,
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: encoding payload: %w", ErrCredentialExchange, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: building request: %w", ErrCredentialExchange, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: transport failure: %w", ErrCredentialExchange, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Credentials{}, fmt.Errorf("%w: exchange returned status %d", ErrCredentialExchange, resp.StatusCode)
	}
	var issued exchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&issued); err != nil {
		return Credentials{}, fmt.Errorf("%w: decoding response: %w", ErrCredentialExchange, err)
	}
	metrics.RecordCredentialExchange()
	return Credentials{
		Token:     issued.Token,
		ExpiresAt: time.UnixMilli(issued.ExpiresAtMS),
	}, nil
}
