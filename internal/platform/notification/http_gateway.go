package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type pushRequest struct {
	Tokens []string          `json:"tokens"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// HTTPGateway posts messages to a push relay that fans them out to devices.
// The relay answers with per-token success and failure counts.
type HTTPGateway struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPGateway(url, apiKey string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGateway) Send(ctx context.Context, tokens []string, title, body string, data map[string]string) (SendResult, error) {
	failed := SendResult{FailureCount: len(tokens)}
	if len(tokens) == 0 {
		return SendResult{}, nil
	}

	payload, err := json.Marshal(pushRequest{Tokens: tokens, Title: title, Body: body, Data: data})
	if err != nil {
		return failed, fmt.Errorf("encode push request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return failed, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return failed, fmt.Errorf("POST %s: %w", g.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return failed, fmt.Errorf("push relay returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result SendResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return failed, fmt.Errorf("decode push response: %w", err)
	}
	return result, nil
}

// Ping checks that the relay is reachable.
func (g *HTTPGateway) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, g.url, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("push relay returned status %d", resp.StatusCode)
	}
	return nil
}
