// Package agents talks to the sentiment collaborator: an opaque
// request/response service consulted once per research run. The pipeline
// treats it as best-effort and degrades to a neutral read when it fails.
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Sentiment labels.
const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

// Request asks for a sentiment read on one asset.
type Request struct {
	Symbol    string `json:"symbol"`
	AssetType string `json:"asset_type,omitempty"`
}

// Sentiment is the collaborator's verdict. Score runs -1 (bearish) to +1
// (bullish).
type Sentiment struct {
	Label   string  `json:"label"`
	Score   float64 `json:"score"`
	Summary string  `json:"summary,omitempty"`
}

// Client is the sentiment collaborator surface.
type Client interface {
	Analyze(ctx context.Context, req Request) (*Sentiment, error)
}

// Neutral is the fallback read used when no collaborator answers.
func Neutral() *Sentiment {
	return &Sentiment{Label: LabelNeutral, Summary: "no sentiment source available"}
}

// HTTPClient posts requests as JSON to a sentiment endpoint.
type HTTPClient struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPClient builds a client for endpoint. timeout <= 0 means 30s; a nil
// logger is replaced with a no-op.
func NewHTTPClient(endpoint string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Analyze posts req and decodes the collaborator's reply. Non-2xx responses
// become errors carrying a snippet of the body.
func (c *HTTPClient) Analyze(ctx context.Context, req Request) (*Sentiment, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("agents: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("agents: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("sentiment request", zap.String("symbol", req.Symbol), zap.String("endpoint", c.endpoint))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("agents: analyze %s: %w", req.Symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("agents: analyze %s: status %d: %s", req.Symbol, resp.StatusCode, snippet)
	}

	var out Sentiment
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("agents: decode response: %w", err)
	}
	if out.Label == "" {
		out.Label = LabelNeutral
	}
	return &out, nil
}

// Static answers every request with a fixed sentiment. It stands in for the
// collaborator when no endpoint is configured.
type Static struct {
	Result Sentiment
}

func (s Static) Analyze(context.Context, Request) (*Sentiment, error) {
	out := s.Result
	if out.Label == "" {
		out.Label = LabelNeutral
	}
	return &out, nil
}
