// Package trust wraps the optional external classifiers (packaging image
// check, behavioral scoring) behind one interface. Signals enrich a verdict;
// they never decide it, and an unreachable signal is reported as unavailable.
package trust

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"meditrace/internal/verification/models"
)

// Signal is one external trust check.
type Signal interface {
	Name() string
	Check(ctx context.Context, unitID string) (models.TrustSignal, error)
}

// HTTPSignal calls a classifier endpoint with a JSON body and reads back a
// flagged/details pair.
type HTTPSignal struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPSignal constructs a signal backed by the given endpoint. A nil client
// falls back to http.DefaultClient; the caller bounds latency via ctx.
func NewHTTPSignal(name, url string, client *http.Client) *HTTPSignal {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSignal{name: name, url: url, client: client}
}

func (s *HTTPSignal) Name() string { return s.name }

type checkRequest struct {
	UnitID string `json:"unit_id"`
}

type checkResponse struct {
	Flagged bool   `json:"flagged"`
	Details string `json:"details"`
}

func (s *HTTPSignal) Check(ctx context.Context, unitID string) (models.TrustSignal, error) {
	body, err := json.Marshal(checkRequest{UnitID: unitID})
	if err != nil {
		return models.TrustSignal{}, fmt.Errorf("encode check request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return models.TrustSignal{}, fmt.Errorf("build check request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return models.TrustSignal{}, fmt.Errorf("call %s signal: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.TrustSignal{}, fmt.Errorf("%s signal returned status %d", s.name, resp.StatusCode)
	}

	var decoded checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return models.TrustSignal{}, fmt.Errorf("decode %s signal response: %w", s.name, err)
	}

	state := models.SignalPassed
	if decoded.Flagged {
		state = models.SignalFlagged
	}
	return models.TrustSignal{Name: s.name, State: state, Details: decoded.Details}, nil
}
