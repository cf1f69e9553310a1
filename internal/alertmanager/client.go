// Package alertmanager fetches and normalizes alerts from a Prometheus
// Alertmanager v2 API endpoint.
package alertmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"incidentd/internal/logging"
	"incidentd/internal/types"
)

// DefaultTimeout bounds a single alert fetch.
const DefaultTimeout = 15 * time.Second

// StatusFilter selects which alerts Fetch returns.
type StatusFilter string

const (
	FilterFiring   StatusFilter = "firing"
	FilterResolved StatusFilter = "resolved"
	FilterAll      StatusFilter = "all"
)

// Client talks to one Alertmanager instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given Alertmanager base URL (for example
// "http://alertmanager:9093").
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// apiAlert mirrors the GET /api/v2/alerts response entries.
type apiAlert struct {
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     time.Time         `json:"startsAt"`
	EndsAt       time.Time         `json:"endsAt"`
	Fingerprint  string            `json:"fingerprint"`
	GeneratorURL string            `json:"generatorURL"`
	Status       struct {
		State string `json:"state"`
	} `json:"status"`
}

// Fetch retrieves alerts, filtered by status and optionally by alert name.
// Alertmanager reports state "active" for firing alerts; both spellings are
// accepted in the filter comparison.
func (c *Client) Fetch(ctx context.Context, filter StatusFilter, alertName string) ([]types.AlertRecord, error) {
	endpoint := c.baseURL + "/api/v2/alerts"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create alertmanager request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		logging.AlertsError("fetch from %s failed: %v", endpoint, err)
		return nil, fmt.Errorf("alertmanager request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read alertmanager response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alertmanager returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var raw []apiAlert
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse alertmanager response: %w", err)
	}

	var out []types.AlertRecord
	for _, a := range raw {
		rec := normalize(a)
		if alertName != "" && rec.AlertName != alertName {
			continue
		}
		if !matchesFilter(rec.Status, filter) {
			continue
		}
		out = append(out, rec)
	}
	logging.Alerts("fetched %d/%d alerts (filter=%s alertname=%q)", len(out), len(raw), filter, alertName)
	return out, nil
}

func normalize(a apiAlert) types.AlertRecord {
	status := types.AlertResolved
	if a.Status.State == "active" || a.Status.State == "firing" {
		status = types.AlertFiring
	}
	return types.AlertRecord{
		AlertName:    a.Labels["alertname"],
		Status:       status,
		Labels:       a.Labels,
		Annotations:  a.Annotations,
		StartsAt:     a.StartsAt,
		EndsAt:       a.EndsAt,
		Fingerprint:  a.Fingerprint,
		GeneratorURL: a.GeneratorURL,
	}
}

func matchesFilter(status types.AlertStatus, filter StatusFilter) bool {
	switch filter {
	case FilterFiring, "":
		return status == types.AlertFiring
	case FilterResolved:
		return status == types.AlertResolved
	default:
		return true
	}
}

// BaseURL returns the configured endpoint, for diagnostics.
func (c *Client) BaseURL() string { return c.baseURL }
