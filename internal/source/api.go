package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	v1 "github.com/checkline-lab/checkline/internal/api/v1"
	"github.com/checkline-lab/checkline/internal/core/parser"
)

// APIClient is a thin JSON:API client for the checks platform. Concurrent
// requests for the same path are deduped with singleflight, so the parallel
// aggregation mode never fetches one resource twice.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
	group   singleflight.Group
}

// NewAPIClient creates a client. Empty baseURL or token produces a client
// whose adapter reports itself unavailable rather than an error.
func NewAPIClient(baseURL, token string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *APIClient) configured() bool {
	return c != nil && c.baseURL != "" && c.token != ""
}

// GetJSON fetches a path and decodes the response body into generic JSON.
func (c *APIClient) GetJSON(ctx context.Context, path string) (map[string]any, error) {
	doc, err, _ := c.group.Do(path, func() (any, error) {
		return c.getJSON(ctx, path)
	})
	if err != nil {
		return nil, err
	}
	return doc.(map[string]any), nil
}

func (c *APIClient) getJSON(ctx context.Context, path string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: read body: %w", path, err)
	}

	var doc map[string]any
	if err := sonic.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("GET %s: decode body: %w", path, err)
	}
	return doc, nil
}

// APIAdapter sources events from the live checks API: the check document
// (with included audit-trail versions) plus the payments collection.
type APIAdapter struct {
	client   *APIClient
	checkID  string
	currency string

	mu    sync.Mutex
	total *int64
}

// NewAPIAdapter wires an adapter for one check ID.
func NewAPIAdapter(client *APIClient, checkID, defaultCurrency string) *APIAdapter {
	return &APIAdapter{
		client:   client,
		checkID:  checkID,
		currency: defaultCurrency,
	}
}

func (a *APIAdapter) Name() string { return "checks_api" }

// Available requires a configured client and a check ID. Missing
// configuration is a no-op signal, not an error.
func (a *APIAdapter) Available() bool {
	return a.client.configured() && a.checkID != ""
}

// Fetch retrieves and translates the check document and its payments. A
// payments failure degrades to check events only; the check document itself
// is the one fetch this adapter cannot do without.
func (a *APIAdapter) Fetch(ctx context.Context) ([]v1.Event, error) {
	doc, err := a.client.GetJSON(ctx, "/api/v1/checks/"+a.checkID+"?include=versions")
	if err != nil {
		return nil, fmt.Errorf("fetch check %s: %w", a.checkID, err)
	}

	events, err := parser.ParseCheckDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("parse check %s: %w", a.checkID, err)
	}

	if total := parser.ParseCheckTotalCents(doc); total != nil {
		a.mu.Lock()
		a.total = total
		a.mu.Unlock()
	}

	events = append(events, parser.ParseVersionsDocument(doc, a.currency)...)

	paymentsDoc, err := a.client.GetJSON(ctx, "/api/v1/checks/"+a.checkID+"/payments")
	if err != nil {
		slog.Warn("[APIAdapter] Payments fetch failed, continuing without payment events",
			"check_id", a.checkID,
			"error", err,
		)
		return events, nil
	}
	events = append(events, parser.ParsePaymentsDocument(paymentsDoc, a.checkID, a.currency)...)

	return events, nil
}

// AuthoritativeTotalCents reports the check's total as seen on the last
// fetch, nil before any successful fetch.
func (a *APIAdapter) AuthoritativeTotalCents() *int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}
