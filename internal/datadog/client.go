package datadog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultSite is used when the provider config doesn't name one.
const DefaultSite = "datadoghq.com"

// requestTimeout applies uniformly to every vendor call. No retries happen
// at this layer -- a failed call surfaces immediately.
const requestTimeout = 5 * time.Second

// APIError is a non-2xx response from the vendor API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("datadog API error (status %d): %s", e.StatusCode, e.Message)
}

// IsForbidden reports whether err is a vendor 403.
func IsForbidden(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden
}

// IsNotFound reports whether err is a vendor 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client is a thin wrapper over the Datadog v1 HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	appKey     string
}

// NewClient builds a client for the given site ("datadoghq.com",
// "datadoghq.eu", ...). An empty site selects DefaultSite.
func NewClient(apiKey, appKey, site string) *Client {
	if site == "" {
		site = DefaultSite
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    "https://api." + site,
		apiKey:     apiKey,
		appKey:     appKey,
	}
}

// SetBaseURL overrides the API endpoint. Used by tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("DD-API-KEY", c.apiKey)
	req.Header.Set("DD-APPLICATION-KEY", c.appKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody, resp.StatusCode)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// errorMessage extracts the vendor's {"errors": [...]} body, falling back to
// the raw body or the HTTP status text.
func errorMessage(body []byte, status int) string {
	var parsed struct {
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
		return strings.Join(parsed.Errors, "; ")
	}
	if len(body) > 0 {
		return string(body)
	}
	return http.StatusText(status)
}

// ListMonitors returns all monitors, optionally expanded with their
// matching downtime windows.
func (c *Client) ListMonitors(ctx context.Context, withDowntimes bool) ([]Monitor, error) {
	query := url.Values{}
	if withDowntimes {
		query.Set("with_downtimes", "true")
	}
	var monitors []Monitor
	if err := c.do(ctx, http.MethodGet, "/api/v1/monitor", query, nil, &monitors); err != nil {
		return nil, err
	}
	return monitors, nil
}

// ListEvents returns events within [start, end], optionally filtered by a
// tag expression like "source:alert".
func (c *Client) ListEvents(ctx context.Context, start, end time.Time, tags string) ([]Event, error) {
	query := url.Values{}
	query.Set("start", strconv.FormatInt(start.Unix(), 10))
	query.Set("end", strconv.FormatInt(end.Unix(), 10))
	if tags != "" {
		query.Set("tags", tags)
	}
	var resp eventsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/events", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// MuteMonitor mutes a monitor until end. An empty scope mutes all groups.
func (c *Client) MuteMonitor(ctx context.Context, monitorID int64, scope string, end time.Time) error {
	query := url.Values{}
	query.Set("end", strconv.FormatInt(end.Unix(), 10))
	if scope != "" {
		query.Set("scope", scope)
	}
	path := fmt.Sprintf("/api/v1/monitor/%d/mute", monitorID)
	return c.do(ctx, http.MethodPost, path, query, nil, nil)
}

// UnmuteMonitor lifts a mute, optionally restricted to a scope.
func (c *Client) UnmuteMonitor(ctx context.Context, monitorID int64, scope string) error {
	query := url.Values{}
	if scope != "" {
		query.Set("scope", scope)
	}
	path := fmt.Sprintf("/api/v1/monitor/%d/unmute", monitorID)
	return c.do(ctx, http.MethodPost, path, query, nil, nil)
}

func (c *Client) CreateMonitor(ctx context.Context, m *Monitor) (*Monitor, error) {
	var created Monitor
	if err := c.do(ctx, http.MethodPost, "/api/v1/monitor", nil, m, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// CreateMonitorRaw submits a caller-supplied monitor definition verbatim.
// The vendor sees the exact body, including option fields the Monitor
// struct does not model.
func (c *Client) CreateMonitorRaw(ctx context.Context, definition json.RawMessage) (*Monitor, error) {
	var created Monitor
	if err := c.do(ctx, http.MethodPost, "/api/v1/monitor", nil, definition, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) DeleteMonitor(ctx context.Context, monitorID int64) error {
	path := fmt.Sprintf("/api/v1/monitor/%d", monitorID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// UpdateMonitor patches a monitor. Only the fields present in body change.
func (c *Client) UpdateMonitor(ctx context.Context, monitorID int64, body map[string]any) error {
	path := fmt.Sprintf("/api/v1/monitor/%d", monitorID)
	return c.do(ctx, http.MethodPut, path, nil, body, nil)
}

const webhooksPath = "/api/v1/integration/webhooks/configuration/webhooks"

func (c *Client) GetWebhook(ctx context.Context, name string) (*WebhookIntegration, error) {
	var webhook WebhookIntegration
	if err := c.do(ctx, http.MethodGet, webhooksPath+"/"+url.PathEscape(name), nil, nil, &webhook); err != nil {
		return nil, err
	}
	return &webhook, nil
}

func (c *Client) CreateWebhook(ctx context.Context, w *WebhookIntegration) error {
	return c.do(ctx, http.MethodPost, webhooksPath, nil, w, nil)
}

func (c *Client) UpdateWebhook(ctx context.Context, name string, w *WebhookIntegration) error {
	return c.do(ctx, http.MethodPut, webhooksPath+"/"+url.PathEscape(name), nil, w, nil)
}

// QueryMetrics runs a timeseries query over [from, to].
func (c *Client) QueryMetrics(ctx context.Context, from, to time.Time, query string) (map[string]any, error) {
	q := url.Values{}
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	q.Set("to", strconv.FormatInt(to.Unix(), 10))
	q.Set("query", query)
	var result map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/v1/query", q, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ListLogs searches logs with the given query body.
func (c *Client) ListLogs(ctx context.Context, q LogsQuery) ([]map[string]any, error) {
	var resp logsResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/logs-queries/list", nil, q, &resp); err != nil {
		return nil, err
	}
	return resp.Logs, nil
}
