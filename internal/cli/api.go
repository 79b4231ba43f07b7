package cli

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alertbridge/alertbridge/internal/models"
)

// APIClient talks to the AlertBridge server's admin API.
type APIClient struct {
	httpClient *http.Client
	serverURL  string
	password   string
}

func NewAPIClient(serverURL, password string, insecureSkipTLS bool) *APIClient {
	transport := &http.Transport{}
	if insecureSkipTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &APIClient{
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: transport,
		},
		serverURL: serverURL,
		password:  password,
	}
}

func (c *APIClient) do(method, path string, body, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.serverURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth("admin", c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("authentication failed: check your admin password")
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Health checks the server without authentication.
func (c *APIClient) Health() error {
	resp, err := c.httpClient.Get(c.serverURL + "/healthz")
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *APIClient) ListProviders() ([]models.ProviderInstance, error) {
	var resp struct {
		Providers []models.ProviderInstance `json:"providers"`
	}
	if err := c.do("GET", "/api/v1/admin/providers", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Providers, nil
}

func (c *APIClient) CreateProvider(p *models.ProviderInstance) (*models.ProviderInstance, error) {
	var created models.ProviderInstance
	if err := c.do("POST", "/api/v1/admin/providers", p, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *APIClient) DeleteProvider(id string) error {
	return c.do("DELETE", "/api/v1/admin/providers/"+id, nil, nil)
}

func (c *APIClient) ListAlerts(providerID, severity string, limit int) ([]models.StoredAlert, int, error) {
	q := url.Values{}
	if providerID != "" {
		q.Set("provider_id", providerID)
	}
	if severity != "" {
		q.Set("severity", severity)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/admin/alerts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp struct {
		Alerts []models.StoredAlert `json:"alerts"`
		Total  int                  `json:"total"`
	}
	if err := c.do("GET", path, nil, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Alerts, resp.Total, nil
}

func (c *APIClient) ValidateScopes(providerID string) ([]models.ScopeResult, error) {
	var resp struct {
		Scopes []models.ScopeResult `json:"scopes"`
	}
	if err := c.do("POST", "/api/v1/admin/providers/"+providerID+"/scopes/validate", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Scopes, nil
}

func (c *APIClient) SetupWebhook(providerID, apiKey string, patchMonitors bool) (string, error) {
	req := map[string]any{
		"api_key":        apiKey,
		"patch_monitors": patchMonitors,
	}
	var resp struct {
		Status    string `json:"status"`
		TargetURL string `json:"target_url"`
	}
	if err := c.do("POST", "/api/v1/admin/providers/"+providerID+"/webhook", req, &resp); err != nil {
		return "", err
	}
	return resp.TargetURL, nil
}

func (c *APIClient) Poll(providerID string) error {
	return c.do("POST", "/api/v1/admin/providers/"+providerID+"/poll", nil, nil)
}

func (c *APIClient) MuteMonitor(providerID, monitorID string, req models.MuteRequest) error {
	return c.do("POST", "/api/v1/admin/providers/"+providerID+"/monitors/"+monitorID+"/mute", req, nil)
}

func (c *APIClient) UnmuteMonitor(providerID, monitorID string, req models.MuteRequest) error {
	return c.do("POST", "/api/v1/admin/providers/"+providerID+"/monitors/"+monitorID+"/unmute", req, nil)
}

func (c *APIClient) MonitorEvents(providerID, monitorID string) ([]json.RawMessage, error) {
	var resp struct {
		Events []json.RawMessage `json:"events"`
	}
	path := "/api/v1/admin/providers/" + providerID + "/monitors/" + monitorID + "/events"
	if err := c.do("GET", path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *APIClient) Logs(providerID string, limit int) ([]map[string]any, error) {
	path := "/api/v1/admin/providers/" + providerID + "/logs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Logs []map[string]any `json:"logs"`
	}
	if err := c.do("GET", path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Logs, nil
}

func (c *APIClient) ListMonitors(providerID string) ([]json.RawMessage, error) {
	var resp struct {
		Monitors []json.RawMessage `json:"monitors"`
	}
	if err := c.do("GET", "/api/v1/admin/providers/"+providerID+"/monitors", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Monitors, nil
}

func (c *APIClient) DeployMonitor(providerID string, definition json.RawMessage) (*models.DeployMonitorResult, error) {
	var result models.DeployMonitorResult
	if err := c.do("POST", "/api/v1/admin/providers/"+providerID+"/monitors", definition, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *APIClient) Query(providerID, kind, query, timeframe string) (*models.QueryResult, error) {
	req := map[string]string{
		"kind":      kind,
		"query":     query,
		"timeframe": timeframe,
	}
	var result models.QueryResult
	if err := c.do("POST", "/api/v1/admin/providers/"+providerID+"/query", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
